package scopes

import (
	"github.com/pkg/errors"
)

// DefaultOIDCScopes are always granted and never filtered by RBAC.
var DefaultOIDCScopes = []string{"openid", "profile", "email", "address", "phone"}

func IsDefaultOIDCScope(scope string) bool {
	for _, s := range DefaultOIDCScopes {
		if s == scope {
			return true
		}
	}
	return false
}

// GrantType is the user-facing grant that produced a UserRequest.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantPassword          GrantType = "password"
	GrantPasswordless      GrantType = "passwordless"
	GrantOTP               GrantType = "otp"
)

// Request is the input to Resolver.Resolve. The only implementations are
// ClientCredentialsRequest and UserRequest.
type Request interface {
	Tenant() string
	isRequest()
}

// ClientCredentialsRequest resolves scopes for a machine client. It carries no user.
type ClientCredentialsRequest struct {
	TenantID string
	ClientID string
	Audience string
	Scopes   []string
}

func (r ClientCredentialsRequest) Tenant() string { return r.TenantID }
func (ClientCredentialsRequest) isRequest()       {}

// UserRequest resolves scopes for an authenticated user. Build it with
// NewUserRequest so the user id is always present.
type UserRequest struct {
	tenantID       string
	userID         string
	grantType      GrantType
	audience       string
	scopes         []string
	organizationID string
}

var ErrMissingUserID = errors.New("user id is required for user based scope resolution")

func NewUserRequest(tenantID, userID string, grantType GrantType) (UserRequest, error) {
	if userID == "" {
		return UserRequest{}, ErrMissingUserID
	}
	switch grantType {
	case GrantAuthorizationCode, GrantRefreshToken, GrantPassword, GrantPasswordless, GrantOTP:
	default:
		return UserRequest{}, errors.Errorf("unsupported user grant type %q", grantType)
	}
	return UserRequest{tenantID: tenantID, userID: userID, grantType: grantType}, nil
}

func (r UserRequest) WithAudience(audience string) UserRequest {
	r.audience = audience
	return r
}

func (r UserRequest) WithScopes(scopes ...string) UserRequest {
	r.scopes = append([]string(nil), scopes...)
	return r
}

func (r UserRequest) WithOrganization(organizationID string) UserRequest {
	r.organizationID = organizationID
	return r
}

func (r UserRequest) Tenant() string         { return r.tenantID }
func (r UserRequest) UserID() string         { return r.userID }
func (r UserRequest) GrantType() GrantType   { return r.grantType }
func (r UserRequest) Audience() string       { return r.audience }
func (r UserRequest) Scopes() []string       { return r.scopes }
func (r UserRequest) OrganizationID() string { return r.organizationID }
func (UserRequest) isRequest()               {}

// Result is what a token may carry for the requested audience.
type Result struct {
	Scopes      []string
	Permissions []string
}

func emptyResult() Result {
	return Result{Scopes: []string{}, Permissions: []string{}}
}

// splitScopes separates the default OIDC scopes from the rest, deduplicating both.
func splitScopes(requested []string) (defaults, others []string) {
	defaults, others = []string{}, []string{}
	seen := make(map[string]struct{}, len(requested))
	for _, s := range requested {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		if IsDefaultOIDCScope(s) {
			defaults = append(defaults, s)
		} else {
			others = append(others, s)
		}
	}
	return defaults, others
}

type set map[string]struct{}

func newSet(values ...string) set {
	s := make(set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s set) has(v string) bool {
	_, ok := s[v]
	return ok
}

func concat(parts ...[]string) []string {
	out := []string{}
	seen := set{}
	for _, p := range parts {
		for _, v := range p {
			if seen.has(v) {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
