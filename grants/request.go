package grants

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/go-identity-core/hooks"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/internal/utils"
	"github.com/jrsteele09/go-identity-core/oauth2"
)

// ClientAuth is the client authentication presented at the token endpoint,
// either through HTTP Basic or the client_id/client_secret form fields.
type ClientAuth struct {
	ClientID     string
	ClientSecret string
}

// Request is a parsed token endpoint call. The set of implementations is closed:
// AuthorizationCodeRequest, ClientCredentialsRequest, RefreshTokenRequest and
// PasswordRequest.
type Request interface {
	GrantType() oauth2.GrantType
	Tenant() string
	Client() ClientAuth
	Info() hooks.RequestInfo
	isRequest()
}

type common struct {
	tenantID string
	auth     ClientAuth
	info     hooks.RequestInfo
}

func (c common) Tenant() string          { return c.tenantID }
func (c common) Client() ClientAuth      { return c.auth }
func (c common) Info() hooks.RequestInfo { return c.info }
func (common) isRequest()                {}

type AuthorizationCodeRequest struct {
	common
	Code         string
	CodeVerifier string
	RedirectURI  string
}

func (AuthorizationCodeRequest) GrantType() oauth2.GrantType { return oauth2.AuthorizationCodeGrant }

type ClientCredentialsRequest struct {
	common
	Audience     string
	Scopes       []string
	Organization string
}

func (ClientCredentialsRequest) GrantType() oauth2.GrantType {
	return oauth2.ClientCredentialsCodeGrant
}

// RefreshTokenRequest may narrow the scopes of the original grant, never widen them.
type RefreshTokenRequest struct {
	common
	RefreshToken string
	Scopes       []string
}

func (RefreshTokenRequest) GrantType() oauth2.GrantType { return oauth2.RefreshTokenCodeGrant }

type PasswordRequest struct {
	common
	Username     string
	Password     string
	Audience     string
	Scopes       []string
	Organization string
}

func (PasswordRequest) GrantType() oauth2.GrantType { return oauth2.PasswordGrant }

// ParseRequest builds the typed request for the grant_type in form. auth wins
// over the form credentials when it carries a client id.
func ParseRequest(tenantID string, form url.Values, auth ClientAuth, info hooks.RequestInfo) (Request, error) {
	if auth.ClientID == "" {
		auth = ClientAuth{ClientID: form.Get("client_id"), ClientSecret: form.Get("client_secret")}
	}
	if strings.TrimSpace(auth.ClientID) == "" {
		return nil, apperrors.InvalidRequest("Missing client_id")
	}
	c := common{tenantID: tenantID, auth: auth, info: info}
	requested := utils.Unique(utils.SplitScopes(form.Get("scope")))

	grantType := oauth2.GrantType(form.Get("grant_type"))
	switch grantType {
	case oauth2.AuthorizationCodeGrant:
		code := form.Get("code")
		if code == "" {
			return nil, apperrors.InvalidRequest("Missing code")
		}
		return AuthorizationCodeRequest{
			common:       c,
			Code:         code,
			CodeVerifier: form.Get("code_verifier"),
			RedirectURI:  form.Get("redirect_uri"),
		}, nil
	case oauth2.ClientCredentialsCodeGrant:
		return ClientCredentialsRequest{
			common:       c,
			Audience:     form.Get("audience"),
			Scopes:       requested,
			Organization: form.Get("organization"),
		}, nil
	case oauth2.RefreshTokenCodeGrant:
		rt := form.Get("refresh_token")
		if rt == "" {
			return nil, apperrors.InvalidRequest("Missing refresh_token")
		}
		return RefreshTokenRequest{common: c, RefreshToken: rt, Scopes: requested}, nil
	case oauth2.PasswordGrant:
		username, password := form.Get("username"), form.Get("password")
		if username == "" || password == "" {
			return nil, apperrors.InvalidRequest("Missing username or password")
		}
		return PasswordRequest{
			common:       c,
			Username:     username,
			Password:     password,
			Audience:     form.Get("audience"),
			Scopes:       requested,
			Organization: form.Get("organization"),
		}, nil
	case "":
		return nil, apperrors.InvalidRequest("Missing grant_type")
	}
	return nil, apperrors.UnsupportedGrantType(string(grantType))
}
