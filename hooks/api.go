package hooks

import (
	"context"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/token"
	"github.com/pkg/errors"
)

// Detour is the outcome of a post-login hook sending the user elsewhere.
type Detour struct {
	Path  string
	Query url.Values
	Scope string
}

// PostLoginAPI is the capability set available to post-login hooks
type PostLoginAPI struct {
	Prompt   *PromptAPI
	Redirect *RedirectAPI
	Token    *ServiceTokenAPI

	detour *Detour
}

type PromptAPI struct {
	api *PostLoginAPI
}

// Render detours the login to the form identified by formID.
func (p *PromptAPI) Render(formID string) {
	p.api.Redirect.SendUserTo("/u/forms/"+url.PathEscape(formID), nil)
}

type RedirectAPI struct {
	api     *PostLoginAPI
	secret  []byte
	nowTime func() time.Time
}

// SendUserTo records a detour. The pipeline turns it into a continuation on the
// login session; the hook never touches the session itself. The first call wins.
func (r *RedirectAPI) SendUserTo(path string, query url.Values) {
	if r.api.detour != nil {
		return
	}
	r.api.detour = &Detour{Path: path, Query: query, Scope: ContinuationScope(path)}
}

// EncodeToken signs payload so it can travel through the browser to the detour
// target and back.
func (r *RedirectAPI) EncodeToken(payload map[string]any, expiresIn time.Duration) (string, error) {
	if len(r.secret) == 0 {
		return "", errors.New("[RedirectAPI.EncodeToken] no redirect secret configured")
	}
	claims := jwt.MapClaims{}
	for k, v := range payload {
		claims[k] = v
	}
	now := r.nowTime()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(expiresIn).Unix()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	return signed, errors.Wrap(err, "[RedirectAPI.EncodeToken] SignedString")
}

func (r *RedirectAPI) ValidateToken(raw string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithTimeFunc(r.nowTime), jwt.WithExpirationRequired())
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "%v", err)
	}
	delete(claims, "iat")
	delete(claims, "exp")
	return claims, nil
}

type ServiceTokenAPI struct {
	tokens   *token.Manager
	tenantID string
	clientID string
}

// CreateServiceToken mints a machine token for the event's client on the
// tenant's default audience.
func (s *ServiceTokenAPI) CreateServiceToken(ctx context.Context, customClaims map[string]any) (string, error) {
	if s.tokens == nil {
		return "", errors.New("[ServiceTokenAPI.CreateServiceToken] token manager not configured")
	}
	return s.tokens.CreateAccessToken(ctx, token.AccessTokenParams{
		TenantID:     s.tenantID,
		Subject:      s.clientID,
		ClientID:     s.clientID,
		CustomClaims: customClaims,
	})
}

// CredentialsExchangeAPI is the capability set available while tokens are minted
type CredentialsExchangeAPI struct {
	AccessToken *ClaimSetter
	IDToken     *ClaimSetter

	denied string
}

// Deny rejects the exchange. The reason is returned to the client as access_denied.
func (c *CredentialsExchangeAPI) Deny(reason string) {
	c.denied = reason
}

type ClaimSetter struct {
	claims map[string]any
}

func (s *ClaimSetter) SetCustomClaim(name string, value any) error {
	if token.IsReservedClaim(name) {
		return errors.Errorf("claim %q is reserved", name)
	}
	s.claims[name] = value
	return nil
}
