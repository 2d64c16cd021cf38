package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-core/audit"
	"github.com/jrsteele09/go-identity-core/grants"
	"github.com/jrsteele09/go-identity-core/hooks"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/internal/utils"
	"github.com/jrsteele09/go-identity-core/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// LogoutRequest is one GET /v2/logout
type LogoutRequest struct {
	TenantID  string
	ClientID  string
	ReturnTo  string
	SessionID string // from the auth cookie
	Info      hooks.RequestInfo
}

// LogoutResult tells the transport where to go once the cookie is cleared. An
// empty ReturnTo is answered with 200 "OK".
type LogoutResult struct {
	ReturnTo string
}

// Logout revokes the browser session and its refresh tokens. An unknown client
// is answered with OK without touching any session.
func (as *AuthorizationService) Logout(ctx context.Context, req LogoutRequest) (*LogoutResult, error) {
	client, err := as.Clients.Get(ctx, req.TenantID, req.ClientID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return &LogoutResult{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.Logout] client")
	}
	if req.ReturnTo != "" && !client.IsAllowedLogoutURL(req.ReturnTo) {
		return nil, ErrInvalidReturnTo
	}

	entry := audit.Entry{
		ID:          uuid.NewString(),
		TenantID:    req.TenantID,
		Type:        audit.TypeSuccessLogout,
		Date:        as.nowTime().UTC(),
		Description: "User successfully logged out",
		IP:          req.Info.IP,
		UserAgent:   req.Info.UserAgent,
		ClientID:    client.ID,
		ClientName:  client.Name,
	}

	if req.SessionID != "" {
		session, err := as.Sessions.Get(ctx, req.TenantID, req.SessionID)
		switch {
		case apperrors.Is(err, apperrors.ErrNotFound):
		case err != nil:
			return nil, errors.Wrap(err, "[AuthorizationService.Logout] session")
		default:
			if err := as.Sessions.Revoke(ctx, req.TenantID, session.ID, as.nowTime().UTC()); err != nil {
				return nil, errors.Wrap(err, "[AuthorizationService.Logout] revoke session")
			}
			n, err := as.Refresh.RevokeSession(ctx, req.TenantID, session.ID)
			if err != nil {
				return nil, err
			}
			log.Debug().Str("session_id", session.ID).Int("refresh_tokens", n).Msg("session revoked")
			entry.UserID = session.UserID
			entry.Details = map[string]any{"session_id": session.ID}
		}
	}
	as.Audit.Log(ctx, entry)

	return &LogoutResult{ReturnTo: req.ReturnTo}, nil
}

// RevokeToken revokes an access or refresh token. Unknown or already invalid
// tokens are not an error.
func (as *AuthorizationService) RevokeToken(ctx context.Context, tenantID, rawToken, tokenTypeHint string, auth grants.ClientAuth) error {
	client, err := as.Clients.Get(ctx, tenantID, auth.ClientID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return apperrors.InvalidClientCredentials()
	}
	if err != nil {
		return errors.Wrap(err, "[AuthorizationService.RevokeToken] client")
	}
	if !client.IsPublic() && !client.VerifySecret(auth.ClientSecret) {
		return apperrors.InvalidClientCredentials()
	}

	// access tokens are JWTs, refresh tokens are opaque
	if tokenTypeHint == "refresh_token" || strings.Count(rawToken, ".") != 2 {
		err := as.Refresh.Revoke(ctx, tenantID, rawToken, client.ID)
		if apperrors.Is(err, apperrors.ErrInvalidRefreshToken) {
			return nil
		}
		return err
	}
	err = as.Tokens.Revoke(ctx, rawToken)
	if apperrors.Is(err, apperrors.ErrInvalidToken) {
		return nil
	}
	return err
}

// UserInfo returns the OIDC claims of the access token's subject released by
// its scopes.
func (as *AuthorizationService) UserInfo(ctx context.Context, rawToken string) (map[string]any, error) {
	introspection, err := as.Tokens.Introspection(ctx, rawToken)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.UserInfo] introspection")
	}
	if !introspection.Active || introspection.Sub == "" {
		return nil, ErrInactiveToken
	}

	user, err := as.Users.Get(ctx, introspection.Tenant, introspection.Sub)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, ErrInactiveToken
	}
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.UserInfo] user")
	}
	if user.Blocked {
		return nil, ErrInactiveToken
	}

	claims := token.ProfileClaims(user, utils.SplitScopes(introspection.Scope))
	claims["sub"] = user.ID
	return claims, nil
}

// Introspect backs the token introspection endpoint for confidential clients.
func (as *AuthorizationService) Introspect(ctx context.Context, tenantID, rawToken string, auth grants.ClientAuth) (*token.TokenIntrospection, error) {
	client, err := as.Clients.Get(ctx, tenantID, auth.ClientID)
	if err != nil || client.IsPublic() || !client.VerifySecret(auth.ClientSecret) {
		return &token.TokenIntrospection{Active: false}, nil
	}
	return as.Tokens.Introspection(ctx, rawToken)
}
