package auth

import (
	"context"
	"strings"

	"github.com/jrsteele09/go-identity-core/audit"
	"github.com/jrsteele09/go-identity-core/clients"
	"github.com/jrsteele09/go-identity-core/codes"
	"github.com/jrsteele09/go-identity-core/connections"
	"github.com/jrsteele09/go-identity-core/hooks"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/internal/utils"
	"github.com/jrsteele09/go-identity-core/loginsession"
	"github.com/jrsteele09/go-identity-core/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	stateCodeLength   = 24
	nonceLength       = 16
	pkceVerifierBytes = 32 // 43 url-safe characters
)

// StartSocialLogin sends the browser to the upstream provider of connection.
// The oauth2_state code carries the nonce and PKCE verifier for the callback.
func (as *AuthorizationService) StartSocialLogin(ctx context.Context, ls *loginsession.LoginSession, client *clients.Client, connection, callbackURL string) (*Result, error) {
	if as.Connections == nil {
		return nil, ErrUnknownConnection
	}
	if len(client.Connections) > 0 && !utils.Contains(client.Connections, connection) {
		return nil, ErrUnknownConnection
	}
	conn, provider, err := as.Connections.Provider(ctx, ls.TenantID, connection)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, ErrUnknownConnection
	}
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.StartSocialLogin] provider")
	}

	state, err := codes.Generate(stateCodeLength)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.StartSocialLogin] state")
	}
	nonce, err := codes.Generate(nonceLength)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.StartSocialLogin] nonce")
	}
	verifier, err := codes.Generate(pkceVerifierBytes)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.StartSocialLogin] verifier")
	}

	now := as.nowTime().UTC()
	if err := as.Codes.Create(ctx, &codes.Code{
		ID:             state,
		TenantID:       ls.TenantID,
		Type:           codes.TypeOAuth2State,
		LoginSessionID: ls.ID,
		Connection:     conn.Name,
		RedirectURI:    callbackURL,
		Nonce:          nonce,
		CodeVerifier:   verifier,
		CreatedAt:      now,
		ExpiresAt:      now.Add(as.Config.GetAuthCodeTimeout()),
	}); err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.StartSocialLogin] store state")
	}

	return &Result{
		Kind:         ResultRedirect,
		LoginSession: ls,
		Location:     provider.AuthCodeURL(state, nonce, verifier, callbackURL),
	}, nil
}

// SocialCallbackRequest is the upstream provider's redirect back to /login/callback
type SocialCallbackRequest struct {
	TenantID string
	State    string
	Code     string
	// Error is set when the provider refused the login.
	Error string
	Info  hooks.RequestInfo
}

// SocialCallback consumes the state code, exchanges the upstream code and logs
// the resulting identity in, creating the user on first sight.
func (as *AuthorizationService) SocialCallback(ctx context.Context, req SocialCallbackRequest) (*Result, error) {
	state, err := as.Codes.Get(ctx, req.TenantID, req.State, codes.TypeOAuth2State)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.SocialCallback] state")
	}
	if state.Expired(as.nowTime()) {
		return nil, ErrStateExpired
	}
	if err := as.Codes.MarkUsed(ctx, req.TenantID, state.ID, as.nowTime().UTC()); err != nil {
		if apperrors.Is(err, apperrors.ErrCodeAlreadyUsed) {
			return nil, ErrInvalidState
		}
		return nil, errors.Wrap(err, "[AuthorizationService.SocialCallback] mark state used")
	}

	ls, err := as.LoginSessions.Get(ctx, req.TenantID, state.LoginSessionID)
	if err != nil {
		return nil, err
	}
	client, err := as.client(ctx, ls.TenantID, ls.AuthParams.ClientID)
	if err != nil {
		return nil, err
	}

	entry := as.entry(ls, req.Info, audit.TypeFailedLogin)
	entry.ClientName = client.Name
	entry.Connection = state.Connection
	fail := func(description string, err error) (*Result, error) {
		entry.Description = description
		as.Audit.Log(ctx, entry)
		as.Metrics.RecordLogin(state.Connection, false)
		return nil, err
	}

	if req.Error != "" {
		return fail("Upstream error: "+req.Error, ErrUpstreamLogin)
	}
	if as.Connections == nil {
		return nil, ErrUnknownConnection
	}
	conn, provider, err := as.Connections.Provider(ctx, ls.TenantID, state.Connection)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.SocialCallback] provider")
	}
	identity, err := provider.Exchange(ctx, req.Code, state.Nonce, state.CodeVerifier, state.RedirectURI)
	if err != nil {
		log.Err(err).Str("connection", conn.Name).Msg("upstream exchange failed")
		return fail("Upstream exchange failed", ErrUpstreamLogin)
	}

	user, err := as.socialUser(ctx, ls, client, conn, identity, req.Info)
	if err != nil {
		return fail(failureDescription(err), err)
	}
	entry.UserID = user.ID
	if user.Blocked {
		return fail("User is blocked", apperrors.AccessDenied("user is blocked"))
	}
	return as.completeLogin(ctx, ls, client, user, req.Info)
}

// socialUser returns the user for identity, registering it through the
// registration hooks when it is new.
func (as *AuthorizationService) socialUser(ctx context.Context, ls *loginsession.LoginSession, client *clients.Client, conn *connections.Connection, identity *connections.Identity, info hooks.RequestInfo) (*users.User, error) {
	userID := conn.Name + "|" + identity.Subject
	user, err := as.Users.Get(ctx, ls.TenantID, userID)
	if err == nil {
		return user, nil
	}
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, errors.Wrap(err, "[AuthorizationService.socialUser] get")
	}

	now := as.nowTime().UTC()
	user = &users.User{
		ID:            userID,
		TenantID:      ls.TenantID,
		Email:         strings.ToLower(identity.Email),
		EmailVerified: identity.EmailVerified,
		Name:          identity.Name,
		GivenName:     identity.GivenName,
		FamilyName:    identity.FamilyName,
		Nickname:      identity.Nickname,
		Picture:       identity.Picture,
		Provider:      conn.Name,
		Connection:    conn.Name,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var event *hooks.Event
	if as.Hooks != nil {
		tenant, err := as.Tenants.Get(ctx, ls.TenantID)
		if err != nil {
			return nil, errors.Wrap(err, "[AuthorizationService.socialUser] tenant")
		}
		event = &hooks.Event{Tenant: tenant, Client: client, User: user, Request: info}
		if err := as.Hooks.RunPreUserRegistration(ctx, event); err != nil {
			return nil, err
		}
	}
	if err := as.Users.Create(ctx, user); err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.socialUser] create")
	}

	signup := as.entry(ls, info, audit.TypeSuccessSignup)
	signup.ClientName = client.Name
	signup.UserID = user.ID
	signup.UserName = user.DisplayName()
	signup.Connection = conn.Name
	signup.Description = "Successful signup"
	as.Audit.Log(ctx, signup)

	if event != nil {
		as.Hooks.RunPostUserRegistration(ctx, event)
	}
	return user, nil
}

func failureDescription(err error) string {
	if httpErr, ok := apperrors.AsHTTPError(err); ok {
		return httpErr.Description
	}
	return "Internal error"
}
