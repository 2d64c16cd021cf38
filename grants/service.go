package grants

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-core/audit"
	"github.com/jrsteele09/go-identity-core/clients"
	"github.com/jrsteele09/go-identity-core/codes"
	"github.com/jrsteele09/go-identity-core/hooks"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/internal/metrics"
	"github.com/jrsteele09/go-identity-core/internal/utils"
	"github.com/jrsteele09/go-identity-core/loginsession"
	"github.com/jrsteele09/go-identity-core/oauth2"
	"github.com/jrsteele09/go-identity-core/scopes"
	"github.com/jrsteele09/go-identity-core/tenants"
	"github.com/jrsteele09/go-identity-core/token"
	"github.com/jrsteele09/go-identity-core/token/refresh"
	"github.com/jrsteele09/go-identity-core/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// PermissionImpersonate on the management audience allows switching to another user.
const PermissionImpersonate = "users:impersonate"

var (
	ErrInvalidAuthorizationCode = apperrors.InvalidGrant("Invalid authorization code")
	ErrCodeExpired              = apperrors.New(http.StatusForbidden, apperrors.CodeInvalidGrant, "Code expired")
	ErrWrongCredentials         = apperrors.New(http.StatusForbidden, apperrors.CodeInvalidGrant, "Wrong email or password.")
	ErrUserBlocked              = apperrors.AccessDenied("user is blocked")
	ErrImpersonationDenied      = apperrors.AccessDenied("Access Denied")
	ErrTargetUserNotFound       = apperrors.InvalidRequest("Target user not found")
)

type Deps struct {
	Tenants       tenants.Repo
	Clients       clients.Repo
	Users         users.UserRepo
	Codes         codes.Repo
	LoginSessions *loginsession.Machine
	Resolver      *scopes.Resolver
	Hooks         *hooks.Pipeline
	Tokens        *token.Manager
	Refresh       *refresh.Manager
	Audit         audit.Writer
	Metrics       metrics.Recorder

	// ManagementAudience is where users:impersonate is looked up.
	ManagementAudience string
}

// Service exchanges grants for tokens.
type Service struct {
	Deps
	nowTime func() time.Time
}

type Option func(*Service)

func WithNowTime(now func() time.Time) Option {
	return func(s *Service) {
		s.nowTime = now
	}
}

func NewService(deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Tenants == nil:
		return nil, errors.New("[grants.NewService] tenant repo is required")
	case deps.Clients == nil:
		return nil, errors.New("[grants.NewService] client repo is required")
	case deps.Users == nil:
		return nil, errors.New("[grants.NewService] user repo is required")
	case deps.Codes == nil:
		return nil, errors.New("[grants.NewService] code repo is required")
	case deps.LoginSessions == nil:
		return nil, errors.New("[grants.NewService] login session machine is required")
	case deps.Resolver == nil:
		return nil, errors.New("[grants.NewService] scope resolver is required")
	case deps.Tokens == nil:
		return nil, errors.New("[grants.NewService] token manager is required")
	case deps.Refresh == nil:
		return nil, errors.New("[grants.NewService] refresh token manager is required")
	case deps.Audit == nil:
		return nil, errors.New("[grants.NewService] audit writer is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopMetrics{}
	}
	s := &Service{Deps: deps, nowTime: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Exchange runs the handler for req's grant type.
func (s *Service) Exchange(ctx context.Context, req Request) (*oauth2.TokenResponse, error) {
	var (
		resp *oauth2.TokenResponse
		err  error
	)
	switch req := req.(type) {
	case AuthorizationCodeRequest:
		resp, err = s.exchangeAuthorizationCode(ctx, req)
	case ClientCredentialsRequest:
		resp, err = s.exchangeClientCredentials(ctx, req)
	case RefreshTokenRequest:
		resp, err = s.exchangeRefreshToken(ctx, req)
	case PasswordRequest:
		resp, err = s.exchangePassword(ctx, req)
	default:
		return nil, errors.Errorf("[Service.Exchange] unsupported request type %T", req)
	}

	grant := string(req.GrantType())
	if err != nil {
		code := apperrors.CodeServerError
		if httpErr, ok := apperrors.AsHTTPError(err); ok {
			code = httpErr.Code
		}
		s.Metrics.RecordTokenFailure(grant, code)
		return nil, err
	}
	s.Metrics.RecordTokenIssued(grant)
	return resp, nil
}

func (s *Service) exchangeAuthorizationCode(ctx context.Context, req AuthorizationCodeRequest) (*oauth2.TokenResponse, error) {
	entry := s.entry(req, audit.TypeFailedExchangeAuthCodeForAccessToken)
	fail := func(description string, err error) error {
		entry.Description = description
		s.Audit.Log(ctx, entry)
		return err
	}

	client, err := s.Clients.Get(ctx, req.Tenant(), req.Client().ClientID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, fail("Invalid client", apperrors.InvalidClientCredentials())
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Service.exchangeAuthorizationCode] client")
	}
	entry.ClientName = client.Name

	code, err := s.Codes.Get(ctx, req.Tenant(), req.Code, codes.TypeAuthorizationCode)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, fail("Invalid authorization code", apperrors.InvalidClientCredentials())
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Service.exchangeAuthorizationCode] code")
	}
	entry.UserID = code.UserID

	if code.Used() {
		return nil, fail("Invalid authorization code", ErrInvalidAuthorizationCode)
	}
	now := s.nowTime()
	if code.Expired(now) {
		return nil, fail("Code expired", ErrCodeExpired)
	}

	ls, err := s.LoginSessions.Get(ctx, req.Tenant(), code.LoginSessionID)
	if err != nil {
		return nil, fail("Login session not found", apperrors.InvalidClientCredentials().WithCause(err))
	}
	if ls.AuthParams.ClientID != client.ID {
		return nil, fail("Invalid client credentials", apperrors.InvalidClientCredentials())
	}

	secret := req.Client().ClientSecret
	switch {
	case code.CodeChallenge != "":
		if !oauth2.VerifyCodeChallenge(code.CodeChallengeMethod, code.CodeChallenge, req.CodeVerifier) {
			return nil, fail("Invalid code_verifier", apperrors.InvalidClientCredentials())
		}
		if secret != "" && !client.VerifySecret(secret) {
			return nil, fail("Invalid client credentials", apperrors.InvalidClientCredentials())
		}
	case client.IsPublic() || !client.VerifySecret(secret):
		return nil, fail("Invalid client credentials", apperrors.InvalidClientCredentials())
	}

	if code.RedirectURI != "" && req.RedirectURI != code.RedirectURI {
		return nil, fail("Invalid redirect uri", apperrors.InvalidClientCredentials())
	}

	if err := s.Codes.MarkUsed(ctx, req.Tenant(), code.ID, now); err != nil {
		if apperrors.Is(err, apperrors.ErrCodeAlreadyUsed) {
			return nil, fail("Invalid authorization code", ErrInvalidAuthorizationCode)
		}
		return nil, errors.Wrap(err, "[Service.exchangeAuthorizationCode] MarkUsed")
	}

	user, err := s.Users.Get(ctx, req.Tenant(), code.UserID)
	if err != nil {
		return nil, fail("User not found", apperrors.InvalidClientCredentials().WithCause(err))
	}

	resp, err := s.issueUserTokens(ctx, issueParams{
		request:        req,
		client:         client,
		user:           user,
		grantType:      scopes.GrantAuthorizationCode,
		audience:       ls.AuthParams.Audience,
		scopes:         utils.SplitScopes(ls.AuthParams.Scope),
		organizationID: ls.AuthParams.Organization,
		sessionID:      ls.SessionID,
		actorID:        ls.ActorID,
		nonce:          code.Nonce,
		issueRefresh:   true,
	})
	if err != nil {
		return nil, fail(failureDescription(err), err)
	}

	entry.Type = audit.TypeSuccessExchangeAuthCodeForAccessToken
	entry.UserName = user.DisplayName()
	entry.Audience = ls.AuthParams.Audience
	entry.Scope = resp.Scope
	entry.Description = "Authorization Code for Access Token"
	s.Audit.Log(ctx, entry)
	return resp, nil
}

func (s *Service) exchangeClientCredentials(ctx context.Context, req ClientCredentialsRequest) (*oauth2.TokenResponse, error) {
	entry := s.entry(req, audit.TypeFailedExchangeClientCredentials)
	fail := func(description string, err error) error {
		entry.Description = description
		s.Audit.Log(ctx, entry)
		return err
	}

	client, err := s.authenticateClient(ctx, req, true)
	if err != nil {
		return nil, fail("Invalid client credentials", err)
	}
	entry.ClientName = client.Name

	tenant, err := s.Tenants.Get(ctx, req.Tenant())
	if err != nil {
		return nil, errors.Wrap(err, "[Service.exchangeClientCredentials] tenant")
	}
	audience := req.Audience
	if audience == "" {
		audience = tenant.Audience
	}
	entry.Audience = audience

	result, err := s.Resolver.Resolve(ctx, scopes.ClientCredentialsRequest{
		TenantID: req.Tenant(),
		ClientID: client.ID,
		Audience: audience,
		Scopes:   req.Scopes,
	})
	if err != nil {
		return nil, fail(failureDescription(err), err)
	}

	event := &hooks.Event{
		Tenant:         tenant,
		Client:         client,
		Request:        req.Info(),
		Scope:          result.Scopes,
		Audience:       audience,
		OrganizationID: req.Organization,
		GrantType:      string(req.GrantType()),
	}
	custom, err := s.runCredentialsExchange(ctx, event)
	if err != nil {
		return nil, fail(failureDescription(err), err)
	}

	accessToken, err := s.Tokens.CreateAccessToken(ctx, token.AccessTokenParams{
		TenantID:       req.Tenant(),
		Subject:        client.ID,
		ClientID:       client.ID,
		Audience:       audience,
		Scopes:         result.Scopes,
		Permissions:    result.Permissions,
		OrganizationID: req.Organization,
		CustomClaims:   custom.AccessTokenClaims,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.exchangeClientCredentials] CreateAccessToken")
	}

	entry.Type = audit.TypeSuccessExchangeClientCredentials
	entry.Scope = utils.JoinScopes(result.Scopes)
	entry.Description = "Client Credentials for Access Token"
	s.Audit.Log(ctx, entry)

	return &oauth2.TokenResponse{
		AccessToken: &accessToken,
		TokenType:   oauth2.TokenTypeBearer,
		ExpiresIn:   int(s.Tokens.AccessTokenExpiry().Seconds()),
		Scope:       utils.JoinScopes(result.Scopes),
	}, nil
}

func (s *Service) exchangeRefreshToken(ctx context.Context, req RefreshTokenRequest) (*oauth2.TokenResponse, error) {
	entry := s.entry(req, audit.TypeFailedExchangeRefreshToken)
	fail := func(description string, err error) error {
		entry.Description = description
		s.Audit.Log(ctx, entry)
		return err
	}

	client, err := s.authenticateClient(ctx, req, false)
	if err != nil {
		return nil, fail("Invalid client credentials", err)
	}
	entry.ClientName = client.Name

	rt, err := s.Refresh.Lookup(ctx, req.Tenant(), req.RefreshToken, client.ID)
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidRefreshToken):
		return nil, fail("Invalid refresh token", apperrors.InvalidGrant("Unknown or invalid refresh token."))
	case apperrors.Is(err, apperrors.ErrRefreshTokenExpired):
		return nil, fail("Refresh token expired", apperrors.InvalidGrant("Refresh token expired"))
	case err != nil:
		return nil, errors.Wrap(err, "[Service.exchangeRefreshToken] Exchange")
	}
	entry.UserID = rt.UserID

	user, err := s.Users.Get(ctx, req.Tenant(), rt.UserID)
	if err != nil {
		return nil, fail("User not found", apperrors.InvalidGrant("Unknown or invalid refresh token.").WithCause(err))
	}
	if user.Blocked {
		return nil, fail("User is blocked", ErrUserBlocked)
	}

	var audience string
	var granted []string
	if len(rt.ResourceServers) > 0 {
		audience = rt.ResourceServers[0].Audience
		granted = utils.SplitScopes(rt.ResourceServers[0].Scopes)
	}
	requested := granted
	if len(req.Scopes) > 0 {
		for _, sc := range req.Scopes {
			if !utils.Contains(granted, sc) {
				return nil, fail("Scope not granted", apperrors.New(http.StatusBadRequest, apperrors.CodeInvalidScope, "Requested scope exceeds the original grant"))
			}
		}
		requested = req.Scopes
	}

	resp, err := s.issueUserTokens(ctx, issueParams{
		request:        req,
		client:         client,
		user:           user,
		grantType:      scopes.GrantRefreshToken,
		audience:       audience,
		scopes:         requested,
		organizationID: rt.OrganizationID,
		sessionID:      rt.SessionID,
	})
	if err != nil {
		return nil, fail(failureDescription(err), err)
	}

	// Rotation happens last so a rejected request leaves the presented token usable.
	info := req.Info()
	next, err := s.Refresh.Rotate(ctx, rt, refresh.Device{
		LastIP:        info.IP,
		LastUserAgent: info.UserAgent,
	})
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidRefreshToken):
		return nil, fail("Invalid refresh token", apperrors.InvalidGrant("Unknown or invalid refresh token."))
	case err != nil:
		return nil, errors.Wrap(err, "[Service.exchangeRefreshToken] Rotate")
	}
	resp.RefreshToken = &next.ID

	entry.Type = audit.TypeSuccessExchangeRefreshToken
	entry.UserName = user.DisplayName()
	entry.Audience = audience
	entry.Scope = resp.Scope
	entry.Description = "Refresh Token for Access Token"
	s.Audit.Log(ctx, entry)
	return resp, nil
}

func (s *Service) exchangePassword(ctx context.Context, req PasswordRequest) (*oauth2.TokenResponse, error) {
	entry := s.entry(req, audit.TypeFailedLogin)
	entry.Connection = users.ProviderPassword
	fail := func(description string, err error) error {
		entry.Description = description
		s.Audit.Log(ctx, entry)
		return err
	}

	client, err := s.authenticateClient(ctx, req, false)
	if err != nil {
		return nil, fail("Invalid client credentials", err)
	}
	entry.ClientName = client.Name

	user, err := users.FindPasswordUser(ctx, s.Users, req.Tenant(), req.Username)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.exchangePassword] lookup")
	}
	if user == nil || !users.CheckPasswordHash(req.Password, user.PasswordHash) {
		entry.UserName = req.Username
		return nil, fail("Wrong email or password.", ErrWrongCredentials)
	}
	entry.UserID = user.ID
	if user.Blocked {
		return nil, fail("User is blocked", ErrUserBlocked)
	}

	resp, err := s.issueUserTokens(ctx, issueParams{
		request:        req,
		client:         client,
		user:           user,
		grantType:      scopes.GrantPassword,
		audience:       req.Audience,
		scopes:         req.Scopes,
		organizationID: req.Organization,
		issueRefresh:   true,
	})
	if err != nil {
		return nil, fail(failureDescription(err), err)
	}

	entry.Type = audit.TypeSuccessExchangePasswordForAccessToken
	entry.UserName = user.DisplayName()
	entry.Audience = req.Audience
	entry.Scope = resp.Scope
	entry.Description = "Password for Access Token"
	s.Audit.Log(ctx, entry)
	return resp, nil
}

// authenticateClient resolves the client and checks its secret. Public clients
// pass without a secret unless secretRequired is set.
func (s *Service) authenticateClient(ctx context.Context, req Request, secretRequired bool) (*clients.Client, error) {
	auth := req.Client()
	client, err := s.Clients.Get(ctx, req.Tenant(), auth.ClientID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.InvalidClientCredentials()
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Service.authenticateClient] client")
	}
	if client.IsPublic() {
		if secretRequired {
			return nil, apperrors.InvalidClientCredentials()
		}
		return client, nil
	}
	if !client.VerifySecret(auth.ClientSecret) {
		return nil, apperrors.InvalidClientCredentials()
	}
	return client, nil
}

type issueParams struct {
	request        Request
	client         *clients.Client
	user           *users.User
	grantType      scopes.GrantType
	audience       string
	scopes         []string
	organizationID string
	sessionID      string
	actorID        string
	nonce          string
	issueRefresh   bool
}

// issueUserTokens resolves scopes for the user, runs the credentials-exchange
// hooks and mints the access, ID and refresh tokens the scopes call for.
func (s *Service) issueUserTokens(ctx context.Context, p issueParams) (*oauth2.TokenResponse, error) {
	tenantID := p.request.Tenant()
	tenant, err := s.Tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.issueUserTokens] tenant")
	}
	audience := p.audience
	if audience == "" {
		audience = tenant.Audience
	}

	userReq, err := scopes.NewUserRequest(tenantID, p.user.PrimaryID(), p.grantType)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.issueUserTokens] NewUserRequest")
	}
	result, err := s.Resolver.Resolve(ctx, userReq.
		WithAudience(audience).
		WithScopes(p.scopes...).
		WithOrganization(p.organizationID))
	if err != nil {
		return nil, err
	}

	event := &hooks.Event{
		Tenant:         tenant,
		Client:         p.client,
		User:           p.user,
		Request:        p.request.Info(),
		Scope:          result.Scopes,
		Audience:       audience,
		OrganizationID: p.organizationID,
		GrantType:      string(p.request.GrantType()),
	}
	custom, err := s.runCredentialsExchange(ctx, event)
	if err != nil {
		return nil, err
	}
	user := event.User

	accessToken, err := s.Tokens.CreateAccessToken(ctx, token.AccessTokenParams{
		TenantID:       tenantID,
		Subject:        user.ID,
		ClientID:       p.client.ID,
		Audience:       audience,
		Scopes:         result.Scopes,
		Permissions:    result.Permissions,
		OrganizationID: p.organizationID,
		SessionID:      p.sessionID,
		ActorSubject:   p.actorID,
		CustomClaims:   custom.AccessTokenClaims,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.issueUserTokens] CreateAccessToken")
	}
	resp := &oauth2.TokenResponse{
		AccessToken: &accessToken,
		TokenType:   oauth2.TokenTypeBearer,
		ExpiresIn:   int(s.Tokens.AccessTokenExpiry().Seconds()),
		Scope:       utils.JoinScopes(result.Scopes),
	}

	if utils.Contains(result.Scopes, "openid") {
		idToken, err := s.Tokens.CreateIDToken(ctx, token.IDTokenParams{
			TenantID:     tenantID,
			User:         user,
			ClientID:     p.client.ID,
			Nonce:        p.nonce,
			SessionID:    p.sessionID,
			Scopes:       result.Scopes,
			CustomClaims: custom.IDTokenClaims,
		})
		if err != nil {
			return nil, errors.Wrap(err, "[Service.issueUserTokens] CreateIDToken")
		}
		resp.IdToken = &idToken
	}

	if p.issueRefresh && utils.Contains(p.scopes, oauth2.OfflineAccessScope) {
		info := p.request.Info()
		rt, err := s.Refresh.Create(ctx, refresh.CreateParams{
			TenantID:       tenantID,
			SessionID:      p.sessionID,
			UserID:         user.ID,
			ClientID:       p.client.ID,
			OrganizationID: p.organizationID,
			ResourceServers: []refresh.ResourceServerGrant{
				{Audience: audience, Scopes: utils.JoinScopes(p.scopes)},
			},
			Rotating: p.client.RotateRefreshTokens,
			Device: refresh.Device{
				InitialIP:        info.IP,
				InitialUserAgent: info.UserAgent,
				LastIP:           info.IP,
				LastUserAgent:    info.UserAgent,
			},
		})
		if err != nil {
			return nil, errors.Wrap(err, "[Service.issueUserTokens] refresh.Create")
		}
		resp.RefreshToken = &rt.ID
	}
	return resp, nil
}

func (s *Service) runCredentialsExchange(ctx context.Context, event *hooks.Event) (*hooks.CredentialsExchangeResult, error) {
	if s.Hooks == nil {
		return &hooks.CredentialsExchangeResult{}, nil
	}
	return s.Hooks.RunCredentialsExchange(ctx, event)
}

func (s *Service) entry(req Request, logType audit.Type) audit.Entry {
	info := req.Info()
	return audit.Entry{
		ID:        uuid.NewString(),
		TenantID:  req.Tenant(),
		Type:      logType,
		Date:      s.nowTime().UTC(),
		IP:        info.IP,
		UserAgent: info.UserAgent,
		ClientID:  req.Client().ClientID,
	}
}

func failureDescription(err error) string {
	if httpErr, ok := apperrors.AsHTTPError(err); ok {
		return httpErr.Description
	}
	log.Err(err).Msg("token exchange failed")
	return "Internal error"
}
