package auth

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-core/audit"
	"github.com/jrsteele09/go-identity-core/clients"
	"github.com/jrsteele09/go-identity-core/codes"
	"github.com/jrsteele09/go-identity-core/connections"
	"github.com/jrsteele09/go-identity-core/grants"
	"github.com/jrsteele09/go-identity-core/hooks"
	"github.com/jrsteele09/go-identity-core/internal/config"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/internal/metrics"
	"github.com/jrsteele09/go-identity-core/internal/utils"
	"github.com/jrsteele09/go-identity-core/loginsession"
	"github.com/jrsteele09/go-identity-core/oauth2"
	"github.com/jrsteele09/go-identity-core/oauthmodel"
	"github.com/jrsteele09/go-identity-core/sessions"
	"github.com/jrsteele09/go-identity-core/tenants"
	"github.com/jrsteele09/go-identity-core/token"
	"github.com/jrsteele09/go-identity-core/token/refresh"
	"github.com/jrsteele09/go-identity-core/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ResultKind tells the transport what to do with a Result.
type ResultKind int

const (
	// ResultLoginPage renders the login page for LoginSession.
	ResultLoginPage ResultKind = iota + 1
	// ResultRedirect sends the browser to Location.
	ResultRedirect
	// ResultCallback delivers Callback to the client's redirect_uri.
	ResultCallback
)

// CallbackResponse is what the client receives on its redirect_uri, encoded
// according to ResponseMode.
type CallbackResponse struct {
	RedirectURI  string
	ResponseMode oauth2.ResponseModeType
	Params       url.Values
}

// Result is the outcome of one step of a browser flow.
type Result struct {
	Kind         ResultKind
	LoginSession *loginsession.LoginSession
	Location     string
	Callback     *CallbackResponse

	// SessionID is the browser session the auth cookie should carry. Empty
	// while the user is not authenticated.
	SessionID string
}

// Deps holds all dependencies of the AuthorizationService
type Deps struct {
	Tenants       tenants.Repo
	Clients       clients.Repo
	Users         users.UserRepo
	Codes         codes.Repo
	Sessions      sessions.Repo
	LoginSessions *loginsession.Machine
	Grants        *grants.Service
	Tokens        *token.Manager
	Refresh       *refresh.Manager
	Audit         audit.Writer
	Config        config.OAuthConfig

	Hooks       *hooks.Pipeline       // optional, post-login hooks are skipped without it
	Connections *connections.Registry // optional, social login is disabled without it
	Metrics     metrics.Recorder
	RequirePKCE bool
}

// AuthorizationService drives the browser side of the authorization code flow:
// /authorize, login, post-login detours, impersonation and logout.
type AuthorizationService struct {
	Deps
	nowTime func() time.Time
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

func NewAuthorizationService(deps Deps, options ...AuthorizationServiceOption) (*AuthorizationService, error) {
	switch {
	case deps.Tenants == nil:
		return nil, errors.New("[NewAuthorizationService] Tenants repo is required")
	case deps.Clients == nil:
		return nil, errors.New("[NewAuthorizationService] Clients repo is required")
	case deps.Users == nil:
		return nil, errors.New("[NewAuthorizationService] Users repo is required")
	case deps.Codes == nil:
		return nil, errors.New("[NewAuthorizationService] Codes repo is required")
	case deps.Sessions == nil:
		return nil, errors.New("[NewAuthorizationService] Sessions repo is required")
	case deps.LoginSessions == nil:
		return nil, errors.New("[NewAuthorizationService] login session machine is required")
	case deps.Grants == nil:
		return nil, errors.New("[NewAuthorizationService] grant service is required")
	case deps.Tokens == nil:
		return nil, errors.New("[NewAuthorizationService] token manager is required")
	case deps.Refresh == nil:
		return nil, errors.New("[NewAuthorizationService] refresh token manager is required")
	case deps.Audit == nil:
		return nil, errors.New("[NewAuthorizationService] audit writer is required")
	case deps.Config == nil:
		return nil, errors.New("[NewAuthorizationService] config is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopMetrics{}
	}

	as := &AuthorizationService{Deps: deps, nowTime: time.Now}
	for _, opt := range options {
		opt(as)
	}
	return as, nil
}

// AuthorizeRequest is one GET /authorize
type AuthorizeRequest struct {
	Params *oauthmodel.AuthorizationParameters
	// SessionID comes from the auth cookie and may be empty.
	SessionID string
	Info      hooks.RequestInfo
	// SocialCallbackURL is where upstream providers send the browser back to.
	SocialCallbackURL string
}

// Authorize validates the request against the client and creates a login
// session. An active browser session skips the login page; prompt=none without
// one answers the client with login_required.
func (as *AuthorizationService) Authorize(ctx context.Context, req AuthorizeRequest) (*Result, error) {
	params := req.Params
	if params.ClientID == "" {
		return nil, oauthmodel.ErrMissingClientID
	}
	client, err := as.client(ctx, params.TenantID, params.ClientID)
	if err != nil {
		return nil, err
	}
	if err := params.ValidateParametersWithClient(client, as.RequirePKCE); err != nil {
		return nil, err
	}
	if _, err := as.Tenants.Get(ctx, params.TenantID); err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.Authorize] tenant")
	}

	ls, err := as.LoginSessions.Create(ctx, params.TenantID, params.AuthParams())
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.Authorize] create login session")
	}
	as.Metrics.RecordLoginSessionState(string(ls.State))

	if req.SessionID != "" && params.Prompt != oauth2.PromptLogin {
		res, err := as.silentAuth(ctx, ls, client, req.SessionID, req.Info)
		if err != nil || res != nil {
			return res, err
		}
	}

	if params.Prompt == oauth2.PromptNone {
		if err := as.LoginSessions.Fail(ctx, ls, "login_required"); err != nil {
			return nil, err
		}
		as.Metrics.RecordLoginSessionState(string(loginsession.StateFailed))
		return errorCallback(ls, apperrors.CodeLoginRequired, "Login required"), nil
	}

	if params.Connection != "" {
		return as.StartSocialLogin(ctx, ls, client, params.Connection, req.SocialCallbackURL)
	}

	return &Result{Kind: ResultLoginPage, LoginSession: ls}, nil
}

// silentAuth reuses an active browser session. A nil result with no error
// means the session could not be used and the normal login applies.
func (as *AuthorizationService) silentAuth(ctx context.Context, ls *loginsession.LoginSession, client *clients.Client, sessionID string, info hooks.RequestInfo) (*Result, error) {
	entry := as.entry(ls, info, audit.TypeFailedSilentAuth)
	entry.ClientName = client.Name

	session, err := as.Sessions.Get(ctx, ls.TenantID, sessionID)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, errors.Wrap(err, "[AuthorizationService.silentAuth] session")
	}
	now := as.nowTime()
	if session == nil || !session.Active(now) {
		entry.Description = "Login required"
		as.Audit.Log(ctx, entry)
		return nil, nil
	}

	user, err := as.Users.Get(ctx, ls.TenantID, session.UserID)
	if err != nil || user.Blocked {
		entry.UserID = session.UserID
		entry.Description = "User is not available"
		as.Audit.Log(ctx, entry)
		return nil, nil
	}

	idle, err := as.idleSessionLifetime(ctx, ls.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.silentAuth] tenant")
	}
	session.Touch(now.UTC(), info.IP, info.UserAgent, info.ASN, idle)
	if err := as.Sessions.Update(ctx, session); err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.silentAuth] session update")
	}
	if err := as.LoginSessions.Authenticate(ctx, ls, user.ID, session.ID); err != nil {
		return nil, err
	}

	entry.Type = audit.TypeSuccessSilentAuth
	entry.UserID = user.ID
	entry.UserName = user.DisplayName()
	entry.Connection = user.Connection
	entry.Description = "Successful silent authentication"
	as.Audit.Log(ctx, entry)

	return as.afterAuthentication(ctx, ls, client, user, info)
}

// LoginRequest is a username/password submission from the login page.
type LoginRequest struct {
	TenantID string
	State    string // login session id
	Username string
	Password string
	Info     hooks.RequestInfo
}

// Login checks a database connection password for the login session.
func (as *AuthorizationService) Login(ctx context.Context, req LoginRequest) (*Result, error) {
	ls, err := as.LoginSessions.Get(ctx, req.TenantID, req.State)
	if err != nil {
		return nil, err
	}
	if ls.State != loginsession.StatePending {
		return nil, loginsession.ErrInvalidTransition
	}
	client, err := as.client(ctx, ls.TenantID, ls.AuthParams.ClientID)
	if err != nil {
		return nil, err
	}

	entry := as.entry(ls, req.Info, audit.TypeFailedLogin)
	entry.ClientName = client.Name
	entry.UserName = req.Username
	entry.Connection = users.ProviderPassword

	user, err := users.FindPasswordUser(ctx, as.Users, ls.TenantID, req.Username)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.Login] lookup")
	}
	if user == nil || !users.CheckPasswordHash(req.Password, user.PasswordHash) {
		entry.Description = "Wrong email or password."
		as.Audit.Log(ctx, entry)
		as.Metrics.RecordLogin(users.ProviderPassword, false)
		return nil, grants.ErrWrongCredentials
	}
	if user.Blocked {
		entry.UserID = user.ID
		entry.Description = "User is blocked"
		as.Audit.Log(ctx, entry)
		as.Metrics.RecordLogin(users.ProviderPassword, false)
		return nil, grants.ErrUserBlocked
	}

	return as.completeLogin(ctx, ls, client, user, req.Info)
}

// completeLogin opens a browser session for user and moves the login session on.
func (as *AuthorizationService) completeLogin(ctx context.Context, ls *loginsession.LoginSession, client *clients.Client, user *users.User, info hooks.RequestInfo) (*Result, error) {
	tenant, err := as.Tenants.Get(ctx, ls.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.completeLogin] tenant")
	}

	now := as.nowTime().UTC()
	lifetime := as.Config.GetSessionLifetime()
	if tenant.SessionLifetime > 0 {
		lifetime = tenant.SessionLifetime
	}
	session := &sessions.Session{
		ID:                uuid.NewString(),
		TenantID:          ls.TenantID,
		UserID:            user.ID,
		LoginSessionID:    ls.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
		LastInteractionAt: now,
		ExpiresAt:         now.Add(lifetime),
		Device:            sessions.NewDevice(info.IP, info.UserAgent, info.ASN),
	}
	if tenant.IdleSessionLifetime > 0 {
		session.IdleExpiresAt = now.Add(tenant.IdleSessionLifetime)
	}
	if err := as.Sessions.Create(ctx, session); err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.completeLogin] session")
	}
	if err := as.LoginSessions.Authenticate(ctx, ls, user.ID, session.ID); err != nil {
		return nil, err
	}
	as.Metrics.RecordLoginSessionState(string(ls.State))

	user.LoginsCount++
	user.LastLogin = now
	if err := as.Users.Update(ctx, user); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record login")
	}

	entry := as.entry(ls, info, audit.TypeSuccessLogin)
	entry.ClientName = client.Name
	entry.UserID = user.ID
	entry.UserName = user.DisplayName()
	entry.Connection = user.Connection
	entry.Description = "Successful login"
	as.Audit.Log(ctx, entry)
	as.Metrics.RecordLogin(user.Provider, true)

	return as.afterAuthentication(ctx, ls, client, user, info)
}

// afterAuthentication runs the post-login hooks. A hook detour parks the login
// session until the detour page continues it, otherwise a code is issued.
func (as *AuthorizationService) afterAuthentication(ctx context.Context, ls *loginsession.LoginSession, client *clients.Client, user *users.User, info hooks.RequestInfo) (*Result, error) {
	if as.Hooks != nil {
		tenant, err := as.Tenants.Get(ctx, ls.TenantID)
		if err != nil {
			return nil, errors.Wrap(err, "[AuthorizationService.afterAuthentication] tenant")
		}
		res, err := as.Hooks.RunPostLogin(ctx, &hooks.Event{
			Tenant:         tenant,
			Client:         client,
			User:           user,
			Request:        info,
			Scope:          utils.SplitScopes(ls.AuthParams.Scope),
			Audience:       ls.AuthParams.Audience,
			OrganizationID: ls.AuthParams.Organization,
			GrantType:      string(oauth2.AuthorizationCodeGrant),
		})
		if err != nil {
			if failErr := as.LoginSessions.Fail(ctx, ls, "post-login hook denied"); failErr != nil {
				log.Err(failErr).Str("login_session_id", ls.ID).Msg("failed to fail login session")
			}
			return nil, err
		}
		if res.Detour != nil {
			return as.detour(ctx, ls, res.Detour)
		}
	}
	return as.issueCode(ctx, ls, client, info)
}

func (as *AuthorizationService) detour(ctx context.Context, ls *loginsession.LoginSession, d *hooks.Detour) (*Result, error) {
	if err := as.LoginSessions.AwaitContinuation(ctx, ls, loginsession.ContinuationData{
		ContinuationScope:     []string{d.Scope},
		ContinuationReturnURL: "/u/continue?state=" + url.QueryEscape(ls.ID),
	}); err != nil {
		return nil, err
	}
	as.Metrics.RecordLoginSessionState(string(ls.State))

	query := url.Values{}
	for k, v := range d.Query {
		query[k] = append([]string(nil), v...)
	}
	query.Set("state", ls.ID)
	return &Result{
		Kind:         ResultRedirect,
		LoginSession: ls,
		Location:     d.Path + "?" + query.Encode(),
		SessionID:    ls.SessionID,
	}, nil
}

// issueCode stores an authorization code bound to the login session and
// completes it.
func (as *AuthorizationService) issueCode(ctx context.Context, ls *loginsession.LoginSession, client *clients.Client, info hooks.RequestInfo) (*Result, error) {
	id, err := codes.Generate(as.Config.GetCodeGenerationLength())
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.issueCode] generate")
	}
	now := as.nowTime().UTC()
	code := &codes.Code{
		ID:                  id,
		TenantID:            ls.TenantID,
		Type:                codes.TypeAuthorizationCode,
		LoginSessionID:      ls.ID,
		UserID:              ls.UserID,
		RedirectURI:         ls.AuthParams.RedirectURI,
		CodeChallenge:       ls.AuthParams.CodeChallenge,
		CodeChallengeMethod: ls.AuthParams.CodeChallengeMethod,
		Nonce:               ls.AuthParams.Nonce,
		CreatedAt:           now,
		ExpiresAt:           now.Add(as.Config.GetAuthCodeTimeout()),
	}
	if err := as.Codes.Create(ctx, code); err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.issueCode] create")
	}

	if err := as.touchSession(ctx, ls.TenantID, ls.SessionID, client.ID, info); err != nil {
		return nil, err
	}
	if err := as.LoginSessions.Complete(ctx, ls); err != nil {
		return nil, err
	}
	as.Metrics.RecordLoginSessionState(string(ls.State))

	params := url.Values{"code": {code.ID}}
	if ls.AuthParams.State != "" {
		params.Set("state", ls.AuthParams.State)
	}
	return &Result{
		Kind:         ResultCallback,
		LoginSession: ls,
		SessionID:    ls.SessionID,
		Callback: &CallbackResponse{
			RedirectURI:  ls.AuthParams.RedirectURI,
			ResponseMode: ls.AuthParams.ResponseMode,
			Params:       params,
		},
	}, nil
}

// touchSession records clientID and the device against the browser session
// and slides its idle deadline.
func (as *AuthorizationService) touchSession(ctx context.Context, tenantID, sessionID, clientID string, info hooks.RequestInfo) error {
	if sessionID == "" {
		return nil
	}
	session, err := as.Sessions.Get(ctx, tenantID, sessionID)
	if err != nil {
		return errors.Wrap(err, "[AuthorizationService.touchSession] get")
	}
	idle, err := as.idleSessionLifetime(ctx, tenantID)
	if err != nil {
		return errors.Wrap(err, "[AuthorizationService.touchSession] tenant")
	}
	session.AddClient(clientID)
	session.Touch(as.nowTime().UTC(), info.IP, info.UserAgent, info.ASN, idle)
	return errors.Wrap(as.Sessions.Update(ctx, session), "[AuthorizationService.touchSession] update")
}

func (as *AuthorizationService) idleSessionLifetime(ctx context.Context, tenantID string) (time.Duration, error) {
	tenant, err := as.Tenants.Get(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return tenant.IdleSessionLifetime, nil
}

func errorCallback(ls *loginsession.LoginSession, code, description string) *Result {
	params := url.Values{"error": {code}, "error_description": {description}}
	if ls.AuthParams.State != "" {
		params.Set("state", ls.AuthParams.State)
	}
	return &Result{
		Kind:         ResultCallback,
		LoginSession: ls,
		Callback: &CallbackResponse{
			RedirectURI:  ls.AuthParams.RedirectURI,
			ResponseMode: ls.AuthParams.ResponseMode,
			Params:       params,
		},
	}
}

func (as *AuthorizationService) client(ctx context.Context, tenantID, clientID string) (*clients.Client, error) {
	client, err := as.Clients.Get(ctx, tenantID, clientID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, ErrUnknownClient
	}
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.client]")
	}
	return client, nil
}

func (as *AuthorizationService) entry(ls *loginsession.LoginSession, info hooks.RequestInfo, logType audit.Type) audit.Entry {
	return audit.Entry{
		ID:        uuid.NewString(),
		TenantID:  ls.TenantID,
		Type:      logType,
		Date:      as.nowTime().UTC(),
		IP:        info.IP,
		UserAgent: info.UserAgent,
		ClientID:  ls.AuthParams.ClientID,
		Audience:  ls.AuthParams.Audience,
		Scope:     ls.AuthParams.Scope,
	}
}
