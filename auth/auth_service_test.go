package auth_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-identity-core/audit"
	auditfake "github.com/jrsteele09/go-identity-core/audit/repofake"
	"github.com/jrsteele09/go-identity-core/auth"
	"github.com/jrsteele09/go-identity-core/clients"
	fakeclientrepo "github.com/jrsteele09/go-identity-core/clients/fakerepo"
	fakecoderepo "github.com/jrsteele09/go-identity-core/codes/repofake"
	"github.com/jrsteele09/go-identity-core/connections"
	connfake "github.com/jrsteele09/go-identity-core/connections/repofake"
	"github.com/jrsteele09/go-identity-core/grants"
	"github.com/jrsteele09/go-identity-core/hooks"
	hookfake "github.com/jrsteele09/go-identity-core/hooks/repofake"
	"github.com/jrsteele09/go-identity-core/internal/config"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/loginsession"
	lsfake "github.com/jrsteele09/go-identity-core/loginsession/repofake"
	"github.com/jrsteele09/go-identity-core/oauth2"
	"github.com/jrsteele09/go-identity-core/oauthmodel"
	"github.com/jrsteele09/go-identity-core/rbac"
	rbacfake "github.com/jrsteele09/go-identity-core/rbac/repofake"
	rsfake "github.com/jrsteele09/go-identity-core/resourceservers/repofake"
	"github.com/jrsteele09/go-identity-core/scopes"
	"github.com/jrsteele09/go-identity-core/sessions"
	fakesessionrepo "github.com/jrsteele09/go-identity-core/sessions/repofake"
	"github.com/jrsteele09/go-identity-core/tenants"
	tenantrepofakes "github.com/jrsteele09/go-identity-core/tenants/repofakes"
	"github.com/jrsteele09/go-identity-core/token"
	"github.com/jrsteele09/go-identity-core/token/refresh"
	refreshrepofake "github.com/jrsteele09/go-identity-core/token/refresh/repofake"
	"github.com/jrsteele09/go-identity-core/users"
	fakeuserrepo "github.com/jrsteele09/go-identity-core/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	testTenantID      = "acme"
	testMgmtAudience  = "https://acme.example.com/api/v2/"
	testCallback      = "https://app.example.com/callback"
	testLogoutURL     = "https://app.example.com/"
	testSecret        = "s3cret"
	testCodeChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	testCodeVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testPassword      = "Passw0rd!"
	testAdminUserID   = "auth2|admin"
	testJaneUserID    = "auth2|jane"
	testTargetUserID  = "auth2|target"
	testSocialCode    = "upstream-code"
)

type testFixture struct {
	users         *fakeuserrepo.FakeUserRepo
	sessions      *fakesessionrepo.FakeSessionRepo
	loginSessions *lsfake.FakeLoginSessionRepo
	refresh       *refreshrepofake.FakeRefreshTokenRepo
	rbac          *rbacfake.FakeRBACRepo
	audit         *auditfake.MemorySink
	registry      *hooks.Registry
	tenants       *tenantrepofakes.FakeTenantRepo
	provider      *connfake.FakeProvider
	signer        token.Signer
	tokens        *token.Manager
	grants        *grants.Service
	service       *auth.AuthorizationService
	now           time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	ctx := context.Background()

	f := &testFixture{
		users:         fakeuserrepo.NewFakeUserRepo(),
		sessions:      fakesessionrepo.NewFakeSessionRepo(),
		loginSessions: lsfake.NewFakeLoginSessionRepo(),
		refresh:       refreshrepofake.NewFakeRefreshTokenRepo(),
		rbac:          rbacfake.NewFakeRBACRepo(),
		audit:         auditfake.NewMemorySink(),
		registry:      hooks.NewRegistry(),
		provider: &connfake.FakeProvider{
			AuthorizeURL: "https://accounts.example.com/authorize",
			Code:         testSocialCode,
			Identity:     connections.Identity{Subject: "108", Email: "Sam@Gmail.com", EmailVerified: true, Name: "Sam"},
		},
		now: time.Now(),
	}
	nowTime := func() time.Time { return f.now }

	tenantRepo := tenantrepofakes.NewFakeTenantRepo()
	require.NoError(t, tenantRepo.Upsert(ctx, &tenants.Tenant{ID: testTenantID, Issuer: "https://acme.example.com/"}))
	f.tenants = tenantRepo

	clientRepo := fakeclientrepo.NewFakeClientRepo()
	for _, c := range []*clients.Client{
		{ID: "web", TenantID: testTenantID, Name: "Web", Type: clients.ClientTypeConfidential, Secret: testSecret, Callbacks: []string{testCallback}, AllowedLogoutURLs: []string{testLogoutURL}},
		{ID: "spa", TenantID: testTenantID, Name: "SPA", Type: clients.ClientTypePublic, Callbacks: []string{testCallback}},
	} {
		require.NoError(t, clientRepo.Upsert(ctx, c))
	}

	hash, err := users.HashPassword(testPassword)
	require.NoError(t, err)
	for _, u := range []*users.User{
		{ID: testAdminUserID, TenantID: testTenantID, Email: "admin@example.com", Username: "admin", Name: "Admin", Provider: users.ProviderPassword, PasswordHash: hash},
		{ID: testJaneUserID, TenantID: testTenantID, Email: "jane@example.com", Username: "jane", Name: "Jane", Provider: users.ProviderPassword, PasswordHash: hash},
		{ID: testTargetUserID, TenantID: testTenantID, Email: "target@example.com", Name: "Target", Provider: users.ProviderPassword},
	} {
		require.NoError(t, f.users.Create(ctx, u))
	}

	resolver, err := scopes.NewResolver(scopes.Repos{
		Tenants:         tenantRepo,
		ResourceServers: rsfake.NewFakeResourceServerRepo(),
		ClientGrants:    fakeclientrepo.NewFakeGrantRepo(),
		RBAC:            f.rbac,
	})
	require.NoError(t, err)

	machine, err := loginsession.NewMachine(f.loginSessions, loginsession.WithNowTime(nowTime))
	require.NoError(t, err)

	f.signer, err = token.NewSigner("HS256", "k1", "test-signing-secret-of-reasonable-length")
	require.NoError(t, err)
	f.tokens, err = token.NewManager(tenantRepo, f.signer, token.WithNowTime(nowTime))
	require.NoError(t, err)

	refreshManager, err := refresh.NewManager(f.refresh, config.OAuth{}, refresh.WithNowTime(nowTime))
	require.NoError(t, err)

	pipeline, err := hooks.NewPipeline(f.registry, hookfake.NewFakeTemplateRepo(), f.users)
	require.NoError(t, err)

	codeRepo := fakecoderepo.NewFakeCodeRepo()
	f.grants, err = grants.NewService(grants.Deps{
		Tenants:            tenantRepo,
		Clients:            clientRepo,
		Users:              f.users,
		Codes:              codeRepo,
		LoginSessions:      machine,
		Resolver:           resolver,
		Hooks:              pipeline,
		Tokens:             f.tokens,
		Refresh:            refreshManager,
		Audit:              f.audit,
		ManagementAudience: testMgmtAudience,
	}, grants.WithNowTime(nowTime))
	require.NoError(t, err)

	connRepo := connfake.NewFakeConnectionRepo()
	require.NoError(t, connRepo.Upsert(ctx, &connections.Connection{ID: "con_1", TenantID: testTenantID, Name: "google-oauth2", Strategy: connections.StrategyOIDC}))
	registry, err := connections.NewRegistry(connRepo, connections.WithProviderFactory(func(context.Context, *connections.Connection) (connections.Provider, error) {
		return f.provider, nil
	}))
	require.NoError(t, err)

	f.service, err = auth.NewAuthorizationService(auth.Deps{
		Tenants:       tenantRepo,
		Clients:       clientRepo,
		Users:         f.users,
		Codes:         codeRepo,
		Sessions:      f.sessions,
		LoginSessions: machine,
		Grants:        f.grants,
		Tokens:        f.tokens,
		Refresh:       refreshManager,
		Audit:         f.audit,
		Config:        config.OAuth{},
		Hooks:         pipeline,
		Connections:   registry,
	}, auth.WithNowTime(nowTime))
	require.NoError(t, err)
	return f
}

func (f *testFixture) authorize(t *testing.T, clientID string, extra url.Values, sessionID string) (*auth.Result, error) {
	t.Helper()
	query := url.Values{
		"client_id":     {clientID},
		"response_type": {"code"},
		"redirect_uri":  {testCallback},
		"scope":         {"openid profile email offline_access"},
		"state":         {"xyz"},
		"nonce":         {"n-0S6"},
	}
	if clientID == "spa" {
		query.Set("code_challenge", testCodeChallenge)
		query.Set("code_challenge_method", "S256")
	}
	for k, v := range extra {
		query[k] = v
	}
	return f.service.Authorize(context.Background(), auth.AuthorizeRequest{
		Params:            oauthmodel.ParseAuthorizationParameters(testTenantID, query),
		SessionID:         sessionID,
		Info:              hooks.RequestInfo{IP: "10.0.0.1", UserAgent: "test"},
		SocialCallbackURL: "https://acme.example.com/login/callback",
	})
}

// login runs /authorize and a password login for username, returning the login result.
func (f *testFixture) login(t *testing.T, clientID, username string) *auth.Result {
	t.Helper()
	res, err := f.authorize(t, clientID, nil, "")
	require.NoError(t, err)
	require.Equal(t, auth.ResultLoginPage, res.Kind)

	res, err = f.service.Login(context.Background(), auth.LoginRequest{
		TenantID: testTenantID,
		State:    res.LoginSession.ID,
		Username: username,
		Password: testPassword,
	})
	require.NoError(t, err)
	return res
}

func (f *testFixture) exchangeCode(t *testing.T, res *auth.Result, clientID string) *oauth2.TokenResponse {
	t.Helper()
	require.Equal(t, auth.ResultCallback, res.Kind)
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {res.Callback.Params.Get("code")},
		"redirect_uri": {testCallback},
	}
	creds := grants.ClientAuth{ClientID: clientID}
	if clientID == "spa" {
		form.Set("code_verifier", testCodeVerifier)
	} else {
		creds.ClientSecret = testSecret
	}
	req, err := grants.ParseRequest(testTenantID, form, creds, hooks.RequestInfo{})
	require.NoError(t, err)
	resp, err := f.grants.Exchange(context.Background(), req)
	require.NoError(t, err)
	return resp
}

func (f *testFixture) claims(t *testing.T, raw string) jwt.MapClaims {
	t.Helper()
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, f.signer.VerificationKey)
	require.NoError(t, err)
	return claims
}

func (f *testFixture) storedLoginSession(t *testing.T, id string) *loginsession.LoginSession {
	t.Helper()
	ls, err := f.loginSessions.Get(context.Background(), testTenantID, id)
	require.NoError(t, err)
	return ls
}

func (f *testFixture) detourAdminTo(path string) {
	f.registry.OnPostLogin(func(_ context.Context, ev *hooks.Event, api *hooks.PostLoginAPI) error {
		if ev.User.ID == testAdminUserID || ev.User.ID == testJaneUserID {
			api.Redirect.SendUserTo(path, nil)
		}
		return nil
	})
}

func (f *testFixture) grantImpersonation(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.rbac.CreateRole(ctx, &rbac.Role{ID: "support", TenantID: testTenantID, Name: "Support"}))
	require.NoError(t, f.rbac.AddRolePermission(ctx, rbac.RolePermission{
		TenantID:                 testTenantID,
		RoleID:                   "support",
		ResourceServerIdentifier: testMgmtAudience,
		PermissionName:           grants.PermissionImpersonate,
	}))
	require.NoError(t, f.rbac.AssignUserRole(ctx, rbac.UserRole{TenantID: testTenantID, UserID: testAdminUserID, RoleID: "support"}))
}

func TestNewAuthorizationService_RequiresDeps(t *testing.T) {
	_, err := auth.NewAuthorizationService(auth.Deps{})
	require.Error(t, err)
}

func TestAuthorize_Validation(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.authorize(t, "unknown", nil, "")
	require.ErrorIs(t, err, auth.ErrUnknownClient)

	_, err = f.authorize(t, "web", url.Values{"redirect_uri": {"https://evil.example.com/cb"}}, "")
	require.ErrorIs(t, err, oauthmodel.ErrInvalidRedirectUri)

	_, err = f.authorize(t, "spa", url.Values{"code_challenge": {""}, "code_challenge_method": {""}}, "")
	require.ErrorIs(t, err, oauthmodel.ErrPKCERequired)
}

func TestAuthorize_RendersLoginPage(t *testing.T) {
	f := setupTestFixture(t)

	res, err := f.authorize(t, "web", nil, "")
	require.NoError(t, err)
	require.Equal(t, auth.ResultLoginPage, res.Kind)
	require.Equal(t, loginsession.StatePending, res.LoginSession.State)
	require.Equal(t, "web", res.LoginSession.AuthParams.ClientID)
	require.NotEmpty(t, res.LoginSession.CSRFToken)
	require.Empty(t, res.SessionID)
}

func TestLogin_IssuesExchangeableCode(t *testing.T) {
	f := setupTestFixture(t)

	res := f.login(t, "spa", "jane")
	require.Equal(t, auth.ResultCallback, res.Kind)
	require.Equal(t, testCallback, res.Callback.RedirectURI)
	require.Equal(t, oauth2.QueryResponseMode, res.Callback.ResponseMode)
	require.Equal(t, "xyz", res.Callback.Params.Get("state"))
	require.NotEmpty(t, res.SessionID)
	require.Equal(t, loginsession.StateCompleted, f.storedLoginSession(t, res.LoginSession.ID).State)

	session, err := f.sessions.Get(context.Background(), testTenantID, res.SessionID)
	require.NoError(t, err)
	require.Equal(t, testJaneUserID, session.UserID)
	require.Equal(t, []string{"spa"}, session.ClientIDs)

	resp := f.exchangeCode(t, res, "spa")
	require.NotNil(t, resp.RefreshToken)
	require.Equal(t, testJaneUserID, f.claims(t, *resp.AccessToken)["sub"])
	require.Equal(t, "n-0S6", f.claims(t, *resp.IdToken)["nonce"])

	logins := f.audit.OfType(audit.TypeSuccessLogin)
	require.Len(t, logins, 1)
	require.Equal(t, testJaneUserID, logins[0].UserID)

	user, err := f.users.Get(context.Background(), testTenantID, testJaneUserID)
	require.NoError(t, err)
	require.Equal(t, 1, user.LoginsCount)
}

func TestLogin_AcceptsEmail(t *testing.T) {
	f := setupTestFixture(t)
	res := f.login(t, "web", "jane@example.com")
	require.Equal(t, auth.ResultCallback, res.Kind)
}

func TestLogin_WrongPassword(t *testing.T) {
	f := setupTestFixture(t)
	res, err := f.authorize(t, "web", nil, "")
	require.NoError(t, err)

	_, err = f.service.Login(context.Background(), auth.LoginRequest{
		TenantID: testTenantID,
		State:    res.LoginSession.ID,
		Username: "jane",
		Password: "wrong",
	})
	require.ErrorIs(t, err, grants.ErrWrongCredentials)

	failed := f.audit.OfType(audit.TypeFailedLogin)
	require.Len(t, failed, 1)
	require.Equal(t, "Wrong email or password.", failed[0].Description)

	// the user can try again
	require.Equal(t, loginsession.StatePending, f.storedLoginSession(t, res.LoginSession.ID).State)
	_, err = f.service.Login(context.Background(), auth.LoginRequest{
		TenantID: testTenantID,
		State:    res.LoginSession.ID,
		Username: "jane",
		Password: testPassword,
	})
	require.NoError(t, err)
}

func TestLogin_UnknownLoginSession(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.service.Login(context.Background(), auth.LoginRequest{TenantID: testTenantID, State: "missing"})
	require.ErrorIs(t, err, loginsession.ErrNotFound)

	httpErr, ok := apperrors.AsHTTPError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, httpErr.Status)
}

func TestAuthorize_SilentAuthWithSession(t *testing.T) {
	f := setupTestFixture(t)
	first := f.login(t, "web", "jane")

	res, err := f.authorize(t, "spa", url.Values{"prompt": {"none"}}, first.SessionID)
	require.NoError(t, err)
	require.Equal(t, auth.ResultCallback, res.Kind)
	require.NotEmpty(t, res.Callback.Params.Get("code"))
	require.Equal(t, first.SessionID, res.SessionID)
	require.Len(t, f.audit.OfType(audit.TypeSuccessSilentAuth), 1)

	session, err := f.sessions.Get(context.Background(), testTenantID, first.SessionID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"web", "spa"}, session.ClientIDs)
}

func TestAuthorize_SilentAuthSlidesIdleDeadline(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tenants.Upsert(ctx, &tenants.Tenant{ID: testTenantID, Issuer: "https://acme.example.com/", IdleSessionLifetime: 30 * time.Minute}))

	first := f.login(t, "web", "jane")
	session, err := f.sessions.Get(ctx, testTenantID, first.SessionID)
	require.NoError(t, err)
	require.Equal(t, sessions.NewDevice("10.0.0.1", "test", ""), session.Device)
	originalIdle := session.IdleExpiresAt

	f.now = f.now.Add(20 * time.Minute)
	res, err := f.service.Authorize(ctx, auth.AuthorizeRequest{
		Params: oauthmodel.ParseAuthorizationParameters(testTenantID, url.Values{
			"client_id":     {"web"},
			"response_type": {"code"},
			"redirect_uri":  {testCallback},
			"scope":         {"openid"},
			"state":         {"xyz"},
			"prompt":        {"none"},
		}),
		SessionID: first.SessionID,
		Info:      hooks.RequestInfo{IP: "10.0.0.2", UserAgent: "phone", ASN: "AS64500"},
	})
	require.NoError(t, err)
	require.Equal(t, auth.ResultCallback, res.Kind)
	require.NotEmpty(t, res.Callback.Params.Get("code"))

	session, err = f.sessions.Get(ctx, testTenantID, first.SessionID)
	require.NoError(t, err)
	require.True(t, session.IdleExpiresAt.After(originalIdle))
	require.True(t, session.LastInteractionAt.Equal(f.now))
	require.Equal(t, "10.0.0.1", session.Device.InitialIP)
	require.Equal(t, "10.0.0.2", session.Device.LastIP)
	require.Equal(t, "phone", session.Device.LastUserAgent)
	require.Equal(t, "AS64500", session.Device.LastASN)

	// past the first idle deadline, still inside the slid one
	f.now = f.now.Add(20 * time.Minute)
	require.True(t, f.now.After(originalIdle))
	res, err = f.authorize(t, "web", url.Values{"prompt": {"none"}}, first.SessionID)
	require.NoError(t, err)
	require.NotEmpty(t, res.Callback.Params.Get("code"))

	// idle for longer than the lifetime
	f.now = f.now.Add(31 * time.Minute)
	res, err = f.authorize(t, "web", url.Values{"prompt": {"none"}}, first.SessionID)
	require.NoError(t, err)
	require.Equal(t, "login_required", res.Callback.Params.Get("error"))
}

func TestAuthorize_PromptNoneWithoutSession(t *testing.T) {
	f := setupTestFixture(t)

	res, err := f.authorize(t, "web", url.Values{"prompt": {"none"}}, "expired-session")
	require.NoError(t, err)
	require.Equal(t, auth.ResultCallback, res.Kind)
	require.Equal(t, "login_required", res.Callback.Params.Get("error"))
	require.Equal(t, "xyz", res.Callback.Params.Get("state"))
	require.Equal(t, loginsession.StateFailed, f.storedLoginSession(t, res.LoginSession.ID).State)
	require.Len(t, f.audit.OfType(audit.TypeFailedSilentAuth), 1)
}

func TestConfirmationView_IsReadOnly(t *testing.T) {
	f := setupTestFixture(t)
	f.detourAdminTo("/u/confirm-email-change")

	res := f.login(t, "web", "jane")
	require.Equal(t, auth.ResultRedirect, res.Kind)
	require.True(t, strings.HasPrefix(res.Location, "/u/confirm-email-change?"))
	require.Contains(t, res.Location, "state="+res.LoginSession.ID)

	before := f.storedLoginSession(t, res.LoginSession.ID)
	require.Equal(t, loginsession.StateAwaitingContinuation, before.State)
	writes := f.loginSessions.Writes()

	for range 3 {
		page, err := f.service.ConfirmationView(context.Background(), testTenantID, res.LoginSession.ID)
		require.NoError(t, err)
		require.Equal(t, testJaneUserID, page.User.ID)
		require.Equal(t, "/u/continue?state="+res.LoginSession.ID, page.ContinueURL)
	}

	after := f.storedLoginSession(t, res.LoginSession.ID)
	require.Equal(t, before.State, after.State)
	require.JSONEq(t, string(before.StateData), string(after.StateData))
	require.Equal(t, writes, f.loginSessions.Writes())

	// only the explicit continuation finalizes
	done, err := f.service.Continue(context.Background(), testTenantID, res.LoginSession.ID, auth.ScopeConfirmEmailChange, hooks.RequestInfo{})
	require.NoError(t, err)
	require.Equal(t, auth.ResultCallback, done.Kind)
	require.Equal(t, loginsession.StateCompleted, f.storedLoginSession(t, res.LoginSession.ID).State)

	_, err = f.service.Continue(context.Background(), testTenantID, res.LoginSession.ID, auth.ScopeConfirmEmailChange, hooks.RequestInfo{})
	require.ErrorIs(t, err, loginsession.ErrNotAwaiting)
}

func TestContinue_ScopeMustMatch(t *testing.T) {
	f := setupTestFixture(t)
	f.detourAdminTo("/u/forms/terms")

	res := f.login(t, "web", "jane")
	_, err := f.service.ConfirmationView(context.Background(), testTenantID, res.LoginSession.ID)
	require.ErrorIs(t, err, loginsession.ErrScopeNotAllowed)

	_, err = f.service.Continue(context.Background(), testTenantID, res.LoginSession.ID, auth.ScopeImpersonate, hooks.RequestInfo{})
	require.ErrorIs(t, err, loginsession.ErrScopeNotAllowed)

	page, err := f.service.ContinuationView(context.Background(), testTenantID, res.LoginSession.ID, auth.ScopeForms)
	require.NoError(t, err)
	require.Equal(t, testJaneUserID, page.User.ID)
}

func TestContinue_ExpiredLoginSession(t *testing.T) {
	f := setupTestFixture(t)
	f.detourAdminTo("/u/confirm-email-change")
	res := f.login(t, "web", "jane")

	f.now = f.now.Add(48 * time.Hour)
	_, err := f.service.Continue(context.Background(), testTenantID, res.LoginSession.ID, auth.ScopeConfirmEmailChange, hooks.RequestInfo{})
	require.ErrorIs(t, err, loginsession.ErrExpired)
	require.Equal(t, loginsession.StateFailed, f.storedLoginSession(t, res.LoginSession.ID).State)
}

func TestImpersonation_SwitchMintsActClaim(t *testing.T) {
	f := setupTestFixture(t)
	f.grantImpersonation(t)
	f.detourAdminTo("/u/impersonate")

	res := f.login(t, "web", "admin")
	require.Equal(t, auth.ResultRedirect, res.Kind)
	require.True(t, strings.HasPrefix(res.Location, "/u/impersonate?"))

	page, err := f.service.ImpersonationView(context.Background(), testTenantID, res.LoginSession.ID)
	require.NoError(t, err)
	var candidateIDs []string
	for _, u := range page.Candidates {
		candidateIDs = append(candidateIDs, u.ID)
	}
	require.ElementsMatch(t, []string{testJaneUserID, testTargetUserID}, candidateIDs)

	done, err := f.service.SwitchImpersonation(context.Background(), testTenantID, res.LoginSession.ID, testTargetUserID, hooks.RequestInfo{})
	require.NoError(t, err)

	resp := f.exchangeCode(t, done, "web")
	access := f.claims(t, *resp.AccessToken)
	require.Equal(t, testTargetUserID, access["sub"])
	require.Equal(t, map[string]any{"sub": testAdminUserID}, access["act"])

	var impersonations []audit.Entry
	for _, e := range f.audit.OfType(audit.TypeSuccessLogin) {
		if strings.Contains(e.Description, "impersonated by") {
			impersonations = append(impersonations, e)
		}
	}
	require.Len(t, impersonations, 1)
	require.Equal(t, "Target impersonated by Admin", impersonations[0].Description)
}

func TestImpersonation_ContinueKeepsOperator(t *testing.T) {
	f := setupTestFixture(t)
	f.grantImpersonation(t)
	f.detourAdminTo("/u/impersonate")

	res := f.login(t, "web", "admin")
	done, err := f.service.ContinueImpersonation(context.Background(), testTenantID, res.LoginSession.ID, hooks.RequestInfo{})
	require.NoError(t, err)

	access := f.claims(t, *f.exchangeCode(t, done, "web").AccessToken)
	require.Equal(t, testAdminUserID, access["sub"])
	require.NotContains(t, access, "act")
}

func TestImpersonation_Denied(t *testing.T) {
	f := setupTestFixture(t)
	f.detourAdminTo("/u/impersonate")

	res := f.login(t, "web", "jane")
	_, err := f.service.ImpersonationView(context.Background(), testTenantID, res.LoginSession.ID)
	require.ErrorIs(t, err, grants.ErrImpersonationDenied)

	_, err = f.service.SwitchImpersonation(context.Background(), testTenantID, res.LoginSession.ID, testTargetUserID, hooks.RequestInfo{})
	require.ErrorIs(t, err, grants.ErrImpersonationDenied)
	httpErr, _ := apperrors.AsHTTPError(err)
	require.Equal(t, http.StatusForbidden, httpErr.Status)
	require.Equal(t, "Access Denied", httpErr.Description)
	require.Len(t, f.audit.OfType(audit.TypeFailedImpersonation), 1)
	require.Equal(t, loginsession.StateAwaitingContinuation, f.storedLoginSession(t, res.LoginSession.ID).State)
}

func TestImpersonation_UnknownTarget(t *testing.T) {
	f := setupTestFixture(t)
	f.grantImpersonation(t)
	f.detourAdminTo("/u/impersonate")

	res := f.login(t, "web", "admin")
	_, err := f.service.SwitchImpersonation(context.Background(), testTenantID, res.LoginSession.ID, "auth2|nobody", hooks.RequestInfo{})
	require.ErrorIs(t, err, grants.ErrTargetUserNotFound)
	httpErr, _ := apperrors.AsHTTPError(err)
	require.Equal(t, http.StatusBadRequest, httpErr.Status)
}

func TestImpersonation_RequiresDetour(t *testing.T) {
	f := setupTestFixture(t)
	f.grantImpersonation(t)

	res := f.login(t, "web", "admin")
	_, err := f.service.SwitchImpersonation(context.Background(), testTenantID, res.LoginSession.ID, testTargetUserID, hooks.RequestInfo{})
	require.ErrorIs(t, err, loginsession.ErrNotAwaiting)
}

func TestSocialLogin_CreatesUserAndConsumesState(t *testing.T) {
	f := setupTestFixture(t)

	res, err := f.authorize(t, "web", url.Values{"connection": {"google-oauth2"}}, "")
	require.NoError(t, err)
	require.Equal(t, auth.ResultRedirect, res.Kind)
	require.True(t, strings.HasPrefix(res.Location, f.provider.AuthorizeURL))

	location, err := url.Parse(res.Location)
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	require.NotEmpty(t, location.Query().Get("nonce"))

	callback := auth.SocialCallbackRequest{TenantID: testTenantID, State: state, Code: testSocialCode}
	done, err := f.service.SocialCallback(context.Background(), callback)
	require.NoError(t, err)
	require.Equal(t, auth.ResultCallback, done.Kind)

	user, err := f.users.Get(context.Background(), testTenantID, "google-oauth2|108")
	require.NoError(t, err)
	require.Equal(t, "sam@gmail.com", user.Email)
	require.Equal(t, "google-oauth2", user.Connection)
	require.Len(t, f.audit.OfType(audit.TypeSuccessSignup), 1)
	require.Len(t, f.audit.OfType(audit.TypeSuccessLogin), 1)

	_, err = f.service.SocialCallback(context.Background(), callback)
	require.ErrorIs(t, err, auth.ErrInvalidState)
}

func TestSocialLogin_UpstreamFailure(t *testing.T) {
	f := setupTestFixture(t)

	res, err := f.authorize(t, "web", url.Values{"connection": {"google-oauth2"}}, "")
	require.NoError(t, err)
	location, err := url.Parse(res.Location)
	require.NoError(t, err)

	_, err = f.service.SocialCallback(context.Background(), auth.SocialCallbackRequest{
		TenantID: testTenantID,
		State:    location.Query().Get("state"),
		Code:     "forged",
	})
	require.ErrorIs(t, err, auth.ErrUpstreamLogin)
	require.Len(t, f.audit.OfType(audit.TypeFailedLogin), 1)

	_, err = f.authorize(t, "web", url.Values{"connection": {"github"}}, "")
	require.ErrorIs(t, err, auth.ErrUnknownConnection)
}

func TestLogout_RevokesSessionAndRefreshTokens(t *testing.T) {
	f := setupTestFixture(t)
	res := f.login(t, "web", "jane")
	f.exchangeCode(t, res, "web")
	require.Equal(t, 1, f.refresh.Len())

	out, err := f.service.Logout(context.Background(), auth.LogoutRequest{
		TenantID:  testTenantID,
		ClientID:  "web",
		ReturnTo:  testLogoutURL,
		SessionID: res.SessionID,
	})
	require.NoError(t, err)
	require.Equal(t, testLogoutURL, out.ReturnTo)

	session, err := f.sessions.Get(context.Background(), testTenantID, res.SessionID)
	require.NoError(t, err)
	require.NotNil(t, session.RevokedAt)
	require.Equal(t, 0, f.refresh.Len())

	logouts := f.audit.OfType(audit.TypeSuccessLogout)
	require.Len(t, logouts, 1)
	require.Equal(t, testJaneUserID, logouts[0].UserID)

	// a revoked session no longer allows silent auth
	silent, err := f.authorize(t, "web", url.Values{"prompt": {"none"}}, res.SessionID)
	require.NoError(t, err)
	require.Equal(t, "login_required", silent.Callback.Params.Get("error"))
}

func TestLogout_ReturnToMustBeAllowed(t *testing.T) {
	f := setupTestFixture(t)
	res := f.login(t, "web", "jane")

	_, err := f.service.Logout(context.Background(), auth.LogoutRequest{
		TenantID:  testTenantID,
		ClientID:  "web",
		ReturnTo:  "https://evil.example.com/",
		SessionID: res.SessionID,
	})
	require.ErrorIs(t, err, auth.ErrInvalidReturnTo)

	session, err := f.sessions.Get(context.Background(), testTenantID, res.SessionID)
	require.NoError(t, err)
	require.Nil(t, session.RevokedAt)
}

func TestLogout_UnknownClientIsOK(t *testing.T) {
	f := setupTestFixture(t)
	res := f.login(t, "web", "jane")

	out, err := f.service.Logout(context.Background(), auth.LogoutRequest{
		TenantID:  testTenantID,
		ClientID:  "nope",
		SessionID: res.SessionID,
	})
	require.NoError(t, err)
	require.Empty(t, out.ReturnTo)

	session, err := f.sessions.Get(context.Background(), testTenantID, res.SessionID)
	require.NoError(t, err)
	require.Nil(t, session.RevokedAt)
	require.Empty(t, f.audit.OfType(audit.TypeSuccessLogout))
}

func TestUserInfoAndRevoke(t *testing.T) {
	f := setupTestFixture(t)
	resp := f.exchangeCode(t, f.login(t, "web", "jane"), "web")
	ctx := context.Background()

	info, err := f.service.UserInfo(ctx, *resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, testJaneUserID, info["sub"])
	require.Equal(t, "jane@example.com", info["email"])
	require.Equal(t, "jane", info["preferred_username"])

	creds := grants.ClientAuth{ClientID: "web", ClientSecret: testSecret}
	require.ErrorIs(t, f.service.RevokeToken(ctx, testTenantID, *resp.AccessToken, "", grants.ClientAuth{ClientID: "web", ClientSecret: "bad"}), apperrors.InvalidClientCredentials())
	require.NoError(t, f.service.RevokeToken(ctx, testTenantID, *resp.AccessToken, "", creds))
	_, err = f.service.UserInfo(ctx, *resp.AccessToken)
	require.ErrorIs(t, err, auth.ErrInactiveToken)

	require.NoError(t, f.service.RevokeToken(ctx, testTenantID, *resp.RefreshToken, "refresh_token", creds))
	require.Equal(t, 0, f.refresh.Len())
	require.NoError(t, f.service.RevokeToken(ctx, testTenantID, "already-gone", "refresh_token", creds))

	introspection, err := f.service.Introspect(ctx, testTenantID, *resp.AccessToken, creds)
	require.NoError(t, err)
	require.False(t, introspection.Active)
}
