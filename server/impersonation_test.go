package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jrsteele09/go-identity-core/audit"
	"github.com/jrsteele09/go-identity-core/grants"
	"github.com/jrsteele09/go-identity-core/hooks"
	"github.com/jrsteele09/go-identity-core/rbac"
	"github.com/stretchr/testify/require"
)

func (f *testFixture) grantImpersonation(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.rbac.CreateRole(ctx, &rbac.Role{ID: "support", TenantID: testTenantID, Name: "Support"}))
	require.NoError(t, f.rbac.AddRolePermission(ctx, rbac.RolePermission{
		TenantID:                 testTenantID,
		RoleID:                   "support",
		ResourceServerIdentifier: testMgmtAudience,
		PermissionName:           grants.PermissionImpersonate,
	}))
	require.NoError(t, f.rbac.AssignUserRole(ctx, rbac.UserRole{TenantID: testTenantID, UserID: userID, RoleID: "support"}))
}

// detourToImpersonation sends every password login through /u/impersonate.
func (f *testFixture) detourToImpersonation() {
	f.registry.OnPostLogin(func(_ context.Context, _ *hooks.Event, api *hooks.PostLoginAPI) error {
		api.Redirect.SendUserTo("/u/impersonate", nil)
		return nil
	})
}

// loginToImpersonation logs username in and returns the login session id the
// detour redirect carries.
func (f *testFixture) loginToImpersonation(t *testing.T, username string) string {
	t.Helper()
	rec := f.submitLogin(f.loginPage(t, nil), username, testPassword)
	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/u/impersonate", location.Path)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func requireCallbackWithCode(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, testCallback, location.Scheme+"://"+location.Host+location.Path)
	require.NotEmpty(t, location.Query().Get("code"))
	require.Equal(t, "xyz", location.Query().Get("state"))
}

func TestImpersonatePage_ListsCandidates(t *testing.T) {
	f := setupTestFixture(t, testConfig{})
	f.grantImpersonation(t, "auth2|admin")
	f.detourToImpersonation()
	state := f.loginToImpersonation(t, "admin")

	rec := f.do(httptest.NewRequest(http.MethodGet, "/u/impersonate?state="+url.QueryEscape(state), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "Signed in as Admin")
	require.Contains(t, body, "Target")
	require.Contains(t, body, `value="auth2|target"`)
}

func TestImpersonateSwitch_StateInQuery(t *testing.T) {
	f := setupTestFixture(t, testConfig{})
	f.grantImpersonation(t, "auth2|admin")
	f.detourToImpersonation()
	state := f.loginToImpersonation(t, "admin")

	rec := f.do(postForm("/u/impersonate/switch?state="+url.QueryEscape(state), url.Values{"user_id": {"auth2|target"}}))
	requireCallbackWithCode(t, rec)
}

func TestImpersonateSwitch_StateInForm(t *testing.T) {
	f := setupTestFixture(t, testConfig{})
	f.grantImpersonation(t, "auth2|admin")
	f.detourToImpersonation()
	state := f.loginToImpersonation(t, "admin")

	rec := f.do(postForm("/u/impersonate/switch", url.Values{"state": {state}, "user_id": {"auth2|target"}}))
	requireCallbackWithCode(t, rec)
}

func TestImpersonateContinue_StateInQuery(t *testing.T) {
	f := setupTestFixture(t, testConfig{})
	f.grantImpersonation(t, "auth2|admin")
	f.detourToImpersonation()
	state := f.loginToImpersonation(t, "admin")

	rec := f.do(postForm("/u/impersonate/continue?state="+url.QueryEscape(state), url.Values{}))
	requireCallbackWithCode(t, rec)
}

func TestImpersonateSwitch_Denied(t *testing.T) {
	f := setupTestFixture(t, testConfig{})
	f.detourToImpersonation()
	state := f.loginToImpersonation(t, "jane")

	rec := f.do(httptest.NewRequest(http.MethodGet, "/u/impersonate?state="+url.QueryEscape(state), nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "Access Denied")

	rec = f.do(postForm("/u/impersonate/switch?state="+url.QueryEscape(state), url.Values{"user_id": {"auth2|target"}}))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "Access Denied")
	require.Len(t, f.audit.OfType(audit.TypeFailedImpersonation), 1)
}

func TestImpersonateSwitch_MissingTarget(t *testing.T) {
	f := setupTestFixture(t, testConfig{})
	f.grantImpersonation(t, "auth2|admin")
	f.detourToImpersonation()
	state := f.loginToImpersonation(t, "admin")

	rec := f.do(postForm("/u/impersonate/switch?state="+url.QueryEscape(state), url.Values{}))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(postForm("/u/impersonate/switch?state="+url.QueryEscape(state), url.Values{"user_id": {"auth2|nobody"}}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Target user not found")

	rec = f.do(postForm("/u/impersonate/switch", url.Values{"user_id": {"auth2|target"}}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Missing state")
}
