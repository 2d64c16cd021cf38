package server_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	fakeclientrepo "github.com/jrsteele09/go-identity-core/clients/fakerepo"
	connfake "github.com/jrsteele09/go-identity-core/connections/repofake"
	hookfake "github.com/jrsteele09/go-identity-core/hooks/repofake"
	"github.com/jrsteele09/go-identity-core/internal/config"
	"github.com/jrsteele09/go-identity-core/rbac"
	rbacfake "github.com/jrsteele09/go-identity-core/rbac/repofake"
	rsfake "github.com/jrsteele09/go-identity-core/resourceservers/repofake"
	"github.com/jrsteele09/go-identity-core/server"
	tenantrepofakes "github.com/jrsteele09/go-identity-core/tenants/repofakes"
	"github.com/jrsteele09/go-identity-core/users"
	fakeuserrepo "github.com/jrsteele09/go-identity-core/users/repofake"
	"github.com/stretchr/testify/require"
)

const testSeed = `
tenants:
  - id: acme
    name: Acme
    issuer: https://acme.example.com/
    session_lifetime: 720h
    inherit_global_permissions_in_organizations: true
clients:
  - client_id: web
    tenant_id: acme
    name: Web
    type: confidential
    client_secret: s3cret
    callbacks: [https://app.example.com/callback]
    rotate_refresh_tokens: true
client_grants:
  - id: cg_1
    tenant_id: acme
    client_id: web
    audience: https://api.example.com/
    scope: [read:things]
resource_servers:
  - id: rs_1
    tenant_id: acme
    identifier: https://api.example.com/
    name: Things API
    scopes:
      - value: read:things
    options:
      enforce_policies: true
      token_dialect: access_token_authz
connections:
  - id: con_1
    tenant_id: acme
    name: google-oauth2
    strategy: oidc
    issuer: https://accounts.google.com
    client_id: google-client
users:
  - user_id: auth2|jane
    tenant_id: acme
    email: jane@example.com
    username: jane
    password: Passw0rd!
roles:
  - id: rol_reader
    tenant_id: acme
    name: Reader
role_permissions:
  - tenant_id: acme
    role_id: rol_reader
    resource_server_identifier: https://api.example.com/
    permission_name: read:things
user_roles:
  - tenant_id: acme
    user_id: auth2|jane
    role_id: rol_reader
hooks:
  - hook_id: hk_1
    tenant_id: acme
    template_id: ensure-username
    enabled: true
    priority: 10
`

type seedConfig struct {
	testConfig
	seedFile string
}

func (c seedConfig) GetSeedFile() string { return c.seedFile }

type bootstrapFixture struct {
	tenants   *tenantrepofakes.FakeTenantRepo
	clients   *fakeclientrepo.FakeClientRepo
	grants    *fakeclientrepo.FakeGrantRepo
	users     *fakeuserrepo.FakeUserRepo
	resources *rsfake.FakeResourceServerRepo
	rbac      *rbacfake.FakeRBACRepo
	conns     *connfake.FakeConnectionRepo
	hooks     *hookfake.FakeTemplateRepo
}

func setupBootstrapFixture() *bootstrapFixture {
	return &bootstrapFixture{
		tenants:   tenantrepofakes.NewFakeTenantRepo(),
		clients:   fakeclientrepo.NewFakeClientRepo(),
		grants:    fakeclientrepo.NewFakeGrantRepo(),
		users:     fakeuserrepo.NewFakeUserRepo(),
		resources: rsfake.NewFakeResourceServerRepo(),
		rbac:      rbacfake.NewFakeRBACRepo(),
		conns:     connfake.NewFakeConnectionRepo(),
		hooks:     hookfake.NewFakeTemplateRepo(),
	}
}

func (f *bootstrapFixture) repos() server.Repos {
	return server.Repos{
		Tenants:         f.tenants,
		Clients:         f.clients,
		ClientGrants:    f.grants,
		Users:           f.users,
		ResourceServers: f.resources,
		RBAC:            f.rbac,
		Connections:     f.conns,
		Hooks:           f.hooks,
	}
}

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestBootstrap_WithoutSeedCreatesAdmin(t *testing.T) {
	ctx := context.Background()
	f := setupBootstrapFixture()
	cfg := seedConfig{testConfig: testConfig{Config: config.New()}}

	require.NoError(t, server.Bootstrap(ctx, cfg, f.repos()))

	tenant, err := f.tenants.Get(ctx, testTenantID)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/", tenant.Issuer)

	list, err := f.users.List(ctx, testTenantID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	admin := list[0]
	require.Equal(t, server.DefaultAdminUsername, admin.Username)
	require.Equal(t, "admin@example.com", admin.Email)
	require.Equal(t, users.ProviderPassword, admin.Provider)
	require.NotEmpty(t, admin.PasswordHash)

	client, err := f.clients.Get(ctx, testTenantID, server.DefaultClientID)
	require.NoError(t, err)
	require.True(t, client.IsPublic())
	require.Contains(t, client.Callbacks, "https://example.com/callback")

	// a second start changes nothing
	require.NoError(t, server.Bootstrap(ctx, cfg, f.repos()))
	list, err = f.users.List(ctx, testTenantID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, admin.PasswordHash, list[0].PasswordHash)
}

func TestBootstrap_AppliesSeed(t *testing.T) {
	ctx := context.Background()
	f := setupBootstrapFixture()
	cfg := seedConfig{testConfig: testConfig{Config: config.New()}, seedFile: writeSeed(t, testSeed)}

	require.NoError(t, server.Bootstrap(ctx, cfg, f.repos()))

	tenant, err := f.tenants.Get(ctx, testTenantID)
	require.NoError(t, err)
	require.Equal(t, "https://acme.example.com/", tenant.Issuer)
	require.Equal(t, 720*time.Hour, tenant.SessionLifetime)
	require.True(t, tenant.InheritGlobalPermissionsInOrganizations)

	client, err := f.clients.Get(ctx, testTenantID, "web")
	require.NoError(t, err)
	require.True(t, client.VerifySecret("s3cret"))
	require.True(t, client.RotateRefreshTokens)

	grant, err := f.grants.Find(ctx, testTenantID, "web", "https://api.example.com/")
	require.NoError(t, err)
	require.Equal(t, []string{"read:things"}, grant.Scope)

	rs, err := f.resources.GetByIdentifier(ctx, testTenantID, "https://api.example.com/")
	require.NoError(t, err)
	require.True(t, rs.Options.EnforcePolicies)
	require.True(t, rs.DeclaresScope("read:things"))

	conn, err := f.conns.Get(ctx, testTenantID, "google-oauth2")
	require.NoError(t, err)
	require.Equal(t, "https://accounts.google.com", conn.Issuer)

	jane, err := f.users.Get(ctx, testTenantID, "auth2|jane")
	require.NoError(t, err)
	require.Equal(t, users.DefaultDatabaseConnection, jane.Connection)
	require.True(t, users.CheckPasswordHash("Passw0rd!", jane.PasswordHash))

	perms, err := f.rbac.ListRolePermissions(ctx, testTenantID, "rol_reader")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	roles, err := f.rbac.ListUserRoles(ctx, testTenantID, "auth2|jane", rbac.GlobalOrganization)
	require.NoError(t, err)
	require.Len(t, roles, 1)

	hooksList, err := f.hooks.List(ctx, testTenantID)
	require.NoError(t, err)
	require.Len(t, hooksList, 1)
	require.Equal(t, "ensure-username", hooksList[0].TemplateID)

	// no admin is generated when a seed is configured
	_, err = f.users.GetByUsername(ctx, testTenantID, users.ProviderPassword, server.DefaultAdminUsername)
	require.Error(t, err)

	// restarting against the same stores is harmless
	require.NoError(t, server.Bootstrap(ctx, cfg, f.repos()))
}

func TestLoadSeed_RejectsUnknownFields(t *testing.T) {
	_, err := server.LoadSeed(writeSeed(t, "tenants:\n  - id: acme\n    issuers: https://typo.example.com/\n"))
	require.Error(t, err)

	_, err = server.LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestApplySeed_UnknownHookTemplate(t *testing.T) {
	f := setupBootstrapFixture()
	seed, err := server.ParseSeed([]byte("hooks:\n  - hook_id: hk_1\n    tenant_id: acme\n    template_id: run-arbitrary-code\n"))
	require.NoError(t, err)

	err = server.ApplySeed(context.Background(), f.repos(), seed)
	require.ErrorContains(t, err, "unknown template")
}
