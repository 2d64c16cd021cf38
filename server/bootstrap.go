package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/jrsteele09/go-identity-core/clients"
	"github.com/jrsteele09/go-identity-core/connections"
	"github.com/jrsteele09/go-identity-core/hooks"
	"github.com/jrsteele09/go-identity-core/internal/config"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/rbac"
	"github.com/jrsteele09/go-identity-core/resourceservers"
	"github.com/jrsteele09/go-identity-core/tenants"
	"github.com/jrsteele09/go-identity-core/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAdminUsername = "admin"
	DefaultClientID      = "default-app"
	DefaultClientName    = "Default Application"
)

// Repos are the stores Bootstrap provisions.
type Repos struct {
	Tenants         tenants.Repo
	Clients         clients.Repo
	ClientGrants    clients.GrantRepo
	Users           users.UserRepo
	ResourceServers resourceservers.Repo
	RBAC            rbac.Repo
	Connections     connections.Repo
	Hooks           hooks.TemplateRepo
}

func (r Repos) validate() error {
	switch {
	case r.Tenants == nil:
		return errors.New("[Bootstrap] tenant repo is required")
	case r.Clients == nil:
		return errors.New("[Bootstrap] client repo is required")
	case r.Users == nil:
		return errors.New("[Bootstrap] user repo is required")
	}
	return nil
}

// Bootstrap makes sure the default tenant exists and then applies the seed
// file. Without a seed an admin user and a public client are created on first
// start; the generated password is only ever logged once.
func Bootstrap(ctx context.Context, cfg config.Config, repos Repos) error {
	if err := repos.validate(); err != nil {
		return err
	}

	tenant, err := ensureDefaultTenant(ctx, cfg, repos.Tenants)
	if err != nil {
		return err
	}

	if path := cfg.GetSeedFile(); path != "" {
		seed, err := LoadSeed(path)
		if err != nil {
			return err
		}
		if err := ApplySeed(ctx, repos, seed); err != nil {
			return err
		}
		log.Info().Str("file", path).Msg("seed applied")
		return nil
	}

	if _, err := ensureDefaultClient(ctx, cfg, repos.Clients, tenant.ID); err != nil {
		return err
	}
	password, err := ensureAdmin(ctx, cfg, repos.Users, tenant.ID)
	if err != nil {
		return err
	}
	if password != "" {
		log.Warn().
			Str("tenant", tenant.ID).
			Str("username", DefaultAdminUsername).
			Str("password", password).
			Msg("created admin user, save this password as it will not be shown again")
	}
	log.Info().
		Str("tenant", tenant.ID).
		Str("issuer", tenant.Issuer).
		Str("discovery", strings.TrimSuffix(cfg.GetBaseURL(), "/")+RouteWellKnownOpenIDConfig).
		Msg("bootstrap complete")
	return nil
}

func ensureDefaultTenant(ctx context.Context, cfg config.Config, repo tenants.Repo) (*tenants.Tenant, error) {
	id := cfg.GetDefaultTenant()
	existing, err := repo.Get(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, errors.Wrap(err, "[Bootstrap] get default tenant")
	}

	tenant := &tenants.Tenant{
		ID:              id,
		Name:            id,
		Issuer:          strings.TrimSuffix(cfg.GetBaseURL(), "/") + "/",
		SessionLifetime: cfg.GetSessionLifetime(),
	}
	if err := repo.Upsert(ctx, tenant); err != nil {
		return nil, errors.Wrap(err, "[Bootstrap] create default tenant")
	}
	log.Info().Str("tenant", id).Msg("created default tenant")
	return tenant, nil
}

func ensureDefaultClient(ctx context.Context, cfg config.Config, repo clients.Repo, tenantID string) (*clients.Client, error) {
	existing, err := repo.List(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "[Bootstrap] list clients")
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	baseURL := strings.TrimSuffix(cfg.GetBaseURL(), "/")
	client := &clients.Client{
		ID:       DefaultClientID,
		TenantID: tenantID,
		Name:     DefaultClientName,
		Type:     clients.ClientTypePublic,
		Callbacks: []string{
			baseURL + "/callback",
			"http://localhost:3000/callback",
		},
		AllowedLogoutURLs:   []string{baseURL, "http://localhost:3000"},
		RotateRefreshTokens: true,
	}
	if err := repo.Upsert(ctx, client); err != nil {
		return nil, errors.Wrap(err, "[Bootstrap] create default client")
	}
	log.Info().Str("client_id", client.ID).Msg("created public client (PKCE)")
	return client, nil
}

// ensureAdmin returns the generated password, or "" when the tenant already has users.
func ensureAdmin(ctx context.Context, cfg config.Config, repo users.UserRepo, tenantID string) (string, error) {
	existing, err := repo.List(ctx, tenantID)
	if err != nil {
		return "", errors.Wrap(err, "[Bootstrap] list users")
	}
	if len(existing) > 0 {
		return "", nil
	}

	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "[Bootstrap] generate password")
	}
	password := base64.RawURLEncoding.EncodeToString(raw)
	hash, err := users.HashPassword(password)
	if err != nil {
		return "", errors.Wrap(err, "[Bootstrap] hash password")
	}

	admin := &users.User{
		TenantID:      tenantID,
		Email:         emailFromBaseURL(DefaultAdminUsername, cfg.GetBaseURL()),
		EmailVerified: true,
		Username:      DefaultAdminUsername,
		Name:          "Administrator",
		Provider:      users.ProviderPassword,
		Connection:    users.DefaultDatabaseConnection,
		PasswordHash:  hash,
	}
	if err := repo.Create(ctx, admin); err != nil {
		return "", errors.Wrap(err, "[Bootstrap] create admin")
	}
	return password, nil
}

// ApplySeed writes every record in seed. Records that already exist are left
// alone so restarting against a durable store is harmless.
func ApplySeed(ctx context.Context, repos Repos, seed *Seed) error {
	for _, t := range seed.Tenants {
		if err := repos.Tenants.Upsert(ctx, t); err != nil {
			return errors.Wrapf(err, "[ApplySeed] tenant %s", t.ID)
		}
	}
	for _, c := range seed.Clients {
		if err := repos.Clients.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "[ApplySeed] client %s", c.ID)
		}
	}
	if len(seed.ClientGrants) > 0 && repos.ClientGrants == nil {
		return errors.New("[ApplySeed] client grants need a grant repo")
	}
	for _, g := range seed.ClientGrants {
		if err := repos.ClientGrants.Upsert(ctx, g); err != nil {
			return errors.Wrapf(err, "[ApplySeed] client grant %s/%s", g.ClientID, g.Audience)
		}
	}
	if len(seed.ResourceServers) > 0 && repos.ResourceServers == nil {
		return errors.New("[ApplySeed] resource servers need a resource server repo")
	}
	for _, rs := range seed.ResourceServers {
		if err := repos.ResourceServers.Upsert(ctx, rs); err != nil {
			return errors.Wrapf(err, "[ApplySeed] resource server %s", rs.Identifier)
		}
	}
	if len(seed.Connections) > 0 && repos.Connections == nil {
		return errors.New("[ApplySeed] connections need a connection repo")
	}
	for _, c := range seed.Connections {
		if err := repos.Connections.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "[ApplySeed] connection %s", c.Name)
		}
	}
	for _, su := range seed.Users {
		if err := seedUser(ctx, repos.Users, su); err != nil {
			return err
		}
	}
	if err := seedRBAC(ctx, repos.RBAC, seed); err != nil {
		return err
	}
	if len(seed.Hooks) > 0 && repos.Hooks == nil {
		return errors.New("[ApplySeed] hooks need a template repo")
	}
	for _, h := range seed.Hooks {
		if _, ok := hooks.ParseTemplateID(h.TemplateID); !ok {
			return errors.Errorf("[ApplySeed] hook %s: unknown template %q", h.ID, h.TemplateID)
		}
		if err := repos.Hooks.Upsert(ctx, h); err != nil {
			return errors.Wrapf(err, "[ApplySeed] hook %s", h.ID)
		}
	}
	return nil
}

func seedUser(ctx context.Context, repo users.UserRepo, su *SeedUser) error {
	user := su.User
	if user.Provider == "" {
		user.Provider = users.ProviderPassword
	}
	if user.Connection == "" && user.Provider == users.ProviderPassword {
		user.Connection = users.DefaultDatabaseConnection
	}
	if su.Password != "" {
		hash, err := users.HashPassword(su.Password)
		if err != nil {
			return errors.Wrapf(err, "[ApplySeed] hash password for %s", user.ID)
		}
		user.PasswordHash = hash
	}

	err := repo.Create(ctx, &user)
	if errors.Is(err, apperrors.ErrConflict) {
		log.Debug().Str("user", user.ID).Msg("seed user already exists")
		return nil
	}
	return errors.Wrapf(err, "[ApplySeed] user %s", user.ID)
}

func seedRBAC(ctx context.Context, repo rbac.Repo, seed *Seed) error {
	if repo == nil {
		if len(seed.Roles)+len(seed.RolePermissions)+len(seed.UserRoles)+len(seed.UserPermissions)+
			len(seed.Organizations)+len(seed.OrganizationMembers) > 0 {
			return errors.New("[ApplySeed] rbac entries need an rbac repo")
		}
		return nil
	}

	for _, role := range seed.Roles {
		if err := repo.CreateRole(ctx, role); err != nil && !errors.Is(err, apperrors.ErrConflict) {
			return errors.Wrapf(err, "[ApplySeed] role %s", role.ID)
		}
	}
	for _, org := range seed.Organizations {
		if err := repo.CreateOrganization(ctx, org); err != nil && !errors.Is(err, apperrors.ErrConflict) {
			return errors.Wrapf(err, "[ApplySeed] organization %s", org.ID)
		}
	}
	for _, p := range seed.RolePermissions {
		if err := repo.AddRolePermission(ctx, p); err != nil {
			return errors.Wrapf(err, "[ApplySeed] role permission %s:%s", p.RoleID, p.PermissionName)
		}
	}
	for _, ur := range seed.UserRoles {
		if err := repo.AssignUserRole(ctx, ur); err != nil {
			return errors.Wrapf(err, "[ApplySeed] user role %s:%s", ur.UserID, ur.RoleID)
		}
	}
	for _, up := range seed.UserPermissions {
		if err := repo.AddUserPermission(ctx, up); err != nil {
			return errors.Wrapf(err, "[ApplySeed] user permission %s:%s", up.UserID, up.PermissionName)
		}
	}
	for _, m := range seed.OrganizationMembers {
		if err := repo.AddOrganizationMember(ctx, m); err != nil {
			return errors.Wrapf(err, "[ApplySeed] organization member %s:%s", m.OrganizationID, m.UserID)
		}
	}
	return nil
}

// emailFromBaseURL turns ("admin", "https://auth.example.com:8443/x") into "admin@auth.example.com".
func emailFromBaseURL(user, baseURL string) string {
	host := strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")
	host, _, _ = strings.Cut(host, "/")
	host, _, _ = strings.Cut(host, ":")
	return fmt.Sprintf("%s@%s", user, host)
}
