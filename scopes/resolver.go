package scopes

import (
	"context"
	"strings"

	"github.com/jrsteele09/go-identity-core/clients"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/rbac"
	"github.com/jrsteele09/go-identity-core/resourceservers"
	"github.com/jrsteele09/go-identity-core/tenants"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// PermissionAdminOrganizations on a global role lets a user act inside any
// organization when the tenant inherits global permissions.
const PermissionAdminOrganizations = "admin:organizations"

// Repos holds the read dependencies of the Resolver
type Repos struct {
	Tenants         tenants.Repo
	ResourceServers resourceservers.Repo
	ClientGrants    clients.GrantRepo
	RBAC            rbac.Repo
}

// Resolver computes the scopes and permissions a token may carry. It has no
// side effects beyond repository reads.
type Resolver struct {
	repos Repos
}

func NewResolver(repos Repos) (*Resolver, error) {
	if repos.Tenants == nil {
		return nil, errors.New("[NewResolver] Tenants repo is required")
	}
	if repos.ResourceServers == nil {
		return nil, errors.New("[NewResolver] ResourceServers repo is required")
	}
	if repos.ClientGrants == nil {
		return nil, errors.New("[NewResolver] ClientGrants repo is required")
	}
	if repos.RBAC == nil {
		return nil, errors.New("[NewResolver] RBAC repo is required")
	}
	return &Resolver{repos: repos}, nil
}

func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	switch req := req.(type) {
	case ClientCredentialsRequest:
		return r.resolveClientCredentials(ctx, req)
	case UserRequest:
		if req.userID == "" {
			return Result{}, ErrMissingUserID
		}
		return r.resolveUser(ctx, req)
	}
	return Result{}, errors.Errorf("[Resolver.Resolve] unsupported request type %T", req)
}

func (r *Resolver) resolveClientCredentials(ctx context.Context, req ClientCredentialsRequest) (Result, error) {
	defaults, others := splitScopes(req.Scopes)

	rs, err := r.resourceServer(ctx, req.TenantID, req.Audience)
	if err != nil {
		return Result{}, errors.Wrap(err, "[Resolver.resolveClientCredentials] resource server")
	}
	if rs == nil {
		return Result{Scopes: defaults, Permissions: []string{}}, nil
	}

	grant, err := r.repos.ClientGrants.Find(ctx, req.TenantID, req.ClientID, req.Audience)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return emptyResult(), nil
	}
	if err != nil {
		return Result{}, errors.Wrap(err, "[Resolver.resolveClientCredentials] client grant")
	}

	granted := newSet(grant.Scope...)
	var unauthorized []string
	for _, s := range others {
		if !granted.has(s) {
			unauthorized = append(unauthorized, s)
		}
	}
	if len(unauthorized) > 0 {
		return Result{}, apperrors.AccessDenied("Client is not authorized for scope(s): " + strings.Join(unauthorized, ", "))
	}

	declared := newSet(rs.ScopeValues()...)
	allGranted := []string{}
	for _, s := range grant.Scope {
		if declared.has(s) {
			allGranted = append(allGranted, s)
		}
	}

	resultScopes := allGranted
	if len(others) > 0 {
		allowed := newSet(allGranted...)
		resultScopes = []string{}
		for _, s := range others {
			if allowed.has(s) {
				resultScopes = append(resultScopes, s)
			}
		}
	}

	if rs.Options.EnforcePolicies && rs.Dialect() == resourceservers.DialectAccessTokenAuthz {
		return Result{Scopes: defaults, Permissions: concat(resultScopes)}, nil
	}
	return Result{Scopes: concat(defaults, resultScopes), Permissions: []string{}}, nil
}

func (r *Resolver) resolveUser(ctx context.Context, req UserRequest) (Result, error) {
	tenant, err := r.repos.Tenants.Get(ctx, req.tenantID)
	if err != nil {
		return Result{}, errors.Wrap(err, "[Resolver.resolveUser] tenant")
	}

	// Runs before the audience is looked at so a forged organization id is
	// rejected even for unknown or unrestricted APIs.
	if req.organizationID != "" {
		if err := r.checkOrganizationAccess(ctx, tenant, req); err != nil {
			return Result{}, err
		}
	}

	defaults, others := splitScopes(req.scopes)
	requested := concat(defaults, others)

	rs, err := r.resourceServer(ctx, req.tenantID, req.audience)
	if err != nil {
		return Result{}, errors.Wrap(err, "[Resolver.resolveUser] resource server")
	}
	if rs == nil || !rs.Options.EnforcePolicies {
		return Result{Scopes: requested, Permissions: []string{}}, nil
	}

	effective, err := r.effectivePermissions(ctx, tenant, req.userID, rs.Identifier, req.organizationID)
	if err != nil {
		return Result{}, errors.Wrap(err, "[Resolver.resolveUser] effective permissions")
	}

	allowed, passThrough := []string{}, []string{}
	for _, s := range others {
		switch {
		case !rs.DeclaresScope(s):
			passThrough = append(passThrough, s)
		case effective.has(s):
			allowed = append(allowed, s)
		}
	}

	if rs.Dialect() == resourceservers.DialectAccessTokenAuthz {
		return Result{Scopes: concat(defaults, passThrough), Permissions: concat(allowed)}, nil
	}
	return Result{Scopes: concat(defaults, allowed, passThrough), Permissions: []string{}}, nil
}

// HasPermission reports whether the user holds permission on audience outside of
// any organization context.
func (r *Resolver) HasPermission(ctx context.Context, tenantID, userID, audience, permission string) (bool, error) {
	tenant, err := r.repos.Tenants.Get(ctx, tenantID)
	if err != nil {
		return false, errors.Wrap(err, "[Resolver.HasPermission] tenant")
	}
	effective, err := r.effectivePermissions(ctx, tenant, userID, audience, rbac.GlobalOrganization)
	if err != nil {
		return false, errors.Wrap(err, "[Resolver.HasPermission] effective permissions")
	}
	return effective.has(permission), nil
}

func (r *Resolver) checkOrganizationAccess(ctx context.Context, tenant *tenants.Tenant, req UserRequest) error {
	member, err := r.repos.RBAC.IsOrganizationMember(ctx, tenant.ID, req.userID, req.organizationID)
	if err != nil {
		return errors.Wrap(err, "[Resolver.checkOrganizationAccess] membership")
	}
	if member {
		return nil
	}

	if tenant.InheritGlobalPermissionsInOrganizations {
		global, err := r.rolePermissions(ctx, tenant.ID, req.userID, rbac.GlobalOrganization, req.audience)
		if err != nil {
			return errors.Wrap(err, "[Resolver.checkOrganizationAccess] global roles")
		}
		if global.has(PermissionAdminOrganizations) {
			return nil
		}
	}
	return apperrors.AccessDenied("User is not a member of the specified organization")
}

// effectivePermissions gathers the permission names the user holds on audience.
// Outside an organization only global assignments count. Inside one, the
// organization's assignments count, plus global ones when the tenant inherits.
func (r *Resolver) effectivePermissions(ctx context.Context, tenant *tenants.Tenant, userID, audience, organizationID string) (set, error) {
	scopesToLoad := []string{organizationID}
	if organizationID != "" && tenant.InheritGlobalPermissionsInOrganizations {
		scopesToLoad = append(scopesToLoad, rbac.GlobalOrganization)
	}

	results := make([]set, 2*len(scopesToLoad))
	g, gctx := errgroup.WithContext(ctx)
	for i, orgID := range scopesToLoad {
		g.Go(func() error {
			direct, err := r.repos.RBAC.ListUserPermissions(gctx, tenant.ID, userID, orgID)
			if err != nil {
				return errors.Wrap(err, "user permissions")
			}
			s := set{}
			for _, p := range direct {
				if p.ResourceServerIdentifier == audience {
					s[p.PermissionName] = struct{}{}
				}
			}
			results[2*i] = s
			return nil
		})
		g.Go(func() error {
			s, err := r.rolePermissions(gctx, tenant.ID, userID, orgID, audience)
			if err != nil {
				return err
			}
			results[2*i+1] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	effective := set{}
	for _, s := range results {
		for p := range s {
			effective[p] = struct{}{}
		}
	}
	return effective, nil
}

// rolePermissions returns the permissions on audience granted by the user's
// roles assigned in exactly organizationID.
func (r *Resolver) rolePermissions(ctx context.Context, tenantID, userID, organizationID, audience string) (set, error) {
	roles, err := r.repos.RBAC.ListUserRoles(ctx, tenantID, userID, organizationID)
	if err != nil {
		return nil, errors.Wrap(err, "user roles")
	}
	perms := set{}
	for _, role := range roles {
		rps, err := r.repos.RBAC.ListRolePermissions(ctx, tenantID, role.RoleID)
		if err != nil {
			return nil, errors.Wrapf(err, "role %s permissions", role.RoleID)
		}
		for _, rp := range rps {
			if rp.ResourceServerIdentifier == audience {
				perms[rp.PermissionName] = struct{}{}
			}
		}
	}
	return perms, nil
}

// resourceServer returns nil without error when no API is registered for the audience.
func (r *Resolver) resourceServer(ctx context.Context, tenantID, audience string) (*resourceservers.ResourceServer, error) {
	if audience == "" {
		return nil, nil
	}
	rs, err := r.repos.ResourceServers.GetByIdentifier(ctx, tenantID, audience)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rs, nil
}
