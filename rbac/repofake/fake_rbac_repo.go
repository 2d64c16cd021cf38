package repofake

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-core/rbac"
)

var _ rbac.Repo = (*FakeRBACRepo)(nil)

type FakeRBACRepo struct {
	roles           map[string]rbac.Role
	rolePermissions []rbac.RolePermission
	userRoles       []rbac.UserRole
	userPermissions []rbac.UserPermission
	organizations   map[string]rbac.Organization
	members         []rbac.UserOrganization
	lock            sync.RWMutex
}

func NewFakeRBACRepo() *FakeRBACRepo {
	return &FakeRBACRepo{
		roles:         make(map[string]rbac.Role),
		organizations: make(map[string]rbac.Organization),
	}
}

func (r *FakeRBACRepo) CreateRole(_ context.Context, role *rbac.Role) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if role.ID == "" {
		role.ID = uuid.New().String()
	}
	r.roles[role.TenantID+"/"+role.ID] = *role
	return nil
}

func (r *FakeRBACRepo) AddRolePermission(_ context.Context, permission rbac.RolePermission) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.rolePermissions = append(r.rolePermissions, permission)
	return nil
}

func (r *FakeRBACRepo) AssignUserRole(_ context.Context, userRole rbac.UserRole) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.userRoles = append(r.userRoles, userRole)
	return nil
}

func (r *FakeRBACRepo) AddUserPermission(_ context.Context, permission rbac.UserPermission) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.userPermissions = append(r.userPermissions, permission)
	return nil
}

func (r *FakeRBACRepo) CreateOrganization(_ context.Context, org *rbac.Organization) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	r.organizations[org.TenantID+"/"+org.ID] = *org
	return nil
}

func (r *FakeRBACRepo) AddOrganizationMember(_ context.Context, member rbac.UserOrganization) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.members = append(r.members, member)
	return nil
}

func (r *FakeRBACRepo) ListUserRoles(_ context.Context, tenantID, userID, organizationID string) ([]rbac.UserRole, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	var out []rbac.UserRole
	for _, ur := range r.userRoles {
		if ur.TenantID == tenantID && ur.UserID == userID && ur.OrganizationID == organizationID {
			out = append(out, ur)
		}
	}
	return out, nil
}

func (r *FakeRBACRepo) ListRolePermissions(_ context.Context, tenantID, roleID string) ([]rbac.RolePermission, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	var out []rbac.RolePermission
	for _, rp := range r.rolePermissions {
		if rp.TenantID == tenantID && rp.RoleID == roleID {
			out = append(out, rp)
		}
	}
	return out, nil
}

func (r *FakeRBACRepo) ListUserPermissions(_ context.Context, tenantID, userID, organizationID string) ([]rbac.UserPermission, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	var out []rbac.UserPermission
	for _, up := range r.userPermissions {
		if up.TenantID == tenantID && up.UserID == userID && up.OrganizationID == organizationID {
			out = append(out, up)
		}
	}
	return out, nil
}

func (r *FakeRBACRepo) IsOrganizationMember(_ context.Context, tenantID, userID, organizationID string) (bool, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, m := range r.members {
		if m.TenantID == tenantID && m.UserID == userID && m.OrganizationID == organizationID {
			return true, nil
		}
	}
	return false, nil
}
