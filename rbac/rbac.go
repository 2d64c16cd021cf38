package rbac

import "context"

// GlobalOrganization marks a role or permission assignment that is not tied to
// any organization.
const GlobalOrganization = ""

type Role struct {
	ID          string `json:"id" yaml:"id"`
	TenantID    string `json:"tenant_id" yaml:"tenant_id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// RolePermission binds a role to a permission on one resource server.
type RolePermission struct {
	TenantID                 string `json:"tenant_id" yaml:"tenant_id"`
	RoleID                   string `json:"role_id" yaml:"role_id"`
	ResourceServerIdentifier string `json:"resource_server_identifier" yaml:"resource_server_identifier"`
	PermissionName           string `json:"permission_name" yaml:"permission_name"`
}

type UserRole struct {
	TenantID       string `json:"tenant_id" yaml:"tenant_id"`
	UserID         string `json:"user_id" yaml:"user_id"`
	RoleID         string `json:"role_id" yaml:"role_id"`
	OrganizationID string `json:"organization_id" yaml:"organization_id"`
}

type UserPermission struct {
	TenantID                 string `json:"tenant_id" yaml:"tenant_id"`
	UserID                   string `json:"user_id" yaml:"user_id"`
	ResourceServerIdentifier string `json:"resource_server_identifier" yaml:"resource_server_identifier"`
	PermissionName           string `json:"permission_name" yaml:"permission_name"`
	OrganizationID           string `json:"organization_id" yaml:"organization_id"`
}

type Organization struct {
	ID       string `json:"id" yaml:"id"`
	TenantID string `json:"tenant_id" yaml:"tenant_id"`
	Name     string `json:"name" yaml:"name"`
}

type UserOrganization struct {
	TenantID       string `json:"tenant_id" yaml:"tenant_id"`
	UserID         string `json:"user_id" yaml:"user_id"`
	OrganizationID string `json:"organization_id" yaml:"organization_id"`
}

// Repo reads and writes role assignments. List methods match organizationID
// exactly, so GlobalOrganization returns only tenant-level assignments.
type Repo interface {
	CreateRole(ctx context.Context, role *Role) error
	AddRolePermission(ctx context.Context, permission RolePermission) error
	AssignUserRole(ctx context.Context, userRole UserRole) error
	AddUserPermission(ctx context.Context, permission UserPermission) error
	CreateOrganization(ctx context.Context, org *Organization) error
	AddOrganizationMember(ctx context.Context, member UserOrganization) error

	ListUserRoles(ctx context.Context, tenantID, userID, organizationID string) ([]UserRole, error)
	ListRolePermissions(ctx context.Context, tenantID, roleID string) ([]RolePermission, error)
	ListUserPermissions(ctx context.Context, tenantID, userID, organizationID string) ([]UserPermission, error)
	IsOrganizationMember(ctx context.Context, tenantID, userID, organizationID string) (bool, error)
}
