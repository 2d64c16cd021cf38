package tenants

import (
	"context"
	"time"
)

// Tenant is an isolated identity domain. Each tenant carries its own issuer,
// signing configuration, session lifetimes and RBAC flags.
type Tenant struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Issuer   string `json:"issuer" yaml:"issuer"`       // e.g. "https://acme.auth.example.com/"
	Audience string `json:"audience" yaml:"audience"`   // default audience when the request has none
	SignerID string `json:"signer_id" yaml:"signer_id"` // reference to a registered signing key

	// InheritGlobalPermissionsInOrganizations lets roles assigned outside any
	// organization apply inside organization-scoped requests.
	InheritGlobalPermissionsInOrganizations bool `json:"inherit_global_permissions_in_organizations" yaml:"inherit_global_permissions_in_organizations"`

	SessionLifetime     time.Duration `json:"session_lifetime" yaml:"session_lifetime"`
	IdleSessionLifetime time.Duration `json:"idle_session_lifetime" yaml:"idle_session_lifetime"`
}

type Repo interface {
	Upsert(ctx context.Context, tenant *Tenant) error
	Delete(ctx context.Context, tenantID string) error
	Get(ctx context.Context, tenantID string) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
}
