package resourceservers

import "context"

// TokenDialect decides whether RBAC results surface as scopes or as a
// separate permissions claim.
type TokenDialect string

const (
	DialectAccessToken      TokenDialect = "access_token"
	DialectAccessTokenAuthz TokenDialect = "access_token_authz"
)

type Scope struct {
	Value       string `json:"value" yaml:"value"`
	Description string `json:"description,omitempty" yaml:"description"`
}

type Options struct {
	EnforcePolicies bool         `json:"enforce_policies" yaml:"enforce_policies"`
	TokenDialect    TokenDialect `json:"token_dialect,omitempty" yaml:"token_dialect"`
}

// ResourceServer is a tenant-registered API, addressed by its identifier (the audience).
type ResourceServer struct {
	ID         string  `json:"id" yaml:"id"`
	TenantID   string  `json:"tenant_id" yaml:"tenant_id"`
	Identifier string  `json:"identifier" yaml:"identifier"`
	Name       string  `json:"name" yaml:"name"`
	Scopes     []Scope `json:"scopes" yaml:"scopes"`
	Options    Options `json:"options" yaml:"options"`
}

// Dialect returns the configured dialect, defaulting to access_token.
func (rs *ResourceServer) Dialect() TokenDialect {
	if rs.Options.TokenDialect == DialectAccessTokenAuthz {
		return DialectAccessTokenAuthz
	}
	return DialectAccessToken
}

func (rs *ResourceServer) ScopeValues() []string {
	values := make([]string, 0, len(rs.Scopes))
	for _, s := range rs.Scopes {
		values = append(values, s.Value)
	}
	return values
}

func (rs *ResourceServer) DeclaresScope(scope string) bool {
	for _, s := range rs.Scopes {
		if s.Value == scope {
			return true
		}
	}
	return false
}

type Repo interface {
	Upsert(ctx context.Context, rs *ResourceServer) error
	// GetByIdentifier returns errors.ErrNotFound when no API is registered for the audience.
	GetByIdentifier(ctx context.Context, tenantID, identifier string) (*ResourceServer, error)
	List(ctx context.Context, tenantID string) ([]*ResourceServer, error)
}
