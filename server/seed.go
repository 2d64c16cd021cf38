package server

import (
	"bytes"
	"os"

	"github.com/jrsteele09/go-identity-core/clients"
	"github.com/jrsteele09/go-identity-core/connections"
	"github.com/jrsteele09/go-identity-core/hooks"
	"github.com/jrsteele09/go-identity-core/rbac"
	"github.com/jrsteele09/go-identity-core/resourceservers"
	"github.com/jrsteele09/go-identity-core/tenants"
	"github.com/jrsteele09/go-identity-core/users"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Seed is the YAML document loaded at startup to provision tenants and
// everything that hangs off them.
type Seed struct {
	Tenants             []*tenants.Tenant                 `yaml:"tenants"`
	Clients             []*clients.Client                 `yaml:"clients"`
	ClientGrants        []*clients.ClientGrant            `yaml:"client_grants"`
	ResourceServers     []*resourceservers.ResourceServer `yaml:"resource_servers"`
	Connections         []*connections.Connection         `yaml:"connections"`
	Users               []*SeedUser                       `yaml:"users"`
	Roles               []*rbac.Role                      `yaml:"roles"`
	RolePermissions     []rbac.RolePermission             `yaml:"role_permissions"`
	UserRoles           []rbac.UserRole                   `yaml:"user_roles"`
	UserPermissions     []rbac.UserPermission             `yaml:"user_permissions"`
	Organizations       []*rbac.Organization              `yaml:"organizations"`
	OrganizationMembers []rbac.UserOrganization           `yaml:"organization_members"`
	Hooks               []*hooks.TemplateHook             `yaml:"hooks"`
}

// SeedUser accepts a plaintext password which is hashed before the user is stored.
type SeedUser struct {
	users.User `yaml:",inline"`
	Password   string `yaml:"password"`
}

// LoadSeed reads a seed file. Unknown keys are rejected so typos surface at startup.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "[LoadSeed] read seed file")
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (*Seed, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var seed Seed
	if err := dec.Decode(&seed); err != nil {
		return nil, errors.Wrap(err, "[ParseSeed] decode seed")
	}
	return &seed, nil
}
