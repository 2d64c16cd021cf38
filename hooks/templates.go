package hooks

import "context"

// TemplateID names a pre-defined hook a tenant can enable. The set is closed.
type TemplateID int

const (
	TemplateEnsureUsername TemplateID = iota + 1
	TemplateSetPreferredUsername
)

var templateNames = map[TemplateID]string{
	TemplateEnsureUsername:       "ensure-username",
	TemplateSetPreferredUsername: "set-preferred-username",
}

func (t TemplateID) String() string {
	return templateNames[t]
}

// Trigger is the point in the flow at which the template runs.
func (t TemplateID) Trigger() Trigger {
	switch t {
	case TemplateEnsureUsername:
		return TriggerPostUserLogin
	case TemplateSetPreferredUsername:
		return TriggerCredentialsExchange
	}
	return ""
}

// ParseTemplateID maps stored template ids onto the enum. Ids written by newer
// versions are reported with ok == false.
func ParseTemplateID(s string) (TemplateID, bool) {
	for id, name := range templateNames {
		if name == s {
			return id, true
		}
	}
	return 0, false
}

// TemplateHook is a tenant's configuration of a pre-defined hook
type TemplateHook struct {
	ID         string `json:"hook_id" yaml:"hook_id"`
	TenantID   string `json:"tenant_id" yaml:"tenant_id"`
	TemplateID string `json:"template_id" yaml:"template_id"`
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Priority   int    `json:"priority" yaml:"priority"`
}

type TemplateRepo interface {
	Upsert(ctx context.Context, hook *TemplateHook) error
	// List returns the tenant's hooks ordered by descending priority.
	List(ctx context.Context, tenantID string) ([]*TemplateHook, error)
}
