package refresh

import (
	"context"
	"time"
)

// ResourceServerGrant is an audience and the scopes granted on it.
type ResourceServerGrant struct {
	Audience string `json:"audience"`
	Scopes   string `json:"scopes"`
}

type Device struct {
	InitialIP        string `json:"initial_ip,omitempty"`
	InitialUserAgent string `json:"initial_user_agent,omitempty"`
	LastIP           string `json:"last_ip,omitempty"`
	LastUserAgent    string `json:"last_user_agent,omitempty"`
}

// RefreshToken is server-side state for an opaque refresh token. The client only
// ever receives ID.
type RefreshToken struct {
	ID              string                `json:"id"`
	TenantID        string                `json:"tenant_id"`
	SessionID       string                `json:"session_id"`
	UserID          string                `json:"user_id"`
	ClientID        string                `json:"client_id"`
	OrganizationID  string                `json:"organization_id,omitempty"`
	ResourceServers []ResourceServerGrant `json:"resource_servers"`
	Rotating        bool                  `json:"rotating"`
	Device          Device                `json:"device"`
	CreatedAt       time.Time             `json:"created_at"`
	LastExchangedAt time.Time             `json:"last_exchanged_at,omitempty"`
	ExpiresAt       time.Time             `json:"expires_at"`
	IdleExpiresAt   time.Time             `json:"idle_expires_at"`
}

type Repo interface {
	Create(ctx context.Context, rt *RefreshToken) error
	Get(ctx context.Context, tenantID, id string) (*RefreshToken, error)
	Update(ctx context.Context, rt *RefreshToken) error
	// Delete returns errors.ErrNotFound when id is already gone, which is how a
	// second concurrent rotation of the same token is detected.
	Delete(ctx context.Context, tenantID, id string) error
	DeleteBySession(ctx context.Context, tenantID, sessionID string) (int, error)
}
