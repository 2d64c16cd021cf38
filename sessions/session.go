package sessions

import (
	"context"
	"time"
)

// Device fingerprints the browser a session was opened from and the one that
// used it most recently.
type Device struct {
	InitialIP        string `json:"initial_ip,omitempty"`
	InitialUserAgent string `json:"initial_user_agent,omitempty"`
	InitialASN       string `json:"initial_asn,omitempty"`
	LastIP           string `json:"last_ip,omitempty"`
	LastUserAgent    string `json:"last_user_agent,omitempty"`
	LastASN          string `json:"last_asn,omitempty"`
}

// NewDevice starts a fingerprint where the initial and last values agree.
func NewDevice(ip, userAgent, asn string) Device {
	return Device{
		InitialIP:        ip,
		InitialUserAgent: userAgent,
		InitialASN:       asn,
		LastIP:           ip,
		LastUserAgent:    userAgent,
		LastASN:          asn,
	}
}

// Session is the durable browser session created after a successful login. It
// outlives the login session that produced it and is referenced by refresh tokens
// and the session cookie.
type Session struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	UserID            string     `json:"user_id"`
	LoginSessionID    string     `json:"login_session_id,omitempty"`
	ClientIDs         []string   `json:"clients"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Device            Device     `json:"device"`
	LastInteractionAt time.Time  `json:"used_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	IdleExpiresAt     time.Time  `json:"idle_expires_at"`
	RevokedAt         *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the session can still be used at now.
func (s *Session) Active(now time.Time) bool {
	if s.RevokedAt != nil {
		return false
	}
	if !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt) {
		return false
	}
	if !s.IdleExpiresAt.IsZero() && now.After(s.IdleExpiresAt) {
		return false
	}
	return true
}

// Touch records use at now from the given address and user agent. Empty values
// keep the last ones seen. With a positive idle lifetime the idle deadline
// slides forward, never past ExpiresAt.
func (s *Session) Touch(now time.Time, ip, userAgent, asn string, idle time.Duration) {
	s.UpdatedAt = now
	s.LastInteractionAt = now
	if ip != "" {
		s.Device.LastIP = ip
	}
	if userAgent != "" {
		s.Device.LastUserAgent = userAgent
	}
	if asn != "" {
		s.Device.LastASN = asn
	}
	if idle <= 0 {
		return
	}
	s.IdleExpiresAt = now.Add(idle)
	if !s.ExpiresAt.IsZero() && s.IdleExpiresAt.After(s.ExpiresAt) {
		s.IdleExpiresAt = s.ExpiresAt
	}
}

// AddClient records that clientID received tokens through this session.
func (s *Session) AddClient(clientID string) bool {
	for _, c := range s.ClientIDs {
		if c == clientID {
			return false
		}
	}
	s.ClientIDs = append(s.ClientIDs, clientID)
	return true
}

type Repo interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, tenantID, id string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	Revoke(ctx context.Context, tenantID, id string, at time.Time) error
	ListByUser(ctx context.Context, tenantID, userID string) ([]*Session, error)
}
