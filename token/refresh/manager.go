package refresh

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Manager handles refresh token creation, exchange and rotation
type Manager struct {
	repo    Repo
	config  config.OAuthConfig
	nowTime func() time.Time
}

type Option func(*Manager)

func WithNowTime(now func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = now
	}
}

func NewManager(repo Repo, cfg config.OAuthConfig, opts ...Option) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[refresh.NewManager] refresh token repo is required")
	}
	if cfg == nil {
		return nil, errors.New("[refresh.NewManager] oauth config is required")
	}
	m := &Manager{
		repo:    repo,
		config:  cfg,
		nowTime: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

type CreateParams struct {
	TenantID        string
	SessionID       string
	UserID          string
	ClientID        string
	OrganizationID  string
	ResourceServers []ResourceServerGrant
	Rotating        bool
	Device          Device
}

func (m *Manager) Create(ctx context.Context, p CreateParams) (*RefreshToken, error) {
	id, err := m.newID()
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Create] newID")
	}
	now := m.nowTime().UTC()
	rt := &RefreshToken{
		ID:              id,
		TenantID:        p.TenantID,
		SessionID:       p.SessionID,
		UserID:          p.UserID,
		ClientID:        p.ClientID,
		OrganizationID:  p.OrganizationID,
		ResourceServers: p.ResourceServers,
		Rotating:        p.Rotating,
		Device:          p.Device,
		CreatedAt:       now,
		ExpiresAt:       now.Add(m.config.GetDefaultRefreshTokenExpiry()),
		IdleExpiresAt:   now.Add(m.config.GetDefaultRefreshTokenIdleExpiry()),
	}
	if err := m.repo.Create(ctx, rt); err != nil {
		return nil, errors.Wrap(err, "[Manager.Create] repo.Create")
	}
	return rt, nil
}

// Exchange is Lookup followed by Rotate.
func (m *Manager) Exchange(ctx context.Context, tenantID, id, clientID string, device Device) (*RefreshToken, error) {
	rt, err := m.Lookup(ctx, tenantID, id, clientID)
	if err != nil {
		return nil, err
	}
	return m.Rotate(ctx, rt, device)
}

// Lookup returns the live token id issued to clientID without changing it, so
// callers can finish validating the request before anything is rotated. An
// expired token is deleted.
func (m *Manager) Lookup(ctx context.Context, tenantID, id, clientID string) (*RefreshToken, error) {
	rt, err := m.repo.Get(ctx, tenantID, id)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Lookup] repo.Get")
	}
	if rt.ClientID != clientID {
		return nil, apperrors.ErrInvalidRefreshToken
	}

	now := m.nowTime().UTC()
	if now.After(rt.ExpiresAt) || (!rt.IdleExpiresAt.IsZero() && now.After(rt.IdleExpiresAt)) {
		if err := m.repo.Delete(ctx, tenantID, id); err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, errors.Wrap(err, "[Manager.Lookup] delete expired")
		}
		return nil, apperrors.ErrRefreshTokenExpired
	}
	return rt, nil
}

// Rotate returns the token the client should hold after a successful exchange
// of rt. A rotating token is replaced by a new record with a fresh id and the
// old one is deleted. A non-rotating token only has its idle window and device
// refreshed.
func (m *Manager) Rotate(ctx context.Context, rt *RefreshToken, device Device) (*RefreshToken, error) {
	now := m.nowTime().UTC()
	device.InitialIP = rt.Device.InitialIP
	device.InitialUserAgent = rt.Device.InitialUserAgent

	if !rt.Rotating {
		updated := *rt
		updated.LastExchangedAt = now
		updated.IdleExpiresAt = m.idleExpiry(now, rt.ExpiresAt)
		updated.Device = device
		if err := m.repo.Update(ctx, &updated); err != nil {
			return nil, errors.Wrap(err, "[Manager.Rotate] repo.Update")
		}
		return &updated, nil
	}

	newID, err := m.newID()
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Rotate] newID")
	}
	next := *rt
	next.ID = newID
	next.CreatedAt = now
	next.LastExchangedAt = now
	next.IdleExpiresAt = m.idleExpiry(now, rt.ExpiresAt)
	next.Device = device
	next.ResourceServers = append([]ResourceServerGrant(nil), rt.ResourceServers...)

	if err := m.repo.Create(ctx, &next); err != nil {
		return nil, errors.Wrap(err, "[Manager.Rotate] repo.Create")
	}
	if err := m.repo.Delete(ctx, rt.TenantID, rt.ID); err != nil {
		// Someone else rotated rt first. Their token wins and ours is discarded.
		if cleanupErr := m.repo.Delete(ctx, rt.TenantID, next.ID); cleanupErr != nil {
			log.Warn().Err(cleanupErr).Str("tenant_id", rt.TenantID).Str("session_id", rt.SessionID).Msg("orphaned refresh token after losing rotation")
		}
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrInvalidRefreshToken
		}
		return nil, errors.Wrap(err, "[Manager.Rotate] repo.Delete")
	}
	return &next, nil
}

// RevokeSession deletes every refresh token bound to sessionID.
func (m *Manager) RevokeSession(ctx context.Context, tenantID, sessionID string) (int, error) {
	n, err := m.repo.DeleteBySession(ctx, tenantID, sessionID)
	return n, errors.Wrap(err, "[Manager.RevokeSession] repo.DeleteBySession")
}

func (m *Manager) Revoke(ctx context.Context, tenantID, id, clientID string) error {
	rt, err := m.repo.Get(ctx, tenantID, id)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[Manager.Revoke] repo.Get")
	}
	if rt.ClientID != clientID {
		return apperrors.ErrInvalidRefreshToken
	}
	if err := m.repo.Delete(ctx, tenantID, id); err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return errors.Wrap(err, "[Manager.Revoke] repo.Delete")
	}
	return nil
}

func (m *Manager) idleExpiry(now, absolute time.Time) time.Time {
	idle := now.Add(m.config.GetDefaultRefreshTokenIdleExpiry())
	if idle.After(absolute) {
		return absolute
	}
	return idle
}

func (m *Manager) newID() (string, error) {
	b := make([]byte, m.config.GetRefreshTokenLength())
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
