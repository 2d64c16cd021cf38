package fakesessionrepo

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type FakeSessionRepo struct {
	sessions map[string]sessions.Session // tenantID/id -> session
	lock     sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]sessions.Session),
	}
}

func key(tenantID, id string) string {
	return tenantID + "/" + id
}

func clone(s sessions.Session) *sessions.Session {
	s.ClientIDs = append([]string(nil), s.ClientIDs...)
	return &s
}

func (sr *FakeSessionRepo) Create(_ context.Context, s *sessions.Session) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	if _, ok := sr.sessions[key(s.TenantID, s.ID)]; ok {
		return apperrors.ErrConflict
	}
	sr.sessions[key(s.TenantID, s.ID)] = *clone(*s)
	return nil
}

func (sr *FakeSessionRepo) Get(_ context.Context, tenantID, id string) (*sessions.Session, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	s, ok := sr.sessions[key(tenantID, id)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return clone(s), nil
}

func (sr *FakeSessionRepo) Update(_ context.Context, s *sessions.Session) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	if _, ok := sr.sessions[key(s.TenantID, s.ID)]; !ok {
		return apperrors.ErrNotFound
	}
	sr.sessions[key(s.TenantID, s.ID)] = *clone(*s)
	return nil
}

func (sr *FakeSessionRepo) Revoke(_ context.Context, tenantID, id string, at time.Time) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	s, ok := sr.sessions[key(tenantID, id)]
	if !ok {
		return apperrors.ErrNotFound
	}
	s.RevokedAt = &at
	sr.sessions[key(tenantID, id)] = s
	return nil
}

func (sr *FakeSessionRepo) ListByUser(_ context.Context, tenantID, userID string) ([]*sessions.Session, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	var out []*sessions.Session
	for _, s := range sr.sessions {
		if s.TenantID == tenantID && s.UserID == userID {
			out = append(out, clone(s))
		}
	}
	return out, nil
}
