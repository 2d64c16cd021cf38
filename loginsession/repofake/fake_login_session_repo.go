package repofake

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/loginsession"
)

var _ loginsession.Repo = (*FakeLoginSessionRepo)(nil)

// FakeLoginSessionRepo is an in-memory implementation of loginsession.Repo
type FakeLoginSessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*loginsession.LoginSession // tenantID -> id -> session
	writes   int
}

func NewFakeLoginSessionRepo() *FakeLoginSessionRepo {
	return &FakeLoginSessionRepo{
		sessions: make(map[string]map[string]*loginsession.LoginSession),
	}
}

func (r *FakeLoginSessionRepo) Create(_ context.Context, ls *loginsession.LoginSession) error {
	if ls.TenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	if ls.ID == "" {
		return fmt.Errorf("id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[ls.TenantID]; !ok {
		r.sessions[ls.TenantID] = make(map[string]*loginsession.LoginSession)
	}
	if _, exists := r.sessions[ls.TenantID][ls.ID]; exists {
		return apperrors.ErrConflict
	}
	r.sessions[ls.TenantID][ls.ID] = ls.Clone()
	r.writes++
	return nil
}

func (r *FakeLoginSessionRepo) Get(_ context.Context, tenantID, id string) (*loginsession.LoginSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tenantSessions, ok := r.sessions[tenantID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	ls, ok := tenantSessions[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return ls.Clone(), nil
}

func (r *FakeLoginSessionRepo) Update(_ context.Context, ls *loginsession.LoginSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tenantSessions, ok := r.sessions[ls.TenantID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if _, ok := tenantSessions[ls.ID]; !ok {
		return apperrors.ErrNotFound
	}
	tenantSessions[ls.ID] = ls.Clone()
	r.writes++
	return nil
}

// Writes counts Create and Update calls.
func (r *FakeLoginSessionRepo) Writes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writes
}
