package refreshrepofake

import (
	"context"
	"sync"

	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/token/refresh"
)

var _ refresh.Repo = (*FakeRefreshTokenRepo)(nil)

type FakeRefreshTokenRepo struct {
	tokens map[string]refresh.RefreshToken // tenantID/id -> token
	lock   sync.RWMutex
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{
		tokens: make(map[string]refresh.RefreshToken),
	}
}

func key(tenantID, id string) string {
	return tenantID + "/" + id
}

func clone(rt refresh.RefreshToken) *refresh.RefreshToken {
	rt.ResourceServers = append([]refresh.ResourceServerGrant(nil), rt.ResourceServers...)
	return &rt
}

func (tr *FakeRefreshTokenRepo) Create(_ context.Context, rt *refresh.RefreshToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if _, ok := tr.tokens[key(rt.TenantID, rt.ID)]; ok {
		return apperrors.ErrConflict
	}
	tr.tokens[key(rt.TenantID, rt.ID)] = *clone(*rt)
	return nil
}

func (tr *FakeRefreshTokenRepo) Get(_ context.Context, tenantID, id string) (*refresh.RefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	rt, ok := tr.tokens[key(tenantID, id)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return clone(rt), nil
}

func (tr *FakeRefreshTokenRepo) Update(_ context.Context, rt *refresh.RefreshToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if _, ok := tr.tokens[key(rt.TenantID, rt.ID)]; !ok {
		return apperrors.ErrNotFound
	}
	tr.tokens[key(rt.TenantID, rt.ID)] = *clone(*rt)
	return nil
}

func (tr *FakeRefreshTokenRepo) Delete(_ context.Context, tenantID, id string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if _, ok := tr.tokens[key(tenantID, id)]; !ok {
		return apperrors.ErrNotFound
	}
	delete(tr.tokens, key(tenantID, id))
	return nil
}

func (tr *FakeRefreshTokenRepo) DeleteBySession(_ context.Context, tenantID, sessionID string) (int, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	n := 0
	for k, rt := range tr.tokens {
		if rt.TenantID == tenantID && rt.SessionID == sessionID {
			delete(tr.tokens, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored tokens
func (tr *FakeRefreshTokenRepo) Len() int {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	return len(tr.tokens)
}
