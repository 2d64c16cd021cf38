package fakeclientrepo

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-core/clients"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
)

var _ clients.GrantRepo = (*FakeGrantRepo)(nil)

type FakeGrantRepo struct {
	grants map[string]clients.ClientGrant // tenantID/clientID/audience -> grant
	lock   sync.RWMutex
}

func NewFakeGrantRepo() *FakeGrantRepo {
	return &FakeGrantRepo{
		grants: make(map[string]clients.ClientGrant),
	}
}

func (r *FakeGrantRepo) Upsert(_ context.Context, grant *clients.ClientGrant) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}
	r.grants[grant.TenantID+"/"+grant.ClientID+"/"+grant.Audience] = *grant
	return nil
}

func (r *FakeGrantRepo) Find(_ context.Context, tenantID, clientID, audience string) (*clients.ClientGrant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	g, ok := r.grants[tenantID+"/"+clientID+"/"+audience]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	g.Scope = append([]string(nil), g.Scope...)
	return &g, nil
}
