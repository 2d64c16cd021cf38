package repofake

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/resourceservers"
)

var _ resourceservers.Repo = (*FakeResourceServerRepo)(nil)

type FakeResourceServerRepo struct {
	servers map[string]resourceservers.ResourceServer // tenantID/identifier -> server
	lock    sync.RWMutex
}

func NewFakeResourceServerRepo() *FakeResourceServerRepo {
	return &FakeResourceServerRepo{
		servers: make(map[string]resourceservers.ResourceServer),
	}
}

func (r *FakeResourceServerRepo) Upsert(_ context.Context, rs *resourceservers.ResourceServer) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if rs.ID == "" {
		rs.ID = uuid.New().String()
	}
	r.servers[rs.TenantID+"/"+rs.Identifier] = *rs
	return nil
}

func (r *FakeResourceServerRepo) GetByIdentifier(_ context.Context, tenantID, identifier string) (*resourceservers.ResourceServer, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	rs, ok := r.servers[tenantID+"/"+identifier]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	rs.Scopes = append([]resourceservers.Scope(nil), rs.Scopes...)
	return &rs, nil
}

func (r *FakeResourceServerRepo) List(_ context.Context, tenantID string) ([]*resourceservers.ResourceServer, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	list := make([]*resourceservers.ResourceServer, 0)
	for _, rs := range r.servers {
		if rs.TenantID != tenantID {
			continue
		}
		rs := rs
		list = append(list, &rs)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Identifier < list[j].Identifier })
	return list, nil
}
