package fakeclientrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-core/clients"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
)

var _ clients.Repo = (*FakeClientRepo)(nil)

type FakeClientRepo struct {
	clients map[string]clients.Client // tenantID/clientID -> client
	lock    sync.RWMutex
}

func NewFakeClientRepo() *FakeClientRepo {
	return &FakeClientRepo{
		clients: make(map[string]clients.Client),
	}
}

func key(tenantID, clientID string) string {
	return tenantID + "/" + clientID
}

func (r *FakeClientRepo) Upsert(_ context.Context, clientData *clients.Client) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if clientData.ID == "" {
		clientData.ID = uuid.New().String()
	}
	r.clients[key(clientData.TenantID, clientData.ID)] = *clientData
	return nil
}

func (r *FakeClientRepo) Delete(_ context.Context, tenantID, clientID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.clients, key(tenantID, clientID))
	return nil
}

func (r *FakeClientRepo) Get(_ context.Context, tenantID, clientID string) (*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.clients[key(tenantID, clientID)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &c, nil
}

func (r *FakeClientRepo) List(_ context.Context, tenantID string) ([]*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*clients.Client, 0)
	for _, c := range r.clients {
		if c.TenantID != tenantID {
			continue
		}
		c := c
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})
	return list, nil
}
