package repofake

import (
	"context"
	"net/url"
	"sync"

	"github.com/jrsteele09/go-identity-core/connections"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
)

var _ connections.Repo = (*FakeConnectionRepo)(nil)

type FakeConnectionRepo struct {
	conns map[string]connections.Connection // tenantID/name -> connection
	lock  sync.RWMutex
}

func NewFakeConnectionRepo() *FakeConnectionRepo {
	return &FakeConnectionRepo{conns: make(map[string]connections.Connection)}
}

func (r *FakeConnectionRepo) Upsert(_ context.Context, conn *connections.Connection) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.conns[conn.TenantID+"/"+conn.Name] = *conn
	return nil
}

func (r *FakeConnectionRepo) Get(_ context.Context, tenantID, name string) (*connections.Connection, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.conns[tenantID+"/"+name]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &c, nil
}

func (r *FakeConnectionRepo) List(_ context.Context, tenantID string) ([]*connections.Connection, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	var out []*connections.Connection
	for _, c := range r.conns {
		if c.TenantID == tenantID {
			c := c
			out = append(out, &c)
		}
	}
	return out, nil
}

// FakeProvider returns Identity for any code equal to Code.
type FakeProvider struct {
	AuthorizeURL string
	Code         string
	Identity     connections.Identity
}

var _ connections.Provider = (*FakeProvider)(nil)

func (p *FakeProvider) AuthCodeURL(state, nonce, _, redirectURL string) string {
	q := url.Values{"state": {state}, "nonce": {nonce}, "redirect_uri": {redirectURL}}
	return p.AuthorizeURL + "?" + q.Encode()
}

func (p *FakeProvider) Exchange(_ context.Context, code, _, _, _ string) (*connections.Identity, error) {
	if code != p.Code {
		return nil, apperrors.ErrInvalidCredentials
	}
	id := p.Identity
	return &id, nil
}
