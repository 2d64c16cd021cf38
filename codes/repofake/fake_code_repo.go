package fakecoderepo

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-identity-core/codes"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
)

var _ codes.Repo = (*FakeCodeRepo)(nil)

type FakeCodeRepo struct {
	codes map[string]codes.Code // tenantID/id -> code
	lock  sync.Mutex
}

func NewFakeCodeRepo() *FakeCodeRepo {
	return &FakeCodeRepo{codes: make(map[string]codes.Code)}
}

func key(tenantID, id string) string {
	return tenantID + "/" + id
}

func (r *FakeCodeRepo) Create(_ context.Context, code *codes.Code) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.codes[key(code.TenantID, code.ID)]; ok {
		return apperrors.ErrConflict
	}
	r.codes[key(code.TenantID, code.ID)] = *code
	return nil
}

func (r *FakeCodeRepo) Get(_ context.Context, tenantID, id string, codeType codes.Type) (*codes.Code, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	c, ok := r.codes[key(tenantID, id)]
	if !ok || c.Type != codeType {
		return nil, apperrors.ErrNotFound
	}
	return &c, nil
}

func (r *FakeCodeRepo) MarkUsed(_ context.Context, tenantID, id string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	c, ok := r.codes[key(tenantID, id)]
	if !ok {
		return apperrors.ErrNotFound
	}
	if c.UsedAt != nil {
		return apperrors.ErrCodeAlreadyUsed
	}
	c.UsedAt = &at
	r.codes[key(tenantID, id)] = c
	return nil
}

func (r *FakeCodeRepo) Delete(_ context.Context, tenantID, id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.codes, key(tenantID, id))
	return nil
}
