package redis

import (
	"context"
	"encoding/json"

	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/loginsession"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

const keyTypeLoginSession = "login_session"

var _ loginsession.Repo = (*LoginSessionRepo)(nil)

// LoginSessionRepo keeps each login session as one JSON value that expires a
// little after the session itself.
type LoginSessionRepo struct {
	store *Store
}

func (r *LoginSessionRepo) Create(ctx context.Context, ls *loginsession.LoginSession) error {
	data, err := json.Marshal(ls)
	if err != nil {
		return errors.Wrap(err, "[LoginSessionRepo.Create] marshal")
	}
	ok, err := r.store.client.SetNX(ctx, r.store.key(keyTypeLoginSession, ls.TenantID, ls.ID), data, r.store.ttlUntil(ls.ExpiresAt)).Result()
	if err != nil {
		return errors.Wrap(err, "[LoginSessionRepo.Create] setnx")
	}
	if !ok {
		return apperrors.ErrConflict
	}
	return nil
}

func (r *LoginSessionRepo) Get(ctx context.Context, tenantID, id string) (*loginsession.LoginSession, error) {
	var ls loginsession.LoginSession
	found, err := r.store.getJSON(ctx, r.store.key(keyTypeLoginSession, tenantID, id), &ls)
	if err != nil {
		return nil, errors.Wrap(err, "[LoginSessionRepo.Get]")
	}
	if !found {
		return nil, apperrors.ErrNotFound
	}
	return &ls, nil
}

// Update overwrites an existing session and keeps its TTL.
func (r *LoginSessionRepo) Update(ctx context.Context, ls *loginsession.LoginSession) error {
	data, err := json.Marshal(ls)
	if err != nil {
		return errors.Wrap(err, "[LoginSessionRepo.Update] marshal")
	}
	ok, err := r.store.client.SetXX(ctx, r.store.key(keyTypeLoginSession, ls.TenantID, ls.ID), data, goredis.KeepTTL).Result()
	if err != nil {
		return errors.Wrap(err, "[LoginSessionRepo.Update] setxx")
	}
	if !ok {
		return apperrors.ErrNotFound
	}
	return nil
}
