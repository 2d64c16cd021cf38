package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-identity-core/codes"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

const (
	keyTypeCode     = "code"
	keyTypeCodeUsed = "code_used"
)

var _ codes.Repo = (*CodeRepo)(nil)

// CodeRepo stores the code body and its used marker under separate keys. The
// marker is written with SETNX, which gives MarkUsed its exactly-once result.
type CodeRepo struct {
	store *Store
}

func (r *CodeRepo) Create(ctx context.Context, code *codes.Code) error {
	stored := *code
	stored.UsedAt = nil
	data, err := json.Marshal(stored)
	if err != nil {
		return errors.Wrap(err, "[CodeRepo.Create] marshal")
	}
	key := r.store.key(keyTypeCode, code.TenantID, code.ID)
	ok, err := r.store.client.SetNX(ctx, key, data, r.store.ttlUntil(code.ExpiresAt)).Result()
	if err != nil {
		return errors.Wrap(err, "[CodeRepo.Create] setnx")
	}
	if !ok {
		return apperrors.ErrConflict
	}
	return nil
}

func (r *CodeRepo) Get(ctx context.Context, tenantID, id string, codeType codes.Type) (*codes.Code, error) {
	var code codes.Code
	found, err := r.store.getJSON(ctx, r.store.key(keyTypeCode, tenantID, id), &code)
	if err != nil {
		return nil, errors.Wrap(err, "[CodeRepo.Get]")
	}
	if !found || code.Type != codeType {
		return nil, apperrors.ErrNotFound
	}

	usedAt, err := r.store.client.Get(ctx, r.store.key(keyTypeCodeUsed, tenantID, id)).Result()
	switch {
	case errors.Is(err, goredis.Nil):
	case err != nil:
		return nil, errors.Wrap(err, "[CodeRepo.Get] used marker")
	default:
		t, err := time.Parse(time.RFC3339Nano, usedAt)
		if err != nil {
			return nil, errors.Wrap(err, "[CodeRepo.Get] used_at")
		}
		code.UsedAt = &t
	}
	return &code, nil
}

func (r *CodeRepo) MarkUsed(ctx context.Context, tenantID, id string, at time.Time) error {
	codeKey := r.store.key(keyTypeCode, tenantID, id)
	ttl, err := r.store.client.PTTL(ctx, codeKey).Result()
	if err != nil {
		return errors.Wrap(err, "[CodeRepo.MarkUsed] pttl")
	}
	// go-redis reports a missing key as -2 without scaling it
	if ttl == -2 {
		return apperrors.ErrNotFound
	}
	if ttl <= 0 {
		ttl = retention
	}

	ok, err := r.store.client.SetNX(ctx, r.store.key(keyTypeCodeUsed, tenantID, id), at.UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return errors.Wrap(err, "[CodeRepo.MarkUsed] setnx")
	}
	if !ok {
		return apperrors.ErrCodeAlreadyUsed
	}
	return nil
}

func (r *CodeRepo) Delete(ctx context.Context, tenantID, id string) error {
	err := r.store.client.Del(ctx,
		r.store.key(keyTypeCode, tenantID, id),
		r.store.key(keyTypeCodeUsed, tenantID, id),
	).Err()
	return errors.Wrap(err, "[CodeRepo.Delete]")
}
