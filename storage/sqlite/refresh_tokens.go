package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/token/refresh"
	"github.com/pkg/errors"
)

var _ refresh.Repo = (*RefreshTokenRepo)(nil)

type RefreshTokenRepo struct {
	db *sql.DB
}

func (r *RefreshTokenRepo) Create(ctx context.Context, rt *refresh.RefreshToken) error {
	data, err := json.Marshal(rt)
	if err != nil {
		return errors.Wrap(err, "[RefreshTokenRepo.Create] marshal")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (tenant_id, id, session_id, data) VALUES (?, ?, ?, ?)`,
		rt.TenantID, rt.ID, rt.SessionID, string(data))
	if isUniqueConstraintError(err) {
		return apperrors.ErrConflict
	}
	return errors.Wrap(err, "[RefreshTokenRepo.Create]")
}

func (r *RefreshTokenRepo) Get(ctx context.Context, tenantID, id string) (*refresh.RefreshToken, error) {
	var rt refresh.RefreshToken
	err := getData(ctx, r.db, &rt, `SELECT data FROM refresh_tokens WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "[RefreshTokenRepo.Get]")
	}
	return &rt, nil
}

func (r *RefreshTokenRepo) Update(ctx context.Context, rt *refresh.RefreshToken) error {
	data, err := json.Marshal(rt)
	if err != nil {
		return errors.Wrap(err, "[RefreshTokenRepo.Update] marshal")
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET session_id = ?, data = ? WHERE tenant_id = ? AND id = ?`,
		rt.SessionID, string(data), rt.TenantID, rt.ID)
	if err != nil {
		return errors.Wrap(err, "[RefreshTokenRepo.Update]")
	}
	return affectedOrNotFound(res)
}

func (r *RefreshTokenRepo) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return errors.Wrap(err, "[RefreshTokenRepo.Delete]")
	}
	return affectedOrNotFound(res)
}

func (r *RefreshTokenRepo) DeleteBySession(ctx context.Context, tenantID, sessionID string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE tenant_id = ? AND session_id = ?`, tenantID, sessionID)
	if err != nil {
		return 0, errors.Wrap(err, "[RefreshTokenRepo.DeleteBySession]")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "[RefreshTokenRepo.DeleteBySession] rows affected")
}
