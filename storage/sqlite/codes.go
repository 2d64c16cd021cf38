package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-identity-core/codes"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/pkg/errors"
)

var _ codes.Repo = (*CodeRepo)(nil)

type CodeRepo struct {
	db *sql.DB
}

func (r *CodeRepo) Create(ctx context.Context, code *codes.Code) error {
	stored := *code
	stored.UsedAt = nil
	data, err := json.Marshal(stored)
	if err != nil {
		return errors.Wrap(err, "[CodeRepo.Create] marshal")
	}
	var usedAt any
	if code.UsedAt != nil {
		usedAt = formatTime(*code.UsedAt)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO codes (tenant_id, id, code_type, expires_at, used_at, data) VALUES (?, ?, ?, ?, ?, ?)`,
		code.TenantID, code.ID, string(code.Type), formatTime(code.ExpiresAt), usedAt, string(data))
	if isUniqueConstraintError(err) {
		return apperrors.ErrConflict
	}
	return errors.Wrap(err, "[CodeRepo.Create]")
}

func (r *CodeRepo) Get(ctx context.Context, tenantID, id string, codeType codes.Type) (*codes.Code, error) {
	var (
		data   string
		usedAt sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT data, used_at FROM codes WHERE tenant_id = ? AND id = ? AND code_type = ?`,
		tenantID, id, string(codeType)).Scan(&data, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[CodeRepo.Get]")
	}

	var code codes.Code
	if err := json.Unmarshal([]byte(data), &code); err != nil {
		return nil, errors.Wrap(err, "[CodeRepo.Get] unmarshal")
	}
	if usedAt.Valid {
		t, err := parseTime(usedAt.String)
		if err != nil {
			return nil, errors.Wrap(err, "[CodeRepo.Get] used_at")
		}
		code.UsedAt = &t
	}
	return &code, nil
}

// MarkUsed is a single conditional UPDATE; SQLite serializes writers so only
// one caller can observe used_at IS NULL.
func (r *CodeRepo) MarkUsed(ctx context.Context, tenantID, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE codes SET used_at = ? WHERE tenant_id = ? AND id = ? AND used_at IS NULL`,
		formatTime(at), tenantID, id)
	if err != nil {
		return errors.Wrap(err, "[CodeRepo.MarkUsed]")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "[CodeRepo.MarkUsed] rows affected")
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM codes WHERE tenant_id = ? AND id = ?`, tenantID, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "[CodeRepo.MarkUsed] exists")
	}
	return apperrors.ErrCodeAlreadyUsed
}

func (r *CodeRepo) Delete(ctx context.Context, tenantID, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM codes WHERE tenant_id = ? AND id = ?`, tenantID, id)
	return errors.Wrap(err, "[CodeRepo.Delete]")
}

// DeleteExpired removes codes that expired before cutoff and returns how many went.
func (r *CodeRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM codes WHERE expires_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, errors.Wrap(err, "[CodeRepo.DeleteExpired]")
	}
	return res.RowsAffected()
}
