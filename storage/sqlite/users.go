package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/users"
	"github.com/pkg/errors"
)

var _ users.UserRepo = (*UserRepo)(nil)

// UserRepo keeps the username uniqueness rule in a partial unique index, so
// concurrent writers racing for the same username see ErrConflict.
type UserRepo struct {
	db *sql.DB
}

func (r *UserRepo) Create(ctx context.Context, user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.UpdatedAt = user.CreatedAt

	data, err := json.Marshal(user)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.Create] marshal")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (tenant_id, id, provider, email, username_norm, password_hash, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.TenantID, user.ID, user.Provider, strings.ToLower(user.Email),
		users.NormalizeUsername(user.Username), user.PasswordHash, string(data))
	if isUniqueConstraintError(err) {
		return apperrors.ErrConflict
	}
	return errors.Wrap(err, "[UserRepo.Create]")
}

func (r *UserRepo) Update(ctx context.Context, user *users.User) error {
	user.UpdatedAt = time.Now()
	data, err := json.Marshal(user)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.Update] marshal")
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET provider = ?, email = ?, username_norm = ?, password_hash = ?, data = ?
		 WHERE tenant_id = ? AND id = ?`,
		user.Provider, strings.ToLower(user.Email), users.NormalizeUsername(user.Username),
		user.PasswordHash, string(data), user.TenantID, user.ID)
	if isUniqueConstraintError(err) {
		return apperrors.ErrConflict
	}
	if err != nil {
		return errors.Wrap(err, "[UserRepo.Update]")
	}
	return affectedOrNotFound(res)
}

func (r *UserRepo) Delete(ctx context.Context, tenantID, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE tenant_id = ? AND id = ?`, tenantID, userID)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.Delete]")
	}
	return affectedOrNotFound(res)
}

func (r *UserRepo) Get(ctx context.Context, tenantID, userID string) (*users.User, error) {
	return r.one(ctx, `WHERE tenant_id = ? AND id = ?`, tenantID, userID)
}

func (r *UserRepo) GetByEmail(ctx context.Context, tenantID, provider, email string) (*users.User, error) {
	return r.one(ctx, `WHERE tenant_id = ? AND provider = ? AND email = ?`, tenantID, provider, strings.ToLower(email))
}

func (r *UserRepo) GetByUsername(ctx context.Context, tenantID, provider, username string) (*users.User, error) {
	wanted := users.NormalizeUsername(username)
	if wanted == "" {
		return nil, apperrors.ErrNotFound
	}
	return r.one(ctx, `WHERE tenant_id = ? AND provider = ? AND username_norm = ?`, tenantID, provider, wanted)
}

func (r *UserRepo) List(ctx context.Context, tenantID string) ([]*users.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT data, password_hash FROM users WHERE tenant_id = ? ORDER BY id`, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "[UserRepo.List]")
	}
	defer rows.Close()

	out := make([]*users.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "[UserRepo.List] scan")
		}
		out = append(out, user)
	}
	return out, errors.Wrap(rows.Err(), "[UserRepo.List] rows")
}

func (r *UserRepo) one(ctx context.Context, where string, args ...any) (*users.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT data, password_hash FROM users `+where+` LIMIT 1`, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[UserRepo.one]")
	}
	return user, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanUser restores PasswordHash, which is never part of the JSON form.
func scanUser(row scanner) (*users.User, error) {
	var data, hash string
	if err := row.Scan(&data, &hash); err != nil {
		return nil, err
	}
	var user users.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, err
	}
	user.PasswordHash = hash
	return &user, nil
}
