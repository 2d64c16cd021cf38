package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/loginsession"
	"github.com/jrsteele09/go-identity-core/sessions"
	"github.com/pkg/errors"
)

var (
	_ loginsession.Repo = (*LoginSessionRepo)(nil)
	_ sessions.Repo     = (*SessionRepo)(nil)
)

type LoginSessionRepo struct {
	db *sql.DB
}

func (r *LoginSessionRepo) Create(ctx context.Context, ls *loginsession.LoginSession) error {
	data, err := json.Marshal(ls)
	if err != nil {
		return errors.Wrap(err, "[LoginSessionRepo.Create] marshal")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO login_sessions (tenant_id, id, state, expires_at, data) VALUES (?, ?, ?, ?, ?)`,
		ls.TenantID, ls.ID, string(ls.State), formatTime(ls.ExpiresAt), string(data))
	if isUniqueConstraintError(err) {
		return apperrors.ErrConflict
	}
	return errors.Wrap(err, "[LoginSessionRepo.Create]")
}

func (r *LoginSessionRepo) Get(ctx context.Context, tenantID, id string) (*loginsession.LoginSession, error) {
	var ls loginsession.LoginSession
	err := getData(ctx, r.db, &ls, `SELECT data FROM login_sessions WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "[LoginSessionRepo.Get]")
	}
	return &ls, nil
}

func (r *LoginSessionRepo) Update(ctx context.Context, ls *loginsession.LoginSession) error {
	data, err := json.Marshal(ls)
	if err != nil {
		return errors.Wrap(err, "[LoginSessionRepo.Update] marshal")
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE login_sessions SET state = ?, expires_at = ?, data = ? WHERE tenant_id = ? AND id = ?`,
		string(ls.State), formatTime(ls.ExpiresAt), string(data), ls.TenantID, ls.ID)
	if err != nil {
		return errors.Wrap(err, "[LoginSessionRepo.Update]")
	}
	return affectedOrNotFound(res)
}

type SessionRepo struct {
	db *sql.DB
}

func (r *SessionRepo) Create(ctx context.Context, s *sessions.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.Create] marshal")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (tenant_id, id, user_id, data) VALUES (?, ?, ?, ?)`,
		s.TenantID, s.ID, s.UserID, string(data))
	if isUniqueConstraintError(err) {
		return apperrors.ErrConflict
	}
	return errors.Wrap(err, "[SessionRepo.Create]")
}

func (r *SessionRepo) Get(ctx context.Context, tenantID, id string) (*sessions.Session, error) {
	var s sessions.Session
	err := getData(ctx, r.db, &s, `SELECT data FROM sessions WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "[SessionRepo.Get]")
	}
	return &s, nil
}

func (r *SessionRepo) Update(ctx context.Context, s *sessions.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.Update] marshal")
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET user_id = ?, data = ? WHERE tenant_id = ? AND id = ?`,
		s.UserID, string(data), s.TenantID, s.ID)
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.Update]")
	}
	return affectedOrNotFound(res)
}

func (r *SessionRepo) Revoke(ctx context.Context, tenantID, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET data = json_set(data, '$.revoked_at', ?) WHERE tenant_id = ? AND id = ?`,
		formatTime(at), tenantID, id)
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.Revoke]")
	}
	return affectedOrNotFound(res)
}

func (r *SessionRepo) ListByUser(ctx context.Context, tenantID, userID string) ([]*sessions.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT data FROM sessions WHERE tenant_id = ? AND user_id = ? ORDER BY id`, tenantID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[SessionRepo.ListByUser]")
	}
	defer rows.Close()

	var out []*sessions.Session
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "[SessionRepo.ListByUser] scan")
		}
		var s sessions.Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, errors.Wrap(err, "[SessionRepo.ListByUser] unmarshal")
		}
		out = append(out, &s)
	}
	return out, errors.Wrap(rows.Err(), "[SessionRepo.ListByUser] rows")
}
