package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Store is a SQLite database holding the durable identity state: users, codes,
// login sessions, browser sessions, refresh tokens and audit logs.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path. Parent directories are created
// and the schema is applied on every open.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "[sqlite.Open] create database directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "[sqlite.Open] open database")
	}
	// modernc serializes writers per connection; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "[sqlite.Open] %s", pragma)
		}
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("path", path).Msg("sqlite store initialized")
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			tenant_id     TEXT NOT NULL,
			id            TEXT NOT NULL,
			provider      TEXT NOT NULL,
			email         TEXT NOT NULL DEFAULT '',
			username_norm TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			data          TEXT NOT NULL,
			PRIMARY KEY (tenant_id, id)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username
			ON users(tenant_id, provider, username_norm) WHERE username_norm != '';
		CREATE INDEX IF NOT EXISTS idx_users_email ON users(tenant_id, provider, email);

		CREATE TABLE IF NOT EXISTS codes (
			tenant_id  TEXT NOT NULL,
			id         TEXT NOT NULL,
			code_type  TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			used_at    TEXT,
			data       TEXT NOT NULL,
			PRIMARY KEY (tenant_id, id)
		);

		CREATE TABLE IF NOT EXISTS login_sessions (
			tenant_id  TEXT NOT NULL,
			id         TEXT NOT NULL,
			state      TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			data       TEXT NOT NULL,
			PRIMARY KEY (tenant_id, id)
		);

		CREATE TABLE IF NOT EXISTS sessions (
			tenant_id TEXT NOT NULL,
			id        TEXT NOT NULL,
			user_id   TEXT NOT NULL,
			data      TEXT NOT NULL,
			PRIMARY KEY (tenant_id, id)
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(tenant_id, user_id);

		CREATE TABLE IF NOT EXISTS refresh_tokens (
			tenant_id  TEXT NOT NULL,
			id         TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			data       TEXT NOT NULL,
			PRIMARY KEY (tenant_id, id)
		);

		CREATE INDEX IF NOT EXISTS idx_refresh_tokens_session ON refresh_tokens(tenant_id, session_id);

		CREATE TABLE IF NOT EXISTS audit_logs (
			log_id    TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			type      TEXT NOT NULL,
			date      TEXT NOT NULL,
			user_id   TEXT NOT NULL DEFAULT '',
			client_id TEXT NOT NULL DEFAULT '',
			data      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_audit_logs_tenant_date ON audit_logs(tenant_id, date DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(err, "[Store.createSchema]")
	}
	return nil
}

// Users, Codes and the other accessors return repositories sharing the store's connection.
func (s *Store) Users() *UserRepo                 { return &UserRepo{db: s.db} }
func (s *Store) Codes() *CodeRepo                 { return &CodeRepo{db: s.db} }
func (s *Store) LoginSessions() *LoginSessionRepo { return &LoginSessionRepo{db: s.db} }
func (s *Store) Sessions() *SessionRepo           { return &SessionRepo{db: s.db} }
func (s *Store) RefreshTokens() *RefreshTokenRepo { return &RefreshTokenRepo{db: s.db} }
func (s *Store) AuditSink() *AuditSink            { return &AuditSink{db: s.db} }

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// getData loads the data column of the single row matched by query.
func getData(ctx context.Context, db *sql.DB, dest any, query string, args ...any) error {
	var raw string
	err := db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), dest)
}

// affectedOrNotFound turns an UPDATE or DELETE that touched no row into ErrNotFound.
func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
