package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jrsteele09/go-identity-core/audit"
	"github.com/pkg/errors"
)

var _ audit.Sink = (*AuditSink)(nil)

// AuditSink is the durable destination of the buffered audit.Logger.
type AuditSink struct {
	db *sql.DB
}

// Write inserts a batch in one transaction. Entries already stored are skipped.
func (s *AuditSink) Write(ctx context.Context, entries []audit.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "[AuditSink.Write] begin")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO audit_logs (log_id, tenant_id, type, date, user_id, client_id, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "[AuditSink.Write] prepare")
	}
	defer stmt.Close()

	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return errors.Wrapf(err, "[AuditSink.Write] marshal %s", e.ID)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.TenantID, string(e.Type), formatTime(e.Date),
			e.UserID, e.ClientID, string(data)); err != nil {
			return errors.Wrapf(err, "[AuditSink.Write] insert %s", e.ID)
		}
	}
	return errors.Wrap(tx.Commit(), "[AuditSink.Write] commit")
}

// List returns the newest entries of tenantID first.
func (s *AuditSink) List(ctx context.Context, tenantID string, limit int) ([]audit.Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM audit_logs WHERE tenant_id = ? ORDER BY date DESC, log_id LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "[AuditSink.List]")
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "[AuditSink.List] scan")
		}
		var e audit.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, errors.Wrap(err, "[AuditSink.List] unmarshal")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "[AuditSink.List] rows")
}
