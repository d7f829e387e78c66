package storage

import (
	"context"
	"database/sql"
	"time"
)

// InsertAudit appends one row to the audit trail. Audit writes are
// best-effort; callers typically log and continue on error.
func (d *DB) InsertAudit(ctx context.Context, eventType, handle, detail string, at time.Time) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO audit_log(event_type, handle, detail, occurred_at) VALUES(?,?,?,?)`,
		eventType, nullIfEmpty(handle), nullIfEmpty(detail), timeStr(at))
	return err
}

// ListAudit returns the most recent audit entries, optionally restricted
// to a set of event types.
func (d *DB) ListAudit(ctx context.Context, eventTypes []string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	q := "SELECT id, event_type, handle, detail, occurred_at FROM audit_log"
	args := []interface{}{}
	if len(eventTypes) > 0 {
		q += " WHERE event_type IN (?"
		args = append(args, eventTypes[0])
		for _, t := range eventTypes[1:] {
			q += ",?"
			args = append(args, t)
		}
		q += ")"
	}
	q += " ORDER BY occurred_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var (
			e              AuditEntry
			handle, detail sql.NullString
			occurred       string
		)
		if err := rows.Scan(&e.ID, &e.EventType, &handle, &detail, &occurred); err != nil {
			return nil, err
		}
		e.Handle = handle.String
		e.Detail = detail.String
		e.OccurredAt = parseTime(occurred)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
