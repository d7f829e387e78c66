package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// UpsertActive records a relationship as currently active. On first sight
// the row is created with FirstObserved = LastConfirmed; on later sightings
// only status, confirmation time and the metadata snapshot move.
func (d *DB) UpsertActive(ctx context.Context, r Relationship) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO relationships(tracked_handle, related_handle, kind, status, display_name, avatar_url, first_observed, last_confirmed, removed_at)
VALUES(?,?,?,'active',?,?,?,?,NULL)
ON CONFLICT(tracked_handle, related_handle, kind) DO UPDATE SET
  status = 'active',
  display_name = COALESCE(excluded.display_name, display_name),
  avatar_url = COALESCE(excluded.avatar_url, avatar_url),
  last_confirmed = excluded.last_confirmed,
  removed_at = NULL`,
		r.TrackedHandle, r.RelatedHandle, r.Kind,
		nullIfEmpty(r.DisplayName), nullIfEmpty(r.AvatarURL),
		timeStr(r.LastConfirmed), timeStr(r.LastConfirmed))
	return err
}

// MarkRemoved flips one relationship to removed. A row that is already
// removed or absent is left alone.
func (d *DB) MarkRemoved(ctx context.Context, tracked, related, kind string, at time.Time) error {
	_, err := d.sql.ExecContext(ctx, `UPDATE relationships SET status = 'removed', removed_at = ? WHERE tracked_handle = ? AND related_handle = ? AND kind = ? AND status = 'active'`,
		timeStr(at), tracked, related, kind)
	return err
}

// MarkRemovedExcept marks every active relationship of the given kind as
// removed unless its related handle appears in keep. Used to reconcile the
// mutual set against a freshly computed intersection.
func (d *DB) MarkRemovedExcept(ctx context.Context, tracked, kind string, keep []string, at time.Time) error {
	q := `UPDATE relationships SET status = 'removed', removed_at = ? WHERE tracked_handle = ? AND kind = ? AND status = 'active'`
	args := []interface{}{timeStr(at), tracked, kind}
	if len(keep) > 0 {
		q += " AND related_handle NOT IN (?" + strings.Repeat(",?", len(keep)-1) + ")"
		for _, h := range keep {
			args = append(args, h)
		}
	}
	_, err := d.sql.ExecContext(ctx, q, args...)
	return err
}

// ActiveHandles returns the related handles of all active relationships of
// one kind, ordered for stable comparisons.
func (d *DB) ActiveHandles(ctx context.Context, tracked, kind string) ([]string, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT related_handle FROM relationships WHERE tracked_handle = ? AND kind = ? AND status = 'active' ORDER BY related_handle`, tracked, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListRelationships returns relationships for a tracked handle filtered by
// kind and, when status is non-empty, by status.
func (d *DB) ListRelationships(ctx context.Context, tracked, kind, status string) ([]Relationship, error) {
	q := `SELECT tracked_handle, related_handle, kind, status, display_name, avatar_url, first_observed, last_confirmed, removed_at FROM relationships WHERE tracked_handle = ? AND kind = ?`
	args := []interface{}{tracked, kind}
	if status != "" {
		q += " AND status = ?"
		args = append(args, status)
	}
	q += " ORDER BY related_handle"
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Relationship
	for rows.Next() {
		var (
			r                Relationship
			name, avatar     sql.NullString
			first, confirmed string
			removed          sql.NullString
		)
		if err := rows.Scan(&r.TrackedHandle, &r.RelatedHandle, &r.Kind, &r.Status, &name, &avatar, &first, &confirmed, &removed); err != nil {
			return nil, err
		}
		r.DisplayName = name.String
		r.AvatarURL = avatar.String
		r.FirstObserved = parseTime(first)
		r.LastConfirmed = parseTime(confirmed)
		r.RemovedAt = parseTime(removed.String)
		out = append(out, r)
	}
	return out, rows.Err()
}
