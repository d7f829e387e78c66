package storage

import (
	"context"
	"database/sql"
	"strings"
)

// InsertChangeEvents writes a batch of change events in one transaction.
// Day and hour fields are derived from each event's OccurredAt.
func (d *DB) InsertChangeEvents(ctx context.Context, events []ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, e := range events {
		occurred := e.OccurredAt.UTC()
		_, err = tx.ExecContext(ctx, `INSERT INTO change_events(tracked_handle, related_handle, event_type, display_name, avatar_url, occurred_at, day, hour_minute) VALUES(?,?,?,?,?,?,?,?)`,
			e.TrackedHandle, e.RelatedHandle, e.EventType,
			nullIfEmpty(e.DisplayName), nullIfEmpty(e.AvatarURL),
			timeStr(occurred), occurred.Format("2006-01-02"), occurred.Format("15:04"))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// EventFilter narrows change event queries. Zero values match everything.
type EventFilter struct {
	TrackedHandle string
	EventTypes    []string
	Day           string
	Limit         int
	Offset        int
}

func (f EventFilter) where() (string, []interface{}) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if f.TrackedHandle != "" {
		where += " AND tracked_handle = ?"
		args = append(args, f.TrackedHandle)
	}
	if len(f.EventTypes) > 0 {
		where += " AND event_type IN (?" + strings.Repeat(",?", len(f.EventTypes)-1) + ")"
		for _, t := range f.EventTypes {
			args = append(args, t)
		}
	}
	if f.Day != "" {
		where += " AND day = ?"
		args = append(args, f.Day)
	}
	return where, args
}

// ListChangeEvents returns matching events, newest first.
func (d *DB) ListChangeEvents(ctx context.Context, f EventFilter) ([]ChangeEvent, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	where, args := f.where()
	q := "SELECT id, tracked_handle, related_handle, event_type, display_name, avatar_url, occurred_at, day, hour_minute FROM change_events " + where + " ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []ChangeEvent{}
	for rows.Next() {
		var (
			e            ChangeEvent
			name, avatar sql.NullString
			occurred     string
		)
		if err := rows.Scan(&e.ID, &e.TrackedHandle, &e.RelatedHandle, &e.EventType, &name, &avatar, &occurred, &e.Day, &e.HourMinute); err != nil {
			return nil, err
		}
		e.DisplayName = name.String
		e.AvatarURL = avatar.String
		e.OccurredAt = parseTime(occurred)
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountChangeEvents returns the total matching a filter, for pagination.
func (d *DB) CountChangeEvents(ctx context.Context, f EventFilter) (int, error) {
	where, args := f.where()
	var n int
	err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM change_events "+where, args...).Scan(&n)
	return n, err
}

// DailyCount is the number of events of one type on one day.
type DailyCount struct {
	Day       string
	EventType string
	Count     int
}

// DailyEventCounts aggregates a profile's events per day and type, oldest
// day first.
func (d *DB) DailyEventCounts(ctx context.Context, tracked string) ([]DailyCount, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT day, event_type, COUNT(*) FROM change_events WHERE tracked_handle = ? GROUP BY day, event_type ORDER BY day`, tracked)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DailyCount
	for rows.Next() {
		var c DailyCount
		if err := rows.Scan(&c.Day, &c.EventType, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
