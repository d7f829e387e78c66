package storage

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS tracked_profiles (
  handle          TEXT PRIMARY KEY,
  display_name    TEXT,
  avatar_url      TEXT,
  bio             TEXT,
  followers_count INTEGER NOT NULL DEFAULT 0,
  following_count INTEGER NOT NULL DEFAULT 0,
  posts_count     INTEGER NOT NULL DEFAULT 0,
  followers_list  TEXT,
  following_list  TEXT,
  last_checked    TEXT,
  last_error      TEXT,
  is_active       INTEGER NOT NULL DEFAULT 1 CHECK (is_active IN (0,1)),
  created_at      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS known_accounts (
  handle       TEXT PRIMARY KEY,
  display_name TEXT,
  avatar_url   TEXT,
  bio          TEXT,
  last_updated TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS relationships (
  id             INTEGER PRIMARY KEY,
  tracked_handle TEXT NOT NULL,
  related_handle TEXT NOT NULL,
  kind           TEXT NOT NULL CHECK (kind IN ('follower','following','mutual')),
  status         TEXT NOT NULL CHECK (status IN ('active','removed')),
  display_name   TEXT,
  avatar_url     TEXT,
  first_observed TEXT NOT NULL,
  last_confirmed TEXT NOT NULL,
  removed_at     TEXT,
  UNIQUE(tracked_handle, related_handle, kind)
);
CREATE INDEX IF NOT EXISTS idx_rel_tracked ON relationships(tracked_handle, kind, status);
CREATE TABLE IF NOT EXISTS change_events (
  id             INTEGER PRIMARY KEY,
  tracked_handle TEXT NOT NULL,
  related_handle TEXT NOT NULL,
  event_type     TEXT NOT NULL CHECK (event_type IN ('follower_added','follower_removed','following_added','following_removed')),
  display_name   TEXT,
  avatar_url     TEXT,
  occurred_at    TEXT NOT NULL,
  day            TEXT NOT NULL,
  hour_minute    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_tracked ON change_events(tracked_handle, occurred_at);
CREATE INDEX IF NOT EXISTS idx_events_day ON change_events(tracked_handle, day);
CREATE TABLE IF NOT EXISTS audit_log (
  id          INTEGER PRIMARY KEY,
  event_type  TEXT NOT NULL,
  handle      TEXT,
  detail      TEXT,
  occurred_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_time ON audit_log(occurred_at);
CREATE TABLE IF NOT EXISTS config (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// timeStr serializes timestamps for storage. All rows written by this
// package carry RFC3339 UTC strings.
func timeStr(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime reads back a stored timestamp, tolerating the bare SQLite
// CURRENT_TIMESTAMP format in case rows were touched by hand.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return timeStr(t)
}
