package storage

import (
	"context"
	"database/sql"
	"errors"
)

// GetAccount returns cached metadata for a handle.
func (d *DB) GetAccount(ctx context.Context, handle string) (Account, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT handle, display_name, avatar_url, bio, last_updated FROM known_accounts WHERE handle = ?`, handle)
	var (
		a                 Account
		name, avatar, bio sql.NullString
		updated           string
	)
	err := row.Scan(&a.Handle, &name, &avatar, &bio, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	a.DisplayName = name.String
	a.AvatarURL = avatar.String
	a.Bio = bio.String
	a.LastUpdated = parseTime(updated)
	return a, nil
}

// UpsertAccount inserts or refreshes cached metadata for a handle.
func (d *DB) UpsertAccount(ctx context.Context, a Account) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO known_accounts(handle, display_name, avatar_url, bio, last_updated) VALUES(?,?,?,?,?)
ON CONFLICT(handle) DO UPDATE SET display_name = excluded.display_name, avatar_url = excluded.avatar_url, bio = excluded.bio, last_updated = excluded.last_updated`,
		a.Handle, nullIfEmpty(a.DisplayName), nullIfEmpty(a.AvatarURL), nullIfEmpty(a.Bio), timeStr(a.LastUpdated))
	return err
}
