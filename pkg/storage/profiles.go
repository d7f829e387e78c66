package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup targets a handle that is not stored.
var ErrNotFound = errors.New("not found")

func encodeList(list []string) interface{} {
	if len(list) == 0 {
		return nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil
	}
	return string(b)
}

func decodeList(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil
	}
	return out
}

// CreateProfile inserts a new tracked profile. The caller is expected to
// have checked for duplicates; a second insert for the same handle fails.
func (d *DB) CreateProfile(ctx context.Context, p Profile) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO tracked_profiles(handle, display_name, avatar_url, bio, followers_count, following_count, posts_count, followers_list, following_list, last_checked, last_error, is_active, created_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.Handle, nullIfEmpty(p.DisplayName), nullIfEmpty(p.AvatarURL), nullIfEmpty(p.Bio),
		p.FollowersCount, p.FollowingCount, p.PostsCount,
		encodeList(p.Followers), encodeList(p.Following),
		nullIfZero(p.LastChecked), nullIfEmpty(p.LastError),
		boolToInt(p.IsActive), timeStr(p.CreatedAt))
	return err
}

const profileColumns = "handle, display_name, avatar_url, bio, followers_count, following_count, posts_count, followers_list, following_list, last_checked, last_error, is_active, created_at"

func scanProfile(row interface{ Scan(...interface{}) error }) (Profile, error) {
	var (
		p                            Profile
		name, avatar, bio, errMsg    sql.NullString
		followersList, followingList sql.NullString
		lastChecked, createdAt       sql.NullString
		activeInt                    int
	)
	err := row.Scan(&p.Handle, &name, &avatar, &bio,
		&p.FollowersCount, &p.FollowingCount, &p.PostsCount,
		&followersList, &followingList, &lastChecked, &errMsg, &activeInt, &createdAt)
	if err != nil {
		return Profile{}, err
	}
	p.DisplayName = name.String
	p.AvatarURL = avatar.String
	p.Bio = bio.String
	p.LastError = errMsg.String
	p.Followers = decodeList(followersList)
	p.Following = decodeList(followingList)
	p.LastChecked = parseTime(lastChecked.String)
	p.CreatedAt = parseTime(createdAt.String)
	p.IsActive = activeInt == 1
	return p, nil
}

// GetProfile returns one tracked profile, active or not.
func (d *DB) GetProfile(ctx context.Context, handle string) (Profile, error) {
	row := d.sql.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM tracked_profiles WHERE handle = ?", handle)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	return p, err
}

// ListProfiles returns tracked profiles ordered by handle. When activeOnly
// is set, soft-deleted profiles are skipped.
func (d *DB) ListProfiles(ctx context.Context, activeOnly bool) ([]Profile, error) {
	q := "SELECT " + profileColumns + " FROM tracked_profiles"
	if activeOnly {
		q += " WHERE is_active = 1"
	}
	q += " ORDER BY handle"
	rows, err := d.sql.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateObservation stores the result of a successful check: counts, the
// member lists actually captured, refreshed metadata and the check time.
// Empty lists keep whatever was stored before so a degraded page never
// wipes good data.
func (d *DB) UpdateObservation(ctx context.Context, p Profile) error {
	q := `UPDATE tracked_profiles SET
  display_name = COALESCE(?, display_name),
  avatar_url = COALESCE(?, avatar_url),
  bio = COALESCE(?, bio),
  followers_count = ?, following_count = ?, posts_count = ?,
  followers_list = COALESCE(?, followers_list),
  following_list = COALESCE(?, following_list),
  last_checked = ?, last_error = NULL
WHERE handle = ?`
	res, err := d.sql.ExecContext(ctx, q,
		nullIfEmpty(p.DisplayName), nullIfEmpty(p.AvatarURL), nullIfEmpty(p.Bio),
		p.FollowersCount, p.FollowingCount, p.PostsCount,
		encodeList(p.Followers), encodeList(p.Following),
		timeStr(p.LastChecked), p.Handle)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// SetLastError records a failed check: the error message and the check
// time move, observed counts and lists stay as they were.
func (d *DB) SetLastError(ctx context.Context, handle, msg string, checkedAt time.Time) error {
	_, err := d.sql.ExecContext(ctx, `UPDATE tracked_profiles SET last_error = ?, last_checked = ? WHERE handle = ?`, nullIfEmpty(msg), timeStr(checkedAt), handle)
	return err
}

// SetActive flips the soft-delete flag.
func (d *DB) SetActive(ctx context.Context, handle string, active bool) error {
	res, err := d.sql.ExecContext(ctx, `UPDATE tracked_profiles SET is_active = ? WHERE handle = ?`, boolToInt(active), handle)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// DeleteProfile removes a tracked profile and everything recorded about
// it: relationships, change events and per-handle audit rows.
func (d *DB) DeleteProfile(ctx context.Context, handle string) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM tracked_profiles WHERE handle = ?`, handle)
	if err != nil {
		return err
	}
	if err = mustAffect(res); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM relationships WHERE tracked_handle = ?`, handle); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM change_events WHERE tracked_handle = ?`, handle); err != nil {
		return err
	}
	return tx.Commit()
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
