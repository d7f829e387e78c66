package storage

import "time"

// Relationship kinds.
const (
	KindFollower  = "follower"
	KindFollowing = "following"
	KindMutual    = "mutual"
)

// Relationship statuses.
const (
	StatusActive  = "active"
	StatusRemoved = "removed"
)

// Change event types.
const (
	EventFollowerAdded    = "follower_added"
	EventFollowerRemoved  = "follower_removed"
	EventFollowingAdded   = "following_added"
	EventFollowingRemoved = "following_removed"
)

// Audit event types.
const (
	AuditScrapingStarted   = "scraping_started"
	AuditScrapingCompleted = "scraping_completed"
	AuditScrapingFailed    = "scraping_failed"
	AuditAccountAdded      = "account_added"
	AuditAccountDeleted    = "account_deleted"
)

// Profile is a tracked account together with its latest observed state.
type Profile struct {
	Handle         string
	DisplayName    string
	AvatarURL      string
	Bio            string
	FollowersCount int
	FollowingCount int
	PostsCount     int
	Followers      []string
	Following      []string
	LastChecked    time.Time
	LastError      string
	IsActive       bool
	CreatedAt      time.Time
}

// Account is cached display metadata for any handle seen as a relation.
type Account struct {
	Handle      string
	DisplayName string
	AvatarURL   string
	Bio         string
	LastUpdated time.Time
}

// Relationship is one edge between a tracked profile and another handle,
// identified by (TrackedHandle, RelatedHandle, Kind). FirstObserved is set
// once and never updated; reactivation only touches LastConfirmed.
type Relationship struct {
	TrackedHandle string
	RelatedHandle string
	Kind          string // follower | following | mutual
	Status        string // active | removed
	DisplayName   string
	AvatarURL     string
	FirstObserved time.Time
	LastConfirmed time.Time
	RemovedAt     time.Time
}

// ChangeEvent records one detected follower/following change. Day and
// HourMinute are denormalized from OccurredAt for grouping and display.
type ChangeEvent struct {
	ID            int64
	TrackedHandle string
	RelatedHandle string
	EventType     string
	DisplayName   string
	AvatarURL     string
	OccurredAt    time.Time
	Day           string // YYYY-MM-DD
	HourMinute    string // HH:MM
}

// AuditEntry is one row of the operational audit trail.
type AuditEntry struct {
	ID         int64
	EventType  string
	Handle     string
	Detail     string
	OccurredAt time.Time
}
