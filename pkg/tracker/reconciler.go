// Package tracker owns the tracked-profile lifecycle: adding and removing
// profiles, applying detected follower/following changes to the
// relationship graph, and answering queries about changes and stats.
package tracker

import (
	"context"
	"time"

	"igtracker/internal/utils"
	"igtracker/pkg/diff"
	"igtracker/pkg/scraper"
	"igtracker/pkg/storage"
)

// metaStaleAfter is how long cached account metadata stays fresh before a
// relation sighting triggers a refetch.
const metaStaleAfter = 24 * time.Hour

// MetaFetcher resolves display metadata for a handle. *scraper.Scraper
// satisfies it; tests inject fakes.
type MetaFetcher interface {
	FetchProfileMeta(ctx context.Context, handle string) (scraper.ProfileMeta, error)
}

// Reconciler applies observed member lists and diffs to stored
// relationships. It is safe to re-apply the same observation: upserts and
// mutual recomputation are idempotent.
type Reconciler struct {
	db    *storage.DB
	meta  MetaFetcher
	stale time.Duration
	now   func() time.Time
}

func NewReconciler(db *storage.DB, meta MetaFetcher) *Reconciler {
	return &Reconciler{db: db, meta: meta, stale: metaStaleAfter, now: time.Now}
}

// ensureAccount returns cached metadata for a handle, refreshing it when
// missing or stale. Fetch failures degrade to whatever is cached, or to a
// bare handle; a relation must never fail to record because its metadata
// could not be resolved.
func (r *Reconciler) ensureAccount(ctx context.Context, handle string) storage.Account {
	acc, err := r.db.GetAccount(ctx, handle)
	if err == nil && r.now().Sub(acc.LastUpdated) < r.stale {
		return acc
	}

	if r.meta != nil {
		meta, ferr := r.meta.FetchProfileMeta(ctx, handle)
		if ferr == nil {
			fresh := storage.Account{
				Handle:      handle,
				DisplayName: meta.DisplayName,
				AvatarURL:   meta.AvatarURL,
				Bio:         meta.Bio,
				LastUpdated: r.now(),
			}
			if uerr := r.db.UpsertAccount(ctx, fresh); uerr != nil {
				utils.Log.Warn("failed to cache account metadata for ", handle, ": ", uerr)
			}
			return fresh
		}
		utils.Log.Debug("metadata fetch failed for ", handle, ": ", ferr)
	}

	if err == nil {
		return acc
	}
	return storage.Account{Handle: handle, DisplayName: handle}
}

// StoreBaseline records the first observed member lists for a profile as
// active relationships without emitting change events. Accounts present at
// tracking time are history, not news.
func (r *Reconciler) StoreBaseline(ctx context.Context, tracked string, followers, following []string) error {
	now := r.now()
	for _, h := range followers {
		acc := r.ensureAccount(ctx, h)
		err := r.db.UpsertActive(ctx, storage.Relationship{
			TrackedHandle: tracked, RelatedHandle: h, Kind: storage.KindFollower,
			DisplayName: acc.DisplayName, AvatarURL: acc.AvatarURL, LastConfirmed: now,
		})
		if err != nil {
			return err
		}
	}
	for _, h := range following {
		acc := r.ensureAccount(ctx, h)
		err := r.db.UpsertActive(ctx, storage.Relationship{
			TrackedHandle: tracked, RelatedHandle: h, Kind: storage.KindFollowing,
			DisplayName: acc.DisplayName, AvatarURL: acc.AvatarURL, LastConfirmed: now,
		})
		if err != nil {
			return err
		}
	}
	return r.RecomputeMutuals(ctx, tracked)
}

// ApplyChanges writes one observation's worth of diffs: relationship rows
// move first, then change events are recorded, then the mutual set is
// recomputed. A metadata failure for one handle never blocks the rest.
func (r *Reconciler) ApplyChanges(ctx context.Context, tracked string, followers, following diff.Changes) error {
	now := r.now()
	var events []storage.ChangeEvent

	apply := func(kind string, changes diff.Changes, addedType, removedType string) error {
		for _, h := range changes.Added {
			acc := r.ensureAccount(ctx, h)
			err := r.db.UpsertActive(ctx, storage.Relationship{
				TrackedHandle: tracked, RelatedHandle: h, Kind: kind,
				DisplayName: acc.DisplayName, AvatarURL: acc.AvatarURL, LastConfirmed: now,
			})
			if err != nil {
				return err
			}
			events = append(events, storage.ChangeEvent{
				TrackedHandle: tracked, RelatedHandle: h, EventType: addedType,
				DisplayName: acc.DisplayName, AvatarURL: acc.AvatarURL, OccurredAt: now,
			})
		}
		for _, h := range changes.Removed {
			if err := r.db.MarkRemoved(ctx, tracked, h, kind, now); err != nil {
				return err
			}
			acc := r.ensureAccount(ctx, h)
			events = append(events, storage.ChangeEvent{
				TrackedHandle: tracked, RelatedHandle: h, EventType: removedType,
				DisplayName: acc.DisplayName, AvatarURL: acc.AvatarURL, OccurredAt: now,
			})
		}
		return nil
	}

	if err := apply(storage.KindFollower, followers, storage.EventFollowerAdded, storage.EventFollowerRemoved); err != nil {
		return err
	}
	if err := apply(storage.KindFollowing, following, storage.EventFollowingAdded, storage.EventFollowingRemoved); err != nil {
		return err
	}

	if err := r.db.InsertChangeEvents(ctx, events); err != nil {
		return err
	}
	return r.RecomputeMutuals(ctx, tracked)
}

// RecomputeMutuals derives the mutual set as the intersection of active
// followers and active following and reconciles stored mutual rows against
// it. Running it twice in a row is a no-op.
func (r *Reconciler) RecomputeMutuals(ctx context.Context, tracked string) error {
	followers, err := r.db.ActiveHandles(ctx, tracked, storage.KindFollower)
	if err != nil {
		return err
	}
	following, err := r.db.ActiveHandles(ctx, tracked, storage.KindFollowing)
	if err != nil {
		return err
	}

	followerSet := make(map[string]bool, len(followers))
	for _, h := range followers {
		followerSet[h] = true
	}
	now := r.now()
	var mutuals []string
	for _, h := range following {
		if !followerSet[h] {
			continue
		}
		mutuals = append(mutuals, h)
		acc := r.ensureAccount(ctx, h)
		err := r.db.UpsertActive(ctx, storage.Relationship{
			TrackedHandle: tracked, RelatedHandle: h, Kind: storage.KindMutual,
			DisplayName: acc.DisplayName, AvatarURL: acc.AvatarURL, LastConfirmed: now,
		})
		if err != nil {
			return err
		}
	}
	return r.db.MarkRemovedExcept(ctx, tracked, storage.KindMutual, mutuals, now)
}
