package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"igtracker/internal/utils"
	"igtracker/pkg/diff"
	"igtracker/pkg/scraper"
	"igtracker/pkg/storage"
)

var (
	// ErrAlreadyTracked is returned when adding a handle that is being
	// tracked and active.
	ErrAlreadyTracked = errors.New("profile is already being tracked")
	// ErrNotTracked is returned when operating on a handle never added.
	ErrNotTracked = errors.New("profile is not being tracked")
	// ErrEmptyHandle is returned when a handle normalizes to nothing.
	ErrEmptyHandle = errors.New("handle must not be empty")
)

// Fetcher is the part of the scraper the service needs.
type Fetcher interface {
	FetchProfile(ctx context.Context, handle string) scraper.FetchResult
	MetaFetcher
}

// Service ties fetching, diffing and storage together. All scheduler and
// HTTP operations go through it.
type Service struct {
	db      *storage.DB
	fetcher Fetcher
	rec     *Reconciler
	now     func() time.Time
}

func NewService(db *storage.DB, fetcher Fetcher) *Service {
	return &Service{
		db:      db,
		fetcher: fetcher,
		rec:     NewReconciler(db, fetcher),
		now:     time.Now,
	}
}

func (s *Service) audit(ctx context.Context, eventType, handle, detail string) {
	if err := s.db.InsertAudit(ctx, eventType, handle, detail, s.now()); err != nil {
		utils.Log.Warn("audit write failed: ", err)
	}
}

// AddProfile starts tracking a handle. The profile page is fetched up
// front so the caller learns immediately whether the handle exists and is
// reachable; the first observation becomes the baseline and produces no
// change events. Re-adding a soft-deleted profile reactivates it.
func (s *Service) AddProfile(ctx context.Context, handle string) (storage.Profile, error) {
	handle = diff.NormalizeHandle(handle)
	if handle == "" {
		return storage.Profile{}, ErrEmptyHandle
	}

	existing, err := s.db.GetProfile(ctx, handle)
	if err == nil {
		if existing.IsActive {
			return storage.Profile{}, ErrAlreadyTracked
		}
		if err := s.db.SetActive(ctx, handle, true); err != nil {
			return storage.Profile{}, err
		}
		s.audit(ctx, storage.AuditAccountAdded, handle, "reactivated")
		existing.IsActive = true
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.Profile{}, err
	}

	res := s.fetcher.FetchProfile(ctx, handle)
	switch res.Status {
	case scraper.StatusRateLimited:
		s.audit(ctx, storage.AuditScrapingFailed, handle, res.Error)
		return storage.Profile{}, scraper.ErrRateLimited
	case scraper.StatusNotFound:
		return storage.Profile{}, scraper.ErrNotFound
	case scraper.StatusFailed, scraper.StatusNoData:
		s.audit(ctx, storage.AuditScrapingFailed, handle, res.Error)
		return storage.Profile{}, fmt.Errorf("could not fetch profile %s: %s", handle, res.Error)
	}

	now := s.now()
	p := storage.Profile{
		Handle:         handle,
		DisplayName:    res.DisplayName,
		AvatarURL:      res.AvatarURL,
		Bio:            res.Bio,
		FollowersCount: res.FollowersCount,
		FollowingCount: res.FollowingCount,
		PostsCount:     res.PostsCount,
		Followers:      res.Followers,
		Following:      res.Following,
		LastChecked:    now,
		IsActive:       true,
		CreatedAt:      now,
	}
	if err := s.db.CreateProfile(ctx, p); err != nil {
		return storage.Profile{}, err
	}
	if err := s.rec.StoreBaseline(ctx, handle, res.Followers, res.Following); err != nil {
		return storage.Profile{}, err
	}
	s.audit(ctx, storage.AuditAccountAdded, handle, "")
	utils.Log.Info("now tracking ", handle, " (", res.FollowersCount, " followers)")
	return p, nil
}

// DeleteProfile stops tracking a handle. By default the profile is
// soft-deleted so history survives and re-adding reactivates it; purge
// removes the profile along with its relationships and change events.
func (s *Service) DeleteProfile(ctx context.Context, handle string, purge bool) error {
	handle = diff.NormalizeHandle(handle)
	var err error
	if purge {
		err = s.db.DeleteProfile(ctx, handle)
	} else {
		err = s.db.SetActive(ctx, handle, false)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotTracked
	}
	if err != nil {
		return err
	}
	s.audit(ctx, storage.AuditAccountDeleted, handle, "")
	return nil
}

// suppressError hides a stale failure message once the profile has real
// data: a profile that was fetched successfully at least once should not
// keep presenting a transient error to readers.
func suppressError(p storage.Profile) storage.Profile {
	if p.FollowersCount > 0 || p.FollowingCount > 0 {
		p.LastError = ""
	}
	return p
}

// GetProfile returns one tracked profile.
func (s *Service) GetProfile(ctx context.Context, handle string) (storage.Profile, error) {
	p, err := s.db.GetProfile(ctx, diff.NormalizeHandle(handle))
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Profile{}, ErrNotTracked
	}
	if err != nil {
		return storage.Profile{}, err
	}
	return suppressError(p), nil
}

// ListProfiles returns tracked profiles, active ones only by default.
func (s *Service) ListProfiles(ctx context.Context, includeInactive bool) ([]storage.Profile, error) {
	profiles, err := s.db.ListProfiles(ctx, !includeInactive)
	if err != nil {
		return nil, err
	}
	for i, p := range profiles {
		profiles[i] = suppressError(p)
	}
	return profiles, nil
}

// CheckOutcome summarizes one check of one profile.
type CheckOutcome struct {
	Handle           string
	Status           scraper.Status
	FollowerChanges  diff.Changes
	FollowingChanges diff.Changes
	Error            string
}

// CheckProfile fetches a profile and reconciles the result against stored
// state. Failed fetches record last_error and leave observed data alone; a
// rate-limited fetch in particular must not mutate anything else. Empty
// member lists on an otherwise successful fetch are treated as "lists not
// visible", never as "everyone left".
func (s *Service) CheckProfile(ctx context.Context, handle string) (CheckOutcome, error) {
	handle = diff.NormalizeHandle(handle)
	out := CheckOutcome{Handle: handle}

	stored, err := s.db.GetProfile(ctx, handle)
	if errors.Is(err, storage.ErrNotFound) {
		return out, ErrNotTracked
	}
	if err != nil {
		return out, err
	}

	res := s.fetcher.FetchProfile(ctx, handle)
	out.Status = res.Status
	out.Error = res.Error

	if res.Status != scraper.StatusOK {
		// A throttled fetch leaves the profile row exactly as it was, not
		// even last_checked moves; the next cycle simply retries. Other
		// failures record the message and the check time.
		if res.Status == scraper.StatusRateLimited {
			return out, nil
		}
		if err := s.db.SetLastError(ctx, handle, res.Error, s.now()); err != nil {
			return out, err
		}
		return out, nil
	}

	followers := res.Followers
	if len(followers) == 0 && len(stored.Followers) > 0 {
		utils.Log.Debug(handle, ": follower list not visible this round, keeping ", len(stored.Followers), " stored")
		followers = stored.Followers
	}
	following := res.Following
	if len(following) == 0 && len(stored.Following) > 0 {
		following = stored.Following
	}

	out.FollowerChanges = diff.Detect(stored.Followers, followers)
	out.FollowingChanges = diff.Detect(stored.Following, following)

	if !out.FollowerChanges.Empty() || !out.FollowingChanges.Empty() {
		if err := s.rec.ApplyChanges(ctx, handle, out.FollowerChanges, out.FollowingChanges); err != nil {
			return out, err
		}
	}

	err = s.db.UpdateObservation(ctx, storage.Profile{
		Handle:         handle,
		DisplayName:    res.DisplayName,
		AvatarURL:      res.AvatarURL,
		Bio:            res.Bio,
		FollowersCount: res.FollowersCount,
		FollowingCount: res.FollowingCount,
		PostsCount:     res.PostsCount,
		Followers:      res.Followers,
		Following:      res.Following,
		LastChecked:    s.now(),
	})
	return out, err
}

// ListChanges returns change events for one profile and relationship kind.
// Mutual has no events of its own: its history is the follower events of
// handles currently in the mutual set.
func (s *Service) ListChanges(ctx context.Context, handle, kind string, limit, offset int) ([]storage.ChangeEvent, error) {
	handle = diff.NormalizeHandle(handle)
	var types []string
	switch kind {
	case storage.KindFollower:
		types = []string{storage.EventFollowerAdded, storage.EventFollowerRemoved}
	case storage.KindFollowing:
		types = []string{storage.EventFollowingAdded, storage.EventFollowingRemoved}
	case storage.KindMutual:
		return s.listMutualChanges(ctx, handle, limit, offset)
	case "":
	default:
		return nil, fmt.Errorf("unknown relationship kind %q", kind)
	}
	return s.db.ListChangeEvents(ctx, storage.EventFilter{
		TrackedHandle: handle, EventTypes: types, Limit: limit, Offset: offset,
	})
}

func (s *Service) listMutualChanges(ctx context.Context, handle string, limit, offset int) ([]storage.ChangeEvent, error) {
	mutuals, err := s.db.ActiveHandles(ctx, handle, storage.KindMutual)
	if err != nil {
		return nil, err
	}
	mutualSet := make(map[string]bool, len(mutuals))
	for _, h := range mutuals {
		mutualSet[h] = true
	}
	events, err := s.db.ListChangeEvents(ctx, storage.EventFilter{
		TrackedHandle: handle,
		EventTypes:    []string{storage.EventFollowerAdded, storage.EventFollowerRemoved},
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		return nil, err
	}
	out := []storage.ChangeEvent{}
	for _, e := range events {
		if mutualSet[e.RelatedHandle] {
			out = append(out, e)
		}
	}
	return out, nil
}

// History is one page of a profile's full change history.
type History struct {
	Events []storage.ChangeEvent
	Total  int
}

// ListHistory returns all change events for a profile, paginated.
func (s *Service) ListHistory(ctx context.Context, handle string, limit, offset int) (History, error) {
	handle = diff.NormalizeHandle(handle)
	f := storage.EventFilter{TrackedHandle: handle, Limit: limit, Offset: offset}
	events, err := s.db.ListChangeEvents(ctx, f)
	if err != nil {
		return History{}, err
	}
	total, err := s.db.CountChangeEvents(ctx, f)
	if err != nil {
		return History{}, err
	}
	return History{Events: events, Total: total}, nil
}

// ListRelationships returns a profile's relationships of one kind,
// active by default or removed when removed is set.
func (s *Service) ListRelationships(ctx context.Context, handle, kind string, removed bool) ([]storage.Relationship, error) {
	status := storage.StatusActive
	if removed {
		status = storage.StatusRemoved
	}
	return s.db.ListRelationships(ctx, diff.NormalizeHandle(handle), kind, status)
}

// ListAudit exposes the audit trail; scrapingOnly restricts it to
// scraping lifecycle events.
func (s *Service) ListAudit(ctx context.Context, scrapingOnly bool, limit int) ([]storage.AuditEntry, error) {
	var types []string
	if scrapingOnly {
		types = []string{storage.AuditScrapingStarted, storage.AuditScrapingCompleted, storage.AuditScrapingFailed}
	}
	return s.db.ListAudit(ctx, types, limit)
}

// DB exposes the underlying store for callers that need direct access,
// such as the scheduler's audit hooks.
func (s *Service) DB() *storage.DB {
	return s.db
}
