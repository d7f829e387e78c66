package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igtracker/pkg/scraper"
	"igtracker/pkg/storage"
)

type fakeFetcher struct {
	results map[string]scraper.FetchResult
	metas   map[string]scraper.ProfileMeta
}

func (f *fakeFetcher) FetchProfile(_ context.Context, handle string) scraper.FetchResult {
	if res, ok := f.results[handle]; ok {
		return res
	}
	return scraper.FetchResult{Handle: handle, Status: scraper.StatusNotFound, Error: "profile not found"}
}

func (f *fakeFetcher) FetchProfileMeta(_ context.Context, handle string) (scraper.ProfileMeta, error) {
	if m, ok := f.metas[handle]; ok {
		return m, nil
	}
	return scraper.ProfileMeta{Handle: handle, DisplayName: handle}, nil
}

func okResult(handle string, followers, following []string) scraper.FetchResult {
	return scraper.FetchResult{
		Handle:         handle,
		DisplayName:    handle,
		FollowersCount: len(followers),
		FollowingCount: len(following),
		Followers:      followers,
		Following:      following,
		Status:         scraper.StatusOK,
	}
}

func newTestService(t *testing.T) (*Service, *fakeFetcher) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "tracker.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fakeFetcher{
		results: map[string]scraper.FetchResult{},
		metas:   map[string]scraper.ProfileMeta{},
	}
	return NewService(db, f), f
}

func TestAddProfileStoresBaselineWithoutEvents(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()
	f.results["alice"] = okResult("alice", []string{"bob", "carol"}, []string{"bob", "dave"})

	p, err := s.AddProfile(ctx, "@Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Handle)
	assert.Equal(t, 2, p.FollowersCount)

	// Baseline relations are recorded, including the derived mutual set.
	followers, err := s.DB().ActiveHandles(ctx, "alice", storage.KindFollower)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, followers)
	mutuals, err := s.DB().ActiveHandles(ctx, "alice", storage.KindMutual)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, mutuals)

	// But no change events: accounts present at tracking time are history.
	h, err := s.ListHistory(ctx, "alice", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, h.Total)
}

func TestAddProfileErrors(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()
	_, err := s.AddProfile(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyHandle)

	f.results["alice"] = okResult("alice", []string{"bob"}, nil)
	_, err = s.AddProfile(ctx, "alice")
	require.NoError(t, err)
	_, err = s.AddProfile(ctx, "alice")
	assert.ErrorIs(t, err, ErrAlreadyTracked)

	_, err = s.AddProfile(ctx, "ghost")
	assert.ErrorIs(t, err, scraper.ErrNotFound)

	f.results["limited"] = scraper.FetchResult{Handle: "limited", Status: scraper.StatusRateLimited, Error: "rate limit exceeded"}
	_, err = s.AddProfile(ctx, "limited")
	assert.ErrorIs(t, err, scraper.ErrRateLimited)
}

func TestDeleteAndReactivate(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()
	f.results["alice"] = okResult("alice", []string{"bob"}, nil)

	_, err := s.AddProfile(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, s.DeleteProfile(ctx, "alice", false))

	profiles, err := s.ListProfiles(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, profiles)

	// Re-adding a soft-deleted profile reactivates it and keeps history.
	p, err := s.AddProfile(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	followers, _ := s.DB().ActiveHandles(ctx, "alice", storage.KindFollower)
	assert.Equal(t, []string{"bob"}, followers)
}

func TestDeletePurgeRemovesEverything(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()
	f.results["alice"] = okResult("alice", []string{"bob"}, nil)

	_, err := s.AddProfile(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, s.DeleteProfile(ctx, "alice", true))

	_, err = s.GetProfile(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotTracked)
	assert.ErrorIs(t, s.DeleteProfile(ctx, "alice", true), ErrNotTracked)
}

func TestCheckProfileDetectsChanges(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()
	f.results["alice"] = okResult("alice", []string{"bob", "carol"}, []string{"bob"})
	_, err := s.AddProfile(ctx, "alice")
	require.NoError(t, err)

	// carol leaves, dave arrives; alice follows carol back out of spite.
	f.results["alice"] = okResult("alice", []string{"bob", "dave"}, []string{"bob", "carol"})
	out, err := s.CheckProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, scraper.StatusOK, out.Status)
	assert.Equal(t, []string{"dave"}, out.FollowerChanges.Added)
	assert.Equal(t, []string{"carol"}, out.FollowerChanges.Removed)
	assert.Equal(t, []string{"carol"}, out.FollowingChanges.Added)

	events, err := s.ListChanges(ctx, "alice", storage.KindFollower, 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	removed, err := s.ListRelationships(ctx, "alice", storage.KindFollower, true)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "carol", removed[0].RelatedHandle)

	// Mutual set tracks the intersection of active follower and following.
	mutuals, err := s.DB().ActiveHandles(ctx, "alice", storage.KindMutual)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, mutuals)
}

func TestCheckProfileIdempotent(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()
	f.results["alice"] = okResult("alice", []string{"bob"}, []string{"bob"})
	_, err := s.AddProfile(ctx, "alice")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		out, err := s.CheckProfile(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, out.FollowerChanges.Empty())
		assert.True(t, out.FollowingChanges.Empty())
	}
	h, err := s.ListHistory(ctx, "alice", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, h.Total)
}

func TestCheckProfileEmptyListNotMassRemoval(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()
	f.results["alice"] = okResult("alice", []string{"bob", "carol"}, nil)
	_, err := s.AddProfile(ctx, "alice")
	require.NoError(t, err)

	// Counts still come through but the member list does not.
	f.results["alice"] = scraper.FetchResult{
		Handle: "alice", FollowersCount: 2, Status: scraper.StatusOK,
	}
	out, err := s.CheckProfile(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, out.FollowerChanges.Empty())

	followers, _ := s.DB().ActiveHandles(ctx, "alice", storage.KindFollower)
	assert.Equal(t, []string{"bob", "carol"}, followers)

	p, err := s.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, p.Followers)
}

func TestCheckProfileRateLimitedLeavesStateAlone(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()
	f.results["alice"] = okResult("alice", []string{"bob"}, nil)
	_, err := s.AddProfile(ctx, "alice")
	require.NoError(t, err)

	before, err := s.DB().GetProfile(ctx, "alice")
	require.NoError(t, err)

	f.results["alice"] = scraper.FetchResult{Handle: "alice", Status: scraper.StatusRateLimited, Error: "rate limit exceeded"}
	out, err := s.CheckProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, scraper.StatusRateLimited, out.Status)

	// Not even last_error or last_checked move on a throttled fetch.
	p, err := s.DB().GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, p.FollowersCount)
	assert.Equal(t, []string{"bob"}, p.Followers)
	assert.Empty(t, p.LastError)
	assert.True(t, p.LastChecked.Equal(before.LastChecked), "LastChecked moved: %v -> %v", before.LastChecked, p.LastChecked)
}

func TestErrorSuppressedOnceProfileHasData(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()
	f.results["alice"] = okResult("alice", []string{"bob"}, nil)
	_, err := s.AddProfile(ctx, "alice")
	require.NoError(t, err)

	f.results["alice"] = scraper.FetchResult{Handle: "alice", Status: scraper.StatusFailed, Error: "boom"}
	_, err = s.CheckProfile(ctx, "alice")
	require.NoError(t, err)

	// The raw row keeps the error; the read path hides it because the
	// profile already has real counts.
	raw, _ := s.DB().GetProfile(ctx, "alice")
	assert.Equal(t, "boom", raw.LastError)
	p, err := s.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, p.LastError)
}

func TestMutualChangesAreFilteredFollowerEvents(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()
	f.results["alice"] = okResult("alice", nil, []string{"bob", "carol"})
	_, err := s.AddProfile(ctx, "alice")
	require.NoError(t, err)

	// bob and dave start following; only bob is followed back.
	f.results["alice"] = okResult("alice", []string{"bob", "dave"}, []string{"bob", "carol"})
	_, err = s.CheckProfile(ctx, "alice")
	require.NoError(t, err)

	events, err := s.ListChanges(ctx, "alice", storage.KindMutual, 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "bob", events[0].RelatedHandle)
	assert.Equal(t, storage.EventFollowerAdded, events[0].EventType)
}

func TestMutualChangesPaginate(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()
	f.results["alice"] = okResult("alice", nil, []string{"bob", "carol"})
	_, err := s.AddProfile(ctx, "alice")
	require.NoError(t, err)

	// Both new followers are followed back, so both events are mutual.
	f.results["alice"] = okResult("alice", []string{"bob", "carol"}, []string{"bob", "carol"})
	_, err = s.CheckProfile(ctx, "alice")
	require.NoError(t, err)

	page1, err := s.ListChanges(ctx, "alice", storage.KindMutual, 1, 0)
	require.NoError(t, err)
	require.Len(t, page1, 1)
	assert.Equal(t, "carol", page1[0].RelatedHandle)

	page2, err := s.ListChanges(ctx, "alice", storage.KindMutual, 1, 1)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "bob", page2[0].RelatedHandle)
}

func TestGetStatsCumulativeAnchoredAtCurrentCounts(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()
	f.results["alice"] = okResult("alice", []string{"bob", "carol"}, nil)
	_, err := s.AddProfile(ctx, "alice")
	require.NoError(t, err)

	f.results["alice"] = okResult("alice", []string{"bob", "carol", "dave"}, nil)
	_, err = s.CheckProfile(ctx, "alice")
	require.NoError(t, err)

	stats, err := s.GetStats(ctx, "alice", 30)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.FollowersCount)
	require.Len(t, stats.Days, 1)
	assert.Equal(t, 1, stats.Days[0].FollowersAdded)
	assert.Equal(t, 0, stats.Days[0].FollowersRemoved)
	// One add since tracking began, so the day closes at the current count.
	assert.Equal(t, 3, stats.Days[0].CumulativeFollowers)
}

func TestGetStatsWindowsDaysButKeepsAnchor(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()
	f.results["alice"] = okResult("alice", []string{"bob"}, nil)
	_, err := s.AddProfile(ctx, "alice")
	require.NoError(t, err)

	// One follower arrived two months ago, another today.
	old := time.Now().UTC().AddDate(0, 0, -60)
	s.now = func() time.Time { return old }
	s.rec.now = s.now
	f.results["alice"] = okResult("alice", []string{"bob", "carol"}, nil)
	_, err = s.CheckProfile(ctx, "alice")
	require.NoError(t, err)

	s.now = time.Now
	s.rec.now = time.Now
	f.results["alice"] = okResult("alice", []string{"bob", "carol", "dave"}, nil)
	_, err = s.CheckProfile(ctx, "alice")
	require.NoError(t, err)

	// The default window hides the old day but its net change still feeds
	// the cumulative series, which must end at the current count.
	stats, err := s.GetStats(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, stats.Days, 1)
	assert.Equal(t, 1, stats.Days[0].FollowersAdded)
	assert.Equal(t, 3, stats.Days[0].CumulativeFollowers)

	// A wide enough window shows both days.
	stats, err = s.GetStats(ctx, "alice", 365)
	require.NoError(t, err)
	require.Len(t, stats.Days, 2)
	assert.Equal(t, 2, stats.Days[0].CumulativeFollowers)
	assert.Equal(t, 3, stats.Days[1].CumulativeFollowers)
}

func TestReconcilerCachesAccountMetadata(t *testing.T) {
	s, f := newTestService(t)
	ctx := context.Background()
	f.metas["bob"] = scraper.ProfileMeta{Handle: "bob", DisplayName: "Bob", AvatarURL: "https://cdn.example/bob.jpg"}
	f.results["alice"] = okResult("alice", []string{"bob"}, nil)

	_, err := s.AddProfile(ctx, "alice")
	require.NoError(t, err)

	acc, err := s.DB().GetAccount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", acc.DisplayName)
	assert.WithinDuration(t, time.Now(), acc.LastUpdated, time.Minute)

	rels, err := s.ListRelationships(ctx, "alice", storage.KindFollower, false)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "Bob", rels[0].DisplayName)
}
