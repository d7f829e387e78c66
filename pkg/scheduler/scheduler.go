// Package scheduler runs periodic checks of every active tracked profile.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"igtracker/internal/utils"
	"igtracker/pkg/scraper"
	"igtracker/pkg/storage"
	"igtracker/pkg/tracker"
)

const (
	// Poll interval bounds, in minutes. Anything faster than the minimum
	// draws blocks quickly; anything slower than a day is a misconfiguration.
	MinIntervalMinutes     = 10
	MaxIntervalMinutes     = 1440
	DefaultIntervalMinutes = 10

	// profileDelay spaces out consecutive profiles within one cycle, on
	// top of the scraper's own request cooldown.
	profileDelay = 3 * time.Second

	intervalConfigKey = "poll_interval_minutes"
)

// ErrIntervalOutOfRange is returned by Start for intervals outside the
// allowed bounds. The previous schedule, if any, keeps running.
var ErrIntervalOutOfRange = fmt.Errorf("poll interval must be between %d and %d minutes", MinIntervalMinutes, MaxIntervalMinutes)

// Scheduler drives recurring CheckAll cycles. Start and Stop are safe to
// call from any goroutine; a Stop never interrupts a cycle that is already
// underway.
type Scheduler struct {
	svc          *tracker.Service
	profileDelay time.Duration

	mu      sync.Mutex
	minutes int
	running bool
	stop    chan struct{}
	lastRun time.Time
}

func New(svc *tracker.Service) *Scheduler {
	return &Scheduler{svc: svc, profileDelay: profileDelay}
}

// Start begins polling every `minutes` minutes. An out-of-range interval
// is rejected without disturbing whatever schedule is already active.
// Starting while already running is a no-op; changing the interval takes
// a Stop followed by a Start.
func (s *Scheduler) Start(ctx context.Context, minutes int) error {
	if minutes < MinIntervalMinutes || minutes > MaxIntervalMinutes {
		return ErrIntervalOutOfRange
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.minutes = minutes
	s.running = true
	s.stop = make(chan struct{})

	go s.loop(ctx, s.stop, time.Duration(minutes)*time.Minute)
	utils.Log.Info("scheduler started, checking every ", minutes, " minutes")
	return nil
}

// Stop cancels the schedule. A cycle in flight finishes on its own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stop)
	s.running = false
	utils.Log.Info("scheduler stopped")
}

// Running reports whether a schedule is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// IntervalMinutes returns the active interval, or the default when the
// scheduler has never been started.
func (s *Scheduler) IntervalMinutes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.minutes == 0 {
		return DefaultIntervalMinutes
	}
	return s.minutes
}

// LastRun returns when the last cycle started.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

func (s *Scheduler) loop(ctx context.Context, stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckAll(ctx)
		}
	}
}

func (s *Scheduler) audit(ctx context.Context, eventType, handle, detail string) {
	if err := s.svc.DB().InsertAudit(ctx, eventType, handle, detail, time.Now()); err != nil {
		utils.Log.Warn("audit write failed: ", err)
	}
}

// CheckAll runs one full cycle over every active profile, spacing profiles
// out and surviving anything a single check throws at it. Every cycle and
// every profile leaves a started record and either a completed or a failed
// one.
func (s *Scheduler) CheckAll(ctx context.Context) {
	started := time.Now()
	s.mu.Lock()
	s.lastRun = started
	s.mu.Unlock()

	profiles, err := s.svc.ListProfiles(ctx, false)
	if err != nil {
		utils.Log.Error("could not list profiles for check cycle: ", err)
		s.audit(ctx, storage.AuditScrapingFailed, "", "cycle aborted: "+err.Error())
		return
	}
	s.audit(ctx, storage.AuditScrapingStarted, "", fmt.Sprintf("%d profiles", len(profiles)))

	failed := 0
	for i, p := range profiles {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.profileDelay):
			}
		}
		if !s.checkOne(ctx, p.Handle) {
			failed++
		}
	}

	detail := fmt.Sprintf("%d profiles, %d failed, took %s", len(profiles), failed, time.Since(started).Round(time.Millisecond))
	s.audit(ctx, storage.AuditScrapingCompleted, "", detail)
	utils.Log.Info("check cycle complete: ", detail)
}

// checkOne checks a single profile. Panics and errors are contained so the
// rest of the cycle proceeds.
func (s *Scheduler) checkOne(ctx context.Context, handle string) (ok bool) {
	started := time.Now()
	s.audit(ctx, storage.AuditScrapingStarted, handle, "")
	defer func() {
		if r := recover(); r != nil {
			ok = false
			utils.Log.Error("check of ", handle, " panicked: ", r)
			s.audit(ctx, storage.AuditScrapingFailed, handle, fmt.Sprint(r))
		}
	}()

	out, err := s.svc.CheckProfile(ctx, handle)
	if err != nil {
		utils.Log.Error("check of ", handle, " failed: ", err)
		s.audit(ctx, storage.AuditScrapingFailed, handle, err.Error())
		return false
	}
	if out.Status != scraper.StatusOK {
		utils.Log.Warn("check of ", handle, ": ", out.Status, " ", out.Error)
		s.audit(ctx, storage.AuditScrapingFailed, handle, out.Error)
		return false
	}

	changes := len(out.FollowerChanges.Added) + len(out.FollowerChanges.Removed) +
		len(out.FollowingChanges.Added) + len(out.FollowingChanges.Removed)
	if changes > 0 {
		utils.Log.Info(handle, ": +", len(out.FollowerChanges.Added), "/-", len(out.FollowerChanges.Removed), " followers, +",
			len(out.FollowingChanges.Added), "/-", len(out.FollowingChanges.Removed), " following")
	}
	s.audit(ctx, storage.AuditScrapingCompleted, handle, fmt.Sprintf("%d changes, took %s", changes, time.Since(started).Round(time.Millisecond)))
	return true
}

// LoadInterval reads the persisted poll interval, falling back to the
// default when unset or unparseable.
func LoadInterval(ctx context.Context, db *storage.DB) int {
	v, err := db.GetConfig(ctx, intervalConfigKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			utils.Log.Warn("could not read poll interval: ", err)
		}
		return DefaultIntervalMinutes
	}
	minutes, err := strconv.Atoi(v)
	if err != nil || minutes < MinIntervalMinutes || minutes > MaxIntervalMinutes {
		return DefaultIntervalMinutes
	}
	return minutes
}

// SaveInterval validates and persists the poll interval.
func SaveInterval(ctx context.Context, db *storage.DB, minutes int) error {
	if minutes < MinIntervalMinutes || minutes > MaxIntervalMinutes {
		return ErrIntervalOutOfRange
	}
	return db.SetConfig(ctx, intervalConfigKey, strconv.Itoa(minutes))
}
