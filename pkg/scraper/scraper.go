// Package scraper fetches public profile pages and extracts aggregate
// counts, display metadata and best-effort member lists. It never writes
// to storage and never panics on a hostile page: every expected failure
// mode comes back as a classified FetchResult.
package scraper

import (
	"context"
	"errors"
	"fmt"
	stdhtml "html"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"igtracker/pkg/diff"
)

const (
	defaultBaseURL      = "https://www.instagram.com"
	defaultRequestDelay = 2 * time.Second
	defaultTimeout      = 15 * time.Second

	// memberListCap bounds how many usernames we keep from a members page.
	memberListCap = 1000
)

var (
	// ErrNotFound is returned by FetchProfileMeta when the profile is absent.
	ErrNotFound = errors.New("profile not found")
	// ErrRateLimited is returned when the upstream throttled the request.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Config tunes a Scraper. Zero values fall back to defaults.
type Config struct {
	BaseURL      string
	RequestDelay time.Duration
	Timeout      time.Duration
}

// Scraper fetches profile pages. The Cooldown is shared process state:
// construct one Scraper and inject it everywhere fetches happen.
type Scraper struct {
	baseURL  string
	client   *retryablehttp.Client
	cooldown *Cooldown
}

// New builds a Scraper with a retrying HTTP client. 404 and 429 are
// classified by the caller and must not be retried by the transport.
func New(cfg Config) *Scraper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RequestDelay <= 0 {
		cfg.RequestDelay = defaultRequestDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 2
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 4 * time.Second
	client.HTTPClient.Timeout = cfg.Timeout
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusNotFound) {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	return &Scraper{
		baseURL:  cfg.BaseURL,
		client:   client,
		cooldown: NewCooldown(cfg.RequestDelay),
	}
}

// FetchProfile fetches a profile page and returns a classified result.
// It never returns an error for expected failure modes; inspect Status.
func (s *Scraper) FetchProfile(ctx context.Context, handle string) FetchResult {
	handle = diff.NormalizeHandle(handle)
	res := FetchResult{Handle: handle, DisplayName: handle}

	if err := s.cooldown.Wait(ctx); err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		return res
	}

	resp, err := fetchPage(ctx, s.client, s.baseURL+"/"+handle+"/")
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		return res
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		res.Status = StatusRateLimited
		res.Error = "rate limit exceeded, wait before trying again"
		return res
	case resp.StatusCode == http.StatusNotFound:
		res.Status = StatusNotFound
		res.Error = "profile not found"
		return res
	case resp.StatusCode != http.StatusOK:
		res.Status = StatusFailed
		res.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return res
	}

	p := newPage(resp.Body, resp.Title)
	got := extractProfile(p, handle)
	res.DisplayName = got.displayName
	res.AvatarURL = got.avatarURL
	res.Bio = got.bio
	res.FollowersCount = got.followers
	res.FollowingCount = got.following
	res.PostsCount = got.posts

	res.Followers, res.Following = extractMemberLists(p)

	// Lists embedded in the profile page are rare; the dedicated members
	// pages occasionally expose partial lists without authentication.
	if len(res.Followers) == 0 && res.FollowersCount > 0 {
		res.Followers = s.fetchMemberList(ctx, handle, "followers", res.FollowersCount)
	}
	if len(res.Following) == 0 && res.FollowingCount > 0 {
		res.Following = s.fetchMemberList(ctx, handle, "following", res.FollowingCount)
	}
	res.Followers = diff.NormalizeHandles(res.Followers)
	res.Following = diff.NormalizeHandles(res.Following)

	if res.HasData() {
		res.Status = StatusOK
	} else {
		res.Status = StatusNoData
		res.Error = "could not extract any data; page structure may have changed or requests are being blocked"
	}
	return res
}

// fetchMemberList fetches /handle/followers/ or /handle/following/ and
// scrapes whatever usernames the unauthenticated page exposes. Always
// best-effort: any failure yields an empty list.
func (s *Scraper) fetchMemberList(ctx context.Context, handle, kind string, expected int) []string {
	if err := s.cooldown.Wait(ctx); err != nil {
		return nil
	}
	resp, err := fetchPage(ctx, s.client, s.baseURL+"/"+handle+"/"+kind+"/")
	if err != nil || resp.StatusCode != http.StatusOK {
		return nil
	}

	p := newPage(resp.Body, resp.Title)
	usernames := extractProfileLinks(p, handle)

	embeddedFollowers, embeddedFollowing := extractMemberLists(p)
	if kind == "followers" {
		usernames = append(usernames, embeddedFollowers...)
	} else {
		usernames = append(usernames, embeddedFollowing...)
	}

	usernames = diff.NormalizeHandles(usernames)
	limit := expected
	if limit > memberListCap {
		limit = memberListCap
	}
	if len(usernames) > limit {
		usernames = usernames[:limit]
	}
	return usernames
}

// FetchProfileMeta fetches just the display metadata for a handle, for the
// known-accounts cache. Unlike FetchProfile it returns errors, because the
// caller degrades to a bare handle on any failure.
func (s *Scraper) FetchProfileMeta(ctx context.Context, handle string) (ProfileMeta, error) {
	handle = diff.NormalizeHandle(handle)
	meta := ProfileMeta{Handle: handle, DisplayName: handle}

	if err := s.cooldown.Wait(ctx); err != nil {
		return meta, err
	}

	resp, err := fetchPage(ctx, s.client, s.baseURL+"/"+handle+"/")
	if err != nil {
		return meta, err
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return meta, ErrRateLimited
	case http.StatusNotFound:
		return meta, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return meta, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	p := newPage(resp.Body, resp.Title)
	if name := nameFromTitle(resp.Title); name != "" {
		meta.DisplayName = name
	}
	meta.AvatarURL = metaProperty(p, "og:image")
	if desc := metaProperty(p, "og:description"); desc != "" {
		meta.Bio = strings.TrimSpace(strings.SplitN(stdhtml.UnescapeString(desc), " - ", 2)[0])
	}
	return meta, nil
}
