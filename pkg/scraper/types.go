package scraper

// Status classifies the outcome of a profile fetch.
type Status string

const (
	// StatusOK means the page was fetched and at least one aggregate count
	// was recovered.
	StatusOK Status = "ok_with_data"
	// StatusNoData means the transport succeeded but no counts could be
	// extracted. Callers must not overwrite previously known counts: a
	// genuinely empty account and a blocked fetch look the same here.
	StatusNoData Status = "ok_no_data"
	// StatusNotFound means the profile does not exist.
	StatusNotFound Status = "not_found"
	// StatusRateLimited means the upstream throttled us. Stored state must
	// not be altered; retry on a later cycle.
	StatusRateLimited Status = "rate_limited"
	// StatusFailed covers timeouts, transport errors and anything else
	// transient.
	StatusFailed Status = "failed"
)

// FetchResult is everything a single profile fetch recovered. Member lists
// are best-effort and frequently empty even when counts are positive; the
// counts are authoritative for totals, the lists only for diffing when
// non-empty.
type FetchResult struct {
	Handle      string
	DisplayName string
	AvatarURL   string
	Bio         string

	FollowersCount int
	FollowingCount int
	PostsCount     int

	Followers []string
	Following []string

	Status Status
	Error  string
}

// HasData reports whether the fetch recovered any aggregate signal.
// An account with zero followers, zero following and zero posts is
// indistinguishable from a blocked fetch, so this is deliberately loose.
func (r FetchResult) HasData() bool {
	return r.FollowersCount > 0 || r.FollowingCount > 0 || r.PostsCount > 0
}

// RateLimited is a convenience check used by callers deciding whether to
// leave stored state untouched.
func (r FetchResult) RateLimited() bool {
	return r.Status == StatusRateLimited
}

// ProfileMeta is the lightweight display metadata fetched for related
// accounts (the known-accounts cache).
type ProfileMeta struct {
	Handle      string
	DisplayName string
	AvatarURL   string
	Bio         string
}
