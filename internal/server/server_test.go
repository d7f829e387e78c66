package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igtracker/pkg/scheduler"
	"igtracker/pkg/scraper"
	"igtracker/pkg/storage"
	"igtracker/pkg/tracker"
)

type stubFetcher struct {
	results map[string]scraper.FetchResult
}

func (f *stubFetcher) FetchProfile(_ context.Context, handle string) scraper.FetchResult {
	if res, ok := f.results[handle]; ok {
		return res
	}
	return scraper.FetchResult{Handle: handle, Status: scraper.StatusNotFound, Error: "profile not found"}
}

func (f *stubFetcher) FetchProfileMeta(_ context.Context, handle string) (scraper.ProfileMeta, error) {
	return scraper.ProfileMeta{Handle: handle, DisplayName: handle}, nil
}

func newTestServer(t *testing.T, user, pass string) (*httptest.Server, *stubFetcher, *Server) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "server.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &stubFetcher{results: map[string]scraper.FetchResult{}}
	svc := tracker.NewService(db, f)
	srv := New(svc, scheduler.New(svc), user, pass)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, f, srv
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t, "", "")
	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["scheduler_running"])
}

func TestProfileCRUD(t *testing.T) {
	ts, f, _ := newTestServer(t, "", "")
	f.results["alice"] = scraper.FetchResult{
		Handle: "alice", DisplayName: "Alice", FollowersCount: 2,
		Followers: []string{"bob", "carol"}, Status: scraper.StatusOK,
	}

	resp, err := http.Post(ts.URL+"/api/profiles", "application/json", strings.NewReader(`{"handle":"@Alice"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Duplicates conflict.
	resp, err = http.Post(ts.URL+"/api/profiles", "application/json", strings.NewReader(`{"handle":"alice"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Unknown handles are a 404 at add time.
	resp, err = http.Post(ts.URL+"/api/profiles", "application/json", strings.NewReader(`{"handle":"ghost"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/profiles/alice")
	require.NoError(t, err)
	var p storage.Profile
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	resp.Body.Close()
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, 2, p.FollowersCount)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/profiles/alice", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/profiles")
	require.NoError(t, err)
	var profiles []storage.Profile
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&profiles))
	resp.Body.Close()
	assert.Empty(t, profiles)
}

func TestConfigUpdateValidation(t *testing.T) {
	ts, _, _ := newTestServer(t, "", "")

	put := func(body string) int {
		req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/config", strings.NewReader(body))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusBadRequest, put(`{"poll_interval_minutes":5}`))
	assert.Equal(t, http.StatusOK, put(`{"poll_interval_minutes":30}`))

	resp, err := http.Get(ts.URL + "/api/config")
	require.NoError(t, err)
	var cfg map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	resp.Body.Close()
	assert.Equal(t, 30, cfg["poll_interval_minutes"])
}

func TestConfigUpdateRestartsRunningScheduler(t *testing.T) {
	ts, _, srv := newTestServer(t, "", "")

	require.NoError(t, srv.Scheduler.Start(context.Background(), 10))
	defer srv.Scheduler.Stop()

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/config", strings.NewReader(`{"poll_interval_minutes":60}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The scheduler was cycled onto the new interval.
	assert.True(t, srv.Scheduler.Running())
	assert.Equal(t, 60, srv.Scheduler.IntervalMinutes())

	// A rejected interval leaves the schedule alone.
	req, _ = http.NewRequest(http.MethodPut, ts.URL+"/api/config", strings.NewReader(`{"poll_interval_minutes":2}`))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.True(t, srv.Scheduler.Running())
	assert.Equal(t, 60, srv.Scheduler.IntervalMinutes())
}

func TestExportCSV(t *testing.T) {
	ts, f, _ := newTestServer(t, "", "")
	f.results["alice"] = scraper.FetchResult{
		Handle: "alice", FollowersCount: 1, Followers: []string{"bob"}, Status: scraper.StatusOK,
	}
	resp, err := http.Post(ts.URL+"/api/profiles", "application/json", strings.NewReader(`{"handle":"alice"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/export/alice/followers")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "handle,display_name,first_observed,last_confirmed", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "bob,"))

	resp, err = http.Get(ts.URL + "/api/export/alice/enemies")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBasicAuth(t *testing.T) {
	ts, _, _ := newTestServer(t, "admin", "hunter2")

	resp, err := http.Get(ts.URL + "/api/profiles")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/profiles", nil)
	req.SetBasicAuth("admin", "hunter2")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health stays reachable without credentials.
	resp, err = http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
