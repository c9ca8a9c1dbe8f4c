package ingest

import (
	"context"
	"maps"
	"net/http"
	"net/http/httptest"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/garage/internal/availability"
	"github.com/jdholdren/garage/internal/database/databasetest"
	"github.com/jdholdren/garage/internal/garage"
	"github.com/jdholdren/garage/internal/sqlite"
	"github.com/jdholdren/garage/internal/sync"
)

const eventABC = `BEGIN:VEVENT
UID:abc
DTSTART;VALUE=DATE:20250701
DTEND;VALUE=DATE:20250704
SUMMARY:Turo trip
END:VEVENT
`

const eventDEF = `BEGIN:VEVENT
UID:def
DTSTART;VALUE=DATE:20250801
DTEND;VALUE=DATE:20250802
SUMMARY:Getaround trip
END:VEVENT
`

func calendar(events ...string) string {
	doc := "BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:-//test//test//EN\n"
	for _, ev := range events {
		doc += ev
	}
	return doc + "END:VCALENDAR\n"
}

// Serves whatever document is currently set, or the status if it isn't 200.
type upstream struct {
	mu     stdsync.Mutex
	doc    string
	status int
}

func (u *upstream) set(status int, doc string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status, u.doc = status, doc
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.status != http.StatusOK {
		w.WriteHeader(u.status)
		return
	}
	w.Header().Set("Content-Type", "text/calendar")
	w.Write([]byte(u.doc))
}

type fixture struct {
	svc      *Service
	repo     sqlite.Repo
	upstream *upstream
	url      string
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	dbx := databasetest.New(t)
	databasetest.InsertVehicle(t, dbx, "v1", "c1", "Blue Van")
	repo := sqlite.New(dbx)

	up := &upstream{status: http.StatusOK, doc: calendar(eventABC, eventDEF)}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	svc := New(repo, sync.NewFetcher(time.Second), Config{Parallelism: 2})
	svc.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }

	return fixture{svc: svc, repo: repo, upstream: up, url: srv.URL}
}

func TestRegisterFeed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	feed, res, err := f.svc.RegisterFeed(ctx, "v1", f.url+"/turo.ics", "Turo")
	require.NoError(t, err)
	assert.Equal(t, garage.SyncResult{Added: 2}, res)
	assert.Equal(t, "Turo", feed.Name)
	require.NotNil(t, feed.LastSyncedAt)

	feeds, err := f.svc.ListFeeds(ctx, "v1")
	require.NoError(t, err)
	assert.Len(t, feeds, 1)

	_, _, err = f.svc.RegisterFeed(ctx, "v1", f.url+"/turo.ics", "Turo again")
	require.ErrorIs(t, err, garage.ErrConflict)
}

func TestRegisterFeed_Invalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, u := range []string{"", "ftp://example.com/cal.ics", "/relative.ics", "https://"} {
		_, _, err := f.svc.RegisterFeed(ctx, "v1", u, "")
		require.ErrorIs(t, err, ErrInvalidFeedURL, u)
	}

	_, _, err := f.svc.RegisterFeed(ctx, "nope", f.url, "")
	require.ErrorIs(t, err, garage.ErrNotFound)
}

func TestRegisterFeed_FailedSyncRemovesFeed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.upstream.set(http.StatusNotFound, "")

	_, _, err := f.svc.RegisterFeed(ctx, "v1", f.url, "")
	var fetchErr *garage.FetchError
	require.ErrorAs(t, err, &fetchErr)

	feeds, err := f.svc.ListFeeds(ctx, "v1")
	require.NoError(t, err)
	assert.Empty(t, feeds)
}

func TestSync_AddThenRemove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	classifier := availability.NewClassifier(f.repo)
	f.upstream.set(http.StatusOK, calendar(eventABC))

	feed, _, err := f.svc.RegisterFeed(ctx, "v1", f.url, "")
	require.NoError(t, err)

	status, err := classifier.Classify(ctx, "v1", garage.MustDate("2025-07-02"))
	require.NoError(t, err)
	assert.Equal(t, garage.StatusBookedExternal, status)

	f.upstream.set(http.StatusOK, calendar())
	res, err := f.svc.Sync(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, garage.SyncResult{Removed: 1}, res)

	status, err = classifier.Classify(ctx, "v1", garage.MustDate("2025-07-02"))
	require.NoError(t, err)
	assert.Equal(t, garage.StatusAvailable, status)
}

func TestSync_EventWithDuration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	classifier := availability.NewClassifier(f.repo)
	f.upstream.set(http.StatusOK, calendar(`BEGIN:VEVENT
UID:ghi
DTSTART;VALUE=DATE:20250701
DURATION:P3D
SUMMARY:Airbnb stay
END:VEVENT
`))

	_, res, err := f.svc.RegisterFeed(ctx, "v1", f.url, "")
	require.NoError(t, err)
	assert.Equal(t, garage.SyncResult{Added: 1}, res)

	statuses, err := classifier.ClassifyRange(ctx, "v1", garage.Range{
		Start: garage.MustDate("2025-06-30"),
		End:   garage.MustDate("2025-07-04"),
	})
	require.NoError(t, err)

	got := maps.Collect(statuses)
	assert.Equal(t, garage.StatusAvailable, got[garage.MustDate("2025-06-30")])
	assert.Equal(t, garage.StatusBookedExternal, got[garage.MustDate("2025-07-01")])
	assert.Equal(t, garage.StatusBookedExternal, got[garage.MustDate("2025-07-02")])
	assert.Equal(t, garage.StatusBookedExternal, got[garage.MustDate("2025-07-03")])
	assert.Equal(t, garage.StatusAvailable, got[garage.MustDate("2025-07-04")])
}

func TestSync_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	feed, _, err := f.svc.RegisterFeed(ctx, "v1", f.url, "")
	require.NoError(t, err)

	res, err := f.svc.Sync(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, garage.SyncResult{Unchanged: 2}, res)
	assert.False(t, res.Changed())
}

func TestSync_RemovesOnlyTheMissingEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	feed, _, err := f.svc.RegisterFeed(ctx, "v1", f.url, "")
	require.NoError(t, err)
	before, err := f.repo.VehicleExternalEvents(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, before, 2)

	f.upstream.set(http.StatusOK, calendar(eventDEF))
	res, err := f.svc.Sync(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, garage.SyncResult{Removed: 1, Unchanged: 1}, res)

	after, err := f.repo.VehicleExternalEvents(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[1], after[0])
}

func TestSync_FailuresKeepStaleEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	feed, _, err := f.svc.RegisterFeed(ctx, "v1", f.url, "")
	require.NoError(t, err)

	f.upstream.set(http.StatusBadGateway, "")
	_, err = f.svc.Sync(ctx, feed.ID)
	var fetchErr *garage.FetchError
	require.ErrorAs(t, err, &fetchErr)

	f.upstream.set(http.StatusOK, "<html>maintenance</html>")
	_, err = f.svc.Sync(ctx, feed.ID)
	var parseErr *garage.ParseError
	require.ErrorAs(t, err, &parseErr)

	events, err := f.repo.VehicleExternalEvents(ctx, "v1")
	require.NoError(t, err)
	assert.Len(t, events, 2)

	after, err := f.repo.Feed(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, feed.LastSyncedAt, after.LastSyncedAt)
}

func TestSync_CountsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	feed, _, err := f.svc.RegisterFeed(ctx, "v1", f.url, "")
	require.NoError(t, err)

	f.upstream.set(http.StatusOK, calendar(eventABC, eventDEF, "BEGIN:VEVENT\nUID:broken\nDTSTART:soon\nEND:VEVENT\n"))
	res, err := f.svc.Sync(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, garage.SyncResult{Unchanged: 2, Skipped: 1}, res)
}

func TestSync_UnknownFeed(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Sync(context.Background(), "nope")
	require.ErrorIs(t, err, garage.ErrNotFound)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	good, _, err := f.svc.RegisterFeed(ctx, "v1", f.url+"/good.ics", "")
	require.NoError(t, err)
	bad, _, err := f.svc.RegisterFeed(ctx, "v1", f.url+"/bad.ics", "")
	require.NoError(t, err)

	// Point the second feed somewhere that's down.
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	require.NoError(t, f.repo.DeleteFeed(ctx, bad.ID))
	bad, err = f.repo.InsertFeed(ctx, garage.Feed{VehicleID: "v1", URL: down.URL})
	require.NoError(t, err)

	summary, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Feeds)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, garage.SyncResult{Unchanged: 2}, summary.Results[good.ID])
	assert.Contains(t, summary.Failures, bad.ID)
}

func TestDeleteFeed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	feed, _, err := f.svc.RegisterFeed(ctx, "v1", f.url, "")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteFeed(ctx, feed.ID))
	require.NoError(t, f.svc.DeleteFeed(ctx, feed.ID))

	events, err := f.repo.VehicleExternalEvents(ctx, "v1")
	require.NoError(t, err)
	assert.Empty(t, events)
}
