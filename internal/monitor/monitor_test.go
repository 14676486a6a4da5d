package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsaudit.onebusaway.org/internal/app"
	"gtfsaudit.onebusaway.org/internal/appconf"
	"gtfsaudit.onebusaway.org/internal/audit/catalog"
	"gtfsaudit.onebusaway.org/internal/auditdb"
	"gtfsaudit.onebusaway.org/internal/dataset/datasettest"
)

func newTestApp(t *testing.T) *app.Application {
	t.Helper()
	store, err := auditdb.NewClient(auditdb.NewConfig(":memory:", appconf.Test, false), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return &app.Application{Registry: catalog.Default(), Store: store}
}

func feedServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	body := datasettest.Zip(t, datasettest.MinimalFeed())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/gtfs.zip" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewValidatesInput(t *testing.T) {
	a := newTestApp(t)

	_, err := New(a, "/tmp/feed.zip", "@daily", 0)
	assert.ErrorContains(t, err, "http(s) url")

	_, err = New(a, "https://example.com/gtfs.zip", "every day", 0)
	assert.ErrorContains(t, err, "invalid monitor schedule")

	m, err := New(a, "https://example.com/gtfs.zip", "0 3 * * *", 0)
	require.NoError(t, err)
	from := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	assert.Equal(t, time.Date(2024, 5, 2, 3, 0, 0, 0, time.Local), m.Next(from))
}

func TestRunOnceStoresRun(t *testing.T) {
	a := newTestApp(t)
	var hits atomic.Int32
	srv := feedServer(t, &hits)

	m, err := New(a, srv.URL+"/gtfs.zip", "@daily", 30)
	require.NoError(t, err)

	_, ok := m.Last()
	assert.False(t, ok)

	res, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Empty(t, res.Error)
	assert.Equal(t, 2, res.Feed.Tables["stops"])

	last, ok := m.Last()
	require.True(t, ok)
	assert.Equal(t, res.RunID, last.RunID)

	runs, err := a.Store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, srv.URL+"/gtfs.zip", runs[0].Source)
}

func TestRunOnceRecordsFailure(t *testing.T) {
	a := newTestApp(t)
	var hits atomic.Int32
	srv := feedServer(t, &hits)

	m, err := New(a, srv.URL+"/missing.zip", "@daily", 0)
	require.NoError(t, err)

	res, err := m.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Contains(t, res.Error, "unexpected status")
	assert.Empty(t, res.RunID)

	last, ok := m.Last()
	require.True(t, ok)
	assert.NotEmpty(t, last.Error)
}

func TestScheduledRuns(t *testing.T) {
	a := newTestApp(t)
	var hits atomic.Int32
	srv := feedServer(t, &hits)

	m, err := New(a, srv.URL+"/gtfs.zip", "@every 1s", 0)
	require.NoError(t, err)
	m.Start()

	assert.Eventually(t, func() bool {
		_, ok := m.Last()
		return ok
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
	assert.GreaterOrEqual(t, hits.Load(), int32(1))
}
