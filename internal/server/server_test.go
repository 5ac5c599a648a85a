package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tweet-harvester/internal/metrics"
	"github.com/JakeFAU/tweet-harvester/internal/progress"
)

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := New(nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestProgressReportsTracker(t *testing.T) {
	t.Parallel()

	tracker := progress.NewTracker("run-42", nil)
	tracker.StartBatch("2020-05-01", 1, 2, 0, 0)
	tracker.RecordRow("2020-05-01", true)

	srv := New(tracker, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/progress", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap progress.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "run-42", snap.RunID)
	assert.Equal(t, "2020-05-01", snap.Current)
	require.Len(t, snap.Batches, 1)
	assert.Equal(t, 3, snap.Batches[0].Total)
	assert.Equal(t, 1, snap.Batches[0].Empty)
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Snapshot() progress.Snapshot {
	args := m.Called()
	return args.Get(0).(progress.Snapshot)
}

func TestProgressQueriesSourcePerRequest(t *testing.T) {
	t.Parallel()

	source := &mockSource{}
	source.On("Snapshot").Return(progress.Snapshot{RunID: "r", Batches: []progress.BatchStats{}}).Twice()

	srv := New(source, nil)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/progress", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"run_id":"r"`)
	}
	source.AssertExpectations(t)
}

func TestProgressWithoutTracker(t *testing.T) {
	t.Parallel()

	srv := New(nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/progress", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"batches":[]`)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	metrics.ObserveBatch(progress.StatusDone)
	srv := New(nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "harvest_batches_total")
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	srv := New(nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(nil, nil).ListenAndServe(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
