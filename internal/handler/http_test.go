package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-record/internal/config"
	"github.com/speedrun-record/internal/domain"
	"github.com/speedrun-record/internal/handler"
	"github.com/speedrun-record/internal/record"
	"github.com/speedrun-record/internal/service"
	"github.com/speedrun-record/internal/websocket"
)

type stubFetcher struct {
	snapshot *domain.LeaderboardSnapshot
	err      error
}

func (f stubFetcher) Fetch(context.Context) (*domain.LeaderboardSnapshot, error) {
	return f.snapshot, f.err
}

type stubArchive struct {
	snapshots []domain.ArchivedSnapshot
	limit     int
	err       error
}

func (a *stubArchive) SaveSnapshot(context.Context, string, *domain.LeaderboardSnapshot) (string, error) {
	return "id", nil
}

func (a *stubArchive) ListSnapshots(_ context.Context, _ string, limit int) ([]domain.ArchivedSnapshot, error) {
	a.limit = limit
	return a.snapshots, nil
}

func (a *stubArchive) LatestSnapshot(_ context.Context, board string) (*domain.ArchivedSnapshot, error) {
	if a.err != nil {
		return nil, a.err
	}
	if len(a.snapshots) == 0 {
		return nil, fmt.Errorf("latest snapshot for %s: %w", board, domain.ErrSnapshotNotFound)
	}
	return &a.snapshots[0], nil
}

func aliceSnapshot() *domain.LeaderboardSnapshot {
	return &domain.LeaderboardSnapshot{
		Game:     "yo1yv1q5",
		Category: "4xk906k0",
		Runs: []domain.LeaderboardEntry{{
			Place: 1,
			Run: domain.Run{
				ID:      "run1",
				Players: []domain.Player{{Rel: domain.PlayerRelUser, Name: "Alice"}},
				Status:  domain.RunStatus{VerifyDate: time.Now().Add(-53 * time.Hour).UTC().Format(time.RFC3339)},
				Times:   domain.RunTimes{RealtimeT: 3661},
				Videos:  &domain.RunVideos{Links: []domain.VideoLink{{URI: "https://www.twitch.tv/videos/123456"}}},
			},
		}},
	}
}

func newRouter(t *testing.T, fetcher service.Fetcher, archive service.Archive) (http.Handler, *service.RecordService) {
	t.Helper()

	cfg := config.DefaultConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	view := record.NewView(record.NewMemoryStore(), &cfg.Record)
	svc := service.NewRecordService(fetcher, view, &cfg.Record, service.Sinks{Archive: archive}, logger)
	hub := websocket.NewHub(svc.CurrentForBoard, logger)

	return handler.NewHandler(svc, hub, logger).Router(), svc
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeRecordState(t *testing.T, body io.Reader) handler.RecordState {
	t.Helper()

	var resp struct {
		Success bool                `json:"success"`
		Data    handler.RecordState `json:"data"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	require.True(t, resp.Success)
	return resp.Data
}

func TestPage_Loading(t *testing.T) {
	router, _ := newRouter(t, stubFetcher{snapshot: aliceSnapshot()}, nil)

	resp := get(t, router, "/")
	require.Equal(t, http.StatusOK, resp.Code)

	body := resp.Body.String()
	assert.Contains(t, body, "<div>Loading...</div>")
	assert.NotContains(t, body, "Alice")
	assert.NotContains(t, body, "01:01:01")
	assert.NotContains(t, body, "World record:")
	assert.NotContains(t, body, "Twitch.Player")
}

func TestPage_Ready(t *testing.T) {
	router, svc := newRouter(t, stubFetcher{snapshot: aliceSnapshot()}, nil)
	require.NoError(t, svc.Load(context.Background()))

	resp := get(t, router, "/")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header().Get("Content-Type"))

	body := resp.Body.String()
	assert.NotContains(t, body, "Loading...")
	assert.Contains(t, body, "Alice")
	assert.Contains(t, body, "01:01:01")
	assert.Contains(t, body, "2 days and 5 hours")
	assert.Contains(t, body, `<div id="webPlayer"></div>`)
	assert.Contains(t, body, `"123456"`)
	assert.Regexp(t, `width:\s*856`, body)
	assert.Regexp(t, `height:\s*480`, body)
}

func TestPage_WithoutVideo(t *testing.T) {
	snap := aliceSnapshot()
	snap.Runs[0].Run.Videos = nil
	router, svc := newRouter(t, stubFetcher{snapshot: snap}, nil)
	require.NoError(t, svc.Load(context.Background()))

	body := get(t, router, "/").Body.String()
	assert.Contains(t, body, "Alice")
	assert.NotContains(t, body, "Twitch.Player")
}

func TestPage_Empty(t *testing.T) {
	router, svc := newRouter(t, stubFetcher{snapshot: &domain.LeaderboardSnapshot{}}, nil)
	require.NoError(t, svc.Load(context.Background()))

	body := get(t, router, "/").Body.String()
	assert.Contains(t, body, "no record available")
	assert.NotContains(t, body, "Loading...")
}

func TestGetRecord(t *testing.T) {
	tests := map[string]struct {
		fetcher   stubFetcher
		wantState string
		wantError string
	}{
		"loaded record": {
			fetcher:   stubFetcher{snapshot: aliceSnapshot()},
			wantState: handler.StateReady,
		},
		"empty leaderboard": {
			fetcher:   stubFetcher{snapshot: &domain.LeaderboardSnapshot{}},
			wantState: handler.StateEmpty,
		},
		"failed load stays loading": {
			fetcher:   stubFetcher{err: domain.ErrUpstream},
			wantState: handler.StateLoading,
			wantError: domain.ErrUpstream.Error(),
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			router, svc := newRouter(t, tt.fetcher, nil)
			_ = svc.Load(context.Background())

			resp := get(t, router, "/api/v1/record")
			require.Equal(t, http.StatusOK, resp.Code)

			state := decodeRecordState(t, resp.Body)
			assert.Equal(t, tt.wantState, state.State)
			assert.Equal(t, "yo1yv1q5:4xk906k0", state.Board)
			assert.Contains(t, state.Error, tt.wantError)
			if tt.wantState == handler.StateReady {
				require.NotNil(t, state.Record)
				assert.Equal(t, "Alice", state.Record.Holder)
			} else {
				assert.Nil(t, state.Record)
			}
		})
	}
}

func TestReadyCheck(t *testing.T) {
	router, svc := newRouter(t, stubFetcher{snapshot: aliceSnapshot()}, nil)

	assert.Equal(t, http.StatusServiceUnavailable, get(t, router, "/ready").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, router, "/api/v1/leaderboard").Code)

	require.NoError(t, svc.Load(context.Background()))

	assert.Equal(t, http.StatusOK, get(t, router, "/ready").Code)
	assert.Equal(t, http.StatusOK, get(t, router, "/health").Code)

	resp := get(t, router, "/api/v1/leaderboard")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"run1"`)
}

func TestListArchive(t *testing.T) {
	archive := &stubArchive{snapshots: []domain.ArchivedSnapshot{{ID: "a1", Holder: "Alice"}}}
	router, _ := newRouter(t, stubFetcher{}, archive)

	resp := get(t, router, "/api/v1/archive?limit=5")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"a1"`)
	assert.Equal(t, 5, archive.limit)

	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/v1/archive?limit=abc").Code)
}

func TestListArchive_Disabled(t *testing.T) {
	router, _ := newRouter(t, stubFetcher{}, nil)
	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/v1/archive").Code)
}

func TestGetLatestArchive(t *testing.T) {
	tests := map[string]struct {
		archive service.Archive
		status  int
		body    string
	}{
		"latest snapshot": {
			archive: &stubArchive{snapshots: []domain.ArchivedSnapshot{{ID: "a2", Holder: "Bob"}, {ID: "a1", Holder: "Alice"}}},
			status:  http.StatusOK,
			body:    `"a2"`,
		},
		"empty archive": {
			archive: &stubArchive{},
			status:  http.StatusNotFound,
			body:    "archived snapshot not found",
		},
		"archive disabled": {
			archive: nil,
			status:  http.StatusNotFound,
			body:    "snapshot archive is disabled",
		},
		"database error": {
			archive: &stubArchive{err: errors.New("connection refused")},
			status:  http.StatusInternalServerError,
			body:    "internal server error",
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			router, _ := newRouter(t, stubFetcher{}, tt.archive)
			resp := get(t, router, "/api/v1/archive/latest")
			assert.Equal(t, tt.status, resp.Code)
			assert.Contains(t, resp.Body.String(), tt.body)
		})
	}
}

func TestMetricsAndStats(t *testing.T) {
	router, _ := newRouter(t, stubFetcher{}, nil)

	metrics := get(t, router, "/metrics")
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "go_goroutines")

	stats := get(t, router, "/api/v1/ws/stats")
	require.Equal(t, http.StatusOK, stats.Code)
	assert.Contains(t, stats.Body.String(), `"total_connections":0`)
}
