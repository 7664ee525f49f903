package redis_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-record/internal/config"
	"github.com/speedrun-record/internal/domain"
	"github.com/speedrun-record/internal/record"
	"github.com/speedrun-record/internal/redis"
)

const viewKey = "record:yo1yv1q5:4xk906k0:view"

func newStore(t *testing.T, ttl time.Duration) (*redis.SnapshotStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return redis.NewSnapshotStoreFromClient(client, "record", "yo1yv1q5:4xk906k0", ttl, logger), mr
}

func snapshot(runID, holder string) *domain.LeaderboardSnapshot {
	return &domain.LeaderboardSnapshot{
		Game:     "yo1yv1q5",
		Category: "4xk906k0",
		Runs: []domain.LeaderboardEntry{{
			Place: 1,
			Run: domain.Run{
				ID:      runID,
				Players: []domain.Player{{Rel: domain.PlayerRelUser, Name: holder}},
				Times:   domain.RunTimes{RealtimeT: 3661},
			},
		}},
		FetchedAt: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestSnapshotStore_EmptySlot(t *testing.T) {
	store, _ := newStore(t, 0)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSnapshotStore_SaveOnce(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t, time.Hour)

	ok, err := store.SaveOnce(ctx, snapshot("run1", "Alice"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SaveOnce(ctx, snapshot("run2", "Bob"))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "run1", got.Runs[0].Run.ID)
	assert.Equal(t, "Alice", got.Runs[0].Run.Players[0].Name)
	assert.True(t, got.FetchedAt.Equal(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)))

	assert.True(t, mr.Exists(viewKey))
	assert.Equal(t, time.Hour, mr.TTL(viewKey))
}

func TestSnapshotStore_DefaultConfigNeverExpires(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t, config.DefaultConfig().Redis.ViewTTL)

	_, err := store.SaveOnce(ctx, snapshot("run1", "Alice"))
	require.NoError(t, err)
	assert.Zero(t, mr.TTL(viewKey))

	mr.FastForward(30 * 24 * time.Hour)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "run1", got.Runs[0].Run.ID)
}

func TestSnapshotStore_ViewOutlivesExpiredKey(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t, time.Hour)
	view := record.NewView(store, &config.DefaultConfig().Record)

	ok, err := view.Publish(ctx, snapshot("run1", "Alice"))
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Hour)
	require.False(t, mr.Exists(viewKey))

	rec, err := view.Record(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Alice", rec.Holder)
	assert.Equal(t, "01:01:01", rec.Time)

	ok, err = view.Publish(ctx, snapshot("run2", "Bob"))
	require.NoError(t, err)
	assert.False(t, ok, "an expired key must not reopen the view")
}

func TestSnapshotStore_SharedBetweenViews(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t, 0)
	cfg := &config.DefaultConfig().Record
	first := record.NewView(store, cfg)
	second := record.NewView(store, cfg)

	ok, err := first.Publish(ctx, snapshot("run1", "Alice"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Publish(ctx, snapshot("run2", "Bob"))
	require.NoError(t, err)
	assert.False(t, ok)

	leader, err := second.Leader(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run1", leader.Run.ID)
}

func TestSnapshotStore_CorruptValue(t *testing.T) {
	store, mr := newStore(t, 0)
	require.NoError(t, mr.Set(viewKey, "not json"))

	_, err := store.Load(context.Background())
	require.Error(t, err)
}
