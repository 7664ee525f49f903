package record_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-record/internal/domain"
	"github.com/speedrun-record/internal/record"
)

func TestView_StartsLoading(t *testing.T) {
	v := record.NewView(record.NewMemoryStore(), testRecordConfig())

	_, err := v.Snapshot(context.Background())
	require.ErrorIs(t, err, domain.ErrRecordLoading)

	_, err = v.Record(context.Background(), time.Now())
	require.ErrorIs(t, err, domain.ErrRecordLoading)
	assert.True(t, domain.IsPendingError(err))
}

func TestView_PublishOnce(t *testing.T) {
	ctx := context.Background()
	v := record.NewView(record.NewMemoryStore(), testRecordConfig())

	first := leaderboardWith(runBy(1, "run1", "u1"))
	second := leaderboardWith(runBy(1, "run2", "u2"))

	ok, err := v.Publish(ctx, first)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Publish(ctx, second)
	require.NoError(t, err)
	assert.False(t, ok, "a filled view must not be overwritten")

	leader, err := v.Leader(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run1", leader.Run.ID)
}

// forgetfulStore accepts every write and never returns it, like a Redis key
// that expired right after it was set.
type forgetfulStore struct{}

func (forgetfulStore) Load(context.Context) (*domain.LeaderboardSnapshot, error) {
	return nil, nil
}

func (forgetfulStore) SaveOnce(context.Context, *domain.LeaderboardSnapshot) (bool, error) {
	return true, nil
}

func TestView_KeepsSnapshotAfterStoreForgets(t *testing.T) {
	ctx := context.Background()
	v := record.NewView(forgetfulStore{}, testRecordConfig())

	ok, err := v.Publish(ctx, leaderboardWith(runBy(1, "run1", "u1")))
	require.NoError(t, err)
	require.True(t, ok)

	leader, err := v.Leader(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run1", leader.Run.ID)

	ok, err = v.Publish(ctx, leaderboardWith(runBy(1, "run2", "u2")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestView_PublishAfterClose(t *testing.T) {
	ctx := context.Background()
	v := record.NewView(record.NewMemoryStore(), testRecordConfig())
	v.Close()
	assert.True(t, v.Closed())

	_, err := v.Publish(ctx, leaderboardWith(runBy(1, "run1", "u1")))
	require.ErrorIs(t, err, domain.ErrViewClosed)

	require.ErrorIs(t, v.Fail(errors.New("late")), domain.ErrViewClosed)

	_, err = v.Snapshot(ctx)
	require.ErrorIs(t, err, domain.ErrRecordLoading)
}

func TestView_PublishNil(t *testing.T) {
	v := record.NewView(record.NewMemoryStore(), testRecordConfig())
	_, err := v.Publish(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestView_EmptyLeaderboard(t *testing.T) {
	ctx := context.Background()
	v := record.NewView(record.NewMemoryStore(), testRecordConfig())

	ok, err := v.Publish(ctx, leaderboardWith())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = v.Leader(ctx)
	require.ErrorIs(t, err, domain.ErrNoRecord)
}

func TestView_FailThenPublish(t *testing.T) {
	ctx := context.Background()
	v := record.NewView(record.NewMemoryStore(), testRecordConfig())

	require.NoError(t, v.Fail(domain.ErrUpstream))
	require.ErrorIs(t, v.Err(), domain.ErrUpstream)

	_, err := v.Publish(ctx, leaderboardWith(runBy(1, "run1", "u1")))
	require.NoError(t, err)
	assert.NoError(t, v.Err())
}

func TestView_Record(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	v := record.NewView(record.NewMemoryStore(), testRecordConfig())

	entry := runBy(1, "run1", "u1")
	entry.Run.Players[0].Name = "Alice"
	entry.Run.Status.VerifyDate = now.Add(-53 * time.Hour).Format(time.RFC3339)
	entry.Run.Videos = &domain.RunVideos{Links: []domain.VideoLink{{URI: "https://www.twitch.tv/videos/987"}}}

	_, err := v.Publish(ctx, leaderboardWith(entry))
	require.NoError(t, err)

	rec, err := v.Record(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, "Alice", rec.Holder)
	assert.Equal(t, "01:01:01", rec.Time)
	assert.Equal(t, "2 days and 5 hours", rec.Age)
	require.NotNil(t, rec.Embed)
	assert.Equal(t, "987", rec.Embed.Video)
}
