package record

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/speedrun-record/internal/config"
	"github.com/speedrun-record/internal/domain"
)

// LeaderboardAPI is the upstream the fetcher reads from
type LeaderboardAPI interface {
	GetLeaderboard(ctx context.Context, gameID, categoryID string) (*domain.LeaderboardSnapshot, error)
	GetProfile(ctx context.Context, uri string) (*domain.UserProfile, error)
}

// Fetcher loads the configured leaderboard and resolves the record holder's
// display name.
type Fetcher struct {
	api    LeaderboardAPI
	config *config.RecordConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewFetcher creates a new fetcher
func NewFetcher(api LeaderboardAPI, cfg *config.RecordConfig, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		api:    api,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Fetch requests the leaderboard, then the profile of the first player of
// the first run, and writes the resolved name onto that player. The second
// request depends on the first, so the calls run in sequence.
func (f *Fetcher) Fetch(ctx context.Context) (*domain.LeaderboardSnapshot, error) {
	snapshot, err := f.api.GetLeaderboard(ctx, f.config.GameID, f.config.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("fetching leaderboard: %w", err)
	}
	if snapshot.Game == "" {
		snapshot.Game = f.config.GameID
	}
	if snapshot.Category == "" {
		snapshot.Category = f.config.CategoryID
	}
	snapshot.FetchedAt = f.now().UTC()

	leader, ok := snapshot.Leader()
	if !ok {
		f.logger.Warn("leaderboard has no runs",
			"game", snapshot.Game,
			"category", snapshot.Category,
		)
		return snapshot, nil
	}

	if len(leader.Run.Players) == 0 {
		f.logger.Warn("record holder not resolved", "run_id", leader.Run.ID, "error", domain.ErrNoPlayer)
		return snapshot, nil
	}

	player := &leader.Run.Players[0]
	profile, err := f.api.GetProfile(ctx, player.URI)
	if err != nil {
		return nil, fmt.Errorf("resolving record holder name: %w", err)
	}
	player.Name = profile.InternationalName

	return snapshot, nil
}
