// Package service runs the record fetch flow and answers queries about the
// displayed record.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/speedrun-record/internal/config"
	"github.com/speedrun-record/internal/domain"
	"github.com/speedrun-record/internal/metrics"
	"github.com/speedrun-record/internal/record"
)

// Fetcher produces a leaderboard snapshot with the holder's name resolved
type Fetcher interface {
	Fetch(ctx context.Context) (*domain.LeaderboardSnapshot, error)
}

// Archive persists published snapshots
type Archive interface {
	SaveSnapshot(ctx context.Context, board string, snapshot *domain.LeaderboardSnapshot) (string, error)
	ListSnapshots(ctx context.Context, board string, limit int) ([]domain.ArchivedSnapshot, error)
	LatestSnapshot(ctx context.Context, board string) (*domain.ArchivedSnapshot, error)
}

// Broadcaster pushes the loaded record to open pages. A nil record means
// the leaderboard is empty.
type Broadcaster interface {
	BroadcastRecord(board string, rec *domain.Record)
}

// EventPublisher emits record events to other systems
type EventPublisher interface {
	PublishRecordEvent(ctx context.Context, event domain.RecordEvent) error
}

// Sinks are the optional consumers notified after a snapshot is published
type Sinks struct {
	Archive     Archive
	Broadcaster Broadcaster
	Events      EventPublisher
}

// RecordService provides business logic for the displayed record
type RecordService struct {
	fetcher Fetcher
	view    *record.View
	config  *config.RecordConfig
	sinks   Sinks
	logger  *slog.Logger
	now     func() time.Time
}

// NewRecordService creates a new record service
func NewRecordService(
	fetcher Fetcher,
	view *record.View,
	cfg *config.RecordConfig,
	sinks Sinks,
	logger *slog.Logger,
) *RecordService {
	return &RecordService{
		fetcher: fetcher,
		view:    view,
		config:  cfg,
		sinks:   sinks,
		logger:  logger,
		now:     time.Now,
	}
}

// SetBroadcaster sets the sink that pushes the loaded record to pages. It
// must be called before Load.
func (s *RecordService) SetBroadcaster(b Broadcaster) {
	s.sinks.Broadcaster = b
}

// Title returns the display title of the leaderboard
func (s *RecordService) Title() string {
	return s.config.Title
}

// Board returns the identifier of the displayed leaderboard
func (s *RecordService) Board() string {
	return s.config.BoardID()
}

// Load runs the fetch flow once and publishes the result to the view. A
// failed fetch leaves the view loading; a fetch that completes after the
// view closed is discarded.
func (s *RecordService) Load(ctx context.Context) error {
	start := s.now()

	snapshot, err := s.fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil || s.view.Closed() {
			metrics.RecordLoads.WithLabelValues(metrics.OutcomeDiscarded).Inc()
			s.logger.Info("record load abandoned", "error", err)
			return fmt.Errorf("loading record: %w", err)
		}
		metrics.RecordLoads.WithLabelValues(metrics.OutcomeFailed).Inc()
		if failErr := s.view.Fail(err); failErr != nil {
			s.logger.Debug("view closed before failure was recorded", "error", failErr)
		}
		s.logger.Error("record load failed", "board", s.Board(), "error", err)
		return fmt.Errorf("loading record: %w", err)
	}

	written, err := s.view.Publish(ctx, snapshot)
	if err != nil {
		if errors.Is(err, domain.ErrViewClosed) {
			metrics.RecordLoads.WithLabelValues(metrics.OutcomeDiscarded).Inc()
			s.logger.Info("discarding snapshot fetched after shutdown", "board", s.Board())
		} else {
			metrics.RecordLoads.WithLabelValues(metrics.OutcomeFailed).Inc()
			_ = s.view.Fail(err)
		}
		return fmt.Errorf("publishing snapshot: %w", err)
	}
	if !written {
		metrics.RecordLoads.WithLabelValues(metrics.OutcomeDiscarded).Inc()
		s.logger.Info("view already populated, snapshot discarded", "board", s.Board())
		s.rebroadcast(ctx)
		return nil
	}

	rec, err := s.recordFrom(snapshot)
	if err != nil {
		metrics.RecordLoads.WithLabelValues(metrics.OutcomeEmpty).Inc()
		s.logger.Info("leaderboard has no record", "board", s.Board())
	} else {
		metrics.RecordLoads.WithLabelValues(metrics.OutcomeLoaded).Inc()
		s.logger.Info("record loaded",
			"board", s.Board(),
			"run_id", rec.RunID,
			"holder", rec.Holder,
			"time", rec.Time,
			"duration", s.now().Sub(start),
		)
	}

	s.notify(ctx, snapshot, rec)
	return nil
}

// rebroadcast pushes the record another loader stored to this process's
// subscribers. Archiving and events stay with the loader that won the write.
func (s *RecordService) rebroadcast(ctx context.Context) {
	if s.sinks.Broadcaster == nil {
		return
	}
	rec, err := s.view.Record(ctx, s.now())
	if err != nil && !errors.Is(err, domain.ErrNoRecord) {
		s.logger.Warn("stored record unavailable for broadcast", "board", s.Board(), "error", err)
		return
	}
	s.sinks.Broadcaster.BroadcastRecord(s.Board(), rec)
}

// recordFrom derives the record from a freshly fetched snapshot
func (s *RecordService) recordFrom(snapshot *domain.LeaderboardSnapshot) (*domain.Record, error) {
	leader, ok := snapshot.Leader()
	if !ok {
		return nil, domain.ErrNoRecord
	}
	return record.BuildRecord(leader, s.config, s.now())
}

// notify hands a published snapshot to the configured sinks. Sink failures
// are logged; the view already holds the snapshot.
func (s *RecordService) notify(ctx context.Context, snapshot *domain.LeaderboardSnapshot, rec *domain.Record) {
	board := s.Board()

	if s.sinks.Broadcaster != nil {
		s.sinks.Broadcaster.BroadcastRecord(board, rec)
	}

	if s.sinks.Archive != nil {
		if id, err := s.sinks.Archive.SaveSnapshot(ctx, board, snapshot); err != nil {
			s.logger.Warn("failed to archive snapshot", "board", board, "error", err)
		} else {
			s.logger.Debug("snapshot archived", "board", board, "id", id)
		}
	}

	if s.sinks.Events != nil {
		if err := s.sinks.Events.PublishRecordEvent(ctx, s.event(snapshot, rec)); err != nil {
			s.logger.Warn("failed to publish record event", "board", board, "error", err)
		}
	}
}

func (s *RecordService) event(snapshot *domain.LeaderboardSnapshot, rec *domain.Record) domain.RecordEvent {
	event := domain.RecordEvent{
		Type:       domain.EventTypeNoRecord,
		Board:      s.Board(),
		OccurredAt: s.now().UTC(),
	}
	if rec == nil {
		return event
	}

	event.Type = domain.EventTypeRecordLoaded
	event.RunID = rec.RunID
	event.Holder = rec.Holder
	event.Time = rec.Time
	if leader, ok := snapshot.Leader(); ok {
		event.VerifyDate = leader.Run.Status.VerifyDate
	}
	if rec.Embed != nil {
		event.Video = rec.Embed.Video
	}
	return event
}

// Current returns the displayed record as of now
func (s *RecordService) Current(ctx context.Context) (*domain.Record, error) {
	return s.view.Record(ctx, s.now())
}

// CurrentForBoard returns the displayed record if board is the one this
// service shows.
func (s *RecordService) CurrentForBoard(ctx context.Context, board string) (*domain.Record, error) {
	if board != s.Board() {
		return nil, fmt.Errorf("%w: unknown board %q", domain.ErrInvalidRequest, board)
	}
	return s.Current(ctx)
}

// Leaderboard returns the published snapshot
func (s *RecordService) Leaderboard(ctx context.Context) (*domain.LeaderboardSnapshot, error) {
	return s.view.Snapshot(ctx)
}

// LoadError returns why the record is still loading, if the fetch failed
func (s *RecordService) LoadError() error {
	return s.view.Err()
}

// Ready reports whether a snapshot has been published
func (s *RecordService) Ready(ctx context.Context) bool {
	_, err := s.view.Snapshot(ctx)
	return err == nil
}

// ListArchive returns archived snapshots of the board, newest first
func (s *RecordService) ListArchive(ctx context.Context, limit int) ([]domain.ArchivedSnapshot, error) {
	if s.sinks.Archive == nil {
		return nil, domain.ErrArchiveDisabled
	}
	snapshots, err := s.sinks.Archive.ListSnapshots(ctx, s.Board(), limit)
	if err != nil {
		return nil, fmt.Errorf("listing archive: %w", err)
	}
	return snapshots, nil
}

// LatestArchived returns the newest archived snapshot of the board
func (s *RecordService) LatestArchived(ctx context.Context) (*domain.ArchivedSnapshot, error) {
	if s.sinks.Archive == nil {
		return nil, domain.ErrArchiveDisabled
	}
	snapshot, err := s.sinks.Archive.LatestSnapshot(ctx, s.Board())
	if err != nil {
		return nil, fmt.Errorf("reading latest archive: %w", err)
	}
	return snapshot, nil
}
