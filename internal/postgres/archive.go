// Package postgres archives every snapshot the service publishes.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/speedrun-record/internal/config"
	"github.com/speedrun-record/internal/domain"
)

// DefaultListLimit caps archive listings when no limit is given
const DefaultListLimit = 20

// MaxListLimit is the largest listing the archive returns
const MaxListLimit = 100

// Repository provides PostgreSQL-based snapshot archiving
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(ctx context.Context, cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return NewRepositoryFromPool(pool, logger), nil
}

// NewRepositoryFromPool wraps an existing pool
func NewRepositoryFromPool(pool *pgxpool.Pool, logger *slog.Logger) *Repository {
	return &Repository{
		pool:   pool,
		logger: logger,
	}
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS record_snapshots (
			id UUID PRIMARY KEY,
			board VARCHAR(128) NOT NULL,
			run_id VARCHAR(64),
			holder VARCHAR(255),
			realtime_t DOUBLE PRECISION NOT NULL DEFAULT 0,
			verify_date VARCHAR(32),
			video_uri TEXT,
			run_count INT NOT NULL DEFAULT 0,
			fetched_at TIMESTAMPTZ NOT NULL,
			payload JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_record_snapshots_board ON record_snapshots(board, fetched_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// Summarize flattens a snapshot into an archive row
func Summarize(board string, snapshot *domain.LeaderboardSnapshot) domain.ArchivedSnapshot {
	row := domain.ArchivedSnapshot{
		Board:     board,
		RunCount:  len(snapshot.Runs),
		FetchedAt: snapshot.FetchedAt,
		Snapshot:  *snapshot,
	}

	leader, ok := snapshot.Leader()
	if !ok {
		return row
	}
	row.RunID = leader.Run.ID
	row.RealtimeT = leader.Run.Times.RealtimeT
	row.VerifyDate = leader.Run.Status.VerifyDate
	if len(leader.Run.Players) > 0 {
		row.Holder = leader.Run.Players[0].Name
	}
	if uri, ok := leader.Run.FirstVideoURI(); ok {
		row.VideoURI = uri
	}
	return row
}

// SaveSnapshot archives a published snapshot and returns its id
func (r *Repository) SaveSnapshot(ctx context.Context, board string, snapshot *domain.LeaderboardSnapshot) (string, error) {
	row := Summarize(board, snapshot)
	row.ID = uuid.NewString()

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("marshaling snapshot: %w", err)
	}

	query := `
		INSERT INTO record_snapshots (id, board, run_id, holder, realtime_t, verify_date, video_uri, run_count, fetched_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		row.ID,
		row.Board,
		row.RunID,
		row.Holder,
		row.RealtimeT,
		row.VerifyDate,
		row.VideoURI,
		row.RunCount,
		row.FetchedAt,
		payload,
	)
	if err != nil {
		return "", fmt.Errorf("archiving snapshot: %w", err)
	}
	return row.ID, nil
}

// ListSnapshots returns archived snapshots for a board, newest first
func (r *Repository) ListSnapshots(ctx context.Context, board string, limit int) ([]domain.ArchivedSnapshot, error) {
	limit = ClampLimit(limit)

	query := `
		SELECT id, board, COALESCE(run_id, ''), COALESCE(holder, ''), realtime_t,
			   COALESCE(verify_date, ''), COALESCE(video_uri, ''), run_count, fetched_at, payload
		FROM record_snapshots
		WHERE board = $1
		ORDER BY fetched_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, board, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []domain.ArchivedSnapshot{}
	for rows.Next() {
		var (
			row     domain.ArchivedSnapshot
			payload []byte
		)
		err := rows.Scan(
			&row.ID,
			&row.Board,
			&row.RunID,
			&row.Holder,
			&row.RealtimeT,
			&row.VerifyDate,
			&row.VideoURI,
			&row.RunCount,
			&row.FetchedAt,
			&payload,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		if err := json.Unmarshal(payload, &row.Snapshot); err != nil {
			return nil, fmt.Errorf("decoding snapshot %s: %w", row.ID, err)
		}
		snapshots = append(snapshots, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snapshots, nil
}

// LatestSnapshot returns the most recently archived snapshot for a board
func (r *Repository) LatestSnapshot(ctx context.Context, board string) (*domain.ArchivedSnapshot, error) {
	snapshots, err := r.ListSnapshots(ctx, board, 1)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("latest snapshot for %s: %w", board, domain.ErrSnapshotNotFound)
	}
	return &snapshots[0], nil
}

// ClampLimit bounds a requested listing size
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
