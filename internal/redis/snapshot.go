// Package redis backs the record view with a Redis key so that every
// replica behind a load balancer serves the same snapshot.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/speedrun-record/internal/config"
	"github.com/speedrun-record/internal/domain"
)

// SnapshotStore is a write-once snapshot slot stored in Redis
type SnapshotStore struct {
	client redis.UniversalClient
	prefix string
	board  string
	ttl    time.Duration
	logger *slog.Logger
}

// NewSnapshotStore connects to Redis and returns a store for board
func NewSnapshotStore(cfg *config.RedisConfig, board string, logger *slog.Logger) (*SnapshotStore, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{cfg.Addr},
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewSnapshotStoreFromClient(client, cfg.Prefix, board, cfg.ViewTTL, logger), nil
}

// NewSnapshotStoreFromClient wraps an existing client. A zero ttl, the
// default, keeps the snapshot until the key is deleted.
func NewSnapshotStoreFromClient(client redis.UniversalClient, prefix, board string, ttl time.Duration, logger *slog.Logger) *SnapshotStore {
	return &SnapshotStore{
		client: client,
		prefix: prefix,
		board:  board,
		ttl:    ttl,
		logger: logger,
	}
}

// Close closes the Redis connection
func (s *SnapshotStore) Close() error {
	return s.client.Close()
}

// viewKey returns the key holding the serialized snapshot
func (s *SnapshotStore) viewKey() string {
	return fmt.Sprintf("%s:%s:view", s.prefix, s.board)
}

// Load returns the stored snapshot, or nil when the slot is empty
func (s *SnapshotStore) Load(ctx context.Context) (*domain.LeaderboardSnapshot, error) {
	data, err := s.client.Get(ctx, s.viewKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting snapshot: %w", err)
	}

	var snapshot domain.LeaderboardSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snapshot, nil
}

// SaveOnce stores the snapshot with SET NX. Only the first writer across all
// replicas wins.
func (s *SnapshotStore) SaveOnce(ctx context.Context, snapshot *domain.LeaderboardSnapshot) (bool, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return false, fmt.Errorf("encoding snapshot: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.viewKey(), data, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("storing snapshot: %w", err)
	}
	if !ok {
		s.logger.Debug("snapshot already stored", "board", s.board)
	}
	return ok, nil
}
