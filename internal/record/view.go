package record

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/speedrun-record/internal/config"
	"github.com/speedrun-record/internal/domain"
)

// View holds the displayed leaderboard snapshot. It starts out loading, is
// filled at most once and rejects writes once closed. Once a snapshot has been
// seen it is kept, so a store slot that later expires or is cleared cannot
// send the view back to loading.
type View struct {
	store  Store
	config *config.RecordConfig

	mu        sync.RWMutex
	closed    bool
	loadErr   error
	published *domain.LeaderboardSnapshot
}

// NewView creates a view backed by store
func NewView(store Store, cfg *config.RecordConfig) *View {
	return &View{
		store:  store,
		config: cfg,
	}
}

// Publish fills the view with snapshot. It returns false when the view
// already holds a snapshot.
func (v *View) Publish(ctx context.Context, snapshot *domain.LeaderboardSnapshot) (bool, error) {
	if snapshot == nil {
		return false, fmt.Errorf("%w: nil snapshot", domain.ErrInvalidRequest)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return false, domain.ErrViewClosed
	}
	if v.published != nil {
		return false, nil
	}

	ok, err := v.store.SaveOnce(ctx, snapshot)
	if err != nil {
		return false, fmt.Errorf("saving snapshot: %w", err)
	}
	if ok {
		v.published = snapshot
		v.loadErr = nil
	}
	return ok, nil
}

// Fail records why the view is still loading
func (v *View) Fail(err error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return domain.ErrViewClosed
	}
	v.loadErr = err
	return nil
}

// Err returns the last load failure, if any
func (v *View) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loadErr
}

// Close ends the view's lifetime. Later writes are rejected.
func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
}

// Closed reports whether Close has been called
func (v *View) Closed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.closed
}

// Snapshot returns the published snapshot or ErrRecordLoading
func (v *View) Snapshot(ctx context.Context) (*domain.LeaderboardSnapshot, error) {
	v.mu.RLock()
	published := v.published
	v.mu.RUnlock()
	if published != nil {
		return published, nil
	}

	snapshot, err := v.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	if snapshot == nil {
		return nil, domain.ErrRecordLoading
	}

	v.mu.Lock()
	if v.published == nil {
		v.published = snapshot
	}
	snapshot = v.published
	v.mu.Unlock()
	return snapshot, nil
}

// Leader returns the current record entry
func (v *View) Leader(ctx context.Context) (*domain.LeaderboardEntry, error) {
	snapshot, err := v.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	leader, ok := snapshot.Leader()
	if !ok {
		return nil, domain.ErrNoRecord
	}
	return leader, nil
}

// Record derives the displayed record as of now
func (v *View) Record(ctx context.Context, now time.Time) (*domain.Record, error) {
	leader, err := v.Leader(ctx)
	if err != nil {
		return nil, err
	}
	return BuildRecord(leader, v.config, now)
}
