// Package worker runs the one-shot record load in the background.
package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/speedrun-record/internal/config"
)

// RecordLoader is the flow the loader runs
type RecordLoader interface {
	Load(ctx context.Context) error
}

// ViewCloser ends the lifetime of the view the load writes to
type ViewCloser interface {
	Close()
}

// Loader fetches the record once when the service starts. Stopping it
// cancels an in-flight fetch and closes the view so a late result is never
// written.
type Loader struct {
	service RecordLoader
	view    ViewCloser
	config  *config.LoaderConfig
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// NewLoader creates a new loader
func NewLoader(service RecordLoader, view ViewCloser, cfg *config.LoaderConfig, logger *slog.Logger) *Loader {
	return &Loader{
		service: service,
		view:    view,
		config:  cfg,
		logger:  logger,
	}
}

// Start begins the load in the background
func (l *Loader) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}
	l.running = true

	var cancel context.CancelFunc
	if l.config.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, l.config.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	l.cancel = cancel
	l.doneCh = make(chan struct{})

	l.logger.Info("record loader started", "timeout", l.config.Timeout)

	go l.run(ctx, l.doneCh)
	return nil
}

// Stop cancels the load if it is still running, waits for it to return and
// closes the view.
func (l *Loader) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		l.view.Close()
		return nil
	}
	cancel, done := l.cancel, l.doneCh
	l.mu.Unlock()

	// Close first so a fetch finishing during cancellation is rejected
	l.view.Close()
	cancel()
	<-done

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()

	l.logger.Info("record loader stopped")
	return nil
}

// Done is closed once the load has returned. It is nil before Start.
func (l *Loader) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.doneCh
}

func (l *Loader) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	if err := l.service.Load(ctx); err != nil {
		l.logger.Warn("record load did not complete", "error", err)
	}
}
