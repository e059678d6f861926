package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrShutdownTimeout is returned when the reaper doesn't stop within timeout.
var ErrShutdownTimeout = errors.New("session reaper shutdown timed out")

// Reaper periodically sweeps terminal sessions out of the registry so
// finished transfers never leak tracking entries.
type Reaper struct {
	registry *Registry
	interval time.Duration
	logger   *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewReaper creates a reaper for the given registry.
func NewReaper(registry *Registry, interval time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Reaper{
		registry: registry,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the background sweep loop.
func (r *Reaper) Start() {
	r.logger.Info("starting session reaper", "interval", r.interval)

	r.wg.Add(1)
	go r.loop()
}

// Stop gracefully stops the reaper.
func (r *Reaper) Stop(timeout time.Duration) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("session reaper stopped")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (r *Reaper) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if removed := r.registry.Sweep(time.Now()); removed > 0 {
				r.logger.Debug("swept finished sessions", "removed", removed)
			}
		}
	}
}
