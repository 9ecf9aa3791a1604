/*
scheduler.go - Contract finalization scheduler

PURPOSE:
  Periodically moves Ativo contracts whose end date has passed to
  Finalizado, so the conflict resolver and the association engine stop
  seeing them as occupying their vehicles.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Finalization is idempotent: already-finalized contracts are skipped
  - A run that fails logs and waits for the next tick

USAGE:
  scheduler := NewFinalizerScheduler(booking, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - fleet/booking.go: FinalizeExpired
  - cmd/server/main.go: start/stop wiring
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/frotaops/fleet-engine/fleet"
)

// FinalizerScheduler finalizes expired contracts in the background.
type FinalizerScheduler struct {
	Booking       *fleet.BookingService
	CheckInterval time.Duration
	Enabled       bool
	Log           *zap.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewFinalizerScheduler creates a scheduler with a 1 hour check interval.
func NewFinalizerScheduler(booking *fleet.BookingService, log *zap.Logger) *FinalizerScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &FinalizerScheduler{
		Booking:       booking,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (fs *FinalizerScheduler) Start() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.Enabled {
		fs.Log.Info("finalizer scheduler disabled, not starting")
		return
	}

	fs.ticker = time.NewTicker(fs.CheckInterval)
	fs.wg.Add(1)
	go fs.run()

	fs.Log.Info("finalizer scheduler started", zap.Duration("interval", fs.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (fs *FinalizerScheduler) Stop() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.ticker != nil {
		fs.ticker.Stop()
		close(fs.stop)
		fs.wg.Wait()
		fs.Log.Info("finalizer scheduler stopped")
	}
}

func (fs *FinalizerScheduler) run() {
	defer fs.wg.Done()

	// Run immediately on start
	fs.checkAndFinalize()

	for {
		select {
		case <-fs.ticker.C:
			fs.checkAndFinalize()
		case <-fs.stop:
			return
		}
	}
}

func (fs *FinalizerScheduler) checkAndFinalize() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := fs.Booking.FinalizeExpired(ctx, fleet.Today())
	if err != nil {
		fs.Log.Error("finalize run failed", zap.Error(err))
		return
	}
	if count > 0 {
		fs.Log.Info("finalized expired contracts", zap.Int("count", count))
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (fs *FinalizerScheduler) RunNow() {
	fs.checkAndFinalize()
}
