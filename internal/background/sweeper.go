package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/bastionhq/bastion/internal/services"
)

// SweeperRunner drives the retention sweeper on a fixed interval
type SweeperRunner struct {
	sweeper  *services.Sweeper
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewSweeperRunner creates a new sweeper runner
func NewSweeperRunner(
	sweeper *services.Sweeper,
	logger *slog.Logger,
	interval time.Duration,
) *SweeperRunner {
	return &SweeperRunner{
		sweeper:  sweeper,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic retention sweep
func (sr *SweeperRunner) Start(ctx context.Context) {
	ticker := time.NewTicker(sr.interval)
	defer ticker.Stop()

	// Run immediately on startup
	sr.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			sr.runSweep(ctx)
		case <-sr.stopCh:
			sr.logger.Info("sweeper runner stopped")
			return
		case <-ctx.Done():
			sr.logger.Info("sweeper runner context cancelled")
			return
		}
	}
}

func (sr *SweeperRunner) runSweep(ctx context.Context) {
	sr.logger.Info("starting retention sweep")

	sweepCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	sr.sweeper.Sweep(sweepCtx)
}

// Stop signals the sweeper runner to stop
func (sr *SweeperRunner) Stop() {
	close(sr.stopCh)
}
