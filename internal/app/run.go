package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/gridcrawl/internal/ctxlog"
)

// ErrTasksFailed is returned by Run when the crawl completed but at least one
// task failed or was skipped.
var ErrTasksFailed = errors.New("one or more tasks failed")

// Run executes the crawl, writes the report and returns ErrTasksFailed if any
// task did not succeed.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		if err := a.startHealthcheckServer(ctx); err != nil {
			return err
		}
		defer func() {
			if err := a.closeHealthcheckServer(ctx); err != nil {
				a.logger.Warn("Health check server did not shut down cleanly.", "error", err)
			}
		}()
	}

	results, err := a.scheduler.Run(ctx)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	rep := newReport(a.scheduler.Keys(), results)
	if err := rep.write(a.outW, a.config.Output); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	a.logger.Debug("App.Run method finished.", "tasks", len(rep.Entries), "failed", rep.Failed)
	if rep.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrTasksFailed, rep.Failed, len(rep.Entries))
	}
	return nil
}
