package app

import (
	"context"
	"errors"
	"time"

	"github.com/vk/flowgrid/internal/ctxlog"
)

// Run executes the pipeline once, or hands it to the scheduler when the
// definition or the command line asks for recurring runs. Cancelling ctx
// stops a scheduler between runs.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.DryRun {
		a.logger.Info("✅ Pipeline definition is valid.", "pipeline", a.pipeline.String(), "scheduled", a.scheduler != nil)
		return nil
	}

	if a.config.StatusPort > 0 {
		if err := a.startStatusServer(a.config.StatusPort); err != nil {
			return err
		}
		defer a.closeStatusServer()
	}

	if a.scheduler == nil {
		start := time.Now()
		res, err := a.pipeline.Execute(ctx)
		a.metrics.RunFinished(a.pipeline.Name(), err, time.Since(start))
		if err != nil {
			return err
		}
		a.logger.Debug("Single run finished.", "run_id", res.RunID, "journal", res.JournalPath)
		return nil
	}

	a.logger.Info("⏰ Starting scheduler.", "pipeline", a.pipeline.Name())
	err := a.scheduler.Run(ctx)
	stats := a.scheduler.Stats()
	if errors.Is(err, context.Canceled) {
		a.logger.Info("🏁 Scheduler interrupted.", "passed", stats.Passed, "failed", stats.Failed, "missed", stats.Missed)
		return nil
	}
	if err != nil {
		return err
	}
	a.logger.Info("🏁 Scheduler finished.", "passed", stats.Passed, "failed", stats.Failed, "missed", stats.Missed)
	a.logger.Debug("App.Run method finished.")
	return nil
}
