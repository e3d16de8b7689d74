package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/application"
)

type SweepRunner interface {
	RunSweep(ctx context.Context, name string) (application.SweepReport, error)
}

// SweepWorker runs the periodic escrow jobs in sequence on every tick.
type SweepWorker struct {
	logger   *slog.Logger
	runner   SweepRunner
	interval time.Duration
	names    []string
}

func NewSweepWorker(logger *slog.Logger, runner SweepRunner, interval time.Duration, names []string) *SweepWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if len(names) == 0 {
		names = application.SweepNames()
	}
	return &SweepWorker{
		logger:   logger,
		runner:   runner,
		interval: interval,
		names:    names,
	}
}

func (w *SweepWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes every configured sweep once. A failing sweep does not
// stop the ones after it.
func (w *SweepWorker) RunOnce(ctx context.Context) {
	for _, name := range w.names {
		if ctx.Err() != nil {
			return
		}
		report, err := w.runner.RunSweep(ctx, name)
		if err != nil {
			w.logger.ErrorContext(ctx, "sweep iteration failed",
				"module", "events.sweep_worker",
				"layer", "adapter",
				"operation", "run_sweep",
				"outcome", "failure",
				"sweep", name,
				"error", err,
			)
			continue
		}
		if report.Scanned > 0 {
			w.logger.InfoContext(ctx, "sweep iteration completed",
				"module", "events.sweep_worker",
				"layer", "adapter",
				"operation", "run_sweep",
				"outcome", "success",
				"sweep", name,
				"scanned", report.Scanned,
				"applied", report.Applied,
				"failed", report.Failed,
			)
		}
	}
}
