package dispatch

import (
	"context"
	"log/slog"
	"time"

	"postpilot/internal/models"
)

// Sweeper is what the worker drives.
type Sweeper interface {
	RunSweep(ctx context.Context, identity models.TriggerIdentity) (*SweepReport, error)
}

// Worker runs sweeps on a fixed interval inside the server process.
// Deployments that trigger sweeps from an external scheduler leave it disabled.
type Worker struct {
	sweeper  Sweeper
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewWorker creates a worker that sweeps every interval. Each sweep is bounded by timeout.
func NewWorker(sweeper Sweeper, interval, timeout time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sweeper: sweeper, interval: interval, timeout: timeout, logger: logger}
}

// Start blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	if w.interval <= 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("dispatch worker started", slog.String("component", "dispatch"), slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("dispatch worker stopped", slog.String("component", "dispatch"))
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	report, err := w.sweeper.RunSweep(ctx, models.TrustedTrigger())
	if err != nil {
		w.logger.ErrorContext(ctx, "scheduled dispatch sweep failed",
			slog.String("component", "dispatch"),
			slog.String("error", err.Error()))
		return
	}
	if report.Processed > 0 {
		w.logger.InfoContext(ctx, "scheduled dispatch sweep",
			slog.String("component", "dispatch"),
			slog.Int("processed", report.Processed),
			slog.Int("success", report.Success),
			slog.Int("failed", report.Failed))
	}
}
