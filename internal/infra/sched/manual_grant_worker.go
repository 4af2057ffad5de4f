package sched

import (
	"context"
	"time"

	"course-entitlements/internal/infra/metrics"
	"course-entitlements/internal/usecase"

	"github.com/rs/zerolog"
)

// ManualGrantWorker runs the manual-grant lifecycle sweep. The sweep is idempotent,
// so the interval only bounds how late a warning or expiry can land.
type ManualGrantWorker struct {
	interval time.Duration
	uc       usecase.ManualGrantUseCase
	now      func() time.Time
	log      *zerolog.Logger
}

func NewManualGrantWorker(interval time.Duration, uc usecase.ManualGrantUseCase, logger *zerolog.Logger) *ManualGrantWorker {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	compLog := logger.With().Str("component", "ManualGrantWorker").Logger()
	return &ManualGrantWorker{
		interval: interval,
		uc:       uc,
		now:      func() time.Time { return time.Now().UTC() },
		log:      &compLog,
	}
}

func (w *ManualGrantWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting manual grant worker")
	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping manual grant worker")
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *ManualGrantWorker) runOnce(ctx context.Context) {
	res, err := w.uc.Sweep(ctx, w.now())
	metrics.ObserveSweep(res)
	if err != nil {
		w.log.Error().Err(err).Msg("manual grant sweep finished with errors")
	}
}
