package sched

import (
	"context"
	"errors"
	"time"

	"course-entitlements/internal/domain"
	"course-entitlements/internal/domain/model"
	"course-entitlements/internal/infra/metrics"
	"course-entitlements/internal/usecase"

	"github.com/rs/zerolog"
)

// ReconcileWorker periodically pulls the provider ledger with the scheduled trigger.
type ReconcileWorker struct {
	interval time.Duration
	uc       usecase.ReconcileUseCase
	log      *zerolog.Logger
}

func NewReconcileWorker(interval time.Duration, uc usecase.ReconcileUseCase, logger *zerolog.Logger) *ReconcileWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	compLog := logger.With().Str("component", "ReconcileWorker").Logger()
	return &ReconcileWorker{interval: interval, uc: uc, log: &compLog}
}

func (w *ReconcileWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting reconcile worker")
	// Run once on startup, then on every tick
	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping reconcile worker")
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *ReconcileWorker) runOnce(ctx context.Context) {
	res, err := w.uc.ReconcileNow(ctx, model.TriggerScheduled)
	metrics.ObserveRun(res, err)
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		w.log.Info().Msg("previous scheduled run still active, skipping tick")
	case err != nil:
		w.log.Error().Err(err).Msg("scheduled reconciliation failed")
	case res.CreatedCount > 0:
		w.log.Info().Int("created", res.CreatedCount).Str("run_id", res.RunID).Msg("scheduled reconciliation materialized entitlements")
	}
}
