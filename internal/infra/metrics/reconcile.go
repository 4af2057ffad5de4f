package metrics

import (
	"errors"

	"course-entitlements/internal/domain"
	"course-entitlements/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		reconcileRunsTotal,
		reconcileOutcomesTotal,
		entitlementsCreatedTotal,
		legacySubscriptionsTotal,
	)
}

var (
	// result: ok|error|busy
	reconcileRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_runs_total",
			Help: "Reconciliation runs by trigger and result.",
		},
		[]string{"trigger", "result"},
	)

	reconcileOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_outcomes_total",
			Help: "Per-item reconciliation outcomes (success/skip/warn/fail).",
		},
		[]string{"outcome"},
	)

	entitlementsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_created_total",
			Help: "Purchases and subscriptions materialized, labeled by kind.",
		},
		[]string{"kind"}, // course, bundle, unlinked, subscription, legacy, manual_grant
	)

	legacySubscriptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legacy_subscriptions_total",
			Help: "Legacy subscriptions synthesized or expired.",
		},
		[]string{"action"},
	)
)

func IncReconcileRun(trigger, result string) {
	reconcileRunsTotal.WithLabelValues(norm(trigger), norm(result)).Inc()
}

func IncReconcileOutcome(outcome string) {
	reconcileOutcomesTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncEntitlementCreated(kind string) {
	entitlementsCreatedTotal.WithLabelValues(norm(kind)).Inc()
}

func AddLegacySubscriptions(action string, n int) {
	legacySubscriptionsTotal.WithLabelValues(norm(action)).Add(float64(n))
}

// ObserveRun records the outcome of one reconciliation run.
func ObserveRun(res *model.RunResult, err error) {
	if res == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		result = "busy"
	case err != nil:
		result = "error"
	}
	IncReconcileRun(string(res.Trigger), result)
	for _, e := range res.Log {
		IncReconcileOutcome(string(e.Outcome))
	}
	for kind, n := range res.CreatedBy {
		entitlementsCreatedTotal.WithLabelValues(norm(kind)).Add(float64(n))
	}
	if n := res.CreatedBy["legacy"]; n > 0 {
		AddLegacySubscriptions("synthesized", n)
	}
}

// ObserveSweep records the counters of one manual-grant sweep.
func ObserveSweep(res *model.SweepResult) {
	if res == nil {
		return
	}
	AddManualGrantsNotified(res.NotifiedCount)
	AddManualGrantsExpired(res.ExpiredCount)
	AddLegacySubscriptions("expired", res.LegacyExpiredCount)
}
