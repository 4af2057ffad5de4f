package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() {
	register(
		providerCallsTotal,
		providerCallDuration,
		salesRevenueObserved,
	)
}

var (
	// op: list_payments|list_subscriptions|get_subscription
	// result: ok|error
	providerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_calls_total",
			Help: "Calls to the payment provider by operation and result.",
		},
		[]string{"provider", "op", "result"},
	)

	providerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_duration_seconds",
			Help:    "Duration of payment provider calls in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"provider", "op"},
	)

	salesRevenueObserved = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sales_revenue_last_summary",
			Help: "Deduplicated gross revenue reported by the last sales summary.",
		},
	)
)

func ObserveProviderCall(provider, op string, seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	providerCallsTotal.WithLabelValues(norm(provider), norm(op), result).Inc()
	providerCallDuration.WithLabelValues(norm(provider), norm(op)).Observe(seconds)
}

func SetSalesRevenue(amount decimal.Decimal) {
	salesRevenueObserved.Set(amount.InexactFloat64())
}
