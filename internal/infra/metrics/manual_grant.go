package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		manualGrantsNotifiedTotal,
		manualGrantsExpiredTotal,
		mailSendTotal,
	)
}

var (
	manualGrantsNotifiedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "manual_grants_notified_total",
			Help: "Expiry warnings sent for manual grants.",
		},
	)

	manualGrantsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "manual_grants_expired_total",
			Help: "Manual grants cancelled by the lifecycle sweep.",
		},
	)

	// status: sent|error
	mailSendTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_send_total",
			Help: "Outbound emails by delivery status.",
		},
		[]string{"status"},
	)
)

func AddManualGrantsNotified(n int) {
	manualGrantsNotifiedTotal.Add(float64(n))
}

func AddManualGrantsExpired(n int) {
	manualGrantsExpiredTotal.Add(float64(n))
}

func IncMailSend(status string) {
	mailSendTotal.WithLabelValues(norm(status)).Inc()
}
