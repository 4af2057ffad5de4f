package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(adminRequestsTotal) }

var adminRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_requests_total",
		Help: "Tracks calls to the admin API.",
	},
	[]string{"route", "status"}, // status: 'authorized', 'unauthorized', 'error'
)

func IncAdminRequest(route, status string) {
	adminRequestsTotal.WithLabelValues(route, norm(status)).Inc()
}
