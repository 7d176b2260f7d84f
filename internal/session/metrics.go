package session

import "github.com/prometheus/client_golang/prometheus"

// AlertsCreated counts finished authoring conversations by alert kind. It is
// exported so the process entry point can persist it across restarts.
var AlertsCreated = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "stockalert",
		Subsystem: "telegram_bot",
		Name:      "alerts_created_total",
		Help:      "The total number of alerts created, by kind",
	},
	[]string{"kind"},
)

func init() {
	prometheus.MustRegister(AlertsCreated)
}
