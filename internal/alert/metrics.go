package alert

import "github.com/prometheus/client_golang/prometheus"

var (
	ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stockalert",
		Subsystem: "evaluator",
		Name:      "ticks_total",
		Help:      "The total number of evaluation passes executed",
	})
	fetchErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stockalert",
		Subsystem: "evaluator",
		Name:      "fetch_errors_total",
		Help:      "The total number of skipped ticks due to quote fetch failures",
	})
	triggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockalert",
			Subsystem: "evaluator",
			Name:      "alerts_triggered_total",
			Help:      "The total number of triggered alerts by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(ticksTotal)
	prometheus.MustRegister(fetchErrorsTotal)
	prometheus.MustRegister(triggeredTotal)
}
