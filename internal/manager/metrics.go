package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	invokeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ipnis",
			Subsystem: "invoke",
			Name:      "total",
			Help:      "Model calls by result",
		},
		[]string{"result"},
	)

	invokeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ipnis",
			Subsystem: "invoke",
			Name:      "duration_seconds",
			Help:      "End-to-end model call latency, including compile on first use",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	backpressureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ipnis",
			Subsystem: "invoke",
			Name:      "backpressure_total",
			Help:      "Calls rejected by admission control",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(invokeTotal, invokeDuration, backpressureTotal)
}
