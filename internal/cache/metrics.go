package cache

import "github.com/prometheus/client_golang/prometheus"

var (
	lookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ipnis",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Session cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)

	compilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ipnis",
			Subsystem: "cache",
			Name:      "compiles_total",
			Help:      "Model fetch+compile attempts by result (ok, fetch_error, compile_error)",
		},
		[]string{"result"},
	)

	compileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ipnis",
			Subsystem: "cache",
			Name:      "compile_duration_seconds",
			Help:      "Time spent fetching and compiling a model",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	entriesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ipnis",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Compiled sessions currently cached",
		},
	)

	evictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ipnis",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Sessions dropped by the cache bound",
		},
	)
)

func init() {
	prometheus.MustRegister(lookupsTotal, compilesTotal, compileDuration, entriesGauge, evictionsTotal)
}
