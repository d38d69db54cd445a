package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "planner",
		Subsystem: "import",
		Name:      "items_total",
		Help:      "Total number of items submitted one by one, broken down by result.",
	}, []string{"result"})

	importOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "planner",
		Subsystem: "import",
		Name:      "outcomes_total",
		Help:      "Total number of batch submissions broken down by decoded outcome.",
	}, []string{"outcome"})

	importRequestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "planner",
		Subsystem: "import",
		Name:      "request_seconds",
		Help:      "Latency of backend write calls made while importing.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"call"})
)

func recordItemResult(ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	importItems.WithLabelValues(result).Inc()
}

func recordOutcome(name string) {
	if name == "" {
		name = "unknown"
	}
	importOutcomes.WithLabelValues(name).Inc()
}

func observeRequest(call string, started time.Time) {
	importRequestSeconds.WithLabelValues(call).Observe(time.Since(started).Seconds())
}
