// pkg/upstream/metrics.go
package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_calls_total",
		Help: "Upstream call attempts by tenant and outcome.",
	}, []string{"tenant", "outcome"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_retries_total",
		Help: "Backoff decisions by tenant and class (throttle or transient).",
	}, []string{"tenant", "class"})

	backoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "upstream_backoff_seconds",
		Help:    "Delay chosen per backoff decision.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)
