package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	NotifyLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fincoord",
			Subsystem: "notify",
			Name:      "latency_seconds",
			Help:      "Latency of outbound result notifications",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"target"},
	)

	NotifyErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fincoord",
			Subsystem: "notify",
			Name:      "errors_total",
			Help:      "Failed notifications by target",
		},
		[]string{"target"},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fincoord",
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)
)

// Register adds the service metrics to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(NotifyLatency, NotifyErrors, RateLimited)
	})
}
