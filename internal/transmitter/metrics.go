// ABOUTME: Prometheus collectors for the breakpoint update queue.
// ABOUTME: Registered on the default registry and served by the binaries' /metrics endpoint.

package transmitter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// submittedTotal counts updates accepted into the queue.
	submittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "debuglet_transmitter_submitted_total",
		Help: "Breakpoint updates submitted for delivery",
	})

	// evictedTotal counts updates dropped because the queue was full.
	evictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "debuglet_transmitter_evicted_total",
		Help: "Breakpoint updates evicted from a full queue",
	})

	// deliveredTotal counts delivery attempts by result.
	deliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debuglet_transmitter_delivered_total",
		Help: "Breakpoint update delivery attempts by result",
	}, []string{"result"})

	deliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "debuglet_transmitter_delivery_duration_seconds",
		Help:    "Breakpoint update delivery latency",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})
)
