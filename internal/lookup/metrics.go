package lookup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("vrscore.lookup")

var (
	// requestsQueued counts identities added to the lookup queue.
	requestsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vrscore",
		Subsystem: "lookup",
		Name:      "requests_queued_total",
		Help:      "Identities queued for lookup",
	})

	// queueDepth is the number of identities waiting for an outcome.
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vrscore",
		Subsystem: "lookup",
		Name:      "queue_depth",
		Help:      "Identities waiting for a lookup outcome",
	})

	// cacheResults counts cache chain answers per identity.
	// Labels: result (hit, stale, none)
	cacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vrscore",
		Subsystem: "lookup",
		Name:      "cache_results_total",
		Help:      "Cache chain answers per identity",
	}, []string{"result"})

	// providerCalls counts provider calls.
	// Labels: result (success, network_error, error)
	providerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vrscore",
		Subsystem: "lookup",
		Name:      "provider_calls_total",
		Help:      "Provider lookup calls by result",
	}, []string{"result"})

	// providerLatency measures provider call duration.
	providerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vrscore",
		Subsystem: "lookup",
		Name:      "provider_latency_seconds",
		Help:      "Provider lookup call latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// expiredRequests counts identities given up on after the queue window.
	expiredRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vrscore",
		Subsystem: "lookup",
		Name:      "expired_requests_total",
		Help:      "Identities completed as misses after the queue window",
	})
)
