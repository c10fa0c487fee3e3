// Copyright 2025 Alephnode Protocol
//
// Metrics (spec.md 2.13): a small Prometheus registry exposing
// pipeline health — pending-queue depth, fetch/commit latency,
// retries, and per-type rejections — served by the admin HTTP mux
// alongside /health. Registry shape grounded on the teacher's
// system_health_logging.go pattern: one *prometheus.Registry owned by
// this package, metrics registered at construction, http.Handler
// exposed for mounting.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric this node exports.
type Registry struct {
	registry *prometheus.Registry

	PendingQueueDepth prometheus.Gauge
	FetchLatency      prometheus.Histogram
	CommitLatency     prometheus.Histogram
	RetriesTotal      prometheus.Counter
	RejectionsTotal   *prometheus.CounterVec
	IngestedTotal     *prometheus.CounterVec
}

// New constructs a Registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		PendingQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ccn_pending_queue_depth",
			Help: "Number of messages currently waiting in the pending queue",
		}),
		FetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ccn_fetch_latency_seconds",
			Help:    "Latency of resolving a pending message's content",
			Buckets: prometheus.DefBuckets,
		}),
		CommitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ccn_commit_latency_seconds",
			Help:    "Latency of the commit coordinator's per-message transaction",
			Buckets: prometheus.DefBuckets,
		}),
		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ccn_retries_total",
			Help: "Total number of pending-message retry attempts",
		}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ccn_rejections_total",
			Help: "Total number of messages rejected, labeled by message type and reason",
		}, []string{"type", "reason"}),
		IngestedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ccn_ingested_total",
			Help: "Total number of chain transactions ingested, labeled by chain",
		}, []string{"chain"}),
	}

	reg.MustRegister(
		r.PendingQueueDepth,
		r.FetchLatency,
		r.CommitLatency,
		r.RetriesTotal,
		r.RejectionsTotal,
		r.IngestedTotal,
	)
	return r
}

// Handler returns the http.Handler to mount at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
