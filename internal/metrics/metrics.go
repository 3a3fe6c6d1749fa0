// Package metrics exposes Prometheus collectors for the verification node.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "covenant"

// Metrics holds the node's collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	verifications *prometheus.CounterVec
	duration      prometheus.Histogram
	alwaysAccept  *prometheus.CounterVec
	cache         *prometheus.CounterVec
	fetches       *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "transactions_total",
			Help:      "Transactions verified, by outcome",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "duration_seconds",
			Help:      "Time to verify one transaction",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		alwaysAccept: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "always_accept_total",
			Help:      "States accepted under an always-accept constraint",
		}, []string{"contract"}),
		cache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "attachment_cache_total",
			Help:      "Attachment cache lookups, by result",
		}, []string{"result"}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "attachment_fetches_total",
			Help:      "Attachment requests served to peers, by status",
		}, []string{"status"}),
	}
}

// ObserveVerification records one verification outcome and its duration.
func (m *Metrics) ObserveVerification(outcome string, d time.Duration) {
	if m == nil {
		return
	}

	m.verifications.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

// AlwaysAcceptUsed records a state accepted without an integrity check.
func (m *Metrics) AlwaysAcceptUsed(contract string) {
	if m == nil {
		return
	}

	m.alwaysAccept.WithLabelValues(contract).Inc()
}

// CacheLookup records an attachment cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}

	m.cache.WithLabelValues(result).Inc()
}

// FetchServed records an attachment request answered for a peer.
func (m *Metrics) FetchServed(status string) {
	if m == nil {
		return
	}

	m.fetches.WithLabelValues(status).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
