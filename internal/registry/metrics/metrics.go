package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry.
type Metrics struct {
	// Entry point outcomes: "ok", "abort", "internal" or the typed code name
	InvocationOutcome *prometheus.CounterVec

	// Latency per entry point, including storage commit
	InvocationLatency *prometheus.HistogramVec

	// Events handed to a sink
	EventsPublished *prometheus.CounterVec

	// Sink failures after commit
	PublishFailures *prometheus.CounterVec

	// Rows waiting in the outbox at the last relay pass
	OutboxBacklog prometheus.Gauge

	// Pinned-version hash lookups served from or missing the cache
	HashCacheLookups *prometheus.CounterVec
}

// New registers the registry metrics with reg, or the default registerer
// when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		InvocationOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wasm_registry_invocations_total",
			Help: "Registry entry point invocations by outcome",
		}, []string{"entry_point", "outcome"}),

		InvocationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wasm_registry_invocation_duration_seconds",
			Help:    "Duration of registry entry point invocations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"entry_point"}),

		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wasm_registry_events_published_total",
			Help: "Registry events handed to a sink by topic",
		}, []string{"topic", "sink"}),

		PublishFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wasm_registry_event_publish_failures_total",
			Help: "Failed event deliveries by sink",
		}, []string{"sink"}),

		OutboxBacklog: f.NewGauge(prometheus.GaugeOpts{
			Name: "wasm_registry_outbox_backlog",
			Help: "Unpublished outbox rows seen by the last relay pass",
		}),

		HashCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wasm_registry_hash_cache_lookups_total",
			Help: "Pinned-version hash lookups by cache result",
		}, []string{"result"}),
	}
}

// ObserveInvocation records one entry point call.
func (m *Metrics) ObserveInvocation(entryPoint, outcome string, d time.Duration) {
	if m != nil {
		m.InvocationOutcome.WithLabelValues(entryPoint, outcome).Inc()
		m.InvocationLatency.WithLabelValues(entryPoint).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementPublished(topic, sink string) {
	if m != nil {
		m.EventsPublished.WithLabelValues(topic, sink).Inc()
	}
}

func (m *Metrics) IncrementPublishFailure(sink string) {
	if m != nil {
		m.PublishFailures.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) SetOutboxBacklog(n int) {
	if m != nil {
		m.OutboxBacklog.Set(float64(n))
	}
}

func (m *Metrics) IncrementHashCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.HashCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.HashCacheLookups.WithLabelValues("miss").Inc()
}
