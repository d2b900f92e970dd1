// Package metrics exposes orchestration counters and gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/RevCBH/berth/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "berth"

// Metrics holds the collectors fed by the event bus.
type Metrics struct {
	Tracked         prometheus.Gauge
	Operations      *prometheus.CounterVec
	Failures        *prometheus.CounterVec
	Pulls           *prometheus.CounterVec
	ReadinessWait   *prometheus.HistogramVec
	NetworksCreated prometheus.Counter

	registry *prometheus.Registry
}

// New creates Metrics registered on a private registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "containers_tracked",
			Help:      "Number of containers started and not yet stopped",
		}),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "container_operations_total",
			Help:      "Container lifecycle operations by kind",
		}, []string{"op"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed batches, workloads and teardowns",
		}, []string{"type"}),
		Pulls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_pulls_total",
			Help:      "Images pulled by the auto-pull gate",
		}, []string{"image"}),
		ReadinessWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "readiness_wait_seconds",
			Help:      "Time from container start until it became ready",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"workload"}),
		NetworksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "networks_created_total",
			Help:      "Custom networks created for workloads",
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.Tracked,
		m.Operations,
		m.Failures,
		m.Pulls,
		m.ReadinessWait,
		m.NetworksCreated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// EventHandler updates the collectors from lifecycle events. Subscribe it
// on the bus the orchestrator emits to.
func (m *Metrics) EventHandler() events.Handler {
	return func(e events.Event) {
		if e.IsFailure() {
			m.Failures.WithLabelValues(string(e.Type)).Inc()
		}

		switch e.Type {
		case events.WorkloadCreated:
			m.Operations.WithLabelValues("create").Inc()
		case events.WorkloadStarted:
			m.Operations.WithLabelValues("start").Inc()
			m.Tracked.Inc()
		case events.WorkloadStopped:
			m.Operations.WithLabelValues("stop").Inc()
			m.Tracked.Dec()
		case events.WorkloadTeardownFailed:
			// teardown untracks the container even when stop or remove fails
			m.Tracked.Dec()
		case events.WorkloadRestarting:
			m.Operations.WithLabelValues("restart").Inc()
		case events.WorkloadPulled:
			image := e.Workload
			if fields, ok := e.Payload.(map[string]any); ok {
				if v, ok := fields["image"].(string); ok {
					image = v
				}
			}
			m.Pulls.WithLabelValues(image).Inc()
		case events.NetworkCreated:
			m.NetworksCreated.Inc()
		case events.WorkloadReady:
			if ms, ok := elapsedMillis(e.Payload); ok {
				m.ReadinessWait.WithLabelValues(e.Workload).Observe(float64(ms) / 1000)
			}
		}
	}
}

func elapsedMillis(payload any) (int64, bool) {
	fields, ok := payload.(map[string]any)
	if !ok {
		return 0, false
	}
	switch v := fields["elapsed_ms"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
