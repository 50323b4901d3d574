package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsClient is the interface the cache engine records metrics through.
type MetricsClient interface {
	// RecordCacheOperation records one get/set/delete with its outcome and
	// duration in seconds.
	RecordCacheOperation(operation string, success bool, durationSeconds float64)
	RecordCounter(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
}

// PrometheusMetrics implements MetricsClient on a Prometheus registry.
// Counters and gauges are registered lazily on first use.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
}

// NewPrometheusMetrics creates a metrics client backed by its own registry.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_operations_total",
		Help:      "Cache operations by type and outcome.",
	}, []string{"operation", "status"})

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cache_operation_duration_seconds",
		Help:      "Cache operation latency in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
	}, []string{"operation"})

	registry.MustRegister(operations, latency)

	return &PrometheusMetrics{
		registry:   registry,
		operations: operations,
		latency:    latency,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) RecordCacheOperation(operation string, success bool, durationSeconds float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.operations.WithLabelValues(operation, status).Inc()
	m.latency.WithLabelValues(operation).Observe(durationSeconds)
}

func (m *PrometheusMetrics) RecordCounter(name string, value float64, labels map[string]string) {
	m.counterVec(name, labelKeys(labels)).With(prometheus.Labels(labels)).Add(value)
}

func (m *PrometheusMetrics) RecordGauge(name string, value float64, labels map[string]string) {
	m.gaugeVec(name, labelKeys(labels)).With(prometheus.Labels(labels)).Set(value)
}

func (m *PrometheusMetrics) counterVec(name string, keys []string) *prometheus.CounterVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	if vec, ok := m.counters[name]; ok {
		return vec
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, keys)
	m.registry.MustRegister(vec)
	m.counters[name] = vec
	return vec
}

func (m *PrometheusMetrics) gaugeVec(name string, keys []string) *prometheus.GaugeVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	if vec, ok := m.gauges[name]; ok {
		return vec
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, keys)
	m.registry.MustRegister(vec)
	m.gauges[name] = vec
	return vec
}

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	return keys
}
