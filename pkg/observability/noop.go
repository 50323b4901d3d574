package observability

// NoopLogger discards all log output.
type NoopLogger struct{}

// NewNoopLogger creates a logger that discards everything.
func NewNoopLogger() Logger { return &NoopLogger{} }

func (l *NoopLogger) Debug(msg string, fields map[string]interface{}) {}
func (l *NoopLogger) Info(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Warn(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Error(msg string, fields map[string]interface{}) {}
func (l *NoopLogger) WithPrefix(prefix string) Logger                 { return l }

// NoopMetrics discards all metrics.
type NoopMetrics struct{}

// NewNoopMetrics creates a metrics client that discards everything.
func NewNoopMetrics() MetricsClient { return &NoopMetrics{} }

func (m *NoopMetrics) RecordCacheOperation(operation string, success bool, durationSeconds float64) {
}
func (m *NoopMetrics) RecordCounter(name string, value float64, labels map[string]string) {}
func (m *NoopMetrics) RecordGauge(name string, value float64, labels map[string]string)   {}
