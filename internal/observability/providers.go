package observability

import (
	"time"

	"github.com/google/wire"
)

// ProviderSet is the Wire provider set for observability components.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideMetricsCollector,
	ProvideMetricsExporter,
)

// ProvideLogger creates a new logger instance using the provided configuration.
func ProvideLogger(config LoggingConfig) Logger {
	return NewLogger(config)
}

// ProvideMetricsCollector creates a new metrics collector instance.
func ProvideMetricsCollector(config MetricsConfig) MetricsCollector {
	if !config.Enabled {
		return &noopMetricsCollector{}
	}

	namespace := config.Namespace
	if namespace == "" {
		namespace = "certvault"
	}

	subsystem := config.Subsystem
	if subsystem == "" {
		subsystem = "vault"
	}

	return NewPrometheusCollector(namespace, subsystem)
}

// ProvideMetricsExporter creates a new metrics exporter instance.
func ProvideMetricsExporter(collector MetricsCollector, config MetricsConfig) MetricsExporter {
	return NewMetricsExporter(collector, config)
}

// noopMetricsCollector drops all measurements when metrics are disabled.
type noopMetricsCollector struct{}

func (n *noopMetricsCollector) RecordRequest(method, path, status string, duration time.Duration) {}
func (n *noopMetricsCollector) RecordACMEAttempt(domain, outcome string, duration time.Duration)  {}
func (n *noopMetricsCollector) RecordEventPublished(eventType string, success bool)               {}
func (n *noopMetricsCollector) RecordEventConsumed(eventType string, success bool, duration time.Duration) {
}
func (n *noopMetricsCollector) RecordCacheOp(projection, outcome string)          {}
func (n *noopMetricsCollector) RecordImport(store string, processed, failed int)  {}
func (n *noopMetricsCollector) RecordExport(store string, success bool)           {}
func (n *noopMetricsCollector) RecordRenewal(domain string, success bool)         {}
func (n *noopMetricsCollector) SetCertificateExpiry(domain string, expiry time.Time) {}
func (n *noopMetricsCollector) RecordRateLimitHit(key string)                     {}
func (n *noopMetricsCollector) RecordHealthCheck(target string, success bool, duration time.Duration) {
}
func (n *noopMetricsCollector) IncActiveConnections() {}
func (n *noopMetricsCollector) DecActiveConnections() {}
