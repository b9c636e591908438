package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type prometheusCollector struct {
	// HTTP request metrics
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	activeConnections prometheus.Gauge

	// ACME driver metrics
	acmeAttemptsTotal *prometheus.CounterVec
	acmeDuration      *prometheus.HistogramVec

	// Event bus metrics
	eventsPublishedTotal *prometheus.CounterVec
	eventsConsumedTotal  *prometheus.CounterVec
	eventHandlerDuration *prometheus.HistogramVec

	// Cache metrics
	cacheOpsTotal *prometheus.CounterVec

	// Pool reconciliation metrics
	importedTotal      *prometheus.CounterVec
	importFailedTotal  *prometheus.CounterVec
	exportsTotal       *prometheus.CounterVec
	renewalsTotal      *prometheus.CounterVec
	certificateExpiry  *prometheus.GaugeVec

	// Rate limiting metrics
	rateLimitHitsTotal *prometheus.CounterVec

	// Health check metrics
	healthChecksTotal   *prometheus.CounterVec
	healthCheckDuration *prometheus.HistogramVec

	// System metrics
	startTime prometheus.Gauge

	registry *prometheus.Registry
	server   *http.Server
	mutex    sync.RWMutex
}

func NewPrometheusCollector(namespace, subsystem string) MetricsCollector {
	registry := prometheus.NewRegistry()

	collector := &prometheusCollector{
		registry: registry,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "path", "status_code"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "Time spent processing HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),

		activeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "active_connections",
				Help:      "Current number of active connections",
			},
		),

		acmeAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "acme_attempts_total",
				Help:      "Total number of ACME issuance attempts by outcome",
			},
			[]string{"domain", "outcome"},
		),

		acmeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "acme_duration_seconds",
				Help:      "Wall-clock time of ACME issuance attempts",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),

		eventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_published_total",
				Help:      "Total number of events published to the bus",
			},
			[]string{"event_type", "status"},
		),

		eventsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_consumed_total",
				Help:      "Total number of events consumed from the bus",
			},
			[]string{"event_type", "status"},
		),

		eventHandlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "event_handler_duration_seconds",
				Help:      "Time spent in event handlers",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),

		cacheOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_ops_total",
				Help:      "Cache operations by projection and outcome",
			},
			[]string{"projection", "outcome"},
		),

		importedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "certificates_imported_total",
				Help:      "Certificates imported from the pool by store",
			},
			[]string{"store"},
		),

		importFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "certificate_import_failures_total",
				Help:      "Pool folders that failed to import by store",
			},
			[]string{"store"},
		),

		exportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "certificates_exported_total",
				Help:      "Certificates exported to the pool by store and status",
			},
			[]string{"store", "status"},
		),

		renewalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "certificate_renewals_total",
				Help:      "Total number of certificate renewal attempts",
			},
			[]string{"domain", "status"},
		),

		certificateExpiry: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "certificate_expiry_timestamp",
				Help:      "Certificate expiry time as Unix timestamp",
			},
			[]string{"domain"},
		),

		rateLimitHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rate_limit_hits_total",
				Help:      "Total number of rate limit hits",
			},
			[]string{"key"},
		),

		healthChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "health_checks_total",
				Help:      "Total number of health checks performed",
			},
			[]string{"target", "status"},
		),

		healthCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "health_check_duration_seconds",
				Help:      "Time spent on health checks",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"target", "status"},
		),

		startTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "start_time_timestamp",
				Help:      "Start time of the application as Unix timestamp",
			},
		),
	}

	collector.registerMetrics()
	collector.startTime.SetToCurrentTime()

	return collector
}

func (p *prometheusCollector) registerMetrics() {
	p.registry.MustRegister(
		p.requestsTotal,
		p.requestDuration,
		p.activeConnections,
		p.acmeAttemptsTotal,
		p.acmeDuration,
		p.eventsPublishedTotal,
		p.eventsConsumedTotal,
		p.eventHandlerDuration,
		p.cacheOpsTotal,
		p.importedTotal,
		p.importFailedTotal,
		p.exportsTotal,
		p.renewalsTotal,
		p.certificateExpiry,
		p.rateLimitHitsTotal,
		p.healthChecksTotal,
		p.healthCheckDuration,
		p.startTime,
	)
}

func (p *prometheusCollector) RecordRequest(method, path, status string, duration time.Duration) {
	labels := prometheus.Labels{
		"method":      method,
		"path":        path,
		"status_code": status,
	}

	p.requestsTotal.With(labels).Inc()
	p.requestDuration.With(labels).Observe(duration.Seconds())
}

func (p *prometheusCollector) RecordACMEAttempt(domain, outcome string, duration time.Duration) {
	p.acmeAttemptsTotal.With(prometheus.Labels{
		"domain":  domain,
		"outcome": outcome,
	}).Inc()
	p.acmeDuration.With(prometheus.Labels{"outcome": outcome}).Observe(duration.Seconds())
}

func (p *prometheusCollector) RecordEventPublished(eventType string, success bool) {
	p.eventsPublishedTotal.With(prometheus.Labels{
		"event_type": eventType,
		"status":     statusLabel(success),
	}).Inc()
}

func (p *prometheusCollector) RecordEventConsumed(eventType string, success bool, duration time.Duration) {
	p.eventsConsumedTotal.With(prometheus.Labels{
		"event_type": eventType,
		"status":     statusLabel(success),
	}).Inc()
	p.eventHandlerDuration.With(prometheus.Labels{"event_type": eventType}).Observe(duration.Seconds())
}

func (p *prometheusCollector) RecordCacheOp(projection, outcome string) {
	p.cacheOpsTotal.With(prometheus.Labels{
		"projection": projection,
		"outcome":    outcome,
	}).Inc()
}

func (p *prometheusCollector) RecordImport(store string, processed, failed int) {
	p.importedTotal.With(prometheus.Labels{"store": store}).Add(float64(processed))
	p.importFailedTotal.With(prometheus.Labels{"store": store}).Add(float64(failed))
}

func (p *prometheusCollector) RecordExport(store string, success bool) {
	p.exportsTotal.With(prometheus.Labels{
		"store":  store,
		"status": statusLabel(success),
	}).Inc()
}

func (p *prometheusCollector) RecordRenewal(domain string, success bool) {
	p.renewalsTotal.With(prometheus.Labels{
		"domain": domain,
		"status": statusLabel(success),
	}).Inc()
}

func (p *prometheusCollector) SetCertificateExpiry(domain string, expiry time.Time) {
	p.certificateExpiry.With(prometheus.Labels{
		"domain": domain,
	}).Set(float64(expiry.Unix()))
}

func (p *prometheusCollector) RecordRateLimitHit(key string) {
	p.rateLimitHitsTotal.With(prometheus.Labels{
		"key": key,
	}).Inc()
}

func (p *prometheusCollector) RecordHealthCheck(target string, success bool, duration time.Duration) {
	labels := prometheus.Labels{
		"target": target,
		"status": statusLabel(success),
	}

	p.healthChecksTotal.With(labels).Inc()
	p.healthCheckDuration.With(labels).Observe(duration.Seconds())
}

func (p *prometheusCollector) IncActiveConnections() {
	p.activeConnections.Inc()
}

func (p *prometheusCollector) DecActiveConnections() {
	p.activeConnections.Dec()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func (p *prometheusCollector) GetRegistry() *prometheus.Registry {
	return p.registry
}

func (p *prometheusCollector) StartMetricsServer(ctx context.Context, address string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.server != nil {
		return fmt.Errorf("metrics server already running")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	// Liveness endpoint for the metrics listener itself
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	p.server = &http.Server{
		Addr:    address,
		Handler: mux,
	}

	go func() {
		if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Scrape endpoint failure must not take the application down
			_ = err
		}
	}()

	return nil
}

func (p *prometheusCollector) StopMetricsServer(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.server == nil {
		return nil
	}

	err := p.server.Shutdown(ctx)
	p.server = nil
	return err
}

type metricsExporter struct {
	collector *prometheusCollector
	config    MetricsConfig
}

// NewMetricsExporter creates a new metrics exporter serving the collector's
// registry over HTTP when metrics are enabled.
func NewMetricsExporter(collector MetricsCollector, config MetricsConfig) MetricsExporter {
	promCollector, ok := collector.(*prometheusCollector)
	if !ok {
		return &noopExporter{}
	}

	return &metricsExporter{
		collector: promCollector,
		config:    config,
	}
}

func (e *metricsExporter) Start(ctx context.Context) error {
	if !e.config.Enabled {
		return nil
	}

	address := e.config.Address
	if address == "" {
		address = ":9090"
	}

	return e.collector.StartMetricsServer(ctx, address)
}

func (e *metricsExporter) Stop(ctx context.Context) error {
	return e.collector.StopMetricsServer(ctx)
}

type noopExporter struct{}

func (e *noopExporter) Start(ctx context.Context) error { return nil }
func (e *noopExporter) Stop(ctx context.Context) error  { return nil }

func MetricsMiddleware(collector MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			collector.IncActiveConnections()
			defer collector.DecActiveConnections()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			collector.RecordRequest(
				r.Method,
				r.URL.Path,
				fmt.Sprintf("%d", wrapped.statusCode),
				duration,
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
