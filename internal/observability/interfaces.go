package observability

import (
	"context"
	"log/slog"
	"time"
)

// Logger provides structured logging with context awareness.
// It wraps slog functionality with additional vault-specific features.
type Logger interface {
	// Debug logs debug-level messages with optional fields.
	Debug(ctx context.Context, msg string, fields ...Field)

	// Info logs info-level messages with optional fields.
	Info(ctx context.Context, msg string, fields ...Field)

	// Warn logs warning-level messages with optional fields.
	Warn(ctx context.Context, msg string, fields ...Field)

	// Error logs error-level messages with error and optional fields.
	Error(ctx context.Context, err error, msg string, fields ...Field)

	// WithFields returns a new logger with the specified fields pre-set.
	WithFields(fields ...Field) Logger

	// WithContext returns a new logger with context-specific fields.
	WithContext(ctx context.Context) Logger
}

// MetricsCollector collects and exports application metrics.
// It provides methods for recording certificate-lifecycle metrics.
type MetricsCollector interface {
	// RecordRequest records metrics for an HTTP request.
	RecordRequest(method, path, status string, duration time.Duration)

	// RecordACMEAttempt records an ACME issuance attempt and its outcome
	// (success, reused, rate_limited, timeout, fail).
	RecordACMEAttempt(domain, outcome string, duration time.Duration)

	// RecordEventPublished records an event sent to the bus.
	RecordEventPublished(eventType string, success bool)

	// RecordEventConsumed records a handled event and the handler outcome.
	RecordEventConsumed(eventType string, success bool, duration time.Duration)

	// RecordCacheOp records a cache operation outcome (hit, miss, error, skip).
	RecordCacheOp(projection, outcome string)

	// RecordImport records pool-import results for a store.
	RecordImport(store string, processed, failed int)

	// RecordExport records a pool export for a store.
	RecordExport(store string, success bool)

	// RecordRenewal records an auto-renewal attempt for a domain.
	RecordRenewal(domain string, success bool)

	// SetCertificateExpiry publishes the not-after timestamp for a domain.
	SetCertificateExpiry(domain string, expiry time.Time)

	// RecordRateLimitHit records rate limiting metrics.
	RecordRateLimitHit(key string)

	// RecordHealthCheck records health check metrics.
	RecordHealthCheck(target string, success bool, duration time.Duration)

	// IncActiveConnections increments the active connections counter.
	IncActiveConnections()

	// DecActiveConnections decrements the active connections counter.
	DecActiveConnections()
}

// MetricsExporter exposes collected metrics to an external scraper.
type MetricsExporter interface {
	// Start begins the metrics export process.
	Start(ctx context.Context) error

	// Stop halts the metrics export process.
	Stop(ctx context.Context) error
}

// Field represents a structured log field with key-value data.
type Field struct {
	Key   string
	Value interface{}
}

// ToSlogAttr converts a Field to a slog.Attr for compatibility.
func (f Field) ToSlogAttr() slog.Attr {
	return slog.Any(f.Key, f.Value)
}

// Common field creation functions

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a float64 field.
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Time creates a time field.
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value}
}

// Error creates an error field.
func Error(err error) Field {
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field with an arbitrary value.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// RequestID creates a request ID field.
func RequestID(id string) Field {
	return Field{Key: "request_id", Value: id}
}

// Method creates an HTTP method field.
func Method(method string) Field {
	return Field{Key: "method", Value: method}
}

// Status creates an HTTP status field.
func Status(status int) Field {
	return Field{Key: "status", Value: status}
}

// Path creates a URL path field.
func Path(path string) Field {
	return Field{Key: "path", Value: path}
}

// RemoteAddr creates a remote address field.
func RemoteAddr(addr string) Field {
	return Field{Key: "remote_addr", Value: addr}
}

// UserAgent creates a user agent field.
func UserAgent(ua string) Field {
	return Field{Key: "user_agent", Value: ua}
}

// Component creates a component field for identifying the source.
func Component(component string) Field {
	return Field{Key: "component", Value: component}
}

// Domain creates a certificate domain field.
func Domain(domain string) Field {
	return Field{Key: "domain", Value: domain}
}

// Store creates a certificate store field (websites, apis, database).
func Store(store string) Field {
	return Field{Key: "store", Value: store}
}

// Source creates a certificate source field (auto, manual_apply, manual_add).
func Source(source string) Field {
	return Field{Key: "source", Value: source}
}

// FolderName creates a pool folder name field.
func FolderName(name string) Field {
	return Field{Key: "folder_name", Value: name}
}

// CertificateID creates a certificate id field.
func CertificateID(id string) Field {
	return Field{Key: "certificate_id", Value: id}
}

// EventType creates an event type field.
func EventType(t string) Field {
	return Field{Key: "event_type", Value: t}
}

// Trigger creates a trigger field for event provenance.
func Trigger(trigger string) Field {
	return Field{Key: "trigger", Value: trigger}
}

// LogLevel represents logging severity levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ToSlogLevel converts LogLevel to slog.Level.
func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat represents different logging output formats.
type LogFormat int

const (
	FormatJSON LogFormat = iota
	FormatText
)

// String returns the string representation of the log format.
func (f LogFormat) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatText:
		return "text"
	default:
		return "json"
	}
}

// LoggingConfig configures the logging system.
type LoggingConfig struct {
	Level      LogLevel  `json:"level"`
	Format     LogFormat `json:"format"`
	Output     string    `json:"output"`
	AddSource  bool      `json:"add_source"`
	TimeFormat string    `json:"time_format"`
}

// MetricsConfig configures the metrics collection system.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Address   string `json:"address"`
	Path      string `json:"path"`
	Namespace string `json:"namespace"`
	Subsystem string `json:"subsystem"`
}
