package config

import (
	"context"
	"fmt"

	"github.com/albedosehen/certvault/internal/observability"
)

// ProvideConfig loads and returns the main configuration.
// It first attempts to load secrets from Doppler if available,
// then proceeds with the regular configuration loading process.
func ProvideConfig() (*Config, error) {
	// Configuration is not loaded yet, so the full observability.Logger
	// cannot exist; a plain stdout logger covers the bootstrap window.
	logger := &basicLogger{}

	dopplerProvider := NewDopplerProvider(logger)
	if err := dopplerProvider.LoadSecrets(); err != nil {
		// Log but don't fail if Doppler fails
		logger.Warn(context.Background(), fmt.Sprintf("Failed to load Doppler secrets: %v", err))
	}

	loader := NewConfigLoader()
	return loader.Load()
}

// basicLogger is a simple implementation of the observability.Logger interface
// used during initial configuration loading.
type basicLogger struct{}

func (l *basicLogger) Debug(ctx context.Context, msg string, fields ...observability.Field) {
	fmt.Printf("[DEBUG] %s\n", msg)
}

func (l *basicLogger) Info(ctx context.Context, msg string, fields ...observability.Field) {
	fmt.Printf("[INFO] %s\n", msg)
}

func (l *basicLogger) Warn(ctx context.Context, msg string, fields ...observability.Field) {
	fmt.Printf("[WARN] %s\n", msg)
}

func (l *basicLogger) Error(ctx context.Context, err error, msg string, fields ...observability.Field) {
	fmt.Printf("[ERROR] %s: %v\n", msg, err)
}

func (l *basicLogger) WithFields(fields ...observability.Field) observability.Logger {
	return l
}

func (l *basicLogger) WithContext(ctx context.Context) observability.Logger {
	return l
}

// Provider functions that extract configs from an existing Config instance.
// These are used when the Config is already loaded and passed to Wire.

// ProvideServerConfigFromConfig extracts server config from a main config.
func ProvideServerConfigFromConfig(cfg *Config) ServerConfig {
	return cfg.Server
}

// ProvideDatabaseConfigFromConfig extracts database config from a main config.
func ProvideDatabaseConfigFromConfig(cfg *Config) DatabaseConfig {
	return cfg.Database
}

// ProvideRedisConfigFromConfig extracts redis config from a main config.
func ProvideRedisConfigFromConfig(cfg *Config) RedisConfig {
	return cfg.Redis
}

// ProvideKafkaConfigFromConfig extracts kafka config from a main config.
func ProvideKafkaConfigFromConfig(cfg *Config) KafkaConfig {
	return cfg.Kafka
}

// ProvideCertsConfigFromConfig extracts certificate pool config from a main config.
func ProvideCertsConfigFromConfig(cfg *Config) CertsConfig {
	return cfg.Certs
}

// ProvideScheduleConfigFromConfig extracts schedule config from a main config.
func ProvideScheduleConfigFromConfig(cfg *Config) ScheduleConfig {
	return cfg.Schedule
}

// ProvideRateLimitConfigFromConfig extracts rate limit config from a main config.
func ProvideRateLimitConfigFromConfig(cfg *Config) RateLimitConfig {
	return cfg.RateLimit
}

// ProvideLoggingConfigFromConfig extracts logging config from a main config.
func ProvideLoggingConfigFromConfig(cfg *Config) observability.LoggingConfig {
	return observability.LoggingConfig{
		Level:      observability.ParseLogLevel(cfg.Logging.Level),
		Format:     observability.ParseLogFormat(cfg.Logging.Format),
		Output:     cfg.Logging.Output,
		AddSource:  false,
		TimeFormat: "",
	}
}

// ProvideMetricsConfigFromConfig extracts metrics config from a main config.
func ProvideMetricsConfigFromConfig(cfg *Config) observability.MetricsConfig {
	return observability.MetricsConfig{
		Enabled:   cfg.Metrics.Enabled,
		Address:   cfg.Metrics.MetricsAddress(),
		Path:      cfg.Metrics.Path,
		Namespace: "certvault",
		Subsystem: "vault",
	}
}
