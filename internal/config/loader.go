package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ConfigLoader defines the interface for loading and validating configuration.
type ConfigLoader interface {
	Load() (*Config, error)
	Watch(ctx context.Context) (<-chan *Config, error)
	Validate(cfg *Config) error
}

// configLoader implements ConfigLoader using Viper for configuration management.
type configLoader struct {
	validator *validator.Validate
}

// NewConfigLoader creates a new configuration loader with validation.
func NewConfigLoader() ConfigLoader {
	return &configLoader{
		validator: validator.New(),
	}
}

// newViper builds a viper instance with the CERTVAULT_ environment prefix
// and the standard config file search paths.
func newViper() *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/certvault/")
	v.AddConfigPath("$HOME/.certvault")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CERTVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	return v
}

// Load loads configuration from environment variables and config files.
// It follows the CERTVAULT_ environment variable prefix convention.
func (l *configLoader) Load() (*Config, error) {
	v := newViper()

	// Config file not found is acceptable, continue with env vars and defaults
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Watch monitors configuration changes and returns a channel with updated configs.
// This enables live configuration reloading.
func (l *configLoader) Watch(ctx context.Context) (<-chan *Config, error) {
	v := newViper()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read initial config file: %w", err)
		}
	}

	configCh := make(chan *Config, 1)

	var initialCfg Config
	if err := v.Unmarshal(&initialCfg); err == nil {
		if err := l.Validate(&initialCfg); err == nil {
			select {
			case configCh <- &initialCfg:
			case <-ctx.Done():
				close(configCh)
				return nil, ctx.Err()
			}
		}
	}

	v.WatchConfig()
	v.OnConfigChange(func(in fsnotify.Event) {
		var newCfg Config
		if err := v.Unmarshal(&newCfg); err != nil {
			return
		}

		if err := l.Validate(&newCfg); err != nil {
			return
		}

		select {
		case configCh <- &newCfg:
		case <-ctx.Done():
			return
		}
	})

	go func() {
		defer close(configCh)
		<-ctx.Done()
	}()

	return configCh, nil
}

// Validate validates the configuration using struct tags and custom validation rules.
func (l *configLoader) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	if err := l.validator.Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := l.validateCustomRules(cfg); err != nil {
		return fmt.Errorf("custom validation failed: %w", err)
	}

	return nil
}

// validateCustomRules performs additional validation beyond struct tags.
func (l *configLoader) validateCustomRules(cfg *Config) error {
	if cfg.Schedule.Enabled {
		if _, err := cfg.Schedule.Weekday(); err != nil {
			return err
		}
	}

	if cfg.Server.Port == cfg.Metrics.Port {
		return fmt.Errorf("metrics port cannot conflict with server port")
	}

	if cfg.Certs.MaxWaitTime <= 0 {
		return fmt.Errorf("certificate max wait time must be positive")
	}

	if cfg.Redis.ListTTL <= 0 || cfg.Redis.DetailTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limit requests per second must be positive")
		}
		if cfg.RateLimit.BurstSize <= 0 {
			return fmt.Errorf("rate limit burst size must be positive")
		}
	}

	return nil
}
