// Package config provides configuration management for the certvault
// certificate lifecycle service. It handles loading, validation, and parsing
// of configuration from environment variables and configuration files using
// the CERTVAULT_ prefix convention.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the complete application configuration structure.
// All configuration uses the CERTVAULT_ prefix for environment variables.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis" validate:"required"`
	Kafka     KafkaConfig     `mapstructure:"kafka" validate:"required"`
	Certs     CertsConfig     `mapstructure:"certs" validate:"required"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Role      string          `mapstructure:"role" default:"all" validate:"oneof=api worker all"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host" default:"0.0.0.0"`
	Port            int           `mapstructure:"port" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" default:"30s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" default:"30s"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" default:"60s"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout" default:"30s"`
}

// DatabaseConfig contains MySQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" default:"localhost"`
	Port            int           `mapstructure:"port" default:"3306" validate:"min=1,max=65535"`
	Name            string        `mapstructure:"name" default:"certvault" validate:"required"`
	User            string        `mapstructure:"user" default:"certvault"`
	Password        string        `mapstructure:"password"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" default:"25"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" default:"5"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" default:"5m"`
}

// RedisConfig contains Redis cache connection configuration.
type RedisConfig struct {
	Host        string        `mapstructure:"host" default:"localhost"`
	Port        int           `mapstructure:"port" default:"6379" validate:"min=1,max=65535"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db" default:"0" validate:"min=0,max=15"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" default:"5s"`
	ListTTL     time.Duration `mapstructure:"list_ttl" default:"300s"`
	DetailTTL   time.Duration `mapstructure:"detail_ttl" default:"60s"`
}

// KafkaConfig contains event bus configuration.
type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers" validate:"required,min=1"`
	EventTopic        string   `mapstructure:"event_topic" default:"certvault.events" validate:"required"`
	PoisonTopic       string   `mapstructure:"poison_topic" default:"certvault.events.poison"`
	ConsumerGroup     string   `mapstructure:"consumer_group" default:"certvault-server" validate:"required"`
	Partitions        int      `mapstructure:"partitions" default:"3" validate:"min=1"`
	ReplicationFactor int      `mapstructure:"replication_factor" default:"1" validate:"min=1"`
}

// CertsConfig contains certificate pool and ACME driver configuration.
type CertsConfig struct {
	Dir              string        `mapstructure:"dir" default:"/certs" validate:"required"`
	ACMEChallengeDir string        `mapstructure:"acme_challenge_dir" default:"/challenges" validate:"required"`
	MaxWaitTime      time.Duration `mapstructure:"max_wait_time" default:"300s"`
	ReadOnStartup    bool          `mapstructure:"read_on_startup" default:"true"`
	WatchEnabled     bool          `mapstructure:"watch_enabled" default:"false"`
}

// ScheduleConfig contains background job scheduling configuration.
// The weekly job re-imports the certificate pool; the daily job recomputes
// expiry and renews certificates close to their not-after date.
type ScheduleConfig struct {
	Enabled         bool   `mapstructure:"enabled" default:"true"`
	WeeklyDay       string `mapstructure:"weekly_day" default:"mon"`
	WeeklyHour      int    `mapstructure:"weekly_hour" default:"2" validate:"min=0,max=23"`
	WeeklyMinute    int    `mapstructure:"weekly_minute" default:"0" validate:"min=0,max=59"`
	DailyHour       int    `mapstructure:"daily_hour" default:"1" validate:"min=0,max=23"`
	DailyMinute     int    `mapstructure:"daily_minute" default:"0" validate:"min=0,max=59"`
	RenewBeforeDays int    `mapstructure:"renew_before_days" default:"10" validate:"min=1"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" default:"json" validate:"oneof=json text"`
	Output string `mapstructure:"output" default:"stdout"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" default:"true"`
	Path    string `mapstructure:"path" default:"/metrics"`
	Port    int    `mapstructure:"port" default:"9090" validate:"min=1,max=65535"`
}

// RateLimitConfig contains HTTP rate limiting configuration.
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled" default:"true"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" default:"100"`
	BurstSize         int           `mapstructure:"burst_size" default:"200"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval" default:"10m"`
}

// weekdayNames maps configuration day names to time.Weekday values.
var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// Weekday resolves the configured weekly day name to a time.Weekday.
func (s *ScheduleConfig) Weekday() (time.Weekday, error) {
	day, ok := weekdayNames[strings.ToLower(s.WeeklyDay)]
	if !ok {
		return 0, fmt.Errorf("invalid weekly day %q: must be one of mon, tue, wed, thu, fri, sat, sun", s.WeeklyDay)
	}
	return day, nil
}

// GetServerAddress returns the formatted server address for HTTP listening.
func (s *ServerConfig) GetServerAddress() string {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DSN builds a go-sql-driver/mysql connection string. parseTime is required
// so DATETIME columns scan into time.Time; clientFoundRows makes RowsAffected
// count matched rows, which the repository relies on to detect missing ids.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC&clientFoundRows=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// Addr returns the host:port address for the Redis client.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MetricsAddress returns the listen address for the metrics endpoint.
func (m *MetricsConfig) MetricsAddress() string {
	return fmt.Sprintf(":%d", m.Port)
}

// IsAPIRole reports whether this process serves HTTP traffic.
func (c *Config) IsAPIRole() bool {
	return c.Role == "api" || c.Role == "all"
}

// IsWorkerRole reports whether this process consumes bus events.
func (c *Config) IsWorkerRole() bool {
	return c.Role == "worker" || c.Role == "all"
}
