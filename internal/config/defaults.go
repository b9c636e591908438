package config

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults configures all default values for the application configuration.
// This ensures consistent behavior when configuration values are not explicitly set.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.name", "certvault")
	v.SetDefault("database.user", "certvault")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.list_ttl", "300s")
	v.SetDefault("redis.detail_ttl", "60s")

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.event_topic", "certvault.events")
	v.SetDefault("kafka.poison_topic", "certvault.events.poison")
	v.SetDefault("kafka.consumer_group", "certvault-server")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication_factor", 1)

	// Certificate pool and ACME defaults
	v.SetDefault("certs.dir", "/certs")
	v.SetDefault("certs.acme_challenge_dir", "/challenges")
	v.SetDefault("certs.max_wait_time", "300s")
	v.SetDefault("certs.read_on_startup", true)
	v.SetDefault("certs.watch_enabled", false)

	// Schedule defaults
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.weekly_day", "mon")
	v.SetDefault("schedule.weekly_hour", 2)
	v.SetDefault("schedule.weekly_minute", 0)
	v.SetDefault("schedule.daily_hour", 1)
	v.SetDefault("schedule.daily_minute", 0)
	v.SetDefault("schedule.renew_before_days", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)

	// Rate limiting defaults
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_second", 100.0)
	v.SetDefault("ratelimit.burst_size", 200)
	v.SetDefault("ratelimit.cleanup_interval", "10m")

	// Role defaults
	v.SetDefault("role", "all")
}

// GetDefaultConfig returns a configuration object with all default values applied.
// This is useful for testing and documentation purposes.
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			GracefulTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            3306,
			Name:            "certvault",
			User:            "certvault",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Host:        "localhost",
			Port:        6379,
			DB:          0,
			DialTimeout: 5 * time.Second,
			ListTTL:     300 * time.Second,
			DetailTTL:   60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:           []string{"localhost:9092"},
			EventTopic:        "certvault.events",
			PoisonTopic:       "certvault.events.poison",
			ConsumerGroup:     "certvault-server",
			Partitions:        3,
			ReplicationFactor: 1,
		},
		Certs: CertsConfig{
			Dir:              "/certs",
			ACMEChallengeDir: "/challenges",
			MaxWaitTime:      300 * time.Second,
			ReadOnStartup:    true,
			WatchEnabled:     false,
		},
		Schedule: ScheduleConfig{
			Enabled:         true,
			WeeklyDay:       "mon",
			WeeklyHour:      2,
			WeeklyMinute:    0,
			DailyHour:       1,
			DailyMinute:     0,
			RenewBeforeDays: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 100.0,
			BurstSize:         200,
			CleanupInterval:   10 * time.Minute,
		},
		Role: "all",
	}
}
