//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/albedosehen/certvault/internal/acme"
	"github.com/albedosehen/certvault/internal/certcache"
	"github.com/albedosehen/certvault/internal/certstore"
	"github.com/albedosehen/certvault/internal/config"
	"github.com/albedosehen/certvault/internal/events"
	"github.com/albedosehen/certvault/internal/health"
	"github.com/albedosehen/certvault/internal/lifecycle"
	"github.com/albedosehen/certvault/internal/middleware"
	"github.com/albedosehen/certvault/internal/observability"
	"github.com/albedosehen/certvault/internal/pki"
	"github.com/albedosehen/certvault/internal/pool"
	"github.com/albedosehen/certvault/internal/scheduler"
	"github.com/albedosehen/certvault/internal/server"
	"github.com/albedosehen/certvault/internal/worker"
)

// providerSet defines the complete set of providers for dependency injection.
var providerSet = wire.NewSet(
	// Configuration providers
	config.ProvideConfig,
	config.ProvideServerConfigFromConfig,
	config.ProvideDatabaseConfigFromConfig,
	config.ProvideRedisConfigFromConfig,
	config.ProvideKafkaConfigFromConfig,
	config.ProvideCertsConfigFromConfig,
	config.ProvideScheduleConfigFromConfig,
	config.ProvideRateLimitConfigFromConfig,
	config.ProvideLoggingConfigFromConfig,
	config.ProvideMetricsConfigFromConfig,

	// Observability providers
	observability.ProviderSet,

	// Storage, cache, parsing
	certstore.ProviderSet,
	certcache.ProviderSet,
	pki.ProviderSet,

	// ACME issuance
	acme.ProviderSet,

	// Event bus
	events.ProviderSet,

	// Pool filesystem components
	pool.ProviderSet,

	// Lifecycle orchestrator
	lifecycle.ProviderSet,

	// Worker and scheduler
	worker.ProviderSet,
	scheduler.ProviderSet,

	// HTTP surface
	middleware.ProviderSet,
	health.ProviderSet,
	server.ProviderSet,

	// Application provider
	ProvideApplication,
)

// InitializeApplication creates a fully wired application instance.
// This function will be implemented by Wire code generation.
func InitializeApplication(ctx context.Context) (*Application, error) {
	wire.Build(providerSet)
	return nil, nil
}
