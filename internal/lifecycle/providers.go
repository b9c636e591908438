package lifecycle

import (
	"github.com/google/wire"

	"github.com/albedosehen/certvault/internal/acme"
	"github.com/albedosehen/certvault/internal/certcache"
	"github.com/albedosehen/certvault/internal/certstore"
	"github.com/albedosehen/certvault/internal/config"
	"github.com/albedosehen/certvault/internal/events"
	"github.com/albedosehen/certvault/internal/observability"
	"github.com/albedosehen/certvault/internal/pki"
	"github.com/albedosehen/certvault/internal/pool"
)

// ProvideService builds the orchestrator with the configured renewal window.
func ProvideService(
	cfg config.ScheduleConfig,
	repo certstore.Repository,
	cache certcache.Cache,
	driver acme.Driver,
	parser pki.Parser,
	producer events.Producer,
	exporter pool.Exporter,
	logger observability.Logger,
	metrics observability.MetricsCollector,
) Service {
	return NewService(repo, cache, driver, parser, producer, exporter, logger, metrics, cfg.RenewBeforeDays)
}

// ProviderSet provides the lifecycle orchestrator.
var ProviderSet = wire.NewSet(
	ProvideService,
)
