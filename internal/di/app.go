package di

import (
	"context"
	"fmt"
	"sync"

	"github.com/albedosehen/certvault/internal/certcache"
	"github.com/albedosehen/certvault/internal/certstore"
	"github.com/albedosehen/certvault/internal/config"
	"github.com/albedosehen/certvault/internal/events"
	"github.com/albedosehen/certvault/internal/health"
	"github.com/albedosehen/certvault/internal/lifecycle"
	"github.com/albedosehen/certvault/internal/middleware"
	"github.com/albedosehen/certvault/internal/observability"
	"github.com/albedosehen/certvault/internal/pool"
	"github.com/albedosehen/certvault/internal/scheduler"
	"github.com/albedosehen/certvault/internal/server"
	"github.com/albedosehen/certvault/internal/worker"
)

// Application holds every wired component and drives the role-aware
// startup and shutdown sequences.
type Application struct {
	Config    *config.Config
	Logger    observability.Logger
	Metrics   observability.MetricsCollector
	Exporter  observability.MetricsExporter
	Repo      certstore.Repository
	Cache     certcache.Cache
	Producer  events.Producer
	Lifecycle lifecycle.Service
	Importer  pool.Importer
	Watcher   pool.Watcher
	Worker    *worker.Worker
	Scheduler *scheduler.Scheduler
	Server    server.HTTPServer
	Limiter   *middleware.ClientRateLimiter
	Health    health.Aggregator

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ProvideApplication creates the main application instance and registers
// the health probes for every wired backend.
func ProvideApplication(
	cfg *config.Config,
	logger observability.Logger,
	metrics observability.MetricsCollector,
	exporter observability.MetricsExporter,
	repo certstore.Repository,
	cache certcache.Cache,
	producer events.Producer,
	svc lifecycle.Service,
	importer pool.Importer,
	watcher pool.Watcher,
	wrk *worker.Worker,
	sched *scheduler.Scheduler,
	srv server.HTTPServer,
	limiter *middleware.ClientRateLimiter,
	aggregator health.Aggregator,
) *Application {
	aggregator.Register(health.NewProbe("mysql", repo.Ping))
	aggregator.Register(health.NewProbe("redis", cache.Ping))
	aggregator.Register(health.NewProbe("kafka", producer.Ping))
	aggregator.Register(health.NewDirProbe("pool", cfg.Certs.Dir))

	return &Application{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Exporter:  exporter,
		Repo:      repo,
		Cache:     cache,
		Producer:  producer,
		Lifecycle: svc,
		Importer:  importer,
		Watcher:   watcher,
		Worker:    wrk,
		Scheduler: sched,
		Server:    srv,
		Limiter:   limiter,
		Health:    aggregator,
	}
}

// Start launches the components for the configured role. It returns once
// everything is running; the long-lived loops run on internal goroutines
// until Stop is called.
func (a *Application) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("application is already running")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.Logger.Info(ctx, "starting certvault",
		observability.String("role", a.Config.Role),
		observability.String("address", a.Config.Server.GetServerAddress()),
	)

	if err := a.Exporter.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("start metrics exporter: %w", err)
	}

	if a.Config.IsWorkerRole() {
		a.startWorker(runCtx)
	}
	if a.Config.IsAPIRole() {
		a.startAPI(runCtx)
	}

	a.running = true
	return nil
}

func (a *Application) startWorker(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.Worker.Run(ctx); err != nil && ctx.Err() == nil {
			a.Logger.Error(ctx, err, "worker stopped unexpectedly")
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.Scheduler.Run(ctx); err != nil && ctx.Err() == nil {
			a.Logger.Error(ctx, err, "scheduler stopped unexpectedly")
		}
	}()
}

func (a *Application) startAPI(ctx context.Context) {
	if a.Config.Certs.ReadOnStartup {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.importOnStartup(ctx)
		}()
	}

	if a.Config.Certs.WatchEnabled {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.Watcher.Run(ctx); err != nil && ctx.Err() == nil {
				a.Logger.Error(ctx, err, "pool watcher stopped unexpectedly")
			}
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.Server.Start(ctx); err != nil {
			a.Logger.Error(ctx, err, "http server stopped unexpectedly")
		}
	}()
}

// importOnStartup seeds the database from the pool directories so a fresh
// deployment serves certificates without waiting for the first scheduled
// refresh.
func (a *Application) importOnStartup(ctx context.Context) {
	for _, store := range certstore.Stores {
		if !store.HasPoolDir() {
			continue
		}
		report, err := a.Importer.ImportStore(ctx, store, events.TriggerStartup)
		if err != nil {
			a.Logger.Error(ctx, err, "startup import failed",
				observability.Store(string(store)),
			)
			continue
		}
		a.Logger.Info(ctx, "startup import finished",
			observability.Store(string(store)),
			observability.Int("processed", report.Processed),
			observability.Int("failed", report.Failed),
			observability.Int("skipped", report.Skipped),
		)
	}
}

// Stop shuts everything down in reverse dependency order: the HTTP
// listener first so no new work arrives, then the background loops, then
// in-flight issuance, and finally the shared clients.
func (a *Application) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}

	a.Logger.Info(ctx, "stopping certvault")

	var errs []error

	if a.Config.IsAPIRole() {
		if err := a.Server.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop http server: %w", err))
		}
	}

	a.cancel()

	if a.Config.IsWorkerRole() {
		if err := a.Worker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close worker: %w", err))
		}
	}
	if a.Config.IsAPIRole() && a.Config.Certs.WatchEnabled {
		if err := a.Watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close watcher: %w", err))
		}
	}

	a.wg.Wait()

	// Let background issuance finish before the clients it depends on go
	// away.
	a.Lifecycle.Drain()

	if err := a.Producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close producer: %w", err))
	}
	if err := a.Cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close cache: %w", err))
	}
	if err := a.Repo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close repository: %w", err))
	}
	if err := a.Exporter.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop metrics exporter: %w", err))
	}
	a.Limiter.Stop()

	a.running = false
	a.Logger.Info(ctx, "certvault stopped")

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// IsRunning reports whether Start has completed and Stop has not.
func (a *Application) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
