// Package worker is the consuming side of the event pipeline: it binds each
// event type to the subsystem that executes it. Handlers are idempotent;
// redelivery after a crash re-runs them safely.
package worker

import (
	"context"

	"github.com/albedosehen/certvault/internal/certcache"
	"github.com/albedosehen/certvault/internal/certstore"
	"github.com/albedosehen/certvault/internal/events"
	"github.com/albedosehen/certvault/internal/lifecycle"
	"github.com/albedosehen/certvault/internal/observability"
	"github.com/albedosehen/certvault/internal/pool"
)

// Handlers owns the event-type → action bindings of the worker role.
type Handlers struct {
	importer  pool.Importer
	exporter  pool.Exporter
	deleter   pool.Deleter
	cache     certcache.Cache
	lifecycle lifecycle.Service
	logger    observability.Logger
}

// NewHandlers creates the worker handler set.
func NewHandlers(
	importer pool.Importer,
	exporter pool.Exporter,
	deleter pool.Deleter,
	cache certcache.Cache,
	svc lifecycle.Service,
	logger observability.Logger,
) *Handlers {
	return &Handlers{
		importer:  importer,
		exporter:  exporter,
		deleter:   deleter,
		cache:     cache,
		lifecycle: svc,
		logger:    logger.WithFields(observability.Component("worker")),
	}
}

// Register binds every handled event type onto the dispatcher.
func (h *Handlers) Register(d *events.Dispatcher) {
	d.Register(events.TypeOperationRefresh, h.handleRefresh)
	d.Register(events.TypeCacheInvalidate, h.handleCacheInvalidate)
	d.Register(events.TypeCertificateParse, h.handleParse)
	d.Register(events.TypeFolderDelete, h.handleFolderDelete)
	d.Register(events.TypeFileOrFolderDelete, h.handleFileOrFolderDelete)
	d.Register(events.TypeCertificateExport, h.handleExport)
}

func (h *Handlers) handleRefresh(ctx context.Context, payload []byte) error {
	var p events.RefreshPayload
	if err := events.Decode(payload, &p); err != nil {
		return err
	}
	store, err := certstore.ParseStore(p.Store)
	if err != nil {
		return err
	}

	// The importer's own emission guard keys off the trigger: a refresh
	// that itself arrived as an event must not emit again.
	trigger := p.Trigger
	if trigger == "" {
		trigger = events.TriggerEvent
	}

	report, err := h.importer.ImportStore(ctx, store, trigger)
	if err != nil {
		return err
	}

	h.logger.Info(ctx, "pool refresh handled",
		observability.Store(store.String()),
		observability.Trigger(string(trigger)),
		observability.Int("processed", report.Processed),
		observability.Int("failed", report.Failed))
	return nil
}

func (h *Handlers) handleCacheInvalidate(ctx context.Context, payload []byte) error {
	var p events.CacheInvalidatePayload
	if err := events.Decode(payload, &p); err != nil {
		return err
	}

	for _, name := range p.Stores {
		store, err := certstore.ParseStore(name)
		if err != nil {
			h.logger.Warn(ctx, "skipping unknown store in cache invalidation",
				observability.String("store", name))
			continue
		}
		if err := h.cache.InvalidateStore(ctx, store); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handlers) handleParse(ctx context.Context, payload []byte) error {
	var p events.ParsePayload
	if err := events.Decode(payload, &p); err != nil {
		return err
	}
	return h.lifecycle.ParseCertificate(ctx, p.CertificateID)
}

func (h *Handlers) handleFolderDelete(ctx context.Context, payload []byte) error {
	var p events.FolderDeletePayload
	if err := events.Decode(payload, &p); err != nil {
		return err
	}
	store, err := certstore.ParseStore(p.Store)
	if err != nil {
		return err
	}
	return h.deleter.DeleteFolder(ctx, store, p.FolderName)
}

func (h *Handlers) handleFileOrFolderDelete(ctx context.Context, payload []byte) error {
	var p events.FileOrFolderDeletePayload
	if err := events.Decode(payload, &p); err != nil {
		return err
	}
	store, err := certstore.ParseStore(p.Store)
	if err != nil {
		return err
	}
	return h.deleter.DeleteFileOrFolder(ctx, store, p.Path, p.ItemType)
}

func (h *Handlers) handleExport(ctx context.Context, payload []byte) error {
	var p events.ExportPayload
	if err := events.Decode(payload, &p); err != nil {
		return err
	}
	return h.exporter.ExportCertificate(ctx, p.CertificateID)
}
