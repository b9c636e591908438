package events

import (
	"context"

	"github.com/albedosehen/certvault/internal/certstore"
)

// Producer publishes lifecycle events to the bus.
type Producer interface {
	PublishRefresh(ctx context.Context, store certstore.Store, trigger Trigger) error
	PublishCacheInvalidate(ctx context.Context, stores []certstore.Store, trigger Trigger) error
	PublishParse(ctx context.Context, certificateID string) error
	PublishFolderDelete(ctx context.Context, store certstore.Store, folderName string) error
	PublishFileOrFolderDelete(ctx context.Context, store certstore.Store, path string, itemType ItemType) error
	PublishExport(ctx context.Context, certificateID string) error

	// Ping verifies broker connectivity for health checks.
	Ping(ctx context.Context) error

	Close() error
}

// Handler processes one event body. Returned errors are logged and count
// toward poison forwarding; they never stop the consume loop.
type Handler func(ctx context.Context, payload []byte) error

// Consumer reads the event topic and dispatches to registered handlers.
type Consumer interface {
	// Run blocks consuming messages until the context is canceled.
	Run(ctx context.Context) error

	Close() error
}
