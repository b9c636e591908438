// Package certcache projects certificate listings and details into Redis.
// The cache is read-through with short TTLs and is invalidated exclusively
// through bus events, never inline with writes. When Redis misbehaves the
// cache degrades to pass-through behind a circuit breaker rather than
// failing reads.
package certcache

import (
	"context"

	"github.com/albedosehen/certvault/internal/certstore"
)

// Cache caches the two read projections of the certificate store.
//
// Lookups report a miss instead of an error when Redis is unavailable; the
// caller falls through to the repository either way.
type Cache interface {
	GetList(ctx context.Context, store certstore.Store, offset, limit int) (*certstore.Page, bool)
	SetList(ctx context.Context, store certstore.Store, offset, limit int, page *certstore.Page)

	GetDetail(ctx context.Context, store certstore.Store, domain string) (*certstore.Certificate, bool)
	SetDetail(ctx context.Context, store certstore.Store, domain string, cert *certstore.Certificate)

	// InvalidateStore deletes every cached projection of a store.
	InvalidateStore(ctx context.Context, store certstore.Store) error

	// Ping verifies Redis connectivity for health checks.
	Ping(ctx context.Context) error

	Close() error
}
