// Package server is the HTTP adapter of the API role. It owns the chi route
// table under /api/vault, request decoding and validation, and the response
// envelope; all domain decisions stay in the lifecycle orchestrator.
package server

import (
	"context"
	"net/http"
)

// HTTPServer runs the API listener.
type HTTPServer interface {
	// Start begins serving. Blocking; returns after Stop or on listen
	// failure.
	Start(ctx context.Context) error

	// Stop gracefully shuts the listener down, waiting for in-flight
	// requests up to the configured graceful timeout.
	Stop(ctx context.Context) error

	// ListenAddr returns the bound address once started.
	ListenAddr() string

	// Handler exposes the routed handler, mainly for tests.
	Handler() http.Handler
}
