package server

import "github.com/google/wire"

// ProviderSet provides the HTTP adapter.
var ProviderSet = wire.NewSet(
	NewHandlers,
	NewRouter,
	NewHTTPServer,
)
