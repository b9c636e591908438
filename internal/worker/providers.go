package worker

import "github.com/google/wire"

// ProviderSet provides the worker role.
var ProviderSet = wire.NewSet(
	NewHandlers,
	NewWorker,
)
