package scheduler

import "github.com/google/wire"

// ProviderSet provides the background job scheduler.
var ProviderSet = wire.NewSet(
	NewScheduler,
)
