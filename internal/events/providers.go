package events

import "github.com/google/wire"

// ProviderSet provides event bus dependencies.
var ProviderSet = wire.NewSet(
	NewProducer,
	NewDispatcher,
	NewConsumer,
)
