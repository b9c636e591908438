package pki

import "github.com/google/wire"

// ProviderSet provides certificate parsing dependencies.
var ProviderSet = wire.NewSet(
	NewParser,
)
