package certstore

import "github.com/google/wire"

// ProviderSet provides certificate storage dependencies.
var ProviderSet = wire.NewSet(
	OpenDB,
	NewMySQLRepository,
)
