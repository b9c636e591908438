package certcache

import "github.com/google/wire"

// ProviderSet provides certificate cache dependencies.
var ProviderSet = wire.NewSet(
	NewRedisClient,
	NewRedisCache,
)
