package middleware

import "github.com/google/wire"

// ProviderSet provides the shared middleware state.
var ProviderSet = wire.NewSet(
	NewClientRateLimiter,
)
