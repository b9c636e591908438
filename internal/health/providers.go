package health

import (
	"github.com/google/wire"

	"github.com/albedosehen/certvault/internal/observability"
)

// ProviderSet provides health monitoring dependencies.
var ProviderSet = wire.NewSet(
	ProvideCircuitBreaker,
	NewAggregator,
)

// ProvideCircuitBreaker creates the shared circuit breaker with default
// thresholds.
func ProvideCircuitBreaker(logger observability.Logger) CircuitBreaker {
	return NewCircuitBreaker(DefaultCircuitBreakerConfig(), logger)
}
