package health

import (
	"context"
	"sync"
	"time"

	"github.com/albedosehen/certvault/internal/observability"
)

// circuitBreaker implements CircuitBreaker with one state machine per target.
type circuitBreaker struct {
	config   CircuitBreakerConfig
	circuits map[string]*circuit
	mu       sync.Mutex
	logger   observability.Logger
}

// circuit holds the state of a single target.
type circuit struct {
	state           CircuitState
	failures        int
	successes       int
	lastFailureTime time.Time
	halfOpenInFlight int
	mu              sync.Mutex
}

// NewCircuitBreaker creates a circuit breaker with the given thresholds.
func NewCircuitBreaker(config CircuitBreakerConfig, logger observability.Logger) CircuitBreaker {
	return &circuitBreaker{
		config:   config,
		circuits: make(map[string]*circuit),
		logger:   logger.WithFields(observability.Component("circuit")),
	}
}

func (cb *circuitBreaker) circuitFor(target string) *circuit {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[target]
	if !ok {
		c = &circuit{state: CircuitClosed}
		cb.circuits[target] = c
	}
	return c
}

func (cb *circuitBreaker) Allow(ctx context.Context, target string) bool {
	if target == "" {
		return false
	}

	c := cb.circuitFor(target)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CircuitClosed:
		return true

	case CircuitOpen:
		if time.Since(c.lastFailureTime) >= cb.config.Timeout {
			c.state = CircuitHalfOpen
			c.successes = 0
			c.halfOpenInFlight = 1
			cb.logger.Info(ctx, "circuit half-open, admitting trial request",
				observability.String("target", target))
			return true
		}
		return false

	case CircuitHalfOpen:
		if c.halfOpenInFlight < cb.config.MaxRequests {
			c.halfOpenInFlight++
			return true
		}
		return false

	default:
		return false
	}
}

func (cb *circuitBreaker) RecordSuccess(ctx context.Context, target string) {
	if target == "" {
		return
	}

	c := cb.circuitFor(target)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures = 0
	c.successes++

	if c.state == CircuitHalfOpen && c.successes >= cb.config.SuccessThreshold {
		c.state = CircuitClosed
		c.halfOpenInFlight = 0
		cb.logger.Info(ctx, "circuit closed",
			observability.String("target", target))
	}
}

func (cb *circuitBreaker) RecordFailure(ctx context.Context, target string, err error) {
	if target == "" {
		return
	}

	c := cb.circuitFor(target)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.successes = 0
	c.failures++
	c.lastFailureTime = time.Now()

	opened := false
	switch c.state {
	case CircuitClosed:
		if c.failures >= cb.config.FailureThreshold {
			c.state = CircuitOpen
			opened = true
		}
	case CircuitHalfOpen:
		// Any failure during trial traffic re-opens the circuit.
		c.state = CircuitOpen
		c.halfOpenInFlight = 0
		opened = true
	}

	if opened {
		cb.logger.Warn(ctx, "circuit opened",
			observability.String("target", target),
			observability.Int("failures", c.failures),
			observability.Error(err))
	}
}

func (cb *circuitBreaker) State(ctx context.Context, target string) CircuitState {
	c := cb.circuitFor(target)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (cb *circuitBreaker) Reset(ctx context.Context, target string) error {
	c := cb.circuitFor(target)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = CircuitClosed
	c.failures = 0
	c.successes = 0
	c.halfOpenInFlight = 0
	return nil
}
