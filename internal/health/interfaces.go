// Package health provides dependency probing for the readiness endpoint and
// a circuit breaker used to degrade gracefully when a dependency misbehaves.
package health

import (
	"context"
	"time"
)

// Probe checks one dependency. A nil error means healthy.
type Probe interface {
	// Name returns a unique identifier for this probe ("mysql", "redis").
	Name() string

	// Check performs a single health check.
	Check(ctx context.Context) error
}

// CheckResult is the outcome of one probe run.
type CheckResult struct {
	Healthy  bool          `json:"healthy"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Report aggregates every probe outcome for the health endpoint.
type Report struct {
	// Status is "healthy" when every probe passed, "degraded" otherwise.
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
}

// Healthy reports whether every registered probe passed.
func (r *Report) Healthy() bool {
	return r.Status == StatusHealthy
}

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Aggregator runs registered probes and merges their results.
type Aggregator interface {
	// Register adds a probe. Probes are registered during wiring, before
	// serving starts.
	Register(p Probe)

	// Check runs every probe concurrently and returns the merged report.
	Check(ctx context.Context) *Report
}

// CircuitBreaker tracks failures per named target and rejects calls to a
// target while its circuit is open. Circuits transition closed -> open after
// consecutive failures, then half-open after a cool-down, and close again
// after consecutive successes.
type CircuitBreaker interface {
	// Allow reports whether a call to the target may proceed.
	Allow(ctx context.Context, target string) bool

	// RecordSuccess notes a successful call against the target's circuit.
	RecordSuccess(ctx context.Context, target string)

	// RecordFailure notes a failed call against the target's circuit.
	RecordFailure(ctx context.Context, target string, err error)

	// State returns the target's current circuit state.
	State(ctx context.Context, target string) CircuitState

	// Reset forces the target's circuit back to closed.
	Reset(ctx context.Context, target string) error
}

// CircuitState represents the current state of one circuit.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens a
	// closed circuit.
	FailureThreshold int

	// SuccessThreshold is the consecutive-success count that closes a
	// half-open circuit.
	SuccessThreshold int

	// Timeout is how long an open circuit waits before admitting trial
	// requests.
	Timeout time.Duration

	// MaxRequests caps trial requests while half-open.
	MaxRequests int
}

// DefaultCircuitBreakerConfig returns the breaker settings used when none
// are configured explicitly.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		MaxRequests:      3,
	}
}
