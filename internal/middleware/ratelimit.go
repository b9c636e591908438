package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/albedosehen/certvault/internal/config"
	"github.com/albedosehen/certvault/internal/observability"
)

// ClientRateLimiter keeps one token bucket per client key and discards idle
// buckets on an interval so the map does not grow unbounded.
type ClientRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	limit rate.Limit
	burst int

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
	logger        observability.Logger
}

// NewClientRateLimiter creates a limiter pool from configuration.
func NewClientRateLimiter(cfg config.RateLimitConfig, logger observability.Logger) *ClientRateLimiter {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	rl := &ClientRateLimiter{
		limiters:      make(map[string]*rate.Limiter),
		limit:         rate.Limit(cfg.RequestsPerSecond),
		burst:         cfg.BurstSize,
		cleanupTicker: time.NewTicker(interval),
		stopCleanup:   make(chan struct{}),
		logger:        logger.WithFields(observability.Component("ratelimit")),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether the key may proceed.
func (rl *ClientRateLimiter) Allow(key string) bool {
	return rl.limiterFor(key).Allow()
}

func (rl *ClientRateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

func (rl *ClientRateLimiter) cleanupLoop() {
	for {
		select {
		case <-rl.cleanupTicker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			rl.cleanupTicker.Stop()
			return
		}
	}
}

// cleanup drops buckets that have refilled completely; a full bucket means
// the client has been idle for at least burst/limit seconds.
func (rl *ClientRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, l := range rl.limiters {
		if l.Tokens() >= float64(rl.burst) {
			delete(rl.limiters, key)
		}
	}
}

// Stop terminates the cleanup goroutine.
func (rl *ClientRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

// RateLimit rejects clients exceeding their per-IP budget with a 429. A
// disabled configuration yields a pass-through middleware.
func RateLimit(
	cfg config.RateLimitConfig,
	limiter *ClientRateLimiter,
	logger observability.Logger,
	metrics observability.MetricsCollector,
) Middleware {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}

	log := logger.WithFields(observability.Component("ratelimit"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r)
			if limiter.Allow(key) {
				next.ServeHTTP(w, r)
				return
			}

			log.Warn(r.Context(), "rate limit exceeded",
				observability.RequestID(GetRequestID(r.Context())),
				observability.String("key", key),
				observability.Method(r.Method),
				observability.Path(r.URL.Path),
			)
			metrics.RecordRateLimitHit(key)

			retryAfter := 1.0
			if cfg.RequestsPerSecond > 0 {
				retryAfter = 1.0 / cfg.RequestsPerSecond
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter+0.5))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"message": "rate limit exceeded",
			})
		})
	}
}
