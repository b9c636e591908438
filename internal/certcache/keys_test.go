package certcache

import (
	"context"
	"path"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albedosehen/certvault/internal/certstore"
	"github.com/albedosehen/certvault/internal/config"
	"github.com/albedosehen/certvault/internal/health"
	certvaulttesting "github.com/albedosehen/certvault/internal/testing"
)

func TestListKey(t *testing.T) {
	key := ListKey(certstore.StoreWebsites, 0, 20)
	assert.Equal(t, "list:websites:off=0:lim=20", key)

	// Different pages cache independently.
	assert.NotEqual(t, key, ListKey(certstore.StoreWebsites, 20, 20))
	assert.NotEqual(t, key, ListKey(certstore.StoreWebsites, 0, 50))
}

func TestDetailKey(t *testing.T) {
	assert.Equal(t, "detail:apis:api.example.com",
		DetailKey(certstore.StoreAPIs, "api.example.com"))
}

func TestStorePattern_MatchesBothProjections(t *testing.T) {
	pattern := storePattern(certstore.StoreWebsites)

	for _, key := range []string{
		ListKey(certstore.StoreWebsites, 0, 20),
		ListKey(certstore.StoreWebsites, 40, 20),
		DetailKey(certstore.StoreWebsites, "example.com"),
	} {
		matched, err := path.Match(pattern, key)
		require.NoError(t, err)
		assert.True(t, matched, "pattern %q should match %q", pattern, key)
	}

	for _, key := range []string{
		ListKey(certstore.StoreAPIs, 0, 20),
		DetailKey(certstore.StoreDatabase, "db.example.com"),
	} {
		matched, err := path.Match(pattern, key)
		require.NoError(t, err)
		assert.False(t, matched, "pattern %q should not match %q", pattern, key)
	}
}

// deniedBreaker rejects every call, simulating an open circuit.
type deniedBreaker struct{}

func (deniedBreaker) Allow(ctx context.Context, target string) bool             { return false }
func (deniedBreaker) RecordSuccess(ctx context.Context, target string)          {}
func (deniedBreaker) RecordFailure(ctx context.Context, target string, _ error) {}
func (deniedBreaker) State(ctx context.Context, target string) health.CircuitState {
	return health.CircuitOpen
}
func (deniedBreaker) Reset(ctx context.Context, target string) error { return nil }

func TestRedisCache_OpenCircuitDegradesToMiss(t *testing.T) {
	cfg := config.RedisConfig{
		Host:        "127.0.0.1",
		Port:        1, // nothing listens here; the breaker must prevent dialing
		DialTimeout: 100 * time.Millisecond,
		ListTTL:     300 * time.Second,
		DetailTTL:   60 * time.Second,
	}

	cache := NewRedisCache(
		redis.NewClient(&redis.Options{Addr: cfg.Addr(), DialTimeout: cfg.DialTimeout}),
		cfg,
		deniedBreaker{},
		certvaulttesting.NewNopLogger(),
		certvaulttesting.NewNopMetrics(),
	)
	defer cache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	page, ok := cache.GetList(ctx, certstore.StoreWebsites, 0, 20)
	assert.False(t, ok)
	assert.Nil(t, page)

	cert, ok := cache.GetDetail(ctx, certstore.StoreWebsites, "example.com")
	assert.False(t, ok)
	assert.Nil(t, cert)

	// Writes are silently dropped while the circuit is open.
	cache.SetList(ctx, certstore.StoreWebsites, 0, 20, &certstore.Page{})
	cache.SetDetail(ctx, certstore.StoreWebsites, "example.com", &certstore.Certificate{})
}
