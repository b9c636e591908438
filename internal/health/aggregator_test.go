package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	certvaulttesting "github.com/albedosehen/certvault/internal/testing"
)

func testAggregator(t *testing.T) Aggregator {
	t.Helper()
	return NewAggregator(certvaulttesting.NewNopLogger(), certvaulttesting.NewNopMetrics())
}

func TestAggregator_AllHealthy(t *testing.T) {
	agg := testAggregator(t)
	agg.Register(NewProbe("mysql", func(ctx context.Context) error { return nil }))
	agg.Register(NewProbe("redis", func(ctx context.Context) error { return nil }))

	report := agg.Check(context.Background())

	assert.Equal(t, StatusHealthy, report.Status)
	assert.True(t, report.Healthy())
	require.Len(t, report.Checks, 2)
	assert.True(t, report.Checks["mysql"].Healthy)
	assert.True(t, report.Checks["redis"].Healthy)
	assert.False(t, report.Timestamp.IsZero())
}

func TestAggregator_OneFailureDegrades(t *testing.T) {
	agg := testAggregator(t)
	agg.Register(NewProbe("mysql", func(ctx context.Context) error { return nil }))
	agg.Register(NewProbe("kafka", func(ctx context.Context) error {
		return errors.New("dial tcp: connection refused")
	}))

	report := agg.Check(context.Background())

	assert.Equal(t, StatusDegraded, report.Status)
	assert.False(t, report.Healthy())
	assert.True(t, report.Checks["mysql"].Healthy)
	assert.False(t, report.Checks["kafka"].Healthy)
	assert.Contains(t, report.Checks["kafka"].Error, "connection refused")
}

func TestAggregator_ProbesRunConcurrently(t *testing.T) {
	agg := testAggregator(t)
	for i := 0; i < 4; i++ {
		agg.Register(NewProbe(string(rune('a'+i)), func(ctx context.Context) error {
			time.Sleep(50 * time.Millisecond)
			return nil
		}))
	}

	start := time.Now()
	report := agg.Check(context.Background())
	elapsed := time.Since(start)

	assert.True(t, report.Healthy())
	// Four 50ms probes in sequence would take 200ms.
	assert.Less(t, elapsed, 150*time.Millisecond)
}

func TestDirProbe(t *testing.T) {
	t.Run("writable directory passes", func(t *testing.T) {
		probe := NewDirProbe("pool", t.TempDir())
		assert.NoError(t, probe.Check(context.Background()))
	})

	t.Run("missing directory fails", func(t *testing.T) {
		probe := NewDirProbe("pool", filepath.Join(t.TempDir(), "missing"))
		assert.Error(t, probe.Check(context.Background()))
	})

	t.Run("file instead of directory fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		probe := NewDirProbe("pool", path)
		assert.Error(t, probe.Check(context.Background()))
	})
}
