package health

import (
	"context"
	"sync"
	"time"

	"github.com/albedosehen/certvault/internal/observability"
)

// probeTimeout bounds each individual probe so one hung dependency cannot
// stall the whole readiness response.
const probeTimeout = 5 * time.Second

// aggregator implements Aggregator.
type aggregator struct {
	probes  []Probe
	logger  observability.Logger
	metrics observability.MetricsCollector
}

// NewAggregator creates an empty probe aggregator.
func NewAggregator(logger observability.Logger, metrics observability.MetricsCollector) Aggregator {
	return &aggregator{
		logger:  logger.WithFields(observability.Component("health")),
		metrics: metrics,
	}
}

func (a *aggregator) Register(p Probe) {
	a.probes = append(a.probes, p)
}

func (a *aggregator) Check(ctx context.Context) *Report {
	report := &Report{
		Status:    StatusHealthy,
		Checks:    make(map[string]CheckResult, len(a.probes)),
		Timestamp: time.Now().UTC(),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, p := range a.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			start := time.Now()
			err := p.Check(probeCtx)
			elapsed := time.Since(start)

			a.metrics.RecordHealthCheck(p.Name(), err == nil, elapsed)

			result := CheckResult{Healthy: err == nil, Duration: elapsed}
			if err != nil {
				result.Error = err.Error()
				a.logger.Warn(ctx, "health probe failed",
					observability.String("probe", p.Name()),
					observability.Error(err))
			}

			mu.Lock()
			report.Checks[p.Name()] = result
			if err != nil {
				report.Status = StatusDegraded
			}
			mu.Unlock()
		}(p)
	}

	wg.Wait()
	return report
}

// probe is the closure-backed Probe used for dependency checks.
type probe struct {
	name  string
	check func(ctx context.Context) error
}

// NewProbe wraps a check function as a named Probe.
func NewProbe(name string, check func(ctx context.Context) error) Probe {
	return &probe{name: name, check: check}
}

func (p *probe) Name() string                    { return p.name }
func (p *probe) Check(ctx context.Context) error { return p.check(ctx) }
