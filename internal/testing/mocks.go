package testing

import (
	"sync"
	"time"
)

// NopMetrics satisfies observability.MetricsCollector while dropping every
// measurement.
type NopMetrics struct{}

func NewNopMetrics() *NopMetrics { return &NopMetrics{} }

func (m *NopMetrics) RecordRequest(method, path, status string, duration time.Duration)     {}
func (m *NopMetrics) RecordACMEAttempt(domain, outcome string, duration time.Duration)      {}
func (m *NopMetrics) RecordEventPublished(eventType string, success bool)                   {}
func (m *NopMetrics) RecordEventConsumed(eventType string, success bool, d time.Duration)   {}
func (m *NopMetrics) RecordCacheOp(projection, outcome string)                              {}
func (m *NopMetrics) RecordImport(store string, processed, failed int)                      {}
func (m *NopMetrics) RecordExport(store string, success bool)                               {}
func (m *NopMetrics) RecordRenewal(domain string, success bool)                             {}
func (m *NopMetrics) SetCertificateExpiry(domain string, expiry time.Time)                  {}
func (m *NopMetrics) RecordRateLimitHit(key string)                                         {}
func (m *NopMetrics) RecordHealthCheck(target string, success bool, duration time.Duration) {}
func (m *NopMetrics) IncActiveConnections()                                                 {}
func (m *NopMetrics) DecActiveConnections()                                                 {}

// RecordingMetrics captures a few counters tests assert on.
type RecordingMetrics struct {
	NopMetrics

	mu            sync.Mutex
	ACMEAttempts  map[string]int // outcome -> count
	CacheOps      map[string]int // projection:outcome -> count
	Imports       map[string]int // store -> processed
	ImportFails   map[string]int // store -> failed
	Renewals      map[string]int // domain -> count
	EventsOut     map[string]int // event type -> count
	EventsIn      map[string]int // event type -> count
}

func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{
		ACMEAttempts: make(map[string]int),
		CacheOps:     make(map[string]int),
		Imports:      make(map[string]int),
		ImportFails:  make(map[string]int),
		Renewals:     make(map[string]int),
		EventsOut:    make(map[string]int),
		EventsIn:     make(map[string]int),
	}
}

func (m *RecordingMetrics) RecordACMEAttempt(domain, outcome string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ACMEAttempts[outcome]++
}

func (m *RecordingMetrics) RecordCacheOp(projection, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheOps[projection+":"+outcome]++
}

func (m *RecordingMetrics) RecordImport(store string, processed, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Imports[store] += processed
	m.ImportFails[store] += failed
}

func (m *RecordingMetrics) RecordRenewal(domain string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Renewals[domain]++
}

func (m *RecordingMetrics) RecordEventPublished(eventType string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EventsOut[eventType]++
}

func (m *RecordingMetrics) RecordEventConsumed(eventType string, success bool, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EventsIn[eventType]++
}

// Snapshot returns a copy of one counter map by name for race-free asserts.
func (m *RecordingMetrics) Snapshot(counter map[string]int) map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(counter))
	for k, v := range counter {
		out[k] = v
	}
	return out
}
