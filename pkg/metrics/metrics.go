// Package metrics provides metrics implementations for Cleave
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cleaveai/cleave/pkg/interfaces"
)

// NoOpMetrics is a no-operation metrics implementation
type NoOpMetrics struct{}

// Counter increments a counter metric
func (m *NoOpMetrics) Counter(name string, value float64, labels map[string]string) {
	// No-op
}

// Gauge sets a gauge metric
func (m *NoOpMetrics) Gauge(name string, value float64, labels map[string]string) {
	// No-op
}

// Histogram records a histogram metric
func (m *NoOpMetrics) Histogram(name string, value float64, labels map[string]string) {
	// No-op
}

// Timer records timing metrics
func (m *NoOpMetrics) Timer(name string, duration float64, labels map[string]string) {
	// No-op
}

// Distribution aggregates observed values for one histogram or timer series.
type Distribution struct {
	Count uint64
	Sum   float64
	Min   float64
	Max   float64
}

// Snapshot is a point-in-time copy of all recorded series.
type Snapshot struct {
	Counters   map[string]float64
	Gauges     map[string]float64
	Histograms map[string]Distribution
	Timers     map[string]Distribution
}

// MemoryMetrics aggregates metrics in process memory. Series are keyed by
// name plus sorted labels, so the same name with different labels stays
// distinct. Safe for concurrent use.
type MemoryMetrics struct {
	mu         sync.Mutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string]*Distribution
	timers     map[string]*Distribution
}

// Counter adds value to the named counter series
func (m *MemoryMetrics) Counter(name string, value float64, labels map[string]string) {
	key := seriesKey(name, labels)
	m.mu.Lock()
	m.counters[key] += value
	m.mu.Unlock()
}

// Gauge sets the named gauge series to value
func (m *MemoryMetrics) Gauge(name string, value float64, labels map[string]string) {
	key := seriesKey(name, labels)
	m.mu.Lock()
	m.gauges[key] = value
	m.mu.Unlock()
}

// Histogram records value in the named histogram series
func (m *MemoryMetrics) Histogram(name string, value float64, labels map[string]string) {
	key := seriesKey(name, labels)
	m.mu.Lock()
	observe(m.histograms, key, value)
	m.mu.Unlock()
}

// Timer records a duration in the named timer series
func (m *MemoryMetrics) Timer(name string, duration float64, labels map[string]string) {
	key := seriesKey(name, labels)
	m.mu.Lock()
	observe(m.timers, key, duration)
	m.mu.Unlock()
}

// Snapshot returns a copy of everything recorded so far
func (m *MemoryMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Counters:   make(map[string]float64, len(m.counters)),
		Gauges:     make(map[string]float64, len(m.gauges)),
		Histograms: make(map[string]Distribution, len(m.histograms)),
		Timers:     make(map[string]Distribution, len(m.timers)),
	}
	for k, v := range m.counters {
		snap.Counters[k] = v
	}
	for k, v := range m.gauges {
		snap.Gauges[k] = v
	}
	for k, v := range m.histograms {
		snap.Histograms[k] = *v
	}
	for k, v := range m.timers {
		snap.Timers[k] = *v
	}
	return snap
}

// Reset clears all recorded series
func (m *MemoryMetrics) Reset() {
	m.mu.Lock()
	m.counters = make(map[string]float64)
	m.gauges = make(map[string]float64)
	m.histograms = make(map[string]*Distribution)
	m.timers = make(map[string]*Distribution)
	m.mu.Unlock()
}

func observe(series map[string]*Distribution, key string, value float64) {
	d, ok := series[key]
	if !ok {
		series[key] = &Distribution{Count: 1, Sum: value, Min: value, Max: value}
		return
	}
	d.Count++
	d.Sum += value
	if value < d.Min {
		d.Min = value
	}
	if value > d.Max {
		d.Max = value
	}
}

// seriesKey renders name{k1=v1,k2=v2} with labels in sorted key order
func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(fmt.Sprintf("%s=%s", k, labels[k]))
	}
	sb.WriteByte('}')
	return sb.String()
}

var _ interfaces.Metrics = (*NoOpMetrics)(nil)
var _ interfaces.Metrics = (*MemoryMetrics)(nil)

// NewNoOpMetrics creates a new no-op metrics implementation
func NewNoOpMetrics() interfaces.Metrics {
	return &NoOpMetrics{}
}

// NewMemoryMetrics creates an in-memory aggregating metrics implementation
func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string]*Distribution),
		timers:     make(map[string]*Distribution),
	}
}

// NewTestMetrics creates a metrics implementation for testing
func NewTestMetrics() *MemoryMetrics {
	return NewMemoryMetrics()
}
