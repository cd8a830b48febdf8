package prediction

import (
	"context"
	"sort"
	"sync"
	"time"

	"checkengine/internal/domain"
)

// Sample is one recorded metric value.
type Sample struct {
	At    time.Time
	Value float64
}

// HistorySource answers historic metric lookups.
// Params: implemented by metric archives.
// Returns: samples within [from, until).
type HistorySource interface {
	Query(ctx context.Context, host domain.HostName, service domain.ServiceName, metric string, from, until time.Time) ([]Sample, error)
}

type seriesKey struct {
	host    domain.HostName
	service domain.ServiceName
	metric  string
}

// MemoryHistory keeps recent metric samples in process memory.
// Params: retention window and per-series sample cap.
// Returns: history source fed by result submission.
type MemoryHistory struct {
	mu         sync.RWMutex
	retention  time.Duration
	maxSamples int
	series     map[seriesKey][]Sample
}

// NewMemoryHistory creates empty in-memory history.
// Params: retention window and max samples per series (<=0 disables the cap).
// Returns: history instance.
func NewMemoryHistory(retention time.Duration, maxSamples int) *MemoryHistory {
	return &MemoryHistory{
		retention:  retention,
		maxSamples: maxSamples,
		series:     make(map[seriesKey][]Sample),
	}
}

// Record appends one metric sample and evicts samples past retention.
// Params: series identity, timestamp and value.
// Returns: none.
func (h *MemoryHistory) Record(host domain.HostName, service domain.ServiceName, metric string, at time.Time, value float64) {
	key := seriesKey{host: host, service: service, metric: metric}

	h.mu.Lock()
	defer h.mu.Unlock()

	samples := h.series[key]
	idx := sort.Search(len(samples), func(i int) bool { return samples[i].At.After(at) })
	samples = append(samples, Sample{})
	copy(samples[idx+1:], samples[idx:])
	samples[idx] = Sample{At: at, Value: value}

	if h.retention > 0 {
		cutoff := samples[len(samples)-1].At.Add(-h.retention)
		drop := sort.Search(len(samples), func(i int) bool { return !samples[i].At.Before(cutoff) })
		samples = samples[drop:]
	}
	if h.maxSamples > 0 && len(samples) > h.maxSamples {
		samples = samples[len(samples)-h.maxSamples:]
	}
	h.series[key] = samples
}

// Query returns samples of one series in [from, until).
// Params: series identity and time range.
// Returns: ordered sample copy.
func (h *MemoryHistory) Query(_ context.Context, host domain.HostName, service domain.ServiceName, metric string, from, until time.Time) ([]Sample, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	samples := h.series[seriesKey{host: host, service: service, metric: metric}]
	start := sort.Search(len(samples), func(i int) bool { return !samples[i].At.Before(from) })
	end := sort.Search(len(samples), func(i int) bool { return !samples[i].At.Before(until) })
	if start >= end {
		return nil, nil
	}
	out := make([]Sample, end-start)
	copy(out, samples[start:end])
	return out, nil
}
