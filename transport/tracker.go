package transport

import (
	"sync"
	"time"
)

// ProviderStatistics is a read-only snapshot of rolling per-provider request
// statistics.
type ProviderStatistics struct {
	TotalRequests        int64
	SuccessfulRequests   int64
	FailedRequests       int64
	AverageDuration      time.Duration
	TotalTokensProcessed int64
}

type providerStats struct {
	total         int64
	successful    int64
	failed        int64
	totalDuration time.Duration
	totalTokens   int64
}

// Tracker aggregates RequestMetrics into per-provider statistics. Safe for
// concurrent use: many in-flight requests may record into the same tracker.
// Statistics accumulate until Reset is called explicitly.
type Tracker struct {
	mu    sync.Mutex
	stats map[string]*providerStats
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{stats: make(map[string]*providerStats)}
}

// Record folds one finalized RequestMetrics into the provider's rolling
// statistics.
func (t *Tracker) Record(m *RequestMetrics) {
	if m == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[m.Provider]
	if !ok {
		s = &providerStats{}
		t.stats[m.Provider] = s
	}

	s.total++
	if m.Succeeded() {
		s.successful++
	} else {
		s.failed++
	}
	s.totalDuration += m.Duration()
	s.totalTokens += int64(m.Usage.Total())
}

// GetProviderStatistics returns a snapshot for the named provider. A provider
// with no recorded requests yields zero statistics.
func (t *Tracker) GetProviderStatistics(provider string) ProviderStatistics {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[provider]
	if !ok {
		return ProviderStatistics{}
	}

	snap := ProviderStatistics{
		TotalRequests:        s.total,
		SuccessfulRequests:   s.successful,
		FailedRequests:       s.failed,
		TotalTokensProcessed: s.totalTokens,
	}
	if s.total > 0 {
		snap.AverageDuration = s.totalDuration / time.Duration(s.total)
	}
	return snap
}

// Providers lists providers with recorded statistics.
func (t *Tracker) Providers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.stats))
	for name := range t.stats {
		names = append(names, name)
	}
	return names
}

// Reset discards accumulated statistics for the named provider.
func (t *Tracker) Reset(provider string) {
	t.mu.Lock()
	delete(t.stats, provider)
	t.mu.Unlock()
}
