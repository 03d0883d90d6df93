package ai

import (
	"sync"
	"time"
)

// usageTracker accumulates per-adapter statistics. Thread-safe; adapters may
// serve concurrent requests.
type usageTracker struct {
	mu    sync.RWMutex
	usage ProviderUsage
}

func newUsageTracker(p Provider) *usageTracker {
	return &usageTracker{usage: ProviderUsage{Provider: p, LastUsed: time.Now()}}
}

func (t *usageTracker) record(totalTokens int, cost float64, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.usage.RequestCount++
	t.usage.TotalTokens += int64(totalTokens)
	t.usage.TotalCost += cost
	t.usage.AvgLatency = (t.usage.AvgLatency*float64(t.usage.RequestCount-1) + duration.Seconds()) / float64(t.usage.RequestCount)
	t.usage.LastUsed = time.Now()
}

func (t *usageTracker) recordError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.ErrorCount++
}

// snapshot returns a copy to prevent data races on the caller side.
func (t *usageTracker) snapshot() *ProviderUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u := t.usage
	return &u
}
