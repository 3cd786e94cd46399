package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrorAggregator batches individual error occurrences by key and
// periodically flushes a summary through a Notifier instead of pushing
// one notification per occurrence, which would flood the channel
// during a sustained failure run.
type ErrorAggregator struct {
	notifier *Notifier
	interval time.Duration

	mu     sync.Mutex
	counts map[string]int
	last   time.Time
}

// NewErrorAggregator builds an aggregator that flushes to notifier's
// CategoryCritical category at most once per interval. interval <= 0
// disables aggregation: Record becomes a no-op.
func NewErrorAggregator(notifier *Notifier, interval time.Duration) *ErrorAggregator {
	return &ErrorAggregator{
		notifier: notifier,
		interval: interval,
		counts:   make(map[string]int),
	}
}

// Record tallies one occurrence of key.
func (a *ErrorAggregator) Record(key string) {
	if a.interval <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts[key]++
}

// MaybeFlush pushes an aggregated summary if interval has elapsed
// since the last flush and at least one error was recorded, then
// resets the tally.
func (a *ErrorAggregator) MaybeFlush(ctx context.Context) {
	if a.interval <= 0 {
		return
	}
	now := time.Now()

	a.mu.Lock()
	if now.Sub(a.last) < a.interval {
		a.mu.Unlock()
		return
	}
	if len(a.counts) == 0 {
		a.last = now
		a.mu.Unlock()
		return
	}
	snapshot := a.counts
	a.counts = make(map[string]int)
	a.last = now
	a.mu.Unlock()

	a.notifier.Notify(ctx, CategoryCritical, "error summary", formatCounts(snapshot))
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s x%d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}
