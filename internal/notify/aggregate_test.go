package notify

import (
	"context"
	"testing"
	"time"
)

func TestErrorAggregatorFlushesAfterInterval(t *testing.T) {
	pusher := &countingPusher{}
	notifier := New(pusher, nil)
	agg := NewErrorAggregator(notifier, 0)
	// interval<=0 disables aggregation entirely; use a tiny positive
	// interval so the first flush call below succeeds immediately since
	// `last` starts at zero value (far in the past).
	agg.interval = time.Nanosecond

	agg.Record("timeout")
	agg.Record("timeout")
	agg.Record("bad_gateway")

	agg.MaybeFlush(context.Background())

	if got := pusher.calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1 flush", got)
	}
}

func TestErrorAggregatorDisabledWhenIntervalNonPositive(t *testing.T) {
	pusher := &countingPusher{}
	notifier := New(pusher, nil)
	agg := NewErrorAggregator(notifier, 0)

	agg.Record("timeout")
	agg.MaybeFlush(context.Background())

	if got := pusher.calls.Load(); got != 0 {
		t.Fatalf("calls = %d, want 0 when aggregation disabled", got)
	}
}

func TestErrorAggregatorSkipsEmptyFlush(t *testing.T) {
	pusher := &countingPusher{}
	notifier := New(pusher, nil)
	agg := NewErrorAggregator(notifier, time.Nanosecond)

	agg.MaybeFlush(context.Background())

	if got := pusher.calls.Load(); got != 0 {
		t.Fatalf("calls = %d, want 0 for empty tally", got)
	}
}
