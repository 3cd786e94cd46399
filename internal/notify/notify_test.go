package notify

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingPusher struct {
	calls atomic.Int64
}

func (p *countingPusher) Push(_ context.Context, _, _ string) error {
	p.calls.Add(1)
	return nil
}

func TestNotifyRespectsRateLimit(t *testing.T) {
	pusher := &countingPusher{}
	n := New(pusher, map[Category]time.Duration{CategoryDegrade: time.Hour})

	n.Notify(context.Background(), CategoryDegrade, "t", "b")
	n.Notify(context.Background(), CategoryDegrade, "t", "b")

	if got := pusher.calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1 (second push should be rate-limited)", got)
	}
}

func TestNotifyDifferentCategoriesIndependent(t *testing.T) {
	pusher := &countingPusher{}
	n := New(pusher, map[Category]time.Duration{CategoryDegrade: time.Hour, CategoryCritical: time.Hour})

	n.Notify(context.Background(), CategoryDegrade, "t", "b")
	n.Notify(context.Background(), CategoryCritical, "t", "b")

	if got := pusher.calls.Load(); got != 2 {
		t.Fatalf("calls = %d, want 2 (independent categories)", got)
	}
}

func TestNotifyZeroIntervalNeverLimits(t *testing.T) {
	pusher := &countingPusher{}
	n := New(pusher, nil)

	for i := 0; i < 3; i++ {
		n.Notify(context.Background(), CategoryCourseSuccess, "t", "b")
	}
	if got := pusher.calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3 (no interval configured)", got)
	}
}

func TestWebhookPusherNoOpWhenURLEmpty(t *testing.T) {
	p := NewWebhookPusher("", "[x]")
	if err := p.Push(context.Background(), "t", "b"); err != nil {
		t.Fatalf("Push() error = %v, want nil for empty URL", err)
	}
}
