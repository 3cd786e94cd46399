package session

import (
	"fmt"
	"testing"
	"time"
)

func testFactory() Factory {
	n := 0
	return func(kind Kind, generation int64) *Session {
		n++
		return New(fmt.Sprintf("s-%d", n), generation, kind, "test-agent")
	}
}

func TestSessionIsUsableWithinTTL(t *testing.T) {
	s := New("a", 0, KindElective, "ua")
	if !s.IsUsable(time.Now(), time.Hour) {
		t.Fatalf("IsUsable() = false, want true within TTL")
	}
	if s.IsUsable(time.Now().Add(2*time.Hour), time.Hour) {
		t.Fatalf("IsUsable() = true, want false past TTL")
	}
}

func TestManagerAcquireReturnRoundTrip(t *testing.T) {
	m := NewManager(testFactory(), 2, 1, 1, time.Second)
	defer m.Close()

	s := m.Acquire(KindElective)
	if s.Kind != KindElective {
		t.Fatalf("Acquire(KindElective) returned kind %v", s.Kind)
	}
	m.Return(s)

	if got := m.Stats().Elective; got != 2 {
		t.Fatalf("Stats().Elective = %d, want 2 after round trip", got)
	}
}

func TestManagerDropsStaleGenerationOnReturn(t *testing.T) {
	m := NewManager(testFactory(), 1, 0, 1, 0)
	defer m.Close()

	s := m.Acquire(KindElective)
	m.Reset("test")
	m.Return(s) // stale generation, should be dropped silently

	if got := m.Stats().Elective; got != 1 {
		t.Fatalf("Stats().Elective = %d, want 1 (reset repopulated, stale return dropped)", got)
	}
}

func TestManagerResetIsNonBlockingWithCooldown(t *testing.T) {
	m := NewManager(testFactory(), 1, 0, 1, time.Hour)
	defer m.Close()

	if !m.Reset("first") {
		t.Fatalf("first Reset() = false, want true")
	}
	if m.Reset("second") {
		t.Fatalf("second Reset() = true within cooldown, want false")
	}
}

func TestManagerTryAcquireReturnsNilWhenEmpty(t *testing.T) {
	m := NewManager(testFactory(), 1, 0, 1, 0)
	defer m.Close()

	m.Acquire(KindElective)
	if s := m.TryAcquire(KindElective); s != nil {
		t.Fatalf("TryAcquire() = %v, want nil when pool is empty", s)
	}
}
