package captcha

import (
	"testing"
	"time"
)

func TestDegradeTrackerTripsOnConsecutiveFailures(t *testing.T) {
	d := NewDegradeTracker(time.Minute, 10*time.Second, 2)
	d.RecordFailure()
	if d.IsDegraded() {
		t.Fatalf("IsDegraded() = true after one failure, want false (threshold=2)")
	}
	d.RecordFailure()
	if !d.IsDegraded() {
		t.Fatalf("IsDegraded() = false after two consecutive failures, want true")
	}
}

func TestDegradeTrackerSuccessResetsStreak(t *testing.T) {
	d := NewDegradeTracker(time.Minute, 10*time.Second, 2)
	d.RecordFailure()
	d.RecordSuccess()
	d.RecordFailure()
	if d.IsDegraded() {
		t.Fatalf("IsDegraded() = true, want false: the intervening success should have reset the streak")
	}
}

func TestDegradeTrackerFiresOnTripOnce(t *testing.T) {
	d := NewDegradeTracker(time.Minute, 10*time.Second, 2)
	fired := 0
	d.SetOnTrip(func() { fired++ })
	d.RecordFailure()
	d.RecordFailure()
	if fired != 1 {
		t.Fatalf("onTrip fired %d times, want exactly 1", fired)
	}
	d.RecordFailure()
	if fired != 1 {
		t.Fatalf("onTrip fired again (%d) while already degraded, want it to stay at 1", fired)
	}
}

func TestDegradeTrackerRecoversAfterCooldown(t *testing.T) {
	d := NewDegradeTracker(time.Minute, time.Millisecond, 2)
	d.RecordFailure()
	d.RecordFailure()
	if !d.IsDegraded() {
		t.Fatalf("IsDegraded() = false, want true immediately after tripping")
	}
	time.Sleep(5 * time.Millisecond)
	d.RecordSuccess()
	if d.IsDegraded() {
		t.Fatalf("IsDegraded() = true, want false: cooldown has elapsed")
	}
}
