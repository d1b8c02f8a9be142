package breaker

import (
	"errors"
	"testing"
	"time"
)

// fakeClock lets tests move time forward explicitly.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	b := New(Config{
		FailureThreshold: threshold,
		Cooldown:         cooldown,
		Now:              clock.Now,
	})
	return b, clock
}

func TestBreaker_TripsAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if err := b.Allow(); err != nil {
			t.Fatalf("breaker opened after %d failures, threshold is 3", i+1)
		}
	}

	b.RecordFailure()
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen after threshold, got %v", err)
	}
	if b.State() != StateOpen {
		t.Errorf("state: got %v, want open", b.State())
	}
}

func TestBreaker_CooldownAdmitsProbe(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)

	b.RecordFailure()
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatal("breaker should be open")
	}

	clock.Advance(59 * time.Second)
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatal("breaker reopened before cooldown elapsed")
	}

	clock.Advance(2 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected after cooldown: %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Errorf("state: got %v, want half-open", b.State())
	}
}

func TestBreaker_ProbeOutcome(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)

	// Failed probe reopens immediately.
	b.RecordFailure()
	clock.Advance(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	b.RecordFailure()
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatal("failed probe did not reopen breaker")
	}

	// Successful probe closes.
	clock.Advance(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Errorf("state after successful probe: got %v, want closed", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Errorf("closed breaker rejected call: %v", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if err := b.Allow(); err != nil {
		t.Fatal("non-consecutive failures tripped the breaker")
	}
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(1, time.Hour)

	b.RecordFailure()
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatal("breaker should be open")
	}

	b.Reset()
	if err := b.Allow(); err != nil {
		t.Fatalf("reset breaker rejected call: %v", err)
	}
	stats := b.Stats()
	if stats.Failures != 0 || stats.State != StateClosed {
		t.Errorf("stats after reset: %+v", stats)
	}
}

func TestBreaker_StatsCounters(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)

	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure() // trip 1

	stats := b.Stats()
	if stats.Trips != 1 {
		t.Errorf("trips: got %d, want 1", stats.Trips)
	}
	if stats.Successes != 1 {
		t.Errorf("successes: got %d, want 1", stats.Successes)
	}
}
