package lanes

import (
	"testing"
	"time"
)

func TestSchedulerFiresAtExactInstants(t *testing.T) {
	s := NewScheduler()
	var fired []time.Duration
	s.Every(50*time.Millisecond, func() { fired = append(fired, s.Now()) })

	// One coarse step covers several intervals.
	s.Advance(175*time.Millisecond, nil)

	expected := []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 150 * time.Millisecond}
	if len(fired) != len(expected) {
		t.Fatalf("fired %d times, expected %d", len(fired), len(expected))
	}
	for i := range expected {
		if fired[i] != expected[i] {
			t.Errorf("firing %d at %v, expected %v", i, fired[i], expected[i])
		}
	}
	if s.Now() != 175*time.Millisecond {
		t.Errorf("Now() = %v, expected 175ms", s.Now())
	}
}

func TestSchedulerTiesFireInRegistrationOrder(t *testing.T) {
	s := NewScheduler()
	var order []string
	s.After(100*time.Millisecond, func() { order = append(order, "a") })
	s.Every(100*time.Millisecond, func() { order = append(order, "b") })
	s.After(100*time.Millisecond, func() { order = append(order, "c") })

	s.Advance(100*time.Millisecond, nil)

	if got := len(order); got != 3 {
		t.Fatalf("fired %d callbacks, expected 3", got)
	}
	if order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("order = %v, expected [a b c]", order)
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()
	count := 0
	id := s.Every(10*time.Millisecond, func() { count++ })

	s.Advance(35*time.Millisecond, nil)
	if !s.Cancel(id) {
		t.Error("Cancel() = false, expected true for live timer")
	}
	if s.Cancel(id) {
		t.Error("Cancel() = true, expected false for cancelled timer")
	}
	s.Advance(100*time.Millisecond, nil)

	if count != 3 {
		t.Errorf("count = %d, expected 3", count)
	}
}

func TestSchedulerCallbackCanCancelAll(t *testing.T) {
	s := NewScheduler()
	count := 0
	s.Every(10*time.Millisecond, func() { count++ })
	s.After(25*time.Millisecond, func() { s.CancelAll() })

	s.Advance(time.Second, nil)

	if count != 2 {
		t.Errorf("count = %d, expected 2", count)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, expected 0", s.Pending())
	}
}

func TestSchedulerOnTimeSeesEachInstant(t *testing.T) {
	s := NewScheduler()
	s.After(30*time.Millisecond, func() {})
	s.After(70*time.Millisecond, func() {})

	var seen []time.Duration
	s.Advance(100*time.Millisecond, func(now time.Duration) { seen = append(seen, now) })

	expected := []time.Duration{30 * time.Millisecond, 70 * time.Millisecond, 100 * time.Millisecond}
	if len(seen) != len(expected) {
		t.Fatalf("onTime called %d times, expected %d", len(seen), len(expected))
	}
	for i := range expected {
		if seen[i] != expected[i] {
			t.Errorf("onTime %d at %v, expected %v", i, seen[i], expected[i])
		}
	}
}

func TestSchedulerChainedAfter(t *testing.T) {
	s := NewScheduler()
	var fired []time.Duration
	var next func()
	next = func() {
		fired = append(fired, s.Now())
		s.After(40*time.Millisecond, next)
	}
	s.After(40*time.Millisecond, next)

	s.Advance(130*time.Millisecond, nil)

	if len(fired) != 3 || fired[2] != 120*time.Millisecond {
		t.Errorf("fired = %v, expected [40ms 80ms 120ms]", fired)
	}
}
