package lanes

import "time"

// TimerID identifies a scheduled callback.
type TimerID uint64

type timer struct {
	id    TimerID
	due   time.Duration
	every time.Duration // zero for one-shot timers
	fn    func()
}

// Scheduler is a virtual clock with one-shot and repeating timers.
// Timers fire at their exact simulated instants regardless of how coarse the
// Advance steps are. Ties fire in registration order.
type Scheduler struct {
	now    time.Duration
	timers []*timer
	nextID TimerID
}

// NewScheduler creates a scheduler at time zero.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Now returns the current simulated time.
func (s *Scheduler) Now() time.Duration {
	return s.now
}

// After runs fn once, d after now.
func (s *Scheduler) After(d time.Duration, fn func()) TimerID {
	return s.add(s.now+d, 0, fn)
}

// Every runs fn every d, first at now+d.
func (s *Scheduler) Every(d time.Duration, fn func()) TimerID {
	if d <= 0 {
		panic("lanes: non-positive timer interval")
	}
	return s.add(s.now+d, d, fn)
}

func (s *Scheduler) add(due, every time.Duration, fn func()) TimerID {
	s.nextID++
	s.timers = append(s.timers, &timer{id: s.nextID, due: due, every: every, fn: fn})
	return s.nextID
}

// Cancel stops a timer. It reports whether the timer was still pending.
func (s *Scheduler) Cancel(id TimerID) bool {
	for i, t := range s.timers {
		if t.id == id {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			return true
		}
	}
	return false
}

// CancelAll drops every pending timer.
func (s *Scheduler) CancelAll() {
	s.timers = s.timers[:0]
}

// Pending returns the number of live timers.
func (s *Scheduler) Pending() int {
	return len(s.timers)
}

// AdvanceTo moves the clock to target, firing due timers in order.
// onTime runs before each firing and once more at target so the caller can
// bring time-dependent state up to date.
func (s *Scheduler) AdvanceTo(target time.Duration, onTime func(now time.Duration)) {
	for {
		t := s.earliest()
		if t == nil || t.due > target {
			break
		}
		s.now = t.due
		if onTime != nil {
			onTime(s.now)
		}
		if t.every > 0 {
			t.due += t.every
		} else {
			s.Cancel(t.id)
		}
		t.fn()
	}
	if target > s.now {
		s.now = target
	}
	if onTime != nil {
		onTime(s.now)
	}
}

// Advance moves the clock forward by d.
func (s *Scheduler) Advance(d time.Duration, onTime func(now time.Duration)) {
	s.AdvanceTo(s.now+d, onTime)
}

func (s *Scheduler) earliest() *timer {
	var best *timer
	for _, t := range s.timers {
		if best == nil || t.due < best.due || (t.due == best.due && t.id < best.id) {
			best = t
		}
	}
	return best
}
