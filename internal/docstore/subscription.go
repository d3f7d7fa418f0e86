package docstore

import (
	"context"
	"iter"
	"sync"
)

// Subscription is a lazy, cancel-terminated sequence of document snapshots.
// Drivers push with Publish; consumers read C or range over All.
// Publish never blocks: when the buffer is full the oldest pending snapshot
// is dropped, so a slow reader always catches up to the latest state.
type Subscription struct {
	key       Key
	snaps     chan Snapshot
	done      chan struct{}
	closeOnce sync.Once
	stop      func()

	mu  sync.Mutex
	err error
}

// NewSubscription creates a subscription for key. stop is called once on
// Close so the driver can release its watcher.
func NewSubscription(key Key, buffer int, stop func()) *Subscription {
	if buffer < 1 {
		buffer = 16
	}
	return &Subscription{
		key:   key,
		snaps: make(chan Snapshot, buffer),
		done:  make(chan struct{}),
		stop:  stop,
	}
}

// Key returns the watched document.
func (s *Subscription) Key() Key {
	return s.key
}

// Publish delivers a snapshot, dropping the oldest pending one if needed.
func (s *Subscription) Publish(snap Snapshot) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.snaps <- snap:
	default:
		select {
		case <-s.snaps:
		default:
		}
		select {
		case s.snaps <- snap:
		default:
		}
	}
}

// C returns the snapshot channel. It is never closed; select on Done too.
func (s *Subscription) C() <-chan Snapshot {
	return s.snaps
}

// Done closes when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns why the subscription ended, or nil after a plain Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Fail ends the subscription with an error.
func (s *Subscription) Fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.Close()
}

// Close ends the subscription. Safe to call multiple times.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.stop != nil {
			s.stop()
		}
	})
}

// CloseWith ties the subscription's lifetime to ctx.
func (s *Subscription) CloseWith(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
}

// Next blocks until a snapshot arrives, the subscription ends, or ctx is done.
func (s *Subscription) Next(ctx context.Context) (Snapshot, bool) {
	select {
	case snap := <-s.snaps:
		return snap, true
	case <-s.done:
		return Snapshot{}, false
	case <-ctx.Done():
		return Snapshot{}, false
	}
}

// All yields snapshots until the subscription ends or ctx is done.
// Breaking out of the loop closes the subscription.
func (s *Subscription) All(ctx context.Context) iter.Seq[Snapshot] {
	return func(yield func(Snapshot) bool) {
		for {
			snap, ok := s.Next(ctx)
			if !ok {
				return
			}
			if !yield(snap) {
				s.Close()
				return
			}
		}
	}
}
