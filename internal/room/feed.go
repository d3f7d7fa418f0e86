package room

import (
	"context"
	"iter"
	"sync"

	"github.com/vovakirdan/laneduel/internal/docstore"
)

// Feed is a lazy, cancel-terminated sequence of decoded room states built on
// a document subscription. It keeps only the newest pending states, never
// goes back to an older version, and ends when the room is deleted, the
// subscription fails, or the context is cancelled.
type Feed struct {
	sub *docstore.Subscription
	out chan Room

	mu  sync.Mutex
	err error
}

// NewFeed decodes snapshots from sub until it ends.
func NewFeed(ctx context.Context, sub *docstore.Subscription, buffer int) *Feed {
	if buffer < 1 {
		buffer = 16
	}
	f := &Feed{
		sub: sub,
		out: make(chan Room, buffer),
	}
	go f.run(ctx)
	return f
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.out)

	var last int64
	seen := false
	for snap := range f.sub.All(ctx) {
		if !snap.Exists {
			if seen {
				f.fail(ErrRoomClosed)
			} else {
				f.fail(ErrRoomNotFound)
			}
			f.sub.Close()
			return
		}
		if seen && snap.Version <= last {
			continue
		}
		r, err := Decode(snap)
		if err != nil {
			f.fail(err)
			f.sub.Close()
			return
		}
		seen = true
		last = snap.Version
		f.push(r)
	}
	if err := f.sub.Err(); err != nil {
		f.fail(err)
	}
}

// push drops the oldest pending room when the reader lags.
func (f *Feed) push(r Room) {
	for {
		select {
		case f.out <- r:
			return
		default:
		}
		select {
		case <-f.out:
		default:
		}
	}
}

func (f *Feed) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

// C delivers room states. It is closed when the feed ends; check Err then.
func (f *Feed) C() <-chan Room {
	return f.out
}

// Err returns why the feed ended, or nil after Close or cancellation.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Next blocks for the next room state.
func (f *Feed) Next(ctx context.Context) (Room, bool) {
	select {
	case r, ok := <-f.out:
		return r, ok
	case <-ctx.Done():
		return Room{}, false
	}
}

// All yields room states until the feed ends. Breaking out closes the feed.
func (f *Feed) All(ctx context.Context) iter.Seq[Room] {
	return func(yield func(Room) bool) {
		for {
			r, ok := f.Next(ctx)
			if !ok {
				return
			}
			if !yield(r) {
				f.Close()
				return
			}
		}
	}
}

// Close stops the feed.
func (f *Feed) Close() {
	f.sub.Close()
}
