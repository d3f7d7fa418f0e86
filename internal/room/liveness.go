package room

import "sync"

// liveness remembers when the opponent's heartbeat last changed, on the
// local clock. lastSeen is stamped with the writer's clock, which may be
// skewed against ours, so only a change of the value counts as a sign of
// life; its magnitude is never compared with local time.
type liveness struct {
	mu   sync.Mutex
	seen map[string]sighting
}

type sighting struct {
	identity string
	lastSeen int64
	localAt  int64
}

// observe records opp as seen in room code and returns the local time of
// the last change.
func (l *liveness) observe(code string, opp Slot, now int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen == nil {
		l.seen = make(map[string]sighting)
	}
	s, ok := l.seen[code]
	if !ok || s.identity != opp.Identity || s.lastSeen != opp.LastSeen {
		s = sighting{identity: opp.Identity, lastSeen: opp.LastSeen, localAt: now}
		l.seen[code] = s
	}
	return s.localAt
}

// stale reports whether opp has shown no sign of life for afterMs of local
// time. afterMs <= 0 disables the timeout.
func (l *liveness) stale(code string, opp Slot, now, afterMs int64) bool {
	if afterMs <= 0 {
		return false
	}
	return now-l.observe(code, opp, now) > afterMs
}

func (l *liveness) forget(code string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, code)
}
