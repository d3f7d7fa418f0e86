package docstore

import "sync"

// Hub fans document changes out to subscriptions. Drivers that learn about
// their own writes notify the hub after each commit.
type Hub struct {
	mu     sync.Mutex
	subs   map[Key]map[*Subscription]struct{}
	buffer int
}

// NewHub creates a hub whose subscriptions buffer up to buffer snapshots.
func NewHub(buffer int) *Hub {
	return &Hub{
		subs:   make(map[Key]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Watch registers a new subscription for key and primes it with initial.
func (h *Hub) Watch(key Key, initial Snapshot) *Subscription {
	var sub *Subscription
	sub = NewSubscription(key, h.buffer, func() { h.drop(key, sub) })

	h.mu.Lock()
	set, ok := h.subs[key]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[key] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	sub.Publish(initial)
	return sub
}

// Notify publishes a snapshot to every subscription on its key.
func (h *Hub) Notify(snap Snapshot) {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs[snap.Key]))
	for s := range h.subs[snap.Key] {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Publish(snap)
	}
}

// Count returns the number of live subscriptions on key.
func (h *Hub) Count(key Key) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[key])
}

// CloseAll ends every subscription with err.
func (h *Hub) CloseAll(err error) {
	h.mu.Lock()
	var all []*Subscription
	for _, set := range h.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.Fail(err)
	}
}

func (h *Hub) drop(key Key, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[key]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, key)
		}
	}
}
