// Package lanes implements the lane-dodging simulation: deterministic obstacle
// spawning, collision detection, and the run state machine with its timers.
// Everything runs on a virtual clock so a run is reproducible from its seed.
package lanes

import (
	"fmt"
	"time"

	"github.com/vovakirdan/laneduel/internal/core"
)

// Kind is the obstacle type.
type Kind int

const (
	KindBlocker Kind = iota // ends the run on contact
	KindPit                 // costs one life on contact
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindBlocker:
		return "blocker"
	case KindPit:
		return "pit"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Obstacle is one hazard travelling down a lane.
// Its y position is a pure function of the simulated time since it spawned.
type Obstacle struct {
	ID        uint64
	Kind      Kind
	Lane      core.Lane
	W, H      float64
	Y         float64
	StartY    float64
	EndY      float64
	Velocity  float64 // track pixels per millisecond
	Duration  time.Duration
	SpawnedAt time.Duration
	Consumed  bool // hit as a pit; no longer drawn or collidable
}

// Top returns the y coordinate of the obstacle's top edge.
func (o Obstacle) Top() float64 {
	return o.Y
}

// positionAt returns where the obstacle is at simulated time now.
func (o Obstacle) positionAt(now time.Duration) float64 {
	elapsedMs := float64(now-o.SpawnedAt) / float64(time.Millisecond)
	return o.StartY + o.Velocity*elapsedMs
}

// Arena is the run's indexed obstacle list. Insertion order is spawn order.
type Arena struct {
	items  []Obstacle
	nextID uint64
}

// Add stores an obstacle and returns its assigned ID.
func (a *Arena) Add(o Obstacle) uint64 {
	a.nextID++
	o.ID = a.nextID
	a.items = append(a.items, o)
	return o.ID
}

// Len returns the number of obstacles in the arena.
func (a *Arena) Len() int {
	return len(a.items)
}

// At returns a pointer to the i-th obstacle in spawn order.
func (a *Arena) At(i int) *Obstacle {
	return &a.items[i]
}

// Get returns the obstacle with the given ID.
func (a *Arena) Get(id uint64) (*Obstacle, bool) {
	for i := range a.items {
		if a.items[i].ID == id {
			return &a.items[i], true
		}
	}
	return nil, false
}

// Sweep removes every obstacle for which drop returns true.
func (a *Arena) Sweep(drop func(*Obstacle) bool) int {
	kept := a.items[:0]
	removed := 0
	for i := range a.items {
		if drop(&a.items[i]) {
			removed++
			continue
		}
		kept = append(kept, a.items[i])
	}
	a.items = kept
	return removed
}

// Reset empties the arena. IDs keep increasing.
func (a *Arena) Reset() {
	a.items = a.items[:0]
}

// Snapshot copies the live (not consumed) obstacles.
func (a *Arena) Snapshot() []Obstacle {
	out := make([]Obstacle, 0, len(a.items))
	for _, o := range a.items {
		if !o.Consumed {
			out = append(out, o)
		}
	}
	return out
}

// earlyInLane reports whether lane holds an obstacle whose top edge is still
// above limit. Obstacles that have not scrolled into view yet count too.
// Consumed pits still count, so a hit on one client never changes what the
// other duel client spawns.
func (a *Arena) earlyInLane(lane core.Lane, limit float64) bool {
	for i := range a.items {
		if a.items[i].Lane == lane && a.items[i].Top() < limit {
			return true
		}
	}
	return false
}
