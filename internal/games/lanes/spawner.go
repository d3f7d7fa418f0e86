package lanes

import (
	"math"
	"time"

	"github.com/vovakirdan/laneduel/internal/config"
	"github.com/vovakirdan/laneduel/internal/core"
	"github.com/vovakirdan/laneduel/internal/rng"
)

// Spawner decides what spawns, where, and when.
// All randomness comes from one seeded source, so two spawners with the same
// seed that see the same speeds produce the same obstacle stream.
//
// Draw order per cycle: Fire draws a lane (unless still inside the repeat
// window), then Schedule draws the next kind and a jitter.
type Spawner struct {
	cfg  config.SpawnerConfig
	geom Geometry
	src  rng.Source

	lastLane    core.Lane
	hasLast     bool
	repeatUntil time.Duration
	pending     Kind
}

// NewSpawner creates a spawner over the given source.
func NewSpawner(cfg config.SpawnerConfig, geom Geometry, src rng.Source) *Spawner {
	return &Spawner{cfg: cfg, geom: geom, src: src}
}

// LastLane returns the lane of the most recent spawn.
func (s *Spawner) LastLane() (core.Lane, bool) {
	return s.lastLane, s.hasLast
}

// Opening produces the first obstacle of a run: kind draw, then a fair lane draw.
func (s *Spawner) Opening(now time.Duration, speed float64) Obstacle {
	kind := s.drawKind()
	lane := core.LaneRight
	if s.src.Float64() < 0.5 {
		lane = core.LaneLeft
	}
	return s.spawn(kind, lane, now, speed)
}

// Schedule draws the kind of the next spawn and returns the delay until it.
// A pending blocker waits longer when the lane opposite the last spawn is
// still busy near the top.
func (s *Spawner) Schedule(arena *Arena, now time.Duration, speed float64) time.Duration {
	sp := effectiveSpeed(speed)
	base := max(s.cfg.MinBaseDelayMs, scaleMs(s.cfg.BaseDelayMs, sp))
	jitter := max(s.cfg.MinJitterMs, scaleMs(s.cfg.JitterMs, sp))

	// Inside the repeat window this never draws.
	lane := s.chooseLane(now)

	s.pending = s.drawKind()
	if s.pending == KindBlocker && arena.earlyInLane(lane.Other(), s.wallLimit()) {
		base += scaleMs(s.cfg.WallPenaltyMs, sp)
	}

	delay := base + int(math.Floor(float64(jitter)*s.src.Float64()))
	return config.Ms(delay)
}

// Fire resolves the pending spawn at time now.
// A blocker is downgraded to a pit when the other lane still holds an
// obstacle in the wall zone, so both lanes are never blocked at once.
func (s *Spawner) Fire(arena *Arena, now time.Duration, speed float64) Obstacle {
	lane := s.chooseLane(now)
	kind := s.pending
	if arena.earlyInLane(lane.Other(), s.wallLimit()) {
		kind = KindPit
	}
	return s.spawn(kind, lane, now, speed)
}

// Duration returns how long an obstacle of the given kind takes to cross.
func (s *Spawner) Duration(kind Kind, speed float64) time.Duration {
	sp := effectiveSpeed(speed)
	if kind == KindPit {
		return config.Ms(max(s.cfg.MinPitTraverseMs, roundMs(s.cfg.PitTraverseMs, sp)))
	}
	return config.Ms(max(s.cfg.MinBlockerTraverseMs, roundMs(s.cfg.BlockerTraverseMs, sp)))
}

func (s *Spawner) spawn(kind Kind, lane core.Lane, now time.Duration, speed float64) Obstacle {
	w, h := s.geom.Size(kind)
	startY := s.geom.StartY(h)
	endY := s.geom.EndY()
	dur := s.Duration(kind, speed)
	ms := float64(dur) / float64(time.Millisecond)

	s.lastLane = lane
	s.hasLast = true
	s.repeatUntil = now + config.Ms(scaleMs(s.cfg.LaneRepeatWindowMs, effectiveSpeed(speed)))

	return Obstacle{
		Kind:      kind,
		Lane:      lane,
		W:         w,
		H:         h,
		Y:         startY,
		StartY:    startY,
		EndY:      endY,
		Velocity:  (endY - startY) / ms,
		Duration:  dur,
		SpawnedAt: now,
	}
}

// chooseLane keeps the last lane inside the repeat window, otherwise draws.
func (s *Spawner) chooseLane(now time.Duration) core.Lane {
	if s.hasLast && now < s.repeatUntil {
		return s.lastLane
	}
	r := s.src.Float64()
	if !s.hasLast {
		if r < 0.5 {
			return core.LaneLeft
		}
		return core.LaneRight
	}
	if r < s.cfg.LaneBias {
		return s.lastLane
	}
	return s.lastLane.Other()
}

func (s *Spawner) drawKind() Kind {
	if s.src.Float64() < s.cfg.BlockerChance {
		return KindBlocker
	}
	return KindPit
}

func (s *Spawner) wallLimit() float64 {
	return s.geom.TrackH * s.cfg.WallZone
}

func effectiveSpeed(speed float64) float64 {
	return math.Max(1, speed)
}

// scaleMs divides a millisecond constant by speed, flooring.
func scaleMs(ms int, speed float64) int {
	return int(math.Floor(float64(ms) / speed))
}

func roundMs(ms int, speed float64) int {
	return int(math.Round(float64(ms) / speed))
}
