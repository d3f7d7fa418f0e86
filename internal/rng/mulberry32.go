// Package rng provides the seeded sequence generator used by the lane simulation.
// Two generators built from the same seed produce bit-identical draws on every
// platform, which is what lets two multiplayer clients see the same obstacles.
package rng

import "time"

// Source is anything that yields uniform draws in [0, 1).
// The spawner depends on this instead of a concrete generator so tests can
// script the exact sequence of draws.
type Source interface {
	Float64() float64
}

// Mulberry32 is a 32-bit state generator (add, mix, avalanche).
type Mulberry32 struct {
	state uint32
	seed  uint32
	draws uint64
}

// New creates a generator seeded with seed.
func New(seed uint32) *Mulberry32 {
	return &Mulberry32{state: seed, seed: seed}
}

// Uint32 advances the state and returns the next raw 32-bit output.
// Multiplication on uint32 wraps, which matches a 32-bit integer multiply.
func (m *Mulberry32) Uint32() uint32 {
	m.state += 0x6D2B79F5
	t := m.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	m.draws++
	return t ^ (t >> 14)
}

// Float64 returns the next draw in [0, 1).
func (m *Mulberry32) Float64() float64 {
	return float64(m.Uint32()) / 4294967296.0
}

// Seed returns the seed this generator was created with.
func (m *Mulberry32) Seed() uint32 {
	return m.seed
}

// Draws returns how many values have been consumed so far.
func (m *Mulberry32) Draws() uint64 {
	return m.draws
}

// Reset rewinds the generator to its initial seed.
func (m *Mulberry32) Reset() {
	m.state = m.seed
	m.draws = 0
}

// EntropySeed derives a seed from the wall clock, masked to 28 bits so it
// stays representable in every store we write it to.
func EntropySeed() uint32 {
	return uint32(time.Now().UnixMilli() & 0xFFFFFFF) //nolint:gosec // masked to 28 bits
}

// Script replays a fixed list of draws, wrapping around when exhausted.
// It exists for fixtures that need to pin the spawner's decisions.
type Script struct {
	draws []float64
	next  int
}

// NewScript creates a scripted source.
func NewScript(draws ...float64) *Script {
	return &Script{draws: draws}
}

// Float64 returns the next scripted draw.
func (s *Script) Float64() float64 {
	if len(s.draws) == 0 {
		return 0
	}
	v := s.draws[s.next%len(s.draws)]
	s.next++
	return v
}

// Used returns how many draws have been consumed.
func (s *Script) Used() int {
	return s.next
}
