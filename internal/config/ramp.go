package config

import (
	"math"
	"time"
)

// RampConfig defines how the speed multiplier grows over time.
type RampConfig struct {
	StepMs int     `yaml:"step_ms"` // interval between increments
	Step   float64 `yaml:"step"`    // added per interval
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

// Next returns speed after one more ramp interval, clamped to [Min, Max].
func (r RampConfig) Next(speed float64) float64 {
	return clampF(speed+r.Step, r.Min, r.Max)
}

// At returns the speed reached after elapsed time of uninterrupted ramping.
// It depends only on elapsed, so two clients sharing a clock agree on it.
func (r RampConfig) At(elapsed time.Duration) float64 {
	if r.StepMs <= 0 || elapsed <= 0 {
		return r.Min
	}
	steps := math.Floor(float64(elapsed.Milliseconds()) / float64(r.StepMs))
	return clampF(r.Min+steps*r.Step, r.Min, r.Max)
}

// Interval returns the ramp interval as a duration.
func (r RampConfig) Interval() time.Duration {
	return Ms(r.StepMs)
}

func clampF(val, lo, hi float64) float64 {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
