package core

import "testing"

func TestInputFrameSteerLane(t *testing.T) {
	tests := []struct {
		name     string
		actions  []Action
		current  Lane
		expected Lane
	}{
		{"no input keeps lane", nil, LaneRight, LaneRight},
		{"left", []Action{ActionLaneLeft}, LaneRight, LaneLeft},
		{"right", []Action{ActionLaneRight}, LaneLeft, LaneRight},
		{"toggle", []Action{ActionToggle}, LaneLeft, LaneRight},
		{"explicit beats toggle", []Action{ActionToggle, ActionLaneLeft}, LaneLeft, LaneLeft},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := NewInputFrame()
			for _, a := range tc.actions {
				f.Set(a)
			}
			if got := f.SteerLane(tc.current); got != tc.expected {
				t.Errorf("SteerLane(%v) = %v, expected %v", tc.current, got, tc.expected)
			}
		})
	}
}

func TestInputFrameClear(t *testing.T) {
	f := NewInputFrame()
	f.Set(ActionPause)
	if !f.Has(ActionPause) {
		t.Fatal("Has(ActionPause) should be true after Set")
	}
	f.Clear()
	if f.Has(ActionPause) {
		t.Error("Has(ActionPause) should be false after Clear")
	}

	var zero InputFrame
	if zero.Has(ActionQuit) {
		t.Error("zero frame should have no actions")
	}
}
