package core

// Action represents a semantic game action, abstracted from physical key presses.
type Action int

const (
	ActionNone      Action = iota
	ActionLaneLeft         // A, Left arrow - steer into the left lane
	ActionLaneRight        // D, Right arrow - steer into the right lane
	ActionToggle           // Space - switch to the other lane
	ActionConfirm          // Enter - confirm / start / next round
	ActionBack             // B, Escape - go back to menu
	ActionRestart          // R key - new run after game over
	ActionQuit             // Q, Ctrl+C - exit
	ActionPause            // P - pause/unpause (single player only)
)

// String returns a human-readable name for the action.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "None"
	case ActionLaneLeft:
		return "LaneLeft"
	case ActionLaneRight:
		return "LaneRight"
	case ActionToggle:
		return "Toggle"
	case ActionConfirm:
		return "Confirm"
	case ActionBack:
		return "Back"
	case ActionRestart:
		return "Restart"
	case ActionQuit:
		return "Quit"
	case ActionPause:
		return "Pause"
	default:
		return "Unknown"
	}
}

// InputFrame collects the actions triggered between two simulation frames.
type InputFrame struct {
	Actions map[Action]bool
}

// NewInputFrame creates an empty input frame.
func NewInputFrame() InputFrame {
	return InputFrame{
		Actions: make(map[Action]bool),
	}
}

// Set marks an action as triggered for this frame.
func (f *InputFrame) Set(a Action) {
	if f.Actions == nil {
		f.Actions = make(map[Action]bool)
	}
	f.Actions[a] = true
}

// Has returns true if the given action was triggered this frame.
func (f InputFrame) Has(a Action) bool {
	if f.Actions == nil {
		return false
	}
	return f.Actions[a]
}

// Clear resets all actions for the next frame.
func (f *InputFrame) Clear() {
	for k := range f.Actions {
		delete(f.Actions, k)
	}
}

// SteerLane resolves the lane requested by this frame, starting from current.
// An explicit lane wins over a toggle.
func (f InputFrame) SteerLane(current Lane) Lane {
	switch {
	case f.Has(ActionLaneLeft):
		return LaneLeft
	case f.Has(ActionLaneRight):
		return LaneRight
	case f.Has(ActionToggle):
		return current.Other()
	}
	return current
}
