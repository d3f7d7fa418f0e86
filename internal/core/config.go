package core

// RuntimeConfig contains what the platform passes to a run at start.
type RuntimeConfig struct {
	ScreenW  int    // Screen width in characters
	ScreenH  int    // Screen height in characters
	TickRate int    // Frames per second driving the simulation (default 60)
	Seed     uint32 // Generator seed; 0 means derive one from the clock
}

// DefaultConfig returns a RuntimeConfig with sensible defaults.
func DefaultConfig() RuntimeConfig {
	return RuntimeConfig{
		ScreenW:  80,
		ScreenH:  24,
		TickRate: 60,
		Seed:     0,
	}
}

// GameState represents the current state of a game.
// Returned by Game.State() to communicate status to the platform.
type GameState struct {
	Score    int  // Current score
	Lives    int  // Remaining lives
	GameOver bool // Whether the run has ended
	Paused   bool // Whether the run is paused
	Started  bool // Whether the run has left idle
}

// StepResult is returned by Game.Step() after each simulation tick.
type StepResult struct {
	State GameState
}
