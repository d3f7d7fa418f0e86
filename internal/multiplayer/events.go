package multiplayer

import (
	"github.com/vovakirdan/laneduel/internal/core"
	"github.com/vovakirdan/laneduel/internal/games/lanes"
	"github.com/vovakirdan/laneduel/internal/room"
)

// Event is sent from a match to its UI session.
type Event interface {
	matchEvent()
}

// RoomEvent carries the latest room state. It is sent for every observed
// update, so the lobby screen can show who joined.
type RoomEvent struct {
	Room room.Room
	Side room.Side
}

func (RoomEvent) matchEvent() {}

// RoundStartedEvent is sent when a new round's course begins locally.
type RoundStartedEvent struct {
	Round int
	Seed  uint32
}

func (RoundStartedEvent) matchEvent() {}

// FrameEvent is sent after every simulated frame of a round.
type FrameEvent struct {
	State    lanes.State
	Geometry lanes.Geometry
	Ghost    *core.Lane // opponent's published lane; display only
	Round    int
	BestOf   int
	Scores   room.Scores
	Side     room.Side
	Opponent room.Slot
}

func (FrameEvent) matchEvent() {}

// RoundEndedEvent is sent when the room enters round_end.
type RoundEndedEvent struct {
	Round  int
	Winner room.Side
	Scores room.Scores
	Side   room.Side
	// Advancing is true when this client will start the next round (or
	// close the match) after the round delay.
	Advancing bool
}

func (RoundEndedEvent) matchEvent() {}

// MatchEndedEvent is the last event of a match.
type MatchEndedEvent struct {
	Result MatchResult
}

func (MatchEndedEvent) matchEvent() {}

// ErrorEvent reports a failed room operation the player should see,
// e.g. starting without an opponent.
type ErrorEvent struct {
	Err error
}

func (ErrorEvent) matchEvent() {}

// Msg is sent from the UI to a match.
type Msg interface {
	matchMsg()
}

// InputMsg carries one frame of player input. Steering actions move the car;
// Confirm starts the match in the lobby (host) or the next round.
type InputMsg struct {
	Input core.InputFrame
}

func (InputMsg) matchMsg() {}

// StartMsg asks the host to start the match.
type StartMsg struct{}

func (StartMsg) matchMsg() {}

// NextRoundMsg skips the round delay.
type NextRoundMsg struct{}

func (NextRoundMsg) matchMsg() {}

// LeaveMsg gives up the room and ends the match driver.
type LeaveMsg struct{}

func (LeaveMsg) matchMsg() {}
