// Package multiplayer drives head-to-head matches: it bridges a room
// document, observed through a room.Feed, and the local shared-course run.
package multiplayer

import (
	"context"
	"time"

	"github.com/vovakirdan/laneduel/internal/room"
)

// SessionID identifies one player's UI session (terminal or SSH connection).
type SessionID string

// MatchResult is the outcome of a finished match as seen by one client.
type MatchResult struct {
	Code       string
	Side       room.Side // local side
	P1Identity string
	P2Identity string
	Score1     int
	Score2     int
	Winner     room.Side
	Reason     room.Reason
	Rounds     int
	Duration   time.Duration
	EndedAt    time.Time
}

// WinnerIdentity returns the identity of the winning side, if any.
func (r MatchResult) WinnerIdentity() string {
	switch r.Winner {
	case room.SideP1:
		return r.P1Identity
	case room.SideP2:
		return r.P2Identity
	default:
		return ""
	}
}

// Won reports whether the local side won.
func (r MatchResult) Won() bool {
	return r.Winner != room.SideNone && r.Winner == r.Side
}

// MatchResultSaver persists finished matches.
// It lets the driver save results without depending on the storage package.
type MatchResultSaver interface {
	SaveMatchResult(ctx context.Context, result MatchResult) error
}

func resultOf(r room.Room, side room.Side, started, now time.Time) MatchResult {
	return MatchResult{
		Code:       r.Code,
		Side:       side,
		P1Identity: r.Players.P1.Identity,
		P2Identity: r.Players.P2.Identity,
		Score1:     r.Scores.P1,
		Score2:     r.Scores.P2,
		Winner:     r.Winner,
		Reason:     r.Reason,
		Rounds:     r.Round,
		Duration:   now.Sub(started),
		EndedAt:    now,
	}
}
