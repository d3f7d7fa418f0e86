// Package room implements the head-to-head match protocol on top of a
// shared document store. The room document is the only channel between the
// two clients: each one observes it through a subscription and changes it
// through merges or single-document transactions.
//
// Ownership:
//
//   - players.<side> is written only by the client playing that side, as a
//     plain merge (lane, lives, alive, lastSeen) or, for join and leave,
//     inside a transaction.
//   - status, round, seed, scores, winner and reason are written only inside
//     transactions, so every shared transition is a compare-and-swap on the
//     whole document.
//
// A transaction rewrites the whole document, but it writes back exactly
// what it read for the other side's slot, and a concurrent merge from that
// side bumps the version and forces a retry.
package room

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vovakirdan/laneduel/internal/core"
	"github.com/vovakirdan/laneduel/internal/docstore"
)

// ProtocolVersion is stamped into every room. Clients refuse rooms written
// by a different protocol.
const ProtocolVersion = 1

// Collection holds room documents keyed by join code.
const Collection = "rooms"

// CodeAlphabet avoids characters that are easy to confuse (0/O, 1/I).
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrNotJoinable        = errors.New("room not joinable")
	ErrRoomFull           = errors.New("room is full")
	ErrAlreadyInRoom      = errors.New("you created this room")
	ErrProtocolMismatch   = errors.New("room was created by an incompatible version")
	ErrCourseMismatch     = errors.New("room uses different course settings")
	ErrNotHost            = errors.New("only the host can start the match")
	ErrNotRoundWinner     = errors.New("only the round winner can start the next round")
	ErrWaitingForOpponent = errors.New("waiting for an opponent to join")
	ErrInvalidTransition  = errors.New("room: transition not allowed")
	ErrOpponentActive     = errors.New("opponent is still active")
	ErrNotMember          = errors.New("not a member of this room")
	ErrRoomClosed         = errors.New("room closed")
)

// Status is the match state stored in the room.
type Status string

const (
	StatusLobby    Status = "lobby"
	StatusRunning  Status = "running"
	StatusRoundEnd Status = "round_end"
	StatusMatchEnd Status = "match_end"
)

// Side names a player slot.
type Side string

const (
	SideNone Side = ""
	SideP1   Side = "p1"
	SideP2   Side = "p2"
)

// Other returns the opposing side.
func (s Side) Other() Side {
	switch s {
	case SideP1:
		return SideP2
	case SideP2:
		return SideP1
	default:
		return SideNone
	}
}

// Valid reports whether s is p1 or p2.
func (s Side) Valid() bool {
	return s == SideP1 || s == SideP2
}

// MarshalJSON writes the empty side as null.
func (s Side) MarshalJSON() ([]byte, error) {
	if s == SideNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

// UnmarshalJSON reads null as the empty side.
func (s *Side) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = SideNone
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch Side(v) {
	case SideNone, SideP1, SideP2:
		*s = Side(v)
		return nil
	}
	return fmt.Errorf("room: unknown side %q", v)
}

// Reason explains how a match ended.
type Reason string

const (
	ReasonNone    Reason = ""
	ReasonRounds  Reason = "rounds"
	ReasonForfeit Reason = "forfeit"
	ReasonLeft    Reason = "left"
)

// Slot is one player's subtree. Only its owner writes it.
type Slot struct {
	Identity    string    `json:"identity"`
	DisplayName string    `json:"displayName"`
	Lane        core.Lane `json:"lane"`
	Lives       int       `json:"lives"`
	Alive       bool      `json:"alive"`
	LastSeen    int64     `json:"lastSeen"` // unix ms
	Left        bool      `json:"left"`
}

// Empty reports whether nobody holds the slot.
func (s Slot) Empty() bool {
	return s.Identity == ""
}

// Players holds both slots.
type Players struct {
	P1 Slot `json:"p1"`
	P2 Slot `json:"p2"`
}

// Get returns the slot for side.
func (p Players) Get(side Side) Slot {
	if side == SideP2 {
		return p.P2
	}
	return p.P1
}

func (p *Players) set(side Side, s Slot) {
	if side == SideP2 {
		p.P2 = s
		return
	}
	p.P1 = s
}

// Scores counts round wins.
type Scores struct {
	P1 int `json:"p1"`
	P2 int `json:"p2"`
}

// Get returns side's round wins.
func (s Scores) Get(side Side) int {
	if side == SideP2 {
		return s.P2
	}
	return s.P1
}

func (s *Scores) add(side Side) {
	if side == SideP2 {
		s.P2++
		return
	}
	s.P1++
}

// Room is the decoded room document.
type Room struct {
	Code    string `json:"-"`
	Version int64  `json:"-"`

	Protocol  int     `json:"protocol"`
	Status    Status  `json:"status"`
	Round     int     `json:"round"`
	BestOf    int     `json:"bestOf"`
	Course    string  `json:"course,omitempty"` // fingerprint of the host's course settings
	Seed      uint32  `json:"seed"`
	Players   Players `json:"players"`
	Scores    Scores  `json:"scores"`
	Winner    Side    `json:"winner"`
	Reason    Reason  `json:"reason"`
	CreatedAt int64   `json:"createdAt"`
	UpdatedAt int64   `json:"updatedAt"`
}

// Key returns the document key of the room.
func (r Room) Key() docstore.Key {
	return Key(r.Code)
}

// Key returns the document key for a join code.
func Key(code string) docstore.Key {
	return docstore.Key{Collection: Collection, ID: code}
}

// SideOf returns the side held by identity, or SideNone.
func (r Room) SideOf(identity string) Side {
	switch {
	case identity == "":
		return SideNone
	case r.Players.P1.Identity == identity:
		return SideP1
	case r.Players.P2.Identity == identity:
		return SideP2
	default:
		return SideNone
	}
}

// Majority is the number of round wins that decides the match.
func (r Room) Majority() int {
	return r.BestOf/2 + 1
}

// Leader returns the side that has reached the majority, or SideNone.
func (r Room) Leader() Side {
	m := r.Majority()
	switch {
	case r.Scores.P1 >= m:
		return SideP1
	case r.Scores.P2 >= m:
		return SideP2
	default:
		return SideNone
	}
}

// Decode reads a room from a document snapshot.
func Decode(snap docstore.Snapshot) (Room, error) {
	if !snap.Exists {
		return Room{}, ErrRoomNotFound
	}
	var r Room
	if err := snap.Decode(&r); err != nil {
		return Room{}, fmt.Errorf("room: decode %s: %w", snap.Key.ID, err)
	}
	r.Code = snap.Key.ID
	r.Version = snap.Version
	if r.Protocol != ProtocolVersion {
		return r, fmt.Errorf("%w (protocol %d, want %d)", ErrProtocolMismatch, r.Protocol, ProtocolVersion)
	}
	return r, nil
}

// Encode converts the room to a document body.
func (r Room) Encode() (docstore.Doc, error) {
	return docstore.Encode(r)
}
