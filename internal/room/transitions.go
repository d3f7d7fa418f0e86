package room

import "fmt"

// The functions in this file are pure: they take a room by value and return
// the next room. A false "changed" result means the transition is a no-op
// and the caller must not write anything.

// New returns a fresh lobby with host in p1 and an empty p2.
func New(code string, host Slot, bestOf int, now int64) Room {
	host.Alive = true
	host.LastSeen = now
	return Room{
		Code:      code,
		Protocol:  ProtocolVersion,
		Status:    StatusLobby,
		Round:     1,
		BestOf:    bestOf,
		Players:   Players{P1: host},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CheckCourse fails when the room was created with other course settings.
// Both clients build their runs from local config, so equal seeds only give
// equal obstacle streams when the fingerprints agree.
func (r Room) CheckCourse(fingerprint string) error {
	if r.Course == "" || fingerprint == "" || r.Course == fingerprint {
		return nil
	}
	return fmt.Errorf("%w (room %s, local %s)", ErrCourseMismatch, r.Course, fingerprint)
}

// Join puts joiner into p2. A player who already holds p2 re-attaches
// without changing anything.
func (r Room) Join(joiner Slot, now int64) (Room, Side, bool, error) {
	switch r.SideOf(joiner.Identity) {
	case SideP1:
		return r, SideNone, false, ErrAlreadyInRoom
	case SideP2:
		if r.Players.P2.Left {
			return r, SideNone, false, ErrNotJoinable
		}
		return r, SideP2, false, nil
	}
	if r.Status != StatusLobby {
		return r, SideNone, false, ErrNotJoinable
	}
	if !r.Players.P2.Empty() {
		return r, SideNone, false, ErrRoomFull
	}

	joiner.Alive = true
	joiner.LastSeen = now
	r.Players.P2 = joiner
	r.UpdatedAt = now
	return r, SideP2, true, nil
}

// Start moves the lobby to the first round. Only p1 may start.
func (r Room) Start(by Side, seed uint32, now int64) (Room, error) {
	if by != SideP1 {
		return r, ErrNotHost
	}
	if r.Status != StatusLobby {
		return r, fmt.Errorf("%w: start from %s", ErrInvalidTransition, r.Status)
	}
	if r.Players.P2.Empty() {
		return r, ErrWaitingForOpponent
	}

	r.Status = StatusRunning
	r.Round = 1
	r.Seed = seed
	r.Scores = Scores{}
	r.Winner = SideNone
	r.Reason = ReasonNone
	r.UpdatedAt = now
	return r, nil
}

// LoseRound records that loser's run ended in round. It only applies while
// that round is running, so racing or stale reports resolve a round once.
func (r Room) LoseRound(loser Side, round int, now int64) (Room, bool) {
	if !loser.Valid() || r.Status != StatusRunning || r.Round != round {
		return r, false
	}
	winner := loser.Other()
	r.Scores.add(winner)
	r.Status = StatusRoundEnd
	r.Winner = winner
	r.UpdatedAt = now
	return r, true
}

// Advance leaves round_end. When a side holds the majority the match ends
// and either side may record that. Otherwise only the round winner may start
// the next round with a fresh seed.
func (r Room) Advance(by Side, round int, seed uint32, now int64) (Room, bool, error) {
	if r.Status != StatusRoundEnd || r.Round != round {
		return r, false, nil
	}
	if leader := r.Leader(); leader != SideNone {
		r.Status = StatusMatchEnd
		r.Winner = leader
		r.Reason = ReasonRounds
		r.UpdatedAt = now
		return r, true, nil
	}
	if by != r.Winner {
		return r, false, ErrNotRoundWinner
	}

	r.Status = StatusRunning
	r.Round++
	r.Seed = seed
	r.Winner = SideNone
	r.UpdatedAt = now
	return r, true, nil
}

// Forfeit ends the match in by's favour when the opponent has left or the
// caller judged it stale on its own clock.
func (r Room) Forfeit(by Side, now int64, stale bool) (Room, error) {
	if r.Status != StatusRunning && r.Status != StatusRoundEnd {
		return r, fmt.Errorf("%w: forfeit from %s", ErrInvalidTransition, r.Status)
	}
	opp := r.Players.Get(by.Other())
	if !opp.Left && !stale {
		return r, ErrOpponentActive
	}

	r.Status = StatusMatchEnd
	r.Winner = by
	r.Reason = ReasonForfeit
	r.UpdatedAt = now
	return r, nil
}

// Leave marks side as gone. The second return is true when nobody is left
// and the document should be deleted. Leaving a match in progress hands it
// to the opponent.
func (r Room) Leave(side Side, now int64) (Room, bool) {
	if !side.Valid() {
		return r, false
	}

	if r.Status == StatusLobby {
		if side == SideP1 {
			return r, true
		}
		r.Players.P2 = Slot{}
		r.UpdatedAt = now
		return r, false
	}

	slot := r.Players.Get(side)
	slot.Left = true
	slot.Alive = false
	r.Players.set(side, slot)
	r.UpdatedAt = now

	if r.Status == StatusRunning || r.Status == StatusRoundEnd {
		r.Status = StatusMatchEnd
		r.Winner = side.Other()
		r.Reason = ReasonLeft
	}
	if r.Players.P1.Left && r.Players.P2.Left {
		return r, true
	}
	return r, false
}
