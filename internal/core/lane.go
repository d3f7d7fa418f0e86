package core

import "fmt"

// Lane is one of the two drivable lanes.
type Lane int

const (
	LaneLeft Lane = iota
	LaneRight
)

// Other returns the opposite lane.
func (l Lane) Other() Lane {
	if l == LaneLeft {
		return LaneRight
	}
	return LaneLeft
}

// String returns the wire name of the lane.
func (l Lane) String() string {
	switch l {
	case LaneLeft:
		return "left"
	case LaneRight:
		return "right"
	default:
		return "unknown"
	}
}

// MarshalText encodes the lane as "left" or "right".
func (l Lane) MarshalText() ([]byte, error) {
	if l != LaneLeft && l != LaneRight {
		return nil, fmt.Errorf("core: invalid lane %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText decodes "left" or "right".
func (l *Lane) UnmarshalText(b []byte) error {
	lane, err := ParseLane(string(b))
	if err != nil {
		return err
	}
	*l = lane
	return nil
}

// ParseLane parses the wire name of a lane.
func ParseLane(s string) (Lane, error) {
	switch s {
	case "left":
		return LaneLeft, nil
	case "right":
		return LaneRight, nil
	}
	return LaneLeft, fmt.Errorf("core: unknown lane %q", s)
}
