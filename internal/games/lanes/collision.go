package lanes

import "github.com/vovakirdan/laneduel/internal/core"

// Detector tests the player's car against the arena.
type Detector struct {
	geom Geometry
}

// NewDetector creates a detector for the given geometry.
func NewDetector(geom Geometry) Detector {
	return Detector{geom: geom}
}

// Check returns the first obstacle, in spawn order, that overlaps the car in
// lane. Consumed pits and obstacles in the other lane are skipped.
func (d Detector) Check(lane core.Lane, arena *Arena) (*Obstacle, bool) {
	car := d.geom.PlayerRect(lane)
	for i := 0; i < arena.Len(); i++ {
		o := arena.At(i)
		if o.Consumed || o.Lane != lane {
			continue
		}
		if car.Overlaps(d.geom.ObstacleRect(*o)) {
			return o, true
		}
	}
	return nil, false
}
