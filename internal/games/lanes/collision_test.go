package lanes

import (
	"math"
	"testing"

	"github.com/vovakirdan/laneduel/internal/config"
	"github.com/vovakirdan/laneduel/internal/core"
)

func TestGeometryDefaults(t *testing.T) {
	g := NewGeometry(config.Default().Track)

	near := func(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

	if !near(g.CarW, 70.4) {
		t.Errorf("CarW = %v, expected 70.4", g.CarW)
	}
	if !near(g.CarH, 70.4*388/258) {
		t.Errorf("CarH = %v, expected %v", g.CarH, 70.4*388/258)
	}
	if got := g.LaneX(core.LaneLeft); got != 75 {
		t.Errorf("LaneX(left) = %v, expected 75", got)
	}
	if got := g.LaneX(core.LaneRight); got != 255 {
		t.Errorf("LaneX(right) = %v, expected 255", got)
	}
	if !near(g.CarY(), 700-64-g.CarH) {
		t.Errorf("CarY() = %v, expected %v", g.CarY(), 700-64-g.CarH)
	}

	if w, h := g.Size(KindPit); w != 54 || h != 40 {
		t.Errorf("Size(pit) = %vx%v, expected 54x40", w, h)
	}
	if w, h := g.Size(KindBlocker); w != 70 || h != 109 {
		t.Errorf("Size(blocker) = %vx%v, expected 70x109", w, h)
	}
}

func TestGeometryTinyTrack(t *testing.T) {
	cfg := config.Default().Track
	cfg.Width = 2
	cfg.Height = 10
	g := NewGeometry(cfg)

	if g.CarW != 1 {
		t.Errorf("CarW = %v, expected minimum of 1", g.CarW)
	}
	if g.CarY() != 0 {
		t.Errorf("CarY() = %v, expected clamp to 0", g.CarY())
	}
}

func TestDetectorCheck(t *testing.T) {
	g := NewGeometry(config.Default().Track)
	d := NewDetector(g)
	carY := g.CarY()

	tests := []struct {
		name     string
		obstacle Obstacle
		hit      bool
	}{
		{"above the car", Obstacle{Lane: core.LaneLeft, Y: carY - 110, W: 70, H: 109}, false},
		{"overlapping", Obstacle{Lane: core.LaneLeft, Y: carY - 100, W: 70, H: 109}, true},
		{"below the car", Obstacle{Lane: core.LaneLeft, Y: carY + g.CarH + 1, W: 70, H: 109}, false},
		{"other lane", Obstacle{Lane: core.LaneRight, Y: carY, W: 70, H: 109}, false},
		{"consumed pit", Obstacle{Kind: KindPit, Lane: core.LaneLeft, Y: carY, W: 54, H: 40, Consumed: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var arena Arena
			arena.Add(tt.obstacle)
			_, got := d.Check(core.LaneLeft, &arena)
			if got != tt.hit {
				t.Errorf("Check() = %v, expected %v", got, tt.hit)
			}
		})
	}
}

func TestDetectorTouchingEdgesCollide(t *testing.T) {
	g := NewGeometry(config.Default().Track)
	d := NewDetector(g)

	var arena Arena
	// Bottom edge exactly on the car's top edge.
	arena.Add(Obstacle{Lane: core.LaneRight, Y: 0, W: 54, H: 40})
	arena.At(0).Y = g.CarY() - arena.At(0).H
	if arena.At(0).Y+arena.At(0).H != g.CarY() {
		t.Skip("float rounding moved the edge")
	}

	if _, hit := d.Check(core.LaneRight, &arena); !hit {
		t.Error("Check() = false, expected touching edges to collide")
	}
}

func TestDetectorFirstInSpawnOrder(t *testing.T) {
	g := NewGeometry(config.Default().Track)
	d := NewDetector(g)
	carY := g.CarY()

	var arena Arena
	first := arena.Add(Obstacle{Kind: KindPit, Lane: core.LaneLeft, Y: carY, W: 54, H: 40})
	arena.Add(Obstacle{Kind: KindBlocker, Lane: core.LaneLeft, Y: carY - 50, W: 70, H: 109})

	o, hit := d.Check(core.LaneLeft, &arena)
	if !hit {
		t.Fatal("Check() = false, expected a hit")
	}
	if o.ID != first {
		t.Errorf("Check() id = %d, expected %d", o.ID, first)
	}
}

func TestArenaSweepAndSnapshot(t *testing.T) {
	var arena Arena
	arena.Add(Obstacle{Kind: KindPit, Y: 10})
	arena.Add(Obstacle{Kind: KindBlocker, Y: 900})
	arena.Add(Obstacle{Kind: KindPit, Y: 20, Consumed: true})

	removed := arena.Sweep(func(o *Obstacle) bool { return o.Y > 780 })
	if removed != 1 || arena.Len() != 2 {
		t.Fatalf("Sweep() removed %d, len %d; expected 1 and 2", removed, arena.Len())
	}

	snap := arena.Snapshot()
	if len(snap) != 1 || snap[0].ID != 1 {
		t.Errorf("Snapshot() = %+v, expected only obstacle 1", snap)
	}

	if _, ok := arena.Get(3); !ok {
		t.Error("Get(3) missing, consumed obstacles stay in the arena")
	}
	if id := arena.Add(Obstacle{}); id != 4 {
		t.Errorf("Add() id = %d, expected 4", id)
	}
}

func TestArenaEarlyInLaneCountsConsumedPits(t *testing.T) {
	var arena Arena
	arena.Add(Obstacle{Kind: KindPit, Lane: core.LaneLeft, Y: 40, H: 40, Consumed: true})

	if !arena.earlyInLane(core.LaneLeft, 120) {
		t.Error("earlyInLane() = false, a consumed pit must still hold its lane")
	}
	if arena.earlyInLane(core.LaneRight, 120) {
		t.Error("earlyInLane() = true for the empty lane")
	}
	if arena.earlyInLane(core.LaneLeft, 30) {
		t.Error("earlyInLane() = true below the pit's top edge")
	}
}
