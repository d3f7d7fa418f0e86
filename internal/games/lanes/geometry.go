package lanes

import (
	"math"

	"github.com/vovakirdan/laneduel/internal/config"
	"github.com/vovakirdan/laneduel/internal/core"
)

// Geometry holds the sizes derived from the track dimensions.
// Car width is a fixed fraction of track width; obstacle sprites scale with it.
type Geometry struct {
	TrackW, TrackH float64
	Pad            float64
	CarW, CarH     float64
	Scale          float64 // car width / car sprite width

	bottomPad   float64
	entryMargin float64
	exitMargin  float64
	blocker     config.Size
	pit         config.Size
}

// NewGeometry derives sizes for the configured track.
func NewGeometry(cfg config.TrackConfig) Geometry {
	carW := math.Max(1, cfg.Width*cfg.CarWidthRatio)
	carH := carW * cfg.CarSprite.H / cfg.CarSprite.W
	scale := carW / cfg.CarSprite.W

	return Geometry{
		TrackW:      cfg.Width,
		TrackH:      cfg.Height,
		Pad:         cfg.LanePadding,
		CarW:        carW,
		CarH:        carH,
		Scale:       scale,
		bottomPad:   cfg.BottomPadding,
		entryMargin: cfg.EntryMargin,
		exitMargin:  cfg.ExitMargin,
		blocker: config.Size{
			W: math.Round(cfg.BlockerSprite.W * scale),
			H: math.Round(cfg.BlockerSprite.H * scale),
		},
		pit: config.Size{
			W: math.Round(cfg.PitSprite.W * scale),
			H: math.Round(cfg.PitSprite.H * scale),
		},
	}
}

// LaneX returns the left edge of a car-width column centered in the lane.
// Lane centers sit at the quarter points of the usable width.
func (g Geometry) LaneX(lane core.Lane) float64 {
	usable := math.Max(0, g.TrackW-g.Pad*2)
	center := g.Pad + usable/2
	offset := usable / 4
	cx := center - offset
	if lane == core.LaneRight {
		cx = center + offset
	}
	return math.Round(cx - g.CarW/2)
}

// CarY returns the fixed top edge of the player's car.
func (g Geometry) CarY() float64 {
	return math.Max(0, g.TrackH-g.bottomPad-g.CarH)
}

// PlayerRect returns the player's bounding box in the given lane.
func (g Geometry) PlayerRect(lane core.Lane) core.Rect {
	return core.NewRect(g.LaneX(lane), g.CarY(), g.CarW, g.CarH)
}

// ObstacleRect returns an obstacle's bounding box at its current position.
func (g Geometry) ObstacleRect(o Obstacle) core.Rect {
	return core.NewRect(g.LaneX(o.Lane), o.Y, o.W, o.H)
}

// Size returns the rounded obstacle size for a kind.
func (g Geometry) Size(kind Kind) (w, h float64) {
	if kind == KindPit {
		return g.pit.W, g.pit.H
	}
	return g.blocker.W, g.blocker.H
}

// StartY is where an obstacle of height h enters, fully above the track.
func (g Geometry) StartY(h float64) float64 {
	return -h - g.entryMargin
}

// EndY is where obstacles leave the track.
func (g Geometry) EndY() float64 {
	return g.TrackH + g.exitMargin
}
