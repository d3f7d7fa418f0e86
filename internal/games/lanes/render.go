package lanes

import (
	"fmt"
	"math"
	"strings"

	"github.com/vovakirdan/laneduel/internal/core"
)

// Visual characters for rendering
const (
	RoadEdge    = '│'
	LaneDivider = '┊'
	CarChar     = '▓'
	GhostChar   = '▒'
	BlockerChar = '█'
	PitChar     = '░'
	LifeChar    = '♥'
)

// View carries what DrawTrack needs beyond the run snapshot.
type View struct {
	Geometry Geometry
	Ghost    *core.Lane // opponent's last published lane, if any
	Caption  string     // extra HUD text, e.g. the round counter
}

// viewport maps track pixels to screen cells.
type viewport struct {
	x, y   int
	w, h   int
	sx, sy float64
}

// fit centers the track in the screen below a one-line HUD.
// Terminal cells are about twice as tall as wide.
func fit(dst *core.Screen, g Geometry) viewport {
	rows := max(dst.Height()-2, 1)
	cols := core.Round(float64(rows) * g.TrackW / g.TrackH * 2)
	cols = core.Clamp(cols, 1, max(dst.Width()-2, 1))
	return viewport{
		x:  (dst.Width() - cols) / 2,
		y:  1,
		w:  cols,
		h:  rows,
		sx: float64(cols) / g.TrackW,
		sy: float64(rows) / g.TrackH,
	}
}

func (v viewport) fill(dst *core.Screen, r core.Rect, ch rune, c core.Color) {
	s := r.Scale(v.sx, v.sy)
	x0 := int(math.Floor(s.X))
	y0 := int(math.Floor(s.Y))
	x1 := max(int(math.Ceil(s.Right())), x0+1)
	y1 := max(int(math.Ceil(s.Bottom())), y0+1)

	x0 = core.Clamp(x0, 0, v.w)
	x1 = core.Clamp(x1, 0, v.w)
	y0 = core.Clamp(y0, 0, v.h)
	y1 = core.Clamp(y1, 0, v.h)
	if x1 <= x0 || y1 <= y0 {
		return
	}
	dst.FillRect(v.x+x0, v.y+y0, x1-x0, y1-y0, ch, c)
}

// DrawTrack renders a run snapshot: road, obstacles, ghost, car and HUD.
func DrawTrack(dst *core.Screen, st State, view View) {
	dst.Clear()
	g := view.Geometry
	vp := fit(dst, g)

	// Road
	dst.DrawVLine(vp.x-1, vp.y, vp.h, RoadEdge, core.ColorDivider)
	dst.DrawVLine(vp.x+vp.w, vp.y, vp.h, RoadEdge, core.ColorDivider)
	mid := vp.x + vp.w/2
	for y := 0; y < vp.h; y++ {
		if y%2 == 0 {
			dst.SetColored(mid, vp.y+y, LaneDivider, core.ColorDivider)
		}
	}

	for _, o := range st.Obstacles {
		ch, c := BlockerChar, core.ColorBlocker
		if o.Kind == KindPit {
			ch, c = PitChar, core.ColorPit
		}
		vp.fill(dst, g.ObstacleRect(o), ch, c)
	}

	if view.Ghost != nil && *view.Ghost != st.Lane {
		vp.fill(dst, g.PlayerRect(*view.Ghost), GhostChar, core.ColorGhost)
	}
	carColor := core.ColorCar
	if st.Phase == PhaseLifeLost {
		carColor = core.ColorAlert
	}
	vp.fill(dst, g.PlayerRect(st.Lane), CarChar, carColor)

	drawHUD(dst, st, view.Caption)

	switch st.Phase {
	case PhaseIdle:
		dst.DrawTextCentered(dst.Height()/2, " ←/→ or SPACE to start ", core.ColorHUD)
	case PhasePaused:
		dst.DrawTextCentered(dst.Height()/2, " PAUSED ", core.ColorHUD)
		dst.DrawTextCentered(dst.Height()/2+1, " press P to resume ", core.ColorHUD)
	case PhaseGameOver:
		dst.DrawTextCentered(dst.Height()/2, " GAME OVER ", core.ColorAlert)
		dst.DrawTextCentered(dst.Height()/2+1, fmt.Sprintf(" score %d ", st.Score), core.ColorHUD)
	}
}

func drawHUD(dst *core.Screen, st State, caption string) {
	left := fmt.Sprintf(" Score: %d  %s ", st.Score, strings.Repeat(string(LifeChar), st.Lives))
	dst.DrawTextColored(0, 0, left, core.ColorHUD)

	right := fmt.Sprintf(" Spd: %.2fx ", st.Speed)
	if caption != "" {
		right = " " + caption + " " + right
	}
	dst.DrawTextColored(dst.Width()-len([]rune(right)), 0, right, core.ColorHUD)
}
