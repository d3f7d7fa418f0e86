package lanes

import (
	"fmt"
	"time"

	"github.com/vovakirdan/laneduel/internal/config"
	"github.com/vovakirdan/laneduel/internal/core"
	"github.com/vovakirdan/laneduel/internal/registry"
	"github.com/vovakirdan/laneduel/internal/rng"
)

// configPath stores the custom config path set via CLI
var configPath string

// SetConfigPath sets the custom config path for loading.
func SetConfigPath(path string) {
	configPath = path
}

// LoadConfig loads the configuration from the path set via SetConfigPath,
// falling back to the defaults.
func LoadConfig() config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Default()
	}
	return cfg
}

// Game adapts a Run to the platform's frame-driven game interface.
// Each platform tick advances the run by one frame of simulated time.
type Game struct {
	id      string
	title   string
	mode    Mode
	seedFor func(core.RuntimeConfig) uint32

	cfg     config.Config
	runtime core.RuntimeConfig
	run     *Run
	best    int
	report  func(Result)
}

// NewEndless creates the single-player endless mode with a fresh seed per run.
func NewEndless() *Game {
	return &Game{
		id:    "endless",
		title: "Endless",
		mode:  ModeSolo,
		seedFor: func(rc core.RuntimeConfig) uint32 {
			if rc.Seed != 0 {
				return rc.Seed
			}
			return rng.EntropySeed()
		},
	}
}

// NewDaily creates the daily course: everyone gets the same seed per UTC day.
func NewDaily() *Game {
	return &Game{
		id:    "daily",
		title: "Daily Course",
		mode:  ModeShared,
		seedFor: func(core.RuntimeConfig) uint32 {
			return DailySeed(time.Now())
		},
	}
}

// DailySeed derives the course seed for the UTC day of t.
func DailySeed(t time.Time) uint32 {
	y, m, d := t.UTC().Date()
	return rng.New(uint32(y*10000+int(m)*100+d)).Uint32() & 0xFFFFFFF
}

// ID returns the unique identifier for this game.
func (g *Game) ID() string {
	return g.id
}

// Title returns the display name for this game.
func (g *Game) Title() string {
	return g.title
}

// SetReporter installs the terminal report sink and the known personal best.
// Takes effect on the next Reset.
func (g *Game) SetReporter(best int, fn func(Result)) {
	g.best = best
	g.report = fn
}

// Reset builds a new idle run.
func (g *Game) Reset(runtime core.RuntimeConfig) {
	g.runtime = runtime
	g.cfg = LoadConfig()
	g.run = NewRun(Options{
		Config:       g.cfg,
		Seed:         g.seedFor(runtime),
		Mode:         g.mode,
		PersonalBest: g.best,
		OnGameOver: func(res Result) {
			if res.NewBest {
				g.best = res.FinalScore
			}
			if g.report != nil {
				g.report(res)
			}
		},
	})
}

// Step applies one frame of input and advances the run by one frame.
func (g *Game) Step(in core.InputFrame) core.StepResult {
	if g.run == nil {
		g.Reset(g.runtime)
	}

	if in.Has(core.ActionPause) {
		//nolint:errcheck // Pause is unavailable on shared courses
		g.run.TogglePause()
	}

	lane := in.SteerLane(g.run.Lane())
	g.run.SetLane(lane)

	if g.run.Phase() == PhaseIdle && startsRun(in) {
		//nolint:errcheck // Only fails outside idle
		g.run.Start()
	}

	g.run.Advance(g.frame())
	return core.StepResult{State: g.State()}
}

func startsRun(in core.InputFrame) bool {
	return in.Has(core.ActionConfirm) || in.Has(core.ActionToggle) ||
		in.Has(core.ActionLaneLeft) || in.Has(core.ActionLaneRight)
}

func (g *Game) frame() time.Duration {
	rate := g.runtime.TickRate
	if rate <= 0 {
		rate = 60
	}
	return time.Second / time.Duration(rate)
}

// Render draws the current run into the screen buffer.
func (g *Game) Render(dst *core.Screen) {
	if g.run == nil {
		dst.Clear()
		return
	}
	caption := ""
	if g.mode == ModeShared {
		caption = fmt.Sprintf("seed %07x", g.run.seed)
	}
	DrawTrack(dst, g.run.Snapshot(), View{Geometry: g.run.Geometry(), Caption: caption})
}

// State returns the current game state.
func (g *Game) State() core.GameState {
	if g.run == nil {
		return core.GameState{}
	}
	st := g.run.Snapshot()
	return core.GameState{
		Score:    st.Score,
		Lives:    st.Lives,
		GameOver: st.Phase == PhaseGameOver,
		Paused:   st.Phase == PhasePaused,
		Started:  st.Phase != PhaseIdle,
	}
}

// Run exposes the underlying run for inspection.
func (g *Game) Run() *Run {
	return g.run
}

// Register the modes with the registry
func init() {
	registry.Register("endless", func() registry.Game {
		return NewEndless()
	})
	registry.Register("daily", func() registry.Game {
		return NewDaily()
	})
}
