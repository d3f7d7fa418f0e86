package lanes

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vovakirdan/laneduel/internal/config"
	"github.com/vovakirdan/laneduel/internal/core"
	"github.com/vovakirdan/laneduel/internal/rng"
)

// Phase is the lifecycle state of a run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhasePaused
	PhaseLifeLost
	PhaseGameOver
)

// String returns the name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhasePaused:
		return "paused"
	case PhaseLifeLost:
		return "life_lost"
	case PhaseGameOver:
		return "game_over"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Mode selects how the course speed is derived.
type Mode int

const (
	// ModeSolo spawns at the player's own speed and allows pausing.
	ModeSolo Mode = iota
	// ModeShared spawns at a speed that depends only on elapsed course time,
	// so two runs with the same seed see the same obstacles. No pause.
	ModeShared
)

var (
	// ErrPauseUnavailable is returned when pausing a shared-course run.
	ErrPauseUnavailable = errors.New("lanes: pause is not available in multiplayer")
	// ErrNotStarted is returned when an operation needs a started run.
	ErrNotStarted = errors.New("lanes: run not started")
)

// Result is the terminal report of a run. It is produced exactly once.
type Result struct {
	Seed         uint32
	FinalScore   int
	Reward       int
	PreviousBest int
	NewBest      bool
	Cause        Kind
	Elapsed      time.Duration
	PitHits      int
}

// Options configures a new run.
type Options struct {
	Config config.Config
	Seed   uint32
	// Source overrides the seeded generator; tests use scripted draws.
	Source       rng.Source
	Mode         Mode
	PersonalBest int
	// OnGameOver receives the terminal report. It is called at most once.
	OnGameOver func(Result)
}

// State is a read-only snapshot of a run for rendering and tests.
type State struct {
	Phase     Phase
	Lives     int
	Score     int
	Speed     float64
	Lane      core.Lane
	Elapsed   time.Duration
	Seed      uint32
	Obstacles []Obstacle
}

// Run is the simulation context for one play session. Every tick callback
// receives its state through the Run; nothing is captured elsewhere.
type Run struct {
	cfg      config.Config
	geom     Geometry
	mode     Mode
	seed     uint32
	spawner  *Spawner
	detector Detector
	arena    Arena
	clock    *Scheduler

	phase      Phase
	resumeTo   Phase
	lives      int
	score      float64
	speed      float64
	lane       core.Lane
	pitHits    int
	best       int
	onGameOver func(Result)
	result     *Result
	graceTimer TimerID
}

// NewRun builds an idle run.
func NewRun(opts Options) *Run {
	src := opts.Source
	if src == nil {
		src = rng.New(opts.Seed)
	}
	geom := NewGeometry(opts.Config.Track)
	return &Run{
		cfg:        opts.Config,
		geom:       geom,
		mode:       opts.Mode,
		seed:       opts.Seed,
		spawner:    NewSpawner(opts.Config.Spawner, geom, src),
		detector:   NewDetector(geom),
		clock:      NewScheduler(),
		phase:      PhaseIdle,
		lives:      opts.Config.Run.Lives,
		speed:      opts.Config.Ramp.Min,
		lane:       core.LaneLeft,
		best:       opts.PersonalBest,
		onGameOver: opts.OnGameOver,
	}
}

// Geometry returns the track geometry of the run.
func (r *Run) Geometry() Geometry {
	return r.geom
}

// Phase returns the current phase.
func (r *Run) Phase() Phase {
	return r.phase
}

// Lane returns the player's current lane.
func (r *Run) Lane() core.Lane {
	return r.lane
}

// Result returns the terminal report once the run is over.
func (r *Run) Result() (Result, bool) {
	if r.result == nil {
		return Result{}, false
	}
	return *r.result, true
}

// Start moves an idle run to running: the opening obstacle spawns, the next
// spawn is scheduled, and the score, ramp and collision tickers start.
func (r *Run) Start() error {
	if r.phase != PhaseIdle {
		return fmt.Errorf("lanes: cannot start from %s", r.phase)
	}
	r.phase = PhaseRunning

	now := r.clock.Now()
	r.arena.Add(r.spawner.Opening(now, r.courseSpeed()))
	r.scheduleSpawn()

	r.clock.Every(config.Ms(r.cfg.Run.ScoreTickMs), r.scoreTick)
	r.clock.Every(r.cfg.Ramp.Interval(), r.rampTick)
	r.clock.Every(config.Ms(r.cfg.Run.CollisionTickMs), r.collisionTick)
	return nil
}

// Advance moves simulated time forward by dt. Paused, idle and finished runs
// do not advance.
func (r *Run) Advance(dt time.Duration) {
	if dt <= 0 {
		return
	}
	switch r.phase {
	case PhaseRunning, PhaseLifeLost:
		r.clock.Advance(dt, r.move)
	}
}

// SetLane steers the car. It reports whether the lane changed.
func (r *Run) SetLane(l core.Lane) bool {
	if r.phase != PhaseRunning && r.phase != PhaseLifeLost && r.phase != PhaseIdle {
		return false
	}
	if l == r.lane {
		return false
	}
	r.lane = l
	return true
}

// Pause freezes a solo run. Pausing an already paused run is a no-op.
func (r *Run) Pause() error {
	if r.mode == ModeShared {
		return ErrPauseUnavailable
	}
	switch r.phase {
	case PhaseRunning, PhaseLifeLost:
		r.resumeTo = r.phase
		r.phase = PhasePaused
		return nil
	case PhasePaused:
		return nil
	case PhaseIdle:
		return ErrNotStarted
	default:
		return fmt.Errorf("lanes: cannot pause from %s", r.phase)
	}
}

// Resume continues a paused run.
func (r *Run) Resume() error {
	if r.phase != PhasePaused {
		return fmt.Errorf("lanes: cannot resume from %s", r.phase)
	}
	r.phase = r.resumeTo
	return nil
}

// TogglePause pauses a running run or resumes a paused one.
func (r *Run) TogglePause() error {
	if r.phase == PhasePaused {
		return r.Resume()
	}
	return r.Pause()
}

// Stop tears the run down without a terminal report, e.g. when the opponent
// lost first. All timers are cancelled.
func (r *Run) Stop() {
	r.clock.CancelAll()
	if r.phase != PhaseGameOver {
		r.phase = PhaseGameOver
	}
}

// Snapshot returns the current state.
func (r *Run) Snapshot() State {
	return State{
		Phase:     r.phase,
		Lives:     r.lives,
		Score:     r.Score(),
		Speed:     r.speed,
		Lane:      r.lane,
		Elapsed:   r.clock.Now(),
		Seed:      r.seed,
		Obstacles: r.arena.Snapshot(),
	}
}

// Score returns the displayed (truncated) score.
func (r *Run) Score() int {
	return int(math.Floor(r.score))
}

// courseSpeed is the speed used for spawn delays and traversal durations.
func (r *Run) courseSpeed() float64 {
	if r.mode == ModeShared {
		return r.cfg.Ramp.At(r.clock.Now())
	}
	return r.speed
}

// move brings obstacle positions up to now and drops the ones that left.
func (r *Run) move(now time.Duration) {
	if r.phase == PhaseGameOver {
		return
	}
	r.arena.Sweep(func(o *Obstacle) bool {
		o.Y = o.positionAt(now)
		return o.Y >= o.EndY
	})
}

func (r *Run) scheduleSpawn() {
	delay := r.spawner.Schedule(&r.arena, r.clock.Now(), r.courseSpeed())
	r.clock.After(delay, r.spawnTick)
}

func (r *Run) spawnTick() {
	if r.phase == PhaseGameOver {
		return
	}
	r.arena.Add(r.spawner.Fire(&r.arena, r.clock.Now(), r.courseSpeed()))
	r.scheduleSpawn()
}

func (r *Run) scoreTick() {
	if r.phase != PhaseRunning {
		return
	}
	r.score += math.Max(1, r.speed)
}

func (r *Run) rampTick() {
	if r.phase != PhaseRunning {
		return
	}
	r.speed = r.cfg.Ramp.Next(r.speed)
}

func (r *Run) collisionTick() {
	if r.phase != PhaseRunning {
		return
	}
	o, hit := r.detector.Check(r.lane, &r.arena)
	if !hit {
		return
	}
	switch o.Kind {
	case KindBlocker:
		r.finish(KindBlocker)
	case KindPit:
		o.Consumed = true
		r.pitHits++
		r.lives--
		if r.lives <= 0 {
			r.lives = 0
			r.finish(KindPit)
			return
		}
		r.phase = PhaseLifeLost
		r.graceTimer = r.clock.After(config.Ms(r.cfg.Run.GraceMs), r.endGrace)
	}
}

func (r *Run) endGrace() {
	r.graceTimer = 0
	if r.phase == PhaseLifeLost {
		r.phase = PhaseRunning
	}
}

// finish enters game_over and emits the terminal report once.
func (r *Run) finish(cause Kind) {
	r.phase = PhaseGameOver
	r.clock.CancelAll()
	if r.result != nil {
		return
	}
	final := r.Score()
	res := Result{
		Seed:         r.seed,
		FinalScore:   final,
		Reward:       final / r.cfg.Run.RewardDivisor,
		PreviousBest: r.best,
		NewBest:      final > r.best,
		Cause:        cause,
		Elapsed:      r.clock.Now(),
		PitHits:      r.pitHits,
	}
	r.result = &res
	if r.onGameOver != nil {
		r.onGameOver(res)
	}
}
