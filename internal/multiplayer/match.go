package multiplayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/laneduel/internal/config"
	"github.com/vovakirdan/laneduel/internal/core"
	"github.com/vovakirdan/laneduel/internal/games/lanes"
	"github.com/vovakirdan/laneduel/internal/room"
)

// Options configure a Match. Zero values fall back to the defaults.
type Options struct {
	Config config.Config
	FPS    int
	Logger *log.Logger
	Saver  MatchResultSaver // optional
	Now    func() time.Time
}

// Match drives one client through one room. A single goroutine (Run) owns
// the local run and multiplexes the frame ticker, the room feed, UI
// messages and cancellation; room writes happen in short-lived goroutines
// whose outcome comes back through the feed.
type Match struct {
	client  *room.Client
	code    string
	side    room.Side
	session SessionHandle

	cfg   config.Config
	frame time.Duration
	log   *log.Logger
	saver MatchResultSaver
	now   func() time.Time

	msgs     chan Msg
	done     chan struct{}
	doneOnce sync.Once
	ops      sync.WaitGroup

	// Owned by the Run goroutine.
	latest     room.Room
	run        *lanes.Run
	round      int
	seed       uint32
	lostRound  int
	endedRound int
	advanceC   <-chan time.Time
	advanceT   *time.Timer
	pubLane    core.Lane
	pubLives   int
	pubAt      time.Time
	started    time.Time
	saved      bool
}

// NewMatch creates the driver for side of the room code. Call Run to start it.
func NewMatch(client *room.Client, code string, side room.Side, session SessionHandle, opts Options) *Match {
	if opts.Config.Room.BestOf == 0 {
		opts.Config = config.Default()
	}
	if opts.FPS <= 0 {
		opts.FPS = 60
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Match{
		client:  client,
		code:    code,
		side:    side,
		session: session,
		cfg:     opts.Config,
		frame:   time.Second / time.Duration(opts.FPS),
		log:     opts.Logger.With("code", code, "side", string(side)),
		saver:   opts.Saver,
		now:     opts.Now,
		msgs:    make(chan Msg, 64),
		done:    make(chan struct{}),
	}
}

// Code returns the room's join code.
func (m *Match) Code() string {
	return m.code
}

// Side returns the local side.
func (m *Match) Side() room.Side {
	return m.side
}

// Done is closed when Run has returned.
func (m *Match) Done() <-chan struct{} {
	return m.done
}

// Send delivers a UI message to the match. It never blocks after the
// match has ended.
func (m *Match) Send(msg Msg) {
	select {
	case m.msgs <- msg:
	case <-m.done:
	}
}

// Run drives the match until it ends, the player leaves, the session
// closes or ctx is cancelled. The room slot is always given up on return.
func (m *Match) Run(ctx context.Context) error {
	defer m.doneOnce.Do(func() { close(m.done) })

	opsCtx, cancelOps := context.WithCancel(ctx)
	defer cancelOps()
	shutdown := func() {
		if m.run != nil {
			m.run.Stop()
		}
		m.stopAdvance()
		cancelOps()
		m.leave(ctx)
		m.ops.Wait()
	}

	feed, err := m.client.Watch(opsCtx, m.code)
	if err != nil {
		m.leave(ctx)
		return fmt.Errorf("multiplayer: cannot watch room %s: %w", m.code, err)
	}
	defer feed.Close()
	m.started = m.now()

	frames := time.NewTicker(m.frame)
	defer frames.Stop()
	beat := time.NewTicker(config.Ms(max(m.cfg.Room.HeartbeatMs, 100)))
	defer beat.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdown()
			return ctx.Err()

		case <-m.session.Done():
			shutdown()
			return nil

		case r, ok := <-feed.C():
			if !ok {
				err := feed.Err()
				if ctx.Err() != nil {
					err = ctx.Err()
				} else if err != nil {
					m.session.Send(ErrorEvent{Err: err})
				}
				shutdown()
				return err
			}
			if m.observe(opsCtx, r) {
				shutdown()
				return nil
			}

		case <-frames.C:
			m.step(opsCtx)

		case <-beat.C:
			m.heartbeat(opsCtx)

		case <-m.advanceC:
			m.advance(opsCtx)

		case msg := <-m.msgs:
			if m.handle(opsCtx, msg) {
				shutdown()
				return nil
			}
		}
	}
}

// observe applies a new room state. It returns true once the match is over.
func (m *Match) observe(ctx context.Context, r room.Room) bool {
	m.latest = r
	m.client.Observe(r, m.side)
	m.session.Send(RoomEvent{Room: r, Side: m.side})

	switch r.Status {
	case room.StatusRunning:
		if m.run == nil || r.Round != m.round || r.Seed != m.seed {
			m.startRound(ctx, r)
		}
	case room.StatusRoundEnd:
		m.endRound(r)
	case room.StatusMatchEnd:
		m.finish(ctx, r)
		return true
	}
	return false
}

func (m *Match) startRound(ctx context.Context, r room.Room) {
	if m.run != nil {
		m.run.Stop()
	}
	m.stopAdvance()

	round := r.Round
	m.run = lanes.NewRun(lanes.Options{
		Config: m.cfg,
		Seed:   r.Seed,
		Mode:   lanes.ModeShared,
		OnGameOver: func(res lanes.Result) {
			m.lost(ctx, round, res)
		},
	})
	m.round, m.seed = r.Round, r.Seed
	m.lostRound = 0
	m.pubLane = core.LaneLeft
	m.pubLives = m.cfg.Run.Lives
	//nolint:errcheck // A fresh run is idle
	m.run.Start()

	m.spawn(ctx, "reset slot", false, func(ctx context.Context) error {
		return m.client.ResetSlot(ctx, m.code, m.side)
	})
	m.log.Info("round started", "round", r.Round, "seed", r.Seed)
	m.session.Send(RoundStartedEvent{Round: r.Round, Seed: r.Seed})
}

// lost runs inside Run.Advance when the local run ends.
func (m *Match) lost(ctx context.Context, round int, res lanes.Result) {
	m.lostRound = round
	m.log.Info("run over", "round", round, "score", res.FinalScore, "cause", res.Cause)
	m.reportLoss(ctx, round)

	lives := 0
	if m.run != nil {
		lives = m.run.Snapshot().Lives
	}
	m.spawn(ctx, "publish lives", false, func(ctx context.Context) error {
		return m.client.PublishLives(ctx, m.code, m.side, lives, false)
	})
}

func (m *Match) reportLoss(ctx context.Context, round int) {
	m.spawn(ctx, "report loss", false, func(ctx context.Context) error {
		resolved, err := m.client.ReportLoss(ctx, m.code, m.side, round)
		if err == nil {
			m.log.Debug("loss reported", "round", round, "resolved", resolved)
		}
		return err
	})
}

func (m *Match) endRound(r room.Room) {
	if m.run != nil && m.run.Phase() != lanes.PhaseGameOver {
		// The opponent's loss resolved the round first.
		m.run.Stop()
	}
	if m.endedRound == r.Round {
		return
	}
	m.endedRound = r.Round

	advancing := r.Winner == m.side || r.Leader() != room.SideNone
	if advancing {
		m.armAdvance(config.Ms(m.cfg.Room.RoundDelayMs))
	}
	m.log.Info("round ended", "round", r.Round, "winner", string(r.Winner),
		"p1", r.Scores.P1, "p2", r.Scores.P2)
	m.session.Send(RoundEndedEvent{
		Round:     r.Round,
		Winner:    r.Winner,
		Scores:    r.Scores,
		Side:      m.side,
		Advancing: advancing,
	})
}

func (m *Match) armAdvance(d time.Duration) {
	m.stopAdvance()
	m.advanceT = time.NewTimer(d)
	m.advanceC = m.advanceT.C
}

func (m *Match) stopAdvance() {
	if m.advanceT != nil {
		m.advanceT.Stop()
	}
	m.advanceT = nil
	m.advanceC = nil
}

func (m *Match) advance(ctx context.Context) {
	m.stopAdvance()
	r := m.latest
	if r.Status != room.StatusRoundEnd {
		return
	}
	round := r.Round
	m.spawn(ctx, "advance", true, func(ctx context.Context) error {
		_, err := m.client.Advance(ctx, m.code, m.side, round)
		if errors.Is(err, room.ErrNotRoundWinner) {
			return nil
		}
		return err
	})
}

func (m *Match) finish(ctx context.Context, r room.Room) {
	if m.run != nil {
		m.run.Stop()
	}
	m.stopAdvance()
	if m.saved {
		return
	}
	m.saved = true

	res := resultOf(r, m.side, m.started, m.now())
	m.log.Info("match ended", "winner", string(res.Winner), "reason", string(res.Reason),
		"p1", res.Score1, "p2", res.Score2)
	if m.saver != nil {
		// Saving outlives the match loop.
		saveCtx := context.WithoutCancel(ctx)
		m.spawn(saveCtx, "save result", false, func(ctx context.Context) error {
			return m.saver.SaveMatchResult(ctx, res)
		})
	}
	m.session.Send(MatchEndedEvent{Result: res})
}

// step advances the local run by one frame, publishes what changed and
// sends the frame to the UI.
func (m *Match) step(ctx context.Context) {
	if m.run == nil {
		return
	}
	m.run.Advance(m.frame)
	st := m.run.Snapshot()
	m.publish(ctx, st)

	r := m.latest
	opp := r.Players.Get(m.side.Other())
	var ghost *core.Lane
	if !opp.Empty() && !opp.Left {
		lane := opp.Lane
		ghost = &lane
	}
	m.session.Send(FrameEvent{
		State:    st,
		Geometry: m.run.Geometry(),
		Ghost:    ghost,
		Round:    r.Round,
		BestOf:   r.BestOf,
		Scores:   r.Scores,
		Side:     m.side,
		Opponent: opp,
	})
}

func (m *Match) publish(ctx context.Context, st lanes.State) {
	if st.Phase == lanes.PhaseGameOver {
		return
	}
	now := m.now()
	if st.Lane != m.pubLane && now.Sub(m.pubAt) >= config.Ms(m.cfg.Room.LanePublishMs) {
		lane := st.Lane
		m.pubLane = lane
		m.pubAt = now
		m.spawn(ctx, "publish lane", false, func(ctx context.Context) error {
			return m.client.PublishLane(ctx, m.code, m.side, lane)
		})
	}
	if st.Lives != m.pubLives {
		lives := st.Lives
		m.pubLives = lives
		m.spawn(ctx, "publish lives", false, func(ctx context.Context) error {
			return m.client.PublishLives(ctx, m.code, m.side, lives, true)
		})
	}
}

func (m *Match) heartbeat(ctx context.Context) {
	r := m.latest
	if r.Status == room.StatusMatchEnd {
		return
	}
	m.spawn(ctx, "heartbeat", false, func(ctx context.Context) error {
		return m.client.Heartbeat(ctx, m.code, m.side)
	})

	// A lost report may have failed; the transaction makes repeats harmless.
	if m.lostRound != 0 && r.Status == room.StatusRunning && r.Round == m.lostRound {
		m.reportLoss(ctx, m.lostRound)
	}

	if m.opponentStale(r) {
		m.spawn(ctx, "claim forfeit", false, func(ctx context.Context) error {
			_, err := m.client.ClaimForfeit(ctx, m.code, m.side)
			if errors.Is(err, room.ErrOpponentActive) || errors.Is(err, room.ErrInvalidTransition) {
				return nil
			}
			return err
		})
	}
}

func (m *Match) opponentStale(r room.Room) bool {
	after := int64(m.cfg.Room.ForfeitAfterMs)
	if after <= 0 {
		return false
	}
	if r.Status != room.StatusRunning && r.Status != room.StatusRoundEnd {
		return false
	}
	return m.client.OpponentStale(r, m.side)
}

// handle applies a UI message. It returns true when the player leaves.
func (m *Match) handle(ctx context.Context, msg Msg) bool {
	switch msg := msg.(type) {
	case InputMsg:
		if m.run != nil {
			m.run.SetLane(msg.Input.SteerLane(m.run.Lane()))
		}
		if msg.Input.Has(core.ActionConfirm) {
			m.confirm(ctx)
		}
	case StartMsg:
		m.start(ctx)
	case NextRoundMsg:
		if m.advanceC != nil {
			m.advance(ctx)
		}
	case LeaveMsg:
		return true
	}
	return false
}

func (m *Match) confirm(ctx context.Context) {
	switch m.latest.Status {
	case room.StatusLobby:
		if m.side == room.SideP1 {
			m.start(ctx)
		}
	case room.StatusRoundEnd:
		if m.advanceC != nil {
			m.advance(ctx)
		}
	}
}

func (m *Match) start(ctx context.Context) {
	m.spawn(ctx, "start", true, func(ctx context.Context) error {
		_, err := m.client.Start(ctx, m.code)
		return err
	})
}

// spawn runs a room write in the background with the request timeout.
// Failures are logged; visible ones are also sent to the UI.
func (m *Match) spawn(ctx context.Context, what string, visible bool, fn func(ctx context.Context) error) {
	timeout := config.Ms(m.cfg.Room.RequestTimeoutMs)
	m.ops.Go(func() {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		err := fn(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		m.log.Warn("room write failed", "op", what, "error", err)
		if visible {
			m.session.Send(ErrorEvent{Err: err})
		}
	})
}

func (m *Match) leave(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.Ms(max(m.cfg.Room.RequestTimeoutMs, 1000)))
	defer cancel()
	if err := m.client.Leave(ctx, m.code, m.side); err != nil {
		m.log.Warn("cannot leave room", "error", err)
	}
}
