package multiplayer

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/laneduel/internal/config"
	"github.com/vovakirdan/laneduel/internal/core"
	"github.com/vovakirdan/laneduel/internal/docstore"
	"github.com/vovakirdan/laneduel/internal/docstore/memstore"
	"github.com/vovakirdan/laneduel/internal/room"
)

var quiet = log.New(io.Discard)

type recordingSaver struct {
	mu      sync.Mutex
	results []MatchResult
}

func (s *recordingSaver) SaveMatchResult(_ context.Context, r MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

func (s *recordingSaver) saved() []MatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MatchResult(nil), s.results...)
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Room.RoundDelayMs = 20
	cfg.Room.HeartbeatMs = 50
	cfg.Room.LanePublishMs = 0
	cfg.Room.ForfeitAfterMs = 0
	cfg.Room.RequestTimeoutMs = 2000
	return cfg
}

type duel struct {
	store docstore.Store
	cfg   config.Config
	alice *room.Client
	bob   *room.Client
	code  string
}

func newDuel(t *testing.T, cfg config.Config) *duel {
	t.Helper()
	store := memstore.New(docstore.Options{SubscribeBuffer: 16})
	t.Cleanup(func() {
		//nolint:errcheck // Test teardown
		store.Close()
	})
	opts := room.Options{Room: cfg.Room, Lives: cfg.Run.Lives, Logger: quiet}
	d := &duel{
		store: store,
		cfg:   cfg,
		alice: room.NewClient(store, room.Player{Identity: "alice", DisplayName: "Alice"}, opts),
		bob:   room.NewClient(store, room.Player{Identity: "bob", DisplayName: "Bob"}, opts),
	}

	ctx := ctxT(t)
	r, err := d.alice.Create(ctx, 3)
	require.NoError(t, err)
	_, _, err = d.bob.Join(ctx, r.Code)
	require.NoError(t, err)
	d.code = r.Code
	return d
}

// runAlice starts alice's driver and returns her session and Run's result.
func (d *duel) runAlice(t *testing.T, saver MatchResultSaver) (*Match, *ChannelSession, <-chan error) {
	t.Helper()
	sess := NewChannelSession("alice", 1024)
	m := NewMatch(d.alice, d.code, room.SideP1, sess, Options{
		Config: d.cfg,
		FPS:    200,
		Logger: quiet,
		Saver:  saver,
	})
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctxT(t)) }()
	t.Cleanup(func() {
		sess.Close()
		<-m.Done()
	})
	return m, sess, errc
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// waitFor reads events until one of type E arrives.
func waitFor[E Event](t *testing.T, sess *ChannelSession, match func(E) bool) E {
	t.Helper()
	deadline := time.After(8 * time.Second)
	for {
		select {
		case evt := <-sess.Events():
			if e, ok := evt.(E); ok && (match == nil || match(e)) {
				return e
			}
		case <-deadline:
			var zero E
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(8 * time.Second):
		t.Fatal("match did not stop")
		return nil
	}
}

func TestMatchFollowsRoomToMatchEnd(t *testing.T) {
	d := newDuel(t, testConfig())
	ctx := ctxT(t)
	saver := &recordingSaver{}
	m, sess, errc := d.runAlice(t, saver)

	m.Send(StartMsg{})
	first := waitFor[RoundStartedEvent](t, sess, nil)
	assert.Equal(t, 1, first.Round)

	r, err := d.bob.Get(ctx, d.code)
	require.NoError(t, err)
	assert.Equal(t, r.Seed, first.Seed)

	resolved, err := d.bob.ReportLoss(ctx, d.code, room.SideP2, 1)
	require.NoError(t, err)
	require.True(t, resolved)

	ended := waitFor[RoundEndedEvent](t, sess, nil)
	assert.Equal(t, room.SideP1, ended.Winner)
	assert.True(t, ended.Advancing)

	// The round winner advances after the round delay.
	second := waitFor[RoundStartedEvent](t, sess, nil)
	assert.Equal(t, 2, second.Round)

	_, err = d.bob.ReportLoss(ctx, d.code, room.SideP2, 2)
	require.NoError(t, err)

	final := waitFor[MatchEndedEvent](t, sess, nil).Result
	assert.Equal(t, room.SideP1, final.Winner)
	assert.Equal(t, room.ReasonRounds, final.Reason)
	assert.Equal(t, 2, final.Score1)
	assert.Equal(t, 0, final.Score2)
	assert.Equal(t, 2, final.Rounds)
	assert.True(t, final.Won())
	assert.Equal(t, "alice", final.WinnerIdentity())

	require.NoError(t, waitErr(t, errc))
	require.Len(t, saver.saved(), 1)

	got, err := d.bob.Get(ctx, d.code)
	require.NoError(t, err)
	assert.True(t, got.Players.P1.Left, "driver gives up its slot on exit")
}

func TestLocalLossIsReported(t *testing.T) {
	cfg := testConfig()
	cfg.Spawner.BlockerChance = 1
	cfg.Spawner.LaneBias = 1 // every obstacle follows the opening lane
	d := newDuel(t, cfg)
	ctx := ctxT(t)
	m, sess, errc := d.runAlice(t, nil)

	m.Send(InputMsg{Input: confirm()})
	waitFor[RoundStartedEvent](t, sess, nil)

	frame := waitFor[FrameEvent](t, sess, func(e FrameEvent) bool { return len(e.State.Obstacles) > 0 })
	m.Send(InputMsg{Input: steer(frame.State.Obstacles[0].Lane)})

	ended := waitFor[RoundEndedEvent](t, sess, nil)
	assert.Equal(t, 1, ended.Round)
	assert.Equal(t, room.SideP2, ended.Winner)
	assert.False(t, ended.Advancing)

	r, err := d.bob.Get(ctx, d.code)
	require.NoError(t, err)
	assert.Equal(t, room.Scores{P1: 0, P2: 1}, r.Scores)
	assert.False(t, r.Players.P1.Alive)

	// Bob walks away mid-match and hands it to alice.
	require.NoError(t, d.bob.Leave(ctx, d.code, room.SideP2))
	final := waitFor[MatchEndedEvent](t, sess, nil).Result
	assert.Equal(t, room.SideP1, final.Winner)
	assert.Equal(t, room.ReasonLeft, final.Reason)
	require.NoError(t, waitErr(t, errc))

	// Both slots left: the room is gone.
	_, err = d.bob.Get(ctx, d.code)
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestGhostAndForfeitOnSilence(t *testing.T) {
	cfg := testConfig()
	cfg.Room.ForfeitAfterMs = 300
	d := newDuel(t, cfg)
	ctx := ctxT(t)
	m, sess, errc := d.runAlice(t, nil)

	m.Send(StartMsg{})
	waitFor[RoundStartedEvent](t, sess, nil)

	require.NoError(t, d.bob.PublishLane(ctx, d.code, room.SideP2, core.LaneRight))
	waitFor[FrameEvent](t, sess, func(e FrameEvent) bool {
		return e.Ghost != nil && *e.Ghost == core.LaneRight
	})

	// Bob never heartbeats again.
	final := waitFor[MatchEndedEvent](t, sess, nil).Result
	assert.Equal(t, room.SideP1, final.Winner)
	assert.Equal(t, room.ReasonForfeit, final.Reason)
	require.NoError(t, waitErr(t, errc))
}

func TestJoinerSeesClosedRoom(t *testing.T) {
	d := newDuel(t, testConfig())
	ctx := ctxT(t)

	sess := NewChannelSession("bob", 64)
	m := NewMatch(d.bob, d.code, room.SideP2, sess, Options{Config: d.cfg, FPS: 50, Logger: quiet})
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx) }()

	waitFor[RoomEvent](t, sess, nil)
	require.NoError(t, d.alice.Leave(ctx, d.code, room.SideP1))

	ev := waitFor[ErrorEvent](t, sess, nil)
	assert.ErrorIs(t, ev.Err, room.ErrRoomClosed)
	assert.ErrorIs(t, waitErr(t, errc), room.ErrRoomClosed)
}

func TestStartByJoinerIsRejected(t *testing.T) {
	d := newDuel(t, testConfig())
	ctx := ctxT(t)

	sess := NewChannelSession("bob", 64)
	m := NewMatch(d.bob, d.code, room.SideP2, sess, Options{Config: d.cfg, FPS: 50, Logger: quiet})
	go func() {
		//nolint:errcheck // Stopped by Leave below
		m.Run(ctx)
	}()

	m.Send(StartMsg{})
	ev := waitFor[ErrorEvent](t, sess, nil)
	assert.ErrorIs(t, ev.Err, room.ErrNotHost)

	m.Send(LeaveMsg{})
	<-m.Done()
	r, err := d.alice.Get(ctx, d.code)
	require.NoError(t, err)
	assert.True(t, r.Players.P2.Empty(), "leaving the lobby frees the slot")
}

func confirm() core.InputFrame {
	in := core.NewInputFrame()
	in.Set(core.ActionConfirm)
	return in
}

func steer(l core.Lane) core.InputFrame {
	in := core.NewInputFrame()
	if l == core.LaneRight {
		in.Set(core.ActionLaneRight)
	} else {
		in.Set(core.ActionLaneLeft)
	}
	return in
}
