package room

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/laneduel/internal/config"
	"github.com/vovakirdan/laneduel/internal/core"
	"github.com/vovakirdan/laneduel/internal/docstore"
	"github.com/vovakirdan/laneduel/internal/docstore/memstore"
)

type fixture struct {
	store docstore.Store
	clock atomic.Int64 // unix ms shared by all clients
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memstore.New(docstore.Options{SubscribeBuffer: 8})}
	f.clock.Store(1_700_000_000_000)
	t.Cleanup(func() {
		//nolint:errcheck // Test teardown
		f.store.Close()
	})
	return f
}

func (f *fixture) client(id string) *Client {
	return f.skewedClient(id, 0)
}

// skewedClient runs its own clock skewMs away from the shared one.
func (f *fixture) skewedClient(id string, skewMs int64) *Client {
	cfg := config.Default().Room
	var seed atomic.Uint32
	return NewClient(f.store, Player{Identity: id, DisplayName: strings.ToUpper(id)}, Options{
		Room:   cfg,
		Lives:  3,
		Logger: log.NewWithOptions(&strings.Builder{}, log.Options{}),
		Now:    func() time.Time { return time.UnixMilli(f.clock.Load() + skewMs) },
		Seed:   func() uint32 { return seed.Add(1000) },
		Code:   func() string { return "ABC234" },
	})
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCreateJoinAndRejectThird(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)
	alice, bob, carol := f.client("alice"), f.client("bob"), f.client("carol")

	r, err := alice.Create(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "ABC234", r.Code)
	assert.Equal(t, StatusLobby, r.Status)
	assert.True(t, r.Players.P2.Empty())

	_, side, err := bob.Join(ctx, " abc234 ")
	require.NoError(t, err)
	assert.Equal(t, SideP2, side)

	got, err := alice.Get(ctx, "ABC234")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Players.P2.Identity)

	_, _, err = carol.Join(ctx, "ABC234")
	assert.ErrorIs(t, err, ErrRoomFull)

	_, _, err = alice.Join(ctx, "ABC234")
	assert.ErrorIs(t, err, ErrAlreadyInRoom)

	_, _, err = carol.Join(ctx, "NOPE23")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	after, err := alice.Get(ctx, "ABC234")
	require.NoError(t, err)
	assert.Equal(t, "bob", after.Players.P2.Identity, "occupant must not be overwritten")
}

func TestCreateRetriesTakenCode(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)

	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	next := 0
	c := NewClient(f.store, Player{Identity: "x"}, Options{Code: func() string {
		code := codes[next]
		next++
		return code
	}, Logger: log.NewWithOptions(&strings.Builder{}, log.Options{})})

	first, err := c.Create(ctx, 1)
	require.NoError(t, err)
	second, err := c.Create(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first.Code)
	assert.Equal(t, "BBBBBB", second.Code)

	_, err = c.Create(ctx, 2)
	assert.Error(t, err, "even best-of is rejected")
}

func TestJoinAfterStartIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)
	alice, bob := f.client("alice"), f.client("bob")

	_, err := alice.Create(ctx, 3)
	require.NoError(t, err)
	_, err = alice.Start(ctx, "ABC234")
	assert.ErrorIs(t, err, ErrWaitingForOpponent)

	_, _, err = bob.Join(ctx, "ABC234")
	require.NoError(t, err)
	_, err = bob.Start(ctx, "ABC234")
	assert.ErrorIs(t, err, ErrNotHost)

	r, err := alice.Start(ctx, "ABC234")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, r.Status)
	assert.NotZero(t, r.Seed)

	_, _, err = f.client("carol").Join(ctx, "ABC234")
	assert.ErrorIs(t, err, ErrNotJoinable)
}

func TestJoinRejectsDifferentCourse(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)
	alice := f.client("alice")

	r, err := alice.Create(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, config.Default().CourseFingerprint(), r.Course)

	wide := config.Default()
	wide.Track.Width = 800
	bob := NewClient(f.store, Player{Identity: "bob", DisplayName: "BOB"}, Options{
		Course: wide.CourseFingerprint(),
		Logger: log.NewWithOptions(&strings.Builder{}, log.Options{}),
		Now:    func() time.Time { return time.UnixMilli(f.clock.Load()) },
	})
	_, _, err = bob.Join(ctx, "ABC234")
	require.ErrorIs(t, err, ErrCourseMismatch)

	r, err = alice.Get(ctx, "ABC234")
	require.NoError(t, err)
	assert.True(t, r.Players.P2.Empty())

	_, side, err := f.client("carol").Join(ctx, "ABC234")
	require.NoError(t, err)
	assert.Equal(t, SideP2, side)
}

func startedRoom(t *testing.T, f *fixture) (*Client, *Client) {
	t.Helper()
	ctx := ctxT(t)
	alice, bob := f.client("alice"), f.client("bob")
	_, err := alice.Create(ctx, 3)
	require.NoError(t, err)
	_, _, err = bob.Join(ctx, "ABC234")
	require.NoError(t, err)
	_, err = alice.Start(ctx, "ABC234")
	require.NoError(t, err)
	return alice, bob
}

func TestRacingLossReportsResolveOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		alice, bob := startedRoom(t, f)
		ctx := ctxT(t)

		var resolved atomic.Int32
		g, gctx := errgroup.WithContext(ctx)
		for _, p := range []struct {
			c    *Client
			side Side
		}{{alice, SideP1}, {bob, SideP2}} {
			g.Go(func() error {
				ok, err := p.c.ReportLoss(gctx, "ABC234", p.side, 1)
				if ok {
					resolved.Add(1)
				}
				return err
			})
		}
		require.NoError(t, g.Wait())

		r, err := alice.Get(ctx, "ABC234")
		require.NoError(t, err)
		assert.Equal(t, int32(1), resolved.Load())
		assert.Equal(t, StatusRoundEnd, r.Status)
		assert.Equal(t, 1, r.Scores.P1+r.Scores.P2, "exactly one round win recorded")
		assert.Equal(t, 1, r.Scores.Get(r.Winner))
	}
}

func TestMatchToTwoZero(t *testing.T) {
	f := newFixture(t)
	alice, bob := startedRoom(t, f)
	ctx := ctxT(t)

	// bob loses round 1; only alice may start round 2
	_, err := bob.ReportLoss(ctx, "ABC234", SideP2, 1)
	require.NoError(t, err)
	_, err = bob.Advance(ctx, "ABC234", SideP2, 1)
	assert.ErrorIs(t, err, ErrNotRoundWinner)

	before, err := alice.Get(ctx, "ABC234")
	require.NoError(t, err)
	r, err := alice.Advance(ctx, "ABC234", SideP1, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, r.Status)
	assert.Equal(t, 2, r.Round)
	assert.NotEqual(t, before.Seed, r.Seed, "each round gets a fresh seed")

	_, err = bob.ReportLoss(ctx, "ABC234", SideP2, 2)
	require.NoError(t, err)
	r, err = bob.Advance(ctx, "ABC234", SideP2, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusMatchEnd, r.Status)
	assert.Equal(t, SideP1, r.Winner)
	assert.Equal(t, Scores{P1: 2, P2: 0}, r.Scores)
	assert.Equal(t, 2, r.Round, "no third round")
}

func TestPublishOwnSubtree(t *testing.T) {
	f := newFixture(t)
	alice, bob := startedRoom(t, f)
	ctx := ctxT(t)

	require.NoError(t, bob.PublishLane(ctx, "ABC234", SideP2, core.LaneRight))
	require.NoError(t, bob.PublishLives(ctx, "ABC234", SideP2, 2, true))

	r, err := alice.Get(ctx, "ABC234")
	require.NoError(t, err)
	assert.Equal(t, core.LaneRight, r.Players.P2.Lane)
	assert.Equal(t, 2, r.Players.P2.Lives)
	assert.Equal(t, core.LaneLeft, r.Players.P1.Lane)
	assert.Equal(t, StatusRunning, r.Status)

	require.NoError(t, bob.ResetSlot(ctx, "ABC234", SideP2))
	r, err = alice.Get(ctx, "ABC234")
	require.NoError(t, err)
	assert.Equal(t, core.LaneLeft, r.Players.P2.Lane)
	assert.Equal(t, 3, r.Players.P2.Lives)
}

func TestForfeitAfterSilence(t *testing.T) {
	f := newFixture(t)
	alice, _ := startedRoom(t, f)
	ctx := ctxT(t)

	_, err := alice.ClaimForfeit(ctx, "ABC234", SideP1)
	assert.ErrorIs(t, err, ErrOpponentActive)

	f.clock.Add(int64(config.Default().Room.ForfeitAfterMs) + 1)
	require.NoError(t, alice.Heartbeat(ctx, "ABC234", SideP1))

	r, err := alice.ClaimForfeit(ctx, "ABC234", SideP1)
	require.NoError(t, err)
	assert.Equal(t, StatusMatchEnd, r.Status)
	assert.Equal(t, SideP1, r.Winner)
	assert.Equal(t, ReasonForfeit, r.Reason)
}

func TestForfeitIgnoresClockSkew(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)
	alice := f.client("alice")
	bob := f.skewedClient("bob", -20_000) // well beyond ForfeitAfterMs
	after := int64(config.Default().Room.ForfeitAfterMs)

	r, err := alice.Create(ctx, 3)
	require.NoError(t, err)
	_, _, err = bob.Join(ctx, r.Code)
	require.NoError(t, err)
	_, err = alice.Start(ctx, r.Code)
	require.NoError(t, err)

	require.NoError(t, bob.Heartbeat(ctx, r.Code, SideP2))
	_, err = alice.ClaimForfeit(ctx, "ABC234", SideP1)
	assert.ErrorIs(t, err, ErrOpponentActive)
	cur, err := alice.Get(ctx, "ABC234")
	require.NoError(t, err)
	assert.False(t, alice.OpponentStale(cur, SideP1))

	// Bob keeps beating: never stale, however far his stamps lag.
	for range 3 {
		f.clock.Add(after / 2)
		require.NoError(t, bob.Heartbeat(ctx, "ABC234", SideP2))
		_, err = alice.ClaimForfeit(ctx, "ABC234", SideP1)
		assert.ErrorIs(t, err, ErrOpponentActive)
	}

	// Bob goes silent for longer than the window on Alice's clock.
	f.clock.Add(after + 1)
	r, err = alice.ClaimForfeit(ctx, "ABC234", SideP1)
	require.NoError(t, err)
	assert.Equal(t, StatusMatchEnd, r.Status)
	assert.Equal(t, SideP1, r.Winner)
	assert.Equal(t, ReasonForfeit, r.Reason)
}

func TestLeaveDeletesWhenEmpty(t *testing.T) {
	f := newFixture(t)
	alice, bob := startedRoom(t, f)
	ctx := ctxT(t)

	require.NoError(t, bob.Leave(ctx, "ABC234", SideP2))
	r, err := alice.Get(ctx, "ABC234")
	require.NoError(t, err)
	assert.Equal(t, StatusMatchEnd, r.Status)
	assert.Equal(t, ReasonLeft, r.Reason)

	require.NoError(t, alice.Leave(ctx, "ABC234", SideP1))
	_, err = alice.Get(ctx, "ABC234")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	require.NoError(t, alice.Leave(ctx, "ABC234", SideP1), "leaving twice is harmless")
}

func TestFeed(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)
	alice, bob := f.client("alice"), f.client("bob")

	_, err := alice.Watch(ctx, "ABC234")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = alice.Create(ctx, 3)
	require.NoError(t, err)
	feed, err := alice.Watch(ctx, "ABC234")
	require.NoError(t, err)
	defer feed.Close()

	first, ok := feed.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, StatusLobby, first.Status)

	_, _, err = bob.Join(ctx, "ABC234")
	require.NoError(t, err)
	_, err = alice.Start(ctx, "ABC234")
	require.NoError(t, err)

	var last Room
	for r := range feed.All(ctx) {
		assert.Greater(t, r.Version, first.Version)
		last = r
		if r.Status == StatusRunning {
			break
		}
	}
	assert.Equal(t, StatusRunning, last.Status)
	assert.Equal(t, "bob", last.Players.P2.Identity)

	// breaking out of All closed the feed
	_, ok = feed.Next(ctx)
	assert.False(t, ok)
}

func TestFeedEndsWhenRoomDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := ctxT(t)
	alice := f.client("alice")

	_, err := alice.Create(ctx, 1)
	require.NoError(t, err)
	feed, err := alice.Watch(ctx, "ABC234")
	require.NoError(t, err)
	_, ok := feed.Next(ctx)
	require.True(t, ok)

	require.NoError(t, alice.Leave(ctx, "ABC234", SideP1))
	for range feed.All(ctx) {
	}
	assert.ErrorIs(t, feed.Err(), ErrRoomClosed)
}
