package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/laneduel/internal/config"
	"github.com/vovakirdan/laneduel/internal/core"
	"github.com/vovakirdan/laneduel/internal/docstore"
	"github.com/vovakirdan/laneduel/internal/rng"
)

const createAttempts = 5

var errCodeTaken = errors.New("room: code taken")

// Player identifies the local client.
type Player struct {
	Identity    string
	DisplayName string
}

// Options configure a Client. Zero values fall back to the defaults.
type Options struct {
	Room   config.RoomConfig
	Lives  int
	Logger *log.Logger

	// Course is the fingerprint of the local course settings. Empty means
	// the defaults.
	Course string

	Now  func() time.Time
	Seed func() uint32
	Code func() string
}

// Client performs room operations for one player.
type Client struct {
	store  docstore.Store
	me     Player
	cfg    config.RoomConfig
	lives  int
	course string
	log    *log.Logger
	now    func() time.Time
	seed   func() uint32
	code   func() string

	alive liveness
}

// NewClient creates a client acting as me.
func NewClient(store docstore.Store, me Player, opts Options) *Client {
	defaults := config.Default()
	if opts.Room.BestOf == 0 {
		opts.Room = defaults.Room
	}
	if opts.Lives == 0 {
		opts.Lives = defaults.Run.Lives
	}
	c := &Client{
		store:  store,
		me:     me,
		cfg:    opts.Room,
		lives:  opts.Lives,
		course: opts.Course,
		log:    opts.Logger,
		now:    opts.Now,
		seed:   opts.Seed,
		code:   opts.Code,
	}
	if c.course == "" {
		c.course = defaults.CourseFingerprint()
	}
	if c.log == nil {
		c.log = log.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.seed == nil {
		c.seed = rng.EntropySeed
	}
	if c.code == nil {
		c.code = func() string { return RandomCode(c.cfg.CodeLength) }
	}
	return c
}

// Me returns the local player.
func (c *Client) Me() Player {
	return c.me
}

// Store returns the underlying document store.
func (c *Client) Store() docstore.Store {
	return c.store
}

// RandomCode draws a join code from CodeAlphabet.
func RandomCode(n int) string {
	if n < 1 {
		n = 6
	}
	var b strings.Builder
	for range n {
		b.WriteByte(CodeAlphabet[rand.IntN(len(CodeAlphabet))]) //nolint:gosec // join codes are not secrets
	}
	return b.String()
}

// NormalizeCode trims and upper-cases a typed join code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (c *Client) nowMs() int64 {
	return c.now().UnixMilli()
}

func (c *Client) slot() Slot {
	return Slot{
		Identity:    c.me.Identity,
		DisplayName: c.me.DisplayName,
		Lane:        core.LaneLeft,
		Lives:       c.lives,
	}
}

// update runs fn as a transaction on the room. fn may run several times;
// the room from the committed attempt is returned.
func (c *Client) update(ctx context.Context, code string, fn func(r Room) (Room, bool, error)) (Room, error) {
	var out Room
	err := c.store.Transact(ctx, Key(code), func(cur docstore.Snapshot) (docstore.Write, error) {
		if !cur.Exists {
			return docstore.Keep(), ErrRoomNotFound
		}
		r, err := Decode(cur)
		if err != nil {
			return docstore.Keep(), err
		}
		next, changed, err := fn(r)
		if err != nil {
			return docstore.Keep(), err
		}
		out = next
		if !changed {
			return docstore.Keep(), nil
		}
		doc, err := next.Encode()
		if err != nil {
			return docstore.Keep(), err
		}
		return docstore.Put(doc), nil
	})
	return out, err
}

// Create opens a new lobby with the local player as host.
func (c *Client) Create(ctx context.Context, bestOf int) (Room, error) {
	if bestOf < 1 {
		bestOf = c.cfg.BestOf
	}
	if bestOf%2 == 0 {
		return Room{}, fmt.Errorf("room: best of %d must be odd", bestOf)
	}

	for range createAttempts {
		code := c.code()
		r := New(code, c.slot(), bestOf, c.nowMs())
		r.Course = c.course
		doc, err := r.Encode()
		if err != nil {
			return Room{}, err
		}
		err = c.store.Transact(ctx, Key(code), func(cur docstore.Snapshot) (docstore.Write, error) {
			if cur.Exists {
				return docstore.Keep(), errCodeTaken
			}
			return docstore.Put(doc), nil
		})
		if errors.Is(err, errCodeTaken) {
			c.log.Debug("room code taken, drawing another", "code", code)
			continue
		}
		if err != nil {
			return Room{}, fmt.Errorf("room: create: %w", err)
		}
		c.log.Info("room created", "code", code, "best_of", bestOf)
		return r, nil
	}
	return Room{}, errors.New("room: could not find a free code")
}

// Join takes the empty p2 slot. It fails if the room is missing, not in the
// lobby, or already full.
func (c *Client) Join(ctx context.Context, code string) (Room, Side, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Room{}, SideNone, ErrRoomNotFound
	}

	var side Side
	r, err := c.update(ctx, code, func(r Room) (Room, bool, error) {
		if err := r.CheckCourse(c.course); err != nil {
			return r, false, err
		}
		next, s, changed, err := r.Join(c.slot(), c.nowMs())
		side = s
		return next, changed, err
	})
	if err != nil {
		return Room{}, SideNone, err
	}
	c.log.Info("joined room", "code", code, "side", side)
	return r, side, nil
}

// Get reads the room once.
func (c *Client) Get(ctx context.Context, code string) (Room, error) {
	snap, err := c.store.Get(ctx, Key(code))
	if errors.Is(err, docstore.ErrNotFound) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, err
	}
	return Decode(snap)
}

// Start begins round one with a fresh seed. Host only.
func (c *Client) Start(ctx context.Context, code string) (Room, error) {
	seed := c.seed()
	return c.update(ctx, code, func(r Room) (Room, bool, error) {
		next, err := r.Start(r.SideOf(c.me.Identity), seed, c.nowMs())
		return next, err == nil, err
	})
}

// ReportLoss tells the room that side's run ended in round. It returns true
// if this call resolved the round and false if it was already resolved.
func (c *Client) ReportLoss(ctx context.Context, code string, side Side, round int) (bool, error) {
	var resolved bool
	_, err := c.update(ctx, code, func(r Room) (Room, bool, error) {
		next, ok := r.LoseRound(side, round, c.nowMs())
		resolved = ok
		return next, ok, nil
	})
	return resolved, err
}

// Advance leaves round_end: it ends the match if a side has the majority,
// otherwise it starts the next round (round winner only).
func (c *Client) Advance(ctx context.Context, code string, side Side, round int) (Room, error) {
	seed := c.seed()
	return c.update(ctx, code, func(r Room) (Room, bool, error) {
		return r.Advance(side, round, seed, c.nowMs())
	})
}

// ClaimForfeit ends the match in side's favour when the opponent has left
// or its heartbeat has not changed for ForfeitAfterMs of local time.
func (c *Client) ClaimForfeit(ctx context.Context, code string, side Side) (Room, error) {
	after := int64(c.cfg.ForfeitAfterMs)
	return c.update(ctx, code, func(r Room) (Room, bool, error) {
		now := c.nowMs()
		stale := c.alive.stale(code, r.Players.Get(side.Other()), now, after)
		next, err := r.Forfeit(side, now, stale)
		return next, err == nil, err
	})
}

// Observe notes the opponent's heartbeat in a room snapshot. Callers that
// watch the room feed every snapshot through it so staleness is measured
// from the first time a heartbeat value was seen locally.
func (c *Client) Observe(r Room, side Side) {
	c.alive.observe(r.Code, r.Players.Get(side.Other()), c.nowMs())
}

// OpponentStale reports whether the opponent of side has left or shown no
// heartbeat for ForfeitAfterMs of local time.
func (c *Client) OpponentStale(r Room, side Side) bool {
	opp := r.Players.Get(side.Other())
	return opp.Left || c.alive.stale(r.Code, opp, c.nowMs(), int64(c.cfg.ForfeitAfterMs))
}

// Leave gives up the slot. The last player out deletes the room.
func (c *Client) Leave(ctx context.Context, code string, side Side) error {
	err := c.store.Transact(ctx, Key(code), func(cur docstore.Snapshot) (docstore.Write, error) {
		if !cur.Exists {
			return docstore.Keep(), nil
		}
		r, err := Decode(cur)
		if err != nil {
			return docstore.Keep(), err
		}
		next, remove := r.Leave(side, c.nowMs())
		if remove {
			return docstore.Remove(), nil
		}
		doc, err := next.Encode()
		if err != nil {
			return docstore.Keep(), err
		}
		return docstore.Put(doc), nil
	})
	if err != nil {
		return fmt.Errorf("room: leave %s: %w", code, err)
	}
	c.alive.forget(code)
	c.log.Info("left room", "code", code, "side", side)
	return nil
}

// Per-side writes below are plain merges into players.<side>. They are
// best-effort and latest-write-wins.

func fieldPath(side Side, field string) string {
	return "players." + string(side) + "." + field
}

// PublishLane writes the local lane for the opponent's ghost.
func (c *Client) PublishLane(ctx context.Context, code string, side Side, lane core.Lane) error {
	return c.store.Merge(ctx, Key(code), map[string]any{
		fieldPath(side, "lane"):     lane.String(),
		fieldPath(side, "lastSeen"): c.nowMs(),
	})
}

// PublishLives writes the local lives and alive flag.
func (c *Client) PublishLives(ctx context.Context, code string, side Side, lives int, alive bool) error {
	return c.store.Merge(ctx, Key(code), map[string]any{
		fieldPath(side, "lives"):    lives,
		fieldPath(side, "alive"):    alive,
		fieldPath(side, "lastSeen"): c.nowMs(),
	})
}

// ResetSlot restores lane, lives and alive at the start of a round.
func (c *Client) ResetSlot(ctx context.Context, code string, side Side) error {
	return c.store.Merge(ctx, Key(code), map[string]any{
		fieldPath(side, "lane"):     core.LaneLeft.String(),
		fieldPath(side, "lives"):    c.lives,
		fieldPath(side, "alive"):    true,
		fieldPath(side, "lastSeen"): c.nowMs(),
	})
}

// Heartbeat refreshes lastSeen.
func (c *Client) Heartbeat(ctx context.Context, code string, side Side) error {
	return c.store.Merge(ctx, Key(code), map[string]any{
		fieldPath(side, "lastSeen"): c.nowMs(),
	})
}

// Watch subscribes to the room. The first update is the current state.
func (c *Client) Watch(ctx context.Context, code string) (*Feed, error) {
	if _, err := c.Get(ctx, code); err != nil {
		return nil, err
	}
	sub, err := c.store.Subscribe(ctx, Key(code))
	if err != nil {
		return nil, fmt.Errorf("room: watch %s: %w", code, err)
	}
	return NewFeed(ctx, sub, c.cfg.SubscribeBuffer), nil
}
