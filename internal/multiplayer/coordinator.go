package multiplayer

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/laneduel/internal/config"
	"github.com/vovakirdan/laneduel/internal/docstore"
	"github.com/vovakirdan/laneduel/internal/room"
)

// ErrAlreadyInMatch is returned when a session hosts or joins a second room.
var ErrAlreadyInMatch = errors.New("already in a match")

// CoordinatorConfig holds configuration for the coordinator.
type CoordinatorConfig struct {
	Game   config.Config
	FPS    int
	Logger *log.Logger
	Saver  MatchResultSaver // optional
}

// Coordinator starts and tracks the matches of many local sessions, e.g.
// every SSH connection of one server, against one room store.
type Coordinator struct {
	store  docstore.Store
	config CoordinatorConfig
	log    *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	matches map[SessionID]*Match
}

// NewCoordinator creates a coordinator over the room store.
func NewCoordinator(store docstore.Store, cfg CoordinatorConfig) *Coordinator {
	if cfg.Game.Room.BestOf == 0 {
		cfg.Game = config.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:   store,
		config:  cfg,
		log:     cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
		matches: make(map[SessionID]*Match),
	}
}

// SetResultSaver sets the optional match result saver for new matches.
func (c *Coordinator) SetResultSaver(saver MatchResultSaver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.Saver = saver
}

// Client returns a room client acting as player.
func (c *Coordinator) Client(player room.Player) *room.Client {
	return room.NewClient(c.store, player, room.Options{
		Room:   c.config.Game.Room,
		Lives:  c.config.Game.Run.Lives,
		Course: c.config.Game.CourseFingerprint(),
		Logger: c.log,
	})
}

// Host creates a room and starts the session's match as p1.
func (c *Coordinator) Host(ctx context.Context, sess SessionHandle, player room.Player, bestOf int) (*Match, room.Room, error) {
	if c.busy(sess.ID()) {
		return nil, room.Room{}, ErrAlreadyInMatch
	}
	client := c.Client(player)
	r, err := client.Create(ctx, bestOf)
	if err != nil {
		return nil, room.Room{}, err
	}
	return c.start(sess, client, r.Code, room.SideP1), r, nil
}

// Join takes p2 in the room with code and starts the session's match.
func (c *Coordinator) Join(ctx context.Context, sess SessionHandle, player room.Player, code string) (*Match, room.Room, error) {
	if c.busy(sess.ID()) {
		return nil, room.Room{}, ErrAlreadyInMatch
	}
	client := c.Client(player)
	r, side, err := client.Join(ctx, code)
	if err != nil {
		return nil, room.Room{}, err
	}
	return c.start(sess, client, r.Code, side), r, nil
}

func (c *Coordinator) busy(id SessionID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.matches[id]
	return ok
}

func (c *Coordinator) start(sess SessionHandle, client *room.Client, code string, side room.Side) *Match {
	c.mu.Lock()
	m := NewMatch(client, code, side, sess, Options{
		Config: c.config.Game,
		FPS:    c.config.FPS,
		Logger: c.log,
		Saver:  c.config.Saver,
	})
	c.matches[sess.ID()] = m
	c.mu.Unlock()

	c.wg.Go(func() {
		err := m.Run(c.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn("match stopped", "code", code, "session", string(sess.ID()), "error", err)
		}
		c.mu.Lock()
		if c.matches[sess.ID()] == m {
			delete(c.matches, sess.ID())
		}
		c.mu.Unlock()
	})
	return m
}

// Match returns the running match of a session.
func (c *Coordinator) Match(id SessionID) (*Match, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.matches[id]
	return m, ok
}

// SessionDisconnected makes the session's match leave its room.
func (c *Coordinator) SessionDisconnected(id SessionID) {
	if m, ok := c.Match(id); ok {
		m.Send(LeaveMsg{})
	}
}

// MatchCount returns the number of running matches.
func (c *Coordinator) MatchCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.matches)
}

// Stop ends every match, leaving its room, and waits for them.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}
