// Package progression records finished runs: the personal best and the coin
// balance earned from rewards. A failed submission never blocks play.
package progression

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/vovakirdan/laneduel/internal/games/lanes"
)

// ErrUnknownIdentity is returned for an empty identity.
var ErrUnknownIdentity = errors.New("progression: identity required")

// Profile is a player's persistent progress.
type Profile struct {
	Identity    string
	DisplayName string
	Best        int
	Balance     int
	Runs        int
	UpdatedAt   time.Time
}

// Report is the terminal report of one run.
type Report struct {
	RunID       string // unique per run; repeated submissions are ignored
	DisplayName string
	Mode        string
	Seed        uint32
	Score       int
	Reward      int
	Elapsed     time.Duration
}

// ReportFrom converts a run result into a report with a fresh run id.
func ReportFrom(mode, displayName string, res lanes.Result) Report {
	return Report{
		RunID:       uuid.NewString(),
		DisplayName: displayName,
		Mode:        mode,
		Seed:        res.Seed,
		Score:       res.FinalScore,
		Reward:      res.Reward,
		Elapsed:     res.Elapsed,
	}
}

// Store persists profiles.
type Store interface {
	// GetBest returns the personal best, 0 for an unknown player.
	GetBest(ctx context.Context, identity string) (int, error)
	// ApplyReport atomically raises the best if the score beats it and adds
	// the reward to the balance. Applying the same RunID twice is a no-op.
	ApplyReport(ctx context.Context, identity string, rep Report) (Profile, error)
}

// Reporter submits reports for one identity.
type Reporter struct {
	store    Store
	identity string
	timeout  time.Duration
	log      *log.Logger

	mu   sync.Mutex
	sent map[string]bool
}

// NewReporter creates a reporter. A nil store makes every submission a no-op.
func NewReporter(store Store, identity string, timeout time.Duration, logger *log.Logger) *Reporter {
	if logger == nil {
		logger = log.Default()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Reporter{
		store:    store,
		identity: identity,
		timeout:  timeout,
		log:      logger,
		sent:     make(map[string]bool),
	}
}

// Best returns the known personal best, or 0 when it cannot be read.
func (r *Reporter) Best(ctx context.Context) int {
	if r.store == nil || r.identity == "" {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	best, err := r.store.GetBest(ctx, r.identity)
	if err != nil {
		r.log.Warn("cannot read personal best", "identity", r.identity, "error", err)
		return 0
	}
	return best
}

// Submit makes one attempt to apply rep. Failures are logged and
// swallowed; ok is false when nothing was applied.
func (r *Reporter) Submit(ctx context.Context, rep Report) (Profile, bool) {
	if r.store == nil {
		return Profile{}, false
	}
	if r.identity == "" {
		r.log.Warn("run not recorded", "error", ErrUnknownIdentity)
		return Profile{}, false
	}

	r.mu.Lock()
	if rep.RunID == "" || r.sent[rep.RunID] {
		r.mu.Unlock()
		return Profile{}, false
	}
	r.sent[rep.RunID] = true
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	p, err := r.store.ApplyReport(ctx, r.identity, rep)
	if err != nil {
		r.log.Warn("cannot record run", "identity", r.identity, "score", rep.Score, "error", err)
		return Profile{}, false
	}
	r.log.Info("run recorded", "identity", r.identity, "score", rep.Score, "best", p.Best, "balance", p.Balance)
	return p, true
}
