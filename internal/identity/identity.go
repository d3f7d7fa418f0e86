// Package identity tells the game who is playing. Room slots, profiles and
// match history are keyed by Identity.ID.
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/laneduel/internal/config"
)

// ErrNoIdentity is returned when a provider cannot name the player.
var ErrNoIdentity = errors.New("identity: no identity available")

// Identity is a stable player id and a name to show to the opponent.
type Identity struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
}

// Provider resolves the current player.
type Provider interface {
	Current(ctx context.Context) (Identity, error)
}

// Static always returns the same identity.
type Static Identity

// Current returns the identity.
func (s Static) Current(context.Context) (Identity, error) {
	if s.ID == "" {
		return Identity{}, ErrNoIdentity
	}
	return Identity(s), nil
}

// LocalProvider keeps a generated identity in a YAML file, created on
// first use.
type LocalProvider struct {
	path string
	name string

	mu     sync.Mutex
	cached *Identity
}

// NewLocalProvider reads or creates the identity at path. A non-empty
// displayName replaces the stored one.
func NewLocalProvider(path, displayName string) *LocalProvider {
	return &LocalProvider{path: config.ExpandHome(path), name: strings.TrimSpace(displayName)}
}

// Current loads the identity, creating the file if needed.
func (p *LocalProvider) Current(context.Context) (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil {
		return *p.cached, nil
	}

	id, err := p.load()
	if errors.Is(err, os.ErrNotExist) {
		id = Identity{ID: uuid.NewString(), DisplayName: defaultName()}
	} else if err != nil {
		return Identity{}, err
	}

	dirty := errors.Is(err, os.ErrNotExist)
	if id.ID == "" {
		id.ID = uuid.NewString()
		dirty = true
	}
	if p.name != "" && p.name != id.DisplayName {
		id.DisplayName = p.name
		dirty = true
	}
	if dirty {
		if err := p.save(id); err != nil {
			return Identity{}, err
		}
	}
	p.cached = &id
	return id, nil
}

func (p *LocalProvider) load() (Identity, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return Identity{}, err
	}
	var id Identity
	if err := yaml.Unmarshal(data, &id); err != nil {
		return Identity{}, fmt.Errorf("identity: cannot parse %s: %w", p.path, err)
	}
	return id, nil
}

func (p *LocalProvider) save(id Identity) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("identity: cannot create directory: %w", err)
	}
	data, err := yaml.Marshal(id)
	if err != nil {
		return fmt.Errorf("identity: cannot encode: %w", err)
	}
	if err := os.WriteFile(p.path, data, 0o600); err != nil {
		return fmt.Errorf("identity: cannot write %s: %w", p.path, err)
	}
	return nil
}

func defaultName() string {
	for _, key := range []string{"LANEDUEL_NAME", "USER", "USERNAME"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return "Player"
}
