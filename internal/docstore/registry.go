package docstore

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Options are passed to drivers when a store is opened.
type Options struct {
	// SubscribeBuffer is the per-subscription snapshot buffer.
	SubscribeBuffer int
	// PollInterval is used by drivers that discover changes by polling.
	PollInterval time.Duration
	// MaxAttempts bounds transaction retries.
	MaxAttempts int
	// Logger receives driver diagnostics. Nil means log.Default().
	Logger *log.Logger
}

// Log returns the configured logger or the default one.
func (o Options) Log() *log.Logger {
	if o.Logger == nil {
		return log.Default()
	}
	return o.Logger
}

// Opener opens a store for a parsed URL.
type Opener func(ctx context.Context, u *url.URL, opts Options) (Store, error)

var (
	drivers   = make(map[string]Opener)
	driverDoc = make(map[string]string)
	mu        sync.RWMutex
)

// Register adds a driver for a URL scheme. Drivers call it from init().
// Panics if the scheme is already registered.
func Register(scheme, summary string, open Opener) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := drivers[scheme]; exists {
		panic(fmt.Sprintf("docstore: driver %q already registered", scheme))
	}
	drivers[scheme] = open
	driverDoc[scheme] = summary
}

// DriverInfo describes a registered driver.
type DriverInfo struct {
	Scheme  string
	Summary string
}

// Drivers returns the registered drivers sorted by scheme.
func Drivers() []DriverInfo {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]DriverInfo, 0, len(drivers))
	for scheme := range drivers {
		out = append(out, DriverInfo{Scheme: scheme, Summary: driverDoc[scheme]})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Scheme < out[j].Scheme
	})
	return out
}

// Open parses rawURL and opens a store with the matching driver.
func Open(ctx context.Context, rawURL string, opts Options) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("docstore: invalid store url %q: %w", rawURL, err)
	}

	mu.RLock()
	open, ok := drivers[u.Scheme]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("docstore: no driver for scheme %q", u.Scheme)
	}

	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	store, err := open(ctx, u, opts)
	if err != nil {
		return nil, fmt.Errorf("docstore: open %s: %w", u.Scheme, err)
	}
	opts.Log().Debug("store opened", "scheme", u.Scheme, "host", u.Host)
	return store, nil
}
