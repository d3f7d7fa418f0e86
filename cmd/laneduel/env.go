package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/vovakirdan/laneduel/internal/config"
	"github.com/vovakirdan/laneduel/internal/core"
	"github.com/vovakirdan/laneduel/internal/docstore"
	"github.com/vovakirdan/laneduel/internal/games/lanes"
	"github.com/vovakirdan/laneduel/internal/identity"
	"github.com/vovakirdan/laneduel/internal/multiplayer"
	"github.com/vovakirdan/laneduel/internal/platform/tui"
	"github.com/vovakirdan/laneduel/internal/storage"
)

var (
	flagFirebaseToken   string
	flagFirebaseProject string
	flagFirebaseCreds   string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagFirebaseToken, "firebase-token", "", "Sign in with a Firebase ID token instead of the local identity")
	pf.StringVar(&flagFirebaseProject, "firebase-project", "", "Firebase project that issued --firebase-token")
	pf.StringVar(&flagFirebaseCreds, "firebase-credentials", "", "Service account JSON for verifying --firebase-token")
}

// loadGameConfig loads the YAML config and points the registered modes at
// the same file.
func loadGameConfig() config.Config {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		fail("%v", err)
	}
	lanes.SetConfigPath(flagConfig)
	return cfg
}

// newLogger logs to stderr, or to the configured log file while a full
// screen TUI owns the terminal.
func newLogger(cfg config.Config, toFile bool, prefix string) (*log.Logger, func()) {
	var (
		w       io.Writer = os.Stderr
		cleanup           = func() {}
	)
	if toFile {
		path := config.ExpandHome(cfg.Store.LogPath)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
				w = f
				cleanup = func() {
					//nolint:errcheck // Best effort on exit
					f.Close()
				}
			} else {
				w = io.Discard
			}
		} else {
			w = io.Discard
		}
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          prefix,
	})
	level, err := log.ParseLevel(flagLogLevel)
	if err != nil {
		logger.Warn("unknown log level, using info", "level", flagLogLevel)
		level = log.InfoLevel
	}
	logger.SetLevel(level)
	return logger, cleanup
}

func runtimeConfig() core.RuntimeConfig {
	rc := core.DefaultConfig()
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		rc.ScreenW = w
		rc.ScreenH = h
	}
	rc.TickRate = flagFPS
	rc.Seed = flagSeed
	return rc
}

// openDB opens the progression database. Failure is not fatal: the game
// still runs, it just records nothing.
func openDB(ctx context.Context, cfg config.Config, logger *log.Logger) storage.DB {
	dsn := flagDB
	if dsn == "" {
		dsn = cfg.Store.DBPath
	}
	db, err := storage.OpenDSN(ctx, dsn)
	if err != nil {
		logger.Warn("could not open progression database", "dsn", dsn, "error", err)
		fmt.Fprintf(os.Stderr, "Warning: could not open progression database: %v\n", err)
		return nil
	}
	return db
}

func openRooms(ctx context.Context, cfg config.Config, logger *log.Logger) (docstore.Store, string, error) {
	url := flagRooms
	if url == "" {
		url = cfg.Store.RoomsURL
	}
	store, err := docstore.Open(ctx, url, docstore.Options{
		SubscribeBuffer: cfg.Room.SubscribeBuffer,
		PollInterval:    config.Ms(cfg.Room.PollIntervalMs),
		MaxAttempts:     cfg.Room.TransactAttempts,
		Logger:          logger.WithPrefix("rooms"),
	})
	return store, url, err
}

func currentIdentity(ctx context.Context, cfg config.Config) (identity.Identity, error) {
	var provider identity.Provider
	if flagFirebaseToken != "" {
		verifier, err := identity.NewFirebaseVerifier(ctx, flagFirebaseProject, flagFirebaseCreds)
		if err != nil {
			return identity.Identity{}, err
		}
		provider = identity.NewFirebaseProvider(verifier, flagFirebaseToken)
	} else {
		provider = identity.NewLocalProvider(cfg.Store.IdentityPath, flagName)
	}
	return provider.Current(ctx)
}

// localEnv assembles the environment of a terminal session on this machine.
// The returned cleanup closes whatever was opened.
func localEnv(ctx context.Context, withRooms bool) (tui.Env, func()) {
	cfg := loadGameConfig()
	logger, closeLog := newLogger(cfg, true, "laneduel")

	who, err := currentIdentity(ctx, cfg)
	if err != nil {
		closeLog()
		fail("cannot determine identity: %v", err)
	}

	env := tui.Env{
		Game:    cfg,
		Runtime: runtimeConfig(),
		Player:  who,
		Session: multiplayer.SessionID("local-" + uuid.NewString()),
		Logger:  logger,
	}
	closers := []func(){closeLog}

	if db := openDB(ctx, cfg, logger); db != nil {
		env.DB = db
		closers = append(closers, func() {
			//nolint:errcheck // Closing on exit
			db.Close()
		})
	}

	if withRooms {
		rooms, url, err := openRooms(ctx, cfg, logger)
		if err != nil {
			logger.Warn("duels disabled", "rooms", url, "error", err)
			fmt.Fprintf(os.Stderr, "Warning: duels disabled: %v\n", err)
		} else {
			coord := multiplayer.NewCoordinator(rooms, multiplayer.CoordinatorConfig{
				Game:   cfg,
				FPS:    flagFPS,
				Logger: logger.WithPrefix("duel"),
			})
			if env.DB != nil {
				coord.SetResultSaver(env.DB)
			}
			env.Coordinator = coord
			closers = append(closers, func() {
				coord.Stop()
				//nolint:errcheck // Closing on exit
				rooms.Close()
			})
		}
	}

	logger.Info("session starting", "player", who.DisplayName, "id", who.ID)
	return env, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}
