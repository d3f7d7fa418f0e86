// Package sqlitestore keeps documents in a SQLite file. Several processes on
// one machine can share the file, which is enough for two local terminals
// to play a room without any server. Changes are discovered by polling.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/vovakirdan/laneduel/internal/config"
	"github.com/vovakirdan/laneduel/internal/docstore"
)

func init() {
	docstore.Register("sqlite", "SQLite file shared by local processes (polling)",
		func(ctx context.Context, u *url.URL, opts docstore.Options) (docstore.Store, error) {
			path := u.Path
			if u.Host != "" {
				// sqlite://~/x.db parses "~" as the host
				path = u.Host + u.Path
			}
			return Open(ctx, path, opts)
		})
}

const defaultPollInterval = 250 * time.Millisecond

// Store is a SQLite-backed document store.
type Store struct {
	db       *sql.DB
	attempts int
	buffer   int
	poll     time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	kicks   map[chan struct{}]struct{}
	closed  bool
	pollers sync.WaitGroup
}

var (
	_ docstore.Store     = (*Store)(nil)
	_ docstore.Versioned = (*Store)(nil)
)

// Open creates or opens the database at path and runs migrations.
func Open(ctx context.Context, path string, opts docstore.Options) (*Store, error) {
	path = config.ExpandHome(path)
	if path == "" {
		return nil, fmt.Errorf("sqlitestore: empty database path")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sqlitestore: cannot create directory %s: %w", dir, err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: cannot connect to database: %w", err)
	}

	s := &Store{
		db:       db,
		attempts: opts.MaxAttempts,
		buffer:   opts.SubscribeBuffer,
		poll:     opts.PollInterval,
		logger:   opts.Log(),
		kicks:    make(map[chan struct{}]struct{}),
	}
	if s.poll <= 0 {
		s.poll = defaultPollInterval
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data TEXT NOT NULL,
			version INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (collection, id)
		);
		CREATE TABLE IF NOT EXISTS document_seq (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			value INTEGER NOT NULL
		);
		INSERT OR IGNORE INTO document_seq (id, value) VALUES (1, 0);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close stops all pollers and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for k := range s.kicks {
		close(k)
	}
	s.kicks = nil
	s.mu.Unlock()

	s.pollers.Wait()
	return s.db.Close()
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) read(ctx context.Context, q querier, key docstore.Key) (docstore.Snapshot, error) {
	var (
		raw       string
		version   int64
		updatedAt int64
	)
	err := q.QueryRowContext(ctx,
		"SELECT data, version, updated_at FROM documents WHERE collection = ? AND id = ?",
		key.Collection, key.ID,
	).Scan(&raw, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Snapshot{Key: key}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("sqlitestore: cannot read %s: %w", key, err)
	}

	var data docstore.Doc
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return docstore.Snapshot{}, fmt.Errorf("sqlitestore: corrupt document %s: %w", key, err)
	}
	return docstore.Snapshot{
		Key:       key,
		Exists:    true,
		Data:      data,
		Version:   version,
		UpdatedAt: time.UnixMilli(updatedAt),
	}, nil
}

// Get returns the current document.
func (s *Store) Get(ctx context.Context, key docstore.Key) (docstore.Snapshot, error) {
	if s.isClosed() {
		return docstore.Snapshot{}, docstore.ErrClosed
	}
	return s.read(ctx, s.db, key)
}

// Set replaces the document.
func (s *Store) Set(ctx context.Context, key docstore.Key, data docstore.Doc) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.write(ctx, tx, key, data)
	})
}

// Merge writes dotted fields into an existing document.
func (s *Store) Merge(ctx context.Context, key docstore.Key, fields map[string]any) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.read(ctx, tx, key)
		if err != nil {
			return err
		}
		next, err := docstore.ApplyMerge(cur.Data, fields)
		if err != nil {
			return err
		}
		return s.write(ctx, tx, key, next)
	})
}

// Delete removes the document.
func (s *Store) Delete(ctx context.Context, key docstore.Key) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"DELETE FROM documents WHERE collection = ? AND id = ?", key.Collection, key.ID)
		if err != nil {
			return fmt.Errorf("sqlitestore: cannot delete %s: %w", key, err)
		}
		return nil
	})
}

// CompareAndSwap applies w if the stored version still equals version.
func (s *Store) CompareAndSwap(ctx context.Context, key docstore.Key, version int64, w docstore.Write) (docstore.Snapshot, error) {
	var out docstore.Snapshot
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.read(ctx, tx, key)
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		if cur.Version != version {
			out = cur
			return docstore.ErrConflict
		}
		switch w.Op {
		case docstore.OpSet:
			if err := s.write(ctx, tx, key, w.Data); err != nil {
				return err
			}
		case docstore.OpDelete:
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM documents WHERE collection = ? AND id = ?", key.Collection, key.ID); err != nil {
				return fmt.Errorf("sqlitestore: cannot delete %s: %w", key, err)
			}
		}
		out, err = s.read(ctx, tx, key)
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		return err
	})
	return out, err
}

// Transact runs fn with optimistic retries.
func (s *Store) Transact(ctx context.Context, key docstore.Key, fn docstore.TxFunc) error {
	if s.isClosed() {
		return docstore.ErrClosed
	}
	return docstore.TransactOptimistic(ctx, s, key, s.attempts, fn)
}

func (s *Store) write(ctx context.Context, tx *sql.Tx, key docstore.Key, data docstore.Doc) error {
	doc, err := docstore.Normalize(data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("sqlitestore: cannot encode %s: %w", key, err)
	}

	var version int64
	if err := tx.QueryRowContext(ctx,
		"UPDATE document_seq SET value = value + 1 WHERE id = 1 RETURNING value",
	).Scan(&version); err != nil {
		return fmt.Errorf("sqlitestore: cannot allocate version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, version, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = excluded.data, version = excluded.version, updated_at = excluded.updated_at`,
		key.Collection, key.ID, string(raw), version, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: cannot write %s: %w", key, err)
	}
	return nil
}

// inTx runs fn in a transaction and wakes the pollers after a commit.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.isClosed() {
		return docstore.ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: cannot begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		//nolint:errcheck // Rollback after a failed body
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: cannot commit: %w", err)
	}
	s.kick()
	return nil
}

func (s *Store) kick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.kicks {
		select {
		case k <- struct{}{}:
		default:
		}
	}
}

// Subscribe polls the document and publishes each new version.
func (s *Store) Subscribe(ctx context.Context, key docstore.Key) (*docstore.Subscription, error) {
	kick := make(chan struct{}, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, docstore.ErrClosed
	}
	s.kicks[kick] = struct{}{}
	s.pollers.Add(1)
	s.mu.Unlock()

	stop := make(chan struct{})
	sub := docstore.NewSubscription(key, s.buffer, func() { close(stop) })
	sub.CloseWith(ctx)

	go func() {
		defer s.pollers.Done()
		defer s.forget(kick)
		s.pollLoop(ctx, sub, kick, stop)
	}()
	return sub, nil
}

func (s *Store) forget(kick chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kicks, kick)
}

func (s *Store) pollLoop(ctx context.Context, sub *docstore.Subscription, kick <-chan struct{}, stop <-chan struct{}) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	first := true
	var lastVersion int64
	var lastExists bool

	for {
		snap, err := s.read(ctx, s.db, sub.Key())
		switch {
		case err == nil, errors.Is(err, docstore.ErrNotFound):
			if first || snap.Exists != lastExists || snap.Version != lastVersion {
				sub.Publish(snap)
				first = false
				lastExists = snap.Exists
				lastVersion = snap.Version
			}
		case ctx.Err() != nil:
			return
		default:
			s.logger.Warn("sqlitestore: poll failed", "key", sub.Key().String(), "error", err)
		}

		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case _, ok := <-kick:
			if !ok {
				sub.Fail(docstore.ErrClosed)
				return
			}
		case <-ticker.C:
		}
	}
}
