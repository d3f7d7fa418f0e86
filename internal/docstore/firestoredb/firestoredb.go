// Package firestoredb stores room documents in Cloud Firestore, the store
// the mobile clients rendezvous through. FIRESTORE_EMULATOR_HOST is honoured
// by the client library.
package firestoredb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"github.com/charmbracelet/log"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vovakirdan/laneduel/internal/docstore"
)

func init() {
	docstore.Register("firestore", "Cloud Firestore (firestore://project?credentials=key.json)",
		func(ctx context.Context, u *url.URL, opts docstore.Options) (docstore.Store, error) {
			return Open(ctx, Config{
				ProjectID:       u.Host,
				CredentialsFile: u.Query().Get("credentials"),
			}, opts)
		})
}

// Config selects the Firebase project.
type Config struct {
	ProjectID       string
	CredentialsFile string
}

// Store wraps a Firestore client.
type Store struct {
	client   *firestore.Client
	attempts int
	buffer   int
	logger   *log.Logger
}

var _ docstore.Store = (*Store)(nil)

// Open initialises the Firebase app and its Firestore client.
func Open(ctx context.Context, cfg Config, opts docstore.Options) (*Store, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestoredb: project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("firestoredb: error initializing app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestoredb: error getting Firestore client: %w", err)
	}

	return &Store{
		client:   client,
		attempts: opts.MaxAttempts,
		buffer:   opts.SubscribeBuffer,
		logger:   opts.Log(),
	}, nil
}

func (s *Store) ref(key docstore.Key) *firestore.DocumentRef {
	return s.client.Collection(key.Collection).Doc(key.ID)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// toSnapshot converts a Firestore snapshot. The update time stands in for
// the version.
func toSnapshot(key docstore.Key, snap *firestore.DocumentSnapshot) (docstore.Snapshot, error) {
	if snap == nil || !snap.Exists() {
		return docstore.Snapshot{Key: key}, nil
	}
	data, err := docstore.Normalize(snap.Data())
	if err != nil {
		return docstore.Snapshot{}, err
	}
	return docstore.Snapshot{
		Key:       key,
		Exists:    true,
		Data:      data,
		Version:   snap.UpdateTime.UnixNano(),
		UpdatedAt: snap.UpdateTime,
	}, nil
}

// Get returns the current document.
func (s *Store) Get(ctx context.Context, key docstore.Key) (docstore.Snapshot, error) {
	snap, err := s.ref(key).Get(ctx)
	if isNotFound(err) {
		return docstore.Snapshot{Key: key}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("firestoredb: get %s: %w", key, err)
	}
	return toSnapshot(key, snap)
}

// Set replaces the document.
func (s *Store) Set(ctx context.Context, key docstore.Key, data docstore.Doc) error {
	doc, err := docstore.Normalize(data)
	if err != nil {
		return err
	}
	if _, err := s.ref(key).Set(ctx, map[string]any(doc)); err != nil {
		return fmt.Errorf("firestoredb: set %s: %w", key, err)
	}
	return nil
}

// Merge updates dotted field paths; Firestore fails it on a missing document.
func (s *Store) Merge(ctx context.Context, key docstore.Key, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields))
	for path, v := range fields {
		if _, err := docstore.SplitPath(path); err != nil {
			return err
		}
		norm, err := docstore.Normalize(docstore.Doc{"v": v})
		if err != nil {
			return err
		}
		updates = append(updates, firestore.Update{Path: path, Value: norm["v"]})
	}
	_, err := s.ref(key).Update(ctx, updates)
	if isNotFound(err) {
		return docstore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("firestoredb: merge %s: %w", key, err)
	}
	return nil
}

// Delete removes the document.
func (s *Store) Delete(ctx context.Context, key docstore.Key) error {
	if _, err := s.ref(key).Delete(ctx); err != nil && !isNotFound(err) {
		return fmt.Errorf("firestoredb: delete %s: %w", key, err)
	}
	return nil
}

// Transact runs fn inside a Firestore transaction, which retries on
// contention by itself.
func (s *Store) Transact(ctx context.Context, key docstore.Key, fn docstore.TxFunc) error {
	ref := s.ref(key)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && !isNotFound(err) {
			return err
		}
		cur, err := toSnapshot(key, snap)
		if err != nil {
			return err
		}

		w, err := fn(cur)
		if err != nil {
			return err
		}
		switch w.Op {
		case docstore.OpSet:
			doc, err := docstore.Normalize(w.Data)
			if err != nil {
				return err
			}
			return tx.Set(ref, map[string]any(doc))
		case docstore.OpDelete:
			if !cur.Exists {
				return nil
			}
			return tx.Delete(ref)
		}
		return nil
	}, firestore.MaxAttempts(s.attempts))

	if status.Code(err) == codes.Aborted {
		return fmt.Errorf("firestoredb: transact %s: %w", key, docstore.ErrTooManyAttempts)
	}
	return err
}

// Subscribe streams snapshots from a Firestore listener.
func (s *Store) Subscribe(ctx context.Context, key docstore.Key) (*docstore.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.ref(key).Snapshots(ctx)

	sub := docstore.NewSubscription(key, s.buffer, cancel)
	sub.CloseWith(ctx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					s.logger.Warn("firestoredb: listener failed", "key", key.String(), "error", err)
					sub.Fail(fmt.Errorf("firestoredb: watch %s: %w", key, err))
				}
				sub.Close()
				return
			}
			out, err := toSnapshot(key, snap)
			if err != nil {
				sub.Fail(err)
				return
			}
			sub.Publish(out)
		}
	}()
	return sub, nil
}

// Close releases the client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil && !strings.Contains(err.Error(), "already closed") {
		return fmt.Errorf("firestoredb: close: %w", err)
	}
	return nil
}
