// Package memstore is an in-process document store. It backs tests, the
// local two-terminal demo through the relay, and the relay's default backing.
package memstore

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/vovakirdan/laneduel/internal/docstore"
)

func init() {
	docstore.Register("memory", "in-process map (single process only)",
		func(_ context.Context, _ *url.URL, opts docstore.Options) (docstore.Store, error) {
			return New(opts), nil
		})
}

type entry struct {
	data      docstore.Doc
	version   int64
	updatedAt time.Time
}

// Store keeps documents in a map guarded by a RWMutex.
type Store struct {
	lock   sync.RWMutex
	docs   map[docstore.Key]entry
	seq    int64 // versions are store-wide so a recreated document never reuses one
	hub    *docstore.Hub
	closed bool
	now    func() time.Time
}

var (
	_ docstore.Store     = (*Store)(nil)
	_ docstore.Versioned = (*Store)(nil)
)

// New creates an empty store.
func New(opts docstore.Options) *Store {
	return &Store{
		docs: make(map[docstore.Key]entry),
		hub:  docstore.NewHub(opts.SubscribeBuffer),
		now:  time.Now,
	}
}

func (s *Store) snapshot(key docstore.Key) docstore.Snapshot {
	e, ok := s.docs[key]
	if !ok {
		return docstore.Snapshot{Key: key}
	}
	return docstore.Snapshot{
		Key:       key,
		Exists:    true,
		Data:      docstore.Clone(e.data),
		Version:   e.version,
		UpdatedAt: e.updatedAt,
	}
}

// Get returns a copy of the document.
func (s *Store) Get(_ context.Context, key docstore.Key) (docstore.Snapshot, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.closed {
		return docstore.Snapshot{}, docstore.ErrClosed
	}
	snap := s.snapshot(key)
	if !snap.Exists {
		return snap, docstore.ErrNotFound
	}
	return snap, nil
}

// Set replaces the document.
func (s *Store) Set(_ context.Context, key docstore.Key, data docstore.Doc) error {
	doc, err := docstore.Normalize(data)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}
	s.commit(key, doc)
	return nil
}

// Merge writes dotted fields into an existing document.
func (s *Store) Merge(_ context.Context, key docstore.Key, fields map[string]any) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}

	e, ok := s.docs[key]
	if !ok {
		return docstore.ErrNotFound
	}
	doc, err := docstore.ApplyMerge(e.data, fields)
	if err != nil {
		return err
	}
	s.commit(key, doc)
	return nil
}

// Delete removes the document.
func (s *Store) Delete(_ context.Context, key docstore.Key) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}
	s.remove(key)
	return nil
}

// CompareAndSwap applies w if the document is still at version.
func (s *Store) CompareAndSwap(_ context.Context, key docstore.Key, version int64, w docstore.Write) (docstore.Snapshot, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return docstore.Snapshot{}, docstore.ErrClosed
	}

	if s.docs[key].version != version {
		return s.snapshot(key), docstore.ErrConflict
	}
	switch w.Op {
	case docstore.OpSet:
		doc, err := docstore.Normalize(w.Data)
		if err != nil {
			return docstore.Snapshot{}, err
		}
		s.commit(key, doc)
	case docstore.OpDelete:
		s.remove(key)
	}
	return s.snapshot(key), nil
}

// Transact runs fn under the write lock, so it never conflicts.
func (s *Store) Transact(ctx context.Context, key docstore.Key, fn docstore.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}

	w, err := fn(s.snapshot(key))
	if err != nil {
		return err
	}
	switch w.Op {
	case docstore.OpSet:
		doc, err := docstore.Normalize(w.Data)
		if err != nil {
			return err
		}
		s.commit(key, doc)
	case docstore.OpDelete:
		s.remove(key)
	}
	return nil
}

// Subscribe watches the document, starting with its current state.
func (s *Store) Subscribe(ctx context.Context, key docstore.Key) (*docstore.Subscription, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return nil, docstore.ErrClosed
	}

	sub := s.hub.Watch(key, s.snapshot(key))
	sub.CloseWith(ctx)
	return sub, nil
}

// Close ends all subscriptions.
func (s *Store) Close() error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil
	}
	s.closed = true
	s.lock.Unlock()

	s.hub.CloseAll(docstore.ErrClosed)
	return nil
}

// commit must be called with the write lock held.
func (s *Store) commit(key docstore.Key, doc docstore.Doc) {
	s.seq++
	s.docs[key] = entry{data: doc, version: s.seq, updatedAt: s.now()}
	s.hub.Notify(s.snapshot(key))
}

// remove must be called with the write lock held.
func (s *Store) remove(key docstore.Key) {
	if _, ok := s.docs[key]; !ok {
		return
	}
	delete(s.docs, key)
	s.hub.Notify(docstore.Snapshot{Key: key})
}
