// Package docstore defines the shared document store the room protocol is
// built on: get, set/merge, subscribe, and a single-document atomic
// transaction. Drivers live in subpackages and register a URL scheme.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrConflict is returned when a conditional write lost a race.
	ErrConflict = errors.New("docstore: version conflict")
	// ErrTooManyAttempts is returned when a transaction kept conflicting.
	ErrTooManyAttempts = errors.New("docstore: transaction retries exhausted")
	// ErrClosed is returned by a store or subscription after Close.
	ErrClosed = errors.New("docstore: closed")
)

// DefaultMaxAttempts bounds transaction retries.
const DefaultMaxAttempts = 5

// Doc is a JSON-compatible document body.
type Doc map[string]any

// Key addresses one document.
type Key struct {
	Collection string
	ID         string
}

func (k Key) String() string {
	return k.Collection + "/" + k.ID
}

// Snapshot is the state of one document at one version.
// A missing document has Exists == false and Version 0.
type Snapshot struct {
	Key       Key
	Exists    bool
	Data      Doc
	Version   int64
	UpdatedAt time.Time
}

// Decode unmarshals the document body into v.
func (s Snapshot) Decode(v any) error {
	if !s.Exists {
		return fmt.Errorf("docstore: decode %s: %w", s.Key, ErrNotFound)
	}
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return fmt.Errorf("docstore: encode %s: %w", s.Key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("docstore: decode %s: %w", s.Key, err)
	}
	return nil
}

// Encode converts a struct into a document body through its JSON form.
func Encode(v any) (Doc, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	var doc Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	return doc, nil
}

// WriteOp is the outcome of a transaction body.
type WriteOp int

const (
	OpNone WriteOp = iota
	OpSet
	OpDelete
)

// Write is what a transaction body asks the store to commit.
type Write struct {
	Op   WriteOp
	Data Doc
}

// Put replaces the document with data.
func Put(data Doc) Write {
	return Write{Op: OpSet, Data: data}
}

// Remove deletes the document.
func Remove() Write {
	return Write{Op: OpDelete}
}

// Keep commits nothing.
func Keep() Write {
	return Write{Op: OpNone}
}

// TxFunc is a transaction body. It receives the current snapshot and
// decides the write. It may run more than once and must not have side
// effects outside its return value.
type TxFunc func(cur Snapshot) (Write, error)

// Store is a shared document store.
type Store interface {
	// Get returns the current snapshot or ErrNotFound.
	Get(ctx context.Context, key Key) (Snapshot, error)

	// Set creates or replaces a document.
	Set(ctx context.Context, key Key, data Doc) error

	// Merge writes the given dotted field paths into an existing document.
	// Returns ErrNotFound when the document is missing.
	Merge(ctx context.Context, key Key, fields map[string]any) error

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, key Key) error

	// Subscribe starts delivering snapshots of the document, beginning with
	// the current one. Delivery keeps only the latest pending snapshot.
	Subscribe(ctx context.Context, key Key) (*Subscription, error)

	// Transact runs fn against the current document and commits its write
	// atomically. Conflicting concurrent writes cause fn to be retried.
	Transact(ctx context.Context, key Key, fn TxFunc) error

	// Close releases the store's resources.
	Close() error
}
