package docstore

import (
	"context"
	"errors"
	"fmt"
)

// Versioned is implemented by drivers that can compare-and-swap on a
// document version. Version 0 means "the document must not exist".
type Versioned interface {
	Get(ctx context.Context, key Key) (Snapshot, error)
	CompareAndSwap(ctx context.Context, key Key, version int64, w Write) (Snapshot, error)
}

// TransactOptimistic implements Transact on top of compare-and-swap:
// read, run fn, commit if the version is unchanged, otherwise retry.
func TransactOptimistic(ctx context.Context, v Versioned, key Key, attempts int, fn TxFunc) error {
	if attempts < 1 {
		attempts = DefaultMaxAttempts
	}
	for range attempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		cur, err := v.Get(ctx, key)
		switch {
		case errors.Is(err, ErrNotFound):
			cur = Snapshot{Key: key}
		case err != nil:
			return fmt.Errorf("docstore: transact %s: %w", key, err)
		}

		w, err := fn(cur)
		if err != nil {
			return err
		}
		if w.Op == OpNone {
			return nil
		}
		if w.Op == OpDelete && !cur.Exists {
			return nil
		}

		_, err = v.CompareAndSwap(ctx, key, cur.Version, w)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("docstore: transact %s: %w", key, err)
		}
		return nil
	}
	return fmt.Errorf("docstore: transact %s: %w", key, ErrTooManyAttempts)
}
