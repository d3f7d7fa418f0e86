// Package storetest is the behavioural contract every docstore driver must
// pass. Driver packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/laneduel/internal/docstore"
)

// Opener returns a fresh, empty store. The suite closes it.
type Opener func(t *testing.T) docstore.Store

// Run executes the contract against stores produced by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s docstore.Store)
	}{
		{"GetMissing", testGetMissing},
		{"SetGet", testSetGet},
		{"Merge", testMerge},
		{"Delete", testDelete},
		{"TransactCreate", testTransactCreate},
		{"TransactAbort", testTransactAbort},
		{"TransactNoLostUpdates", testTransactNoLostUpdates},
		{"TransactExactlyOnce", testTransactExactlyOnce},
		{"SubscribeSeesChanges", testSubscribeSeesChanges},
		{"SubscribeSeesDelete", testSubscribeSeesDelete},
		{"SubscriptionClose", testSubscriptionClose},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

var key = docstore.Key{Collection: "rooms", ID: "ABC234"}

func ctxTimeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testGetMissing(t *testing.T, s docstore.Store) {
	_, err := s.Get(ctxTimeout(t), key)
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func testSetGet(t *testing.T, s docstore.Store) {
	ctx := ctxTimeout(t)
	require.NoError(t, s.Set(ctx, key, docstore.Doc{
		"status":  "lobby",
		"round":   1,
		"players": map[string]any{"p1": map[string]any{"identity": "a"}},
	}))

	snap, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, snap.Exists)
	assert.Positive(t, snap.Version)
	assert.Equal(t, "lobby", snap.Data["status"])
	assert.EqualValues(t, 1, snap.Data["round"])

	v, ok := docstore.GetPath(snap.Data, "players.p1.identity")
	require.True(t, ok)
	assert.Equal(t, "a", v)

	var decoded struct {
		Status string `json:"status"`
		Round  int    `json:"round"`
	}
	require.NoError(t, snap.Decode(&decoded))
	assert.Equal(t, "lobby", decoded.Status)
	assert.Equal(t, 1, decoded.Round)
}

func testMerge(t *testing.T, s docstore.Store) {
	ctx := ctxTimeout(t)
	require.ErrorIs(t, s.Merge(ctx, key, map[string]any{"a": 1}), docstore.ErrNotFound)

	require.NoError(t, s.Set(ctx, key, docstore.Doc{
		"status":  "running",
		"players": map[string]any{"p1": map[string]any{"lane": "left", "lives": 3}},
	}))
	before, err := s.Get(ctx, key)
	require.NoError(t, err)

	require.NoError(t, s.Merge(ctx, key, map[string]any{
		"players.p1.lane":  "right",
		"players.p2.lives": 2,
	}))

	snap, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Greater(t, snap.Version, before.Version)
	assert.Equal(t, "running", snap.Data["status"])

	lane, _ := docstore.GetPath(snap.Data, "players.p1.lane")
	lives, _ := docstore.GetPath(snap.Data, "players.p1.lives")
	other, _ := docstore.GetPath(snap.Data, "players.p2.lives")
	assert.Equal(t, "right", lane)
	assert.EqualValues(t, 3, lives)
	assert.EqualValues(t, 2, other)
}

func testDelete(t *testing.T, s docstore.Store) {
	ctx := ctxTimeout(t)
	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Set(ctx, key, docstore.Doc{"x": 1}))
	require.NoError(t, s.Delete(ctx, key))

	_, err := s.Get(ctx, key)
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func testTransactCreate(t *testing.T, s docstore.Store) {
	ctx := ctxTimeout(t)
	err := s.Transact(ctx, key, func(cur docstore.Snapshot) (docstore.Write, error) {
		if cur.Exists {
			return docstore.Keep(), errors.New("already exists")
		}
		return docstore.Put(docstore.Doc{"status": "lobby"}), nil
	})
	require.NoError(t, err)

	snap, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "lobby", snap.Data["status"])
}

func testTransactAbort(t *testing.T, s docstore.Store) {
	ctx := ctxTimeout(t)
	require.NoError(t, s.Set(ctx, key, docstore.Doc{"n": 1}))

	boom := errors.New("boom")
	err := s.Transact(ctx, key, func(cur docstore.Snapshot) (docstore.Write, error) {
		return docstore.Put(docstore.Doc{"n": 99}), boom
	})
	require.ErrorIs(t, err, boom)

	snap, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.Data["n"])
}

// testTransactNoLostUpdates races increments; every successful transaction
// must be reflected in the counter.
func testTransactNoLostUpdates(t *testing.T, s docstore.Store) {
	ctx := ctxTimeout(t)
	require.NoError(t, s.Set(ctx, key, docstore.Doc{"n": 0}))

	var committed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < 4; w++ {
		g.Go(func() error {
			for i := 0; i < 5; i++ {
				err := s.Transact(gctx, key, func(cur docstore.Snapshot) (docstore.Write, error) {
					n, _ := cur.Data["n"].(float64)
					next := docstore.Clone(cur.Data)
					next["n"] = n + 1
					return docstore.Put(next), nil
				})
				switch {
				case err == nil:
					committed.Add(1)
				case errors.Is(err, docstore.ErrTooManyAttempts):
				default:
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	snap, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.EqualValues(t, committed.Load(), snap.Data["n"])
	assert.Positive(t, committed.Load())
}

// testTransactExactlyOnce races two "resolve" transactions guarded by a
// status check; exactly one may apply.
func testTransactExactlyOnce(t *testing.T, s docstore.Store) {
	ctx := ctxTimeout(t)
	require.NoError(t, s.Set(ctx, key, docstore.Doc{"status": "running", "wins": 0}))

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < 2; w++ {
		g.Go(func() error {
			return s.Transact(gctx, key, func(cur docstore.Snapshot) (docstore.Write, error) {
				if cur.Data["status"] != "running" {
					return docstore.Keep(), nil
				}
				next := docstore.Clone(cur.Data)
				wins, _ := next["wins"].(float64)
				next["wins"] = wins + 1
				next["status"] = "round_end"
				return docstore.Put(next), nil
			})
		})
	}
	require.NoError(t, g.Wait())

	snap, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "round_end", snap.Data["status"])
	assert.EqualValues(t, 1, snap.Data["wins"])
}

func waitFor(t *testing.T, sub *docstore.Subscription, match func(docstore.Snapshot) bool) docstore.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		snap, ok := sub.Next(ctx)
		if !ok {
			t.Fatalf("subscription ended before match: %v", sub.Err())
		}
		if match(snap) {
			return snap
		}
	}
}

func testSubscribeSeesChanges(t *testing.T, s docstore.Store) {
	ctx := ctxTimeout(t)
	require.NoError(t, s.Set(ctx, key, docstore.Doc{"status": "lobby"}))

	sub, err := s.Subscribe(ctx, key)
	require.NoError(t, err)
	defer sub.Close()

	first := waitFor(t, sub, func(snap docstore.Snapshot) bool { return snap.Exists })
	assert.Equal(t, "lobby", first.Data["status"])

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Merge(ctx, key, map[string]any{"round": i}))
	}
	last := waitFor(t, sub, func(snap docstore.Snapshot) bool {
		return fmt.Sprint(snap.Data["round"]) == "3"
	})
	assert.Greater(t, last.Version, first.Version)
}

func testSubscribeSeesDelete(t *testing.T, s docstore.Store) {
	ctx := ctxTimeout(t)
	require.NoError(t, s.Set(ctx, key, docstore.Doc{"status": "lobby"}))

	sub, err := s.Subscribe(ctx, key)
	require.NoError(t, err)
	defer sub.Close()
	waitFor(t, sub, func(snap docstore.Snapshot) bool { return snap.Exists })

	require.NoError(t, s.Delete(ctx, key))
	waitFor(t, sub, func(snap docstore.Snapshot) bool { return !snap.Exists })
}

func testSubscriptionClose(t *testing.T, s docstore.Store) {
	ctx, cancel := context.WithCancel(ctxTimeout(t))
	sub, err := s.Subscribe(ctx, key)
	require.NoError(t, err)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not end after context cancel")
	}
}
