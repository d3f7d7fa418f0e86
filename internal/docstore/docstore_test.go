package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMerge(t *testing.T) {
	base, err := Normalize(Doc{
		"status":  "running",
		"players": map[string]any{"p1": map[string]any{"lane": "left", "lives": 3}},
	})
	require.NoError(t, err)

	out, err := ApplyMerge(base, map[string]any{
		"players.p1.lane": "right",
		"players.p2.lane": "left",
		"round":           2,
	})
	require.NoError(t, err)

	lane, _ := GetPath(out, "players.p1.lane")
	lives, _ := GetPath(out, "players.p1.lives")
	other, _ := GetPath(out, "players.p2.lane")
	assert.Equal(t, "right", lane)
	assert.Equal(t, float64(3), lives)
	assert.Equal(t, "left", other)
	assert.Equal(t, float64(2), out["round"])

	// the input is untouched
	orig, _ := GetPath(base, "players.p1.lane")
	assert.Equal(t, "left", orig)

	_, err = ApplyMerge(base, map[string]any{"players..lane": "x"})
	assert.Error(t, err)
}

func TestGetPath(t *testing.T) {
	d := Doc{"a": map[string]any{"b": "c"}, "n": 1.0}

	tests := []struct {
		path string
		want any
		ok   bool
	}{
		{"a.b", "c", true},
		{"n", 1.0, true},
		{"a.x", nil, false},
		{"n.x", nil, false},
		{"", nil, false},
	}
	for _, tt := range tests {
		got, ok := GetPath(d, tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestSubscriptionDropsOldest(t *testing.T) {
	stopped := 0
	sub := NewSubscription(Key{"rooms", "A"}, 2, func() { stopped++ })
	for v := int64(1); v <= 5; v++ {
		sub.Publish(Snapshot{Version: v})
	}

	ctx := context.Background()
	first, ok := sub.Next(ctx)
	require.True(t, ok)
	second, ok := sub.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(4), first.Version)
	assert.Equal(t, int64(5), second.Version)

	sub.Close()
	sub.Close()
	assert.Equal(t, 1, stopped)
	_, ok = sub.Next(ctx)
	assert.False(t, ok)
}

func TestSubscriptionAllBreakCloses(t *testing.T) {
	sub := NewSubscription(Key{"rooms", "A"}, 4, nil)
	sub.Publish(Snapshot{Version: 1})
	sub.Publish(Snapshot{Version: 2})

	for snap := range sub.All(context.Background()) {
		if snap.Version == 1 {
			break
		}
	}
	select {
	case <-sub.Done():
	default:
		t.Fatal("breaking out of All must close the subscription")
	}
}

func TestHub(t *testing.T) {
	h := NewHub(4)
	key := Key{"rooms", "A"}
	a := h.Watch(key, Snapshot{Key: key})
	b := h.Watch(key, Snapshot{Key: key})
	assert.Equal(t, 2, h.Count(key))

	a.Close()
	assert.Equal(t, 1, h.Count(key))

	h.Notify(Snapshot{Key: key, Exists: true, Version: 7})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _ = b.Next(ctx) // initial
	snap, ok := b.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(7), snap.Version)

	boom := errors.New("boom")
	h.CloseAll(boom)
	assert.ErrorIs(t, b.Err(), boom)
	assert.Equal(t, 0, h.Count(key))
}

// flaky fails the first conflicts CAS calls.
type flaky struct {
	mu        sync.Mutex
	conflicts int
	snap      Snapshot
	writes    int
}

func (f *flaky) Get(_ context.Context, key Key) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.snap.Exists {
		return Snapshot{Key: key}, ErrNotFound
	}
	return f.snap, nil
}

func (f *flaky) CompareAndSwap(_ context.Context, key Key, version int64, w Write) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflicts > 0 {
		f.conflicts--
		return f.snap, ErrConflict
	}
	f.writes++
	f.snap = Snapshot{Key: key, Exists: w.Op == OpSet, Data: w.Data, Version: version + 1}
	return f.snap, nil
}

func TestTransactOptimistic(t *testing.T) {
	key := Key{"rooms", "A"}
	ctx := context.Background()

	tests := []struct {
		name      string
		conflicts int
		attempts  int
		wantErr   error
		wantRuns  int
		wantWrite int
	}{
		{"first try", 0, 3, nil, 1, 1},
		{"retries then commits", 2, 3, nil, 3, 1},
		{"gives up", 5, 3, ErrTooManyAttempts, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &flaky{conflicts: tt.conflicts}
			runs := 0
			err := TransactOptimistic(ctx, f, key, tt.attempts, func(cur Snapshot) (Write, error) {
				runs++
				return Put(Doc{"n": 1.0}), nil
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantRuns, runs)
			assert.Equal(t, tt.wantWrite, f.writes)
		})
	}
}

func TestTransactOptimisticKeepAndAbort(t *testing.T) {
	f := &flaky{}
	key := Key{"rooms", "A"}

	require.NoError(t, TransactOptimistic(context.Background(), f, key, 3, func(Snapshot) (Write, error) {
		return Keep(), nil
	}))
	assert.Zero(t, f.writes)

	boom := errors.New("boom")
	err := TransactOptimistic(context.Background(), f, key, 3, func(Snapshot) (Write, error) {
		return Put(Doc{}), boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, f.writes)
}
