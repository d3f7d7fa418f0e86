package relaystore

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/laneduel/internal/docstore"
	"github.com/vovakirdan/laneduel/internal/docstore/memstore"
	"github.com/vovakirdan/laneduel/internal/docstore/storetest"
	"github.com/vovakirdan/laneduel/internal/relay"
)

func quietLogger() *log.Logger {
	return log.NewWithOptions(&strings.Builder{}, log.Options{})
}

// startRelay runs a relay over a fresh memory store and returns its ws URL.
func startRelay(t *testing.T) (string, *relay.Server) {
	t.Helper()
	backing := memstore.New(docstore.Options{SubscribeBuffer: 8})
	srv := relay.NewServer(backing, relay.Options{Logger: quietLogger()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.CloseClients()
		ts.Close()
		//nolint:errcheck // Test teardown
		backing.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws", srv
}

func dial(t *testing.T, url string) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Dial(ctx, url, docstore.Options{SubscribeBuffer: 4, Logger: quietLogger()})
	require.NoError(t, err)
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) docstore.Store {
		url, _ := startRelay(t)
		return dial(t, url)
	})
}

func TestTwoClientsShareDocument(t *testing.T) {
	url, _ := startRelay(t)
	a := dial(t, url)
	defer a.Close()
	b := dial(t, url)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	key := docstore.Key{Collection: "rooms", ID: "RLY234"}

	sub, err := b.Subscribe(ctx, key)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, a.Set(ctx, key, docstore.Doc{"status": "lobby"}))
	for {
		snap, ok := sub.Next(ctx)
		require.True(t, ok, "subscription ended: %v", sub.Err())
		if snap.Exists {
			assert.Equal(t, "lobby", snap.Data["status"])
			break
		}
	}

	_, err = b.CompareAndSwap(ctx, key, 0, docstore.Put(docstore.Doc{"status": "stolen"}))
	assert.ErrorIs(t, err, docstore.ErrConflict)
}

func TestServerGoneFailsCalls(t *testing.T) {
	url, srv := startRelay(t)
	s := dial(t, url)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	key := docstore.Key{Collection: "rooms", ID: "GONE23"}

	sub, err := s.Subscribe(ctx, key)
	require.NoError(t, err)

	srv.CloseClients()

	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subscription survived a lost connection")
	}
	assert.ErrorIs(t, sub.Err(), docstore.ErrClosed)

	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, docstore.ErrClosed)
}
