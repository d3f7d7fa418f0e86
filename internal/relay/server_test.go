package relay

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/laneduel/internal/docstore"
	"github.com/vovakirdan/laneduel/internal/docstore/memstore"
)

var roomKey = docstore.Key{Collection: "rooms", ID: "HTTP23"}

func newTestServer(t *testing.T) (*Server, *memstore.Store, *httptest.Server) {
	t.Helper()
	backing := memstore.New(docstore.Options{})
	srv := NewServer(backing, Options{Logger: log.NewWithOptions(&strings.Builder{}, log.Options{})})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.CloseClients()
		ts.Close()
	})
	return srv, backing, ts
}

func TestHealth(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDocumentRoutes(t *testing.T) {
	_, backing, ts := newTestServer(t)
	url := ts.URL + "/v1/docs/rooms/HTTP23"

	resp, err := http.Get(url)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, backing.Set(context.Background(), roomKey, docstore.Doc{"status": "lobby"}))

	resp, err = http.Get(url)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	resp.Body.Close()
	assert.True(t, snap.Exists)
	assert.Equal(t, "lobby", snap.Data["status"])
	assert.Positive(t, snap.Version)

	req, err := http.NewRequest(http.MethodDelete, url, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = backing.Get(context.Background(), roomKey)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func rawDial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	//nolint:errcheck // Test deadline
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	return ws
}

func roundTrip(t *testing.T, ws *websocket.Conn, req Request) Response {
	t.Helper()
	require.NoError(t, ws.WriteJSON(req))
	var resp Response
	require.NoError(t, ws.ReadJSON(&resp))
	return resp
}

func TestProtocol(t *testing.T) {
	_, _, ts := newTestServer(t)
	ws := rawDial(t, ts)

	tests := []struct {
		name string
		req  Request
		ok   bool
		code string
	}{
		{"get missing", Request{RID: "1", Op: OpGet, Collection: "rooms", ID: "HTTP23"}, false, CodeNotFound},
		{"merge missing", Request{RID: "2", Op: OpMerge, Collection: "rooms", ID: "HTTP23", Fields: map[string]any{"a": 1}}, false, CodeNotFound},
		{"cas create", Request{RID: "3", Op: OpCAS, Collection: "rooms", ID: "HTTP23", Data: docstore.Doc{"n": 1}}, true, ""},
		{"cas stale", Request{RID: "4", Op: OpCAS, Collection: "rooms", ID: "HTTP23", Data: docstore.Doc{"n": 2}}, false, CodeConflict},
		{"missing key", Request{RID: "5", Op: OpGet}, false, CodeBadRequest},
		{"unknown op", Request{RID: "6", Op: "explode", Collection: "rooms", ID: "HTTP23"}, false, CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := roundTrip(t, ws, tt.req)
			assert.Equal(t, tt.req.RID, resp.RID)
			assert.Equal(t, tt.ok, resp.OK)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestWatchStreamsEvents(t *testing.T) {
	_, backing, ts := newTestServer(t)
	ws := rawDial(t, ts)

	ack := roundTrip(t, ws, Request{RID: "w1", Op: OpWatch, Collection: "rooms", ID: "HTTP23"})
	require.True(t, ack.OK)

	var first Response
	require.NoError(t, ws.ReadJSON(&first))
	assert.Equal(t, "w1", first.Sub)
	require.NotNil(t, first.Snapshot)
	assert.False(t, first.Snapshot.Exists)

	require.NoError(t, backing.Set(context.Background(), roomKey, docstore.Doc{"status": "running"}))

	var next Response
	require.NoError(t, ws.ReadJSON(&next))
	assert.Equal(t, "w1", next.Sub)
	assert.True(t, next.Snapshot.Exists)
	assert.Equal(t, "running", next.Snapshot.Data["status"])
}

func TestServeStopsOnCancel(t *testing.T) {
	srv := NewServer(memstore.New(docstore.Options{}), Options{Logger: log.NewWithOptions(&strings.Builder{}, log.Options{})})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/v1/ws", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return srv.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Eventually(t, func() bool { return srv.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
}
