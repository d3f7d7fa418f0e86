// Package relay serves a document store over WebSocket so that clients on
// different machines can share rooms. Any docstore.Store can back it.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/laneduel/internal/docstore"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
	maxMessage = 1 << 20
)

// Options configure a Server.
type Options struct {
	Addr   string
	Logger *log.Logger
}

// Server exposes a store through the relay protocol.
type Server struct {
	store    docstore.Store
	addr     string
	logger   *log.Logger
	upgrader websocket.Upgrader
	router   *mux.Router

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// NewServer creates a relay in front of store. The store is not closed by
// the server.
func NewServer(store docstore.Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		store:  store,
		addr:   opts.Addr,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/ws", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/v1/docs/{collection}/{id}", s.handleGetDoc).Methods(http.MethodGet)
	r.HandleFunc("/v1/docs/{collection}/{id}", s.handleDeleteDoc).Methods(http.MethodDelete)
	s.router = r
	return s
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Connections returns the number of open WebSocket clients.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("relay: listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// and disconnects every client.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("relay listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Hijacked WebSocket connections are not tracked by Shutdown.
		s.CloseClients()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("relay: shutdown: %w", err)
		}
		s.logger.Info("relay stopped")
		return nil
	})
	return g.Wait()
}

// CloseClients disconnects every WebSocket client.
func (s *Server) CloseClients() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	//nolint:errcheck // Best-effort health response
	w.Write([]byte("ok\n"))
}

func (s *Server) handleGetDoc(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := docstore.Key{Collection: vars["collection"], ID: vars["id"]}

	snap, err := s.store.Get(r.Context(), key)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		http.Error(w, "document not found", http.StatusNotFound)
		return
	case err != nil:
		s.logger.Error("relay: get failed", "key", key.String(), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	//nolint:errcheck // Client may have gone away
	json.NewEncoder(w).Encode(FromSnapshot(snap))
}

func (s *Server) handleDeleteDoc(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := docstore.Key{Collection: vars["collection"], ID: vars["id"]}

	if err := s.store.Delete(r.Context(), key); err != nil {
		s.logger.Error("relay: delete failed", "key", key.String(), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("relay: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(s, ws)
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("relay client connected", "remote", ws.RemoteAddr().String())

	go c.writeLoop()
	c.readLoop()

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.logger.Debug("relay client disconnected", "remote", ws.RemoteAddr().String())
}
