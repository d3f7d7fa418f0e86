// Package relaystore is the client side of the document relay. Transactions
// are optimistic: the body runs locally and commits with a version check.
package relaystore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vovakirdan/laneduel/internal/docstore"
	"github.com/vovakirdan/laneduel/internal/relay"
)

func init() {
	open := func(ctx context.Context, u *url.URL, opts docstore.Options) (docstore.Store, error) {
		return Dial(ctx, u.String(), opts)
	}
	docstore.Register("ws", "document relay over WebSocket", open)
	docstore.Register("wss", "document relay over TLS WebSocket", open)
}

const writeWait = 10 * time.Second

// Store talks to a relay server over one WebSocket connection.
type Store struct {
	ws       *websocket.Conn
	attempts int
	buffer   int
	logger   *log.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan relay.Response
	subs    map[string]*docstore.Subscription
	err     error // set once the connection is gone

	done chan struct{}
}

var (
	_ docstore.Store     = (*Store)(nil)
	_ docstore.Versioned = (*Store)(nil)
)

// Dial connects to a relay at rawURL, for example ws://host:8787/v1/ws.
func Dial(ctx context.Context, rawURL string, opts docstore.Options) (*Store, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("relaystore: cannot connect to %s: %w", rawURL, err)
	}

	s := &Store{
		ws:       ws,
		attempts: opts.MaxAttempts,
		buffer:   opts.SubscribeBuffer,
		logger:   opts.Log(),
		pending:  make(map[string]chan relay.Response),
		subs:     make(map[string]*docstore.Subscription),
		done:     make(chan struct{}),
	}
	ws.SetPingHandler(func(data string) error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	go s.readLoop()
	return s, nil
}

func (s *Store) readLoop() {
	defer close(s.done)

	for {
		var resp relay.Response
		if err := s.ws.ReadJSON(&resp); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("relaystore: connection lost", "error", err)
			}
			s.fail(docstore.ErrClosed)
			return
		}
		s.dispatch(resp)
	}
}

func (s *Store) dispatch(resp relay.Response) {
	s.mu.Lock()
	if resp.Sub != "" {
		sub := s.subs[resp.Sub]
		if resp.Ended {
			delete(s.subs, resp.Sub)
		}
		s.mu.Unlock()

		if sub == nil {
			return
		}
		if resp.Ended {
			sub.Fail(relay.ErrorOf(resp))
			return
		}
		sub.Publish(resp.Snapshot.Store())
		return
	}

	ch := s.pending[resp.RID]
	delete(s.pending, resp.RID)
	s.mu.Unlock()

	if ch != nil {
		ch <- resp
	}
}

// fail ends every pending call and subscription.
func (s *Store) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	pending := s.pending
	subs := s.subs
	s.pending = make(map[string]chan relay.Response)
	s.subs = make(map[string]*docstore.Subscription)
	s.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	for _, sub := range subs {
		sub.Fail(err)
	}
}

func (s *Store) write(req relay.Request) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	//nolint:errcheck // Write error below covers it
	s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.ws.WriteJSON(req); err != nil {
		return fmt.Errorf("relaystore: send %s: %w", req.Op, err)
	}
	return nil
}

// call sends req and waits for its response.
func (s *Store) call(ctx context.Context, req relay.Request) (relay.Response, error) {
	req.RID = uuid.NewString()
	ch := make(chan relay.Response, 1)

	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return relay.Response{}, err
	}
	s.pending[req.RID] = ch
	s.mu.Unlock()

	if err := s.write(req); err != nil {
		s.forget(req.RID)
		return relay.Response{}, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return relay.Response{}, docstore.ErrClosed
		}
		return resp, relay.ErrorOf(resp)
	case <-ctx.Done():
		s.forget(req.RID)
		return relay.Response{}, ctx.Err()
	}
}

func (s *Store) forget(rid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, rid)
}

func request(op string, key docstore.Key) relay.Request {
	return relay.Request{Op: op, Collection: key.Collection, ID: key.ID}
}

// Get returns the current document.
func (s *Store) Get(ctx context.Context, key docstore.Key) (docstore.Snapshot, error) {
	resp, err := s.call(ctx, request(relay.OpGet, key))
	if errors.Is(err, docstore.ErrNotFound) {
		return docstore.Snapshot{Key: key}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Snapshot{}, err
	}
	return resp.Snapshot.Store(), nil
}

// Set replaces the document.
func (s *Store) Set(ctx context.Context, key docstore.Key, data docstore.Doc) error {
	req := request(relay.OpSet, key)
	req.Data = data
	_, err := s.call(ctx, req)
	return err
}

// Merge writes dotted fields into an existing document.
func (s *Store) Merge(ctx context.Context, key docstore.Key, fields map[string]any) error {
	req := request(relay.OpMerge, key)
	req.Fields = fields
	_, err := s.call(ctx, req)
	return err
}

// Delete removes the document.
func (s *Store) Delete(ctx context.Context, key docstore.Key) error {
	_, err := s.call(ctx, request(relay.OpDelete, key))
	return err
}

// CompareAndSwap commits w on the relay if the document is still at version.
// The returned snapshot carries only the key.
func (s *Store) CompareAndSwap(ctx context.Context, key docstore.Key, version int64, w docstore.Write) (docstore.Snapshot, error) {
	req := request(relay.OpCAS, key)
	req.Version = version
	switch w.Op {
	case docstore.OpSet:
		req.Data = w.Data
	case docstore.OpDelete:
		req.Delete = true
	default:
		return docstore.Snapshot{Key: key}, nil
	}
	_, err := s.call(ctx, req)
	return docstore.Snapshot{Key: key}, err
}

// Transact runs fn locally with optimistic retries.
func (s *Store) Transact(ctx context.Context, key docstore.Key, fn docstore.TxFunc) error {
	return docstore.TransactOptimistic(ctx, s, key, s.attempts, fn)
}

// Subscribe asks the relay to stream snapshots of the document.
func (s *Store) Subscribe(ctx context.Context, key docstore.Key) (*docstore.Subscription, error) {
	req := request(relay.OpWatch, key)
	req.RID = uuid.NewString()
	id := req.RID

	sub := docstore.NewSubscription(key, s.buffer, func() { s.unwatch(id) })
	ch := make(chan relay.Response, 1)

	// Register before sending: events may arrive right after the ack.
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return nil, err
	}
	s.subs[id] = sub
	s.pending[id] = ch
	s.mu.Unlock()

	if err := s.write(req); err != nil {
		s.drop(id)
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, docstore.ErrClosed
		}
		if err := relay.ErrorOf(resp); err != nil {
			s.drop(id)
			return nil, err
		}
	case <-ctx.Done():
		s.drop(id)
		sub.Close()
		return nil, ctx.Err()
	}

	sub.CloseWith(ctx)
	return sub, nil
}

func (s *Store) drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
	delete(s.pending, id)
}

// unwatch runs when a subscription closes locally.
func (s *Store) unwatch(id string) {
	s.mu.Lock()
	_, live := s.subs[id]
	delete(s.subs, id)
	closed := s.err != nil
	s.mu.Unlock()
	if !live || closed {
		return
	}

	req := relay.Request{Op: relay.OpUnwatch, RID: uuid.NewString(), Sub: id}
	if err := s.write(req); err != nil {
		s.logger.Debug("relaystore: unwatch failed", "sub", id, "error", err)
	}
}

// Close disconnects from the relay.
func (s *Store) Close() error {
	s.writeMu.Lock()
	//nolint:errcheck // Peer may already be gone
	s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	s.writeMu.Unlock()

	err := s.ws.Close()
	<-s.done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
