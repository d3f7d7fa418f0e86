package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vovakirdan/laneduel/internal/docstore"
)

// conn is one WebSocket client. Requests are handled in arrival order on the
// read goroutine; a single writer goroutine owns the socket's write side.
type conn struct {
	srv  *Server
	ws   *websocket.Conn
	send chan Response

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu   sync.Mutex
	subs map[string]*docstore.Subscription
}

func newConn(srv *Server, ws *websocket.Conn) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &conn{
		srv:    srv,
		ws:     ws,
		send:   make(chan Response, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*docstore.Subscription),
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		subs := c.subs
		c.subs = nil
		c.mu.Unlock()
		for _, sub := range subs {
			sub.Close()
		}

		//nolint:errcheck // Peer may already be gone
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay closing"),
			time.Now().Add(writeWait))
		c.ws.Close()
	})
}

func (c *conn) readLoop() {
	defer c.close()

	c.ws.SetReadLimit(maxMessage)
	//nolint:errcheck // Deadline errors surface on the next read
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req Request
		if err := c.ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.srv.logger.Warn("relay: read failed", "remote", c.ws.RemoteAddr().String(), "error", err)
			}
			return
		}
		c.handle(req)
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case resp := <-c.send:
			//nolint:errcheck // Write error below covers it
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(resp); err != nil {
				c.srv.logger.Warn("relay: write failed", "remote", c.ws.RemoteAddr().String(), "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *conn) enqueue(resp Response) {
	select {
	case c.send <- resp:
	case <-c.ctx.Done():
	}
}

func (c *conn) reply(req Request, snap *docstore.Snapshot, err error) {
	resp := Response{RID: req.RID, OK: err == nil}
	if err != nil {
		resp.Code = CodeOf(err)
		resp.Message = err.Error()
	}
	if snap != nil {
		resp.Snapshot = FromSnapshot(*snap)
	}
	c.enqueue(resp)
}

func (c *conn) handle(req Request) {
	if req.Op != OpUnwatch && (req.Collection == "" || req.ID == "") {
		c.enqueue(Response{RID: req.RID, Code: CodeBadRequest, Message: "collection and id are required"})
		return
	}
	key := req.Key()
	store := c.srv.store

	switch req.Op {
	case OpGet:
		snap, err := store.Get(c.ctx, key)
		if errors.Is(err, docstore.ErrNotFound) {
			c.reply(req, nil, err)
			return
		}
		c.reply(req, &snap, err)

	case OpSet:
		c.reply(req, nil, store.Set(c.ctx, key, req.Data))

	case OpMerge:
		c.reply(req, nil, store.Merge(c.ctx, key, req.Fields))

	case OpDelete:
		c.reply(req, nil, store.Delete(c.ctx, key))

	case OpCAS:
		c.reply(req, nil, c.compareAndSwap(key, req))

	case OpWatch:
		c.watch(key, req)

	case OpUnwatch:
		c.mu.Lock()
		sub := c.subs[req.Sub]
		delete(c.subs, req.Sub)
		c.mu.Unlock()
		if sub != nil {
			sub.Close()
		}
		c.reply(req, nil, nil)

	default:
		c.enqueue(Response{RID: req.RID, Code: CodeBadRequest, Message: fmt.Sprintf("unknown op %q", req.Op)})
	}
}

// compareAndSwap runs the conditional write as a store transaction so any
// backing driver can serve it.
func (c *conn) compareAndSwap(key docstore.Key, req Request) error {
	return c.srv.store.Transact(c.ctx, key, func(cur docstore.Snapshot) (docstore.Write, error) {
		if cur.Version != req.Version {
			return docstore.Keep(), docstore.ErrConflict
		}
		if req.Delete {
			return docstore.Remove(), nil
		}
		return docstore.Put(req.Data), nil
	})
}

func (c *conn) watch(key docstore.Key, req Request) {
	sub, err := c.srv.store.Subscribe(c.ctx, key)
	if err != nil {
		c.reply(req, nil, err)
		return
	}

	c.mu.Lock()
	if c.subs == nil {
		c.mu.Unlock()
		sub.Close()
		return
	}
	if old := c.subs[req.RID]; old != nil {
		old.Close()
	}
	c.subs[req.RID] = sub
	c.mu.Unlock()

	c.reply(req, nil, nil)
	go c.pump(req.RID, sub)
}

func (c *conn) pump(id string, sub *docstore.Subscription) {
	for snap := range sub.All(c.ctx) {
		c.enqueue(Response{Sub: id, OK: true, Snapshot: FromSnapshot(snap)})
	}
	if err := sub.Err(); err != nil && c.ctx.Err() == nil {
		c.enqueue(Response{Sub: id, Ended: true, Code: CodeOf(err), Message: err.Error()})
	}
}
