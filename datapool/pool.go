package datapool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/beauremus/pacsys/pacsyserr"
)

// Timing constants for the upstream WebSocket connections, carried
// over from the gorilla/websocket chat-example convention of pairing
// a read deadline with a shorter ping interval.
const (
	pongWait   = 30 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

type wsConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan wireMessage
	closed  bool

	// dispatch, when set, receives every inbound frame instead of the
	// request/response demultiplexer — used by the dedicated
	// subscription connection.
	dispatch func(wireMessage)
	// onClose, when set, is invoked once after the read pump exits.
	onClose func()

	log *zap.Logger
}

func dialConn(ctx context.Context, url string, log *zap.Logger) (*wsConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &pacsyserr.SSHConnectionError{Host: url, Message: "data-pool dial failed", Cause: err}
	}
	c := &wsConn{conn: conn, pending: make(map[string]chan wireMessage), log: log}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go c.readPump()
	go c.pingLoop()
	return c, nil
}

func (c *wsConn) readPump() {
	defer c.teardown()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("data-pool: malformed frame", zap.Error(err))
			continue
		}
		if c.dispatch != nil {
			c.dispatch(msg)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		if ok {
			delete(c.pending, msg.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.conn.WriteMessage(websocket.PingMessage, nil)
		c.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (c *wsConn) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	if c.onClose != nil {
		c.onClose()
	}
}

func (c *wsConn) send(msg wireMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) call(ctx context.Context, msg wireMessage) (wireMessage, error) {
	ch := make(chan wireMessage, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return wireMessage{}, &pacsyserr.SSHError{Message: "data-pool connection closed"}
	}
	c.pending[msg.ID] = ch
	c.mu.Unlock()

	if err := c.send(msg); err != nil {
		return wireMessage{}, &pacsyserr.SSHError{Message: "data-pool write failed", Cause: err}
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return wireMessage{}, &pacsyserr.SSHError{Message: "data-pool connection closed"}
		}
		return reply, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		return wireMessage{}, &pacsyserr.SSHTimeoutError{Message: "data-pool call timed out"}
	}
}

func (c *wsConn) close() error {
	return c.conn.Close()
}

// pool round-robins calls across a fixed set of connections, per
// spec.md's "connection pool of size N (default 4)".
type pool struct {
	conns []*wsConn
	next  uint64
	idSeq uint64
}

// DefaultPoolSize matches spec.md's default connection-pool size.
const DefaultPoolSize = 4

func dialPool(ctx context.Context, url string, size int, log *zap.Logger) (*pool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	p := &pool{conns: make([]*wsConn, 0, size)}
	for i := 0; i < size; i++ {
		c, err := dialConn(ctx, url, log)
		if err != nil {
			p.close()
			return nil, err
		}
		p.conns = append(p.conns, c)
	}
	return p, nil
}

func (p *pool) nextID() string {
	n := atomic.AddUint64(&p.idSeq, 1)
	return fmt.Sprintf("req-%d", n)
}

func (p *pool) call(ctx context.Context, msg wireMessage) (wireMessage, error) {
	if msg.ID == "" {
		msg.ID = p.nextID()
	}
	idx := atomic.AddUint64(&p.next, 1) % uint64(len(p.conns))
	return p.conns[idx].call(ctx, msg)
}

func (p *pool) close() error {
	var firstErr error
	for _, c := range p.conns {
		if err := c.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
