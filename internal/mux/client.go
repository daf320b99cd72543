package mux

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yazinsai/claude-code-remote/internal/metrics"
)

// sendBufferSize bounds each client's outbound queue. A slow client
// must not stall session reads for other clients; on overflow the
// connection is closed rather than blocking.
const sendBufferSize = 256

const writeTimeout = 10 * time.Second

type outboundFrame struct {
	binary bool
	data   []byte
}

// client is one connection's full state machine: authentication,
// current attachment, and its bounded outbound queue.
type client struct {
	id   string
	conn *websocket.Conn
	send chan outboundFrame

	authenticated atomic.Bool

	mu                sync.Mutex
	attachedSessionID string
	detachOutput      func()
	detachExit        func()

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan outboundFrame, sendBufferSize),
		closed: make(chan struct{}),
	}
}

// enqueue attempts a non-blocking send; if the buffer is full the
// client is closed rather than letting a slow reader stall the sender.
func (c *client) enqueue(f outboundFrame) {
	select {
	case c.send <- f:
	case <-c.closed:
	default:
		metrics.SlowConnectionsDropped.Inc()
		c.Close()
	}
}

func (c *client) sendEvent(data []byte) { c.enqueue(outboundFrame{binary: true, data: data}) }
func (c *client) sendText(data []byte)  { c.enqueue(outboundFrame{binary: false, data: data}) }

func (c *client) sendError(message string) {
	c.sendEvent(errorEvent(message))
}

// writePump drains the send channel onto the websocket connection. It
// is the only goroutine that calls conn.WriteMessage, so no additional
// locking around writes is needed.
func (c *client) writePump() {
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			msgType := websocket.TextMessage
			if frame.binary {
				msgType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(msgType, frame.data); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *client) attachedSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachedSessionID
}

// detachPrevious releases whatever subscriptions are currently held,
// clearing attachment state first so a concurrent attach can't race
// with a stale detach call.
func (c *client) detachPrevious() {
	c.mu.Lock()
	out, ex := c.detachOutput, c.detachExit
	c.detachOutput, c.detachExit, c.attachedSessionID = nil, nil, ""
	c.mu.Unlock()
	if out != nil {
		out()
	}
	if ex != nil {
		ex()
	}
}

func (c *client) setAttachment(sessionID string, detachOutput, detachExit func()) {
	c.mu.Lock()
	c.attachedSessionID = sessionID
	c.detachOutput = detachOutput
	c.detachExit = detachExit
	c.mu.Unlock()
}

// Close tears down the connection and releases any held subscriptions.
// Safe to call more than once and from multiple goroutines.
func (c *client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.detachPrevious()
		_ = c.conn.Close()
	})
}
