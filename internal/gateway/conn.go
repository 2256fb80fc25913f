package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"

	"github.com/coder/websocket"
)

// conn wraps one client WebSocket with a bounded outbound queue. A slow
// or stalled client loses its oldest buffered frames instead of growing
// the queue without bound or stalling the session output pumps.
type conn struct {
	ws     *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	queue  chan ServerMessage

	dropped atomic.Int64
}

func newConn(ctx context.Context, ws *websocket.Conn, queueSize int) *conn {
	if queueSize <= 0 {
		queueSize = 256
	}
	cctx, cancel := context.WithCancel(ctx)
	c := &conn{
		ws:     ws,
		ctx:    cctx,
		cancel: cancel,
		queue:  make(chan ServerMessage, queueSize),
	}
	go c.writeLoop()
	return c
}

// send enqueues a frame without ever blocking the caller. When the
// queue is full the oldest frame is dropped to make room.
func (c *conn) send(msg ServerMessage) {
	select {
	case c.queue <- msg:
		return
	default:
	}

	select {
	case old := <-c.queue:
		n := c.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			log.Printf("[gateway] slow client: dropped %d frames (latest was %s for session %s)",
				n, old.Type, old.SessionID)
		}
	default:
	}
	select {
	case c.queue <- msg:
	default:
		c.dropped.Add(1)
	}
}

// writeLoop drains the queue onto the wire until the connection context
// ends.
func (c *conn) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.queue:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("[gateway] marshal outbound frame: %v", err)
				continue
			}
			if err := c.ws.Write(c.ctx, websocket.MessageText, data); err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (c *conn) close() {
	c.cancel()
}

// Output and Closed make conn a session.Sink: session events are routed
// to the one connection the session is attached to.

func (c *conn) Output(sessionID string, data []byte) {
	c.send(ServerMessage{Type: MsgOutput, SessionID: sessionID, Data: string(data)})
}

func (c *conn) Closed(sessionID, reason string) {
	c.send(ServerMessage{Type: MsgDestroyed, SessionID: sessionID, Reason: reason})
}
