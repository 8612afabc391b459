package transport

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"pantyhose/buffer"
	"pantyhose/errs"
	"pantyhose/wireframe"
)

// WebSocketConnection adapts a *websocket.Conn to the Connection interface.
// Framing is carried as-is inside binary WebSocket messages: one wire frame
// per WebSocket message, still using wireframe.Codec to keep the header
// shape identical to the raw TCP transport, since front-facing WebSocket
// and TCP listeners share one wire format. Text frames are a protocol
// violation and close the connection.
type WebSocketConnection struct {
	conn   *websocket.Conn
	codec  *wireframe.Codec
	events chan<- Event

	sendCh      chan []byte
	queuedBytes atomic.Int64
	queueCap    int64

	limiter *rate.Limiter
	dropped int

	closeOnce sync.Once
	closed    chan struct{}
}

func NewWebSocketConnection(conn *websocket.Conn, codec *wireframe.Codec, events chan<- Event) *WebSocketConnection {
	return newWebSocketConnection(conn, codec, events, nil)
}

// NewWebSocketConnectionWithLimiter is NewWebSocketConnection with an
// inbound token bucket, mirroring NewTCPConnectionWithLimiter.
func NewWebSocketConnectionWithLimiter(conn *websocket.Conn, codec *wireframe.Codec, events chan<- Event, limiter *rate.Limiter) *WebSocketConnection {
	return newWebSocketConnection(conn, codec, events, limiter)
}

func newWebSocketConnection(conn *websocket.Conn, codec *wireframe.Codec, events chan<- Event, limiter *rate.Limiter) *WebSocketConnection {
	c := &WebSocketConnection{
		conn:     conn,
		codec:    codec,
		events:   events,
		sendCh:   make(chan []byte, 256),
		queueCap: DefaultSendQueueBytes,
		limiter:  limiter,
		closed:   make(chan struct{}),
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

func (c *WebSocketConnection) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *WebSocketConnection) Send(msgID uint16, payload []byte) error {
	frame := c.codec.Encode(msgID, payload)
	if c.queuedBytes.Add(int64(len(frame))) > c.queueCap {
		c.queuedBytes.Add(-int64(len(frame)))
		return newBackpressureErr(c.RemoteAddr())
	}
	select {
	case c.sendCh <- frame:
		return nil
	case <-c.closed:
		c.queuedBytes.Add(-int64(len(frame)))
		return errs.New(errs.PeerGone, "transport.Send", fmt.Errorf("connection to %s closed", c.RemoteAddr()))
	}
}

func (c *WebSocketConnection) Close(reason error) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		c.events <- Event{Kind: EventDisconnected, Conn: c, Err: reason}
	})
	return err
}

func (c *WebSocketConnection) writeLoop() {
	for {
		select {
		case frame := <-c.sendCh:
			c.queuedBytes.Add(-int64(len(frame)))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.Close(err)
				return
			}
		case <-c.closed:
			return
		}
	}
}

// readLoop reads whole WebSocket messages and feeds each one through the
// same length-prefix codec the TCP side uses, so a message split across two
// wire frames (unusual, but not disallowed by the WebSocket framing) is
// still handled by TryFrame's normal buffering.
func (c *WebSocketConnection) readLoop() {
	buf := buffer.New()
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			c.Close(err)
			return
		}
		if kind == websocket.TextMessage {
			c.Close(errs.New(errs.ProtocolError, "transport.ws.readLoop", fmt.Errorf("text frame rejected")))
			return
		}
		buf.Write(data)
		for {
			frame, ok, ferr := c.codec.TryFrame(buf)
			if ferr != nil {
				c.Close(ferr)
				return
			}
			if !ok {
				break
			}
			if c.limiter != nil && !c.limiter.Allow() {
				c.dropped++
				if c.dropped >= dropHardCap {
					c.Close(errs.New(errs.ProtocolError, "transport.ws.readLoop", fmt.Errorf("inbound rate limit exceeded")))
					return
				}
				continue
			}
			c.dropped = 0
			select {
			case c.events <- Event{Kind: EventFrame, Conn: c, Frame: frame}:
			case <-c.closed:
				return
			}
		}
	}
}
