package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"pantyhose/buffer"
	"pantyhose/errs"
	"pantyhose/wireframe"
)

// TCPConnection wraps one net.Conn. Its reader goroutine is the only thing
// that touches the read-side DynamicBuffer; its writer goroutine is the
// only thing that calls net.Conn.Write. The two never share state, so
// neither needs a mutex — the queued-bytes counter is the one thing both
// Send (producer) and the writer goroutine (consumer) touch, hence atomic.
type TCPConnection struct {
	conn   net.Conn
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

// NewTCPConnection starts the reader and writer goroutines for conn and
// returns the handle used to send on it. events is the single channel the
// owning driver reads from; closing is reported there as EventDisconnected.
// Inbound frames are unlimited; use NewTCPConnectionWithLimiter for
// front-facing connections that need flood protection.
func NewTCPConnection(conn net.Conn, codec *wireframe.Codec, events chan<- Event) *TCPConnection {
	return newTCPConnection(conn, codec, events, nil)
}

// NewTCPConnectionWithLimiter is NewTCPConnection with an inbound token
// bucket applied in readLoop: frames arriving faster than the limiter
// allows are dropped rather than queued, and a connection that keeps
// exceeding its budget past dropHardCap is closed.
func NewTCPConnectionWithLimiter(conn net.Conn, codec *wireframe.Codec, events chan<- Event, limiter *rate.Limiter) *TCPConnection {
	return newTCPConnection(conn, codec, events, limiter)
}

func newTCPConnection(conn net.Conn, codec *wireframe.Codec, events chan<- Event, limiter *rate.Limiter) *TCPConnection {
	c := &TCPConnection{
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

func (c *TCPConnection) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *TCPConnection) Send(msgID uint16, payload []byte) error {
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

func (c *TCPConnection) Close(reason error) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		c.events <- Event{Kind: EventDisconnected, Conn: c, Err: reason}
	})
	return err
}

func (c *TCPConnection) writeLoop() {
	for {
		select {
		case frame := <-c.sendCh:
			c.queuedBytes.Add(-int64(len(frame)))
			if _, err := c.conn.Write(frame); err != nil {
				c.Close(err)
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *TCPConnection) readLoop() {
	buf := buffer.New()
	rbuf := make([]byte, 64*1024)
	for {
		n, err := c.conn.Read(rbuf)
		if n > 0 {
			buf.Write(rbuf[:n])
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
						c.Close(errs.New(errs.ProtocolError, "transport.tcp.readLoop", fmt.Errorf("inbound rate limit exceeded")))
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
		if err != nil {
			c.Close(err)
			return
		}
	}
}
