package transport

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"pantyhose/errs"
	"pantyhose/wireframe"
)

// Backoff parameters for TCPClient reconnects: 500ms floor, 10s ceiling,
// doubling, ±20% jitter.
const (
	backoffInitial    = 500 * time.Millisecond
	backoffMax        = 10 * time.Second
	backoffFactor     = 2.0
	backoffJitterFrac = 0.2
)

func nextBackoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * backoffFactor)
	if next > backoffMax {
		return backoffMax
	}
	return next
}

func jitter(d time.Duration) time.Duration {
	delta := float64(d) * backoffJitterFrac
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}

// Clock abstracts the one piece of real time TCPClient depends on: waiting
// out a backoff. Production code always gets realClock; tests can supply
// internal/testutil.FakeClock to drive reconnect timing deterministically
// instead of sleeping in wall-clock time.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// TCPClient is an outbound back-to-back connection that redials with
// exponential backoff whenever the underlying TCPConnection disconnects.
// Every reconnect cycle produces a fresh TCPConnection and pushes its own
// EventConnected/EventDisconnected pair through events, so the driver sees
// reconnects the same way it sees any other connection lifecycle change —
// it does not need to know TCPClient is anything other than a Connection.
type TCPClient struct {
	addr   string
	codec  *wireframe.Codec
	events chan<- Event
	clock  Clock

	mu      sync.Mutex
	current *TCPConnection

	stopped atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// DialTCPClient starts connecting to addr in the background and returns
// immediately; connection (and every subsequent reconnection) is reported
// through events.
func DialTCPClient(addr string, codec *wireframe.Codec, events chan<- Event) *TCPClient {
	return dialTCPClient(addr, codec, events, realClock{})
}

// DialTCPClientWithClock is DialTCPClient with an injectable Clock, for
// tests that need to drive reconnect backoff without real sleeping.
func DialTCPClientWithClock(addr string, codec *wireframe.Codec, events chan<- Event, clock Clock) *TCPClient {
	return dialTCPClient(addr, codec, events, clock)
}

func dialTCPClient(addr string, codec *wireframe.Codec, events chan<- Event, clock Clock) *TCPClient {
	ctx, cancel := context.WithCancel(context.Background())
	c := &TCPClient{
		addr:   addr,
		codec:  codec,
		events: events,
		clock:  clock,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.run(ctx)
	return c
}

func (c *TCPClient) RemoteAddr() string { return c.addr }

func (c *TCPClient) Send(msgID uint16, payload []byte) error {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur == nil {
		return errs.New(errs.PeerGone, "transport.TCPClient.Send", fmt.Errorf("not connected to %s", c.addr))
	}
	return cur.Send(msgID, payload)
}

func (c *TCPClient) Close(reason error) error {
	if c.stopped.CompareAndSwap(false, true) {
		c.cancel()
		<-c.done
	}
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur != nil {
		return cur.Close(reason)
	}
	return nil
}

func (c *TCPClient) run(ctx context.Context) {
	defer close(c.done)
	backoff := backoffInitial
	for {
		if ctx.Err() != nil {
			return
		}
		dialer := net.Dialer{Timeout: 5 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			if !c.sleep(ctx, jitter(backoff)) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = backoffInitial
		inner := make(chan Event, 64)
		tc := NewTCPConnection(conn, c.codec, inner)
		c.mu.Lock()
		c.current = tc
		c.mu.Unlock()
		c.events <- Event{Kind: EventConnected, Conn: c}

		c.pump(ctx, inner)

		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if !c.sleep(ctx, jitter(backoff)) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// pump relays the inner TCPConnection's events to the client's own events
// channel (re-tagging Conn as c so the driver always sees the stable
// TCPClient identity, never the short-lived TCPConnection underneath) until
// the inner connection reports EventDisconnected.
func (c *TCPClient) pump(ctx context.Context, inner <-chan Event) {
	for {
		select {
		case ev, ok := <-inner:
			if !ok {
				return
			}
			ev.Conn = c
			select {
			case c.events <- ev:
			case <-ctx.Done():
			}
			if ev.Kind == EventDisconnected {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *TCPClient) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-c.clock.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
