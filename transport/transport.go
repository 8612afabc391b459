// Package transport implements the Connection abstraction: TCP, WebSocket,
// and an outbound TCP client with reconnect.
//
// Each connection's reader goroutine only ever turns bytes into Event
// values and pushes them onto a single channel owned by the caller (the
// network engine's driver). There is no shared mutable state between
// connection goroutines: all business-level mutation happens on the one
// driver goroutine that reads that channel, the same channel-hand-off
// discipline a single-threaded driver model requires.
package transport

import (
	"fmt"

	"pantyhose/errs"
	"pantyhose/wireframe"
)

// DefaultSendQueueBytes is the per-connection outbound queue cap: 64 KiB
// of queued bytes before backpressure kicks in.
const DefaultSendQueueBytes = 64 * 1024

// Connection is implemented by TCPConnection, WebSocketConnection, and
// TCPClient.
type Connection interface {
	// Send enqueues a frame for the connection's writer goroutine. It
	// returns errs.SendBackpressure immediately if the outbound queue is
	// already full rather than blocking the caller.
	Send(msgID uint16, payload []byte) error
	// Close tears the connection down, recording reason for diagnostics.
	// Close is idempotent.
	Close(reason error) error
	// RemoteAddr identifies the peer, for logging.
	RemoteAddr() string
}

// EventKind distinguishes the three upward-delivered event shapes.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventFrame
)

// Event is what every connection variant pushes onto its owner's events
// channel. Conn identifies which connection the event is about — callers
// key their session tables off the Connection value's identity, not off a
// separately allocated connection id (that allocation, where one is needed
// at all, is the front/back session manager's job, not transport's).
type Event struct {
	Kind  EventKind
	Conn  Connection
	Frame *wireframe.Frame
	Err   error // reason, set for EventDisconnected
}

// newBackpressureErr is the standard error returned by Send when the
// outbound queue is saturated.
func newBackpressureErr(addr string) error {
	return errs.New(errs.SendBackpressure, "transport.Send", fmt.Errorf("queue full for %s", addr))
}
