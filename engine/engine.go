// Package engine owns the listener and dialer sets for the three transport
// roles in play (front-facing TCP, front-facing WebSocket, back-to-back
// TCP) and funnels every connection's lifecycle into one events channel, a
// register/unregister/broadcast channel triad generalized from "one kind
// of client" to "three transport roles feeding one driver".
package engine

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pantyhose/transport"
	"pantyhose/wireframe"
)

// Role distinguishes which listener or dialer produced a connection, so the
// driver can route EventConnected appropriately (front connections go to
// the front-session manager, back connections to the back-session manager).
type Role int

const (
	RoleFrontTCP Role = iota
	RoleFrontWS
	RoleBackTCP
)

func (r Role) String() string {
	switch r {
	case RoleFrontTCP:
		return "front_tcp"
	case RoleFrontWS:
		return "front_ws"
	case RoleBackTCP:
		return "back_tcp"
	default:
		return "unknown"
	}
}

// Event is a transport.Event tagged with the role of the connection it came
// from. The driver's select loop reads only Engine.Events().
type Event struct {
	Role Role
	transport.Event
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Engine owns zero or more TCP listeners, at most one WebSocket HTTP
// server, and any number of outbound TCPClient dialers, all feeding the
// same Event channel.
type Engine struct {
	codec  *wireframe.Codec
	log    *zap.Logger
	events chan Event

	mu        sync.Mutex
	listeners []net.Listener
	httpSrv   *http.Server
	dialers   []dialerHandle

	wg sync.WaitGroup
}

type dialerHandle struct {
	client *transport.TCPClient
	raw    chan transport.Event
}

// New creates an engine with the given frame codec and logger. The events
// channel is sized generously (4096) because the driver is expected to
// drain it continuously; when it is full, the sending goroutine (an accept
// loop or a per-connection relay) blocks until the driver makes room.
func New(codec *wireframe.Codec, log *zap.Logger) *Engine {
	return &Engine{
		codec:  codec,
		log:    log,
		events: make(chan Event, 4096),
	}
}

// Events returns the single channel the driver reads from.
func (e *Engine) Events() <-chan Event { return e.events }

// ListenTCP starts accepting connections on addr under the given role.
func (e *Engine) ListenTCP(addr string, role Role) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("engine.ListenTCP(%s): %w", addr, err)
	}
	e.mu.Lock()
	e.listeners = append(e.listeners, ln)
	e.mu.Unlock()

	e.wg.Add(1)
	go e.acceptTCP(ln, role)
	return nil
}

func (e *Engine) acceptTCP(ln net.Listener, role Role) {
	defer e.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		raw := make(chan transport.Event, 64)
		var tc *transport.TCPConnection
		if role == RoleBackTCP {
			tc = transport.NewTCPConnection(conn, e.codec, raw)
		} else {
			tc = transport.NewTCPConnectionWithLimiter(conn, e.codec, raw, transport.NewInboundLimiter())
		}
		e.log.Debug("accepted connection", zap.String("role", role.String()), zap.String("remote", tc.RemoteAddr()))
		e.events <- Event{Role: role, Event: transport.Event{Kind: transport.EventConnected, Conn: tc}}
		e.wg.Add(1)
		go e.relayOnce(raw, role)
	}
}

// relayOnce forwards a single connection's events to the engine's shared
// channel and stops as soon as it sees EventDisconnected — a plain
// TCPConnection or WebSocketConnection never sends again after that point,
// so the private channel can be abandoned safely.
func (e *Engine) relayOnce(raw <-chan transport.Event, role Role) {
	defer e.wg.Done()
	for ev := range raw {
		e.events <- Event{Role: role, Event: ev}
		if ev.Kind == transport.EventDisconnected {
			return
		}
	}
}

// relayDialer forwards every event from a long-lived TCPClient's private
// channel until the engine closes it during Stop — unlike a plain
// connection, a TCPClient keeps emitting Connected/Disconnected pairs
// across reconnects, so it cannot stop relaying on the first disconnect.
func (e *Engine) relayDialer(raw <-chan transport.Event, role Role) {
	defer e.wg.Done()
	for ev := range raw {
		e.events <- Event{Role: role, Event: ev}
	}
}

// ListenWS starts an HTTP server on addr that upgrades every request to a
// binary WebSocket connection tagged RoleFrontWS.
func (e *Engine) ListenWS(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			e.log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		raw := make(chan transport.Event, 64)
		wc := transport.NewWebSocketConnectionWithLimiter(conn, e.codec, raw, transport.NewInboundLimiter())
		e.events <- Event{Role: RoleFrontWS, Event: transport.Event{Kind: transport.EventConnected, Conn: wc}}
		e.wg.Add(1)
		go e.relayOnce(raw, RoleFrontWS)
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("engine.ListenWS(%s): %w", addr, err)
	}
	srv := &http.Server{Handler: mux}
	e.mu.Lock()
	e.httpSrv = srv
	e.listeners = append(e.listeners, ln)
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		_ = srv.Serve(ln)
	}()
	return nil
}

// DialBack opens an outbound back-to-back connection to addr, reconnecting
// with backoff for as long as the engine is running.
func (e *Engine) DialBack(addr string) transport.Connection {
	raw := make(chan transport.Event, 64)
	client := transport.DialTCPClient(addr, e.codec, raw)
	e.mu.Lock()
	e.dialers = append(e.dialers, dialerHandle{client: client, raw: raw})
	e.mu.Unlock()
	e.wg.Add(1)
	go e.relayDialer(raw, RoleBackTCP)
	return client
}

// Stop closes every listener and dialer and waits for their goroutines to
// exit before returning.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	listeners := e.listeners
	httpSrv := e.httpSrv
	dialers := e.dialers
	e.mu.Unlock()

	for _, ln := range listeners {
		ln.Close()
	}
	if httpSrv != nil {
		httpSrv.Shutdown(ctx)
	}
	for _, d := range dialers {
		d.client.Close(nil)
		close(d.raw)
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
