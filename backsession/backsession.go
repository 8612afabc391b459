// Package backsession implements the back-session manager: bookkeeping for
// server-to-server connections, keyed by (server_type, server_id) rather
// than by a bare connection id, since routing needs to find "the chat
// server with id 11", not "connection 7".
//
// The registration handshake gives a pending connection a deadline to
// present NodeRegisterBRequest before it is dropped, the same
// register/deregister shape an external service registry uses but backed
// by a local deadline instead of a TTL lease.
package backsession

import (
	"time"

	"pantyhose/errs"
	"pantyhose/transport"
)

// Key identifies a back server instance.
type Key struct {
	ServerType string
	ServerID   uint32
}

// BackSession is one server-to-server connection, live only after it has
// completed the registration handshake.
type BackSession struct {
	Key       Key
	Conn      transport.Connection
	Endpoints string
	Role      string // "master" or a business server type, mirrors config.Group.Name
	Healthy   bool   // cleared once consecutive heartbeat misses cross the suspect threshold
	Missed    int    // consecutive heartbeat misses
	Load      int    // count of front sessions currently routed to this instance
}

// pendingEntry tracks a connection that has not yet completed registration.
type pendingEntry struct {
	conn     transport.Connection
	deadline time.Time
}

// RegistrationTimeout is how long an accepted back connection has to send
// NodeRegisterBRequest before it is dropped.
const RegistrationTimeout = 10 * time.Second

// Manager owns every back session plus the connections still mid-handshake.
// Like session.Manager, it assumes single-goroutine ownership and takes no
// locks.
type Manager struct {
	byKey   map[Key]*BackSession
	pending map[transport.Connection]pendingEntry
}

func NewManager() *Manager {
	return &Manager{
		byKey:   make(map[Key]*BackSession),
		pending: make(map[transport.Connection]pendingEntry),
	}
}

// OnAccept records a freshly accepted back connection as pending, starting
// its registration deadline. now is passed in rather than read from
// time.Now() so callers can drive it from a fake clock in tests.
func (m *Manager) OnAccept(conn transport.Connection, now time.Time) {
	m.pending[conn] = pendingEntry{conn: conn, deadline: now.Add(RegistrationTimeout)}
}

// ExpirePending returns connections whose registration deadline has passed
// as of now, removing them from the pending set. Callers close each
// returned connection with errs.RegistrationTimeout.
func (m *Manager) ExpirePending(now time.Time) []transport.Connection {
	var expired []transport.Connection
	for conn, entry := range m.pending {
		if now.After(entry.deadline) {
			expired = append(expired, conn)
			delete(m.pending, conn)
		}
	}
	return expired
}

// OnRegister completes the handshake for a pending connection. It fails
// with errs.DuplicateIdentity if key is already registered to a different,
// still-live connection: a (server_type, server_id) pair must be unique
// among live back sessions.
func (m *Manager) OnRegister(conn transport.Connection, key Key, endpoints, role string) (*BackSession, error) {
	if _, ok := m.pending[conn]; !ok {
		return nil, errs.New(errs.ProtocolError, "backsession.OnRegister", errNotPending{})
	}
	if existing, ok := m.byKey[key]; ok && existing.Conn != conn {
		return nil, errs.New(errs.DuplicateIdentity, "backsession.OnRegister", errDuplicate{key})
	}
	delete(m.pending, conn)
	bs := &BackSession{Key: key, Conn: conn, Endpoints: endpoints, Role: role, Healthy: true}
	m.byKey[key] = bs
	return bs, nil
}

// Get looks up a registered back session by key.
func (m *Manager) Get(key Key) (*BackSession, bool) {
	bs, ok := m.byKey[key]
	return bs, ok
}

// IterByType returns every live back session of the given server type, for
// the router to choose among.
func (m *Manager) IterByType(serverType string) []*BackSession {
	var out []*BackSession
	for k, bs := range m.byKey {
		if k.ServerType == serverType {
			out = append(out, bs)
		}
	}
	return out
}

// All returns every registered back session, regardless of type — used to
// broadcast cluster membership notifies to the whole fleet.
func (m *Manager) All() []*BackSession {
	out := make([]*BackSession, 0, len(m.byKey))
	for _, bs := range m.byKey {
		out = append(out, bs)
	}
	return out
}

// OnHeartbeat resets the miss counter for key and marks it healthy.
func (m *Manager) OnHeartbeat(key Key) {
	if bs, ok := m.byKey[key]; ok {
		bs.Missed = 0
		bs.Healthy = true
	}
}

// Tick increments every session's miss counter by one heartbeat interval
// worth of silence, against the given suspect/evict miss thresholds. It
// returns the keys that just crossed the evict threshold so the caller can
// close their connections and broadcast NodeLeftBNotify.
func (m *Manager) Tick(suspectAfter, evictAfter int) []Key {
	var evicted []Key
	for k, bs := range m.byKey {
		bs.Missed++
		if bs.Missed >= suspectAfter {
			bs.Healthy = false
		}
		if bs.Missed >= evictAfter {
			evicted = append(evicted, k)
		}
	}
	for _, k := range evicted {
		delete(m.byKey, k)
	}
	return evicted
}

// OnClose removes conn from either the pending set or the registered set,
// whichever it is in. Returns the Key it was registered under, if any.
func (m *Manager) OnClose(conn transport.Connection) (Key, bool) {
	delete(m.pending, conn)
	for k, bs := range m.byKey {
		if bs.Conn == conn {
			delete(m.byKey, k)
			return k, true
		}
	}
	return Key{}, false
}

type errNotPending struct{}

func (errNotPending) Error() string { return "connection is not awaiting registration" }

type errDuplicate struct{ key Key }

func (e errDuplicate) Error() string {
	return "duplicate back session identity: " + e.key.ServerType
}
