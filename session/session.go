// Package session implements the front-session manager: bookkeeping for
// client-facing connections, keyed by a monotonic front_session_id. The
// state is a plain map mutated only from the single goroutine that owns
// it — "front_session_id -> *FrontSession" — with a strict single-owner
// discipline: every method on Manager assumes it is called from the one
// driver goroutine, so none of them take a lock.
package session

import (
	"go.uber.org/zap"

	"pantyhose/transport"
)

// FrontSessionMetaData carries router/auth bookkeeping attached to a
// session after authentication: router stickiness targets, account id
// once known, and an arbitrary key/value extension point.
type FrontSessionMetaData struct {
	AccountID string
	Sticky    map[string]uint32 // server_type -> back server id, for sticky routing
	Extra     map[string]string
}

func newMetaData() FrontSessionMetaData {
	return FrontSessionMetaData{
		Sticky: make(map[string]uint32),
		Extra:  make(map[string]string),
	}
}

// FrontSession is one client-facing connection.
type FrontSession struct {
	ID    uint64
	Conn  transport.Connection
	Group string // arbitrary application grouping, e.g. a room or zone name
	Meta  FrontSessionMetaData
}

// Manager owns the full set of live front sessions. Zero value is not
// usable; construct with NewManager.
type Manager struct {
	log    *zap.Logger
	nextID uint64
	byID   map[uint64]*FrontSession
	groups map[string]map[uint64]*FrontSession
}

func NewManager(log *zap.Logger) *Manager {
	return &Manager{
		log:    log,
		byID:   make(map[uint64]*FrontSession),
		groups: make(map[string]map[uint64]*FrontSession),
	}
}

// Create allocates a new front_session_id (starting at 1, monotonic for
// the process lifetime) and registers the session.
func (m *Manager) Create(conn transport.Connection) *FrontSession {
	m.nextID++
	fs := &FrontSession{
		ID:   m.nextID,
		Conn: conn,
		Meta: newMetaData(),
	}
	m.byID[fs.ID] = fs
	return fs
}

// Get looks up a session by id.
func (m *Manager) Get(id uint64) (*FrontSession, bool) {
	fs, ok := m.byID[id]
	return fs, ok
}

// Remove deletes a session, detaching it from its group if it had one.
// Returns false if id was not known.
func (m *Manager) Remove(id uint64) bool {
	fs, ok := m.byID[id]
	if !ok {
		return false
	}
	if fs.Group != "" {
		if g, ok := m.groups[fs.Group]; ok {
			delete(g, id)
			if len(g) == 0 {
				delete(m.groups, fs.Group)
			}
		}
	}
	delete(m.byID, id)
	return true
}

// Join moves a session into group, leaving its previous group (if any).
func (m *Manager) Join(id uint64, group string) bool {
	fs, ok := m.byID[id]
	if !ok {
		return false
	}
	if fs.Group != "" {
		if g, ok := m.groups[fs.Group]; ok {
			delete(g, id)
			if len(g) == 0 {
				delete(m.groups, fs.Group)
			}
		}
	}
	fs.Group = group
	if group == "" {
		return true
	}
	g, ok := m.groups[group]
	if !ok {
		g = make(map[uint64]*FrontSession)
		m.groups[group] = g
	}
	g[id] = fs
	return true
}

// Broadcast sends a pre-encoded message to every session currently in
// group. A send failure never stalls delivery to the rest of the group:
// it is logged and the failing session is removed, since a connection that
// failed once (backpressured or already gone) would otherwise keep
// dropping every later broadcast too.
func (m *Manager) Broadcast(group string, msgID uint16, payload []byte) {
	for id, fs := range m.groups[group] {
		if err := fs.Conn.Send(msgID, payload); err != nil {
			if m.log != nil {
				m.log.Error("broadcast send failed, removing session",
					zap.Uint64("front_session_id", id), zap.String("group", group), zap.Error(err))
			}
			m.Remove(id)
		}
	}
}

// SessionsIn returns a snapshot slice of the sessions currently in group.
func (m *Manager) SessionsIn(group string) []*FrontSession {
	g := m.groups[group]
	out := make([]*FrontSession, 0, len(g))
	for _, fs := range g {
		out = append(out, fs)
	}
	return out
}

// Count returns the number of live front sessions.
func (m *Manager) Count() int { return len(m.byID) }

// All returns every live front session, in no particular order. Used by
// the driver to close every session at shutdown.
func (m *Manager) All() []*FrontSession {
	out := make([]*FrontSession, 0, len(m.byID))
	for _, fs := range m.byID {
		out = append(out, fs)
	}
	return out
}

// Find returns the session whose Conn is conn, if any.
func (m *Manager) Find(conn transport.Connection) (*FrontSession, bool) {
	for _, fs := range m.byID {
		if fs.Conn == conn {
			return fs, true
		}
	}
	return nil, false
}
