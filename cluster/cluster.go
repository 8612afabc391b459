// Package cluster implements the cluster manager and master role: a
// bespoke registration handshake over the same wire protocol as
// everything else (not etcd-backed — etcd appears only as an optional
// external fleet-announcement sink, see Announcer), a heartbeat-based
// failure detector, and a protocol-version compatibility gate using
// go-semver.
package cluster

import (
	"time"

	"github.com/coreos/go-semver/semver"

	"pantyhose/backsession"
	"pantyhose/errs"
	"pantyhose/message"
)

// ProtocolVersion is this build's wire protocol version, compared against
// a joining node's advertised version during registration. Nodes differing
// in MAJOR are refused; a MINOR/PATCH difference is accepted,
// following semver's own compatibility contract.
var ProtocolVersion = semver.New("1.0.0")

// HeartbeatInterval, SuspectAfterMisses and EvictAfterMisses are the
// failure-detector thresholds: a heartbeat every 5 seconds, suspect at 3
// consecutive misses, evict at 5.
const (
	HeartbeatInterval  = 5 * time.Second
	SuspectAfterMisses = 3
	EvictAfterMisses   = 5
)

// CheckProtocolVersion enforces the compatibility gate. clientToken is
// compared by the caller against configured cluster secrets before this is
// reached; CheckProtocolVersion only judges version compatibility.
func CheckProtocolVersion(advertised string) error {
	v, err := semver.NewVersion(advertised)
	if err != nil {
		return errs.New(errs.ProtocolError, "cluster.CheckProtocolVersion", err)
	}
	if v.Major != ProtocolVersion.Major {
		return errs.New(errs.ProtocolError, "cluster.CheckProtocolVersion", incompatibleVersionErr{advertised, ProtocolVersion.String()})
	}
	return nil
}

type incompatibleVersionErr struct {
	got, want string
}

func (e incompatibleVersionErr) Error() string {
	return "incompatible protocol version " + e.got + ", this cluster runs " + e.want
}

// Manager drives the bespoke cluster membership protocol: accepting
// registrations, tracking heartbeats, and producing NodeJoinedBNotify /
// NodeLeftBNotify events for the caller to broadcast to the rest of the
// cluster.
type Manager struct {
	self    backsession.Key
	backs   *backsession.Manager
	secret  string
	members map[backsession.Key]message.ClusterMember
}

// NewManager creates a cluster manager for this process's own identity
// (self) using backs as the back-session table and secret as the shared
// cluster authentication token, matched against a joining node's
// client_token.
func NewManager(self backsession.Key, backs *backsession.Manager, secret string) *Manager {
	return &Manager{self: self, backs: backs, secret: secret, members: make(map[backsession.Key]message.ClusterMember)}
}

// HandleRegister validates a NodeRegisterBRequest and, on success, records
// the joining node and returns the response to send back plus the
// NodeJoinedBNotify to broadcast to the rest of the cluster.
func (m *Manager) HandleRegister(req message.NodeRegisterBRequest) (message.NodeRegisterBResponse, message.NodeJoinedBNotify, error) {
	if req.ClientToken != m.secret {
		return message.NodeRegisterBResponse{OK: false, Reason: "bad token"}, message.NodeJoinedBNotify{}, errs.New(errs.AuthFailed, "cluster.HandleRegister", authFailedErr{})
	}
	if err := CheckProtocolVersion(req.ProtocolVersion); err != nil {
		return message.NodeRegisterBResponse{OK: false, Reason: "incompatible protocol version"}, message.NodeJoinedBNotify{}, err
	}
	key := backsession.Key{ServerType: req.ServerType, ServerID: req.ServerID}
	if _, ok := m.members[key]; ok {
		return message.NodeRegisterBResponse{OK: false, Reason: "duplicate identity"}, message.NodeJoinedBNotify{}, errs.New(errs.DuplicateIdentity, "cluster.HandleRegister", duplicateErr{key})
	}

	member := message.ClusterMember{ServerType: req.ServerType, ServerID: req.ServerID, Endpoints: req.Endpoints, Role: req.ServerType}
	m.members[key] = member

	resp := message.NodeRegisterBResponse{OK: true, Members: m.Snapshot()}
	return resp, message.NodeJoinedBNotify{Member: member}, nil
}

// Snapshot returns every known member, for inclusion in a registration
// response so a newly joined node learns the rest of the cluster in one
// round trip instead of discovering peers one at a time.
func (m *Manager) Snapshot() []message.ClusterMember {
	out := make([]message.ClusterMember, 0, len(m.members))
	for _, mem := range m.members {
		out = append(out, mem)
	}
	return out
}

// HandleLeave removes a member (connection closed or evicted by heartbeat
// timeout) and returns the notify to broadcast.
func (m *Manager) HandleLeave(key backsession.Key, reason string) message.NodeLeftBNotify {
	delete(m.members, key)
	return message.NodeLeftBNotify{ServerType: key.ServerType, ServerID: key.ServerID, Reason: reason}
}

type authFailedErr struct{}

func (authFailedErr) Error() string { return "cluster registration token mismatch" }

type duplicateErr struct{ key backsession.Key }

func (e duplicateErr) Error() string { return "node already registered: " + e.key.ServerType }
