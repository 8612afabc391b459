package message

import "pantyhose/wire"

// NodeRegisterBRequest is sent by a newcomer node to the master on every
// (re)connect.
type NodeRegisterBRequest struct {
	ClientToken     string
	ServerType      string
	ServerID        uint32
	Endpoints       string // "back_tcp=host:port,front_tcp=host:port,front_ws=host:port"
	ProtocolVersion string // semver, checked against the master's own version
}

func (m *NodeRegisterBRequest) MsgName() string { return "pantyhose.NodeRegisterBRequest" }

func (m *NodeRegisterBRequest) MarshalWire() []byte {
	var b []byte
	b = wire.AppendString(b, 1, m.ClientToken)
	b = wire.AppendString(b, 2, m.ServerType)
	b = wire.AppendUint32(b, 3, m.ServerID)
	b = wire.AppendString(b, 4, m.Endpoints)
	b = wire.AppendString(b, 5, m.ProtocolVersion)
	return b
}

func (m *NodeRegisterBRequest) UnmarshalWire(data []byte) error {
	return wire.Fields(data, func(num int, typ wire.FieldType, v []byte) error {
		switch num {
		case 1:
			m.ClientToken = string(v)
		case 2:
			m.ServerType = string(v)
		case 3:
			m.ServerID = uint32(wire.Varint(v))
		case 4:
			m.Endpoints = string(v)
		case 5:
			m.ProtocolVersion = string(v)
		}
		return nil
	})
}

// ClusterMember is one entry of a replicated ClusterView.
type ClusterMember struct {
	ServerType string
	ServerID   uint32
	Endpoints  string
	Role       string // the member's server type, as recorded at registration
}

func (c ClusterMember) marshalEntry() []byte {
	var b []byte
	b = wire.AppendString(b, 1, c.ServerType)
	b = wire.AppendUint32(b, 2, c.ServerID)
	b = wire.AppendString(b, 3, c.Endpoints)
	b = wire.AppendString(b, 4, c.Role)
	return b
}

func unmarshalMember(data []byte) (ClusterMember, error) {
	var c ClusterMember
	err := wire.Fields(data, func(num int, typ wire.FieldType, v []byte) error {
		switch num {
		case 1:
			c.ServerType = string(v)
		case 2:
			c.ServerID = uint32(wire.Varint(v))
		case 3:
			c.Endpoints = string(v)
		case 4:
			c.Role = string(v)
		}
		return nil
	})
	return c, err
}

// NodeRegisterBResponse is the master's reply to a registration attempt.
type NodeRegisterBResponse struct {
	OK      bool
	Reason  string
	Members []ClusterMember
}

func (m *NodeRegisterBResponse) MsgName() string { return "pantyhose.NodeRegisterBResponse" }

func (m *NodeRegisterBResponse) MarshalWire() []byte {
	var b []byte
	if m.OK {
		b = wire.AppendUint64(b, 1, 1)
	}
	b = wire.AppendString(b, 2, m.Reason)
	for _, mem := range m.Members {
		b = wire.AppendBytes(b, 3, mem.marshalEntry())
	}
	return b
}

func (m *NodeRegisterBResponse) UnmarshalWire(data []byte) error {
	return wire.Fields(data, func(num int, typ wire.FieldType, v []byte) error {
		switch num {
		case 1:
			m.OK = wire.Varint(v) != 0
		case 2:
			m.Reason = string(v)
		case 3:
			mem, err := unmarshalMember(v)
			if err != nil {
				return err
			}
			m.Members = append(m.Members, mem)
		}
		return nil
	})
}

// NodeJoinedBNotify announces a newly registered member to the rest of the
// fleet. Applying the same notify twice must be idempotent.
type NodeJoinedBNotify struct {
	Member ClusterMember
}

func (m *NodeJoinedBNotify) MsgName() string { return "pantyhose.NodeJoinedBNotify" }

func (m *NodeJoinedBNotify) MarshalWire() []byte {
	return wire.AppendBytes(nil, 1, m.Member.marshalEntry())
}

func (m *NodeJoinedBNotify) UnmarshalWire(data []byte) error {
	return wire.Fields(data, func(num int, typ wire.FieldType, v []byte) error {
		if num == 1 {
			mem, err := unmarshalMember(v)
			if err != nil {
				return err
			}
			m.Member = mem
		}
		return nil
	})
}

// NodeLeftBNotify announces that a member left the fleet (graceful or
// evicted after missed heartbeats).
type NodeLeftBNotify struct {
	ServerType string
	ServerID   uint32
	Reason     string
}

func (m *NodeLeftBNotify) MsgName() string { return "pantyhose.NodeLeftBNotify" }

func (m *NodeLeftBNotify) MarshalWire() []byte {
	var b []byte
	b = wire.AppendString(b, 1, m.ServerType)
	b = wire.AppendUint32(b, 2, m.ServerID)
	b = wire.AppendString(b, 3, m.Reason)
	return b
}

func (m *NodeLeftBNotify) UnmarshalWire(data []byte) error {
	return wire.Fields(data, func(num int, typ wire.FieldType, v []byte) error {
		switch num {
		case 1:
			m.ServerType = string(v)
		case 2:
			m.ServerID = uint32(wire.Varint(v))
		case 3:
			m.Reason = string(v)
		}
		return nil
	})
}

// HeartbeatBNotify is sent by every node to the master every 5s.
type HeartbeatBNotify struct {
	ServerType string
	ServerID   uint32
}

func (m *HeartbeatBNotify) MsgName() string { return "pantyhose.HeartbeatBNotify" }

func (m *HeartbeatBNotify) MarshalWire() []byte {
	var b []byte
	b = wire.AppendString(b, 1, m.ServerType)
	b = wire.AppendUint32(b, 2, m.ServerID)
	return b
}

func (m *HeartbeatBNotify) UnmarshalWire(data []byte) error {
	return wire.Fields(data, func(num int, typ wire.FieldType, v []byte) error {
		switch num {
		case 1:
			m.ServerType = string(v)
		case 2:
			m.ServerID = uint32(wire.Varint(v))
		}
		return nil
	})
}
