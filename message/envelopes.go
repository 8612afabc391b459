package message

import "pantyhose/wire"

// RpcMessageFRequest is the client's RPC envelope sent on a front session
//.
type RpcMessageFRequest struct {
	MsgUniqueID uint32
	ServerType  string
	MsgID       uint32
	Message     []byte
}

func (m *RpcMessageFRequest) MsgName() string { return "pantyhose.RpcMessageFRequest" }

func (m *RpcMessageFRequest) MarshalWire() []byte {
	var b []byte
	b = wire.AppendUint32(b, 1, m.MsgUniqueID)
	b = wire.AppendString(b, 2, m.ServerType)
	b = wire.AppendUint32(b, 3, m.MsgID)
	b = wire.AppendBytes(b, 4, m.Message)
	return b
}

func (m *RpcMessageFRequest) UnmarshalWire(data []byte) error {
	return wire.Fields(data, func(num int, typ wire.FieldType, v []byte) error {
		switch num {
		case 1:
			m.MsgUniqueID = uint32(wire.Varint(v))
		case 2:
			m.ServerType = string(v)
		case 3:
			m.MsgID = uint32(wire.Varint(v))
		case 4:
			m.Message = append([]byte(nil), v...)
		}
		return nil
	})
}

// RpcForwardMessageBRequest is the front→back forwarded call.
type RpcForwardMessageBRequest struct {
	MsgUniqueID    uint32
	FrontSessionID uint64
	Meta           map[string]string
	MsgID          uint32
	Message        []byte
}

func (m *RpcForwardMessageBRequest) MsgName() string { return "pantyhose.RpcForwardMessageBRequest" }

func (m *RpcForwardMessageBRequest) MarshalWire() []byte {
	var b []byte
	b = wire.AppendUint32(b, 1, m.MsgUniqueID)
	b = wire.AppendUint64(b, 2, m.FrontSessionID)
	b = wire.AppendStringMap(b, 3, m.Meta)
	b = wire.AppendUint32(b, 4, m.MsgID)
	b = wire.AppendBytes(b, 5, m.Message)
	return b
}

func (m *RpcForwardMessageBRequest) UnmarshalWire(data []byte) error {
	m.Meta = map[string]string{}
	return wire.Fields(data, func(num int, typ wire.FieldType, v []byte) error {
		switch num {
		case 1:
			m.MsgUniqueID = uint32(wire.Varint(v))
		case 2:
			m.FrontSessionID = wire.Varint(v)
		case 3:
			k, val, err := wire.StringMapEntry(v)
			if err != nil {
				return err
			}
			m.Meta[k] = val
		case 4:
			m.MsgID = uint32(wire.Varint(v))
		case 5:
			m.Message = append([]byte(nil), v...)
		}
		return nil
	})
}

// RpcForwardMessageBResponse is the back→front forwarded reply.
type RpcForwardMessageBResponse struct {
	MsgUniqueID    uint32
	FrontSessionID uint64
	Meta           map[string]string
	MsgID          uint32
	Message        []byte
	ErrorKind      string // empty on success
}

func (m *RpcForwardMessageBResponse) MsgName() string { return "pantyhose.RpcForwardMessageBResponse" }

func (m *RpcForwardMessageBResponse) MarshalWire() []byte {
	var b []byte
	b = wire.AppendUint32(b, 1, m.MsgUniqueID)
	b = wire.AppendUint64(b, 2, m.FrontSessionID)
	b = wire.AppendStringMap(b, 3, m.Meta)
	b = wire.AppendUint32(b, 4, m.MsgID)
	b = wire.AppendBytes(b, 5, m.Message)
	b = wire.AppendString(b, 6, m.ErrorKind)
	return b
}

func (m *RpcForwardMessageBResponse) UnmarshalWire(data []byte) error {
	m.Meta = map[string]string{}
	return wire.Fields(data, func(num int, typ wire.FieldType, v []byte) error {
		switch num {
		case 1:
			m.MsgUniqueID = uint32(wire.Varint(v))
		case 2:
			m.FrontSessionID = wire.Varint(v)
		case 3:
			k, val, err := wire.StringMapEntry(v)
			if err != nil {
				return err
			}
			m.Meta[k] = val
		case 4:
			m.MsgID = uint32(wire.Varint(v))
		case 5:
			m.Message = append([]byte(nil), v...)
		case 6:
			m.ErrorKind = string(v)
		}
		return nil
	})
}

// RpcMessageFResponse is the reply delivered to the client.
type RpcMessageFResponse struct {
	MsgUniqueID uint32
	MsgID       uint32
	Message     []byte
	ErrorKind   string
}

func (m *RpcMessageFResponse) MsgName() string { return "pantyhose.RpcMessageFResponse" }

func (m *RpcMessageFResponse) MarshalWire() []byte {
	var b []byte
	b = wire.AppendUint32(b, 1, m.MsgUniqueID)
	b = wire.AppendUint32(b, 2, m.MsgID)
	b = wire.AppendBytes(b, 3, m.Message)
	b = wire.AppendString(b, 4, m.ErrorKind)
	return b
}

func (m *RpcMessageFResponse) UnmarshalWire(data []byte) error {
	return wire.Fields(data, func(num int, typ wire.FieldType, v []byte) error {
		switch num {
		case 1:
			m.MsgUniqueID = uint32(wire.Varint(v))
		case 2:
			m.MsgID = uint32(wire.Varint(v))
		case 3:
			m.Message = append([]byte(nil), v...)
		case 4:
			m.ErrorKind = string(v)
		}
		return nil
	})
}

// RpcMessageFNotify is the client-to-front one-way variant. msg_unique_id
// is carried but advisory only (spec open question (i) — never matched).
type RpcMessageFNotify struct {
	MsgUniqueID uint32
	ServerType  string
	MsgID       uint32
	Message     []byte
}

func (m *RpcMessageFNotify) MsgName() string { return "pantyhose.RpcMessageFNotify" }

func (m *RpcMessageFNotify) MarshalWire() []byte {
	var b []byte
	b = wire.AppendUint32(b, 1, m.MsgUniqueID)
	b = wire.AppendString(b, 2, m.ServerType)
	b = wire.AppendUint32(b, 3, m.MsgID)
	b = wire.AppendBytes(b, 4, m.Message)
	return b
}

func (m *RpcMessageFNotify) UnmarshalWire(data []byte) error {
	return wire.Fields(data, func(num int, typ wire.FieldType, v []byte) error {
		switch num {
		case 1:
			m.MsgUniqueID = uint32(wire.Varint(v))
		case 2:
			m.ServerType = string(v)
		case 3:
			m.MsgID = uint32(wire.Varint(v))
		case 4:
			m.Message = append([]byte(nil), v...)
		}
		return nil
	})
}

// RpcForwardMessageBNotify is the forwarded one-way variant.
type RpcForwardMessageBNotify struct {
	MsgUniqueID    uint32
	FrontSessionID uint64
	MsgID          uint32
	Message        []byte
}

func (m *RpcForwardMessageBNotify) MsgName() string { return "pantyhose.RpcForwardMessageBNotify" }

func (m *RpcForwardMessageBNotify) MarshalWire() []byte {
	var b []byte
	b = wire.AppendUint32(b, 1, m.MsgUniqueID)
	b = wire.AppendUint64(b, 2, m.FrontSessionID)
	b = wire.AppendUint32(b, 3, m.MsgID)
	b = wire.AppendBytes(b, 4, m.Message)
	return b
}

func (m *RpcForwardMessageBNotify) UnmarshalWire(data []byte) error {
	return wire.Fields(data, func(num int, typ wire.FieldType, v []byte) error {
		switch num {
		case 1:
			m.MsgUniqueID = uint32(wire.Varint(v))
		case 2:
			m.FrontSessionID = wire.Varint(v)
		case 3:
			m.MsgID = uint32(wire.Varint(v))
		case 4:
			m.Message = append([]byte(nil), v...)
		}
		return nil
	})
}
