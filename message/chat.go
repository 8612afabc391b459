package message

import "pantyhose/wire"

// ChatEchoBRequest and ChatEchoBResponse are the example business messages
// used by the echo RPC round-trip scenario. The chat
// server's handler for MSG_ID_CHAT_ECHO_B_REQUEST simply copies Text back.
type ChatEchoBRequest struct {
	Text string
}

func (m *ChatEchoBRequest) MsgName() string { return "pantyhose.ChatEchoBRequest" }

func (m *ChatEchoBRequest) MarshalWire() []byte {
	return wire.AppendString(nil, 1, m.Text)
}

func (m *ChatEchoBRequest) UnmarshalWire(data []byte) error {
	return wire.Fields(data, func(num int, typ wire.FieldType, v []byte) error {
		if num == 1 {
			m.Text = string(v)
		}
		return nil
	})
}

type ChatEchoBResponse struct {
	Text string
}

func (m *ChatEchoBResponse) MsgName() string { return "pantyhose.ChatEchoBResponse" }

func (m *ChatEchoBResponse) MarshalWire() []byte {
	return wire.AppendString(nil, 1, m.Text)
}

func (m *ChatEchoBResponse) UnmarshalWire(data []byte) error {
	return wire.Fields(data, func(num int, typ wire.FieldType, v []byte) error {
		if num == 1 {
			m.Text = string(v)
		}
		return nil
	})
}
