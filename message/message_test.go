package message

import (
	"bytes"
	"testing"
)

func TestFactoryRoundTrip(t *testing.T) {
	f := NewFactory()

	original := &RpcMessageFRequest{
		MsgUniqueID: 42,
		ServerType:  "chat",
		MsgID:       9,
		Message:     []byte("hi"),
	}

	id, payload, err := f.Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := f.Decode(id, payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	got, ok := decoded.(*RpcMessageFRequest)
	if !ok {
		t.Fatalf("decoded type = %T, want *RpcMessageFRequest", decoded)
	}
	if got.MsgUniqueID != original.MsgUniqueID || got.ServerType != original.ServerType ||
		got.MsgID != original.MsgID || !bytes.Equal(got.Message, original.Message) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, original)
	}
}

func TestFactoryIDAssignmentIsDeterministic(t *testing.T) {
	f1 := NewFactory()
	f2 := NewFactory()

	for name := range f1.byName {
		id1, ok1 := f1.IDOf(name)
		id2, ok2 := f2.IDOf(name)
		if !ok1 || !ok2 || id1 != id2 {
			t.Fatalf("id for %s not stable across factory builds: %d vs %d", name, id1, id2)
		}
	}
}

func TestFactoryIDsStartAtOneAndAreDense(t *testing.T) {
	f := NewFactory()
	seen := make(map[uint16]bool)
	for _, d := range f.byID {
		seen[d.ID] = true
	}
	for i := 1; i <= len(f.byID); i++ {
		if !seen[uint16(i)] {
			t.Fatalf("expected id %d to be assigned, ids are not dense from 1", i)
		}
	}
}

func TestDecodeUnknownMsgID(t *testing.T) {
	f := NewFactory()
	if _, err := f.Decode(65535, nil); err == nil {
		t.Fatal("expected error decoding unknown msg_id")
	}
}

func TestRpcForwardMessageBRequestRoundTripWithMeta(t *testing.T) {
	f := NewFactory()
	original := &RpcForwardMessageBRequest{
		MsgUniqueID:    7,
		FrontSessionID: 1001,
		Meta:           map[string]string{"chat": "13"},
		MsgID:          3,
		Message:        []byte("payload"),
	}

	id, payload, err := f.Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := f.Decode(id, payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := decoded.(*RpcForwardMessageBRequest)
	if got.MsgUniqueID != original.MsgUniqueID || got.FrontSessionID != original.FrontSessionID {
		t.Fatalf("scalar fields mismatch: got %+v", got)
	}
	if got.Meta["chat"] != "13" {
		t.Fatalf("meta map not preserved: got %+v", got.Meta)
	}
}

func TestClusterMemberNotifyIdempotent(t *testing.T) {
	f := NewFactory()
	member := ClusterMember{ServerType: "chat", ServerID: 12, Endpoints: "127.0.0.1:3102", Role: "inbound"}
	n := &NodeJoinedBNotify{Member: member}

	id, payload, err := f.Encode(n)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	d1, _ := f.Decode(id, payload)
	d2, _ := f.Decode(id, payload)
	got1 := d1.(*NodeJoinedBNotify)
	got2 := d2.(*NodeJoinedBNotify)
	if *got1 != *got2 {
		t.Fatalf("reapplying the same notify changed the decoded result: %+v vs %+v", got1, got2)
	}
	if got1.Member != member {
		t.Fatalf("member mismatch: got %+v want %+v", got1.Member, member)
	}
}
