package session

import "testing"

type fakeConn struct {
	addr string
	sent []uint16
	fail bool
}

func (f *fakeConn) Send(msgID uint16, payload []byte) error {
	if f.fail {
		return errFake
	}
	f.sent = append(f.sent, msgID)
	return nil
}
func (f *fakeConn) Close(reason error) error { return nil }
func (f *fakeConn) RemoteAddr() string       { return f.addr }

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errFake = fakeErr("send failed")

func TestCreateAssignsMonotonicIDsStartingAtOne(t *testing.T) {
	m := NewManager(nil)
	a := m.Create(&fakeConn{addr: "a"})
	b := m.Create(&fakeConn{addr: "b"})
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("ids = %d, %d, want 1, 2", a.ID, b.ID)
	}
}

func TestRemoveDetachesFromGroup(t *testing.T) {
	m := NewManager(nil)
	fs := m.Create(&fakeConn{addr: "a"})
	m.Join(fs.ID, "lobby")
	if len(m.SessionsIn("lobby")) != 1 {
		t.Fatal("expected session in lobby")
	}
	m.Remove(fs.ID)
	if len(m.SessionsIn("lobby")) != 0 {
		t.Fatal("expected lobby empty after remove")
	}
	if _, ok := m.Get(fs.ID); ok {
		t.Fatal("expected session gone")
	}
}

func TestBroadcastSkipsFailedSendsWithoutStopping(t *testing.T) {
	m := NewManager(nil)
	ok1 := &fakeConn{addr: "a"}
	bad := &fakeConn{addr: "b", fail: true}
	ok2 := &fakeConn{addr: "c"}
	fs1 := m.Create(ok1)
	fs2 := m.Create(bad)
	fs3 := m.Create(ok2)
	m.Join(fs1.ID, "room")
	m.Join(fs2.ID, "room")
	m.Join(fs3.ID, "room")

	m.Broadcast("room", 9, []byte("hi"))

	if len(ok1.sent) != 1 || len(ok2.sent) != 1 {
		t.Fatalf("expected both live connections to receive the broadcast, got %v %v", ok1.sent, ok2.sent)
	}
}

func TestBroadcastRemovesSessionOnFailedSend(t *testing.T) {
	m := NewManager(nil)
	bad := &fakeConn{addr: "b", fail: true}
	fs := m.Create(bad)
	m.Join(fs.ID, "room")

	m.Broadcast("room", 9, []byte("hi"))

	if _, ok := m.Get(fs.ID); ok {
		t.Fatal("expected failing session to be removed after broadcast")
	}
	if len(m.SessionsIn("room")) != 0 {
		t.Fatal("expected room empty after failing session removed")
	}

	m.Broadcast("room", 9, []byte("again"))
	if len(bad.sent) != 0 {
		t.Fatal("expected no further sends to a removed session")
	}
}

func TestJoinMovesBetweenGroups(t *testing.T) {
	m := NewManager(nil)
	fs := m.Create(&fakeConn{addr: "a"})
	m.Join(fs.ID, "room-1")
	m.Join(fs.ID, "room-2")
	if len(m.SessionsIn("room-1")) != 0 {
		t.Fatal("expected room-1 empty after move")
	}
	if len(m.SessionsIn("room-2")) != 1 {
		t.Fatal("expected room-2 to hold the session")
	}
}
