package router

import (
	"testing"
	"time"

	"pantyhose/backsession"
)

type fakeConn struct{ addr string }

func (f *fakeConn) Send(uint16, []byte) error { return nil }
func (f *fakeConn) Close(error) error         { return nil }
func (f *fakeConn) RemoteAddr() string        { return f.addr }

func registerN(t *testing.T, m *backsession.Manager, serverType string, ids ...uint32) {
	t.Helper()
	for _, id := range ids {
		conn := &fakeConn{addr: serverType}
		m.OnAccept(conn, time.Now())
		if _, err := m.OnRegister(conn, backsession.Key{ServerType: serverType, ServerID: id}, "addr", serverType); err != nil {
			t.Fatalf("OnRegister: %v", err)
		}
	}
}

func TestRoundRobinCyclesThroughCandidates(t *testing.T) {
	backs := backsession.NewManager()
	registerN(t, backs, "chat", 1, 2, 3)
	rm := NewRpcManager(backs)
	rm.SetStrategy("chat", &RoundRobinStrategy{})

	seen := map[uint32]bool{}
	sticky := map[string]uint32{}
	for i := 0; i < 6; i++ {
		bs, err := rm.Resolve(1, sticky, "chat")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		seen[bs.Key.ServerID] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected all 3 candidates to be visited, got %v", seen)
	}
}

func TestStickyStrategyPinsFirstChoice(t *testing.T) {
	backs := backsession.NewManager()
	registerN(t, backs, "chat", 1, 2, 3)
	rm := NewRpcManager(backs)

	sticky := map[string]uint32{}
	first, err := rm.Resolve(42, sticky, "chat")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := rm.Resolve(42, sticky, "chat")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if again.Key != first.Key {
			t.Fatalf("sticky routing changed target: %v vs %v", first.Key, again.Key)
		}
	}
}

func TestHashOnSessionIsDeterministic(t *testing.T) {
	backs := backsession.NewManager()
	registerN(t, backs, "chat", 1, 2, 3, 4)
	rm := NewRpcManager(backs)
	rm.SetStrategy("chat", HashOnSessionStrategy{})

	sticky := map[string]uint32{}
	a, err := rm.Resolve(777, sticky, "chat")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b, err := rm.Resolve(777, map[string]uint32{}, "chat")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a.Key != b.Key {
		t.Fatalf("hash routing not deterministic: %v vs %v", a.Key, b.Key)
	}
}

func TestResolveReturnsErrorWithNoCandidates(t *testing.T) {
	backs := backsession.NewManager()
	rm := NewRpcManager(backs)
	if _, err := rm.Resolve(1, map[string]uint32{}, "chat"); err == nil {
		t.Fatal("expected error when no candidates are registered")
	}
}

func TestStickyStrategyPicksLeastLoaded(t *testing.T) {
	backs := backsession.NewManager()
	registerN(t, backs, "chat", 1, 2, 3)
	rm := NewRpcManager(backs)

	// Pin session 100 to server 1 and raise its load to 5 before a fresh
	// session resolves: the fresh pick should land on 2 or 3, not 1.
	rm.Resolve(100, map[string]uint32{}, "chat")
	bs1, _ := backs.Get(backsession.Key{ServerType: "chat", ServerID: 1})
	bs1.Load = 5

	sticky := map[string]uint32{}
	bs, err := rm.Resolve(200, sticky, "chat")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if bs.Key.ServerID == 1 {
		t.Fatalf("expected the least-loaded instance to win, got %v", bs.Key)
	}
}

func TestReleaseDecrementsLoadForEveryPin(t *testing.T) {
	backs := backsession.NewManager()
	registerN(t, backs, "chat", 1)
	registerN(t, backs, "game", 1)
	rm := NewRpcManager(backs)

	sticky := map[string]uint32{}
	rm.Resolve(1, sticky, "chat")
	rm.Resolve(1, sticky, "game")

	chatBS, _ := backs.Get(backsession.Key{ServerType: "chat", ServerID: 1})
	gameBS, _ := backs.Get(backsession.Key{ServerType: "game", ServerID: 1})
	if chatBS.Load != 1 || gameBS.Load != 1 {
		t.Fatalf("expected both pins to count, got chat=%d game=%d", chatBS.Load, gameBS.Load)
	}

	rm.Release(sticky)

	if chatBS.Load != 0 || gameBS.Load != 0 {
		t.Fatalf("expected Release to zero out both loads, got chat=%d game=%d", chatBS.Load, gameBS.Load)
	}
	if len(sticky) != 0 {
		t.Fatalf("expected Release to clear the sticky map, got %v", sticky)
	}
}
