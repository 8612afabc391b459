package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pantyhose/errs"
	"pantyhose/wireframe"
)

func newWSTestServer(t *testing.T, events chan Event) (*httptest.Server, *wireframe.Codec) {
	t.Helper()
	codec := wireframe.NewCodec(wireframe.Width2, wireframe.DefaultMaxPayload)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		NewWebSocketConnection(conn, codec, events)
	}))
	t.Cleanup(srv.Close)
	return srv, codec
}

func TestWebSocketConnectionDeliversFrame(t *testing.T) {
	events := make(chan Event, 8)
	srv, codec := newWSTestServer(t, events)

	wsURL := "ws" + srv.URL[len("http"):]
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer clientConn.Close()

	frame := codec.Encode(3, []byte("ping"))
	if err := clientConn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Kind != EventFrame {
			t.Fatalf("kind = %v, want EventFrame", ev.Kind)
		}
		if ev.Frame.MsgID != 3 || string(ev.Frame.Payload) != "ping" {
			t.Fatalf("frame = %+v", ev.Frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestWebSocketConnectionRejectsTextFrame(t *testing.T) {
	events := make(chan Event, 8)
	srv, _ := newWSTestServer(t, events)

	wsURL := "ws" + srv.URL[len("http"):]
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer clientConn.Close()

	if err := clientConn.WriteMessage(websocket.TextMessage, []byte("not binary")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Kind != EventDisconnected {
			t.Fatalf("kind = %v, want EventDisconnected", ev.Kind)
		}
		kind, ok := errs.KindOf(ev.Err)
		if !ok || kind != errs.ProtocolError {
			t.Fatalf("err = %v, want errs.ProtocolError", ev.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect")
	}
}
