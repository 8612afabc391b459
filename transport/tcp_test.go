package transport

import (
	"net"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"pantyhose/wireframe"
)

func pipeConns(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	return server, client
}

func TestTCPConnectionSendDeliversFrame(t *testing.T) {
	serverSide, clientSide := pipeConns(t)
	codec := wireframe.NewCodec(wireframe.Width2, wireframe.DefaultMaxPayload)

	serverEvents := make(chan Event, 8)
	clientEvents := make(chan Event, 8)

	server := NewTCPConnection(serverSide, codec, serverEvents)
	_ = NewTCPConnection(clientSide, codec, clientEvents)
	defer server.Close(nil)

	if err := server.Send(7, []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case ev := <-clientEvents:
		if ev.Kind != EventFrame {
			t.Fatalf("event kind = %v, want EventFrame", ev.Kind)
		}
		if ev.Frame.MsgID != 7 || string(ev.Frame.Payload) != "hello" {
			t.Fatalf("frame = %+v", ev.Frame)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestTCPConnectionCloseReportsDisconnected(t *testing.T) {
	serverSide, clientSide := pipeConns(t)
	codec := wireframe.NewCodec(wireframe.Width2, wireframe.DefaultMaxPayload)
	events := make(chan Event, 8)

	server := NewTCPConnection(serverSide, codec, events)
	NewTCPConnection(clientSide, codec, make(chan Event, 8))

	server.Close(nil)

	select {
	case ev := <-events:
		if ev.Kind != EventDisconnected {
			t.Fatalf("event kind = %v, want EventDisconnected", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for disconnect event")
	}
}

func TestTCPConnectionSendBackpressure(t *testing.T) {
	serverSide, _ := pipeConns(t)
	codec := wireframe.NewCodec(wireframe.Width2, wireframe.DefaultMaxPayload)
	events := make(chan Event, 8)
	conn := NewTCPConnection(serverSide, codec, events)
	defer conn.Close(nil)

	conn.queueCap = 16
	big := make([]byte, 64)
	if err := conn.Send(1, big); err == nil {
		t.Fatal("expected backpressure error")
	}
}

func TestTCPConnectionLimiterDropsExcessFramesThenCloses(t *testing.T) {
	serverSide, clientSide := pipeConns(t)
	codec := wireframe.NewCodec(wireframe.Width2, wireframe.DefaultMaxPayload)
	serverEvents := make(chan Event, 256)
	clientEvents := make(chan Event, 8)

	limiter := rate.NewLimiter(rate.Limit(1), 1)
	server := NewTCPConnectionWithLimiter(serverSide, codec, serverEvents, limiter)
	client := NewTCPConnection(clientSide, codec, clientEvents)
	defer client.Close(nil)
	defer server.Close(nil)

	for i := 0; i < dropHardCap+5; i++ {
		if err := client.Send(1, []byte("x")); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-serverEvents:
			if ev.Kind == EventDisconnected {
				return
			}
		case <-deadline:
			t.Fatal("expected connection closed after exceeding inbound rate limit")
		}
	}
}
