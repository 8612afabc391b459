package wireframe

import (
	"errors"
	"testing"

	"pantyhose/buffer"
	"pantyhose/errs"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := NewCodec(Width2, 0)
	payload := []byte("hello world")
	frame := c.Encode(7, payload)

	buf := buffer.New()
	buf.Write(frame)

	got, ok, err := c.TryFrame(buf)
	if err != nil || !ok {
		t.Fatalf("TryFrame() = %v, %v, %v", got, ok, err)
	}
	if got.MsgID != 7 || string(got.Payload) != "hello world" {
		t.Fatalf("got %+v", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer should be fully consumed, Len() = %d", buf.Len())
	}
}

func TestTryFrameNeedsMoreBytes(t *testing.T) {
	c := NewCodec(Width2, 0)
	frame := c.Encode(1, []byte("payload"))

	buf := buffer.New()
	buf.Write(frame[:len(frame)-2])

	got, ok, err := c.TryFrame(buf)
	if got != nil || ok || err != nil {
		t.Fatalf("expected (nil, false, nil) for partial frame, got %v, %v, %v", got, ok, err)
	}
}

func TestChunkedStreamProducesFramesInOrder(t *testing.T) {
	c := NewCodec(Width2, 0)
	var all []byte
	want := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	for i, w := range want {
		all = append(all, c.Encode(uint16(i+1), w)...)
	}

	buf := buffer.New()
	var got []*Frame
	for _, bts := range all {
		buf.Write([]byte{bts})
		for {
			f, ok, err := c.TryFrame(buf)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !ok {
				break
			}
			got = append(got, f)
		}
	}

	if len(got) != len(want) {
		t.Fatalf("got %d frames, want %d", len(got), len(want))
	}
	for i, f := range got {
		if f.MsgID != uint16(i+1) || string(f.Payload) != string(want[i]) {
			t.Errorf("frame %d = %+v, want id=%d payload=%q", i, f, i+1, want[i])
		}
	}
}

func TestOversizePayloadRejected(t *testing.T) {
	c := NewCodec(Width2, 4)
	frame := c.Encode(1, []byte("12345")) // 5 bytes > max 4

	buf := buffer.New()
	buf.Write(frame)

	_, ok, err := c.TryFrame(buf)
	if ok || err == nil {
		t.Fatalf("expected oversize error, got ok=%v err=%v", ok, err)
	}
	var e *errs.Error
	if !errors.As(err, &e) || e.Kind != errs.ProtocolError {
		t.Fatalf("expected errs.ProtocolError, got %v", err)
	}
}

func TestExactMaxPayloadAccepted(t *testing.T) {
	c := NewCodec(Width2, 4)
	frame := c.Encode(1, []byte("1234")) // exactly max

	buf := buffer.New()
	buf.Write(frame)

	_, ok, err := c.TryFrame(buf)
	if !ok || err != nil {
		t.Fatalf("expected success at exactly max payload, got ok=%v err=%v", ok, err)
	}
}

func TestZeroLengthPayloadIsValid(t *testing.T) {
	c := NewCodec(Width2, 0)
	frame := c.Encode(9, nil)

	buf := buffer.New()
	buf.Write(frame)

	f, ok, err := c.TryFrame(buf)
	if !ok || err != nil {
		t.Fatalf("expected success for empty payload, got ok=%v err=%v", ok, err)
	}
	if len(f.Payload) != 0 {
		t.Fatalf("expected empty payload, got %v", f.Payload)
	}
}

func TestWidth4SupportsLargerPayloads(t *testing.T) {
	c := NewCodec(Width4, 0)
	payload := make([]byte, 70000)
	frame := c.Encode(3, payload)

	buf := buffer.New()
	buf.Write(frame)

	f, ok, err := c.TryFrame(buf)
	if !ok || err != nil {
		t.Fatalf("TryFrame() = %v, %v, %v", f, ok, err)
	}
	if len(f.Payload) != len(payload) {
		t.Fatalf("payload length = %d, want %d", len(f.Payload), len(payload))
	}
}
