// Package wireframe implements the length-prefixed frame codec shared by
// every TCP and WebSocket connection in the message plane.
//
// The header is just [msg_id:u16 BE][payload_len:W BE] (W is 2 or 4, fixed
// per build) — the payload encoding lives one layer up, in package
// message, not the frame. Decoding is a non-blocking TryFrame over
// a buffer.DynamicBuffer instead of a blocking io.ReadFull(conn), because
// the single-threaded driver must never block waiting for more bytes than
// have actually arrived.
package wireframe

import (
	"encoding/binary"

	"pantyhose/buffer"
	"pantyhose/errs"
)

// Width is the configured byte width of the payload-length field. It is
// fixed for the lifetime of a build and must match across every node in a
// cluster.
type Width int

const (
	Width2 Width = 2
	Width4 Width = 4
)

// DefaultMaxPayload is the default ceiling on payload_len, 16 MiB.
const DefaultMaxPayload = 16 * 1024 * 1024

// Frame is a fully decoded wire frame.
type Frame struct {
	MsgID   uint16
	Payload []byte
}

// Codec encodes and decodes frames at a fixed length-prefix width with a
// fixed oversize ceiling. It is stateless and safe to share.
type Codec struct {
	Width      Width
	MaxPayload uint32
}

// NewCodec builds a Codec with the given width and max payload. Passing
// maxPayload == 0 selects DefaultMaxPayload.
func NewCodec(width Width, maxPayload uint32) *Codec {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Codec{Width: width, MaxPayload: maxPayload}
}

// headerLen is 2 (msg_id) + the configured length width.
func (c *Codec) headerLen() int { return 2 + int(c.Width) }

// Encode serializes msgID/payload into a single frame buffer.
func (c *Codec) Encode(msgID uint16, payload []byte) []byte {
	out := make([]byte, c.headerLen()+len(payload))
	binary.BigEndian.PutUint16(out[0:2], msgID)
	c.putLen(out[2:c.headerLen()], uint32(len(payload)))
	copy(out[c.headerLen():], payload)
	return out
}

func (c *Codec) putLen(dst []byte, n uint32) {
	if c.Width == Width2 {
		binary.BigEndian.PutUint16(dst, uint16(n))
	} else {
		binary.BigEndian.PutUint32(dst, n)
	}
}

func (c *Codec) getLen(src []byte) uint32 {
	if c.Width == Width2 {
		return uint32(binary.BigEndian.Uint16(src))
	}
	return binary.BigEndian.Uint32(src)
}

// TryFrame attempts to pull one complete frame out of buf. It returns
// (frame, true, nil) on success, (nil, false, nil) when more bytes are
// needed, and (nil, false, err) when the peer violated the protocol (in
// which case the connection must be closed — the buffer is left untouched
// so the caller can report exactly what was seen).
func (c *Codec) TryFrame(buf *buffer.DynamicBuffer) (*Frame, bool, error) {
	hl := c.headerLen()
	if buf.Len() < hl {
		return nil, false, nil
	}
	data := buf.Bytes()
	msgID := binary.BigEndian.Uint16(data[0:2])
	payloadLen := c.getLen(data[2:hl])

	if payloadLen > c.MaxPayload {
		return nil, false, errs.New(errs.ProtocolError, "wireframe.TryFrame", oversizeErr{got: payloadLen, max: c.MaxPayload})
	}

	total := hl + int(payloadLen)
	if buf.Len() < total {
		return nil, false, nil
	}

	payload := make([]byte, payloadLen)
	copy(payload, data[hl:total])
	buf.Advance(total)

	return &Frame{MsgID: msgID, Payload: payload}, true, nil
}

type oversizeErr struct {
	got, max uint32
}

func (e oversizeErr) Error() string {
	return "oversize frame: payload_len exceeds max_payload"
}
