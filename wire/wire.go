// Package wire provides small helpers on top of
// google.golang.org/protobuf/encoding/protowire for hand-written message
// types that need a proto3-wire-compatible payload without running a
// .proto codegen pipeline.
//
// Each message type in package message implements MarshalWire/UnmarshalWire
// directly against these helpers: tag+varint for integers, tag+length-
// prefixed for strings/bytes/nested messages, and repeated map-entry
// submessages for the few map fields the protocol needs (the forward
// envelopes' meta map). Unknown fields are always skipped rather than rejected.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers below 1 are invalid on the proto3 wire; this error signals
// a message definition bug, not a peer protocol violation.
var errBadFieldNumber = fmt.Errorf("wire: field number must be >= 1")

func AppendUint64(buf []byte, field protowire.Number, v uint64) []byte {
	if v == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, field, protowire.VarintType)
	return protowire.AppendVarint(buf, v)
}

func AppendUint32(buf []byte, field protowire.Number, v uint32) []byte {
	return AppendUint64(buf, field, uint64(v))
}

func AppendString(buf []byte, field protowire.Number, s string) []byte {
	if s == "" {
		return buf
	}
	buf = protowire.AppendTag(buf, field, protowire.BytesType)
	return protowire.AppendString(buf, s)
}

func AppendBytes(buf []byte, field protowire.Number, b []byte) []byte {
	if len(b) == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, field, protowire.BytesType)
	return protowire.AppendBytes(buf, b)
}

// AppendStringMap encodes a map[string]string as a repeated sequence of
// proto3 map-entry submessages (field 1 = key, field 2 = value), matching
// the wire shape the proto3 compiler generates for map<string,string>.
func AppendStringMap(buf []byte, field protowire.Number, m map[string]string) []byte {
	for k, v := range m {
		var entry []byte
		entry = AppendString(entry, 1, k)
		entry = AppendString(entry, 2, v)
		buf = protowire.AppendTag(buf, field, protowire.BytesType)
		buf = protowire.AppendBytes(buf, entry)
	}
	return buf
}

// FieldType distinguishes how a field's value was carried on the wire, for
// callers of Fields that need to tell a varint apart from a length-
// delimited value. Callers that already know each field's expected shape
// (every message type in package message does) can ignore it.
type FieldType int

const (
	VarintField FieldType = iota
	BytesField
	Fixed32Field
	Fixed64Field
)

// Fields walks every (field number, value) pair in data, invoking fn for
// each with the field number as a plain int (protowire.Number's underlying
// type) so callers outside this package never need to import protowire
// themselves. Fields skips anything fn doesn't recognize by relying on
// protowire's own self-describing wire types.
func Fields(data []byte, fn func(num int, typ FieldType, v []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch typ {
		case protowire.VarintType:
			_, vn := protowire.ConsumeVarint(data)
			if vn < 0 {
				return protowire.ParseError(vn)
			}
			if err := fn(int(num), VarintField, data[:vn]); err != nil {
				return err
			}
			data = data[vn:]
		case protowire.BytesType:
			b, vn := protowire.ConsumeBytes(data)
			if vn < 0 {
				return protowire.ParseError(vn)
			}
			if err := fn(int(num), BytesField, b); err != nil {
				return err
			}
			data = data[vn:]
		case protowire.Fixed32Type:
			_, vn := protowire.ConsumeFixed32(data)
			if vn < 0 {
				return protowire.ParseError(vn)
			}
			if err := fn(int(num), Fixed32Field, data[:vn]); err != nil {
				return err
			}
			data = data[vn:]
		case protowire.Fixed64Type:
			_, vn := protowire.ConsumeFixed64(data)
			if vn < 0 {
				return protowire.ParseError(vn)
			}
			if err := fn(int(num), Fixed64Field, data[:vn]); err != nil {
				return err
			}
			data = data[vn:]
		default:
			vn := protowire.ConsumeFieldValue(num, typ, data)
			if vn < 0 {
				return protowire.ParseError(vn)
			}
			data = data[vn:]
		}
	}
	return nil
}

// Varint decodes a varint-encoded value previously isolated by Fields.
func Varint(v []byte) uint64 {
	n, _ := protowire.ConsumeVarint(v)
	return n
}

// StringMapEntry decodes a single map-entry submessage produced by
// AppendStringMap.
func StringMapEntry(entry []byte) (key, value string, err error) {
	err = Fields(entry, func(num int, typ FieldType, v []byte) error {
		if typ != BytesField {
			return nil
		}
		switch num {
		case 1:
			key = string(v)
		case 2:
			value = string(v)
		}
		return nil
	})
	return key, value, err
}
