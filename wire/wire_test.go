package wire

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestAppendUint64SkipsZero(t *testing.T) {
	buf := AppendUint64(nil, 1, 0)
	if len(buf) != 0 {
		t.Fatalf("AppendUint64(0) = %v, want empty (proto3 default omitted)", buf)
	}

	buf = AppendUint64(nil, 1, 42)
	var got uint64
	err := Fields(buf, func(num int, typ FieldType, v []byte) error {
		if num != 1 || typ != VarintField {
			t.Fatalf("unexpected field num=%d typ=%v", num, typ)
		}
		got = Varint(v)
		return nil
	})
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}
	if got != 42 {
		t.Fatalf("got = %d, want 42", got)
	}
}

func TestAppendStringRoundTrip(t *testing.T) {
	buf := AppendString(nil, 2, "hello")
	var got string
	err := Fields(buf, func(num int, typ FieldType, v []byte) error {
		if num != 2 || typ != BytesField {
			t.Fatalf("unexpected field num=%d typ=%v", num, typ)
		}
		got = string(v)
		return nil
	})
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}
	if got != "hello" {
		t.Fatalf("got = %q, want %q", got, "hello")
	}
}

func TestAppendStringSkipsEmpty(t *testing.T) {
	if buf := AppendString(nil, 1, ""); len(buf) != 0 {
		t.Fatalf("AppendString(\"\") = %v, want empty", buf)
	}
}

func TestAppendStringMapRoundTrip(t *testing.T) {
	m := map[string]string{"a": "1", "b": "2"}
	buf := AppendStringMap(nil, 3, m)

	got := make(map[string]string)
	err := Fields(buf, func(num int, typ FieldType, v []byte) error {
		if num != 3 || typ != BytesField {
			t.Fatalf("unexpected field num=%d typ=%v", num, typ)
		}
		k, val, err := StringMapEntry(v)
		if err != nil {
			return err
		}
		got[k] = val
		return nil
	})
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}
	if len(got) != len(m) {
		t.Fatalf("got %v, want %v", got, m)
	}
	for k, v := range m {
		if got[k] != v {
			t.Fatalf("got[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestFieldsSkipsUnknownFields(t *testing.T) {
	var buf []byte
	buf = AppendString(buf, 1, "known")
	buf = protowire.AppendTag(buf, 99, protowire.Fixed32Type)
	buf = protowire.AppendFixed32(buf, 7)
	buf = AppendUint64(buf, 2, 5)

	var seen []int
	err := Fields(buf, func(num int, typ FieldType, v []byte) error {
		seen = append(seen, num)
		return nil
	})
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[1] != 99 || seen[2] != 2 {
		t.Fatalf("seen = %v, want [1 99 2]", seen)
	}
}

func TestFieldsRejectsTruncatedTag(t *testing.T) {
	buf := []byte{0xff} // incomplete varint tag
	if err := Fields(buf, func(int, FieldType, []byte) error { return nil }); err == nil {
		t.Fatal("expected error for truncated tag")
	}
}
