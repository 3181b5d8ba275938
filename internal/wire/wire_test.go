package wire

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func mustDecode(t *testing.T, b []byte) Record {
	t.Helper()
	r, err := DecodeRecord(b)
	if err != nil {
		t.Fatalf("DecodeRecord error: %v", err)
	}
	return r
}

func mustEncode(t *testing.T, r Record) []byte {
	t.Helper()
	b, err := EncodeRecord(r)
	if err != nil {
		t.Fatalf("EncodeRecord error: %v", err)
	}
	return b
}

func TestValueRecordRoundTrip(t *testing.T) {
	cases := []Record{
		{Type: "STRING", Value: nil},
		{Type: "NUMBER", ExpiresAt: 42, Value: []byte("12.5")},
		{Type: "OBJECT", ExpiresAt: -1, Value: []byte{0, 1, 2, 3}},
	}
	for _, tc := range cases {
		got := mustDecode(t, mustEncode(t, tc))
		if got.Hash || got.Type != tc.Type || got.ExpiresAt != tc.ExpiresAt {
			t.Fatalf("header mismatch: got=%+v want=%+v", got, tc)
		}
		if !bytes.Equal(got.Value, tc.Value) {
			t.Fatalf("value mismatch: got %x want %x", got.Value, tc.Value)
		}
	}
}

func TestHashRecordRoundTrip(t *testing.T) {
	in := Record{
		Type:      "HASH",
		Hash:      true,
		ExpiresAt: 7,
		Fields: []Field{
			{Name: "a", Payload: []byte("1")},
			{Name: "b", Payload: nil},
			{Name: "c", Payload: []byte{9, 8, 7}},
		},
	}
	got := mustDecode(t, mustEncode(t, in))
	if !got.Hash || len(got.Fields) != len(in.Fields) {
		t.Fatalf("got=%+v", got)
	}
	for i := range in.Fields {
		if got.Fields[i].Name != in.Fields[i].Name || !bytes.Equal(got.Fields[i].Payload, in.Fields[i].Payload) {
			t.Fatalf("field %d mismatch: got=%+v want=%+v", i, got.Fields[i], in.Fields[i])
		}
	}
}

func TestRejectsTrailingBytes(t *testing.T) {
	for _, r := range []Record{
		{Type: "STRING", Value: []byte("x")},
		{Type: "HASH", Hash: true, Fields: []Field{{Name: "k", Payload: []byte("v")}}},
	} {
		enc := append(mustEncode(t, r), 0xDE, 0xAD)
		if _, err := DecodeRecord(enc); err == nil {
			t.Fatalf("expected error on trailing bytes for %+v", r)
		}
	}
}

func TestCorruptHeaders(t *testing.T) {
	enc := mustEncode(t, Record{Type: "STRING", Value: []byte("abc")})

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := DecodeRecord(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := DecodeRecord(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = 9
	if _, err := DecodeRecord(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// vlen sits after 4 magic +1 ver +1 kind +8 exp +1 tlen +6 "STRING"
	off := 4 + 1 + 1 + 8 + 1 + len("STRING")
	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[off:off+4], uint32(len("abc")+1))
	if _, err := DecodeRecord(tooLong); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	if _, err := DecodeRecord(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
}

func TestBogusFieldCountDoesNotPreallocate(t *testing.T) {
	enc := mustEncode(t, Record{Type: "HASH", Hash: true})
	off := 4 + 1 + 1 + 8 + 1 + len("HASH")
	binary.BigEndian.PutUint32(enc[off:off+4], ^uint32(0))
	if _, err := DecodeRecord(enc); err == nil {
		t.Fatalf("expected error on bogus field count")
	}
}

func TestEncodeValidatesLengths(t *testing.T) {
	if _, err := EncodeRecord(Record{Type: ""}); err == nil {
		t.Fatalf("expected error on empty type")
	}
	if _, err := EncodeRecord(Record{Type: "HASH", Hash: true, Fields: []Field{{Name: ""}}}); err == nil {
		t.Fatalf("expected error on empty field name")
	}
	long := Record{Type: "HASH", Hash: true, Fields: []Field{{Name: strings.Repeat("a", 0x10000)}}}
	if _, err := EncodeRecord(long); err == nil {
		t.Fatalf("expected error on field name > 0xFFFF")
	}
}
