// Package wire frames local collection records for byte-store providers.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	version   byte = 1
	kindValue byte = 1
	kindHash  byte = 2
)

var (
	ErrCorrupt = errors.New("collcache: corrupt record")
	magic4     = [...]byte{'C', 'O', 'L', 'C'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Field is one encoded hash field.
type Field struct {
	Name    string
	Payload []byte
}

// Record is a stored item. Exactly one of Value / Fields is meaningful,
// selected by Hash.
type Record struct {
	Type      string
	ExpiresAt int64 // unix nanos; 0 = no expiry
	Hash      bool
	Value     []byte
	Fields    []Field
}

// Header: magic(4) | ver(1) | kind(1) | expiresAt(i64 be) | tlen(u8) | type(tlen)
//
//	value: vlen(u32 be) | payload(vlen)
//	hash:  n(u32 be) | { klen(u16 be) | key(klen) | vlen(u32 be) | payload(vlen) } * n
func EncodeRecord(r Record) ([]byte, error) {
	if l := len(r.Type); l == 0 || l > 0xFF {
		return nil, fmt.Errorf("collcache: invalid type length %d", l)
	}
	total := 4 + 1 + 1 + 8 + 1 + len(r.Type) + 4
	if r.Hash {
		for _, f := range r.Fields {
			total += 2 + len(f.Name) + 4 + len(f.Payload)
		}
	} else {
		total += len(r.Value)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	if r.Hash {
		buf.WriteByte(kindHash)
	} else {
		buf.WriteByte(kindValue)
	}

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], uint64(r.ExpiresAt))
	buf.Write(u8[:])
	buf.WriteByte(byte(len(r.Type)))
	buf.WriteString(r.Type)

	if !r.Hash {
		binary.BigEndian.PutUint32(u4[:], uint32(len(r.Value)))
		buf.Write(u4[:])
		buf.Write(r.Value)
		return buf.Bytes(), nil
	}

	binary.BigEndian.PutUint32(u4[:], uint32(len(r.Fields)))
	buf.Write(u4[:])
	for _, f := range r.Fields {
		if l := len(f.Name); l == 0 || l > 0xFFFF {
			return nil, fmt.Errorf("collcache: invalid field name length %d", l)
		}
		binary.BigEndian.PutUint16(u2[:], uint16(len(f.Name)))
		buf.Write(u2[:])
		buf.WriteString(f.Name)

		binary.BigEndian.PutUint32(u4[:], uint32(len(f.Payload)))
		buf.Write(u4[:])
		buf.Write(f.Payload)
	}
	return buf.Bytes(), nil
}

// DecodeRecord parses a record. Payload slices alias b.
// Trailing bytes are rejected.
func DecodeRecord(b []byte) (Record, error) {
	const hdr = 4 + 1 + 1 + 8 + 1
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Record{}, ErrCorrupt
	}
	var r Record
	switch b[5] {
	case kindValue:
	case kindHash:
		r.Hash = true
	default:
		return Record{}, ErrCorrupt
	}

	off := 6
	r.ExpiresAt = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	tlen := int(b[off])
	off++
	if tlen == 0 || tlen > len(b)-off {
		return Record{}, ErrCorrupt
	}
	r.Type = string(b[off : off+tlen])
	off += tlen

	if off+4 > len(b) {
		return Record{}, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4

	if !r.Hash {
		if n < 0 || n > len(b)-off {
			return Record{}, ErrCorrupt
		}
		r.Value = b[off : off+n]
		off += n
		if off != len(b) {
			return Record{}, ErrCorrupt
		}
		return r, nil
	}

	if n < 0 {
		return Record{}, ErrCorrupt
	}
	// do not trust n for preallocation; a field needs at least 7 bytes
	if max := (len(b) - off) / 7; n > max {
		return Record{}, ErrCorrupt
	}
	r.Fields = make([]Field, 0, n)
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return Record{}, ErrCorrupt
		}
		klen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if klen <= 0 || klen > len(b)-off {
			return Record{}, ErrCorrupt
		}
		name := string(b[off : off+klen])
		off += klen

		if off+4 > len(b) {
			return Record{}, ErrCorrupt
		}
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen < 0 || vlen > len(b)-off {
			return Record{}, ErrCorrupt
		}
		r.Fields = append(r.Fields, Field{Name: name, Payload: b[off : off+vlen]})
		off += vlen
	}
	if off != len(b) {
		return Record{}, ErrCorrupt
	}
	return r, nil
}
