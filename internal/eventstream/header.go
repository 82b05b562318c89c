package eventstream

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ValueType is the one-byte tag that precedes every header value on the wire
type ValueType uint8

const (
	TypeBoolTrue  ValueType = 0
	TypeBoolFalse ValueType = 1
	TypeByte      ValueType = 2
	TypeShort     ValueType = 3
	TypeInt       ValueType = 4
	TypeLong      ValueType = 5
	TypeBytes     ValueType = 6
	TypeString    ValueType = 7
	TypeTimestamp ValueType = 8
	TypeUUID      ValueType = 9
)

const (
	maxHeaderNameLen  = 255
	maxHeaderValueLen = 32767
)

// HeaderValue is a typed header value. The concrete types below are the
// only implementations.
type HeaderValue interface {
	Type() ValueType
	String() string

	// encodedLen is the size of the value on the wire, excluding the type tag
	encodedLen() int
	put(b []byte)
}

// BoolValue is encoded purely through its type tag
type BoolValue bool

func (v BoolValue) Type() ValueType {
	if v {
		return TypeBoolTrue
	}
	return TypeBoolFalse
}
func (v BoolValue) String() string { return fmt.Sprintf("%t", bool(v)) }
func (BoolValue) encodedLen() int { return 0 }
func (BoolValue) put([]byte) {}

type ByteValue int8

func (ByteValue) Type() ValueType { return TypeByte }
func (v ByteValue) String() string { return fmt.Sprintf("%d", int8(v)) }
func (ByteValue) encodedLen() int { return 1 }
func (v ByteValue) put(b []byte) { b[0] = byte(v) }

type ShortValue int16

func (ShortValue) Type() ValueType { return TypeShort }
func (v ShortValue) String() string { return fmt.Sprintf("%d", int16(v)) }
func (ShortValue) encodedLen() int { return 2 }
func (v ShortValue) put(b []byte) { binary.BigEndian.PutUint16(b, uint16(v)) }

type IntValue int32

func (IntValue) Type() ValueType { return TypeInt }
func (v IntValue) String() string { return fmt.Sprintf("%d", int32(v)) }
func (IntValue) encodedLen() int { return 4 }
func (v IntValue) put(b []byte) { binary.BigEndian.PutUint32(b, uint32(v)) }

type LongValue int64

func (LongValue) Type() ValueType { return TypeLong }
func (v LongValue) String() string { return fmt.Sprintf("%d", int64(v)) }
func (LongValue) encodedLen() int { return 8 }
func (v LongValue) put(b []byte) { binary.BigEndian.PutUint64(b, uint64(v)) }

type BytesValue []byte

func (BytesValue) Type() ValueType { return TypeBytes }
func (v BytesValue) String() string { return fmt.Sprintf("%x", []byte(v)) }
func (v BytesValue) encodedLen() int { return 2 + len(v) }
func (v BytesValue) put(b []byte) {
	binary.BigEndian.PutUint16(b, uint16(len(v)))
	copy(b[2:], v)
}

type StringValue string

func (StringValue) Type() ValueType { return TypeString }
func (v StringValue) String() string { return string(v) }
func (v StringValue) encodedLen() int { return 2 + len(v) }
func (v StringValue) put(b []byte) {
	binary.BigEndian.PutUint16(b, uint16(len(v)))
	copy(b[2:], v)
}

// TimestampValue is carried as milliseconds since the Unix epoch, so
// anything finer than a millisecond is lost.
type TimestampValue time.Time

func (TimestampValue) Type() ValueType { return TypeTimestamp }
func (v TimestampValue) String() string { return time.Time(v).UTC().Format(time.RFC3339Nano) }
func (TimestampValue) encodedLen() int { return 8 }
func (v TimestampValue) put(b []byte) {
	binary.BigEndian.PutUint64(b, uint64(time.Time(v).UnixMilli()))
}

type UUIDValue uuid.UUID

func (UUIDValue) Type() ValueType { return TypeUUID }
func (v UUIDValue) String() string { return uuid.UUID(v).String() }
func (UUIDValue) encodedLen() int { return 16 }
func (v UUIDValue) put(b []byte) { copy(b, v[:]) }

// Header is a single named header value
type Header struct {
	Name  string
	Value HeaderValue
}

// Headers is an ordered set of headers with unique names
type Headers []Header

// Get returns the value stored under name
func (h Headers) Get(name string) (HeaderValue, bool) {
	for _, hdr := range h {
		if hdr.Name == name {
			return hdr.Value, true
		}
	}
	return nil, false
}

// String returns the value of a string header, or "" when the header is
// absent or not a string
func (h Headers) String(name string) string {
	v, ok := h.Get(name)
	if !ok {
		return ""
	}
	s, ok := v.(StringValue)
	if !ok {
		return ""
	}
	return string(s)
}

// Set replaces the value of an existing header in place, or appends a new one
func (h *Headers) Set(name string, value HeaderValue) {
	for i := range *h {
		if (*h)[i].Name == name {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Header{Name: name, Value: value})
}

func (h Headers) validate() error {
	seen := make(map[string]struct{}, len(h))
	for _, hdr := range h {
		if len(hdr.Name) == 0 || len(hdr.Name) > maxHeaderNameLen {
			return fmt.Errorf("%w: name length %d", ErrInvalidHeader, len(hdr.Name))
		}
		if hdr.Value == nil {
			return fmt.Errorf("%w: %q has no value", ErrInvalidHeader, hdr.Name)
		}
		switch v := hdr.Value.(type) {
		case BytesValue:
			if len(v) > maxHeaderValueLen {
				return fmt.Errorf("%w: %q value length %d", ErrInvalidHeader, hdr.Name, len(v))
			}
		case StringValue:
			if len(v) > maxHeaderValueLen {
				return fmt.Errorf("%w: %q value length %d", ErrInvalidHeader, hdr.Name, len(v))
			}
		}
		if _, dup := seen[hdr.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateHeader, hdr.Name)
		}
		seen[hdr.Name] = struct{}{}
	}
	return nil
}

func (h Headers) encodedLen() int {
	n := 0
	for _, hdr := range h {
		n += 1 + len(hdr.Name) + 1 + hdr.Value.encodedLen()
	}
	return n
}

// put writes the header block into b, which must be exactly encodedLen() bytes
func (h Headers) put(b []byte) {
	off := 0
	for _, hdr := range h {
		b[off] = byte(len(hdr.Name))
		off++
		off += copy(b[off:], hdr.Name)
		b[off] = byte(hdr.Value.Type())
		off++
		hdr.Value.put(b[off:])
		off += hdr.Value.encodedLen()
	}
}

// decodeHeaders parses a complete header block
func decodeHeaders(b []byte) (Headers, error) {
	var headers Headers
	seen := make(map[string]struct{})
	for len(b) > 0 {
		nameLen := int(b[0])
		b = b[1:]
		if nameLen == 0 || len(b) < nameLen+1 {
			return nil, fmt.Errorf("%w: truncated header name", ErrInvalidHeader)
		}
		name := string(b[:nameLen])
		b = b[nameLen:]
		tag := ValueType(b[0])
		b = b[1:]

		value, n, err := decodeValue(tag, b)
		if err != nil {
			return nil, fmt.Errorf("header %q: %w", name, err)
		}
		b = b[n:]

		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateHeader, name)
		}
		seen[name] = struct{}{}
		headers = append(headers, Header{Name: name, Value: value})
	}
	return headers, nil
}

func decodeValue(tag ValueType, b []byte) (HeaderValue, int, error) {
	need := func(n int) error {
		if len(b) < n {
			return fmt.Errorf("%w: value needs %d bytes, have %d", ErrInvalidHeader, n, len(b))
		}
		return nil
	}

	switch tag {
	case TypeBoolTrue:
		return BoolValue(true), 0, nil
	case TypeBoolFalse:
		return BoolValue(false), 0, nil
	case TypeByte:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return ByteValue(int8(b[0])), 1, nil
	case TypeShort:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return ShortValue(int16(binary.BigEndian.Uint16(b))), 2, nil
	case TypeInt:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return IntValue(int32(binary.BigEndian.Uint32(b))), 4, nil
	case TypeLong:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return LongValue(int64(binary.BigEndian.Uint64(b))), 8, nil
	case TypeBytes, TypeString:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		n := int(binary.BigEndian.Uint16(b))
		if err := need(2 + n); err != nil {
			return nil, 0, err
		}
		if tag == TypeString {
			return StringValue(b[2 : 2+n]), 2 + n, nil
		}
		v := make([]byte, n)
		copy(v, b[2:2+n])
		return BytesValue(v), 2 + n, nil
	case TypeTimestamp:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		ms := int64(binary.BigEndian.Uint64(b))
		return TimestampValue(time.UnixMilli(ms)), 8, nil
	case TypeUUID:
		if err := need(16); err != nil {
			return nil, 0, err
		}
		var id uuid.UUID
		copy(id[:], b[:16])
		return UUIDValue(id), 16, nil
	default:
		return nil, 0, fmt.Errorf("%w: unknown value type %d", ErrInvalidHeader, tag)
	}
}
