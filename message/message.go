// Package message implements the wire frame used by socketbroker: a typed
// header plus a byte-oriented payload that push and pop as a LIFO stack.
//
// Wire layout (little-endian, no struct padding): identifier K, then a u32
// body length, then a u32 secondary type tag, then exactly body-length
// bytes of payload. See socketbroker SPEC_FULL.md §5.1.
package message

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/socketbroker/socketbroker/wireerr"
)

// Header is the fixed-layout frame header. K is the application-supplied
// message-identifier kind (typically a small unsigned integer type).
type Header[K comparable] struct {
	ID         K
	BodyLength uint32
	Type       uint32
}

// Message is a header plus its payload body.
type Message[K comparable] struct {
	Header Header[K]
	Body   []byte
}

// New builds an empty message with the given identifier.
func New[K comparable](id K) Message[K] {
	return Message[K]{Header: Header[K]{ID: id}}
}

// Size returns the current body length in bytes.
func (m *Message[K]) Size() int {
	return len(m.Body)
}

// Clear zeroes the header and empties the body.
func (m *Message[K]) Clear() {
	m.Header = Header[K]{}
	m.Body = m.Body[:0]
}

// Push appends the little-endian byte image of v to the tail of the body and
// updates Header.BodyLength. Only fixed-size values (integers, arrays,
// structs made solely of those) are accepted; anything else fails at encode
// time, since Go has no standard-layout static_assert equivalent.
func Push[K comparable, T any](m *Message[K], v T) error {
	size := binary.Size(v)
	if size < 0 {
		return fmt.Errorf("message: type %T has no fixed-size binary encoding", v)
	}
	buf := bytes.NewBuffer(m.Body)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("message: push failed: %w", err)
	}
	m.Body = buf.Bytes()
	m.Header.BodyLength = uint32(len(m.Body))
	return nil
}

// Pop removes sizeof(T) bytes from the tail of the body (LIFO, the exact
// inverse of Push) and decodes them into out. Returns a MalformedFrame-typed
// error if the body is shorter than sizeof(T).
func Pop[K comparable, T any](m *Message[K], out *T) error {
	size := binary.Size(*out)
	if size < 0 {
		return fmt.Errorf("message: type %T has no fixed-size binary encoding", *out)
	}
	if len(m.Body) < size {
		return wireerr.NewMalformedFrameError(
			fmt.Sprintf("pop: body has %d bytes, need %d", len(m.Body), size))
	}
	tail := len(m.Body) - size
	r := bytes.NewReader(m.Body[tail:])
	if err := binary.Read(r, binary.LittleEndian, out); err != nil {
		return fmt.Errorf("message: pop failed: %w", err)
	}
	m.Body = m.Body[:tail]
	m.Header.BodyLength = uint32(len(m.Body))
	return nil
}

// headerWireSize returns the byte size of Header[K] as written on the wire:
// sizeof(K) + 4 (BodyLength) + 4 (Type).
func headerWireSize[K comparable]() (int, error) {
	var zero K
	idSize := binary.Size(zero)
	if idSize <= 0 {
		return 0, fmt.Errorf("message: identifier type has no fixed-size binary encoding")
	}
	return idSize + 8, nil
}

// Encode writes the bit-exact wire form header||body to w.
func Encode[K comparable](w io.Writer, m Message[K]) error {
	if _, err := headerWireSize[K](); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, m.Header.ID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, m.Header.BodyLength); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, m.Header.Type); err != nil {
		return err
	}
	if len(m.Body) > 0 {
		if _, err := w.Write(m.Body); err != nil {
			return err
		}
	}
	return nil
}

// DecodeHeader reads just the fixed-size header from r.
func DecodeHeader[K comparable](r io.Reader) (Header[K], error) {
	var h Header[K]
	if err := binary.Read(r, binary.LittleEndian, &h.ID); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.BodyLength); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.Type); err != nil {
		return h, err
	}
	return h, nil
}

// Decode reads one full header+body message from r.
func Decode[K comparable](r io.Reader) (Message[K], error) {
	h, err := DecodeHeader[K](r)
	if err != nil {
		return Message[K]{}, err
	}
	m := Message[K]{Header: h}
	if h.BodyLength > 0 {
		m.Body = make([]byte, h.BodyLength)
		if _, err := io.ReadFull(r, m.Body); err != nil {
			return Message[K]{}, err
		}
	}
	return m, nil
}
