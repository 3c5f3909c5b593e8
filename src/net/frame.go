package net

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/ugorji/go/codec"
)

// DefaultMaxFrameSize bounds the length a peer may announce in a frame
// prefix.
const DefaultMaxFrameSize uint32 = 32 << 20

const prefixSize = 4

var (
	// ErrEmptyFrame is returned for a frame announcing a zero length.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrFrameTooLarge is returned for a frame announcing more than the
	// maximum size.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrMalformedFrame is returned when a frame body is not a valid message.
	ErrMalformedFrame = errors.New("malformed frame")
)

var jsonHandle = func() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return jh
}()

// Marshal returns the canonical JSON encoding of the message.
func (m *Message) Marshal() ([]byte, error) {
	var b bytes.Buffer
	enc := codec.NewEncoder(&b, jsonHandle)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal decodes a message from its JSON encoding.
func (m *Message) Unmarshal(data []byte) error {
	dec := codec.NewDecoderBytes(data, jsonHandle)
	if err := dec.Decode(m); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if m.Type == "" {
		return fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return nil
}

// WriteFrame writes msg as a 4-byte big-endian length followed by the
// encoded message, in a single Write.
func WriteFrame(w io.Writer, msg *Message) error {
	body, err := msg.Marshal()
	if err != nil {
		return err
	}

	frame := make([]byte, prefixSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[prefixSize:], body)

	_, err = w.Write(frame)
	return err
}

// ReadFrame reads exactly one frame from r. A maxSize of zero means
// DefaultMaxFrameSize. io.EOF is returned untouched when r is closed before
// the first byte of the prefix.
func ReadFrame(r io.Reader, maxSize uint32) (*Message, error) {
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}

	var prefix [prefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size == 0 {
		return nil, ErrEmptyFrame
	}
	if size > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, maxSize)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	msg := new(Message)
	if err := msg.Unmarshal(body); err != nil {
		return nil, err
	}
	return msg, nil
}
