// Package transport implements the framed byte transport from spec.md
// §4.1: SLIP-style escaping over a full-duplex serial byte stream, with
// 0xC0 terminating a frame and 0xDB escaping in-frame occurrences of
// 0xC0/0xDB. This mirrors the original debugger's slip_encode_buffer/
// slip_decode_buffer (original_source/serio.c), reworked around
// io.Reader/io.Writer instead of an AmigaOS IOExtSer request.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const (
	slipEnd       = 0xc0
	slipEsc       = 0xdb
	slipEscapedEnd = 0xdc
	slipEscapedEsc = 0xdd
)

// MaxFrameSize is the largest SLIP-encoded frame the transport will
// produce or accept, per spec.md §6.1.
const MaxFrameSize = 512

// ErrOverflow is returned when an encoded frame, sent or received, would
// exceed MaxFrameSize including its terminator.
var ErrOverflow = errors.New("transport: frame exceeds MAX_FRAME_SIZE")

// ErrBadEscape is returned when a 0xDB byte is followed by anything other
// than 0xDC or 0xDD.
var ErrBadEscape = errors.New("transport: invalid SLIP escape sequence")

// Encode SLIP-encodes data, escaping 0xC0 and 0xDB, without appending the
// terminating 0xC0 (callers append it when writing to the wire).
func Encode(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data)+2)
	for _, b := range data {
		switch b {
		case slipEnd:
			out = append(out, slipEsc, slipEscapedEnd)
		case slipEsc:
			out = append(out, slipEsc, slipEscapedEsc)
		default:
			out = append(out, b)
		}
		if len(out) > MaxFrameSize-1 {
			return nil, ErrOverflow
		}
	}
	return out, nil
}

// Decode reverses Encode. frame must not include the terminating 0xC0.
func Decode(frame []byte) ([]byte, error) {
	out := make([]byte, 0, len(frame))
	for i := 0; i < len(frame); i++ {
		b := frame[i]
		if b == slipEsc {
			i++
			if i >= len(frame) {
				return nil, ErrBadEscape
			}
			switch frame[i] {
			case slipEscapedEnd:
				out = append(out, slipEnd)
			case slipEscapedEsc:
				out = append(out, slipEsc)
			default:
				return nil, ErrBadEscape
			}
		} else {
			out = append(out, b)
		}
	}
	return out, nil
}

// Framer reads and writes whole SLIP frames over an underlying
// io.ReadWriter, such as a goserial *serial.Port opened in raw mode or,
// in tests, an in-memory pipe.
type Framer struct {
	w io.Writer
	r *bufio.Reader
}

// New wraps rw for framed send/receive.
func New(rw io.ReadWriter) *Framer {
	return &Framer{w: rw, r: bufio.NewReader(rw)}
}

// SendFrame encodes data and writes it terminated by 0xC0.
func (f *Framer) SendFrame(data []byte) error {
	encoded, err := Encode(data)
	if err != nil {
		return err
	}
	if len(encoded)+1 > MaxFrameSize {
		return ErrOverflow
	}
	if _, err := f.w.Write(append(encoded, slipEnd)); err != nil {
		return fmt.Errorf("transport: write failed: %w", err)
	}
	return nil
}

// RecvFrame reads bytes up to and including the next 0xC0 terminator and
// returns the decoded payload. An empty frame (terminator with no
// preceding bytes) decodes to a zero-length, non-nil slice; per spec.md
// §4.1 it is the next layer's job to discard it. Bytes read before the
// first 0xC0 seen by a fresh Framer are not discarded: they are decoded
// and returned as that first frame.
func (f *Framer) RecvFrame() ([]byte, error) {
	raw, err := f.r.ReadBytes(slipEnd)
	if err != nil {
		return nil, fmt.Errorf("transport: read failed: %w", err)
	}
	raw = raw[:len(raw)-1] // drop the terminator
	if len(raw)+1 > MaxFrameSize {
		return nil, ErrOverflow
	}
	return Decode(raw)
}
