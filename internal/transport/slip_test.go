package transport

import (
	"bytes"
	"io"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01, 0x02, 0x03},
		{slipEnd},
		{slipEsc},
		{slipEnd, slipEsc, slipEnd, slipEsc},
		{0x00, slipEnd, 0xff, slipEsc, 0x10},
	}
	for _, c := range cases {
		enc, err := Encode(c)
		if err != nil {
			t.Fatalf("Encode(%v): %v", c, err)
		}
		dec, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode(Encode(%v)): %v", c, err)
		}
		if !bytes.Equal(dec, c) {
			t.Errorf("round trip mismatch: got %v, want %v", dec, c)
		}
	}
}

func TestDecodeBadEscape(t *testing.T) {
	if _, err := Decode([]byte{slipEsc, 0x01}); err != ErrBadEscape {
		t.Fatalf("err = %v, want ErrBadEscape", err)
	}
	if _, err := Decode([]byte{slipEsc}); err != ErrBadEscape {
		t.Fatalf("err = %v, want ErrBadEscape", err)
	}
}

func TestEncodeOverflow(t *testing.T) {
	if _, err := Encode(bytes.Repeat([]byte{slipEnd}, MaxFrameSize)); err != ErrOverflow {
		t.Fatalf("err = %v, want ErrOverflow", err)
	}
}

// pipe is an io.ReadWriter over an in-memory byte buffer, standing in for
// the real serial port in tests (spec.md §4.1's "any full-duplex byte
// stream").
type pipe struct {
	r io.Reader
	w io.Writer
}

func (p *pipe) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipe) Write(b []byte) (int, error) { return p.w.Write(b) }

func TestFramerSendRecvRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	f := New(&pipe{r: buf, w: buf})

	frames := [][]byte{
		{0x01, 0x02, 0x03},
		{},
		{slipEnd, slipEsc, 0xaa},
	}
	for _, want := range frames {
		if err := f.SendFrame(want); err != nil {
			t.Fatalf("SendFrame(%v): %v", want, err)
		}
	}
	for _, want := range frames {
		got, err := f.RecvFrame()
		if err != nil {
			t.Fatalf("RecvFrame: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("RecvFrame = %v, want %v", got, want)
		}
	}
}

func TestFramerRecvOversized(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.Write(bytes.Repeat([]byte{0x41}, MaxFrameSize))
	buf.WriteByte(slipEnd)
	f := New(&pipe{r: buf, w: &bytes.Buffer{}})
	if _, err := f.RecvFrame(); err != ErrOverflow {
		t.Fatalf("err = %v, want ErrOverflow", err)
	}
}
