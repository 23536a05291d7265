package wire

import "testing"

func TestPackUnpackRoundTrip(t *testing.T) {
	p := NewPacker(16)
	p.U8(0x42).U16(0xcafe).U32(0xcafebabe).FixedString("hi", 5)
	buf := p.Bytes()

	u := NewUnpacker(buf)
	b, err := u.U8()
	if err != nil || b != 0x42 {
		t.Fatalf("U8 = %v, %v, want 0x42, nil", b, err)
	}
	h, err := u.U16()
	if err != nil || h != 0xcafe {
		t.Fatalf("U16 = %#x, %v, want 0xcafe, nil", h, err)
	}
	w, err := u.U32()
	if err != nil || w != 0xcafebabe {
		t.Fatalf("U32 = %#x, %v, want 0xcafebabe, nil", w, err)
	}
	s, err := u.FixedString(5)
	if err != nil || s != "hi" {
		t.Fatalf("FixedString = %q, %v, want \"hi\", nil", s, err)
	}
	if u.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", u.Remaining())
	}
}

func TestUnpackShortBuffer(t *testing.T) {
	u := NewUnpacker([]byte{0x01})
	if _, err := u.U32(); err == nil {
		t.Fatal("expected error unpacking u32 from a 1-byte buffer")
	}
}

func TestUnpackStringNotTerminated(t *testing.T) {
	u := NewUnpacker([]byte{'a', 'b', 'c', 'd'})
	if _, err := u.FixedString(4); err != ErrStringNotTerminated {
		t.Fatalf("err = %v, want ErrStringNotTerminated", err)
	}
}

func TestChecksumKnownValue(t *testing.T) {
	// Sum of 0x0001 and 0xf203 is 0xf204 with no carry, matching the
	// canonical RFC 1071 worked example's first step.
	got := Checksum([]byte{0x00, 0x01, 0xf2, 0x03})
	want := uint16(0xf204)
	if got != want {
		t.Fatalf("Checksum = %#04x, want %#04x", got, want)
	}
}

func TestChecksumCarryFold(t *testing.T) {
	// Two words that overflow 16 bits must fold the carry back in.
	got := Checksum([]byte{0xff, 0xff, 0x00, 0x01})
	want := uint16(0x0001)
	if got != want {
		t.Fatalf("Checksum = %#04x, want %#04x", got, want)
	}
}

func fuzzRoundTrip(t *testing.T, b uint8, h uint16, w uint32, s string) {
	t.Helper()
	p := NewPacker(32)
	p.U8(b).U16(h).U32(w).FixedString(s, len(s)+1)
	u := NewUnpacker(p.Bytes())
	gb, _ := u.U8()
	gh, _ := u.U16()
	gw, _ := u.U32()
	gs, err := u.FixedString(len(s) + 1)
	if err != nil {
		t.Fatalf("FixedString: %v", err)
	}
	if gb != b || gh != h || gw != w || gs != s {
		t.Fatalf("round trip mismatch: got (%v,%v,%v,%q), want (%v,%v,%v,%q)", gb, gh, gw, gs, b, h, w, s)
	}
}

func TestPackUnpackRoundTripTable(t *testing.T) {
	cases := []struct {
		b uint8
		h uint16
		w uint32
		s string
	}{
		{0, 0, 0, ""},
		{0xff, 0xffff, 0xffffffff, "max"},
		{1, 0x1234, 0xdeadbeef, "target"},
	}
	for _, c := range cases {
		fuzzRoundTrip(t, c.b, c.h, c.w, c.s)
	}
}
