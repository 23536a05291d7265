package breakpoint

import (
	"testing"

	"github.com/wiemerc/cwdbg/internal/m68k"
)

func newTestImage() *m68k.Image {
	// 8 words of scratch code, none of which happen to be TrapOpcode.
	bytes := make([]byte, 16)
	for i := range bytes {
		bytes[i] = 0x11
	}
	return m68k.NewImage(0x1000, bytes)
}

func TestSetInstallsTrapOpcode(t *testing.T) {
	img := newTestImage()
	tbl := NewTable()

	bp, err := tbl.Set(img, 0x1004, false)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if bp.ID != 1 {
		t.Errorf("first id = %d, want 1", bp.ID)
	}
	word, _ := img.ReadWord(0x1004)
	if word != m68k.TrapOpcode {
		t.Errorf("word at bp addr = %#04x, want TrapOpcode", word)
	}
}

func TestClearRestoresOpcode(t *testing.T) {
	img := newTestImage()
	tbl := NewTable()
	orig, _ := img.ReadWord(0x1004)

	bp, err := tbl.Set(img, 0x1004, false)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := tbl.Clear(img, bp); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	word, _ := img.ReadWord(0x1004)
	if word != orig {
		t.Errorf("word after Clear = %#04x, want original %#04x", word, orig)
	}
	if tbl.Len() != 0 {
		t.Errorf("table still has %d entries after Clear", tbl.Len())
	}
}

func TestIDsAreMonotonicAndNeverReused(t *testing.T) {
	img := newTestImage()
	tbl := NewTable()

	bp1, _ := tbl.Set(img, 0x1000, false)
	bp2, _ := tbl.Set(img, 0x1002, false)
	if err := tbl.Clear(img, bp1); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	bp3, _ := tbl.Set(img, 0x1000, false)

	if bp2.ID != bp1.ID+1 {
		t.Errorf("bp2.ID = %d, want %d", bp2.ID, bp1.ID+1)
	}
	if bp3.ID == bp1.ID {
		t.Errorf("id %d was reused after being cleared", bp3.ID)
	}
}

func TestFindByAddrAndID(t *testing.T) {
	img := newTestImage()
	tbl := NewTable()
	bp, _ := tbl.Set(img, 0x1006, true)

	if got := tbl.FindByAddr(0x1006); got != bp {
		t.Errorf("FindByAddr did not return the installed breakpoint")
	}
	if got := tbl.FindByID(bp.ID); got != bp {
		t.Errorf("FindByID did not return the installed breakpoint")
	}
	if got := tbl.FindByAddr(0x9999); got != nil {
		t.Errorf("FindByAddr found a breakpoint that was never set")
	}
}

func TestAtMostOneBreakpointPerAddressIsCallerEnforced(t *testing.T) {
	img := newTestImage()
	tbl := NewTable()
	if _, err := tbl.Set(img, 0x1000, false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if existing := tbl.FindByAddr(0x1000); existing == nil {
		t.Fatalf("expected FindByAddr to report the existing breakpoint before a second Set")
	}
}

func TestResetHitCounts(t *testing.T) {
	img := newTestImage()
	tbl := NewTable()
	bp, _ := tbl.Set(img, 0x1000, false)
	bp.HitCount = 42
	tbl.ResetHitCounts()
	if bp.HitCount != 0 {
		t.Errorf("HitCount after reset = %d, want 0", bp.HitCount)
	}
}
