// Package breakpoint implements the breakpoint table described in
// spec.md §4.4: an ordered list of installed trap patches, keyed both by
// id and by code address, with regular and one-shot breakpoints.
package breakpoint

import (
	"errors"

	"github.com/wiemerc/cwdbg/internal/m68k"
)

// ErrNoMemory mirrors ERROR_NOT_ENOUGH_MEMORY. Table never returns it:
// ids come from an in-process counter and growing the slice does not
// fail. internal/protocol wraps it around SET_BPOINT request data that
// cannot be unpacked, which the host sees as OUT_OF_MEMORY.
var ErrNoMemory = errors.New("breakpoint: out of memory")

// Breakpoint is one entry in the table, per spec.md §3's Breakpoint entity.
type Breakpoint struct {
	ID          uint32
	Addr        uint32
	SavedOpcode uint16
	OneShot     bool
	HitCount    uint32
}

// Table is the ordered breakpoint list a Target owns. It is not
// safe for concurrent use; callers (the supervisor goroutine) serialize
// access the way spec.md §5 requires for all target-owned state.
type Table struct {
	entries []*Breakpoint
	nextID  uint32
}

// NewTable returns an empty table with id allocation starting at 1, per
// spec.md §3 ("monotonically increasing natural >= 1").
func NewTable() *Table {
	return &Table{nextID: 1}
}

// Set installs a breakpoint at addr, reading and overwriting the opcode
// currently there. The caller must not already have a breakpoint at addr
// (at most one Breakpoint per code address, spec.md §3); callers enforce
// this by checking FindByAddr first where that invariant matters for
// recoverable error vs. programmer error distinctions at the protocol
// layer.
func (t *Table) Set(img *m68k.Image, addr uint32, oneShot bool) (*Breakpoint, error) {
	saved, err := img.ReadWord(addr)
	if err != nil {
		return nil, err
	}
	if err := img.WriteWord(addr, m68k.TrapOpcode); err != nil {
		return nil, err
	}
	bp := &Breakpoint{
		ID:          t.nextID,
		Addr:        addr,
		SavedOpcode: saved,
		OneShot:     oneShot,
	}
	t.nextID++
	t.entries = append(t.entries, bp)
	return bp, nil
}

// Clear restores the original opcode at bp.Addr and removes bp from the
// table.
func (t *Table) Clear(img *m68k.Image, bp *Breakpoint) error {
	if err := img.WriteWord(bp.Addr, bp.SavedOpcode); err != nil {
		return err
	}
	for i, e := range t.entries {
		if e == bp {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
	return nil
}

// Remove drops bp from the bookkeeping without touching the image,
// used when a one-shot breakpoint is consumed after it fires: the trap
// opcode is never re-armed so there is nothing left in the image to
// restore.
func (t *Table) Remove(bp *Breakpoint) {
	for i, e := range t.entries {
		if e == bp {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// FindByAddr does a linear scan by address; table sizes are
// operator-scale per spec.md §4.4.
func (t *Table) FindByAddr(addr uint32) *Breakpoint {
	for _, bp := range t.entries {
		if bp.Addr == addr {
			return bp
		}
	}
	return nil
}

// FindByID does a linear scan by id.
func (t *Table) FindByID(id uint32) *Breakpoint {
	for _, bp := range t.entries {
		if bp.ID == id {
			return bp
		}
	}
	return nil
}

// ResetHitCounts clears every breakpoint's hit count, called at the start
// of each run per spec.md §4.5 step 3a.
func (t *Table) ResetHitCounts() {
	for _, bp := range t.entries {
		bp.HitCount = 0
	}
}

// All returns the table contents in insertion order, for iteration by
// callers that need to restore every still-patched breakpoint (e.g.
// Supervisor.KillTarget's teardown, spec.md §9).
func (t *Table) All() []*Breakpoint {
	return t.entries
}

// Len reports how many breakpoints are currently installed.
func (t *Table) Len() int {
	return len(t.entries)
}
