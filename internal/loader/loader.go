// Package loader is the opaque executable-loading collaborator named in
// spec.md §6.4. Real AmigaOS executables are in hunk format and require
// relocation; that machinery is explicitly out of scope (spec.md §1), so
// this loader reads a flat, already-relocated binary: a bare stream of
// 16-bit words to execute. It exists to give the rest of the debugger a
// concrete, testable `Load`/`Unload` pair with the contract spec.md
// describes: `load(path) -> (entry_pc, unload_handle, initial_sp)`.
package loader

import (
	"fmt"
	"os"

	"github.com/wiemerc/cwdbg/internal/m68k"
)

// CodeBase is the address at which a loaded image's first instruction is
// placed. Real AmigaOS loads code wherever AllocMem hands back; a fixed
// base is enough for a debugger that only ever has one target loaded at
// a time.
const CodeBase uint32 = 0x00100000

// StackSize mirrors TARGET_STACK_SIZE from the original debugger.
const StackSize uint32 = 8192

// Image is the loaded, still-open target: the decoded code/data and the
// handle needed to release it.
type Image struct {
	EntryPC   uint32
	InitialSP uint32
	Mem       *m68k.Image
	path      string
}

// Load reads path into memory and returns a ready-to-run Image. Failure
// maps onto DbgError's ERROR_LOAD_TARGET_FAILED at the call site.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: could not load %q: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("loader: %q is empty", path)
	}
	if len(data)%2 != 0 {
		data = append(data, 0)
	}
	// Reserve StackSize bytes of scratch memory above the code for the
	// register-dump helpers (top-of-stack snapshot) to read from without
	// going out of range immediately.
	backing := make([]byte, len(data)+int(StackSize))
	copy(backing, data)
	mem := m68k.NewImage(CodeBase, backing)
	return &Image{
		EntryPC:   CodeBase,
		InitialSP: CodeBase + uint32(len(backing)) - 4,
		Mem:       mem,
		path:      path,
	}, nil
}

// Unload releases the image. A flat in-memory image has nothing to free
// beyond letting the GC reclaim it, but the method exists so callers
// follow the load/unload discipline the spec requires of the real loader.
func (img *Image) Unload() {
	img.Mem = nil
}
