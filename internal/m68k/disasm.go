package m68k

import "fmt"

// Disassemble is the opaque disassembler collaborator named in spec.md
// §6.4: given an address it returns a human-readable rendering of the
// instruction there and the number of bytes it occupies. Real 68k
// disassembly (addressing modes, mnemonics for the full instruction set)
// is explicitly out of scope (spec.md §1); this recognizes only the
// words the debug engine itself assigns meaning to and otherwise prints
// a raw word dump, which is sufficient for the console rendering this
// spec also treats as a collaborator's job.
func Disassemble(img *Image, pc uint32) (string, int) {
	word, err := img.ReadWord(pc)
	if err != nil {
		return "<out of range>", 0
	}
	switch word {
	case TrapOpcode:
		return "TRAP #0", 2
	case exitOpcode:
		return "RTS", 2
	case illegalOpcode:
		return "ILLEGAL", 2
	default:
		return fmt.Sprintf("DC.W $%04x", word), 2
	}
}
