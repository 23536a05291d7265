package m68k

import "fmt"

// Image is the target's code/data address space as seen by the debugger:
// a flat byte slice the supervisor can both execute against and patch
// in place when installing or restoring a breakpoint. It plays the role
// the spec's design notes (§9) call for: "a mutable view of the target
// image... referenced by a capability held only by the Target."
type Image struct {
	Base  uint32
	Bytes []byte
}

// NewImage wraps a loaded code image at the given base address.
func NewImage(base uint32, bytes []byte) *Image {
	return &Image{Base: base, Bytes: bytes}
}

func (img *Image) off(addr uint32) (int, error) {
	if addr < img.Base || int(addr-img.Base)+1 >= len(img.Bytes) {
		return 0, fmt.Errorf("m68k: address %#08x out of range", addr)
	}
	return int(addr - img.Base), nil
}

// ReadWord reads the 16-bit word at addr.
func (img *Image) ReadWord(addr uint32) (uint16, error) {
	off, err := img.off(addr)
	if err != nil {
		return 0, err
	}
	return uint16(img.Bytes[off])<<8 | uint16(img.Bytes[off+1]), nil
}

// WriteWord overwrites the 16-bit word at addr, used both to plant
// TrapOpcode and to restore the original opcode.
func (img *Image) WriteWord(addr uint32, word uint16) error {
	off, err := img.off(addr)
	if err != nil {
		return err
	}
	img.Bytes[off] = byte(word >> 8)
	img.Bytes[off+1] = byte(word)
	return nil
}

// ReadBytes copies up to len(dst) bytes starting at addr, truncating at
// the end of the image rather than failing; used for the best-effort
// "next instruction bytes" / "top of stack" snapshots in TargetInfo.
func (img *Image) ReadBytes(addr uint32, dst []byte) int {
	off, err := img.off(addr)
	if err != nil {
		return 0
	}
	return copy(dst, img.Bytes[off:])
}

// StopReason classifies why CPU.Step returned control to the caller.
type StopReason int

const (
	// StopNone means the instruction completed normally; execution may continue.
	StopNone StopReason = iota
	// StopBreakpoint means the fetched word was TrapOpcode.
	StopBreakpoint
	// StopExited means the instruction stream ended (RTS sentinel).
	StopExited
	// StopException means an illegal word triggered a synchronous exception.
	StopException
)

// exitOpcode is the sentinel word a flat image ends its code with so a run
// can terminate on its own, the Go-side stand-in for the 68k RTS
// instruction's role in the original examples (main() returning). The
// loader does not add it; the image must contain it.
const exitOpcode uint16 = 0x4e75

// illegalOpcode is the reserved word treated as an illegal instruction,
// standing in for the wide range of real illegal/unimplemented 68k
// opcodes; raises TS_STOPPED_BY_EXCEPTION the same way a real CPU fault
// would.
const illegalOpcode uint16 = 0x0000

// ExcNumIllegal is the exception vector number reported for an illegal
// instruction, mirroring the 68k's vector 4.
const ExcNumIllegal uint32 = 4

// CPU executes one instruction at a time against an Image. It is
// intentionally not a general 68k emulator: disassembly and real
// addressing-mode decoding are explicitly out of scope (spec.md §1); all
// CPU needs to honor is "TrapOpcode traps" and "one instruction at a
// time," which is exactly what the exception bridge and single-step
// manager rely on.
type CPU struct {
	Image *Image
	PC    uint32
	SP    uint32
	SR    uint16
	D     [8]uint32
	A     [7]uint32
}

// NewCPU creates a CPU positioned at the image's entry point.
func NewCPU(img *Image, entryPC, initialSP uint32) *CPU {
	return &CPU{Image: img, PC: entryPC, SP: initialSP}
}

// Context snapshots the current register file into a TaskContext, the
// shape the exception bridge hands to the supervisor.
func (c *CPU) Context(excNum uint32) TaskContext {
	return TaskContext{
		SP:     c.SP,
		ExcNum: excNum,
		SR:     c.SR,
		PC:     c.PC,
		D:      c.D,
		A:      c.A,
	}
}

// Restore loads the register file back from a (possibly mutated)
// TaskContext before resuming, the Go-side equivalent of the exception
// handler returning through the saved frame.
func (c *CPU) Restore(ctx *TaskContext) {
	c.SP = ctx.SP
	c.SR = ctx.SR
	c.PC = ctx.PC
	c.D = ctx.D
	c.A = ctx.A
}

// Step fetches and executes exactly one instruction (one 16-bit word).
// It returns the reason execution stopped and, for StopException, the
// exception number to report.
func (c *CPU) Step() (StopReason, uint32, error) {
	word, err := c.Image.ReadWord(c.PC)
	if err != nil {
		return StopException, ExcNumIllegal, err
	}
	switch word {
	case TrapOpcode:
		c.PC += 2
		return StopBreakpoint, 0, nil
	case exitOpcode:
		return StopExited, 0, nil
	case illegalOpcode:
		return StopException, ExcNumIllegal, nil
	default:
		c.PC += 2
		return StopNone, 0, nil
	}
}
