// Package m68k contains 68k-specific definitions shared by the debug
// engine: the trap opcode used to plant breakpoints, the saved register
// frame layout, and the status-register bits the single-step manager
// manipulates.
package m68k

// TrapOpcode is the 16-bit instruction planted at a breakpoint address.
// It is TRAP #0 on a real 68000; executing it raises exception vector
// TrapVectorNum, which the target's installed handler routes back into
// the debugger.
const TrapOpcode uint16 = 0x4e40

// TrapVectorNum is the exception vector number the debugger installs its
// handler on.
const TrapVectorNum = 0

// Status register bits manipulated by the single-step manager (§4.7).
const (
	srTraceT0Clear uint16 = 0xbfff // clears T0, leaves everything else
	srTraceT1Mask  uint16 = 0x8700 // sets T1 (trace-on-any-instruction) and masks interrupts
)

// ArmTrace sets the trace bit and the interrupt mask on sr the way
// set_continue_mode/set_single_step_mode do in the original debugger: the
// next instruction executed after resume will raise a trace exception
// before any interrupt can be serviced.
func ArmTrace(sr uint16) uint16 {
	return (sr & srTraceT0Clear) | srTraceT1Mask
}

// Tracing reports whether sr has the trace-on-any-instruction bit (T1,
// bit 15) set.
func Tracing(sr uint16) bool {
	return sr&0x8000 != 0
}

// TaskContext is the saved register frame captured by the exception
// bridge at every stop. Its layout is part of the wire format (§6.1) and
// must not be reordered.
type TaskContext struct {
	SP     uint32
	ExcNum uint32
	SR     uint16
	PC     uint32
	D      [8]uint32
	A      [7]uint32 // A0..A6; A7 is SP above
}

// Clone returns a value copy of the frame.
func (tc *TaskContext) Clone() TaskContext {
	return *tc
}
