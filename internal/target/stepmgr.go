package target

import (
	"fmt"

	"github.com/wiemerc/cwdbg/internal/logging"
	"github.com/wiemerc/cwdbg/internal/m68k"
)

// classify implements the stop classification of spec.md §4.6. It
// mutates sup.target (state flags, breakpoint bookkeeping, the code
// image) and ev.ctx (the pc rewind for a trap stop) and reports whether
// the stop should be surfaced to the command loop.
func (sup *Supervisor) classify(ev *stopEvent) bool {
	t := sup.target
	switch ev.class {
	case stopBreakpoint:
		ev.ctx.PC -= 2
		bp := t.Breakpoints.FindByAddr(ev.ctx.PC)
		if bp == nil {
			logging.Logf(logging.Warn, "trap at unmapped address %#08x, presenting as exception", ev.ctx.PC)
			t.State = (t.State &^ stoppedMask) | Running | StoppedByException
			ev.excNum = m68k.TrapVectorNum
			return true
		}
		bp.HitCount++
		if err := sup.target.Image.Mem.WriteWord(bp.Addr, bp.SavedOpcode); err != nil {
			logging.Logf(logging.Error, "restoring opcode at %#08x: %v", bp.Addr, err)
		}
		if bp.OneShot {
			t.Breakpoints.Remove(bp)
			t.ActiveBreakpoint = nil
			t.State = (t.State &^ stoppedMask) | Running | StoppedByOneShotBP
		} else {
			t.ActiveBreakpoint = bp
			t.State = (t.State &^ stoppedMask) | Running | StoppedByBP
		}
		return true

	case stopSingleStep:
		if t.ActiveBreakpoint != nil {
			if err := sup.target.Image.Mem.WriteWord(t.ActiveBreakpoint.Addr, m68k.TrapOpcode); err != nil {
				logging.Logf(logging.Error, "re-arming breakpoint at %#08x: %v", t.ActiveBreakpoint.Addr, err)
			}
			t.ActiveBreakpoint = nil
		}
		ev.ctx.SR &^= 0x8000 // clear the trace bit; resume re-arms it if needed
		if t.State.Has(SingleStepping) {
			t.State = (t.State &^ stoppedMask) | Running | StoppedBySingleStep
			return true
		}
		return false

	case stopException:
		t.State = (t.State &^ stoppedMask) | Running | StoppedByException
		return true
	}
	return true
}

const stoppedMask = StoppedByBP | StoppedByOneShotBP | StoppedBySingleStep | StoppedByException

// SetContinueMode implements §4.7's continue resume mode: clear
// SINGLE_STEPPING, and if the target is stopped at a regular breakpoint,
// arm the trace bit (with interrupts masked) so the restored original
// instruction re-traps and re-arms the breakpoint before real execution
// continues.
func (sup *Supervisor) SetContinueMode() {
	sup.target.State &^= SingleStepping
	if sup.target.ActiveContext == nil {
		return
	}
	if sup.target.ActiveBreakpoint != nil {
		sup.target.ActiveContext.SR = m68k.ArmTrace(sup.target.ActiveContext.SR)
	}
}

// SetSingleStepMode implements §4.7's single-step resume mode: set
// SINGLE_STEPPING and unconditionally arm the trace bit.
func (sup *Supervisor) SetSingleStepMode() {
	sup.target.State |= SingleStepping
	if sup.target.ActiveContext != nil {
		sup.target.ActiveContext.SR = m68k.ArmTrace(sup.target.ActiveContext.SR)
	}
}

// KillTarget implements kill_target (§4.5): it walks the breakpoint
// table and restores every still-patched word (the "safe default" from
// spec.md §9's open question), marks the target KILLED, and releases the
// target task without a resume.
func (sup *Supervisor) KillTarget() error {
	if !sup.target.State.Has(Running) {
		return fmt.Errorf("%w: target is not running", ErrInvalidState)
	}
	if sup.target.Image != nil && sup.target.Image.Mem != nil {
		for _, bp := range sup.target.Breakpoints.All() {
			word, err := sup.target.Image.Mem.ReadWord(bp.Addr)
			if err == nil && word == m68k.TrapOpcode {
				if werr := sup.target.Image.Mem.WriteWord(bp.Addr, bp.SavedOpcode); werr != nil {
					logging.Logf(logging.Warn, "kill_target: could not restore breakpoint at %#08x: %v", bp.Addr, werr)
				}
			}
		}
	}
	sup.target.State = Killed
	sup.target.ActiveBreakpoint = nil
	close(sup.resumeCh)
	return nil
}
