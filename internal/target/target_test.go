package target

import (
	"testing"

	"github.com/wiemerc/cwdbg/internal/loader"
	"github.com/wiemerc/cwdbg/internal/m68k"
)

const testBase uint32 = 0x2000

// newTestSupervisor builds a Supervisor over a hand-built image of five
// nop words followed by an exit word, mirroring spec.md §8 scenario 3's
// "...nop; nop; nop; trap; ..." shape (the trap is installed dynamically
// by SetBreakpoint rather than baked into the image).
func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	bytes := make([]byte, 64)
	for i := 0; i < 10; i += 2 {
		bytes[i] = 0x11
		bytes[i+1] = 0x11
	}
	bytes[10] = 0x4e
	bytes[11] = 0x75 // exit sentinel at offset 10
	mem := m68k.NewImage(testBase, bytes)
	sup := NewSupervisor()
	sup.target.Image = &loader.Image{
		EntryPC:   testBase,
		InitialSP: testBase + uint32(len(bytes)) - 4,
		Mem:       mem,
	}
	sup.target.EntryPC = testBase
	return sup
}

func TestRunToCompletionWithNoBreakpoints(t *testing.T) {
	sup := newTestSupervisor(t)
	var stops int
	err := sup.RunTarget(func(s *Supervisor) {
		stops++
		s.SetContinueMode()
	})
	if err != nil {
		t.Fatalf("RunTarget: %v", err)
	}
	if stops != 1 {
		t.Fatalf("stops = %d, want 1 (just the exit)", stops)
	}
	if !sup.Target().State.Has(Exited) {
		t.Errorf("state = %v, want EXITED", sup.Target().State)
	}
}

func TestBreakpointHitThenContinueToExit(t *testing.T) {
	sup := newTestSupervisor(t)
	bp, err := sup.SetBreakpoint(6, false)
	if err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}

	word, _ := sup.Target().Image.Mem.ReadWord(testBase + 6)
	if word != m68k.TrapOpcode {
		t.Fatalf("word at bp addr = %#04x, want TrapOpcode", word)
	}

	var stops []State
	err = sup.RunTarget(func(s *Supervisor) {
		stops = append(stops, s.Target().State)
		if s.Target().State.Has(StoppedByBP) {
			if s.Target().ActiveBreakpoint != bp {
				t.Errorf("ActiveBreakpoint not set to the hit breakpoint")
			}
			word, _ := s.Target().Image.Mem.ReadWord(testBase + 6)
			if word == m68k.TrapOpcode {
				t.Errorf("breakpoint word still TrapOpcode while ActiveBreakpoint set (should be restored)")
			}
		}
		s.SetContinueMode()
	})
	if err != nil {
		t.Fatalf("RunTarget: %v", err)
	}
	if len(stops) != 2 {
		t.Fatalf("stops = %d, want 2 (breakpoint hit, exit)", len(stops))
	}
	if !stops[0].Has(StoppedByBP) {
		t.Errorf("first stop = %v, want STOPPED_BY_BP", stops[0])
	}
	if !stops[1].Has(Exited) {
		t.Errorf("second stop = %v, want EXITED", stops[1])
	}
	if bp.HitCount != 1 {
		t.Errorf("HitCount = %d, want 1", bp.HitCount)
	}
	// The breakpoint must be re-armed by the silent single-step classify
	// path before real execution continued past it.
	if sup.Target().ActiveBreakpoint != nil {
		t.Errorf("ActiveBreakpoint still set after exit")
	}
}

func TestStepOverBreakpointSurfacesSingleStepStop(t *testing.T) {
	sup := newTestSupervisor(t)
	_, err := sup.SetBreakpoint(6, false)
	if err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}

	var classes []State
	commandsRun := 0
	err = sup.RunTarget(func(s *Supervisor) {
		classes = append(classes, s.Target().State)
		commandsRun++
		if commandsRun == 1 {
			s.SetSingleStepMode()
		} else {
			s.SetContinueMode()
		}
	})
	if err != nil {
		t.Fatalf("RunTarget: %v", err)
	}
	if len(classes) != 3 {
		t.Fatalf("surfaced stops = %d, want 3 (bp hit, single step, exit)", len(classes))
	}
	if !classes[0].Has(StoppedByBP) {
		t.Errorf("stop 0 = %v, want STOPPED_BY_BP", classes[0])
	}
	if !classes[1].Has(StoppedBySingleStep) {
		t.Errorf("stop 1 = %v, want STOPPED_BY_SINGLE_STEP", classes[1])
	}
	if !classes[2].Has(Exited) {
		t.Errorf("stop 2 = %v, want EXITED", classes[2])
	}
}

func TestOneShotBreakpointIsConsumedOnHit(t *testing.T) {
	sup := newTestSupervisor(t)
	_, err := sup.SetBreakpoint(6, true)
	if err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}

	err = sup.RunTarget(func(s *Supervisor) {
		if s.Target().State.Has(StoppedByOneShotBP) {
			if s.Target().ActiveBreakpoint != nil {
				t.Errorf("ActiveBreakpoint must stay nil for a one-shot hit")
			}
		}
		s.SetContinueMode()
	})
	if err != nil {
		t.Fatalf("RunTarget: %v", err)
	}
	if sup.Target().Breakpoints.Len() != 0 {
		t.Errorf("one-shot breakpoint was not removed from the table after firing")
	}
}

func TestKillTargetRestoresPatchedBreakpoints(t *testing.T) {
	sup := newTestSupervisor(t)
	// Breakpoint at offset 0 fires first (execution starts at entry_pc)
	// and is restored by classify as part of that normal stop;
	// breakpoint at offset 6 never fires and must still be un-patched by
	// KillTarget's teardown sweep (spec.md §9's "safe default").
	_, err := sup.SetBreakpoint(0, false)
	if err != nil {
		t.Fatalf("SetBreakpoint(0): %v", err)
	}
	_, err = sup.SetBreakpoint(6, false)
	if err != nil {
		t.Fatalf("SetBreakpoint(6): %v", err)
	}

	err = sup.RunTarget(func(s *Supervisor) {
		if err := s.KillTarget(); err != nil {
			t.Fatalf("KillTarget: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("RunTarget: %v", err)
	}
	if !sup.Target().State.Has(Killed) {
		t.Errorf("state = %v, want KILLED", sup.Target().State)
	}
	word, _ := sup.Target().Image.Mem.ReadWord(testBase + 6)
	if word == m68k.TrapOpcode {
		t.Errorf("breakpoint at offset 6 was never hit but is still TrapOpcode after KillTarget")
	}
}

func TestClearBreakpointRestoresOpcodeAndUnlinksActive(t *testing.T) {
	sup := newTestSupervisor(t)
	bp, err := sup.SetBreakpoint(6, false)
	if err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}
	sup.target.ActiveBreakpoint = bp
	if err := sup.ClearBreakpoint(bp.ID); err != nil {
		t.Fatalf("ClearBreakpoint: %v", err)
	}
	if sup.Target().ActiveBreakpoint != nil {
		t.Errorf("ActiveBreakpoint not cleared")
	}
	word, _ := sup.Target().Image.Mem.ReadWord(testBase + 6)
	if word != 0x1111 {
		t.Errorf("word after ClearBreakpoint = %#04x, want original 0x1111", word)
	}
}
