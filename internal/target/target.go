// Package target implements the target supervisor (spec.md §4.5), the
// exception bridge (§4.6), and the single-step manager (§4.7): the
// lifecycle of a loaded program running as a peer task, the Lamport
// two-signal stop/resume handoff between the supervisor and that task,
// and breakpoint-aware stop classification.
//
// The "peer task" is a goroutine pinned to its own OS thread with
// runtime.LockOSThread, mirroring the pinning discipline
// program/server/ptrace.go uses to keep every ptrace call on the thread
// that attached to the traced process.
package target

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/wiemerc/cwdbg/internal/breakpoint"
	"github.com/wiemerc/cwdbg/internal/loader"
	"github.com/wiemerc/cwdbg/internal/m68k"
)

// State is the TargetState bit-set of spec.md §3.
type State uint32

const (
	Running State = 1 << iota
	SingleStepping
	Exited
	Killed
	StoppedByBP
	StoppedByOneShotBP
	StoppedBySingleStep
	StoppedByException
	Error
)

// Has reports whether all bits of flag are set in s.
func (s State) Has(flag State) bool { return s&flag == flag }

// Any reports whether any bit of flag is set in s.
func (s State) Any(flag State) bool { return s&flag != 0 }

var stateNames = []struct {
	bit  State
	name string
}{
	{Running, "RUNNING"},
	{SingleStepping, "SINGLE_STEPPING"},
	{Exited, "EXITED"},
	{Killed, "KILLED"},
	{StoppedByBP, "STOPPED_BY_BP"},
	{StoppedByOneShotBP, "STOPPED_BY_ONESHOT_BP"},
	{StoppedBySingleStep, "STOPPED_BY_SINGLE_STEP"},
	{StoppedByException, "STOPPED_BY_EXCEPTION"},
	{Error, "ERROR"},
}

func (s State) String() string {
	if s == 0 {
		return "IDLE"
	}
	out := ""
	for _, sn := range stateNames {
		if s.Any(sn.bit) {
			if out != "" {
				out += "|"
			}
			out += sn.name
		}
	}
	return out
}

// Sentinel errors returned by Supervisor operations; command loops map
// these onto the NACK codes of spec.md §6.1.
var (
	ErrLoadFailed        = errors.New("target: load failed")
	ErrSpawnFailed       = errors.New("target: spawn failed")
	ErrRunFailed         = errors.New("target: run failed")
	ErrInvalidState      = errors.New("target: operation not permitted in current state")
	ErrUnknownBreakpoint = errors.New("target: unknown breakpoint")
	ErrInvalidAddress    = errors.New("target: invalid address")
)

// Target is the single debuggee tracked by a Supervisor, matching
// spec.md §3.
type Target struct {
	Image            *loader.Image
	EntryPC          uint32
	State            State
	ExitCode         int32
	Breakpoints      *breakpoint.Table
	ActiveBreakpoint *breakpoint.Breakpoint
	ActiveContext    *m68k.TaskContext
}

// CommandFunc is invoked once per stop event, with the target already
// classified and recorded; it is spec.md's process_commands_fn. It
// returns when the command loop has decided how to resume (by calling
// SetContinueMode/SetSingleStepMode/KillTarget on the Supervisor it was
// given).
type CommandFunc func(sup *Supervisor)

type stopClass int

const (
	stopBreakpoint stopClass = iota
	stopSingleStep
	stopException
	stopExited
)

type stopEvent struct {
	class  stopClass
	ctx    m68k.TaskContext
	excNum uint32
}

// Supervisor drives one Target through create -> load -> run -> stop loop
// -> kill/quit, per spec.md §4.5.
type Supervisor struct {
	target   *Target
	cpu      *m68k.CPU
	stopCh   chan stopEvent
	resumeCh chan struct{}
	onStop   CommandFunc
}

// NewSupervisor allocates an idle Target and its breakpoint table
// (create_target).
func NewSupervisor() *Supervisor {
	return &Supervisor{
		target:   &Target{Breakpoints: breakpoint.NewTable()},
		stopCh:   make(chan stopEvent),
		resumeCh: make(chan struct{}),
	}
}

// Target exposes the supervised Target for read-only inspection by
// command loops (register/memory printers, TargetInfo serialization).
func (sup *Supervisor) Target() *Target { return sup.target }

// LoadTarget delegates to the loader collaborator and records entry_pc.
func (sup *Supervisor) LoadTarget(path string) error {
	img, err := loader.Load(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	sup.target.Image = img
	sup.target.EntryPC = img.EntryPC
	return nil
}

// RunTarget resets hit counts, spawns the target task, and runs the stop
// loop until the target exits, is killed, or hits an unrecoverable
// error. onStop is called once per surfaced stop event.
func (sup *Supervisor) RunTarget(onStop CommandFunc) error {
	if sup.target.Image == nil {
		return fmt.Errorf("%w: no target loaded", ErrRunFailed)
	}
	sup.onStop = onStop
	sup.target.Breakpoints.ResetHitCounts()
	sup.target.State = Running
	sup.cpu = m68k.NewCPU(sup.target.Image.Mem, sup.target.Image.EntryPC, sup.target.Image.InitialSP)

	go sup.runTargetTask()
	return sup.stopLoop()
}

// runTargetTask is the target task: it owns the CPU and only ever
// touches shared state (Target.*) through handleStoppedTarget, while the
// supervisor is blocked waiting on stopCh — the alternation discipline
// spec.md §5 relies on instead of a lock.
func (sup *Supervisor) runTargetTask() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		reason, excNum, err := sup.cpu.Step()
		if err != nil {
			if sup.handleStoppedTarget(stopException, excNum) {
				return
			}
			continue
		}
		switch reason {
		case m68k.StopNone:
			if m68k.Tracing(sup.cpu.SR) {
				if sup.handleStoppedTarget(stopSingleStep, 0) {
					return
				}
			}
		case m68k.StopBreakpoint:
			if sup.handleStoppedTarget(stopBreakpoint, 0) {
				return
			}
		case m68k.StopException:
			if sup.handleStoppedTarget(stopException, excNum) {
				return
			}
		case m68k.StopExited:
			sup.stopCh <- stopEvent{class: stopExited, ctx: sup.cpu.Context(0)}
			return
		}
	}
}

// handleStoppedTarget is the exception bridge (§4.6): it records ctx,
// signals the supervisor, and blocks until resumed. It returns true if
// the caller (runTargetTask) should stop running the target altogether
// (used only by the supervisor signaling kill via a closed resumeCh
// substitute — in practice KillTarget tears the goroutine down without a
// resume, so this always returns false for live stops).
func (sup *Supervisor) handleStoppedTarget(class stopClass, excNum uint32) bool {
	ctx := sup.cpu.Context(excNum)
	sup.stopCh <- stopEvent{class: class, ctx: ctx, excNum: excNum}
	_, ok := <-sup.resumeCh
	if !ok {
		return true
	}
	sup.cpu.Restore(sup.target.ActiveContext)
	return false
}

// stopLoop is the supervisor side of the handoff: classify, optionally
// surface to the command loop, then resume.
func (sup *Supervisor) stopLoop() error {
	for {
		ev, ok := <-sup.stopCh
		if !ok {
			return nil
		}
		if ev.class == stopExited {
			sup.target.State = Exited
			sup.target.ActiveContext = &ev.ctx
			if sup.onStop != nil {
				sup.onStop(sup)
			}
			// runTargetTask already returned after sending this event;
			// nothing is waiting on resumeCh.
			return nil
		}

		surface := sup.classify(&ev)
		sup.target.ActiveContext = &ev.ctx
		if surface {
			if sup.onStop != nil {
				sup.onStop(sup)
			}
		}
		// A silent stop (continue-mode re-arm trick firing without
		// SINGLE_STEPPING set) leaves ActiveContext's trace bit cleared
		// by classify, so resuming here simply continues execution.
		// KillTarget, if the command loop called it from onStop, has
		// already closed resumeCh to release the target task.
		if sup.target.State.Has(Killed) {
			return nil
		}
		sup.resumeCh <- struct{}{}
	}
}
