// Package localcli implements the local console command loop of
// spec.md §4.8: read a line, split on whitespace, dispatch by first
// character. It plays the CommandSource role spec.md §9 calls for,
// grounded on the same request/response shape as the remote loop in
// internal/protocol but driving the Supervisor directly instead of
// going over the wire.
package localcli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/wiemerc/cwdbg/internal/m68k"
	"github.com/wiemerc/cwdbg/internal/target"
)

// Source is the console front end. It implements the debugger package's
// CommandSource interface.
type Source struct {
	rl            *readline.Instance
	quitRequested bool
}

// New opens the console for reading commands.
func New() (*Source, error) {
	rl, err := readline.New("(cwdbg) ")
	if err != nil {
		return nil, fmt.Errorf("localcli: %w", err)
	}
	return &Source{rl: rl}, nil
}

// Close releases the underlying terminal state.
func (s *Source) Close() error {
	return s.rl.Close()
}

// Serve is the top-level loop: before a target is running, only r/b/d/i/p/q
// are meaningful; r blocks for the duration of one run, re-entering this
// same dispatcher through onStop for every stop event.
func (s *Source) Serve(sup *target.Supervisor) error {
	for {
		line, err := s.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("localcli: %w", err)
		}
		_, quit, derr := s.dispatchLine(sup, line)
		if derr != nil {
			fmt.Fprintf(s.rl.Stderr(), "error: %v\n", derr)
			continue
		}
		if quit || s.quitRequested {
			if sup.Target().State.Any(target.Running) {
				_ = sup.KillTarget()
			}
			return nil
		}
	}
}

// onStop is the process_commands_fn installed for the duration of one run
// (spec.md §4.5 step 3c/§4.8): it prints the stop and re-enters the line
// loop until a command resumes the target.
func (s *Source) onStop(sup *target.Supervisor) {
	s.printStop(sup)
	if sup.Target().State.Any(target.Exited | target.Killed) {
		return
	}
	for {
		line, err := s.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			_ = sup.KillTarget()
			s.quitRequested = true
			return
		}
		if err != nil {
			_ = sup.KillTarget()
			s.quitRequested = true
			return
		}
		resumed, quit, derr := s.dispatchLine(sup, line)
		if derr != nil {
			fmt.Fprintf(s.rl.Stderr(), "error: %v\n", derr)
			continue
		}
		if quit {
			_ = sup.KillTarget()
			s.quitRequested = true
			return
		}
		if resumed {
			return
		}
	}
}

// dispatchLine implements one iteration of §4.8's "reads a line; splits on
// whitespace; dispatches by first character." An empty line is treated as
// "s" (step), matching the original debugger's newline-steps convention.
func (s *Source) dispatchLine(sup *target.Supervisor, line string) (resumed, quit bool, err error) {
	fields := strings.Fields(line)
	cmd := "s"
	var args []string
	if len(fields) > 0 {
		cmd = fields[0]
		args = fields[1:]
	}

	switch cmd[0] {
	case 'r':
		if sup.Target().State.Any(target.Running) {
			return false, false, fmt.Errorf("target is already running")
		}
		if err := sup.RunTarget(s.onStop); err != nil {
			return false, false, err
		}
		return false, false, nil

	case 'b':
		if len(args) < 1 {
			return false, false, fmt.Errorf("usage: b offset")
		}
		offset, perr := strconv.ParseUint(args[0], 0, 32)
		if perr != nil {
			return false, false, fmt.Errorf("bad offset %q: %w", args[0], perr)
		}
		bp, berr := sup.SetBreakpoint(uint32(offset), false)
		if berr != nil {
			return false, false, berr
		}
		fmt.Fprintf(s.rl.Stdout(), "breakpoint %d set at offset %#x\n", bp.ID, offset)
		return false, false, nil

	case 'd':
		if len(args) < 1 {
			return false, false, fmt.Errorf("usage: d id")
		}
		id, perr := strconv.ParseUint(args[0], 0, 32)
		if perr != nil {
			return false, false, fmt.Errorf("bad id %q: %w", args[0], perr)
		}
		if err := sup.ClearBreakpoint(uint32(id)); err != nil {
			return false, false, err
		}
		return false, false, nil

	case 'c':
		if !sup.Target().State.Any(target.Running) {
			return false, false, fmt.Errorf("target is not running")
		}
		sup.SetContinueMode()
		return true, false, nil

	case 's':
		if !sup.Target().State.Any(target.Running) {
			return false, false, fmt.Errorf("target is not running")
		}
		sup.SetSingleStepMode()
		return true, false, nil

	case 'k':
		if err := sup.KillTarget(); err != nil {
			return false, false, err
		}
		return true, false, nil

	case 'q':
		return false, true, nil

	case 'i':
		s.printInspect(sup, args)
		return false, false, nil

	case 'p':
		if err := s.printMemory(sup, args); err != nil {
			return false, false, err
		}
		return false, false, nil

	default:
		return false, false, fmt.Errorf("unknown command %q", cmd)
	}
}

func (s *Source) printStop(sup *target.Supervisor) {
	t := sup.Target()
	ctx := t.ActiveContext
	if ctx == nil {
		fmt.Fprintf(s.rl.Stdout(), "stopped, state=%s\n", t.State)
		return
	}
	text, _ := m68k.Disassemble(t.Image.Mem, ctx.PC)
	fmt.Fprintf(s.rl.Stdout(), "stopped, state=%s  pc=%#08x  %s\n", t.State, ctx.PC, text)
	if t.State.Has(target.StoppedByException) {
		fmt.Fprintf(s.rl.Stdout(), "exception %d at pc=%#08x\n", ctx.ExcNum, ctx.PC)
	}
	if bp := t.ActiveBreakpoint; bp != nil {
		fmt.Fprintf(s.rl.Stdout(), "breakpoint %d hit (%d time(s)) at addr=%#08x\n", bp.ID, bp.HitCount, bp.Addr)
	}
}

func (s *Source) printInspect(sup *target.Supervisor, args []string) {
	t := sup.Target()
	if t.ActiveContext == nil {
		fmt.Fprintln(s.rl.Stderr(), "no stopped context to inspect")
		return
	}
	ctx := t.ActiveContext
	what := "r"
	if len(args) > 0 {
		what = args[0]
	}
	switch what[0] {
	case 'r':
		for i, d := range ctx.D {
			fmt.Fprintf(s.rl.Stdout(), "D%d=%#08x  ", i, d)
		}
		fmt.Fprintln(s.rl.Stdout())
		for i, a := range ctx.A {
			fmt.Fprintf(s.rl.Stdout(), "A%d=%#08x  ", i, a)
		}
		fmt.Fprintf(s.rl.Stdout(), "SP=%#08x\n", ctx.SP)
		fmt.Fprintf(s.rl.Stdout(), "PC=%#08x  SR=%#04x\n", ctx.PC, ctx.SR)
	case 's':
		if t.Image == nil || t.Image.Mem == nil {
			return
		}
		for i := 0; i < 8; i++ {
			word := make([]byte, 4)
			if t.Image.Mem.ReadBytes(ctx.SP+uint32(i*4), word) == 4 {
				fmt.Fprintf(s.rl.Stdout(), "sp[%d]=%#08x\n", i, uint32(word[0])<<24|uint32(word[1])<<16|uint32(word[2])<<8|uint32(word[3]))
			}
		}
	default:
		fmt.Fprintf(s.rl.Stderr(), "usage: i r|s\n")
	}
}

func (s *Source) printMemory(sup *target.Supervisor, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: p addr size")
	}
	addr, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("bad address %q: %w", args[0], err)
	}
	size, err := strconv.ParseUint(args[1], 0, 16)
	if err != nil {
		return fmt.Errorf("bad size %q: %w", args[1], err)
	}
	data, err := sup.PeekMem(uint32(addr), uint16(size))
	if err != nil {
		return err
	}
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(s.rl.Stdout(), "%#08x: % x\n", uint32(addr)+uint32(i), data[i:end])
	}
	return nil
}
