// Package debugger wires a CommandSource front end to a target
// supervisor, the top-level object spec.md §2/§9 calls the Debugger: it
// owns create/load/process-commands/quit and nothing else, deferring all
// domain logic to internal/target.
//
// spec.md §9's redesign flag calls for a global, initialize-once pointer
// to the Debugger because the original's trap exception handler has no
// closure to carry one through. Go's exception bridge (internal/target's
// handleStoppedTarget) is an ordinary closure over its Supervisor, so
// that global is unnecessary here; CreateDebugger's returned value is
// the only handle a caller ever needs.
package debugger

import (
	"fmt"

	"github.com/wiemerc/cwdbg/internal/target"
)

// CommandSource is the capability abstraction spec.md §9 calls for: one
// front end, local or remote, able to drive a Supervisor through a full
// session. Both internal/localcli.Source and internal/remotecli.Source
// (by way of internal/protocol.HostConnection) implement it.
type CommandSource interface {
	Serve(sup *target.Supervisor) error
}

// Debugger is the top-level object: a Supervisor plus the front end
// driving it.
type Debugger struct {
	sup    *target.Supervisor
	source CommandSource
}

// CreateDebugger implements create_target + load_target (§4.5 steps 1-2):
// it allocates the supervisor and loads targetPath before any commands
// are processed, matching the original's load-before-serve startup order.
func CreateDebugger(targetPath string, source CommandSource) (*Debugger, error) {
	sup := target.NewSupervisor()
	if err := sup.LoadTarget(targetPath); err != nil {
		return nil, fmt.Errorf("debugger: %w", err)
	}
	return &Debugger{sup: sup, source: source}, nil
}

// ProcessCommands runs the front end's full session loop until it
// returns (quit command, EOF, or a fatal protocol/transport error).
func (d *Debugger) ProcessCommands() error {
	return d.source.Serve(d.sup)
}

// QuitDebugger implements quit_debugger (§4.5 step 6): release the
// target image and any still-running target task.
func (d *Debugger) QuitDebugger() {
	if d.sup.Target().State.Any(target.Running) {
		_ = d.sup.KillTarget()
	}
	if img := d.sup.Target().Image; img != nil {
		img.Unload()
	}
}
