// Package remotecli is the remote front end of spec.md §4.8: it opens
// the framed serial transport and hands the resulting connection to
// internal/protocol, which already implements "receive one ProtoMessage
// per cycle, validate seq_num and state, dispatch through the table."
// This package exists to keep the C8/C3 split spec.md draws even though,
// in this port, C3's HostConnection already satisfies the CommandSource
// shape the debugger package expects.
package remotecli

import (
	"fmt"

	"github.com/wiemerc/cwdbg/internal/protocol"
	"github.com/wiemerc/cwdbg/internal/target"
	"github.com/wiemerc/cwdbg/internal/transport"
)

// Source wraps a HostConnection over a real serial device, releasing the
// device on Close.
type Source struct {
	hc    *protocol.HostConnection
	close func() error
}

// Open configures device for the host protocol (§4.1) the way the
// original debugger's serio_init() does before layering SLIP framing on
// top, and returns a Source ready to Serve.
func Open(device string) (*Source, error) {
	framer, closeFn, err := transport.OpenSerial(device, transport.DefaultBaud)
	if err != nil {
		return nil, fmt.Errorf("remotecli: %w", err)
	}
	return &Source{hc: protocol.NewHostConnection(framer), close: closeFn}, nil
}

// Close releases the underlying serial device.
func (s *Source) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Serve delegates to the host protocol's own dispatch loop.
func (s *Source) Serve(sup *target.Supervisor) error {
	return s.hc.Serve(sup)
}
