package protocol

import (
	"errors"
	"fmt"

	"github.com/wiemerc/cwdbg/internal/breakpoint"
	"github.com/wiemerc/cwdbg/internal/logging"
	"github.com/wiemerc/cwdbg/internal/target"
	"github.com/wiemerc/cwdbg/internal/transport"
	"github.com/wiemerc/cwdbg/internal/wire"
)

// MaxLibNameLen bounds the fixed-size library name field of
// GET_BASE_ADDRESS.
const MaxLibNameLen = 32

// ConnState is HostConnection's session state from spec.md §3.
type ConnState int

const (
	StateInitial ConnState = iota
	StateConnected
)

// errQuit and errAlreadyResponded are internal sentinels used by handle
// to short-circuit the generic ACK/NACK send; neither ever reaches a
// caller outside this package.
var (
	errQuit             = errors.New("protocol: quit requested")
	errAlreadyResponded = errors.New("protocol: handler already sent its own response")
)

// HostConnection is the server side of the host protocol (spec.md §3):
// one framed transport plus the sequence-number bookkeeping of §4.3.
type HostConnection struct {
	Framer         *transport.Framer
	State          ConnState
	ExpectedSeqNum uint16
}

// NewHostConnection wraps an already-open Framer for one debugging
// session.
func NewHostConnection(f *transport.Framer) *HostConnection {
	return &HostConnection{Framer: f, State: StateInitial}
}

func (hc *HostConnection) sendMessage(m *ProtoMessage) error {
	buf, err := m.Marshal()
	if err != nil {
		return err
	}
	return hc.Framer.SendFrame(buf)
}

func (hc *HostConnection) recvMessage() (*ProtoMessage, error) {
	frame, err := hc.Framer.RecvFrame()
	if err != nil {
		return nil, err
	}
	return Unmarshal(frame)
}

func (hc *HostConnection) sendAck(seqNum uint16, data []byte) error {
	return hc.sendMessage(&ProtoMessage{SeqNum: seqNum, Kind: KindAck, Data: data})
}

func (hc *HostConnection) sendNack(seqNum uint16, code DbgError) error {
	return hc.sendMessage(&ProtoMessage{SeqNum: seqNum, Kind: KindNack, Data: []byte{uint8(code)}})
}

type handlerFunc func(hc *HostConnection, sup *target.Supervisor, seqNum uint16, data []byte) ([]byte, error)

type dispatchEntry struct {
	requiredState func(target.State) error
	handler       handlerFunc
	// resumes marks CONT/STEP/KILL: processing one of these ends the
	// active remote command loop and returns control to the supervisor's
	// stop loop, per spec.md §4.8.
	resumes bool
}

func requireRunning(s target.State) error {
	if !s.Any(target.Running) {
		return target.ErrInvalidState
	}
	return nil
}

func requireNotRunning(s target.State) error {
	if s.Any(target.Running) {
		return target.ErrInvalidState
	}
	return nil
}

var dispatchTable map[Kind]dispatchEntry

func init() {
	dispatchTable = map[Kind]dispatchEntry{
		KindInit:            {requiredState: requireNotRunning, handler: handleInit},
		KindRun:             {requiredState: requireNotRunning, handler: handleRun},
		KindQuit:            {requiredState: requireNotRunning, handler: handleQuit},
		KindCont:            {requiredState: requireRunning, handler: handleCont, resumes: true},
		KindStep:            {requiredState: requireRunning, handler: handleStep, resumes: true},
		KindKill:            {requiredState: requireRunning, handler: handleKill, resumes: true},
		KindPeekMem:         {handler: handlePeekMem},
		KindPokeMem:         {handler: handlePokeMem},
		KindSetBpoint:       {handler: handleSetBpoint},
		KindClearBpoint:     {handler: handleClearBpoint},
		KindGetBaseAddress:  {handler: handleGetBaseAddress},
	}
}

func handleInit(hc *HostConnection, sup *target.Supervisor, seqNum uint16, data []byte) ([]byte, error) {
	hc.State = StateConnected
	return nil, nil
}

func handleQuit(hc *HostConnection, sup *target.Supervisor, seqNum uint16, data []byte) ([]byte, error) {
	return nil, errQuit
}

func handleRun(hc *HostConnection, sup *target.Supervisor, seqNum uint16, data []byte) ([]byte, error) {
	if err := hc.sendAck(seqNum, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", errAlreadyResponded, err)
	}
	hc.ExpectedSeqNum++
	if err := sup.RunTarget(hc.remoteCommandLoop(sup)); err != nil {
		logging.Logf(logging.Error, "run_target: %v", err)
	}
	return nil, errAlreadyResponded
}

func handleCont(hc *HostConnection, sup *target.Supervisor, seqNum uint16, data []byte) ([]byte, error) {
	sup.SetContinueMode()
	return nil, nil
}

func handleStep(hc *HostConnection, sup *target.Supervisor, seqNum uint16, data []byte) ([]byte, error) {
	sup.SetSingleStepMode()
	return nil, nil
}

func handleKill(hc *HostConnection, sup *target.Supervisor, seqNum uint16, data []byte) ([]byte, error) {
	return nil, sup.KillTarget()
}

func handlePeekMem(hc *HostConnection, sup *target.Supervisor, seqNum uint16, data []byte) ([]byte, error) {
	u := wire.NewUnpacker(data)
	addr, err := u.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", target.ErrInvalidAddress, err)
	}
	n, err := u.U16()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", target.ErrInvalidAddress, err)
	}
	return sup.PeekMem(addr, n)
}

func handlePokeMem(hc *HostConnection, sup *target.Supervisor, seqNum uint16, data []byte) ([]byte, error) {
	u := wire.NewUnpacker(data)
	addr, err := u.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", target.ErrInvalidAddress, err)
	}
	payload, err := u.Raw(u.Remaining())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", target.ErrInvalidAddress, err)
	}
	return nil, sup.PokeMem(addr, payload)
}

func handleSetBpoint(hc *HostConnection, sup *target.Supervisor, seqNum uint16, data []byte) ([]byte, error) {
	u := wire.NewUnpacker(data)
	offset, err := u.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", breakpoint.ErrNoMemory, err)
	}
	flags, err := u.U16()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", breakpoint.ErrNoMemory, err)
	}
	bp, err := sup.SetBreakpoint(offset, flags&0x1 != 0)
	if err != nil {
		return nil, err
	}
	return wire.NewPacker(4).U32(bp.ID).Bytes(), nil
}

func handleClearBpoint(hc *HostConnection, sup *target.Supervisor, seqNum uint16, data []byte) ([]byte, error) {
	u := wire.NewUnpacker(data)
	id, err := u.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", target.ErrUnknownBreakpoint, err)
	}
	return nil, sup.ClearBreakpoint(id)
}

// knownLibraryBases stands in for the real AmigaOS library-opening
// collaborator named in spec.md §6.4 (out of scope per spec.md §1); it
// grounds exec.library's base address at the real Amiga convention of
// absolute address 4, where SysBase always lives.
var knownLibraryBases = map[string]uint32{
	"exec.library": 4,
}

func handleGetBaseAddress(hc *HostConnection, sup *target.Supervisor, seqNum uint16, data []byte) ([]byte, error) {
	u := wire.NewUnpacker(data)
	name, err := u.FixedString(MaxLibNameLen)
	if err != nil {
		return nil, fmt.Errorf("protocol: bad library name: %w", err)
	}
	base, ok := knownLibraryBases[name]
	if !ok {
		return nil, fmt.Errorf("protocol library %q: %w", name, errOpenLibFailed)
	}
	return wire.NewPacker(4).U32(base).Bytes(), nil
}

var errOpenLibFailed = errors.New("protocol: library not found")

// remoteCommandLoop returns the CommandFunc the remote front end installs
// as process_commands_fn: on each stop it sends TARGET_STOPPED, demands
// an ACK before anything else is processed (per spec.md §4.3), then, for
// a non-terminal stop, serves further requests until one of
// CONT/STEP/KILL resumes the target. A terminal stop (EXITED/KILLED) has
// nothing left to resume, so the loop returns right after the ACK, per
// spec.md §4.5 step 4's "deliver the terminal signal... to let it
// release and return."
func (hc *HostConnection) remoteCommandLoop(sup *target.Supervisor) target.CommandFunc {
	return func(s *target.Supervisor) {
		info := s.GetTargetInfo()
		seq := hc.ExpectedSeqNum
		stopped := &ProtoMessage{SeqNum: seq, Kind: KindTargetStopped, Data: marshalTargetInfo(info)}
		if err := hc.sendMessage(stopped); err != nil {
			logging.Fatalf("protocol: sending TARGET_STOPPED: %v", err)
		}

		ack, err := hc.recvMessage()
		if err != nil {
			logging.Fatalf("protocol: waiting for TARGET_STOPPED ack: %v", err)
		}
		if ack.Kind != KindAck || ack.SeqNum != seq {
			logging.Fatalf("protocol: expected ACK(seq=%d) for TARGET_STOPPED, got %s(seq=%d)", seq, ack.Kind, ack.SeqNum)
		}
		hc.ExpectedSeqNum++

		if s.Target().State.Any(target.Exited | target.Killed) {
			return
		}

		for {
			msg, err := hc.recvMessage()
			if err != nil {
				logging.Fatalf("protocol: %v", err)
			}
			resumed, err := hc.dispatch(sup, msg)
			if err != nil {
				logging.Fatalf("protocol: %v", err)
			}
			if resumed {
				return
			}
		}
	}
}

// dispatch processes one already-received ProtoMessage against the
// dispatch table, sending the ACK/NACK/fatal response it implies, and
// reports whether the command resumed the target.
func (hc *HostConnection) dispatch(sup *target.Supervisor, msg *ProtoMessage) (resumed bool, err error) {
	entry, ok := dispatchTable[msg.Kind]
	if !ok {
		return false, fmt.Errorf("unknown message kind %s", msg.Kind)
	}
	if msg.Kind != KindInit && msg.SeqNum != hc.ExpectedSeqNum {
		return false, fmt.Errorf("seq_num %d does not match expected %d", msg.SeqNum, hc.ExpectedSeqNum)
	}
	if msg.Kind == KindInit {
		hc.ExpectedSeqNum = msg.SeqNum
	}

	if entry.requiredState != nil {
		if serr := entry.requiredState(sup.Target().State); serr != nil {
			if nerr := hc.sendNack(msg.SeqNum, ErrInvalidState); nerr != nil {
				return false, nerr
			}
			hc.ExpectedSeqNum++
			return false, nil
		}
	}

	respData, herr := entry.handler(hc, sup, msg.SeqNum, msg.Data)
	if errors.Is(herr, errAlreadyResponded) {
		return entry.resumes, nil
	}
	if errors.Is(herr, errQuit) {
		if err := hc.sendAck(msg.SeqNum, nil); err != nil {
			return false, err
		}
		hc.ExpectedSeqNum++
		return false, errQuit
	}
	if herr != nil {
		if err := hc.sendNack(msg.SeqNum, errToDbgError(herr)); err != nil {
			return false, err
		}
		hc.ExpectedSeqNum++
		return false, nil
	}
	if err := hc.sendAck(msg.SeqNum, respData); err != nil {
		return false, err
	}
	hc.ExpectedSeqNum++
	return entry.resumes, nil
}

// Serve processes top-level host requests until QUIT or a fatal protocol
// error. RUN transfers control into the target's stop loop for the
// duration of one run; Serve resumes once that run ends.
func (hc *HostConnection) Serve(sup *target.Supervisor) error {
	for {
		msg, err := hc.recvMessage()
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		_, err = hc.dispatch(sup, msg)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
	}
}

// marshalTargetInfo packs a target.TargetInfo into the TARGET_STOPPED
// payload, field order exactly matching spec.md §6.1.
func marshalTargetInfo(info target.TargetInfo) []byte {
	p := wire.NewPacker(128).
		U32(info.InitialPC).
		U32(info.InitialSP).
		U32(info.State).
		U32(info.ExitCode).
		U32(info.ErrorCode).
		U32(info.Context.SP).
		U32(info.Context.ExcNum).
		U16(info.Context.SR).
		U32(info.Context.PC)
	for _, d := range info.Context.D {
		p.U32(d)
	}
	for _, a := range info.Context.A {
		p.U32(a)
	}
	p.Raw(info.NextInstrBytes[:])
	for _, w := range info.TopStackDWords {
		p.U32(w)
	}
	p.U32(info.BpointID).
		U32(info.BpointAddr).
		U16(info.BpointOpcode).
		U32(info.BpointHitCount)
	return p.Bytes()
}

func errToDbgError(err error) DbgError {
	switch {
	case errors.Is(err, target.ErrInvalidState):
		return ErrInvalidState
	case errors.Is(err, target.ErrLoadFailed):
		return ErrLoadFailed
	case errors.Is(err, target.ErrSpawnFailed):
		return ErrSpawnFailed
	case errors.Is(err, target.ErrRunFailed):
		return ErrRunFailed
	case errors.Is(err, target.ErrUnknownBreakpoint):
		return ErrUnknownBreakpoint
	case errors.Is(err, target.ErrInvalidAddress):
		return ErrInvalidAddress
	case errors.Is(err, target.ErrBreakpointExists):
		return ErrBadData
	case errors.Is(err, breakpoint.ErrNoMemory):
		return ErrOutOfMemory
	case errors.Is(err, errOpenLibFailed):
		return ErrOpenLibFailed
	default:
		return ErrBadData
	}
}
