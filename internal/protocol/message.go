// Package protocol implements the host-driven request/response state
// machine (spec.md §4.3/§6.1): message kinds, the ProtoMessage wire
// envelope, sequence-number bookkeeping, and the kind -> handler dispatch
// table. It sits on top of internal/wire for field packing and checksums
// and internal/transport for framing, the same layering the original
// debugger's protocol.c has over util.c and serio.c.
package protocol

import (
	"errors"
	"fmt"

	"github.com/wiemerc/cwdbg/internal/wire"
)

// Kind identifies a ProtoMessage's purpose, matching spec.md §4.3's
// message set.
type Kind uint8

const (
	KindInit Kind = iota + 1
	KindAck
	KindNack
	KindRun
	KindQuit
	KindCont
	KindStep
	KindKill
	KindPeekMem
	KindPokeMem
	KindSetBpoint
	KindClearBpoint
	KindGetBaseAddress
	KindTargetStopped
)

func (k Kind) String() string {
	switch k {
	case KindInit:
		return "INIT"
	case KindAck:
		return "ACK"
	case KindNack:
		return "NACK"
	case KindRun:
		return "RUN"
	case KindQuit:
		return "QUIT"
	case KindCont:
		return "CONT"
	case KindStep:
		return "STEP"
	case KindKill:
		return "KILL"
	case KindPeekMem:
		return "PEEK_MEM"
	case KindPokeMem:
		return "POKE_MEM"
	case KindSetBpoint:
		return "SET_BPOINT"
	case KindClearBpoint:
		return "CLEAR_BPOINT"
	case KindGetBaseAddress:
		return "GET_BASE_ADDRESS"
	case KindTargetStopped:
		return "TARGET_STOPPED"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// DbgError is the numeric error code carried in a NACK's data field, per
// spec.md §6.1.
type DbgError uint8

const (
	ErrOutOfMemory DbgError = iota + 1
	ErrInvalidAddress
	ErrUnknownBreakpoint
	ErrLoadFailed
	ErrSpawnFailed
	ErrUnknownStopReason
	ErrNoTrap
	ErrRunFailed
	ErrBadData
	ErrOpenLibFailed
	// ErrInvalidState is the "wrong permitted-state" NACK code. spec.md §9
	// leaves its numeric value an open question across source revisions;
	// this port fixes it at 11, past the original's 1-10 range.
	ErrInvalidState
)

func (e DbgError) String() string {
	switch e {
	case ErrOutOfMemory:
		return "OUT_OF_MEMORY"
	case ErrInvalidAddress:
		return "INVALID_ADDRESS"
	case ErrUnknownBreakpoint:
		return "UNKNOWN_BREAKPOINT"
	case ErrLoadFailed:
		return "LOAD_FAILED"
	case ErrSpawnFailed:
		return "SPAWN_FAILED"
	case ErrUnknownStopReason:
		return "UNKNOWN_STOP_REASON"
	case ErrNoTrap:
		return "NO_TRAP"
	case ErrRunFailed:
		return "RUN_FAILED"
	case ErrBadData:
		return "BAD_DATA"
	case ErrOpenLibFailed:
		return "OPEN_LIB_FAILED"
	case ErrInvalidState:
		return "INVALID_STATE"
	default:
		return fmt.Sprintf("DbgError(%d)", uint8(e))
	}
}

// MaxMsgDataLen bounds ProtoMessage.Data, per spec.md §6.1.
const MaxMsgDataLen = 255

var (
	// ErrChecksumMismatch is returned by Unmarshal when the computed
	// checksum does not match the one carried on the wire.
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")
	// ErrDataTooLong is returned by Marshal when Data exceeds MaxMsgDataLen.
	ErrDataTooLong = errors.New("protocol: data exceeds MAX_MSG_DATA_LEN")
	// ErrTruncated is returned by Unmarshal when buf is shorter than a
	// well-formed header or the declared length.
	ErrTruncated = errors.New("protocol: truncated message")
)

// ProtoMessage is the full envelope of spec.md §3/§6.1.
type ProtoMessage struct {
	SeqNum   uint16
	Checksum uint16
	Kind     Kind
	Data     []byte
}

// Marshal serializes m to the byte-exact wire layout: seq_num_hi,
// seq_num_lo, checksum_hi, checksum_lo, kind, length, data[length]. The
// checksum is computed over seq_num||kind||length||data, i.e. everything
// except the checksum field itself, exactly as spec.md §4.2 specifies.
func (m *ProtoMessage) Marshal() ([]byte, error) {
	if len(m.Data) > MaxMsgDataLen {
		return nil, ErrDataTooLong
	}
	unchecked := wire.NewPacker(4 + len(m.Data)).
		U16(m.SeqNum).
		U8(uint8(m.Kind)).
		U8(uint8(len(m.Data))).
		Raw(m.Data).
		Bytes()
	checksum := wire.Checksum(unchecked)

	out := wire.NewPacker(6 + len(m.Data))
	out.U16(m.SeqNum).U16(checksum).U8(uint8(m.Kind)).U8(uint8(len(m.Data))).Raw(m.Data)
	return out.Bytes(), nil
}

// Unmarshal parses buf (one decoded SLIP frame) into a ProtoMessage and
// verifies its checksum.
func Unmarshal(buf []byte) (*ProtoMessage, error) {
	u := wire.NewUnpacker(buf)
	seqNum, err := u.U16()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	checksum, err := u.U16()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	kind, err := u.U8()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	length, err := u.U8()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	data, err := u.Raw(int(length))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}

	unchecked := wire.NewPacker(4 + len(data)).
		U16(seqNum).
		U8(kind).
		U8(length).
		Raw(data).
		Bytes()
	if got := wire.Checksum(unchecked); got != checksum {
		return nil, fmt.Errorf("%w: got %#04x, want %#04x", ErrChecksumMismatch, got, checksum)
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	return &ProtoMessage{SeqNum: seqNum, Checksum: checksum, Kind: Kind(kind), Data: dataCopy}, nil
}
