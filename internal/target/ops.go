package target

import (
	"fmt"

	"github.com/wiemerc/cwdbg/internal/breakpoint"
	"github.com/wiemerc/cwdbg/internal/m68k"
)

// ErrBreakpointExists is returned by SetBreakpoint when the computed
// address already has a breakpoint installed (at most one per address,
// spec.md §3).
var ErrBreakpointExists = fmt.Errorf("target: breakpoint already set at this address")

// SetBreakpoint implements set_breakpoint (§4.4): addr = entry_pc +
// offset.
func (sup *Supervisor) SetBreakpoint(offset uint32, oneShot bool) (*breakpoint.Breakpoint, error) {
	if sup.target.Image == nil || sup.target.Image.Mem == nil {
		return nil, fmt.Errorf("%w: no target loaded", ErrInvalidState)
	}
	addr := sup.target.EntryPC + offset
	if sup.target.Breakpoints.FindByAddr(addr) != nil {
		return nil, ErrBreakpointExists
	}
	bp, err := sup.target.Breakpoints.Set(sup.target.Image.Mem, addr, oneShot)
	if err != nil {
		return nil, err
	}
	return bp, nil
}

// ClearBreakpoint implements clear_breakpoint (§4.4), including
// un-setting ActiveBreakpoint if it names the breakpoint being cleared.
func (sup *Supervisor) ClearBreakpoint(id uint32) error {
	bp := sup.target.Breakpoints.FindByID(id)
	if bp == nil {
		return fmt.Errorf("%w: id %d", ErrUnknownBreakpoint, id)
	}
	if err := sup.target.Breakpoints.Clear(sup.target.Image.Mem, bp); err != nil {
		return err
	}
	if sup.target.ActiveBreakpoint == bp {
		sup.target.ActiveBreakpoint = nil
	}
	return nil
}

// PeekMem reads n bytes from the target's address space (PEEK_MEM).
func (sup *Supervisor) PeekMem(addr uint32, n uint16) ([]byte, error) {
	if sup.target.Image == nil || sup.target.Image.Mem == nil {
		return nil, fmt.Errorf("%w: no target loaded", ErrInvalidState)
	}
	buf := make([]byte, n)
	got := sup.target.Image.Mem.ReadBytes(addr, buf)
	if got != int(n) {
		return nil, fmt.Errorf("%w: %#08x..%#08x", ErrInvalidAddress, addr, addr+uint32(n))
	}
	return buf, nil
}

// PokeMem writes data into the target's address space (POKE_MEM).
func (sup *Supervisor) PokeMem(addr uint32, data []byte) error {
	if sup.target.Image == nil || sup.target.Image.Mem == nil {
		return fmt.Errorf("%w: no target loaded", ErrInvalidState)
	}
	for i := 0; i < len(data); i += 2 {
		var word uint16
		if i+1 < len(data) {
			word = uint16(data[i])<<8 | uint16(data[i+1])
		} else {
			existing, err := sup.target.Image.Mem.ReadWord(addr + uint32(i))
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
			}
			word = uint16(data[i])<<8 | (existing & 0x00ff)
		}
		if err := sup.target.Image.Mem.WriteWord(addr+uint32(i), word); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
	}
	return nil
}

// TargetInfo mirrors spec.md §6.1's TARGET_STOPPED payload field order.
type TargetInfo struct {
	InitialPC       uint32
	InitialSP       uint32
	State           uint32
	ExitCode        uint32
	ErrorCode       uint32
	Context         m68k.TaskContext
	NextInstrBytes [64]byte
	TopStackDWords [8]uint32
	BpointID       uint32
	BpointAddr     uint32
	BpointOpcode   uint16
	BpointHitCount uint32
}

// GetTargetInfo implements get_target_info (§4.8), snapshotting
// everything a TARGET_STOPPED message or a local "i" command needs to
// render.
func (sup *Supervisor) GetTargetInfo() TargetInfo {
	t := sup.target
	info := TargetInfo{
		InitialPC: t.EntryPC,
		State:     uint32(t.State),
		ExitCode:  uint32(t.ExitCode),
	}
	if t.Image != nil {
		info.InitialSP = t.Image.InitialSP
	}
	if t.ActiveContext != nil {
		info.Context = *t.ActiveContext
		if t.Image != nil && t.Image.Mem != nil {
			t.Image.Mem.ReadBytes(info.Context.PC, info.NextInstrBytes[:])
			sp := info.Context.SP
			for i := 0; i < 8; i++ {
				word := make([]byte, 4)
				if t.Image.Mem.ReadBytes(sp+uint32(i*4), word) == 4 {
					info.TopStackDWords[i] = uint32(word[0])<<24 | uint32(word[1])<<16 | uint32(word[2])<<8 | uint32(word[3])
				}
			}
		}
	}
	if bp := t.ActiveBreakpoint; bp != nil {
		info.BpointID = bp.ID
		info.BpointAddr = bp.Addr
		info.BpointOpcode = bp.SavedOpcode
		info.BpointHitCount = bp.HitCount
	}
	return info
}
