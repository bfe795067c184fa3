// Package fake provides an in-process Machine test double: a flat byte
// arena with per-page attribute tracking, standing in for the external
// RISC-V instruction emulator (machine.Machine) during tests. It never
// decodes or executes any instruction — it only honors the memory/register
// contract so the core components (VFS, loader, syscalls, scheduler, fork
// engine) can be exercised without a real decode/execute loop.
package fake

import (
	"fmt"

	"github.com/friscy/rve/internal/machine"
)

// Machine is a fixed-size flat arena Machine implementation for tests.
type Machine struct {
	regs     [32]uint64
	pc       uint64
	arena    []byte
	attrs    []machine.PageAttrs // one entry per page
	stopped  bool
	result   int64
	userdata any

	// StopCount/ResumeCount let tests assert suspension happened.
	StopCount   int
	ResumeCount int
}

// New creates a Machine with an arena of the given size (must be a multiple
// of machine.PageSize). All pages start with no permissions.
func New(arenaSize uint64) *Machine {
	if arenaSize%machine.PageSize != 0 {
		arenaSize += machine.PageSize - (arenaSize % machine.PageSize)
	}
	return &Machine{
		arena: make([]byte, arenaSize),
		attrs: make([]machine.PageAttrs, arenaSize/machine.PageSize),
	}
}

func (m *Machine) Reg(n int) uint64 {
	if n == 0 {
		return 0
	}
	return m.regs[n]
}

func (m *Machine) SetReg(n int, v uint64) {
	if n == 0 {
		return
	}
	m.regs[n] = v
}

func (m *Machine) PC() uint64     { return m.pc }
func (m *Machine) SetPC(v uint64) { m.pc = v }

func (m *Machine) pageIndex(vaddr uint64) (int, error) {
	idx := vaddr / machine.PageSize
	if idx >= uint64(len(m.attrs)) {
		return 0, fmt.Errorf("fake machine: vaddr %#x out of arena (size %#x)", vaddr, len(m.arena))
	}
	return int(idx), nil
}

func (m *Machine) checkRange(vaddr, size uint64, want machine.PageAttrs) error {
	if size == 0 {
		return nil
	}
	start := vaddr / machine.PageSize
	end := (vaddr + size - 1) / machine.PageSize
	for p := start; p <= end; p++ {
		if p >= uint64(len(m.attrs)) {
			return fmt.Errorf("fake machine: range [%#x,%#x) out of arena", vaddr, vaddr+size)
		}
		if m.attrs[p]&want != want {
			return &machine.PageFault{FaultAddr: p * machine.PageSize, Want: want, Have: m.attrs[p]}
		}
	}
	return nil
}

func (m *Machine) ReadMem(vaddr uint64, buf []byte) error {
	if err := m.checkRange(vaddr, uint64(len(buf)), machine.ProtRead); err != nil {
		return err
	}
	copy(buf, m.arena[vaddr:vaddr+uint64(len(buf))])
	return nil
}

func (m *Machine) WriteMem(vaddr uint64, data []byte) error {
	if err := m.checkRange(vaddr, uint64(len(data)), machine.ProtWrite); err != nil {
		return err
	}
	copy(m.arena[vaddr:vaddr+uint64(len(data))], data)
	return nil
}

// ForceWriteMem copies data into the arena without the permission check
// WriteMem applies, so bytes can be placed without calling SetPageAttrs
// first.
func (m *Machine) ForceWriteMem(vaddr uint64, data []byte) {
	copy(m.arena[vaddr:vaddr+uint64(len(data))], data)
}

func (m *Machine) SetPageAttrs(vaddr, size uint64, attrs machine.PageAttrs) error {
	if size == 0 {
		return nil
	}
	start := vaddr / machine.PageSize
	end := (vaddr + size - 1) / machine.PageSize
	for p := start; p <= end; p++ {
		if p >= uint64(len(m.attrs)) {
			return fmt.Errorf("fake machine: SetPageAttrs range out of arena")
		}
		m.attrs[p] = attrs
	}
	return nil
}

func (m *Machine) PageAttrsAt(vaddr uint64) (machine.PageAttrs, error) {
	idx, err := m.pageIndex(vaddr)
	if err != nil {
		return 0, err
	}
	return m.attrs[idx], nil
}

func (m *Machine) SetResult(v int64) {
	m.result = v
	m.regs[10] = uint64(v) // a0 = x10
}

func (m *Machine) Result() int64 { return m.result }

func (m *Machine) Stop()  { m.stopped = true; m.StopCount++ }
func (m *Machine) Resume() { m.stopped = false; m.ResumeCount++ }
func (m *Machine) Stopped() bool { return m.stopped }

func (m *Machine) Userdata() any          { return m.userdata }
func (m *Machine) SetUserdata(v any)      { m.userdata = v }

// ArenaSize reports the size of the backing arena in bytes.
func (m *Machine) ArenaSize() uint64 { return uint64(len(m.arena)) }

// WriteArena copies data directly into the backing arena, bypassing the
// page-attribute check — it satisfies elfload.ArenaWriter, since this fake
// Machine's ReadMem/WriteMem and its "arena" are the same backing slice.
func (m *Machine) WriteArena(vaddr uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	copy(m.arena[vaddr:vaddr+uint64(len(data))], data)
}
