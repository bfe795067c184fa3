// Package memmgr implements brk, mmap, and mprotect against a guest
// Machine's page table: anonymous mmap always delegates to the host
// allocator, brk delegates to it until an execve has taken over brk
// management, file-backed mmap copies bytes in from the VFS, and mprotect
// merely re-marks page attributes.
package memmgr

import (
	"github.com/friscy/rve/internal/machine"
)

const pageSize = machine.PageSize

// BrkMax is the ceiling on how far brk may grow past its base once this
// module owns brk management (after an execve has set brk_overridden).
const BrkMax = 16 * 1024 * 1024

// PageWriter is the Machine surface memmgr needs for file-backed mmap and
// brk zero-fill.
type PageWriter interface {
	WriteMem(vaddr uint64, data []byte) error
	SetPageAttrs(vaddr, size uint64, attrs machine.PageAttrs) error
}

// AnonAllocator is the host-backed allocator used for anonymous mmap and
// for brk while brk_overridden is false — the caller supplies a concrete
// implementation (e.g. one backed by golang.org/x/sys/unix.Mmap) so this
// package has no direct dependency on a specific Machine implementation.
type AnonAllocator interface {
	// Mmap reserves length bytes of host memory and returns the address
	// the guest should see it mapped at (the Machine's own built-in
	// allocator decides the address before execve takes over brk).
	Mmap(hintAddr, length uint64, prot machine.PageAttrs) (uint64, error)
	Munmap(addr, length uint64) error
	// GrowBrk asks the built-in allocator to extend the break to newEnd,
	// returning the actual new break (which may be clamped by the
	// allocator itself before brk_overridden takes over).
	GrowBrk(newEnd uint64) (uint64, error)
}

// VFSReader is the subset of *vfs.FS needed for file-backed mmap.
type VFSReader interface {
	Pread(fd int32, buf []byte, offset int64) (int, int)
}

// State tracks the brk and mmap-frontier bookkeeping for one exec context.
type State struct {
	BrkBase       uint64
	BrkCurrent    uint64
	BrkOverridden bool
	MmapFrontier  uint64
}

// Manager ties a State to the collaborators it needs to act.
type Manager struct {
	State *State
	Mem   PageWriter
	Anon  AnonAllocator
	VFS   VFSReader
}

// Brk implements the brk syscall: while BrkOverridden is false, delegate to
// the built-in allocator; once true (post-execve), clamp the requested end
// to [BrkBase, BrkBase+BrkMax] and mark newly exposed pages RW directly.
func (mgr *Manager) Brk(requestedEnd uint64) (uint64, int) {
	st := mgr.State
	if !st.BrkOverridden {
		newEnd, err := mgr.Anon.GrowBrk(requestedEnd)
		if err != nil {
			return st.BrkCurrent, -12 // ENOMEM
		}
		st.BrkCurrent = newEnd
		return newEnd, 0
	}

	end := requestedEnd
	if end < st.BrkBase {
		end = st.BrkBase
	}
	max := st.BrkBase + BrkMax
	if end > max {
		end = max
	}

	if end > st.BrkCurrent {
		start := pageAlignUp(st.BrkCurrent)
		size := pageAlignUp(end) - start
		if size > 0 {
			if err := mgr.Mem.SetPageAttrs(start, size, machine.ProtRead|machine.ProtWrite); err != nil {
				return st.BrkCurrent, -12
			}
			zeros := make([]byte, size)
			if err := mgr.Mem.WriteMem(start, zeros); err != nil {
				return st.BrkCurrent, -12
			}
		}
	}
	// On shrink the old pages' attributes are left unchanged, matching the
	// behavior Linux exhibits for a brk() that only updates the break
	// pointer without unmapping.

	st.BrkCurrent = end
	return end, 0
}

const (
	mapFixed     = 0x10
	mapAnonymous = 0x20
)

// Mmap implements the mmap syscall. fd == -1 means anonymous, delegated to
// the built-in allocator; otherwise the range is filled from the VFS
// entry behind fd.
func (mgr *Manager) Mmap(hintAddr, length uint64, prot machine.PageAttrs, flags int32, fd int32, offset int64) (uint64, int) {
	length = pageAlignUp(length)

	if fd == -1 || flags&mapAnonymous != 0 {
		addr, err := mgr.Anon.Mmap(hintAddr, length, prot)
		if err != nil {
			return 0, -12 // ENOMEM
		}
		return addr, 0
	}

	addr := hintAddr
	if addr == 0 || flags&mapFixed == 0 {
		addr = mgr.State.MmapFrontier
	}

	if err := mgr.Mem.SetPageAttrs(addr, length, machine.ProtRead|machine.ProtWrite); err != nil {
		return 0, -14 // EFAULT
	}
	zeros := make([]byte, length)
	if err := mgr.Mem.WriteMem(addr, zeros); err != nil {
		return 0, -14 // EFAULT
	}

	buf := make([]byte, length)
	n, errno := mgr.VFS.Pread(fd, buf, offset)
	if errno != 0 {
		return 0, errno
	}
	if n > 0 {
		if err := mgr.Mem.WriteMem(addr, buf[:n]); err != nil {
			return 0, -14
		}
	}

	if err := mgr.Mem.SetPageAttrs(addr, length, prot); err != nil {
		return 0, -14
	}

	if addr+length > mgr.State.MmapFrontier {
		mgr.State.MmapFrontier = addr + length
	}
	return addr, 0
}

// Mprotect re-marks [addr, addr+length) with prot. Callers are responsible
// for skipping this entirely while a forked child is running (see the fork
// engine): a PROT_NONE applied to the parent's still-shared pages during
// that window would corrupt the snapshot the fork engine is mid-restore on.
func (mgr *Manager) Mprotect(addr, length uint64, prot machine.PageAttrs) int {
	length = pageAlignUp(length)
	if err := mgr.Mem.SetPageAttrs(addr, length, prot); err != nil {
		return -12
	}
	return 0
}

func pageAlignUp(v uint64) uint64 {
	return (v + pageSize - 1) &^ (pageSize - 1)
}
