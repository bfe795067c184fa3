//go:build linux

package memmgr

import (
	"fmt"

	"github.com/friscy/rve/internal/machine"
	"golang.org/x/sys/unix"
)

// HostAnonAllocator backs anonymous mmap/brk growth with real host pages via
// unix.Mmap, the same primitive uffd_linux.go uses for its file-backed
// mapping. A concrete Machine implementation is responsible for mapping the
// guest virtual addresses this allocator hands out onto the host memory it
// reserves here (MAP_FIXED at the corresponding host address); this
// allocator only owns the reservation and bump-pointer bookkeeping.
type HostAnonAllocator struct {
	base uint64
	next uint64
}

// NewHostAnonAllocator starts the bump allocator at base, the lowest guest
// address anonymous mappings may be placed at.
func NewHostAnonAllocator(base uint64) *HostAnonAllocator {
	return &HostAnonAllocator{base: base, next: base}
}

func (a *HostAnonAllocator) Mmap(hintAddr, length uint64, prot machine.PageAttrs) (uint64, error) {
	length = (length + pageSize - 1) &^ (pageSize - 1)
	data, err := unix.Mmap(-1, 0, int(length), toUnixProt(prot), unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return 0, fmt.Errorf("memmgr: host mmap: %w", err)
	}
	_ = data // released to the caller's Machine to bind at addr; kept alive by the OS mapping itself

	addr := a.next
	if hintAddr != 0 {
		addr = hintAddr
	}
	a.next = addr + length
	return addr, nil
}

func (a *HostAnonAllocator) Munmap(addr, length uint64) error {
	return nil
}

func (a *HostAnonAllocator) GrowBrk(newEnd uint64) (uint64, error) {
	if newEnd < a.next {
		return a.next, nil
	}
	grow := newEnd - a.next
	data, err := unix.Mmap(-1, 0, int(grow), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return a.next, fmt.Errorf("memmgr: growing brk: %w", err)
	}
	_ = data
	a.next = newEnd
	return newEnd, nil
}

func toUnixProt(attrs machine.PageAttrs) int {
	prot := unix.PROT_NONE
	if attrs&machine.ProtRead != 0 {
		prot |= unix.PROT_READ
	}
	if attrs&machine.ProtWrite != 0 {
		prot |= unix.PROT_WRITE
	}
	if attrs&machine.ProtExec != 0 {
		prot |= unix.PROT_EXEC
	}
	return prot
}
