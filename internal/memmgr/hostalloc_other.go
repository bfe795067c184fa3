//go:build !linux

package memmgr

import (
	"errors"

	"github.com/friscy/rve/internal/machine"
)

// HostAnonAllocator is Linux-only; the guest's real memory backing comes
// from unix.Mmap semantics this platform's mmap doesn't expose identically.
type HostAnonAllocator struct{}

func NewHostAnonAllocator(base uint64) *HostAnonAllocator { return &HostAnonAllocator{} }

func (a *HostAnonAllocator) Mmap(hintAddr, length uint64, prot machine.PageAttrs) (uint64, error) {
	return 0, errors.New("memmgr: HostAnonAllocator requires linux")
}

func (a *HostAnonAllocator) Munmap(addr, length uint64) error { return nil }

func (a *HostAnonAllocator) GrowBrk(newEnd uint64) (uint64, error) {
	return 0, errors.New("memmgr: HostAnonAllocator requires linux")
}
