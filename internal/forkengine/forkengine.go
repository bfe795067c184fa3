// Package forkengine emulates Linux clone(CLONE_VM|CLONE_VFORK): a
// single-slot, single-generation fork where the child runs in place on the
// same Machine, sharing memory with the parent, until it execs or exits.
// Nested fork is rejected outright — there is only ever one snapshot slot.
package forkengine

import (
	"errors"

	"github.com/friscy/rve/internal/machine"
)

const (
	cloneVM     = 0x00000100
	cloneVfork  = 0x00004000
	cloneThread = 0x00010000
)

// Kind discriminates how a clone() call should be handled.
type Kind int

const (
	KindThread Kind = iota
	KindFork
)

// Classify implements the clone discriminator: CLONE_THREAD, or CLONE_VM
// without CLONE_VFORK, is thread creation; anything else is a fork.
func Classify(flags uint64) Kind {
	if flags&cloneThread != 0 {
		return KindThread
	}
	if flags&cloneVM != 0 && flags&cloneVfork == 0 {
		return KindThread
	}
	return KindFork
}

// MemRegion is one of the four snapshotted ranges.
type MemRegion struct {
	Addr  uint64
	Size  uint64
	Bytes []byte
}

// Regions bundles the four snapshot windows the spec names by role.
type Regions struct {
	ExecData  MemRegion // data/BSS + brk arena
	InterpRW  MemRegion // interpreter data
	Stack     MemRegion // current SP -> original stack top
	MmapArena MemRegion // heap_start+heap_size -> current mmap frontier
}

// State is the fork engine's single-slot, single-generation snapshot.
type State struct {
	InChild      bool
	ChildReaped  bool
	ChildPID     int32
	ExitStatus   int32
	SavedRegs    [32]uint64
	SavedPC      uint64
	Regions      Regions
	FDSnapshot   map[int32]bool // the set of fds open at fork time
	nextPID      int32
}

// NewState creates fork state with the child-PID counter starting at 100,
// per the monotonic counter the spec requires.
func NewState() *State {
	return &State{nextPID: 100}
}

var ErrAlreadyForked = errors.New("forkengine: nested fork rejected")

// FaultingMachine is the Machine surface needed to snapshot memory: mark a
// region RWX so the copy-out can't fault, then read it.
type FaultingMachine interface {
	SetPageAttrs(vaddr, size uint64, attrs machine.PageAttrs) error
	ReadMem(vaddr uint64, buf []byte) error
}

// Bounds is the set of addresses the fork engine needs from the current
// exec context to compute the four snapshot windows.
type Bounds struct {
	ExecRWStart, ExecRWEnd     uint64
	HeapStart                  uint64
	InterpRWStart, InterpRWEnd uint64
	CurrentSP, OrigStackTop    uint64
	HeapSize                   uint64
	MmapFrontier               uint64
}

// Fork executes the fork path: rejects a nested fork with EAGAIN-shaped
// ErrAlreadyForked, snapshots the four memory regions and fd set, and only
// flips InChild true once every region copy has succeeded. The caller
// (the syscalls dispatch, which holds the full Machine) must have already
// copied the parent's registers and post-ecall PC into st.SavedRegs/
// st.SavedPC before calling Fork.
func Fork(st *State, m FaultingMachine, b Bounds, openFDs map[int32]bool) (childPID int32, err error) {
	if st.InChild {
		return 0, ErrAlreadyForked
	}

	execHi := b.ExecRWEnd
	if b.HeapStart > execHi {
		execHi = b.HeapStart
	}

	regions := Regions{}
	var snapErr error
	regions.ExecData, snapErr = snapshotRegion(m, b.ExecRWStart, execHi)
	if snapErr != nil {
		return 0, snapErr
	}
	regions.InterpRW, snapErr = snapshotRegion(m, b.InterpRWStart, b.InterpRWEnd)
	if snapErr != nil {
		return 0, snapErr
	}
	regions.Stack, snapErr = snapshotRegion(m, b.CurrentSP, b.OrigStackTop)
	if snapErr != nil {
		return 0, snapErr
	}
	regions.MmapArena, snapErr = snapshotRegion(m, b.HeapStart+b.HeapSize, b.MmapFrontier)
	if snapErr != nil {
		return 0, snapErr
	}

	fdSnap := make(map[int32]bool, len(openFDs))
	for fd := range openFDs {
		fdSnap[fd] = true
	}

	st.Regions = regions
	st.FDSnapshot = fdSnap
	st.ChildPID = st.nextPID
	st.nextPID++
	st.ExitStatus = 0
	st.ChildReaped = false
	st.InChild = true
	return st.ChildPID, nil
}

// snapshotRegion marks [start,end) RWX so the read cannot fault, then
// copies it out.
func snapshotRegion(m FaultingMachine, start, end uint64) (MemRegion, error) {
	if end <= start {
		return MemRegion{Addr: start, Size: 0}, nil
	}
	size := end - start
	if err := m.SetPageAttrs(start, size, machine.RWX); err != nil {
		return MemRegion{}, err
	}
	buf := make([]byte, size)
	if err := m.ReadMem(start, buf); err != nil {
		return MemRegion{}, err
	}
	return MemRegion{Addr: start, Size: size, Bytes: buf}, nil
}

// RestoringMachine is the Machine surface needed to restore a snapshot:
// mark RWX before writing data back, per the ordering that avoids faulting
// on RELRO-protected parent pages.
type RestoringMachine interface {
	SetPageAttrs(vaddr, size uint64, attrs machine.PageAttrs) error
	WriteMem(vaddr uint64, data []byte) error
	SetReg(n int, v uint64)
	SetPC(v uint64)
	SetResult(v int64)
}

// VFSCloser closes any fd not present in the pre-fork snapshot.
type VFSCloser interface {
	Close(fd int32) int
	OpenFDs() []int32
}

// ExitChild implements child exit: restores all four regions (RWX before
// data write-back), closes fds the child opened, restores parent registers
// and PC, and sets the return value to the child PID — the parent resumes
// exactly where clone() returned, seeing its own PID this time.
func ExitChild(st *State, m RestoringMachine, vfs VFSCloser, exitStatus int32) error {
	st.ExitStatus = exitStatus
	st.InChild = false

	for _, r := range []MemRegion{st.Regions.ExecData, st.Regions.InterpRW, st.Regions.Stack, st.Regions.MmapArena} {
		if r.Size == 0 {
			continue
		}
		if err := m.SetPageAttrs(r.Addr, r.Size, machine.RWX); err != nil {
			return err
		}
	}
	for _, r := range []MemRegion{st.Regions.ExecData, st.Regions.InterpRW, st.Regions.Stack, st.Regions.MmapArena} {
		if r.Size == 0 {
			continue
		}
		if err := m.WriteMem(r.Addr, r.Bytes); err != nil {
			return err
		}
	}

	for _, fd := range vfs.OpenFDs() {
		if !st.FDSnapshot[fd] {
			vfs.Close(fd)
		}
	}

	for i := 1; i < 32; i++ {
		m.SetReg(i, st.SavedRegs[i])
	}
	m.SetPC(st.SavedPC)
	m.SetResult(int64(st.ChildPID))

	st.Regions = Regions{}
	st.FDSnapshot = nil
	return nil
}

// Wait4 returns the child's exit status on the first call after exit, and
// ECHILD on every subsequent call, preventing a shell wait loop from
// spinning on a child this engine does not actually keep alive as a
// separate process.
func Wait4(st *State) (pid int32, status int32, errno int) {
	if st.ChildReaped {
		return 0, 0, -10 // ECHILD
	}
	st.ChildReaped = true
	return st.ChildPID, (st.ExitStatus & 0xff) << 8, 0
}
