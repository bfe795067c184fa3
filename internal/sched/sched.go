// Package sched implements the cooperative virtual-thread scheduler: a
// fixed array of up to 8 threads, syscall-budget-based preemption, and
// futex wait/wake. Only one thread ever runs against the Machine at a
// time.
package sched

import "github.com/friscy/rve/internal/machine"

const (
	MaxThreads = 8
	Quantum    = 50000
)

// State is a tagged union of the states a scheduler slot can be in — empty
// (unoccupied), runnable, or waiting on a futex address — encoded as an
// interface rather than a struct of independent bools so a slot can never
// be simultaneously "waiting" and "empty", a combination separate flags
// would otherwise allow.
type State interface{ isState() }

type Empty struct{}

func (Empty) isState() {}

type Runnable struct{}

func (Runnable) isState() {}

type Waiting struct {
	Addr     uint64
	Expected uint32
}

func (Waiting) isState() {}

// Thread is one virtual thread's saved context.
type Thread struct {
	Regs          [32]uint64
	PC            uint64
	TID           int32
	State         State
	ClearChildTID uint64
	Budget        int
}

// Scheduler holds the fixed thread array and the index of the currently
// running thread.
type Scheduler struct {
	Threads [MaxThreads]*Thread
	Current int
	nextTID int32

	// StrictFutexDeadlock selects between the upstream-compatible
	// "zero the word and return 0" behavior and a deterministic
	// ErrNoRunnableThread when a futex WAIT finds no other runnable
	// thread. Off by default so unmodified guest binaries keep working;
	// test suites that want determinism opt in.
	StrictFutexDeadlock bool
}

// New creates a Scheduler with a single main thread occupying slot 0.
func New(mainTID int32, entryPC uint64, sp uint64) *Scheduler {
	s := &Scheduler{nextTID: mainTID + 1}
	main := &Thread{TID: mainTID, PC: entryPC, State: Runnable{}, Budget: Quantum}
	main.Regs[2] = sp // x2 = sp
	s.Threads[0] = main
	s.Current = 0
	return s
}

// Spawn implements the CLONE_THREAD path of clone(): the kernel returns to
// the same next-instruction PC in both parent and child (exactly as it does
// for fork), so the child slot starts as a copy of the caller's live
// register file with its stack pointer, optional TLS pointer, and return
// value (a0=0) overwritten. Returns the new thread's tid, or 0 if every
// slot is already occupied.
func (s *Scheduler) Spawn(m machine.Machine, childSP, tls, clearChildTID uint64) int32 {
	slot := -1
	for i := 0; i < MaxThreads; i++ {
		if s.Threads[i] == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return 0
	}

	t := &Thread{State: Runnable{}, Budget: Quantum, ClearChildTID: clearChildTID}
	for i := 0; i < 32; i++ {
		t.Regs[i] = m.Reg(i)
	}
	t.PC = m.PC()
	t.Regs[2] = childSP // x2 = sp
	if tls != 0 {
		t.Regs[4] = tls // x4 = tp
	}
	t.Regs[10] = 0 // a0: clone() returns 0 in the child

	t.TID = s.nextTID
	s.nextTID++
	s.Threads[slot] = t
	return t.TID
}

func (s *Scheduler) CurrentThread() *Thread {
	return s.Threads[s.Current]
}

// Save copies the Machine's live registers and PC into the current slot.
func (s *Scheduler) Save(m machine.Machine) {
	t := s.CurrentThread()
	if t == nil {
		return
	}
	for i := 0; i < 32; i++ {
		t.Regs[i] = m.Reg(i)
	}
	t.PC = m.PC()
}

// Restore writes slot target's saved context into the Machine, makes it
// current, and resets its syscall budget to a fresh quantum.
func (s *Scheduler) Restore(m machine.Machine, target int) {
	t := s.Threads[target]
	for i := 1; i < 32; i++ { // x0 is hardwired zero, never written
		m.SetReg(i, t.Regs[i])
	}
	m.SetPC(t.PC)
	t.Budget = Quantum
	s.Current = target
}

// runnable reports whether slot i holds a thread that can be scheduled.
func (s *Scheduler) runnable(i int) bool {
	t := s.Threads[i]
	if t == nil {
		return false
	}
	_, runnable := t.State.(Runnable)
	return runnable
}

// nextRunnable finds the next runnable slot after the current one, walking
// in index order, wrapping once. Returns -1 if none found.
func (s *Scheduler) nextRunnable() int {
	for step := 1; step <= MaxThreads; step++ {
		i := (s.Current + step) % MaxThreads
		if i == s.Current {
			continue
		}
		if s.runnable(i) {
			return i
		}
	}
	return -1
}

// Tick is called on every clock_gettime/mmap syscall: it decrements the
// current thread's budget and switches away if it has run out and another
// thread is runnable. Returns true if a switch happened.
func (s *Scheduler) Tick(m machine.Machine) bool {
	t := s.CurrentThread()
	t.Budget--
	if t.Budget > 0 {
		return false
	}
	next := s.nextRunnable()
	if next < 0 {
		t.Budget = Quantum
		return false
	}
	s.Save(m)
	s.Restore(m, next)
	return true
}

// Yield implements sched_yield/nanosleep/futex-WAIT's unconditional
// voluntary yield: switch to another runnable thread if one exists.
func (s *Scheduler) Yield(m machine.Machine) bool {
	next := s.nextRunnable()
	if next < 0 {
		return false
	}
	s.Save(m)
	s.Restore(m, next)
	return true
}

// ErrNoRunnableThread is returned by FutexWait when StrictFutexDeadlock is
// set and no other thread is runnable to switch to.
var ErrNoRunnableThread = &noRunnableThreadError{}

type noRunnableThreadError struct{}

func (*noRunnableThreadError) Error() string { return "futex wait: no runnable thread" }

// FutexWait reads the 32-bit word at uaddr (via readWord) and, if it still
// equals expected, marks the current thread waiting and switches away. If
// no other thread is runnable, it either zeros the word and returns 0
// (default, upstream-compatible) or returns ErrNoRunnableThread when
// StrictFutexDeadlock is set.
func (s *Scheduler) FutexWait(m machine.Machine, uaddr uint64, expected uint32, readWord func() (uint32, error), writeZero func() error) (int64, error) {
	actual, err := readWord()
	if err != nil {
		return 0, err
	}
	if actual != expected {
		return -11, nil // EAGAIN
	}

	next := s.nextRunnable()
	if next < 0 {
		if s.StrictFutexDeadlock {
			return 0, ErrNoRunnableThread
		}
		if err := writeZero(); err != nil {
			return 0, err
		}
		return 0, nil
	}

	t := s.CurrentThread()
	t.State = Waiting{Addr: uaddr, Expected: expected}
	s.Save(m)
	s.Restore(m, next)
	return 0, nil
}

// FutexWake walks the thread array in index order, clearing the wait on
// every thread blocked on uaddr up to n of them, and returns the count
// woken.
func (s *Scheduler) FutexWake(uaddr uint64, n int32) int32 {
	var woken int32
	for i := 0; i < MaxThreads && woken < n; i++ {
		t := s.Threads[i]
		if t == nil {
			continue
		}
		w, ok := t.State.(Waiting)
		if !ok || w.Addr != uaddr {
			continue
		}
		t.State = Runnable{}
		woken++
	}
	return woken
}

// ExitThread handles `exit` in a non-main thread: clear the slot, write
// zero to its clear_child_tid pointer (if set), wake any futex waiter on
// that address, and switch to the next runnable thread. Returns the new
// current index, or -1 if none remain runnable.
func (s *Scheduler) ExitThread(m machine.Machine, slot int, writeZeroAt func(addr uint64) error) int {
	t := s.Threads[slot]
	if t == nil {
		return s.Current
	}
	if t.ClearChildTID != 0 && writeZeroAt != nil {
		_ = writeZeroAt(t.ClearChildTID)
		s.FutexWake(t.ClearChildTID, 1<<31-1)
	}
	s.Threads[slot] = nil

	if slot == s.Current {
		next := s.nextRunnable()
		if next >= 0 {
			s.Restore(m, next)
			return next
		}
		return -1
	}
	return s.Current
}
