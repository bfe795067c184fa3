package sched

import (
	"testing"

	"github.com/friscy/rve/internal/machine/fake"
)

func newTestMachine() *fake.Machine {
	return fake.New(1 << 20)
}

func TestTickSwitchesWhenBudgetExhausted(t *testing.T) {
	m := newTestMachine()
	s := New(1, 0x1000, 0x10000)
	s.Threads[1] = &Thread{TID: 2, PC: 0x2000, State: Runnable{}, Budget: Quantum}

	s.Threads[0].Budget = 1
	switched := s.Tick(m)
	if !switched {
		t.Fatalf("Tick did not switch when budget exhausted and another thread runnable")
	}
	if s.Current != 1 {
		t.Errorf("Current = %d, want 1", s.Current)
	}
	if m.PC() != 0x2000 {
		t.Errorf("PC after switch = %#x, want 0x2000", m.PC())
	}
}

func TestTickNoSwitchWhenAlone(t *testing.T) {
	m := newTestMachine()
	s := New(1, 0x1000, 0x10000)
	s.Threads[0].Budget = 1
	if s.Tick(m) {
		t.Errorf("Tick switched with no other runnable thread")
	}
	if s.Threads[0].Budget != Quantum {
		t.Errorf("budget not reset when no switch possible, got %d", s.Threads[0].Budget)
	}
}

func TestFutexWaitWakeRoundTrip(t *testing.T) {
	m := newTestMachine()
	s := New(1, 0x1000, 0x10000)
	s.Threads[1] = &Thread{TID: 2, PC: 0x2000, State: Runnable{}, Budget: Quantum}

	word := uint32(5)
	read := func() (uint32, error) { return word, nil }
	written := false
	writeZero := func() error { written = true; word = 0; return nil }

	ret, err := s.FutexWait(m, 0xdead, 5, read, writeZero)
	if err != nil {
		t.Fatalf("FutexWait err = %v", err)
	}
	if ret != 0 {
		t.Errorf("FutexWait ret = %d, want 0", ret)
	}
	if written {
		t.Errorf("FutexWait zeroed the word despite a runnable thread existing")
	}
	if _, ok := s.Threads[0].State.(Waiting); !ok {
		t.Fatalf("waiting thread state = %T, want Waiting", s.Threads[0].State)
	}
	if s.Current != 1 {
		t.Errorf("Current after FutexWait = %d, want 1 (switched away)", s.Current)
	}

	woken := s.FutexWake(0xdead, 1)
	if woken != 1 {
		t.Errorf("FutexWake returned %d, want 1", woken)
	}
	if _, ok := s.Threads[0].State.(Runnable); !ok {
		t.Errorf("thread 0 state after wake = %T, want Runnable", s.Threads[0].State)
	}
}

func TestFutexWaitMismatchReturnsEAGAIN(t *testing.T) {
	m := newTestMachine()
	s := New(1, 0x1000, 0x10000)
	read := func() (uint32, error) { return 99, nil }
	ret, err := s.FutexWait(m, 0x1, 5, read, func() error { return nil })
	if err != nil {
		t.Fatalf("FutexWait err = %v", err)
	}
	if ret != -11 {
		t.Errorf("FutexWait ret = %d, want -11 (EAGAIN)", ret)
	}
}

func TestFutexWaitNoRunnableDefaultsToZeroWrite(t *testing.T) {
	m := newTestMachine()
	s := New(1, 0x1000, 0x10000)
	written := false
	read := func() (uint32, error) { return 1, nil }
	writeZero := func() error { written = true; return nil }

	ret, err := s.FutexWait(m, 0x1, 1, read, writeZero)
	if err != nil {
		t.Fatalf("FutexWait err = %v", err)
	}
	if ret != 0 || !written {
		t.Errorf("FutexWait(no runnable) = %d, written=%v, want 0, true", ret, written)
	}
}

func TestFutexWaitStrictModeReturnsSentinel(t *testing.T) {
	m := newTestMachine()
	s := New(1, 0x1000, 0x10000)
	s.StrictFutexDeadlock = true
	read := func() (uint32, error) { return 1, nil }
	_, err := s.FutexWait(m, 0x1, 1, read, func() error { return nil })
	if err != ErrNoRunnableThread {
		t.Errorf("FutexWait(strict, no runnable) err = %v, want ErrNoRunnableThread", err)
	}
}

func TestExitThreadWakesClearChildTID(t *testing.T) {
	m := newTestMachine()
	s := New(1, 0x1000, 0x10000)
	s.Threads[1] = &Thread{TID: 2, PC: 0x2000, State: Runnable{}, Budget: Quantum, ClearChildTID: 0x3000}
	s.Threads[2] = &Thread{TID: 3, PC: 0x5000, State: Waiting{Addr: 0x3000, Expected: 2}, Budget: Quantum}

	var zeroedAddr uint64
	newCur := s.ExitThread(m, 1, func(addr uint64) error { zeroedAddr = addr; return nil })

	if zeroedAddr != 0x3000 {
		t.Errorf("clear_child_tid address zeroed = %#x, want 0x3000", zeroedAddr)
	}
	if _, ok := s.Threads[2].State.(Runnable); !ok {
		t.Errorf("waiter not woken: state = %T", s.Threads[2].State)
	}
	if s.Threads[1] != nil {
		t.Errorf("exited slot not cleared")
	}
	if newCur < 0 {
		t.Errorf("ExitThread returned no runnable thread, want one")
	}
}

func TestSpawnSeedsChildFromLiveRegisters(t *testing.T) {
	m := newTestMachine()
	s := New(1, 0x1000, 0x10000)

	m.SetPC(0x4000)
	m.SetReg(10, 42) // a0, should not leak into the child's a0
	m.SetReg(5, 0xabc)

	tid := s.Spawn(m, 0x20000, 0x30000, 0x40000)
	if tid == 0 {
		t.Fatalf("Spawn returned 0 (no free slot)")
	}
	if tid == s.Threads[0].TID {
		t.Errorf("spawned thread reused the main thread's tid")
	}

	child := s.Threads[1]
	if child == nil {
		t.Fatalf("Spawn did not occupy slot 1")
	}
	if child.PC != 0x4000 {
		t.Errorf("child PC = %#x, want 0x4000 (same next-instruction PC as parent)", child.PC)
	}
	if child.Regs[2] != 0x20000 {
		t.Errorf("child SP = %#x, want 0x20000", child.Regs[2])
	}
	if child.Regs[4] != 0x30000 {
		t.Errorf("child TLS (x4) = %#x, want 0x30000", child.Regs[4])
	}
	if child.Regs[10] != 0 {
		t.Errorf("child a0 = %d, want 0 (clone() returns 0 in the child)", child.Regs[10])
	}
	if child.Regs[5] != 0xabc {
		t.Errorf("child x5 = %#x, want 0xabc (copied from parent's live registers)", child.Regs[5])
	}
	if child.ClearChildTID != 0x40000 {
		t.Errorf("child ClearChildTID = %#x, want 0x40000", child.ClearChildTID)
	}
	if _, ok := child.State.(Runnable); !ok {
		t.Errorf("child state = %T, want Runnable", child.State)
	}
}

func TestSpawnReturnsZeroWhenNoSlotFree(t *testing.T) {
	m := newTestMachine()
	s := New(1, 0x1000, 0x10000)
	for i := 1; i < MaxThreads; i++ {
		s.Threads[i] = &Thread{TID: int32(i + 1), State: Runnable{}, Budget: Quantum}
	}

	if tid := s.Spawn(m, 0x20000, 0, 0); tid != 0 {
		t.Errorf("Spawn with no free slot = %d, want 0", tid)
	}
}

func TestFutexWakeWalksInIndexOrder(t *testing.T) {
	s := &Scheduler{}
	s.Threads[0] = &Thread{TID: 1, State: Waiting{Addr: 0x10, Expected: 0}}
	s.Threads[3] = &Thread{TID: 2, State: Waiting{Addr: 0x10, Expected: 0}}
	s.Threads[5] = &Thread{TID: 3, State: Waiting{Addr: 0x10, Expected: 0}}

	woken := s.FutexWake(0x10, 2)
	if woken != 2 {
		t.Fatalf("FutexWake = %d, want 2", woken)
	}
	if _, ok := s.Threads[0].State.(Runnable); !ok {
		t.Errorf("slot 0 not woken first (index order)")
	}
	if _, ok := s.Threads[3].State.(Runnable); !ok {
		t.Errorf("slot 3 not woken second (index order)")
	}
	if _, ok := s.Threads[5].State.(Waiting); !ok {
		t.Errorf("slot 5 woken but n=2 should have stopped before it")
	}
}
