package forkengine

import (
	"testing"

	"github.com/friscy/rve/internal/machine"
	"github.com/friscy/rve/internal/machine/fake"
)

func TestClassifyDiscriminatesThreadVsFork(t *testing.T) {
	if Classify(cloneThread) != KindThread {
		t.Errorf("CLONE_THREAD classified as %v, want KindThread", Classify(cloneThread))
	}
	if Classify(cloneVM) != KindThread {
		t.Errorf("CLONE_VM alone classified as %v, want KindThread", Classify(cloneVM))
	}
	if Classify(cloneVM|cloneVfork) != KindFork {
		t.Errorf("CLONE_VM|CLONE_VFORK classified as %v, want KindFork", Classify(cloneVM|cloneVfork))
	}
	if Classify(0) != KindFork {
		t.Errorf("flags=0 classified as %v, want KindFork", Classify(0))
	}
}

type testVFS struct {
	open map[int32]bool
}

func (v *testVFS) Close(fd int32) int { delete(v.open, fd); return 0 }
func (v *testVFS) OpenFDs() []int32 {
	out := make([]int32, 0, len(v.open))
	for fd := range v.open {
		out = append(out, fd)
	}
	return out
}

func TestNestedForkRejected(t *testing.T) {
	st := NewState()
	st.InChild = true
	m := fake.New(1 << 20)
	_, err := Fork(st, m, Bounds{}, nil)
	if err != ErrAlreadyForked {
		t.Errorf("Fork while InChild = %v, want ErrAlreadyForked", err)
	}
}

func TestForkThenChildExitRestoresOriginalBytes(t *testing.T) {
	m := fake.New(1 << 20)
	execStart, execEnd := uint64(0x1000), uint64(0x2000)
	if err := m.SetPageAttrs(0, 1<<20, machine.RWX); err != nil {
		t.Fatalf("SetPageAttrs: %v", err)
	}
	original := []byte{1, 2, 3, 4}
	if err := m.WriteMem(execStart, original); err != nil {
		t.Fatalf("WriteMem: %v", err)
	}

	st := NewState()
	st.SavedPC = 0x500
	st.SavedRegs[10] = 0 // a0, irrelevant pre-fork

	bounds := Bounds{ExecRWStart: execStart, ExecRWEnd: execEnd, HeapStart: execEnd}
	vfs := &testVFS{open: map[int32]bool{3: true}}
	childPID, err := Fork(st, m, bounds, vfs.open)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if childPID != 100 {
		t.Errorf("first child pid = %d, want 100 (monotonic counter starts there)", childPID)
	}
	if !st.InChild {
		t.Fatalf("InChild = false after successful Fork")
	}

	// child mutates memory and opens an extra fd
	mutated := []byte{9, 9, 9, 9}
	if err := m.WriteMem(execStart, mutated); err != nil {
		t.Fatalf("child WriteMem: %v", err)
	}
	vfs.open[4] = true

	if err := ExitChild(st, m, vfs, 0); err != nil {
		t.Fatalf("ExitChild: %v", err)
	}

	restored := make([]byte, 4)
	if err := m.ReadMem(execStart, restored); err != nil {
		t.Fatalf("ReadMem: %v", err)
	}
	for i := range original {
		if restored[i] != original[i] {
			t.Errorf("restored byte %d = %d, want %d (fork restore is total)", i, restored[i], original[i])
		}
	}
	if st.InChild {
		t.Errorf("InChild still true after ExitChild")
	}
	if _, stillOpen := vfs.open[4]; stillOpen {
		t.Errorf("fd opened by child still open after restore")
	}
	if _, stillOpen := vfs.open[3]; !stillOpen {
		t.Errorf("fd present at fork time was incorrectly closed")
	}
	if int64(m.Reg(10)) != int64(childPID) {
		t.Errorf("a0 after restore = %d, want child pid %d", int64(m.Reg(10)), childPID)
	}
	if m.PC() != 0x500 {
		t.Errorf("PC after restore = %#x, want 0x500", m.PC())
	}
}

func TestSecondGenerationWait4AfterFirstReaped(t *testing.T) {
	m := fake.New(1 << 20)
	if err := m.SetPageAttrs(0, 1<<20, machine.RWX); err != nil {
		t.Fatalf("SetPageAttrs: %v", err)
	}

	st := NewState()
	bounds := Bounds{ExecRWStart: 0x1000, ExecRWEnd: 0x2000, HeapStart: 0x2000}
	vfs := &testVFS{open: map[int32]bool{}}

	firstPID, err := Fork(st, m, bounds, vfs.open)
	if err != nil {
		t.Fatalf("first Fork: %v", err)
	}
	if err := ExitChild(st, m, vfs, 0); err != nil {
		t.Fatalf("first ExitChild: %v", err)
	}
	if _, _, errno := Wait4(st); errno != 0 {
		t.Fatalf("first Wait4 errno = %d, want 0", errno)
	}

	secondPID, err := Fork(st, m, bounds, vfs.open)
	if err != nil {
		t.Fatalf("second Fork: %v", err)
	}
	if secondPID == firstPID {
		t.Errorf("second child pid %d reused first child pid", secondPID)
	}
	if err := ExitChild(st, m, vfs, 3); err != nil {
		t.Fatalf("second ExitChild: %v", err)
	}

	pid, status, errno := Wait4(st)
	if errno != 0 {
		t.Fatalf("second generation's Wait4 errno = %d, want 0 (ChildReaped must reset on Fork)", errno)
	}
	if pid != secondPID || status != 3<<8 {
		t.Errorf("second generation's Wait4 = (%d, %#x), want (%d, %#x)", pid, status, secondPID, 3<<8)
	}
	if _, _, errno := Wait4(st); errno != -10 {
		t.Errorf("third Wait4 errno = %d, want -10 (ECHILD)", errno)
	}
}

func TestWait4ReturnsECHILDOnSecondCall(t *testing.T) {
	st := NewState()
	st.ChildPID = 100
	st.ExitStatus = 7

	pid, status, errno := Wait4(st)
	if errno != 0 || pid != 100 {
		t.Fatalf("first Wait4 = %d, %d, %d", pid, status, errno)
	}
	if status != 7<<8 {
		t.Errorf("status = %#x, want %#x", status, 7<<8)
	}

	_, _, errno = Wait4(st)
	if errno != -10 {
		t.Errorf("second Wait4 errno = %d, want -10 (ECHILD)", errno)
	}
}
