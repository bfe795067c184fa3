package memmgr

import (
	"testing"

	"github.com/friscy/rve/internal/machine"
	"github.com/friscy/rve/internal/machine/fake"
)

type fakeAnon struct {
	nextAddr uint64
	brk      uint64
}

func (a *fakeAnon) Mmap(hint, length uint64, prot machine.PageAttrs) (uint64, error) {
	addr := a.nextAddr
	a.nextAddr += length
	return addr, nil
}

func (a *fakeAnon) Munmap(addr, length uint64) error { return nil }

func (a *fakeAnon) GrowBrk(newEnd uint64) (uint64, error) {
	a.brk = newEnd
	return newEnd, nil
}

type fakeVFS struct {
	content []byte
}

func (v *fakeVFS) Pread(fd int32, buf []byte, offset int64) (int, int) {
	if offset >= int64(len(v.content)) {
		return 0, 0
	}
	return copy(buf, v.content[offset:]), 0
}

func TestBrkOverriddenClampsToMax(t *testing.T) {
	m := fake.New(64 * 1024 * 1024)
	st := &State{BrkBase: 0x10000, BrkCurrent: 0x10000, BrkOverridden: true}
	mgr := &Manager{State: st, Mem: m, Anon: &fakeAnon{}}

	end, errno := mgr.Brk(st.BrkBase + BrkMax + 0x10000)
	if errno != 0 {
		t.Fatalf("Brk errno = %d", errno)
	}
	if end != st.BrkBase+BrkMax {
		t.Errorf("Brk clamped end = %#x, want %#x", end, st.BrkBase+BrkMax)
	}
}

func TestBrkOverriddenMarksNewPagesRW(t *testing.T) {
	m := fake.New(1 << 20)
	st := &State{BrkBase: 0, BrkCurrent: 0, BrkOverridden: true}
	mgr := &Manager{State: st, Mem: m, Anon: &fakeAnon{}}

	if _, errno := mgr.Brk(machine.PageSize); errno != 0 {
		t.Fatalf("Brk errno = %d", errno)
	}
	attrs, err := m.PageAttrsAt(0)
	if err != nil {
		t.Fatalf("PageAttrsAt: %v", err)
	}
	if attrs&machine.ProtWrite == 0 {
		t.Errorf("grown brk page attrs = %v, want ProtWrite set", attrs)
	}
}

func TestBrkDelegatesWhenNotOverridden(t *testing.T) {
	m := fake.New(1 << 20)
	anon := &fakeAnon{}
	st := &State{BrkOverridden: false}
	mgr := &Manager{State: st, Mem: m, Anon: anon}

	end, errno := mgr.Brk(0x5000)
	if errno != 0 || end != 0x5000 {
		t.Fatalf("Brk = %#x, %d, want 0x5000, 0", end, errno)
	}
	if anon.brk != 0x5000 {
		t.Errorf("delegate not invoked: anon.brk = %#x", anon.brk)
	}
}

func TestMmapFileBackedCopiesContent(t *testing.T) {
	m := fake.New(2 << 20)
	vfs := &fakeVFS{content: []byte("file contents here")}
	st := &State{MmapFrontier: 0x100000}
	mgr := &Manager{State: st, Mem: m, Anon: &fakeAnon{}, VFS: vfs}

	addr, errno := mgr.Mmap(0, uint64(len(vfs.content)), machine.ProtRead, 0, 5, 0)
	if errno != 0 {
		t.Fatalf("Mmap errno = %d", errno)
	}
	buf := make([]byte, len(vfs.content))
	if err := m.ReadMem(addr, buf); err != nil {
		t.Fatalf("ReadMem: %v", err)
	}
	if string(buf) != string(vfs.content) {
		t.Errorf("mapped content = %q, want %q", buf, vfs.content)
	}
}

func TestMmapAnonymousDelegates(t *testing.T) {
	m := fake.New(1 << 20)
	anon := &fakeAnon{nextAddr: 0x40000}
	st := &State{}
	mgr := &Manager{State: st, Mem: m, Anon: anon}

	addr, errno := mgr.Mmap(0, 4096, machine.RWX, mapAnonymous, -1, 0)
	if errno != 0 {
		t.Fatalf("Mmap errno = %d", errno)
	}
	if addr != 0x40000 {
		t.Errorf("Mmap addr = %#x, want 0x40000", addr)
	}
}

func TestMprotectSetsAttrs(t *testing.T) {
	m := fake.New(1 << 20)
	mgr := &Manager{State: &State{}, Mem: m}
	if errno := mgr.Mprotect(0x1000, 4096, machine.ProtRead); errno != 0 {
		t.Fatalf("Mprotect errno = %d", errno)
	}
	attrs, _ := m.PageAttrsAt(0x1000)
	if attrs != machine.ProtRead {
		t.Errorf("Mprotect attrs = %v, want ProtRead", attrs)
	}
}
