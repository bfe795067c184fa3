package execengine

import (
	"encoding/binary"
	"testing"

	"github.com/friscy/rve/internal/machine"
	"github.com/friscy/rve/internal/machine/fake"
	"github.com/friscy/rve/internal/vfs"
)

// buildELF assembles a minimal, valid ELF64 RISC-V ET_EXEC image by hand, the
// same fixture shape internal/elfload's own tests use.
type segSpec struct {
	vaddr, memsz uint64
	flags        uint32
	data         []byte
}

func buildELF(t *testing.T, entry uint64, segs []segSpec) []byte {
	t.Helper()
	const ehsize = 64
	const phentsize = 56

	phoff := uint64(ehsize)
	dataOff := phoff + phentsize*uint64(len(segs))

	buf := make([]byte, dataOff)
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2
	buf[5] = 1
	buf[6] = 1
	le := binary.LittleEndian
	le.PutUint16(buf[16:18], 2)
	le.PutUint16(buf[18:20], 243)
	le.PutUint32(buf[20:24], 1)
	le.PutUint64(buf[24:32], entry)
	le.PutUint64(buf[32:40], phoff)
	le.PutUint16(buf[52:54], ehsize)
	le.PutUint16(buf[54:56], phentsize)
	le.PutUint16(buf[56:58], uint16(len(segs)))

	off := dataOff
	for i, s := range segs {
		ph := buf[phoff+uint64(i)*phentsize : phoff+uint64(i+1)*phentsize]
		le.PutUint32(ph[0:4], 1)
		le.PutUint32(ph[4:8], s.flags)
		le.PutUint64(ph[8:16], off)
		le.PutUint64(ph[16:24], s.vaddr)
		le.PutUint64(ph[24:32], s.vaddr)
		le.PutUint64(ph[32:40], uint64(len(s.data)))
		le.PutUint64(ph[40:48], s.memsz)
		le.PutUint64(ph[48:56], 0x1000)
		off += uint64(len(s.data))
	}
	for _, s := range segs {
		buf = append(buf, s.data...)
	}
	return buf
}

func newFSWithFile(t *testing.T, path string, content []byte) *vfs.FS {
	t.Helper()
	fsys := vfs.New()
	fsys.Mkdir("/bin", 0o755)
	fd, errno := fsys.Open(path, vfs.OCREAT|vfs.OWRONLY, 0o755)
	if errno != 0 {
		t.Fatalf("Open(%s) errno = %d", path, errno)
	}
	if _, errno := fsys.Write(fd, content); errno != 0 {
		t.Fatalf("Write errno = %d", errno)
	}
	fsys.Close(fd)
	return fsys
}

// markStack marks the 64KiB window below stackTop RW, matching the window
// the real host allocator would have already mapped for the process stack.
func markStack(t *testing.T, m *fake.Machine, stackTop uint64) {
	t.Helper()
	if err := m.SetPageAttrs(stackTop-stackWindow, stackWindow, machine.ProtRead|machine.ProtWrite); err != nil {
		t.Fatalf("SetPageAttrs(stack): %v", err)
	}
}

func baseExecCtx(mainBytes []byte) *ExecCtx {
	return &ExecCtx{
		MainBytes:    mainBytes,
		MainBase:     0,
		MainRWStart:  0x20000,
		MainRWEnd:    0x21000,
		OrigStackTop: 0x80000,
		HeapStart:    0x21000,
		HeapSize:     brkMax,
		MainPath:     "/bin/orig",
	}
}

func TestExecveSwapsToNewBinary(t *testing.T) {
	newImage := buildELF(t, 0x10000, []segSpec{
		{vaddr: 0x10000, memsz: 0x2000, flags: 5, data: []byte{0xAA, 0xBB, 0xCC, 0xDD}},
	})
	fsys := newFSWithFile(t, "/bin/new", newImage)

	m := fake.New(0x2000000)
	m.SetPageAttrs(0x20000, 0x1000, machine.ProtRead|machine.ProtWrite)
	mem := &MemState{}

	exec := baseExecCtx([]byte("old-binary-bytes"))
	markStack(t, m, exec.OrigStackTop)

	res, err := Execve(fsys, m, exec, mem, "/bin/new", []string{"/bin/new"}, []string{"PATH=/bin"})
	if err != nil {
		t.Fatalf("Execve: %v", err)
	}
	if res.Entry != 0x10000 {
		t.Errorf("Entry = %#x, want 0x10000", res.Entry)
	}
	if res.SP == 0 {
		t.Errorf("SP = 0, want nonzero")
	}

	buf := make([]byte, 4)
	if err := m.ReadMem(0x10000, buf); err != nil {
		t.Fatalf("ReadMem: %v", err)
	}
	want := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("byte %d = %#x, want %#x", i, buf[i], want[i])
		}
	}

	if !exec.Dynamic && exec.MainPath != "/bin/new" {
		t.Errorf("MainPath = %q, want /bin/new", exec.MainPath)
	}
	if !mem.BrkOverridden {
		t.Errorf("BrkOverridden = false, want true after binary swap")
	}
	if mem.BrkBase == 0 {
		t.Errorf("BrkBase = 0, want nonzero")
	}
}

func TestExecveSameBinaryRebuildsStackOnly(t *testing.T) {
	mainBytes := buildELF(t, 0x10000, []segSpec{
		{vaddr: 0x10000, memsz: 0x1000, flags: 5, data: []byte{1, 2, 3, 4}},
	})
	fsys := newFSWithFile(t, "/bin/busybox", mainBytes)

	m := fake.New(0x100000)
	mem := &MemState{}
	exec := baseExecCtx(mainBytes)
	exec.MainPath = "/bin/busybox"
	markStack(t, m, exec.OrigStackTop)

	res, err := Execve(fsys, m, exec, mem, "/bin/busybox", []string{"busybox", "ls"}, nil)
	if err != nil {
		t.Fatalf("Execve: %v", err)
	}
	if res.SP == 0 {
		t.Errorf("SP = 0, want nonzero")
	}
	// Same-binary re-exec must not touch brk bookkeeping.
	if mem.BrkOverridden {
		t.Errorf("BrkOverridden = true, want false (no reload happened)")
	}
}

func TestExecveMissingPathReturnsErrNoEnt(t *testing.T) {
	fsys := vfs.New()
	m := fake.New(0x10000)
	mem := &MemState{}
	exec := baseExecCtx(nil)

	_, err := Execve(fsys, m, exec, mem, "/bin/nope", []string{"/bin/nope"}, nil)
	if err != ErrNoEnt {
		t.Errorf("err = %v, want ErrNoEnt", err)
	}
}

func TestExecveShebangRewritesArgv(t *testing.T) {
	script := []byte("#!/bin/sh -e\necho hi\n")
	fsys := newFSWithFile(t, "/bin/script.sh", script)
	interp := buildELF(t, 0x5000, []segSpec{
		{vaddr: 0x5000, memsz: 0x1000, flags: 5, data: []byte{9, 9, 9, 9}},
	})
	fd, errno := fsys.Open("/bin/sh", vfs.OCREAT|vfs.OWRONLY, 0o755)
	if errno != 0 {
		t.Fatalf("Open(/bin/sh) errno = %d", errno)
	}
	fsys.Write(fd, interp)
	fsys.Close(fd)

	m := fake.New(0x2000000)
	m.SetPageAttrs(0x20000, 0x1000, machine.ProtRead|machine.ProtWrite)
	mem := &MemState{}
	exec := baseExecCtx([]byte("whatever"))
	markStack(t, m, exec.OrigStackTop)

	res, err := Execve(fsys, m, exec, mem, "/bin/script.sh", []string{"/bin/script.sh"}, nil)
	if err != nil {
		t.Fatalf("Execve: %v", err)
	}
	if res.Entry != 0x5000 {
		t.Errorf("Entry = %#x, want interpreter entry 0x5000", res.Entry)
	}

	var word [8]byte
	if err := m.ReadMem(res.SP, word[:]); err != nil {
		t.Fatalf("ReadMem(argc): %v", err)
	}
	if argc := binary.LittleEndian.Uint64(word[:]); argc != 3 {
		t.Errorf("argc = %d, want 3", argc)
	}
	wantArgv := []string{"/bin/sh", "-e", "/bin/script.sh"}
	for i, want := range wantArgv {
		if err := m.ReadMem(res.SP+8+uint64(i)*8, word[:]); err != nil {
			t.Fatalf("ReadMem(argv[%d]): %v", i, err)
		}
		str := make([]byte, len(want)+1)
		if err := m.ReadMem(binary.LittleEndian.Uint64(word[:]), str); err != nil {
			t.Fatalf("ReadMem(argv[%d] string): %v", i, err)
		}
		if string(str) != want+"\x00" {
			t.Errorf("argv[%d] = %q, want %q", i, str, want)
		}
	}
}

func TestExecveBadELFReturnsErrNoExec(t *testing.T) {
	fsys := newFSWithFile(t, "/bin/garbage", []byte("not an elf"))
	m := fake.New(0x10000)
	mem := &MemState{}
	exec := baseExecCtx([]byte("old"))

	_, err := Execve(fsys, m, exec, mem, "/bin/garbage", []string{"/bin/garbage"}, nil)
	if err != ErrNoExec {
		t.Errorf("err = %v, want ErrNoExec", err)
	}
}
