package stackbuild

import (
	"encoding/binary"
	"testing"

	"github.com/friscy/rve/internal/elfload"
	"github.com/friscy/rve/internal/machine"
	"github.com/friscy/rve/internal/machine/fake"
)

func newStackMachine(t *testing.T, size uint64) *fake.Machine {
	t.Helper()
	m := fake.New(size)
	if err := m.SetPageAttrs(0, size, machine.RWX); err != nil {
		t.Fatalf("SetPageAttrs: %v", err)
	}
	return m
}

func TestBuildSPIs16ByteAligned(t *testing.T) {
	m := newStackMachine(t, 1<<20)
	load := &elfload.LoadResult{PhdrVaddr: 0x1000, PhEntSize: 56, PhNum: 3, Entry: 0x2000}
	res, err := Build(m, 1<<20, []string{"/bin/prog", "arg1"}, []string{"HOME=/root"}, "/bin/prog", load, 0, [16]byte{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.SP%16 != 0 {
		t.Errorf("SP = %#x, not 16-byte aligned", res.SP)
	}
}

func TestBuildArgcMatchesArgvCount(t *testing.T) {
	m := newStackMachine(t, 1<<20)
	load := &elfload.LoadResult{PhdrVaddr: 0x1000, PhEntSize: 56, PhNum: 1, Entry: 0x2000}
	argv := []string{"/bin/prog", "a", "b"}
	res, err := Build(m, 1<<20, argv, nil, "/bin/prog", load, 0, [16]byte{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	buf := make([]byte, 8)
	if err := m.ReadMem(res.SP, buf); err != nil {
		t.Fatalf("ReadMem argc: %v", err)
	}
	argc := binary.LittleEndian.Uint64(buf)
	if argc != uint64(len(argv)) {
		t.Errorf("argc = %d, want %d", argc, len(argv))
	}
}

func TestBuildArgvPointersResolveToStrings(t *testing.T) {
	m := newStackMachine(t, 1<<20)
	load := &elfload.LoadResult{PhdrVaddr: 0x1000, PhEntSize: 56, PhNum: 1, Entry: 0x2000}
	argv := []string{"/bin/prog"}
	res, err := Build(m, 1<<20, argv, nil, "/bin/prog", load, 0, [16]byte{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ptrBuf := make([]byte, 8)
	if err := m.ReadMem(res.SP+8, ptrBuf); err != nil {
		t.Fatalf("ReadMem argv[0] ptr: %v", err)
	}
	argv0Addr := binary.LittleEndian.Uint64(ptrBuf)

	str := make([]byte, len(argv[0])+1)
	if err := m.ReadMem(argv0Addr, str); err != nil {
		t.Fatalf("ReadMem argv[0] string: %v", err)
	}
	if string(str[:len(argv[0])]) != argv[0] {
		t.Errorf("argv[0] = %q, want %q", str[:len(argv[0])], argv[0])
	}
	if str[len(argv[0])] != 0 {
		t.Errorf("argv[0] not NUL-terminated")
	}
}

func TestBuildAuxvContainsRequiredEntries(t *testing.T) {
	m := newStackMachine(t, 1<<20)
	load := &elfload.LoadResult{PhdrVaddr: 0x1000, PhEntSize: 56, PhNum: 4, Entry: 0x2000}
	res, err := Build(m, 1<<20, []string{"/bin/prog"}, nil, "/bin/prog", load, 0x5000, [16]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Walk argc, argv (1 entry + NULL), envp (NULL only) to reach auxv.
	cursor := res.SP + 8 // skip argc
	cursor += 8          // argv[0]
	cursor += 8          // argv NULL
	cursor += 8          // envp NULL

	found := map[uint64]uint64{}
	for {
		pair := make([]byte, 16)
		if err := m.ReadMem(cursor, pair); err != nil {
			t.Fatalf("ReadMem auxv pair: %v", err)
		}
		tag := binary.LittleEndian.Uint64(pair[0:8])
		val := binary.LittleEndian.Uint64(pair[8:16])
		found[tag] = val
		if tag == atNull {
			break
		}
		cursor += 16
	}

	if found[atPhdr] != 0x1000 {
		t.Errorf("AT_PHDR = %#x, want 0x1000", found[atPhdr])
	}
	if found[atEntry] != 0x2000 {
		t.Errorf("AT_ENTRY = %#x, want 0x2000", found[atEntry])
	}
	if found[atBase] != 0x5000 {
		t.Errorf("AT_BASE = %#x, want 0x5000", found[atBase])
	}
	if found[atPagesz] != pageSize {
		t.Errorf("AT_PAGESZ = %d, want %d", found[atPagesz], pageSize)
	}
	if found[atHWCap] != hwCapIMAFDC {
		t.Errorf("AT_HWCAP = %#x, want %#x", found[atHWCap], hwCapIMAFDC)
	}
}
