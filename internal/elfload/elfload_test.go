package elfload

import (
	"encoding/binary"
	"testing"

	"github.com/friscy/rve/internal/machine"
	"github.com/friscy/rve/internal/machine/fake"
)

// buildELF assembles a minimal, valid ELF64 RISC-V ET_EXEC image with the
// given program headers and per-segment file content, by hand — there is no
// ELF *encoder* in the standard library, only debug/elf's decoder, so tests
// that need a loadable fixture construct the bytes directly.
type segSpec struct {
	vaddr, memsz uint64
	flags        uint32 // PF_R=4 PF_W=2 PF_X=1
	data         []byte
}

func buildELF(t *testing.T, entry uint64, segs []segSpec) []byte {
	t.Helper()
	const ehsize = 64
	const phentsize = 56

	phoff := uint64(ehsize)
	dataOff := phoff + phentsize*uint64(len(segs))

	buf := make([]byte, dataOff)
	// e_ident
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT
	le := binary.LittleEndian
	le.PutUint16(buf[16:18], 2)   // e_type = ET_EXEC
	le.PutUint16(buf[18:20], 243) // e_machine = EM_RISCV
	le.PutUint32(buf[20:24], 1)   // e_version
	le.PutUint64(buf[24:32], entry)
	le.PutUint64(buf[32:40], phoff)
	le.PutUint16(buf[52:54], ehsize)
	le.PutUint16(buf[54:56], phentsize)
	le.PutUint16(buf[56:58], uint16(len(segs)))

	off := dataOff
	for i, s := range segs {
		ph := buf[phoff+uint64(i)*phentsize : phoff+uint64(i+1)*phentsize]
		le.PutUint32(ph[0:4], 1) // PT_LOAD
		le.PutUint32(ph[4:8], s.flags)
		le.PutUint64(ph[8:16], off)
		le.PutUint64(ph[16:24], s.vaddr)
		le.PutUint64(ph[24:32], s.vaddr) // p_paddr
		le.PutUint64(ph[32:40], uint64(len(s.data)))
		le.PutUint64(ph[40:48], s.memsz)
		le.PutUint64(ph[48:56], 0x1000)
		off += uint64(len(s.data))
	}

	buf = append(buf, make([]byte, 0)...)
	for _, s := range segs {
		buf = append(buf, s.data...)
	}
	return buf
}

func TestParseRejectsWrongMachine(t *testing.T) {
	raw := buildELF(t, 0x1000, []segSpec{{vaddr: 0x1000, memsz: 4, flags: 5, data: []byte{1, 2, 3, 4}}})
	// corrupt e_machine to something that isn't EM_RISCV
	binary.LittleEndian.PutUint16(raw[18:20], 62) // EM_X86_64
	if _, err := Parse(raw); err == nil {
		t.Fatalf("Parse accepted non-RISC-V machine")
	}
}

func TestLoadCopiesSegmentBytes(t *testing.T) {
	raw := buildELF(t, 0x10000, []segSpec{
		{vaddr: 0x10000, memsz: 0x1000, flags: 5, data: []byte{0xAA, 0xBB, 0xCC, 0xDD}},
	})
	img, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	m := fake.New(0x20000)
	res, err := Load(img, m, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Entry != 0x10000 {
		t.Errorf("Entry = %#x, want 0x10000", res.Entry)
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
}

func TestMergePermissionsUnionsOverlappingSegments(t *testing.T) {
	// Two segments share the page at 0x1000: one RX (code), one RW (data),
	// both starting mid-page so page 0x1000 must end up RWX, not just RW.
	raw := buildELF(t, 0x1000, []segSpec{
		{vaddr: 0x1000, memsz: 0x100, flags: 5, data: make([]byte, 0x100)},  // R+X
		{vaddr: 0x1100, memsz: 0x100, flags: 6, data: make([]byte, 0x100)}, // R+W
	})
	img, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m := fake.New(0x4000)
	if _, err := Load(img, m, 0); err != nil {
		t.Fatalf("Load: %v", err)
	}

	attrs, err := m.PageAttrsAt(0x1000)
	if err != nil {
		t.Fatalf("PageAttrsAt: %v", err)
	}
	want := machine.ProtRead | machine.ProtWrite | machine.ProtExec
	if attrs != want {
		t.Errorf("merged page attrs = %v, want %v (RWX)", attrs, want)
	}
}

func TestLoadZeroesBssGap(t *testing.T) {
	raw := buildELF(t, 0x2000, []segSpec{
		{vaddr: 0x2000, memsz: 0x20, flags: 6, data: []byte{1, 2, 3, 4}},
	})
	img, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m := fake.New(0x4000)
	if _, err := Load(img, m, 0); err != nil {
		t.Fatalf("Load: %v", err)
	}
	buf := make([]byte, 0x20)
	if err := m.ReadMem(0x2000, buf); err != nil {
		t.Fatalf("ReadMem: %v", err)
	}
	for i := 4; i < len(buf); i++ {
		if buf[i] != 0 {
			t.Errorf("bss byte %d = %#x, want 0", i, buf[i])
		}
	}
}

func TestPIEEntryRelocatesWithBase(t *testing.T) {
	raw := buildELF(t, 0x100, []segSpec{{vaddr: 0x100, memsz: 0x10, flags: 5, data: make([]byte, 0x10)}})
	// flip e_type to ET_DYN for PIE relocation semantics
	binary.LittleEndian.PutUint16(raw[16:18], 3)
	img, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m := fake.New(0x40000)
	res, err := Load(img, m, 0x30000)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Entry != 0x30100 {
		t.Errorf("Entry = %#x, want 0x30100", res.Entry)
	}
}
