// Package elfload loads a RISC-V 64 ELF image (executable or PIE) into
// guest memory: parsing program headers, copying PT_LOAD segments through a
// fault-retry loop, and merging per-page permissions so a page straddling a
// code and data segment ends up RWX instead of losing its execute bit.
package elfload

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"

	"github.com/friscy/rve/internal/machine"
)

// MemoryWriter is the subset of machine.Machine the loader needs: write
// guest bytes and mark page permissions. Decoupling from the full Machine
// interface keeps the fault-retry loop and permission merge testable
// against machine/fake without any other Machine surface in scope.
type MemoryWriter interface {
	WriteMem(vaddr uint64, data []byte) error
	SetPageAttrs(vaddr, size uint64, attrs machine.PageAttrs) error
}

// ArenaWriter is implemented by a MemoryWriter that also exposes a flat
// contiguous backing arena. When present, the loader writes segment bytes
// directly into the arena as well as through WriteMem, because page-based
// writes may update page objects that do not alias the arena (for example
// stack pages inherited from a prior image during execve).
type ArenaWriter interface {
	MemoryWriter
	WriteArena(vaddr uint64, data []byte)
}

const maxFaultRetries = 10

// Image holds the parsed, not-yet-loaded state of an ELF file.
type Image struct {
	Entry        uint64
	PhdrVaddr    uint64
	PhEntSize    uint16
	PhNum        uint16
	Interp       string
	Dynamic      bool // ET_DYN
	progs        []elf.ProgHeader
	raw          []byte
}

// Parse validates the ELF header (magic, 64-bit, RISC-V, ET_EXEC|ET_DYN)
// and extracts program headers, entry point, and PT_INTERP path.
func Parse(raw []byte) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("elfload: %w", err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 {
		return nil, errors.New("elfload: not a 64-bit ELF")
	}
	if f.Machine != elf.EM_RISCV {
		return nil, errors.New("elfload: not a RISC-V image")
	}
	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return nil, errors.New("elfload: not ET_EXEC or ET_DYN")
	}

	img := &Image{
		Entry:   f.Entry,
		Dynamic: f.Type == elf.ET_DYN,
	}

	var firstZeroOffsetLoad *elf.ProgHeader
	for _, p := range f.Progs {
		ph := p.ProgHeader
		switch ph.Type {
		case elf.PT_PHDR:
			img.PhdrVaddr = ph.Vaddr
			img.PhEntSize = 56 // sizeof(Elf64_Phdr)
			img.PhNum = uint16(len(f.Progs))
		case elf.PT_INTERP:
			data := make([]byte, ph.Filesz)
			if _, err := p.ReadAt(data, 0); err != nil {
				return nil, fmt.Errorf("elfload: reading PT_INTERP: %w", err)
			}
			img.Interp = cstring(data)
		case elf.PT_LOAD:
			img.progs = append(img.progs, ph)
			if ph.Off == 0 && firstZeroOffsetLoad == nil {
				cp := ph
				firstZeroOffsetLoad = &cp
			}
		}
	}

	if img.PhdrVaddr == 0 && firstZeroOffsetLoad != nil {
		img.PhdrVaddr = firstZeroOffsetLoad.Vaddr + ehsize(raw)
		img.PhEntSize = 56
		img.PhNum = uint16(len(f.Progs))
	}

	img.raw = raw
	return img, nil
}

func ehsize(raw []byte) uint64 {
	if len(raw) < 64 {
		return 64
	}
	// e_ehsize is a little-endian u16 at offset 52 in the ELF64 header.
	return uint64(raw[52]) | uint64(raw[53])<<8
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// WritableRange returns the union of [vaddr, vaddr+memsz) over every
// PT_LOAD segment carrying the write flag.
func (img *Image) WritableRange() (lo, hi uint64, ok bool) {
	for _, ph := range img.progs {
		if ph.Flags&elf.PF_W == 0 {
			continue
		}
		start := ph.Vaddr
		end := ph.Vaddr + ph.Memsz
		if !ok || start < lo {
			lo = start
		}
		if end > hi {
			hi = end
		}
		ok = true
	}
	return
}

// Segment is a read-only view of one PT_LOAD program header, exported for
// diagnostic display (`rve inspect`) since Image.progs itself stays
// unexported to keep the loader's internal representation free to change.
type Segment struct {
	Vaddr, Memsz uint64
	Flags        uint32 // PF_R=4 PF_W=2 PF_X=1
}

// Segments returns every PT_LOAD segment in file order.
func (img *Image) Segments() []Segment {
	out := make([]Segment, len(img.progs))
	for i, ph := range img.progs {
		out[i] = Segment{Vaddr: ph.Vaddr, Memsz: ph.Memsz, Flags: uint32(ph.Flags)}
	}
	return out
}

// LoadResult is what the stack builder and exec engine need after a
// successful Load.
type LoadResult struct {
	Entry     uint64
	PhdrVaddr uint64
	PhEntSize uint16
	PhNum     uint16
	Interp    string
	Dynamic   bool
	LoLoad    uint64
	HiLoad    uint64
}

// Load copies every PT_LOAD segment into guest memory at base+p_vaddr
// (base is the PIE relocation base, 0 for a non-PIE ET_EXEC image), then
// merges per-page permissions across overlapping segments.
func Load(img *Image, w MemoryWriter, base uint64) (*LoadResult, error) {
	if err := copySegments(img, w, base); err != nil {
		return nil, err
	}
	lo, hi, err := mergePermissions(img, w, base)
	if err != nil {
		return nil, err
	}

	res := &LoadResult{
		Entry:     img.Entry + relocOffset(img, base),
		PhdrVaddr: img.PhdrVaddr + relocOffset(img, base),
		PhEntSize: img.PhEntSize,
		PhNum:     img.PhNum,
		Interp:    img.Interp,
		Dynamic:   img.Dynamic,
		LoLoad:    lo,
		HiLoad:    hi,
	}
	return res, nil
}

// relocOffset is base for a PIE image (addresses in the file are already
// relative to 0) and 0 for a fixed ET_EXEC image.
func relocOffset(img *Image, base uint64) uint64 {
	if img.Dynamic {
		return base
	}
	return 0
}

// copySegments is pass 1: copy file bytes, zero the BSS gap, retrying
// through page faults by granting RWX to the faulting page and resuming
// from the faulting offset.
func copySegments(img *Image, w MemoryWriter, base uint64) error {
	off := relocOffset(img, base)
	for _, ph := range img.progs {
		fileBytes := sliceAt(img.raw, ph.Off, ph.Filesz)
		vaddr := ph.Vaddr + off

		if err := writeWithRetry(w, vaddr, fileBytes); err != nil {
			return err
		}
		if ph.Memsz > ph.Filesz {
			gapLen := ph.Memsz - ph.Filesz
			zeros := make([]byte, gapLen)
			if err := writeWithRetry(w, vaddr+ph.Filesz, zeros); err != nil {
				return err
			}
		}
		if aw, ok := w.(ArenaWriter); ok {
			aw.WriteArena(vaddr, fileBytes)
		}
	}
	return nil
}

func sliceAt(raw []byte, off, size uint64) []byte {
	if off > uint64(len(raw)) {
		return nil
	}
	end := off + size
	if end > uint64(len(raw)) {
		end = uint64(len(raw))
	}
	return raw[off:end]
}

// writeWithRetry writes data at vaddr, and on a *machine.PageFault grants
// the faulting page RWX permissions and retries from the faulting offset.
// Up to maxFaultRetries are attempted before continuing silently — by that
// point either the loader is fighting a genuinely pathological layout, or
// the page is already writable and something else is wrong, neither of
// which is worth aborting the whole load over.
func writeWithRetry(w MemoryWriter, vaddr uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	remaining := data
	cur := vaddr
	for retries := 0; len(remaining) > 0; {
		err := w.WriteMem(cur, remaining)
		if err == nil {
			return nil
		}
		var pf *machine.PageFault
		if !errors.As(err, &pf) {
			return err
		}
		if err := w.SetPageAttrs(pf.FaultAddr, machine.PageSize, machine.RWX); err != nil {
			return err
		}
		retries++
		if retries > maxFaultRetries {
			// continue without further retry bookkeeping; the page is now
			// RWX, so the next WriteMem in this loop should succeed.
		}
		advance := pf.FaultAddr - cur
		if advance > 0 && advance <= uint64(len(remaining)) {
			cur += advance
			remaining = remaining[advance:]
		}
	}
	return nil
}

// mergePermissions is pass 2: compute the page-aligned union of all PT_LOAD
// ranges, OR together the permission flags of every segment overlapping
// each page, and write each page's attributes exactly once.
func mergePermissions(img *Image, w MemoryWriter, base uint64) (lo, hi uint64, err error) {
	off := relocOffset(img, base)
	if len(img.progs) == 0 {
		return 0, 0, nil
	}

	lo = ^uint64(0)
	for _, ph := range img.progs {
		start := (ph.Vaddr + off) &^ (machine.PageSize - 1)
		end := alignUp(ph.Vaddr+off+ph.Memsz, machine.PageSize)
		if start < lo {
			lo = start
		}
		if end > hi {
			hi = end
		}
	}

	for page := lo; page < hi; page += machine.PageSize {
		var attrs machine.PageAttrs
		for _, ph := range img.progs {
			start := ph.Vaddr + off
			end := start + ph.Memsz
			if page+machine.PageSize <= start || page >= end {
				continue
			}
			if ph.Flags&elf.PF_R != 0 {
				attrs |= machine.ProtRead
			}
			if ph.Flags&elf.PF_W != 0 {
				attrs |= machine.ProtWrite
			}
			if ph.Flags&elf.PF_X != 0 {
				attrs |= machine.ProtExec
			}
		}
		if attrs == 0 {
			continue
		}
		if err := w.SetPageAttrs(page, machine.PageSize, attrs); err != nil {
			return 0, 0, err
		}
	}
	return lo, hi, nil
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
