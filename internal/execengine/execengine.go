// Package execengine implements execve's in-place binary swap: parse the
// target, decide whether it is a genuinely different ELF image or a
// same-binary re-exec, reload segments, reset the memory layout, relocate
// the stack if it would otherwise collide with the new image, and build a
// fresh argv/envp/auxv stack before jumping to the new entry point.
package execengine

import (
	"bytes"
	"errors"
	"strings"

	"github.com/friscy/rve/internal/elfload"
	"github.com/friscy/rve/internal/guest"
	"github.com/friscy/rve/internal/machine"
	"github.com/friscy/rve/internal/memmgr"
	"github.com/friscy/rve/internal/stackbuild"
	"github.com/friscy/rve/internal/vfs"
)

const (
	brkMax      = 16 * 1024 * 1024
	stackWindow = 64 * 1024
	interpGap   = 1 << 20 // gap kept between a relocated stack top and the interpreter base
)

// Machine is the guest-memory surface needed to reload segments and build
// the new stack.
type Machine = machine.Machine

// ExecCtx is an alias for guest.ExecCtx: the exec engine mutates the exact
// same bookkeeping struct the syscall dispatcher and debug dump read.
type ExecCtx = guest.ExecCtx

// MemState is an alias for memmgr.State: execve resets brk/mmap bookkeeping
// directly on the memory manager's own state.
type MemState = memmgr.State

var (
	ErrNoEnt  = errors.New("execengine: path unresolvable")
	ErrNoExec = errors.New("execengine: parse/load failure")
)

// Result carries the new entry point and SP the caller must install into PC
// and x2; the caller also owns zeroing x1-x31 since it holds the Machine
// handle that issued the syscall.
type Result struct {
	SP    uint64
	Entry uint64
}

// Execve resolves path through fsys, handles a leading shebang line,
// compares the resolved bytes against the currently loaded main binary, and
// either reloads a new image (binary swap) or just rebuilds the stack
// (same-binary re-exec, e.g. a busybox applet).
func Execve(fsys *vfs.FS, m Machine, exec *ExecCtx, mem *MemState, path string, argv, envp []string) (*Result, error) {
	path, argv, err := resolveShebang(fsys, path, argv, envp)
	if err != nil {
		return nil, err
	}

	id, errno := fsys.Resolve(path)
	if errno != 0 {
		return nil, ErrNoEnt
	}
	raw, errno := fsys.ReadAll(id)
	if errno != 0 {
		return nil, ErrNoEnt
	}

	if bytes.Equal(raw, exec.MainBytes) {
		return rebuildStackOnly(m, exec, argv, envp, path)
	}

	return binarySwap(m, exec, mem, raw, argv, envp, path)
}

// resolveShebang follows a leading "#!interp [arg]" line, rewriting argv to
// [interp, arg?, script, argv[1:]...], with /usr/bin/env CMD resolved
// through PATH in envp.
func resolveShebang(fsys *vfs.FS, path string, argv, envp []string) (string, []string, error) {
	id, errno := fsys.Resolve(path)
	if errno != 0 {
		return "", nil, ErrNoEnt
	}
	raw, errno := fsys.ReadAll(id)
	if errno != 0 {
		return "", nil, ErrNoEnt
	}
	if len(raw) < 2 || raw[0] != '#' || raw[1] != '!' {
		return path, argv, nil
	}

	line := raw[2:]
	if nl := bytes.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return "", nil, ErrNoExec
	}

	interp := fields[0]
	var interpArg string
	if len(fields) > 1 {
		interpArg = strings.Join(fields[1:], " ")
	}

	if interp == "/usr/bin/env" && interpArg != "" {
		cmd := strings.Fields(interpArg)[0]
		if resolved, ok := lookupPATH(fsys, envp, cmd); ok {
			interp = resolved
			interpArg = ""
		}
	}

	newArgv := []string{interp}
	if interpArg != "" {
		newArgv = append(newArgv, interpArg)
	}
	newArgv = append(newArgv, path)
	if len(argv) > 1 {
		newArgv = append(newArgv, argv[1:]...)
	}
	return interp, newArgv, nil
}

func getenv(envp []string, key string) (string, bool) {
	prefix := key + "="
	for _, kv := range envp {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):], true
		}
	}
	return "", false
}

func lookupPATH(fsys *vfs.FS, envp []string, cmd string) (string, bool) {
	pathVar, ok := getenv(envp, "PATH")
	if !ok {
		pathVar = "/usr/bin:/bin"
	}
	for _, dir := range strings.Split(pathVar, ":") {
		candidate := dir + "/" + cmd
		if _, errno := fsys.Resolve(candidate); errno == 0 {
			return candidate, true
		}
	}
	return "", false
}

func rebuildStackOnly(m Machine, exec *ExecCtx, argv, envp []string, path string) (*Result, error) {
	load := &elfload.LoadResult{
		PhdrVaddr: 0,
		Entry:     0,
	}
	entry := exec.InterpEntry
	if entry == 0 {
		img, err := elfload.Parse(exec.MainBytes)
		if err != nil {
			return nil, ErrNoExec
		}
		entry = img.Entry
		if img.Dynamic {
			entry += exec.MainBase
		}
	}
	res, err := stackbuild.Build(m, exec.OrigStackTop, argv, envp, path, load, exec.InterpBase, [16]byte{})
	if err != nil {
		return nil, err
	}
	exec.MainPath = path
	return &Result{SP: res.SP, Entry: entry}, nil
}

// binarySwap implements the ELF-reload path of execve: the old writable
// range is marked RWX and every new PT_LOAD range RW before any bytes move,
// the loader does the actual segment copy, and brk/mmap bookkeeping resets
// exactly as it would after a fresh process start.
func binarySwap(m Machine, exec *ExecCtx, mem *MemState, raw []byte, argv, envp []string, path string) (*Result, error) {
	img, err := elfload.Parse(raw)
	if err != nil {
		return nil, ErrNoExec
	}

	var base uint64
	if img.Dynamic {
		base = exec.MainBase
	}

	if exec.MainRWEnd > exec.MainRWStart {
		if err := m.SetPageAttrs(exec.MainRWStart, exec.MainRWEnd-exec.MainRWStart, machine.RWX); err != nil {
			return nil, ErrNoExec
		}
	}
	for _, seg := range img.Segments() {
		start := (seg.Vaddr + base) &^ (machine.PageSize - 1)
		end := pageAlignUp(seg.Vaddr + base + seg.Memsz)
		if err := m.SetPageAttrs(start, end-start, machine.ProtRead|machine.ProtWrite); err != nil {
			return nil, ErrNoExec
		}
	}

	newLoad, err := elfload.Load(img, m, base)
	if err != nil {
		return nil, ErrNoExec
	}

	newRWStart, newRWHi, hasRW := img.WritableRange()
	if hasRW {
		newRWStart += base
		newRWHi += base
	}

	// The interpreter's own base and entry carry over unchanged across a
	// binary swap. A PT_INTERP in the new image that names a different
	// interpreter is not loaded: neither this function nor its caller
	// reads or reloads interpreter bytes.
	interpBase := exec.InterpBase
	interpEntry := exec.InterpEntry

	brkBase := pageAlignUp(newLoad.HiLoad)
	mem.BrkBase = brkBase
	mem.BrkCurrent = brkBase
	mem.BrkOverridden = true
	if err := m.SetPageAttrs(brkBase, brkMax, machine.ProtRead|machine.ProtWrite); err != nil {
		return nil, ErrNoExec
	}
	mem.MmapFrontier = brkBase + brkMax

	exec.MainBytes = raw
	exec.MainBase = base
	exec.MainRWStart = newRWStart
	exec.MainRWEnd = newRWHi
	exec.HeapStart = brkBase
	exec.HeapSize = brkMax
	exec.Dynamic = img.Dynamic
	exec.MainPath = path
	exec.InterpBase = interpBase
	exec.InterpEntry = interpEntry

	stackTop := exec.OrigStackTop
	if overlapsStack(newLoad, stackTop) {
		stackTop = pageAlignUp(interpBase) - interpGap
		if err := m.SetPageAttrs(stackTop-stackWindow, stackWindow, machine.ProtRead|machine.ProtWrite); err != nil {
			return nil, ErrNoExec
		}
		exec.OrigStackTop = stackTop
	}

	res, err := stackbuild.Build(m, stackTop, argv, envp, path, newLoad, interpBase, [16]byte{})
	if err != nil {
		return nil, err
	}

	entry := newLoad.Entry
	if img.Interp != "" && interpEntry != 0 {
		entry = interpEntry
	}

	return &Result{SP: res.SP, Entry: entry}, nil
}

func overlapsStack(load *elfload.LoadResult, stackTop uint64) bool {
	return load.HiLoad > 0 && load.HiLoad >= stackTop-stackWindow
}

func pageAlignUp(v uint64) uint64 {
	return (v + machine.PageSize - 1) &^ (machine.PageSize - 1)
}
