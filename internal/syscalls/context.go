// Package syscalls implements the Linux RISC-V syscall dispatch table: one
// Handler per syscall number, each reading its arguments from the a0-a5
// registers, doing the work against the guest.State's collaborators, and
// writing the result back through Machine.SetResult.
package syscalls

import (
	"github.com/friscy/rve/internal/guest"
	"github.com/friscy/rve/internal/machine"
)

// Context is what every Handler receives: the Machine to read args/write
// results on, and the bundled guest state to act against.
type Context struct {
	M machine.Machine
	G *guest.State
}

// Handler services one syscall number. A handler that wants to suspend
// the Machine (e.g. a blocking stdin read) calls ctx.M.Stop() itself and
// must not call SetResult in that case — the caller re-enters the same
// ecall once resumed.
type Handler func(ctx *Context)

// Args reads the first n argument registers (a0 = x10 .. a5 = x15).
func (ctx *Context) Args(n int) [6]uint64 {
	var a [6]uint64
	for i := 0; i < n && i < 6; i++ {
		a[i] = ctx.M.Reg(10 + i)
	}
	return a
}

// Table is the syscall-number -> Handler dispatch map, built once by New.
type Table map[uint64]Handler

// New builds the full dispatch table, grouping registration the way the
// CLI's own command tree is built up from per-group registration
// functions rather than one giant literal.
func New() Table {
	t := Table{}
	registerProcessSyscalls(t)
	registerFileSyscalls(t)
	registerMemorySyscalls(t)
	registerSignalSyscalls(t)
	registerTimeSyscalls(t)
	registerPipeSyscalls(t)
	registerEpollSyscalls(t)
	registerSocketSyscalls(t)
	registerMiscSyscalls(t)
	return t
}

// Dispatch looks up and invokes the handler for nr, or writes -ENOSYS if
// none is registered.
func (t Table) Dispatch(ctx *Context, nr uint64) {
	h, ok := t[nr]
	if !ok {
		ctx.M.SetResult(-38) // ENOSYS
		return
	}
	h(ctx)
}

// readCString reads a NUL-terminated string from guest memory starting at
// vaddr, one 256-byte chunk at a time to bound a single read.
func readCString(m machine.Machine, vaddr uint64) (string, error) {
	const chunk = 256
	var out []byte
	for {
		buf := make([]byte, chunk)
		if err := m.ReadMem(vaddr, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b == 0 {
				return string(out), nil
			}
			out = append(out, b)
		}
		vaddr += chunk
		if len(out) > 1<<20 {
			return string(out), nil
		}
	}
}
