package syscalls

import "github.com/friscy/rve/internal/machine"

func registerMemorySyscalls(t Table) {
	t[sysBrk] = handleBrk
	t[sysMmap] = handleMmap
	t[sysMunmap] = handleMunmap
	t[sysMprotect] = handleMprotect
	t[sysMadvise] = zeroResult
	t[sysMremap] = handleMremap
}

func handleBrk(ctx *Context) {
	a := ctx.Args(1)
	if a[0] == 0 {
		ctx.M.SetResult(int64(ctx.G.Mem.State.BrkCurrent))
		return
	}
	newEnd, errno := ctx.G.Mem.Brk(a[0])
	if errno != 0 {
		ctx.M.SetResult(int64(ctx.G.Mem.State.BrkCurrent))
		return
	}
	ctx.M.SetResult(int64(newEnd))
}

const (
	protRead  = 0x1
	protWrite = 0x2
	protExec  = 0x4
)

func toPageAttrs(prot uint64) machine.PageAttrs {
	var attrs machine.PageAttrs
	if prot&protRead != 0 {
		attrs |= machine.ProtRead
	}
	if prot&protWrite != 0 {
		attrs |= machine.ProtWrite
	}
	if prot&protExec != 0 {
		attrs |= machine.ProtExec
	}
	return attrs
}

func handleMmap(ctx *Context) {
	a := ctx.Args(6)
	ctx.G.Sched.Tick(ctx.M)
	addr, errno := ctx.G.Mem.Mmap(a[0], a[1], toPageAttrs(a[2]), int32(a[3]), int32(a[4]), int64(a[5]))
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	ctx.M.SetResult(int64(addr))
}

func handleMunmap(ctx *Context) {
	a := ctx.Args(2)
	if err := ctx.M.SetPageAttrs(a[0], a[1], 0); err != nil {
		ctx.M.SetResult(-14)
		return
	}
	ctx.M.SetResult(0)
}

func handleMprotect(ctx *Context) {
	a := ctx.Args(3)
	// A protect applied during a live fork-child window would corrupt the
	// snapshot the fork engine restores from, since the two "processes"
	// still share the one Machine's page table.
	if ctx.G.Fork.InChild {
		ctx.M.SetResult(0)
		return
	}
	ctx.M.SetResult(int64(ctx.G.Mem.Mprotect(a[0], a[1], toPageAttrs(a[2]))))
}

func handleMremap(ctx *Context) {
	ctx.M.SetResult(-38) // ENOSYS: guest binaries fall back to munmap+mmap
}
