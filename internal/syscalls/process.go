package syscalls

import (
	"encoding/binary"
	"errors"

	"github.com/friscy/rve/internal/execengine"
	"github.com/friscy/rve/internal/forkengine"
	"github.com/friscy/rve/internal/machine"
)

func registerProcessSyscalls(t Table) {
	t[sysExit] = handleExit
	t[sysExitGroup] = handleExit
	t[sysClone] = handleClone
	t[sysWait4] = handleWait4
	t[sysGetpid] = constResult(func(ctx *Context) int64 { return 1 })
	t[sysGetppid] = constResult(func(ctx *Context) int64 { return 0 })
	t[sysGettid] = handleGettid
	t[sysGetuid] = zeroResult
	t[sysGeteuid] = zeroResult
	t[sysGetgid] = zeroResult
	t[sysGetegid] = zeroResult
	t[sysGetresuid] = handleGetresuid
	t[sysGetresgid] = handleGetresuid
	t[sysGetgroups] = zeroResult
	t[sysGetpgid] = zeroResult
	t[sysSetTidAddress] = handleSetTidAddress
	t[sysSetRobustList] = zeroResult
	t[sysPrctl] = handlePrctl
	t[sysPrlimit64] = zeroResult
	t[sysGetrlimit] = zeroResult
	t[sysGetrusage] = zeroResult
	t[sysKill] = handleKillNoop
	t[sysTkill] = handleKillNoop
	t[sysTgkill] = handleKillNoop
	t[sysSchedYield] = handleSchedYield
	t[sysSchedGetaffinity] = zeroResult
	t[sysSchedGetscheduler] = zeroResult
	t[sysSchedGetparam] = zeroResult
	t[sysRtSigreturn] = zeroResult
	t[sysExecve] = handleExecve
}

func zeroResult(ctx *Context) { ctx.M.SetResult(0) }

func constResult(f func(ctx *Context) int64) Handler {
	return func(ctx *Context) { ctx.M.SetResult(f(ctx)) }
}

func handleGettid(ctx *Context) {
	ctx.M.SetResult(int64(ctx.G.Sched.CurrentThread().TID))
}

func handleGetresuid(ctx *Context) {
	a := ctx.Args(3)
	var zero [4]byte
	ctx.M.WriteMem(a[0], zero[:])
	ctx.M.WriteMem(a[1], zero[:])
	ctx.M.WriteMem(a[2], zero[:])
	ctx.M.SetResult(0)
}

func handleSetTidAddress(ctx *Context) {
	a := ctx.Args(1)
	ctx.G.Sched.CurrentThread().ClearChildTID = a[0]
	ctx.M.SetResult(int64(ctx.G.Sched.CurrentThread().TID))
}

const prctlSetName = 15
const prctlGetName = 16

func handlePrctl(ctx *Context) {
	a := ctx.Args(5)
	switch a[0] {
	case prctlSetName, prctlGetName:
		ctx.M.SetResult(0)
	default:
		ctx.M.SetResult(0)
	}
}

func handleKillNoop(ctx *Context) {
	// Signal delivery between guest threads/processes is out of scope;
	// accept the call so guest code that probes liveness via kill(pid, 0)
	// doesn't trip over -ENOSYS.
	ctx.M.SetResult(0)
}

func handleSchedYield(ctx *Context) {
	ctx.G.Sched.Yield(ctx.M)
	ctx.M.SetResult(0)
}

// handleExit routes to the fork engine's child-exit path when running as a
// vfork child, to the scheduler's thread-exit path for a non-main thread,
// or stops the Machine outright for the main thread/process exit.
func handleExit(ctx *Context) {
	a := ctx.Args(1)
	status := int32(a[0])

	if ctx.G.Fork.InChild {
		if err := forkengine.ExitChild(ctx.G.Fork, ctx.M, ctx.G.VFS, status); err != nil {
			ctx.M.SetResult(-14) // EFAULT
			return
		}
		ctx.M.Resume()
		return
	}

	cur := ctx.G.Sched.Current
	if cur != 0 {
		next := ctx.G.Sched.ExitThread(ctx.M, cur, func(addr uint64) error {
			var zero [4]byte
			return ctx.M.WriteMem(addr, zero[:])
		})
		if next >= 0 {
			ctx.M.Resume()
			return
		}
	}
	ctx.M.Stop()
}

func handleWait4(ctx *Context) {
	a := ctx.Args(4)
	pid, status, errno := forkengine.Wait4(ctx.G.Fork)
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	if a[1] != 0 {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(status))
		ctx.M.WriteMem(a[1], b[:])
	}
	ctx.M.SetResult(int64(pid))
}

// clone() flag bits beyond forkengine's discriminator, needed to seed a
// spawned thread's TLS pointer and tid-address bookkeeping.
const (
	cloneSettls        = 0x00080000
	cloneParentSettid  = 0x00100000
	cloneChildCleartid = 0x00200000
	cloneChildSettid   = 0x01000000
)

func handleClone(ctx *Context) {
	a := ctx.Args(5)
	flags := a[0]

	if forkengine.Classify(flags) == forkengine.KindThread {
		// riscv's sys_clone ABI: a0=flags, a1=newsp, a2=parent_tidptr,
		// a3=child_tidptr, a4=tls. The kernel returns to the caller's next
		// instruction in both parent and child, just like fork — Spawn
		// copies the live register file and only overrides SP/TLS/a0.
		childSP, ptidAddr, ctidAddr, tls := a[1], a[2], a[3], a[4]

		var clearChildTID uint64
		if flags&cloneChildCleartid != 0 {
			clearChildTID = ctidAddr
		}
		if flags&cloneSettls == 0 {
			tls = 0
		}

		tid := ctx.G.Sched.Spawn(ctx.M, childSP, tls, clearChildTID)
		if tid == 0 {
			ctx.M.SetResult(-11) // EAGAIN: every thread slot is occupied
			return
		}
		if flags&cloneParentSettid != 0 && ptidAddr != 0 {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(tid))
			ctx.M.WriteMem(ptidAddr, b[:])
		}
		if flags&cloneChildSettid != 0 && ctidAddr != 0 {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(tid))
			ctx.M.WriteMem(ctidAddr, b[:])
		}
		ctx.M.SetResult(int64(tid))
		return
	}

	// Snapshot parent registers/PC before invoking Fork — Fork itself only
	// handles the memory/fd snapshot, which is the part that can fault.
	for i := 0; i < 32; i++ {
		ctx.G.Fork.SavedRegs[i] = ctx.M.Reg(i)
	}
	ctx.G.Fork.SavedPC = ctx.M.PC()

	bounds := forkengine.Bounds{
		ExecRWStart:   ctx.G.Exec.MainRWStart,
		ExecRWEnd:     ctx.G.Exec.MainRWEnd,
		HeapStart:     ctx.G.Exec.HeapStart,
		InterpRWStart: ctx.G.Exec.InterpRWStart,
		InterpRWEnd:   ctx.G.Exec.InterpRWEnd,
		CurrentSP:     ctx.M.Reg(2),
		OrigStackTop:  ctx.G.Exec.OrigStackTop,
		HeapSize:      ctx.G.Exec.HeapSize,
		MmapFrontier:  ctx.G.Mem.State.MmapFrontier,
	}

	openFDs := map[int32]bool{}
	for _, fd := range ctx.G.VFS.OpenFDs() {
		openFDs[fd] = true
	}

	_, err := forkengine.Fork(ctx.G.Fork, ctx.M, bounds, openFDs)
	if err != nil {
		ctx.M.SetResult(-11) // EAGAIN
		return
	}
	// The child sees a zero result from clone(); it is running on the same
	// Machine in place, so simply writing 0 here is enough — there is no
	// separate child Machine to resume.
	ctx.M.SetResult(0)
}

// readStrArray reads a NULL-terminated array of guest pointers starting at
// vaddr, resolving each to its C string.
func readStrArray(m machine.Machine, vaddr uint64) ([]string, error) {
	var out []string
	for i := 0; ; i++ {
		var b [8]byte
		if err := m.ReadMem(vaddr+uint64(i)*8, b[:]); err != nil {
			return nil, err
		}
		ptr := binary.LittleEndian.Uint64(b[:])
		if ptr == 0 {
			return out, nil
		}
		s, err := readCString(m, ptr)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
}

// handleExecve wires the exec engine's binary-swap into the syscall
// dispatcher: on success it does not call SetResult at all, since execve
// that succeeds never returns to the caller — it zeroes x1-x31, installs the
// new SP in x2, and jumps PC straight to the new entry point.
func handleExecve(ctx *Context) {
	a := ctx.Args(3)
	path, err := readCString(ctx.M, a[0])
	if err != nil {
		ctx.M.SetResult(-14) // EFAULT
		return
	}
	argv, err := readStrArray(ctx.M, a[1])
	if err != nil {
		ctx.M.SetResult(-14)
		return
	}
	envp, err := readStrArray(ctx.M, a[2])
	if err != nil {
		ctx.M.SetResult(-14)
		return
	}

	res, err := execengine.Execve(ctx.G.VFS, ctx.M, &ctx.G.Exec, ctx.G.Mem.State, path, argv, envp)
	if err != nil {
		switch {
		case errors.Is(err, execengine.ErrNoEnt):
			ctx.M.SetResult(-2) // ENOENT
		case errors.Is(err, execengine.ErrNoExec):
			ctx.M.SetResult(-8) // ENOEXEC
		default:
			ctx.M.SetResult(-14) // EFAULT
		}
		return
	}

	for i := 1; i < 32; i++ {
		ctx.M.SetReg(i, 0)
	}
	ctx.M.SetReg(2, res.SP)
	ctx.M.SetPC(res.Entry)
}
