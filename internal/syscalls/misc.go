package syscalls

import "encoding/binary"

func registerMiscSyscalls(t Table) {
	t[sysIoctl] = handleIoctl
	t[sysUname] = handleUname
	t[sysSysinfo] = handleSysinfo
	t[sysUmask] = constResult(func(ctx *Context) int64 { return 0o22 })
	t[sysFutex] = handleFutex
	t[sysMembarrier] = zeroResult
	t[sysCapget] = handleCapget
	t[sysIoUringSetup] = enosys
	t[sysRseq] = enosys
	t[sysRiscvHwprobe] = enosys
}

func enosys(ctx *Context) { ctx.M.SetResult(-38) }

const (
	tcgets     = 0x5401
	tiocgwinsz = 0x5413
	fionbio    = 0x5421
)

func handleIoctl(ctx *Context) {
	a := ctx.Args(3)
	fd, req := int32(a[0]), a[1]
	switch req {
	case tiocgwinsz:
		rows, cols := ctx.G.IO.TermSize()
		var b [8]byte
		binary.LittleEndian.PutUint16(b[0:2], uint16(rows))
		binary.LittleEndian.PutUint16(b[2:4], uint16(cols))
		ctx.M.WriteMem(a[2], b[:])
		ctx.M.SetResult(0)
	case tcgets:
		if fd == 0 || fd == 1 || fd == 2 {
			ctx.M.SetResult(0)
			return
		}
		ctx.M.SetResult(-25) // ENOTTY
	case fionbio:
		ctx.M.SetResult(0)
	default:
		ctx.M.SetResult(0)
	}
}

func handleUname(ctx *Context) {
	a := ctx.Args(1)
	fields := []string{"Linux", "friscy", "6.1.0-friscy", "#1 SMP", "riscv64", ""}
	const fieldLen = 65
	buf := make([]byte, fieldLen*6)
	for i, f := range fields {
		copy(buf[i*fieldLen:], f)
	}
	ctx.M.WriteMem(a[0], buf)
	ctx.M.SetResult(0)
}

func handleSysinfo(ctx *Context) {
	a := ctx.Args(1)
	var buf [112]byte
	binary.LittleEndian.PutUint64(buf[32:40], 1<<30) // totalram
	binary.LittleEndian.PutUint64(buf[40:48], 1<<29) // freeram
	buf[scInfoProcsOffset] = 1
	ctx.M.WriteMem(a[0], buf[:])
	ctx.M.SetResult(0)
}

const scInfoProcsOffset = 80

func handleCapget(ctx *Context) {
	ctx.M.SetResult(-1) // EPERM
}

// handleFutex implements FUTEX_WAIT and FUTEX_WAKE (masking off the
// FUTEX_PRIVATE_FLAG guest libcs set); every other futex operation is
// accepted as a no-op success since this emulator never has more than one
// process family sharing a futex word across VMs.
const (
	futexWait    = 0
	futexWake    = 1
	futexPrivate = 0x80
	futexCmdMask = 0x7f
)

func handleFutex(ctx *Context) {
	a := ctx.Args(6)
	uaddr, op, val := a[0], a[1]&futexCmdMask, uint32(a[2])

	switch op {
	case futexWait:
		readWord := func() (uint32, error) {
			var b [4]byte
			if err := ctx.M.ReadMem(uaddr, b[:]); err != nil {
				return 0, err
			}
			return binary.LittleEndian.Uint32(b[:]), nil
		}
		writeZero := func() error {
			var b [4]byte
			return ctx.M.WriteMem(uaddr, b[:])
		}
		result, err := ctx.G.Sched.FutexWait(ctx.M, uaddr, val, readWord, writeZero)
		if err != nil {
			ctx.M.SetResult(-11) // EAGAIN-shaped deadlock signal for strict test mode
			return
		}
		ctx.M.SetResult(result)
	case futexWake:
		n := ctx.G.Sched.FutexWake(uaddr, int32(a[2]))
		ctx.M.SetResult(int64(n))
	default:
		ctx.M.SetResult(0)
	}
}
