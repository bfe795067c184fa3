package syscalls

import (
	"encoding/binary"
	"time"
)

func registerTimeSyscalls(t Table) {
	t[sysClockGettime] = handleClockGettime
	t[sysClockGetres] = handleClockGetres
	t[sysNanosleep] = handleNanosleep
	t[sysSyslog] = zeroResult
	t[sysGetrandom] = handleGetrandom
}

const (
	clockRealtime  = 0
	clockMonotonic = 1
)

func writeTimespec(ctx *Context, addr uint64, sec, nsec int64) {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(sec))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(nsec))
	ctx.M.WriteMem(addr, buf[:])
}

// handleClockGettime also doubles as a scheduler preemption point: every
// guest program that busy-polls calls this frequently enough to bound how
// long one virtual thread can hog the Machine between futex/yield points.
func handleClockGettime(ctx *Context) {
	a := ctx.Args(2)
	ctx.G.Sched.Tick(ctx.M)
	now := time.Now()
	writeTimespec(ctx, a[1], now.Unix(), int64(now.Nanosecond()))
	ctx.M.SetResult(0)
}

func handleClockGetres(ctx *Context) {
	a := ctx.Args(2)
	if a[1] != 0 {
		writeTimespec(ctx, a[1], 0, 1)
	}
	ctx.M.SetResult(0)
}

// handleNanosleep yields to another runnable thread instead of actually
// sleeping the host: a cooperative scheduler has no other thread to make
// progress while one is parked in a real time.Sleep.
func handleNanosleep(ctx *Context) {
	ctx.G.Sched.Yield(ctx.M)
	ctx.M.SetResult(0)
}

func handleGetrandom(ctx *Context) {
	a := ctx.Args(3)
	count := a[1]
	if count > 256 {
		count = 256
	}
	buf := make([]byte, count)
	seed := time.Now().UnixNano()
	for i := range buf {
		seed = seed*6364136223846793005 + 1442695040888963407
		buf[i] = byte(seed >> 33)
	}
	ctx.M.WriteMem(a[0], buf)
	ctx.M.SetResult(int64(count))
}
