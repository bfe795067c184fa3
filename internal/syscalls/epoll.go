package syscalls

import (
	"encoding/binary"

	"github.com/friscy/rve/internal/guest"
)

func registerEpollSyscalls(t Table) {
	t[sysEpollCreate1] = handleEpollCreate1
	t[sysEpollCtl] = handleEpollCtl
	t[sysEpollPwait] = handleEpollPwait
}

const (
	epollCtlAdd = 1
	epollCtlDel = 2
	epollCtlMod = 3
)

func handleEpollCreate1(ctx *Context) {
	fd, writeFD, errno := ctx.G.VFS.Pipe()
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	// The epoll instance fd is borrowed from a throwaway pipe's read end
	// purely to get a guest-visible fd number out of the VFS fd allocator;
	// the pipe's write end is immediately discarded.
	ctx.G.VFS.Close(writeFD)
	ctx.G.Epoll[fd] = &guest.EpollInstance{Watches: map[int32]guest.EpollWatch{}}
	ctx.M.SetResult(int64(fd))
}

func handleEpollCtl(ctx *Context) {
	a := ctx.Args(4)
	epfd, op, fd, eventAddr := int32(a[0]), a[1], int32(a[2]), a[3]
	inst, ok := ctx.G.Epoll[epfd]
	if !ok {
		ctx.M.SetResult(-9) // EBADF
		return
	}
	switch op {
	case epollCtlAdd, epollCtlMod:
		var buf [12]byte
		ctx.M.ReadMem(eventAddr, buf[:])
		events := binary.LittleEndian.Uint32(buf[0:4])
		data := binary.LittleEndian.Uint64(buf[4:12])
		inst.Watches[fd] = guest.EpollWatch{Events: events, UserData: data}
	case epollCtlDel:
		delete(inst.Watches, fd)
	default:
		ctx.M.SetResult(-22) // EINVAL
		return
	}
	ctx.M.SetResult(0)
}

// handleEpollPwait checks readiness only for fd 0 (via iobridge), which is
// skipped while no stdin data or EOF is pending; every other watched fd,
// sockets included, is reported ready (EPOLLIN) without any check.
func handleEpollPwait(ctx *Context) {
	a := ctx.Args(4)
	epfd, eventsAddr, maxEvents := int32(a[0]), a[1], a[2]
	inst, ok := ctx.G.Epoll[epfd]
	if !ok {
		ctx.M.SetResult(-9)
		return
	}
	written := 0
	for fd, w := range inst.Watches {
		if uint64(written) >= maxEvents {
			break
		}
		if fd == 0 && !ctx.G.IO.HasData() {
			continue
		}
		var b [12]byte
		binary.LittleEndian.PutUint32(b[0:4], 1) // EPOLLIN
		binary.LittleEndian.PutUint64(b[4:12], w.UserData)
		ctx.M.WriteMem(eventsAddr+uint64(written)*12, b[:])
		written++
	}
	ctx.M.SetResult(int64(written))
}
