package syscalls

import "encoding/binary"

func registerPipeSyscalls(t Table) {
	t[sysPipe2] = handlePipe2
	t[sysPpoll] = handlePpoll
	t[sysPselect6] = handlePselect6
	t[sysEventfd2] = handleEventfd2
}

func handlePipe2(ctx *Context) {
	a := ctx.Args(2)
	readFD, writeFD, errno := ctx.G.VFS.Pipe()
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	var fds [8]byte
	binary.LittleEndian.PutUint32(fds[0:4], uint32(readFD))
	binary.LittleEndian.PutUint32(fds[4:8], uint32(writeFD))
	ctx.M.WriteMem(a[0], fds[:])
	ctx.M.SetResult(0)
}

// handlePpoll reports every polled fd ready immediately: this emulator has
// no true asynchronous I/O multiplexing beyond the stdin suspend protocol
// iobridge implements, so a guest event loop polling fd 0 for readability is
// the one case handled precisely (via HasData); everything else is
// optimistically reported ready to keep single-threaded guest tools moving.
func handlePpoll(ctx *Context) {
	a := ctx.Args(5)
	fdsAddr, nfds := a[0], a[1]
	const pollinOffset = 6
	ready := int64(0)
	for i := uint64(0); i < nfds; i++ {
		entry := fdsAddr + i*8
		var fdBuf [4]byte
		ctx.M.ReadMem(entry, fdBuf[:])
		fd := int32(binary.LittleEndian.Uint32(fdBuf[:]))
		var revents uint16 = 1 // POLLIN
		if fd == 0 && !ctx.G.IO.HasData() {
			revents = 0
		} else {
			ready++
		}
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], revents)
		ctx.M.WriteMem(entry+pollinOffset, b[:])
	}
	ctx.M.SetResult(ready)
}

func handlePselect6(ctx *Context) {
	ctx.M.SetResult(0)
}

func handleEventfd2(ctx *Context) {
	readFD, writeFD, errno := ctx.G.VFS.Pipe()
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	_ = writeFD
	// An eventfd is modeled as the read end of a fresh pipe: guest code
	// treats it as an opaque pollable/readable fd, which this satisfies.
	ctx.M.SetResult(int64(readFD))
}
