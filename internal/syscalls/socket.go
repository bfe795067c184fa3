package syscalls

func registerSocketSyscalls(t Table) {
	t[sysSocket] = handleSocket
	t[sysBind] = handleBind
	t[sysListen] = handleListen
	t[sysAccept] = handleAccept
	t[sysAccept4] = handleAccept
	t[sysConnect] = handleConnect
	t[sysSendto] = handleSendto
	t[sysRecvfrom] = handleRecvfrom
	t[sysSendmsg] = handleSendmsg
	t[sysRecvmsg] = handleRecvmsg
	t[sysSetsockopt] = handleSetsockopt
	t[sysGetsockopt] = handleGetsockopt
	t[sysShutdown] = handleShutdown
	t[sysGetsockname] = handleGetsockname
	t[sysGetpeername] = handleGetpeername
	t[sysSocketpair] = handleSocketpair
}

func handleSocket(ctx *Context) {
	a := ctx.Args(3)
	fd, errno := ctx.G.Net.Socket(int32(a[0]), int32(a[1]), int32(a[2]))
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	ctx.M.SetResult(int64(fd))
}

func readSockaddr(ctx *Context, addr uint64, length uint64) []byte {
	if addr == 0 || length == 0 {
		return nil
	}
	if length > 128 {
		length = 128
	}
	buf := make([]byte, length)
	ctx.M.ReadMem(addr, buf)
	return buf
}

func handleBind(ctx *Context) {
	a := ctx.Args(3)
	addr := readSockaddr(ctx, a[1], a[2])
	ctx.M.SetResult(int64(ctx.G.Net.Bind(int32(a[0]), addr)))
}

func handleListen(ctx *Context) {
	a := ctx.Args(2)
	ctx.M.SetResult(int64(ctx.G.Net.Listen(int32(a[0]), int32(a[1]))))
}

func handleAccept(ctx *Context) {
	a := ctx.Args(4)
	newFD, peer, errno := ctx.G.Net.Accept(int32(a[0]), int32(a[3]))
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	if a[1] != 0 && peer != nil {
		ctx.M.WriteMem(a[1], peer)
	}
	ctx.M.SetResult(int64(newFD))
}

func handleConnect(ctx *Context) {
	a := ctx.Args(3)
	addr := readSockaddr(ctx, a[1], a[2])
	ctx.M.SetResult(int64(ctx.G.Net.Connect(int32(a[0]), addr)))
}

func handleSendto(ctx *Context) {
	a := ctx.Args(6)
	count := a[2]
	if count > 1<<20 {
		count = 1 << 20
	}
	buf := make([]byte, count)
	if err := ctx.M.ReadMem(a[1], buf); err != nil {
		ctx.M.SetResult(-14)
		return
	}
	addr := readSockaddr(ctx, a[4], a[5])
	n, errno := ctx.G.Net.SendTo(int32(a[0]), buf, addr)
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	ctx.M.SetResult(int64(n))
}

func handleRecvfrom(ctx *Context) {
	a := ctx.Args(6)
	count := a[2]
	if count > 1<<20 {
		count = 1 << 20
	}
	buf := make([]byte, count)
	n, from, errno := ctx.G.Net.RecvFrom(int32(a[0]), buf)
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	if n > 0 {
		ctx.M.WriteMem(a[1], buf[:n])
	}
	if a[4] != 0 && from != nil {
		ctx.M.WriteMem(a[4], from)
	}
	ctx.M.SetResult(int64(n))
}

// msghdr layout: msg_name, msg_namelen, msg_iov, msg_iovlen, msg_control,
// msg_controllen, msg_flags (partial; only the fields this emulator reads).
func handleSendmsg(ctx *Context) {
	a := ctx.Args(3)
	msgAddr := a[1]
	var hdr [56]byte
	if err := ctx.M.ReadMem(msgAddr, hdr[:]); err != nil {
		ctx.M.SetResult(-14)
		return
	}
	iovBase := leU64(hdr[16:24])
	iovLen := leU64(hdr[24:32])
	var total int64
	for i := uint64(0); i < iovLen; i++ {
		base, length, err := readIovec(ctx.M, iovBase+i*16)
		if err != nil {
			break
		}
		if length == 0 {
			continue
		}
		buf := make([]byte, length)
		if err := ctx.M.ReadMem(base, buf); err != nil {
			break
		}
		n, errno := ctx.G.Net.SendTo(int32(a[0]), buf, nil)
		if errno != 0 {
			if total == 0 {
				ctx.M.SetResult(int64(errno))
				return
			}
			break
		}
		total += int64(n)
	}
	ctx.M.SetResult(total)
}

func handleRecvmsg(ctx *Context) {
	a := ctx.Args(3)
	msgAddr := a[1]
	var hdr [56]byte
	if err := ctx.M.ReadMem(msgAddr, hdr[:]); err != nil {
		ctx.M.SetResult(-14)
		return
	}
	iovBase := leU64(hdr[16:24])
	iovLen := leU64(hdr[24:32])
	var total int64
	for i := uint64(0); i < iovLen; i++ {
		base, length, err := readIovec(ctx.M, iovBase+i*16)
		if err != nil {
			break
		}
		if length == 0 {
			continue
		}
		buf := make([]byte, length)
		n, _, errno := ctx.G.Net.RecvFrom(int32(a[0]), buf)
		if errno != 0 {
			if total == 0 {
				ctx.M.SetResult(int64(errno))
				return
			}
			break
		}
		if n > 0 {
			ctx.M.WriteMem(base, buf[:n])
		}
		total += int64(n)
		if n < int(length) {
			break
		}
	}
	ctx.M.SetResult(total)
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func handleSetsockopt(ctx *Context) {
	a := ctx.Args(5)
	value := readSockaddr(ctx, a[3], a[4])
	ctx.M.SetResult(int64(ctx.G.Net.SetSockOpt(int32(a[0]), int32(a[1]), int32(a[2]), value)))
}

func handleGetsockopt(ctx *Context) {
	a := ctx.Args(5)
	v, errno := ctx.G.Net.GetSockOpt(int32(a[0]), int32(a[1]), int32(a[2]), int32(a[4]))
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	if a[3] != 0 {
		ctx.M.WriteMem(a[3], v)
	}
	ctx.M.SetResult(0)
}

func handleShutdown(ctx *Context) {
	a := ctx.Args(2)
	ctx.M.SetResult(int64(ctx.G.Net.Shutdown(int32(a[0]), int32(a[1]))))
}

func handleGetsockname(ctx *Context) {
	a := ctx.Args(3)
	addr, errno := ctx.G.Net.GetSockName(int32(a[0]))
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	ctx.M.WriteMem(a[1], addr)
	ctx.M.SetResult(0)
}

func handleGetpeername(ctx *Context) {
	a := ctx.Args(3)
	addr, errno := ctx.G.Net.GetPeerName(int32(a[0]))
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	ctx.M.WriteMem(a[1], addr)
	ctx.M.SetResult(0)
}

// handleSocketpair backs onto a single VFS pipe: fds[0] is its read end and
// fds[1] its write end, so bytes flow only from fds[1] to fds[0]; the
// reverse direction of a real socketpair is not provided.
func handleSocketpair(ctx *Context) {
	a := ctx.Args(4)
	r, w, errno := ctx.G.VFS.Pipe()
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	var fds [8]byte
	putU32(fds[0:4], uint32(r))
	putU32(fds[4:8], uint32(w))
	ctx.M.WriteMem(a[3], fds[:])
	ctx.M.SetResult(0)
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
