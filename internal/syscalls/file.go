package syscalls

import (
	"encoding/binary"

	"github.com/friscy/rve/internal/netbridge"
	"github.com/friscy/rve/internal/vfs"
)

func registerFileSyscalls(t Table) {
	t[sysOpenat] = handleOpenat
	t[sysClose] = handleClose
	t[sysRead] = handleRead
	t[sysWrite] = handleWrite
	t[sysReadv] = handleReadv
	t[sysWritev] = handleWritev
	t[sysPread64] = handlePread64
	t[sysPwrite64] = handlePwrite64
	t[sysPwritev] = handleWritev
	t[sysLseek] = handleLseek
	t[sysGetdents64] = handleGetdents64
	t[sysNewfstatat] = handleNewfstatat
	t[sysFstat] = handleFstat
	t[sysStatx] = handleStatx
	t[sysReadlinkat] = handleReadlinkat
	t[sysFaccessat] = handleFaccessat
	t[sysFaccessat2] = handleFaccessat
	t[sysGetcwd] = handleGetcwd
	t[sysChdir] = handleChdir
	t[sysMkdirat] = handleMkdirat
	t[sysUnlinkat] = handleUnlinkat
	t[sysSymlinkat] = handleSymlinkat
	t[sysLinkat] = handleLinkat
	t[sysRenameat] = handleRenameat
	t[sysFtruncate] = handleFtruncate
	t[sysFsync] = zeroResult
	t[sysFchmodat] = zeroResult
	t[sysFchmod] = zeroResult
	t[sysFchownat] = zeroResult
	t[sysFlock] = zeroResult
	t[sysDup] = handleDup
	t[sysDup3] = handleDup3
	t[sysFcntl] = handleFcntl
	t[sysCloseRange] = zeroResult
	t[sysSendfile] = handleSendfile
}

const atFDCWD = -100

// resolvePathArg reads the NUL-terminated path string argument. dirfd is
// accepted but not used to anchor resolution beyond AT_FDCWD: this VFS
// tracks a single process-wide cwd rather than per-fd directory handles, so
// a relative path under a non-AT_FDCWD dirfd resolves against cwd as well.
func resolvePathArg(ctx *Context, vaddr uint64) (string, error) {
	return readCString(ctx.M, vaddr)
}

func handleOpenat(ctx *Context) {
	a := ctx.Args(4)
	path, err := resolvePathArg(ctx, a[1])
	if err != nil {
		ctx.M.SetResult(-14) // EFAULT
		return
	}
	fd, errno := ctx.G.VFS.Open(path, int32(a[2]), uint32(a[3]))
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	ctx.M.SetResult(int64(fd))
}

func handleClose(ctx *Context) {
	a := ctx.Args(1)
	fd := int32(a[0])
	if netbridge.IsSocketFD(fd) {
		ctx.M.SetResult(int64(ctx.G.Net.Close(fd)))
		return
	}
	ctx.M.SetResult(int64(ctx.G.VFS.Close(fd)))
}

func handleRead(ctx *Context) {
	a := ctx.Args(3)
	fd := int32(a[0])
	count := a[2]
	if count > 1<<20 {
		count = 1 << 20
	}
	buf := make([]byte, count)

	if fd == 0 {
		n := ctx.G.IO.TryRead(buf)
		if n < 0 {
			ctx.G.IO.SetWaiting(true)
			ctx.M.SetPC(ctx.M.PC() - 4)
			ctx.M.Stop()
			return
		}
		ctx.G.IO.SetWaiting(false)
		if n > 0 {
			ctx.M.WriteMem(a[1], buf[:n])
		}
		ctx.M.SetResult(int64(n))
		return
	}

	if netbridge.IsSocketFD(fd) {
		n, errno := ctx.G.Net.RecvFrom(fd, buf)
		if errno != 0 {
			ctx.M.SetResult(int64(errno))
			return
		}
		ctx.M.WriteMem(a[1], buf[:n])
		ctx.M.SetResult(int64(n))
		return
	}

	n, errno := ctx.G.VFS.Read(fd, buf)
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	if n > 0 {
		ctx.M.WriteMem(a[1], buf[:n])
	}
	ctx.M.SetResult(int64(n))
}

func handleWrite(ctx *Context) {
	a := ctx.Args(3)
	fd := int32(a[0])
	count := a[2]
	if count > 1<<20 {
		count = 1 << 20
	}
	buf := make([]byte, count)
	if err := ctx.M.ReadMem(a[1], buf); err != nil {
		ctx.M.SetResult(-14)
		return
	}

	if netbridge.IsSocketFD(fd) {
		n, errno := ctx.G.Net.SendTo(fd, buf, nil)
		if errno != 0 {
			ctx.M.SetResult(int64(errno))
			return
		}
		ctx.M.SetResult(int64(n))
		return
	}

	if fd == 1 || fd == 2 {
		ctx.G.IO.Push(buf) // loopback of guest's own stdout/stderr for `rve inspect`
		ctx.M.SetResult(int64(len(buf)))
		return
	}

	n, errno := ctx.G.VFS.Write(fd, buf)
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	ctx.M.SetResult(int64(n))
}

// iovec is the 16-byte struct iovec layout: base pointer then length.
func readIovec(m iovecReader, vaddr uint64) (base, length uint64, err error) {
	var b [16]byte
	if err := m.ReadMem(vaddr, b[:]); err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint64(b[0:8]), binary.LittleEndian.Uint64(b[8:16]), nil
}

type iovecReader interface {
	ReadMem(vaddr uint64, buf []byte) error
}

func handleReadv(ctx *Context) {
	a := ctx.Args(3)
	fd := int32(a[0])
	iovAddr, iovcnt := a[1], a[2]
	var total int64
	for i := uint64(0); i < iovcnt; i++ {
		base, length, err := readIovec(ctx.M, iovAddr+i*16)
		if err != nil {
			ctx.M.SetResult(-14)
			return
		}
		if length == 0 {
			continue
		}
		buf := make([]byte, length)
		n, errno := ctx.G.VFS.Read(fd, buf)
		if errno != 0 {
			if total > 0 {
				break
			}
			ctx.M.SetResult(int64(errno))
			return
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

func handleWritev(ctx *Context) {
	a := ctx.Args(3)
	fd := int32(a[0])
	iovAddr, iovcnt := a[1], a[2]
	var total int64
	for i := uint64(0); i < iovcnt; i++ {
		base, length, err := readIovec(ctx.M, iovAddr+i*16)
		if err != nil {
			ctx.M.SetResult(-14)
			return
		}
		if length == 0 {
			continue
		}
		buf := make([]byte, length)
		if err := ctx.M.ReadMem(base, buf); err != nil {
			ctx.M.SetResult(-14)
			return
		}
		var n int
		var errno int
		if fd == 1 || fd == 2 {
			ctx.G.IO.Push(buf)
			n = len(buf)
		} else {
			n, errno = ctx.G.VFS.Write(fd, buf)
		}
		if errno != 0 {
			if total > 0 {
				break
			}
			ctx.M.SetResult(int64(errno))
			return
		}
		total += int64(n)
	}
	ctx.M.SetResult(total)
}

func handlePread64(ctx *Context) {
	a := ctx.Args(4)
	count := a[2]
	if count > 1<<20 {
		count = 1 << 20
	}
	buf := make([]byte, count)
	n, errno := ctx.G.VFS.Pread(int32(a[0]), buf, int64(a[3]))
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	if n > 0 {
		ctx.M.WriteMem(a[1], buf[:n])
	}
	ctx.M.SetResult(int64(n))
}

func handlePwrite64(ctx *Context) {
	a := ctx.Args(4)
	count := a[2]
	if count > 1<<20 {
		count = 1 << 20
	}
	buf := make([]byte, count)
	if err := ctx.M.ReadMem(a[1], buf); err != nil {
		ctx.M.SetResult(-14)
		return
	}
	n, errno := ctx.G.VFS.Pwrite(int32(a[0]), buf, int64(a[3]))
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	ctx.M.SetResult(int64(n))
}

func handleLseek(ctx *Context) {
	a := ctx.Args(3)
	off, errno := ctx.G.VFS.Lseek(int32(a[0]), int64(a[1]), int(a[2]))
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	ctx.M.SetResult(off)
}

func handleGetdents64(ctx *Context) {
	a := ctx.Args(3)
	count := a[2]
	if count > 1<<20 {
		count = 1 << 20
	}
	buf := make([]byte, count)
	n, errno := ctx.G.VFS.Getdents64(int32(a[0]), buf)
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	if n > 0 {
		ctx.M.WriteMem(a[1], buf[:n])
	}
	ctx.M.SetResult(int64(n))
}

// writeStat encodes a minimal struct stat (the fields guest libc actually
// inspects: mode, size, ino) into the 128-byte riscv64 struct stat layout.
func writeStat(ctx *Context, addr uint64, e *vfs.Entry, ino uint64) {
	var buf [128]byte
	mode := e.Mode & 0o7777
	switch e.Type {
	case vfs.TypeDir:
		mode |= 0o040000
	case vfs.TypeSymlink:
		mode |= 0o120000
	case vfs.TypeFIFO:
		mode |= 0o010000
	case vfs.TypeChar:
		mode |= 0o020000
	case vfs.TypeBlock:
		mode |= 0o060000
	case vfs.TypeSocket:
		mode |= 0o140000
	default:
		mode |= 0o100000
	}
	binary.LittleEndian.PutUint64(buf[0:8], ino)    // st_dev
	binary.LittleEndian.PutUint64(buf[8:16], ino)   // st_ino
	binary.LittleEndian.PutUint32(buf[16:20], mode) // st_mode
	binary.LittleEndian.PutUint32(buf[20:24], 1)    // st_nlink
	binary.LittleEndian.PutUint32(buf[24:28], e.UID)
	binary.LittleEndian.PutUint32(buf[28:32], e.GID)
	binary.LittleEndian.PutUint64(buf[48:56], uint64(len(e.Content))) // st_size
	binary.LittleEndian.PutUint64(buf[56:64], 512)                    // st_blksize-ish filler
	binary.LittleEndian.PutUint64(buf[88:96], uint64(e.MTime))        // st_mtime
	ctx.M.WriteMem(addr, buf[:])
}

func handleNewfstatat(ctx *Context) {
	a := ctx.Args(4)
	path, err := resolvePathArg(ctx, a[1])
	if err != nil {
		ctx.M.SetResult(-14)
		return
	}
	var id vfs.EntryID
	var errno int
	if path == "" {
		// AT_EMPTY_PATH against a fd: not supported by this VFS's handle
		// model directly, so fall back to resolving "." which lands on cwd.
		id, errno = ctx.G.VFS.Resolve(".")
	} else {
		id, errno = ctx.G.VFS.Resolve(path)
	}
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	writeStat(ctx, a[2], ctx.G.VFS.Get(id), uint64(id))
	ctx.M.SetResult(0)
}

func handleFstat(ctx *Context) {
	a := ctx.Args(2)
	e, ino, errno := ctx.G.VFS.Fstat(int32(a[0]))
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	writeStat(ctx, a[1], e, ino)
	ctx.M.SetResult(0)
}

func handleStatx(ctx *Context) {
	a := ctx.Args(5)
	path, err := resolvePathArg(ctx, a[1])
	if err != nil {
		ctx.M.SetResult(-14)
		return
	}
	id, errno := ctx.G.VFS.Resolve(path)
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	var buf [256]byte
	e := ctx.G.VFS.Get(id)
	binary.LittleEndian.PutUint64(buf[40:48], uint64(len(e.Content)))
	ctx.M.WriteMem(a[4], buf[:])
	ctx.M.SetResult(0)
}

func handleReadlinkat(ctx *Context) {
	a := ctx.Args(4)
	path, err := resolvePathArg(ctx, a[1])
	if err != nil {
		ctx.M.SetResult(-14)
		return
	}
	target, errno := ctx.G.VFS.Readlink(path)
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	b := []byte(target)
	if uint64(len(b)) > a[3] {
		b = b[:a[3]]
	}
	ctx.M.WriteMem(a[2], b)
	ctx.M.SetResult(int64(len(b)))
}

func handleFaccessat(ctx *Context) {
	a := ctx.Args(4)
	path, err := resolvePathArg(ctx, a[1])
	if err != nil {
		ctx.M.SetResult(-14)
		return
	}
	_, errno := ctx.G.VFS.Resolve(path)
	ctx.M.SetResult(int64(errno))
}

func handleGetcwd(ctx *Context) {
	a := ctx.Args(2)
	cwd := ctx.G.VFS.Getcwd()
	b := append([]byte(cwd), 0)
	if uint64(len(b)) > a[1] {
		ctx.M.SetResult(-34) // ERANGE
		return
	}
	ctx.M.WriteMem(a[0], b)
	ctx.M.SetResult(int64(len(b)))
}

func handleChdir(ctx *Context) {
	a := ctx.Args(1)
	path, err := resolvePathArg(ctx, a[0])
	if err != nil {
		ctx.M.SetResult(-14)
		return
	}
	ctx.M.SetResult(int64(ctx.G.VFS.Chdir(path)))
}

func handleMkdirat(ctx *Context) {
	a := ctx.Args(3)
	path, err := resolvePathArg(ctx, a[1])
	if err != nil {
		ctx.M.SetResult(-14)
		return
	}
	ctx.M.SetResult(int64(ctx.G.VFS.Mkdir(path, uint32(a[2]))))
}

func handleUnlinkat(ctx *Context) {
	a := ctx.Args(3)
	path, err := resolvePathArg(ctx, a[1])
	if err != nil {
		ctx.M.SetResult(-14)
		return
	}
	const atRemovedir = 0x200
	if a[2]&atRemovedir != 0 {
		ctx.M.SetResult(int64(ctx.G.VFS.Rmdir(path)))
		return
	}
	ctx.M.SetResult(int64(ctx.G.VFS.Unlink(path)))
}

func handleSymlinkat(ctx *Context) {
	a := ctx.Args(3)
	target, err := resolvePathArg(ctx, a[0])
	if err != nil {
		ctx.M.SetResult(-14)
		return
	}
	linkPath, err := resolvePathArg(ctx, a[2])
	if err != nil {
		ctx.M.SetResult(-14)
		return
	}
	ctx.M.SetResult(int64(ctx.G.VFS.Symlink(target, linkPath)))
}

func handleLinkat(ctx *Context) {
	a := ctx.Args(5)
	oldPath, err := resolvePathArg(ctx, a[1])
	if err != nil {
		ctx.M.SetResult(-14)
		return
	}
	newPath, err := resolvePathArg(ctx, a[3])
	if err != nil {
		ctx.M.SetResult(-14)
		return
	}
	ctx.M.SetResult(int64(ctx.G.VFS.Link(oldPath, newPath)))
}

func handleRenameat(ctx *Context) {
	a := ctx.Args(4)
	oldPath, err := resolvePathArg(ctx, a[1])
	if err != nil {
		ctx.M.SetResult(-14)
		return
	}
	newPath, err := resolvePathArg(ctx, a[3])
	if err != nil {
		ctx.M.SetResult(-14)
		return
	}
	ctx.M.SetResult(int64(ctx.G.VFS.Rename(oldPath, newPath)))
}

func handleFtruncate(ctx *Context) {
	a := ctx.Args(2)
	ctx.M.SetResult(int64(ctx.G.VFS.Ftruncate(int32(a[0]), int64(a[1]))))
}

func handleDup(ctx *Context) {
	a := ctx.Args(1)
	fd, errno := ctx.G.VFS.Dup(int32(a[0]))
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	ctx.M.SetResult(int64(fd))
}

func handleDup3(ctx *Context) {
	a := ctx.Args(3)
	fd, errno := ctx.G.VFS.Dup2(int32(a[0]), int32(a[1]))
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	ctx.M.SetResult(int64(fd))
}

const (
	fcntlDupfd        = 0
	fcntlGetfd        = 1
	fcntlSetfd        = 2
	fcntlGetfl        = 3
	fcntlSetfl        = 4
	fcntlDupfdCloexec = 1030
)

func handleFcntl(ctx *Context) {
	a := ctx.Args(3)
	switch a[1] {
	case fcntlDupfd, fcntlDupfdCloexec:
		fd, errno := ctx.G.VFS.Dup(int32(a[0]))
		if errno != 0 {
			ctx.M.SetResult(int64(errno))
			return
		}
		ctx.M.SetResult(int64(fd))
	case fcntlGetfd, fcntlSetfd, fcntlGetfl, fcntlSetfl:
		ctx.M.SetResult(0)
	default:
		ctx.M.SetResult(0)
	}
}

func handleSendfile(ctx *Context) {
	a := ctx.Args(4)
	outFD, inFD, count := int32(a[0]), int32(a[1]), a[3]
	if count > 1<<20 {
		count = 1 << 20
	}
	buf := make([]byte, count)
	n, errno := ctx.G.VFS.Read(inFD, buf)
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	wn, errno := ctx.G.VFS.Write(outFD, buf[:n])
	if errno != 0 {
		ctx.M.SetResult(int64(errno))
		return
	}
	ctx.M.SetResult(int64(wn))
}
