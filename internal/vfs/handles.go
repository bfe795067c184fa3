package vfs

// Open flag bits, matching the Linux values the syscalls package passes
// through unmodified.
const (
	OAccMode = 0o3
	ORDONLY  = 0o0
	OWRONLY  = 0o1
	ORDWR    = 0o2
	OCREAT   = 0o100
	OEXCL    = 0o200
	OTRUNC   = 0o1000
	OAPPEND  = 0o2000
	ODIRECT  = 0o40000
)

// FileHandle is an open regular/FIFO/device file: a reference to an Entry,
// a byte offset, and the flags it was opened with.
type FileHandle struct {
	Entry EntryID
	Path  string // debug path, as passed to open
	Flags int32
	Pos   int64
	// PipeEnd is only meaningful when Entry.Type == TypeFIFO: true for the
	// read end, false for the write end.
	PipeEnd bool
	IsRead  bool
}

// DirHandle is an open directory: a sorted snapshot of child names taken at
// opendir time and an iteration cursor.
type DirHandle struct {
	Entry EntryID
	Names []string
	Pos   int
}

func (fs *FS) allocFD() int32 {
	fd := fs.nextFD
	fs.nextFD++
	return fd
}

// Open resolves path and returns a new fd, honouring CREAT/EXCL/TRUNC/APPEND.
func (fs *FS) Open(path string, flags int32, mode uint32) (int32, int) {
	parentID, name, target, errno := fs.resolve(path, true)
	if errno != 0 {
		return 0, errno
	}

	if target == 0 {
		if flags&OCREAT == 0 {
			return 0, ENOENT
		}
		parent := fs.Get(parentID)
		if parent.Type != TypeDir {
			return 0, ENOTDIR
		}
		newID := fs.alloc(Entry{Name: name, Type: TypeRegular, Mode: mode & 0o7777})
		parent = fs.Get(parentID)
		parent.Children[name] = newID
		target = newID
	} else if flags&OCREAT != 0 && flags&OEXCL != 0 {
		return 0, EEXIST
	}

	e := fs.Get(target)
	if e.Type == TypeDir && (flags&OAccMode) != ORDONLY {
		return 0, EISDIR
	}
	if flags&OTRUNC != 0 && e.Type == TypeRegular {
		e.Content = nil
	}

	pos := int64(0)
	if flags&OAPPEND != 0 {
		pos = int64(len(e.Content))
	}

	fd := fs.allocFD()
	fs.fds[fd] = &FileHandle{Entry: target, Path: path, Flags: flags, Pos: pos}
	return fd, 0
}

// OpenDir resolves path as a directory and returns a directory fd.
func (fs *FS) OpenDir(path string) (int32, int) {
	target, errno := fs.Resolve(path)
	if errno != 0 {
		return 0, errno
	}
	e := fs.Get(target)
	if e.Type != TypeDir {
		return 0, ENOTDIR
	}
	fd := fs.allocFD()
	fs.fds[fd] = &DirHandle{Entry: target, Names: sortedNames(e.Children)}
	return fd, 0
}

// PipeOpen registers an existing entry (expected TypeFIFO) as a new fd for
// one end of a pipe.
func (fs *FS) PipeOpen(entry EntryID, readEnd bool) int32 {
	fd := fs.allocFD()
	fs.fds[fd] = &FileHandle{Entry: entry, PipeEnd: readEnd, IsRead: readEnd}
	return fd
}

// Pipe creates an unnamed FIFO entry and opens both ends of it, returning
// the read-end and write-end fds.
func (fs *FS) Pipe() (readFD, writeFD int32, errno int) {
	id := fs.alloc(Entry{Name: "", Type: TypeFIFO})
	readFD = fs.PipeOpen(id, true)
	writeFD = fs.PipeOpen(id, false)
	return readFD, writeFD, 0
}

// Fstat returns the Entry and a stable pseudo-inode number (its EntryID)
// behind fd, regardless of whether it was opened via Open or OpenDir.
func (fs *FS) Fstat(fd int32) (*Entry, uint64, int) {
	h, ok := fs.fds[fd]
	if !ok {
		return nil, 0, EBADF
	}
	switch v := h.(type) {
	case *FileHandle:
		return fs.Get(v.Entry), uint64(v.Entry), 0
	case *DirHandle:
		return fs.Get(v.Entry), uint64(v.Entry), 0
	default:
		return nil, 0, EBADF
	}
}

// OpenFDs returns every currently open fd, in no particular order. Used by
// the fork engine to know which fds a vfork child opened and must have
// closed again on restore.
func (fs *FS) OpenFDs() []int32 {
	out := make([]int32, 0, len(fs.fds))
	for fd := range fs.fds {
		out = append(out, fd)
	}
	return out
}

// Close releases fd. ENOENT semantics for a stale fd map to EBADF.
func (fs *FS) Close(fd int32) int {
	if _, ok := fs.fds[fd]; !ok {
		return EBADF
	}
	delete(fs.fds, fd)
	return 0
}

// Dup duplicates fd onto the next descriptor number the allocator has not
// yet handed out; numbers freed by Close are not reused.
func (fs *FS) Dup(fd int32) (int32, int) {
	h, ok := fs.fds[fd]
	if !ok {
		return 0, EBADF
	}
	newFD := fs.allocFD()
	fs.fds[newFD] = cloneHandle(h)
	return newFD, 0
}

// Dup2 duplicates oldFD onto newFD, closing newFD first if already open.
func (fs *FS) Dup2(oldFD, newFD int32) (int32, int) {
	h, ok := fs.fds[oldFD]
	if !ok {
		return 0, EBADF
	}
	if oldFD == newFD {
		return newFD, 0
	}
	fs.fds[newFD] = cloneHandle(h)
	if newFD >= fs.nextFD {
		fs.nextFD = newFD + 1
	}
	return newFD, 0
}

func cloneHandle(h any) any {
	switch v := h.(type) {
	case *FileHandle:
		cp := *v
		return &cp
	case *DirHandle:
		cp := *v
		cp.Names = append([]string(nil), v.Names...)
		return &cp
	default:
		return h
	}
}

func (fs *FS) fileHandle(fd int32) (*FileHandle, int) {
	h, ok := fs.fds[fd]
	if !ok {
		return nil, EBADF
	}
	fh, ok := h.(*FileHandle)
	if !ok {
		return nil, EBADF
	}
	return fh, 0
}

func (fs *FS) dirHandle(fd int32) (*DirHandle, int) {
	h, ok := fs.fds[fd]
	if !ok {
		return nil, EBADF
	}
	dh, ok := h.(*DirHandle)
	if !ok {
		return nil, EBADF
	}
	return dh, 0
}
