package vfs

import "encoding/binary"

// Read reads up to len(buf) bytes from fd at its current offset, advancing
// it. Pipe reads trim consumed bytes from the front of Content so a reader
// and writer sharing the same FIFO entry see a simple append/consume queue.
func (fs *FS) Read(fd int32, buf []byte) (int, int) {
	fh, errno := fs.fileHandle(fd)
	if errno != 0 {
		return 0, errno
	}
	e := fs.Get(fh.Entry)
	if e.Type == TypeDir {
		return 0, EISDIR
	}
	if e.Type == TypeFIFO {
		n := copy(buf, e.Content)
		e.Content = e.Content[n:]
		return n, 0
	}
	if fh.Pos >= int64(len(e.Content)) {
		return 0, 0
	}
	n := copy(buf, e.Content[fh.Pos:])
	fh.Pos += int64(n)
	return n, 0
}

// Pread reads without disturbing fd's stored offset.
func (fs *FS) Pread(fd int32, buf []byte, offset int64) (int, int) {
	fh, errno := fs.fileHandle(fd)
	if errno != 0 {
		return 0, errno
	}
	e := fs.Get(fh.Entry)
	if e.Type == TypeDir {
		return 0, EISDIR
	}
	if offset >= int64(len(e.Content)) {
		return 0, 0
	}
	return copy(buf, e.Content[offset:]), 0
}

// ReadAll returns the full content of a regular file by EntryID, used by
// the exec engine which resolves a path to an id before loading it as an
// ELF image rather than going through an fd.
func (fs *FS) ReadAll(id EntryID) ([]byte, int) {
	e := fs.Get(id)
	if e.Type == TypeDir {
		return nil, EISDIR
	}
	return e.Content, 0
}

func (fs *FS) growTo(e *Entry, end int64) {
	if int64(len(e.Content)) < end {
		grown := make([]byte, end)
		copy(grown, e.Content)
		e.Content = grown
	}
}

// Write writes data to fd at its current offset (or end of file if the
// handle has OAPPEND), advancing the stored offset. Writing to a FIFO
// appends to the shared buffer instead of positional content.
func (fs *FS) Write(fd int32, data []byte) (int, int) {
	fh, errno := fs.fileHandle(fd)
	if errno != 0 {
		return 0, errno
	}
	e := fs.Get(fh.Entry)
	if e.Type == TypeDir {
		return 0, EISDIR
	}
	if e.Type == TypeFIFO {
		e.Content = append(e.Content, data...)
		return len(data), 0
	}
	if fh.Flags&OAPPEND != 0 {
		fh.Pos = int64(len(e.Content))
	}
	end := fh.Pos + int64(len(data))
	fs.growTo(e, end)
	copy(e.Content[fh.Pos:end], data)
	fh.Pos = end
	return len(data), 0
}

// Pwrite writes without disturbing fd's stored offset.
func (fs *FS) Pwrite(fd int32, data []byte, offset int64) (int, int) {
	fh, errno := fs.fileHandle(fd)
	if errno != 0 {
		return 0, errno
	}
	e := fs.Get(fh.Entry)
	if e.Type == TypeDir {
		return 0, EISDIR
	}
	end := offset + int64(len(data))
	fs.growTo(e, end)
	copy(e.Content[offset:end], data)
	return len(data), 0
}

const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

// Lseek repositions fd's offset per whence and returns the new offset.
func (fs *FS) Lseek(fd int32, offset int64, whence int) (int64, int) {
	fh, errno := fs.fileHandle(fd)
	if errno != 0 {
		return 0, errno
	}
	e := fs.Get(fh.Entry)
	var base int64
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = fh.Pos
	case SeekEnd:
		base = int64(len(e.Content))
	default:
		return 0, EINVAL
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, EINVAL
	}
	fh.Pos = newPos
	return newPos, 0
}

// Getdents64 encodes up to len(buf) bytes of Linux dirent64 records from
// dirFD's iteration cursor, advancing it by the number of entries emitted.
func (fs *FS) Getdents64(dirFD int32, buf []byte) (int, int) {
	dh, errno := fs.dirHandle(dirFD)
	if errno != 0 {
		return 0, errno
	}
	dirEntry := fs.Get(dh.Entry)

	written := 0
	for dh.Pos < len(dh.Names) {
		name := dh.Names[dh.Pos]
		childID, ok := dirEntry.Children[name]
		if !ok {
			dh.Pos++
			continue
		}
		child := fs.Get(childID)

		nameLen := len(name) + 1 // NUL terminator
		reclen := 19 + nameLen   // 8+8+2+1 header
		reclen = (reclen + 7) &^ 7

		if written+reclen > len(buf) {
			break
		}

		rec := buf[written : written+reclen]
		binary.LittleEndian.PutUint64(rec[0:8], uint64(childID)) // d_ino
		binary.LittleEndian.PutUint64(rec[8:16], uint64(written+reclen))
		binary.LittleEndian.PutUint16(rec[16:18], uint16(reclen))
		rec[18] = child.Type.DType()
		copy(rec[19:], name)
		for i := 19 + nameLen; i < reclen; i++ {
			rec[i] = 0
		}

		written += reclen
		dh.Pos++
	}
	return written, 0
}
