// Package vfs implements the in-memory filesystem the guest program sees:
// an index-arena of inode-like Entries, a per-session fd table, tar
// import/export, and path resolution with symlink following. No entry is
// ever freed mid-session — the arena only grows — so EntryID values never
// need generation counters to stay safe to hold across hard links and pipe
// aliasing.
package vfs

import (
	"sort"
	"strings"
)

// EntryID indexes into FS.entries. The zero value is never a valid id;
// RootID is always 1.
type EntryID uint32

const RootID EntryID = 1

// Type tags what kind of inode an Entry represents.
type Type uint8

const (
	TypeRegular Type = iota
	TypeDir
	TypeSymlink
	TypeFIFO
	TypeChar
	TypeBlock
	TypeSocket
)

// DType returns the getdents64 d_type value for this entry type.
func (t Type) DType() uint8 {
	switch t {
	case TypeRegular:
		return 8
	case TypeDir:
		return 4
	case TypeSymlink:
		return 10
	case TypeChar:
		return 2
	case TypeBlock:
		return 6
	case TypeFIFO:
		return 1
	case TypeSocket:
		return 12
	default:
		return 0 // DT_UNKNOWN
	}
}

// Entry is the inode: shared by identity so hard links and pipe ends alias
// the same object. A directory's Children is non-nil iff Type == TypeDir;
// Content is only meaningful for regular files and FIFOs.
type Entry struct {
	Name        string
	Type        Type
	Mode        uint32
	UID, GID    uint32
	MTime       int64
	LinkTarget  string // symlink target
	Content     []byte
	Children    map[string]EntryID // nil unless Type == TypeDir
	childrenKey []string           // insertion order, for deterministic tar output
}

// FS is the whole virtual filesystem: the entry arena, fd table, and
// current-working-directory state for a single guest process family.
type FS struct {
	entries []Entry // index 0 unused, RootID = 1
	fds     map[int32]any
	nextFD  int32
	cwd     EntryID
}

// New creates an empty FS with just a root directory.
func New() *FS {
	fs := &FS{
		entries: make([]Entry, 2), // [0] unused, [1] root
		fds:     make(map[int32]any),
		nextFD:  3,
		cwd:     RootID,
	}
	fs.entries[RootID] = Entry{
		Name:     "/",
		Type:     TypeDir,
		Mode:     0o755,
		Children: map[string]EntryID{},
	}
	return fs
}

func (fs *FS) alloc(e Entry) EntryID {
	fs.entries = append(fs.entries, e)
	return EntryID(len(fs.entries) - 1)
}

// Get returns a pointer to the entry for id. Callers within the package may
// mutate through it; external callers should prefer the operation methods.
func (fs *FS) Get(id EntryID) *Entry {
	return &fs.entries[id]
}

// splitPath breaks "/a/b/c" into ["a","b","c"]; an absolute path always
// starts resolution at root, a relative one at cwd.
func splitPath(path string) (absolute bool, parts []string) {
	absolute = strings.HasPrefix(path, "/")
	for _, p := range strings.Split(path, "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	return
}

func sortedNames(children map[string]EntryID) []string {
	names := make([]string, 0, len(children))
	for n := range children {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
