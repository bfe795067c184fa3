package vfs

import "strings"

// Mkdir creates an empty directory at path.
func (fs *FS) Mkdir(path string, mode uint32) int {
	parentID, name, target, errno := fs.resolve(path, true)
	if errno != 0 {
		return errno
	}
	if target != 0 {
		return EEXIST
	}
	parent := fs.Get(parentID)
	if parent.Type != TypeDir {
		return ENOTDIR
	}
	id := fs.alloc(Entry{Name: name, Type: TypeDir, Mode: mode & 0o7777, Children: map[string]EntryID{}})
	fs.Get(parentID).Children[name] = id
	return 0
}

// Unlink removes a non-directory entry from its parent.
func (fs *FS) Unlink(path string) int {
	parentID, name, target, errno := fs.resolve(path, false)
	if errno != 0 {
		return errno
	}
	if target == 0 {
		return ENOENT
	}
	if fs.Get(target).Type == TypeDir {
		return EISDIR
	}
	delete(fs.Get(parentID).Children, name)
	return 0
}

// Rmdir removes an empty directory entry from its parent.
func (fs *FS) Rmdir(path string) int {
	parentID, name, target, errno := fs.resolve(path, false)
	if errno != 0 {
		return errno
	}
	if target == 0 {
		return ENOENT
	}
	e := fs.Get(target)
	if e.Type != TypeDir {
		return ENOTDIR
	}
	if len(e.Children) != 0 {
		return ENOTEMPTY
	}
	delete(fs.Get(parentID).Children, name)
	return 0
}

// Symlink creates a symlink entry at linkPath pointing at target.
func (fs *FS) Symlink(target, linkPath string) int {
	parentID, name, existing, errno := fs.resolve(linkPath, false)
	if errno != 0 {
		return errno
	}
	if existing != 0 {
		return EEXIST
	}
	parent := fs.Get(parentID)
	if parent.Type != TypeDir {
		return ENOTDIR
	}
	id := fs.alloc(Entry{Name: name, Type: TypeSymlink, LinkTarget: target, Mode: 0o777})
	fs.Get(parentID).Children[name] = id
	return 0
}

// Link creates a hard link: newPath's parent gets a child entry mapping to
// the same EntryID as oldPath, so the two names alias one inode.
func (fs *FS) Link(oldPath, newPath string) int {
	oldID, errno := fs.Resolve(oldPath)
	if errno != 0 {
		return errno
	}
	if fs.Get(oldID).Type == TypeDir {
		return EISDIR
	}
	parentID, name, existing, errno := fs.resolve(newPath, false)
	if errno != 0 {
		return errno
	}
	if existing != 0 {
		return EEXIST
	}
	parent := fs.Get(parentID)
	if parent.Type != TypeDir {
		return ENOTDIR
	}
	fs.Get(parentID).Children[name] = oldID
	return 0
}

// Rename moves the entry at oldPath to newPath, overwriting an empty
// directory or non-directory target at newPath if one exists.
func (fs *FS) Rename(oldPath, newPath string) int {
	oldParentID, oldName, oldTarget, errno := fs.resolve(oldPath, false)
	if errno != 0 {
		return errno
	}
	if oldTarget == 0 {
		return ENOENT
	}
	newParentID, newName, newTarget, errno := fs.resolve(newPath, false)
	if errno != 0 {
		return errno
	}
	if newTarget != 0 {
		if fs.Get(newTarget).Type == TypeDir && len(fs.Get(newTarget).Children) != 0 {
			return ENOTEMPTY
		}
	}
	newParent := fs.Get(newParentID)
	if newParent.Type != TypeDir {
		return ENOTDIR
	}
	fs.Get(newParentID).Children[newName] = oldTarget
	fs.Get(oldTarget).Name = newName
	delete(fs.Get(oldParentID).Children, oldName)
	return 0
}

// Truncate sets path's regular-file content length to size, zero-padding or
// trimming as needed.
func (fs *FS) Truncate(path string, size int64) int {
	target, errno := fs.Resolve(path)
	if errno != 0 {
		return errno
	}
	return fs.truncateEntry(target, size)
}

// Ftruncate is Truncate by fd.
func (fs *FS) Ftruncate(fd int32, size int64) int {
	fh, errno := fs.fileHandle(fd)
	if errno != 0 {
		return errno
	}
	return fs.truncateEntry(fh.Entry, size)
}

func (fs *FS) truncateEntry(id EntryID, size int64) int {
	e := fs.Get(id)
	if e.Type == TypeDir {
		return EISDIR
	}
	if size < 0 {
		return EINVAL
	}
	if int64(len(e.Content)) == size {
		return 0
	}
	if int64(len(e.Content)) > size {
		e.Content = e.Content[:size]
		return 0
	}
	grown := make([]byte, size)
	copy(grown, e.Content)
	e.Content = grown
	return 0
}

// Readlink returns a symlink's target string.
func (fs *FS) Readlink(path string) (string, int) {
	id, errno := fs.ResolveNoFollow(path)
	if errno != 0 {
		return "", errno
	}
	e := fs.Get(id)
	if e.Type != TypeSymlink {
		return "", EINVAL
	}
	return e.LinkTarget, 0
}

// Getcwd returns the absolute path of the current working directory,
// reconstructed by walking root's subtree for an entry matching fs.cwd
// (entries carry no parent pointer, so this is a breadth search rather than
// an upward walk).
func (fs *FS) Getcwd() string {
	if fs.cwd == RootID {
		return "/"
	}
	path, ok := fs.findPath(RootID, "/", fs.cwd)
	if !ok {
		return "/"
	}
	return path
}

func (fs *FS) findPath(from EntryID, prefix string, want EntryID) (string, bool) {
	e := fs.Get(from)
	if from == want {
		return prefix, true
	}
	if e.Type != TypeDir {
		return "", false
	}
	for _, name := range sortedNames(e.Children) {
		childID := e.Children[name]
		childPrefix := prefix
		if !strings.HasSuffix(childPrefix, "/") {
			childPrefix += "/"
		}
		childPrefix += name
		if p, ok := fs.findPath(childID, childPrefix, want); ok {
			return p, true
		}
	}
	return "", false
}

// Chdir sets the current working directory to path.
func (fs *FS) Chdir(path string) int {
	id, errno := fs.Resolve(path)
	if errno != 0 {
		return errno
	}
	if fs.Get(id).Type != TypeDir {
		return ENOTDIR
	}
	fs.cwd = id
	return 0
}
