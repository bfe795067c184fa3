package vfs

const maxSymlinkDepth = 16

// resolve walks path from root (if absolute) or cwd (if relative), following
// symlinks for every component including the last unless followLast is
// false (the lstat case — only the final component is left undereferenced).
// Returns the id of the parent directory, the final component name, and the
// resolved target id (0 if the final component does not exist).
func (fs *FS) resolve(path string, followLast bool) (parent EntryID, name string, target EntryID, errno int) {
	absolute, parts := splitPath(path)
	cur := fs.cwd
	if absolute {
		cur = RootID
	}
	if len(parts) == 0 {
		return 0, "", RootID, 0
	}

	depth := 0
	for i := 0; i < len(parts); i++ {
		comp := parts[i]
		isLast := i == len(parts)-1

		e := fs.Get(cur)
		if e.Type != TypeDir {
			return 0, "", 0, ENOTDIR
		}

		switch comp {
		case "..":
			// no parent pointers are tracked, so ".." keeps cur unchanged
			// in every directory, not only at root: entries do not store a
			// parent id (shared-by-identity aliasing means a single entry
			// can have multiple parents).
			if isLast {
				return cur, "..", cur, 0
			}
			continue
		}

		childID, ok := e.Children[comp]
		if !ok {
			if isLast {
				return cur, comp, 0, 0
			}
			return 0, "", 0, ENOENT
		}

		child := fs.Get(childID)
		if child.Type == TypeSymlink && (!isLast || followLast) {
			depth++
			if depth > maxSymlinkDepth {
				return 0, "", 0, ELOOP
			}
			target := child.LinkTarget
			absTarget, next := splitPath(target)
			if absTarget {
				cur = RootID
			}
			rest := append(append([]string{}, next...), parts[i+1:]...)
			parts = rest
			i = -1
			continue
		}

		if isLast {
			return cur, comp, childID, 0
		}
		cur = childID
	}
	return 0, "", 0, ENOENT
}

// Resolve returns the EntryID for path, following all symlinks including
// the final component.
func (fs *FS) Resolve(path string) (EntryID, int) {
	_, _, target, errno := fs.resolve(path, true)
	if errno != 0 {
		return 0, errno
	}
	if target == 0 {
		return 0, ENOENT
	}
	return target, 0
}

// ResolveNoFollow resolves path but does not dereference a symlink at the
// final component (the lstat case).
func (fs *FS) ResolveNoFollow(path string) (EntryID, int) {
	_, _, target, errno := fs.resolve(path, false)
	if errno != 0 {
		return 0, errno
	}
	if target == 0 {
		return 0, ENOENT
	}
	return target, 0
}
