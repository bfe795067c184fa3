package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const rverc = ".rverc"

// FindRVERC walks up from startDir looking for a .rverc file.
// Returns the path to the file if found, or empty string and nil if not found.
func FindRVERC(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		candidate := filepath.Join(dir, rverc)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// ReadRVERC reads the pinned rootfs tar path from a .rverc file.
// The file is expected to contain just the path string (optionally with
// whitespace), resolved relative to the directory the .rverc lives in if
// it isn't already absolute.
func ReadRVERC(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading .rverc: %w", err)
	}
	rootfs := strings.TrimSpace(string(data))
	if rootfs == "" {
		return "", fmt.Errorf(".rverc is empty: %s", path)
	}
	if !filepath.IsAbs(rootfs) {
		rootfs = filepath.Join(filepath.Dir(path), rootfs)
	}
	return rootfs, nil
}

// WriteRVERC pins a rootfs tar path to a .rverc file in the given directory.
func WriteRVERC(dir, rootfsPath string) error {
	path := filepath.Join(dir, rverc)
	return os.WriteFile(path, []byte(rootfsPath+"\n"), 0o644)
}
