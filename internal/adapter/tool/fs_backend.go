package tool

import (
	"io/fs"
	"os"
)

// FilesystemBackend abstracts the file I/O the built-in tools perform.
type FilesystemBackend interface {
	// ReadFile reads the named file and returns its contents.
	ReadFile(path string) ([]byte, error)
	// WriteFile writes data to the named file with the given permissions.
	WriteFile(path string, data []byte, perm os.FileMode) error
	// ReadDir reads the named directory and returns its directory entries.
	ReadDir(path string) ([]os.DirEntry, error)
	// Stat returns file info for path, following symlinks.
	Stat(path string) (os.FileInfo, error)
	// MkdirAll creates path and any missing parents.
	MkdirAll(path string, perm os.FileMode) error
	// WalkDir walks the tree rooted at root in lexical order.
	WalkDir(root string, fn fs.WalkDirFunc) error
	// Name returns the backend identifier (e.g. "local").
	Name() string
}
