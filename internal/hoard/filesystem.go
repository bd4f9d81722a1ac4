package hoard

import (
	"io"
	"io/fs"
)

// SourceFile is an opened file being cataloged. ReadAt is used to sniff
// archive headers and to read zip central directories without consuming
// the sequential stream.
type SourceFile interface {
	io.Reader
	io.ReaderAt
	io.Closer
}

// FilesystemManager provides an interface for filesystem operations.
// It abstracts file access to enable testing without touching the real filesystem.
type FilesystemManager interface {
	// Resolve validates a raw path and returns a Path object.
	// It resolves the path to an absolute path, stats it, and validates
	// it's a regular file or directory (not a symlink, device, etc.).
	Resolve(rawPath string) (*Path, error)

	// Open opens a file for reading.
	Open(path *Path) (SourceFile, error)

	// Stat returns fresh file info for a path.
	Stat(path *Path) (fs.FileInfo, error)

	// FindFiles returns the regular files in a directory, sorted by path.
	// When recursive is true, subdirectories are descended into.
	FindFiles(path *Path, recursive bool) ([]*Path, error)

	// IsIgnored reports whether path matches a .hoardignore rule found
	// between root and the path's directory.
	IsIgnored(path *Path, root string) (bool, error)
}
