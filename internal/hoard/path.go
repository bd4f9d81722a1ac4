package hoard

import (
	"io/fs"
	"strings"
	"unicode/utf8"
)

// Path represents a validated local source path with cached metadata.
// Path objects are created by FilesystemManager.Resolve.
type Path struct {
	absPath string
	isDir   bool
	info    fs.FileInfo
}

// NewPath creates a Path from its components.
// This is primarily for use by FilesystemManager implementations.
func NewPath(absPath string, isDir bool, info fs.FileInfo) *Path {
	return &Path{absPath: absPath, isDir: isDir, info: info}
}

func (p *Path) String() string { return p.absPath }

func (p *Path) IsDir() bool { return p.isDir }

// Info returns the stat info captured when the path was resolved.
func (p *Path) Info() fs.FileInfo { return p.info }

// CanonicalPath validates a virtual path. The result starts with "/", has
// no empty, "." or ".." components and no trailing slash, except for the
// root "/" itself.
func CanonicalPath(raw string) (string, error) {
	if raw == "" {
		return "", ErrInvalidPath.New("empty path")
	}
	if !utf8.ValidString(raw) {
		return "", ErrInvalidPath.New("path is not valid UTF-8: %q", raw)
	}
	if !strings.HasPrefix(raw, "/") {
		return "", ErrInvalidPath.New("path must be absolute: %q", raw)
	}
	if raw == "/" {
		return raw, nil
	}
	trimmed := strings.TrimSuffix(raw, "/")
	for _, part := range strings.Split(trimmed[1:], "/") {
		switch part {
		case "":
			return "", ErrInvalidPath.New("empty component in %q", raw)
		case ".", "..":
			return "", ErrInvalidPath.New("relative component %q in %q", part, raw)
		}
	}
	return trimmed, nil
}

// FilePath is CanonicalPath for paths that must name a file: the root and
// anything written with a trailing slash are rejected.
func FilePath(raw string) (string, error) {
	if strings.HasSuffix(raw, "/") {
		return "", ErrInvalidPath.New("file path cannot end with '/': %q", raw)
	}
	return CanonicalPath(raw)
}

// DirPrefix returns the range prefix for entries below dir: the canonical
// path with exactly one trailing slash.
func DirPrefix(dir string) string {
	if dir == "/" {
		return dir
	}
	return dir + "/"
}

// Ancestors returns the proper ancestors of a canonical path, excluding
// the root, shortest first.
func Ancestors(p string) []string {
	var out []string
	for i := 1; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[:i])
		}
	}
	return out
}
