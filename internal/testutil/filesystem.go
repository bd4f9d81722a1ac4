package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"hoard-go/internal/hoard"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
	// ReadErr, when set, is returned by Read once FailAfter bytes were read.
	ReadErr   error
	FailAfter int
}

// MockFilesystemManager is an in-memory filesystem for testing.
type MockFilesystemManager struct {
	files   map[string]*MockFile
	ignored []string
	opened  int
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
	}
}

// AddFile adds a file to the mock filesystem.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.files[path] = &MockFile{
		Content:     content,
		Permissions: 0644,
		ModTime:     time.Now(),
	}
}

// AddFailingFile adds a file whose reads fail with err after failAfter bytes.
func (m *MockFilesystemManager) AddFailingFile(path string, content []byte, failAfter int, err error) {
	m.AddFile(path, content)
	m.files[path].ReadErr = err
	m.files[path].FailAfter = failAfter
}

// AddDirectory adds a directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.files[path] = &MockFile{
		Permissions: 0755,
		ModTime:     time.Now(),
		IsDirectory: true,
	}
}

// Ignore makes IsIgnored report true for base names matching pattern.
func (m *MockFilesystemManager) Ignore(pattern string) {
	m.ignored = append(m.ignored, pattern)
}

// OpenCount returns how many times Open succeeded.
func (m *MockFilesystemManager) OpenCount() int {
	return m.opened
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*hoard.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}
	file, ok := m.files[absPath]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", absPath)
	}
	return hoard.NewPath(absPath, file.IsDirectory, newMockFileInfo(absPath, file)), nil
}

func (m *MockFilesystemManager) Open(path *hoard.Path) (hoard.SourceFile, error) {
	file, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path.String())
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", path.String())
	}
	m.opened++
	return &mockSource{Reader: bytes.NewReader(file.Content), file: file}, nil
}

func (m *MockFilesystemManager) Stat(path *hoard.Path) (fs.FileInfo, error) {
	file, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path.String())
	}
	return newMockFileInfo(path.String(), file), nil
}

// FindFiles returns the regular files below dir, sorted by path.
func (m *MockFilesystemManager) FindFiles(dir *hoard.Path, recursive bool) ([]*hoard.Path, error) {
	prefix := strings.TrimSuffix(dir.String(), "/") + "/"
	var names []string
	for name, file := range m.files {
		if file.IsDirectory || !strings.HasPrefix(name, prefix) {
			continue
		}
		if !recursive && strings.Contains(name[len(prefix):], "/") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]*hoard.Path, len(names))
	for i, name := range names {
		paths[i] = hoard.NewPath(name, false, newMockFileInfo(name, m.files[name]))
	}
	return paths, nil
}

func (m *MockFilesystemManager) IsIgnored(p *hoard.Path, root string) (bool, error) {
	base := path.Base(p.String())
	for _, pattern := range m.ignored {
		ok, err := path.Match(pattern, base)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// mockSource serves reads from memory and can fail partway through.
type mockSource struct {
	*bytes.Reader
	file *MockFile
	read int
}

func (s *mockSource) Read(p []byte) (int, error) {
	if s.file.ReadErr != nil {
		remaining := s.file.FailAfter - s.read
		if remaining <= 0 {
			return 0, s.file.ReadErr
		}
		if len(p) > remaining {
			p = p[:remaining]
		}
	}
	n, err := s.Reader.Read(p)
	s.read += n
	return n, err
}

func (s *mockSource) Close() error { return nil }

type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func newMockFileInfo(p string, file *MockFile) *mockFileInfo {
	mode := file.Permissions
	if file.IsDirectory {
		mode |= fs.ModeDir
	}
	return &mockFileInfo{
		name:    filepath.Base(p),
		size:    int64(len(file.Content)),
		mode:    mode,
		modTime: file.ModTime,
		isDir:   file.IsDirectory,
	}
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

var (
	_ hoard.FilesystemManager = (*MockFilesystemManager)(nil)
	_ io.ReaderAt             = (*mockSource)(nil)
)
