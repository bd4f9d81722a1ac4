package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"hoard-go/internal/hoard"
)

// FileSystemVault stores snapshots as files, typically on a mounted
// network share or removable disk:
//
//	<root>/
//	  snapshots/
//	    <catalogID>/
//	      <name>          (snapshot bytes)
//	      <name>.version  (decimal operation id)
type FileSystemVault struct {
	name string
	root string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	if err := os.MkdirAll(filepath.Join(root, "snapshots"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileSystemVault{name: name, root: root}, nil
}

func (v *FileSystemVault) path(catalogID, name string) (string, error) {
	key, err := snapshotKey(catalogID, name)
	if err != nil {
		return "", err
	}
	return filepath.Join(v.root, filepath.FromSlash(key)), nil
}

// PutSnapshot writes the snapshot and then its version file. Each write is
// atomic, so a reader sees either the old or the new snapshot.
func (v *FileSystemVault) PutSnapshot(catalogID, name string, r io.Reader, size int64, version int64) error {
	dest, err := v.path(catalogID, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}
	if err := writeFile(dest, r, size); err != nil {
		return err
	}
	versionData := strconv.FormatInt(version, 10)
	return writeFile(dest+".version", strings.NewReader(versionData), int64(len(versionData)))
}

// GetSnapshot copies a stored snapshot to w.
func (v *FileSystemVault) GetSnapshot(catalogID, name string, w io.Writer) error {
	src, err := v.path(catalogID, name)
	if err != nil {
		return err
	}
	f, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrSnapshotNotFound.New("%s in vault %s", src, v.name)
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return nil
}

// SnapshotVersion returns the version stored with a snapshot, or 0 if no
// version file exists.
func (v *FileSystemVault) SnapshotVersion(catalogID, name string) (int64, error) {
	p, err := v.path(catalogID, name)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(p + ".version")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup verifies that the vault root is a writable directory.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}
	probe, err := os.CreateTemp(filepath.Join(v.root, "snapshots"), ".probe-*")
	if err != nil {
		return fmt.Errorf("vault root not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// writeFile writes r to destPath through a temp file in the same directory
// and renames it into place.
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := checkSize(expectedSize, written); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

var _ hoard.Vault = (*FileSystemVault)(nil)
