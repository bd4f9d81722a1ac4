package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"hoard-go/internal/hoard"
)

// MemoryVault keeps snapshots in memory. It is safe for concurrent use and
// mostly useful for tests and dry runs.
type MemoryVault struct {
	name      string
	snapshots map[string][]byte
	versions  map[string]int64
	mu        sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:      name,
		snapshots: make(map[string][]byte),
		versions:  make(map[string]int64),
	}
}

// PutSnapshot stores a snapshot, replacing any earlier one under the same name.
func (m *MemoryVault) PutSnapshot(catalogID, name string, r io.Reader, size int64, version int64) error {
	key, err := snapshotKey(catalogID, name)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	if err := checkSize(size, int64(len(data))); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[key] = data
	m.versions[key] = version
	return nil
}

// GetSnapshot writes a stored snapshot to w.
func (m *MemoryVault) GetSnapshot(catalogID, name string, w io.Writer) error {
	key, err := snapshotKey(catalogID, name)
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.snapshots[key]
	if !ok {
		return ErrSnapshotNotFound.New("%s in vault %s", key, m.name)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// SnapshotVersion returns the version stored with a snapshot, or 0.
func (m *MemoryVault) SnapshotVersion(catalogID, name string) (int64, error) {
	key, err := snapshotKey(catalogID, name)
	if err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[key], nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

var _ hoard.Vault = (*MemoryVault)(nil)
