package hoard

import "io"

// Vault stores catalog snapshots off the local machine. All operations use
// io.Reader/io.Writer so large catalogs are never loaded into memory.
type Vault interface {
	// PutSnapshot stores a named snapshot for a catalog. size is the number
	// of bytes that will be read from r. version is stored alongside the
	// snapshot so restores can tell which operation it reflects.
	PutSnapshot(catalogID string, name string, r io.Reader, size int64, version int64) error

	// GetSnapshot writes the named snapshot of a catalog to w.
	GetSnapshot(catalogID string, name string, w io.Writer) error

	// SnapshotVersion returns the version stored with a snapshot, or 0 if
	// none has been stored.
	SnapshotVersion(catalogID string, name string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
