package model

import (
	"database/sql"
	"time"
)

// Collection is a named, flat namespace of virtual paths.
type Collection struct {
	ID        ID
	Name      string
	CreatedAt time.Time
}

// Disk is a physical device identified by the serial number the OS reports.
type Disk struct {
	ID           ID
	SerialNumber string
	Label        string // operator-chosen, unique
	CreatedAt    time.Time
}

// Partition is a filesystem on a Disk, identified by its filesystem UUID.
// DiskID is bound when the partition is registered and never changes.
type Partition struct {
	ID        ID
	DiskID    ID
	UUID      string
	Capacity  int64 // bytes
	CreatedAt time.Time
}

// File is a cataloged file at a virtual path inside a collection.
type File struct {
	ID           ID
	CollectionID ID
	Path         string
	Size         int64
	CreatedAt    time.Time
}

// FileHash is one digest of a File's content.
type FileHash struct {
	ID        ID
	FileID    ID
	Algorithm string
	Value     []byte
}

// FileArchiveEntry is a member of a File that is a recognized archive.
type FileArchiveEntry struct {
	ID     ID
	FileID ID
	Path   string
	Size   int64
}

// FilePlacement records that a File is stored on a Partition.
type FilePlacement struct {
	PartitionID ID
	FileID      ID
	CreatedAt   time.Time
}

// CatalogOperation is the audit record of one catalog-mutating command.
type CatalogOperation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Operation  string
	Parameters string
	Status     string
}
