package hoard

import (
	"context"
	"time"

	"hoard-go/internal/model"
)

// Catalog is the durable store of collections, media and files.
// Lookups return nil and no error when nothing matches. Every mutating
// method is a single transaction: it either commits fully or leaves the
// catalog unchanged.
type Catalog interface {
	// InsertCollection fails with ErrDuplicateName if the name is taken.
	InsertCollection(ctx context.Context, c *model.Collection) error
	FindCollectionByName(ctx context.Context, name string) (*model.Collection, error)
	ListCollections(ctx context.Context) ([]*model.Collection, error)

	// InsertDisk fails with ErrDuplicateSerial or ErrDuplicateLabel.
	InsertDisk(ctx context.Context, d *model.Disk) error
	FindDiskBySerial(ctx context.Context, serial string) (*model.Disk, error)
	ListDisks(ctx context.Context) ([]*model.Disk, error)

	// InsertPartition fails with ErrDuplicateUUID or ErrUnknownDisk.
	InsertPartition(ctx context.Context, p *model.Partition) error
	FindPartitionByUUID(ctx context.Context, uuid string) (*model.Partition, error)
	FindPartitionByID(ctx context.Context, id model.ID) (*model.Partition, error)
	ListPartitions(ctx context.Context) ([]*model.Partition, error)

	// IngestFile writes the file, its hashes, its archive entries and its
	// placement atomically. It fails with ErrDuplicatePath, ErrPathConflict,
	// ErrUnknownCollection or ErrUnknownPartition.
	IngestFile(ctx context.Context, rec *IngestRecord) error

	// AttachFile records an additional placement for an existing file.
	// It fails with ErrUnknownFile, ErrUnknownPartition or ErrDuplicatePlacement.
	AttachFile(ctx context.Context, placement *model.FilePlacement) error

	FindFileByPath(ctx context.Context, collectionID model.ID, path string) (*model.File, error)

	// ListDirectory returns the files that are immediate children of dir,
	// ordered by path. Names starting with "." are skipped unless all is set.
	ListDirectory(ctx context.Context, collectionID model.ID, dir string, all bool) ([]*model.File, error)

	// WalkFiles calls fn for every file below q.Prefix matching q, in path
	// order, one row at a time.
	WalkFiles(ctx context.Context, collectionID model.ID, q FindQuery, fn func(*model.File) error) error

	FileHashes(ctx context.Context, fileID model.ID) ([]*model.FileHash, error)
	FileArchiveEntries(ctx context.Context, fileID model.ID) ([]*model.FileArchiveEntry, error)
	FilePlacements(ctx context.Context, fileID model.ID) ([]*PlacementDetail, error)
	FindFilesByHash(ctx context.Context, algorithm string, value []byte) ([]*FileMatch, error)

	// Operation history

	CreateOperation(ctx context.Context, operation, parameters string) (*model.CatalogOperation, error)
	FinishOperation(ctx context.Context, id int64, status string) error
	ListOperations(ctx context.Context, limit int) ([]*model.CatalogOperation, error)
	MaxOperationID(ctx context.Context) (int64, error)

	Close() error
}

// IngestRecord is everything written for one ingested file.
type IngestRecord struct {
	File      model.File
	Hashes    []model.FileHash
	Entries   []model.FileArchiveEntry
	Placement model.FilePlacement
}

// FindQuery selects files below a directory. Depths are relative to Prefix:
// a direct child has depth 1. Name is matched against the basename and
// Path against the full path, both as regular expressions.
type FindQuery struct {
	Prefix   string
	MinDepth int // 0 means no lower bound
	MaxDepth int // 0 means no upper bound
	Name     string
	Path     string
}

// PlacementDetail is a placement joined with its partition and disk.
type PlacementDetail struct {
	Partition model.Partition
	Disk      model.Disk
	PlacedAt  time.Time
}

// FileMatch is a file together with the collection it belongs to.
type FileMatch struct {
	File       model.File
	Collection model.Collection
}
