package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hoard-go/internal/database/migrations"
	"hoard-go/internal/hoard"
	"hoard-go/internal/model"
)

// SQLiteCatalog implements hoard.Catalog on a SQLite file.
type SQLiteCatalog struct {
	db      *sql.DB
	queries *Queries
	path    string
}

// NewSQLiteCatalog opens the catalog at path, which can be a file path or
// ":memory:". The schema is not touched; see Migrate and CheckMigrations.
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteCatalog{
		db:      db,
		queries: New(db),
		path:    path,
	}, nil
}

// NewSQLiteCatalogFromDB wraps an existing connection. The caller is
// responsible for foreign keys and transaction locking on db.
func NewSQLiteCatalogFromDB(db *sql.DB) *SQLiteCatalog {
	return &SQLiteCatalog{
		db:      db,
		queries: New(db),
	}
}

// OpenConnection opens a SQLite connection with foreign keys enforced and
// write transactions taking the lock at BEGIN, so concurrent writers
// serialize and exactly one wins a uniqueness race.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open(driverName, path+"?_foreign_keys=1&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// Collections

func (s *SQLiteCatalog) InsertCollection(ctx context.Context, c *model.Collection) error {
	if err := s.queries.InsertCollection(ctx, c); err != nil {
		return fmt.Errorf("inserting collection: %w", mapConstraintError(err))
	}
	return nil
}

func (s *SQLiteCatalog) FindCollectionByName(ctx context.Context, name string) (*model.Collection, error) {
	c, err := s.queries.GetCollectionByName(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding collection by name: %w", err)
	}
	return c, nil
}

func (s *SQLiteCatalog) ListCollections(ctx context.Context) ([]*model.Collection, error) {
	cs, err := s.queries.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	return cs, nil
}

// Disks

func (s *SQLiteCatalog) InsertDisk(ctx context.Context, d *model.Disk) error {
	if err := s.queries.InsertDisk(ctx, d); err != nil {
		return fmt.Errorf("inserting disk: %w", mapConstraintError(err))
	}
	return nil
}

func (s *SQLiteCatalog) FindDiskBySerial(ctx context.Context, serial string) (*model.Disk, error) {
	d, err := s.queries.GetDiskBySerial(ctx, serial)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding disk by serial: %w", err)
	}
	return d, nil
}

func (s *SQLiteCatalog) ListDisks(ctx context.Context) ([]*model.Disk, error) {
	ds, err := s.queries.ListDisks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing disks: %w", err)
	}
	return ds, nil
}

// Partitions

// InsertPartition checks the parent disk inside the transaction because a
// SQLite foreign key failure does not say which reference was missing.
func (s *SQLiteCatalog) InsertPartition(ctx context.Context, p *model.Partition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()
	qtx := s.queries.WithTx(tx)

	ok, err := qtx.DiskExists(ctx, p.DiskID)
	if err != nil {
		return fmt.Errorf("checking disk: %w", err)
	}
	if !ok {
		return hoard.ErrUnknownDisk.New("%s", p.DiskID)
	}

	if err := qtx.InsertPartition(ctx, p); err != nil {
		return fmt.Errorf("inserting partition: %w", mapConstraintError(err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteCatalog) FindPartitionByUUID(ctx context.Context, uuid string) (*model.Partition, error) {
	p, err := s.queries.GetPartitionByUUID(ctx, uuid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding partition by uuid: %w", err)
	}
	return p, nil
}

func (s *SQLiteCatalog) FindPartitionByID(ctx context.Context, id model.ID) (*model.Partition, error) {
	p, err := s.queries.GetPartitionByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding partition by id: %w", err)
	}
	return p, nil
}

func (s *SQLiteCatalog) ListPartitions(ctx context.Context) ([]*model.Partition, error) {
	ps, err := s.queries.ListPartitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing partitions: %w", err)
	}
	return ps, nil
}

// Files

// IngestFile writes a file with its hashes, archive entries and placement in
// one transaction. A path may not sit below an existing file, nor may a
// file be created where existing files use the path as a directory.
func (s *SQLiteCatalog) IngestFile(ctx context.Context, rec *hoard.IngestRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()
	qtx := s.queries.WithTx(tx)

	f := &rec.File
	ok, err := qtx.CollectionExists(ctx, f.CollectionID)
	if err != nil {
		return fmt.Errorf("checking collection: %w", err)
	}
	if !ok {
		return hoard.ErrUnknownCollection.New("%s", f.CollectionID)
	}
	ok, err = qtx.PartitionExists(ctx, rec.Placement.PartitionID)
	if err != nil {
		return fmt.Errorf("checking partition: %w", err)
	}
	if !ok {
		return hoard.ErrUnknownPartition.New("%s", rec.Placement.PartitionID)
	}

	for _, dir := range hoard.Ancestors(f.Path) {
		existing, err := qtx.GetFileByPath(ctx, f.CollectionID, dir)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking parent path: %w", err)
		}
		if existing != nil {
			return hoard.ErrPathConflict.New("%s collides with the existing file %s", f.Path, dir)
		}
	}
	below, err := qtx.HasFilesBelow(ctx, f.CollectionID, f.Path)
	if err != nil {
		return fmt.Errorf("checking child paths: %w", err)
	}
	if below {
		return hoard.ErrPathConflict.New("%s is a directory of existing files", f.Path)
	}

	if err := qtx.InsertFile(ctx, f); err != nil {
		return fmt.Errorf("inserting file: %w", mapConstraintError(err))
	}
	for i := range rec.Hashes {
		if err := qtx.InsertFileHash(ctx, &rec.Hashes[i]); err != nil {
			return fmt.Errorf("inserting file hash: %w", err)
		}
	}
	for i := range rec.Entries {
		if err := qtx.InsertArchiveEntry(ctx, &rec.Entries[i]); err != nil {
			return fmt.Errorf("inserting archive entry: %w", err)
		}
	}
	if err := qtx.InsertPlacement(ctx, &rec.Placement); err != nil {
		return fmt.Errorf("inserting placement: %w", mapConstraintError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteCatalog) AttachFile(ctx context.Context, placement *model.FilePlacement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()
	qtx := s.queries.WithTx(tx)

	ok, err := qtx.FileExists(ctx, placement.FileID)
	if err != nil {
		return fmt.Errorf("checking file: %w", err)
	}
	if !ok {
		return hoard.ErrUnknownFile.New("%s", placement.FileID)
	}
	ok, err = qtx.PartitionExists(ctx, placement.PartitionID)
	if err != nil {
		return fmt.Errorf("checking partition: %w", err)
	}
	if !ok {
		return hoard.ErrUnknownPartition.New("%s", placement.PartitionID)
	}

	if err := qtx.InsertPlacement(ctx, placement); err != nil {
		return fmt.Errorf("inserting placement: %w", mapConstraintError(err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteCatalog) FindFileByPath(ctx context.Context, collectionID model.ID, path string) (*model.File, error) {
	f, err := s.queries.GetFileByPath(ctx, collectionID, path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding file by path: %w", err)
	}
	return f, nil
}

func (s *SQLiteCatalog) ListDirectory(ctx context.Context, collectionID model.ID, dir string, all bool) ([]*model.File, error) {
	files, err := s.queries.ListDirectory(ctx, collectionID, dir, all)
	if err != nil {
		return nil, fmt.Errorf("listing directory: %w", err)
	}
	return files, nil
}

// WalkFiles streams matching rows to fn. fn must not call back into the
// catalog: an in-memory catalog has a single connection, held by the cursor.
func (s *SQLiteCatalog) WalkFiles(ctx context.Context, collectionID model.ID, q hoard.FindQuery, fn func(*model.File) error) error {
	rows, err := s.queries.QueryFiles(ctx, collectionID, q)
	if err != nil {
		return fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return fmt.Errorf("scanning file: %w", err)
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating files: %w", err)
	}
	return nil
}

func (s *SQLiteCatalog) FileHashes(ctx context.Context, fileID model.ID) ([]*model.FileHash, error) {
	hs, err := s.queries.ListFileHashes(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing file hashes: %w", err)
	}
	return hs, nil
}

func (s *SQLiteCatalog) FileArchiveEntries(ctx context.Context, fileID model.ID) ([]*model.FileArchiveEntry, error) {
	es, err := s.queries.ListArchiveEntries(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing archive entries: %w", err)
	}
	return es, nil
}

func (s *SQLiteCatalog) FilePlacements(ctx context.Context, fileID model.ID) ([]*hoard.PlacementDetail, error) {
	ps, err := s.queries.ListPlacements(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing placements: %w", err)
	}
	return ps, nil
}

func (s *SQLiteCatalog) FindFilesByHash(ctx context.Context, algorithm string, value []byte) ([]*hoard.FileMatch, error) {
	ms, err := s.queries.FindFilesByHash(ctx, algorithm, value)
	if err != nil {
		return nil, fmt.Errorf("finding files by hash: %w", err)
	}
	return ms, nil
}

// Catalog operations

func (s *SQLiteCatalog) CreateOperation(ctx context.Context, operation, parameters string) (*model.CatalogOperation, error) {
	startedAt := time.Now().UTC().Truncate(time.Millisecond)
	id, err := s.queries.InsertOperation(ctx, startedAt, operation, parameters)
	if err != nil {
		return nil, fmt.Errorf("creating catalog operation: %w", err)
	}
	return &model.CatalogOperation{
		ID:         id,
		StartedAt:  startedAt,
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
	}, nil
}

func (s *SQLiteCatalog) FinishOperation(ctx context.Context, id int64, status string) error {
	n, err := s.queries.FinishOperation(ctx, id, time.Now(), status)
	if err != nil {
		return fmt.Errorf("finishing catalog operation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finishing catalog operation: no operation with id %d", id)
	}
	return nil
}

func (s *SQLiteCatalog) ListOperations(ctx context.Context, limit int) ([]*model.CatalogOperation, error) {
	ops, err := s.queries.ListOperations(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing catalog operations: %w", err)
	}
	return ops, nil
}

func (s *SQLiteCatalog) MaxOperationID(ctx context.Context) (int64, error) {
	id, err := s.queries.MaxOperationID(ctx)
	if err != nil {
		return 0, fmt.Errorf("getting max catalog operation ID: %w", err)
	}
	return id, nil
}

// Administration

// Path returns the file the catalog was opened from.
func (s *SQLiteCatalog) Path() string {
	return s.path
}

// CheckMigrations verifies the catalog schema is up-to-date.
func (s *SQLiteCatalog) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Migrate applies any pending schema migrations.
func (s *SQLiteCatalog) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// MigrationStatus reports the applied and latest schema versions.
func (s *SQLiteCatalog) MigrationStatus() (*migrations.Status, error) {
	return migrations.ReadStatus(s.db)
}

// Vacuum rebuilds the catalog file, reclaiming free pages.
func (s *SQLiteCatalog) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuuming catalog: %w", err)
	}
	return nil
}

// BackupTo writes a consistent copy of the catalog to destPath using VACUUM INTO.
func (s *SQLiteCatalog) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up catalog: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteCatalog) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ hoard.Catalog = (*SQLiteCatalog)(nil)
