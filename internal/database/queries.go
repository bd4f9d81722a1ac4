package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"hoard-go/internal/hoard"
	"hoard-go/internal/model"
)

// timeLayout is RFC 3339 in UTC with millisecond precision. Stored as text
// so lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds every statement the catalog runs.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type scanner interface {
	Scan(dest ...any) error
}

// Collections

const collectionColumns = `id, name, created_at`

func scanCollection(row scanner) (*model.Collection, error) {
	var c model.Collection
	var created string
	if err := row.Scan(&c.ID, &c.Name, &created); err != nil {
		return nil, err
	}
	var err error
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &c, nil
}

func (q *Queries) InsertCollection(ctx context.Context, c *model.Collection) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO collections (id, name, created_at) VALUES (?, ?, ?)`,
		c.ID, c.Name, formatTime(c.CreatedAt))
	return err
}

func (q *Queries) GetCollectionByName(ctx context.Context, name string) (*model.Collection, error) {
	return scanCollection(q.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE name = ?`, name))
}

func (q *Queries) ListCollections(ctx context.Context) ([]*model.Collection, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+collectionColumns+` FROM collections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanCollection)
}

func (q *Queries) CollectionExists(ctx context.Context, id model.ID) (bool, error) {
	return q.exists(ctx, `SELECT EXISTS (SELECT 1 FROM collections WHERE id = ?)`, id)
}

// Disks

const diskColumns = `id, serial_number, label, created_at`

func scanDisk(row scanner) (*model.Disk, error) {
	var d model.Disk
	var created string
	if err := row.Scan(&d.ID, &d.SerialNumber, &d.Label, &created); err != nil {
		return nil, err
	}
	var err error
	if d.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &d, nil
}

func (q *Queries) InsertDisk(ctx context.Context, d *model.Disk) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO disks (id, serial_number, label, created_at) VALUES (?, ?, ?, ?)`,
		d.ID, d.SerialNumber, d.Label, formatTime(d.CreatedAt))
	return err
}

func (q *Queries) GetDiskBySerial(ctx context.Context, serial string) (*model.Disk, error) {
	return scanDisk(q.db.QueryRowContext(ctx,
		`SELECT `+diskColumns+` FROM disks WHERE serial_number = ?`, serial))
}

func (q *Queries) ListDisks(ctx context.Context) ([]*model.Disk, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+diskColumns+` FROM disks ORDER BY label`)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanDisk)
}

func (q *Queries) DiskExists(ctx context.Context, id model.ID) (bool, error) {
	return q.exists(ctx, `SELECT EXISTS (SELECT 1 FROM disks WHERE id = ?)`, id)
}

// Partitions

const partitionColumns = `id, disk_id, uuid, capacity, created_at`

func scanPartition(row scanner) (*model.Partition, error) {
	var p model.Partition
	var created string
	if err := row.Scan(&p.ID, &p.DiskID, &p.UUID, &p.Capacity, &created); err != nil {
		return nil, err
	}
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *Queries) InsertPartition(ctx context.Context, p *model.Partition) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO partitions (id, disk_id, uuid, capacity, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.DiskID, p.UUID, p.Capacity, formatTime(p.CreatedAt))
	return err
}

func (q *Queries) GetPartitionByUUID(ctx context.Context, uuid string) (*model.Partition, error) {
	return scanPartition(q.db.QueryRowContext(ctx,
		`SELECT `+partitionColumns+` FROM partitions WHERE uuid = ?`, uuid))
}

func (q *Queries) GetPartitionByID(ctx context.Context, id model.ID) (*model.Partition, error) {
	return scanPartition(q.db.QueryRowContext(ctx,
		`SELECT `+partitionColumns+` FROM partitions WHERE id = ?`, id))
}

func (q *Queries) ListPartitions(ctx context.Context) ([]*model.Partition, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+partitionColumns+` FROM partitions ORDER BY uuid`)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanPartition)
}

func (q *Queries) PartitionExists(ctx context.Context, id model.ID) (bool, error) {
	return q.exists(ctx, `SELECT EXISTS (SELECT 1 FROM partitions WHERE id = ?)`, id)
}

// Files

const fileColumns = `id, collection_id, path, size, created_at`

func scanFile(row scanner) (*model.File, error) {
	var f model.File
	var created string
	if err := row.Scan(&f.ID, &f.CollectionID, &f.Path, &f.Size, &created); err != nil {
		return nil, err
	}
	var err error
	if f.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &f, nil
}

func (q *Queries) InsertFile(ctx context.Context, f *model.File) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO files (id, collection_id, path, size, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.CollectionID, f.Path, f.Size, formatTime(f.CreatedAt))
	return err
}

func (q *Queries) GetFileByPath(ctx context.Context, collectionID model.ID, path string) (*model.File, error) {
	return scanFile(q.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE collection_id = ? AND path = ?`, collectionID, path))
}

func (q *Queries) FileExists(ctx context.Context, id model.ID) (bool, error) {
	return q.exists(ctx, `SELECT EXISTS (SELECT 1 FROM files WHERE id = ?)`, id)
}

// HasFilesBelow reports whether any file lives under the directory dir.
func (q *Queries) HasFilesBelow(ctx context.Context, collectionID model.ID, dir string) (bool, error) {
	lower, upper := prefixRange(dir)
	return q.exists(ctx,
		`SELECT EXISTS (SELECT 1 FROM files WHERE collection_id = ? AND path >= ? AND path < ?)`,
		collectionID, lower, upper)
}

// ListDirectory returns the immediate children of dir. substr and instr
// count characters, so the offset is the prefix's rune count.
func (q *Queries) ListDirectory(ctx context.Context, collectionID model.ID, dir string, all bool) ([]*model.File, error) {
	lower, upper := prefixRange(dir)
	start := utf8.RuneCountInString(lower) + 1
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files
		WHERE collection_id = ? AND path >= ? AND path < ?
		  AND instr(substr(path, ?), '/') = 0
		  AND (? OR substr(path, ?, 1) <> '.')
		ORDER BY path`,
		collectionID, lower, upper, start, all, start)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanFile)
}

// QueryFiles opens a cursor over the files below q.Prefix matching q.
func (q *Queries) QueryFiles(ctx context.Context, collectionID model.ID, fq hoard.FindQuery) (*sql.Rows, error) {
	lower, upper := prefixRange(fq.Prefix)
	var sb strings.Builder
	sb.WriteString(`SELECT ` + fileColumns + ` FROM files WHERE collection_id = ? AND path >= ? AND path < ?`)
	args := []any{collectionID, lower, upper}
	if fq.MinDepth > 0 {
		sb.WriteString(` AND relative_depth(?, path) >= ?`)
		args = append(args, fq.Prefix, fq.MinDepth)
	}
	if fq.MaxDepth > 0 {
		sb.WriteString(` AND relative_depth(?, path) <= ?`)
		args = append(args, fq.Prefix, fq.MaxDepth)
	}
	if fq.Name != "" {
		sb.WriteString(` AND basename(path) REGEXP ?`)
		args = append(args, fq.Name)
	}
	if fq.Path != "" {
		sb.WriteString(` AND path REGEXP ?`)
		args = append(args, fq.Path)
	}
	sb.WriteString(` ORDER BY path`)
	return q.db.QueryContext(ctx, sb.String(), args...)
}

// prefixRange returns the half-open range [lower, upper) of paths strictly
// below dir. '0' is the byte after '/'.
func prefixRange(dir string) (string, string) {
	lower := hoard.DirPrefix(dir)
	return lower, lower[:len(lower)-1] + "0"
}

// Hashes, archive entries and placements

func (q *Queries) InsertFileHash(ctx context.Context, h *model.FileHash) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO file_hashes (id, file_id, hash_algorithm, hash_value) VALUES (?, ?, ?, ?)`,
		h.ID, h.FileID, h.Algorithm, h.Value)
	return err
}

func (q *Queries) ListFileHashes(ctx context.Context, fileID model.ID) ([]*model.FileHash, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, file_id, hash_algorithm, hash_value FROM file_hashes WHERE file_id = ? ORDER BY hash_algorithm`,
		fileID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(row scanner) (*model.FileHash, error) {
		var h model.FileHash
		if err := row.Scan(&h.ID, &h.FileID, &h.Algorithm, &h.Value); err != nil {
			return nil, err
		}
		return &h, nil
	})
}

func (q *Queries) InsertArchiveEntry(ctx context.Context, e *model.FileArchiveEntry) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO file_archive_entries (id, file_id, path, size) VALUES (?, ?, ?, ?)`,
		e.ID, e.FileID, e.Path, e.Size)
	return err
}

func (q *Queries) ListArchiveEntries(ctx context.Context, fileID model.ID) ([]*model.FileArchiveEntry, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, file_id, path, size FROM file_archive_entries WHERE file_id = ? ORDER BY path`,
		fileID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(row scanner) (*model.FileArchiveEntry, error) {
		var e model.FileArchiveEntry
		if err := row.Scan(&e.ID, &e.FileID, &e.Path, &e.Size); err != nil {
			return nil, err
		}
		return &e, nil
	})
}

func (q *Queries) InsertPlacement(ctx context.Context, p *model.FilePlacement) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO file_placements (partition_id, file_id, created_at) VALUES (?, ?, ?)`,
		p.PartitionID, p.FileID, formatTime(p.CreatedAt))
	return err
}

func (q *Queries) ListPlacements(ctx context.Context, fileID model.ID) ([]*hoard.PlacementDetail, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT p.id, p.disk_id, p.uuid, p.capacity, p.created_at,
		        d.id, d.serial_number, d.label, d.created_at,
		        fp.created_at
		FROM file_placements fp
		JOIN partitions p ON p.id = fp.partition_id
		JOIN disks d ON d.id = p.disk_id
		WHERE fp.file_id = ?
		ORDER BY d.label, p.uuid`,
		fileID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(row scanner) (*hoard.PlacementDetail, error) {
		var pd hoard.PlacementDetail
		var partCreated, diskCreated, placed string
		if err := row.Scan(
			&pd.Partition.ID, &pd.Partition.DiskID, &pd.Partition.UUID, &pd.Partition.Capacity, &partCreated,
			&pd.Disk.ID, &pd.Disk.SerialNumber, &pd.Disk.Label, &diskCreated,
			&placed,
		); err != nil {
			return nil, err
		}
		var err error
		if pd.Partition.CreatedAt, err = parseTime(partCreated); err != nil {
			return nil, err
		}
		if pd.Disk.CreatedAt, err = parseTime(diskCreated); err != nil {
			return nil, err
		}
		if pd.PlacedAt, err = parseTime(placed); err != nil {
			return nil, err
		}
		return &pd, nil
	})
}

func (q *Queries) FindFilesByHash(ctx context.Context, algorithm string, value []byte) ([]*hoard.FileMatch, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT f.id, f.collection_id, f.path, f.size, f.created_at,
		        c.id, c.name, c.created_at
		FROM file_hashes h
		JOIN files f ON f.id = h.file_id
		JOIN collections c ON c.id = f.collection_id
		WHERE h.hash_algorithm = ? AND h.hash_value = ?
		ORDER BY c.name, f.path`,
		algorithm, value)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(row scanner) (*hoard.FileMatch, error) {
		var m hoard.FileMatch
		var fileCreated, collCreated string
		if err := row.Scan(
			&m.File.ID, &m.File.CollectionID, &m.File.Path, &m.File.Size, &fileCreated,
			&m.Collection.ID, &m.Collection.Name, &collCreated,
		); err != nil {
			return nil, err
		}
		var err error
		if m.File.CreatedAt, err = parseTime(fileCreated); err != nil {
			return nil, err
		}
		if m.Collection.CreatedAt, err = parseTime(collCreated); err != nil {
			return nil, err
		}
		return &m, nil
	})
}

// Catalog operations

func (q *Queries) InsertOperation(ctx context.Context, startedAt time.Time, operation, parameters string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO catalog_operations (started_at, operation, parameters) VALUES (?, ?, ?)`,
		formatTime(startedAt), operation, parameters)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) FinishOperation(ctx context.Context, id int64, finishedAt time.Time, status string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE catalog_operations SET finished_at = ?, status = ? WHERE id = ?`,
		formatTime(finishedAt), status, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) ListOperations(ctx context.Context, limit int) ([]*model.CatalogOperation, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, operation, parameters, status
		FROM catalog_operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(row scanner) (*model.CatalogOperation, error) {
		var op model.CatalogOperation
		var started string
		var finished sql.NullString
		if err := row.Scan(&op.ID, &started, &finished, &op.Operation, &op.Parameters, &op.Status); err != nil {
			return nil, err
		}
		var err error
		if op.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished.Valid {
			t, err := parseTime(finished.String)
			if err != nil {
				return nil, err
			}
			op.FinishedAt = sql.NullTime{Time: t, Valid: true}
		}
		return &op, nil
	})
}

func (q *Queries) MaxOperationID(ctx context.Context) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM catalog_operations`).Scan(&id)
	return id, err
}

func (q *Queries) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func collectRows[T any](rows *sql.Rows, scan func(scanner) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
