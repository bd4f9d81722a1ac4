package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"hoard-go/internal/model"
)

func newMockCatalog(t *testing.T) (*SQLiteCatalog, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteCatalogFromDB(db), mock
}

// expectIngestChecks queues the reference and path checks IngestFile runs
// for a file at /x/y.txt before its first insert.
func expectIngestChecks(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM collections`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM partitions`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`FROM files WHERE collection_id = \? AND path = \?`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "collection_id", "path", "size", "created_at"}))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM files WHERE collection_id`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
}

func mockPlacement() *model.FilePlacement {
	return &model.FilePlacement{PartitionID: model.NewID(), FileID: model.NewID(), CreatedAt: testTime}
}

func TestSQLiteCatalog_IngestFile_RollsBackOnStorageFailure(t *testing.T) {
	ctx := context.Background()
	diskFull := errors.New("database or disk is full")

	t.Run("file insert fails", func(t *testing.T) {
		cat, mock := newMockCatalog(t)
		expectIngestChecks(mock)
		mock.ExpectExec(`INSERT INTO files`).WillReturnError(diskFull)
		mock.ExpectRollback()

		f := &fixture{collection: &model.Collection{ID: model.NewID()}, partition: &model.Partition{ID: model.NewID()}}
		err := cat.IngestFile(ctx, f.record("/x/y.txt", 4))
		if !errors.Is(err, diskFull) {
			t.Errorf("IngestFile() error = %v, want %v", err, diskFull)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("hash insert fails after file row", func(t *testing.T) {
		cat, mock := newMockCatalog(t)
		expectIngestChecks(mock)
		mock.ExpectExec(`INSERT INTO files`).WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`INSERT INTO file_hashes`).WillReturnError(diskFull)
		mock.ExpectRollback()

		f := &fixture{collection: &model.Collection{ID: model.NewID()}, partition: &model.Partition{ID: model.NewID()}}
		err := cat.IngestFile(ctx, f.record("/x/y.txt", 4))
		if !errors.Is(err, diskFull) {
			t.Errorf("IngestFile() error = %v, want %v", err, diskFull)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestSQLiteCatalog_AttachFile_RollsBackOnStorageFailure(t *testing.T) {
	cat, mock := newMockCatalog(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM files`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM partitions`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`INSERT INTO file_placements`).WillReturnError(errors.New("i/o error"))
	mock.ExpectRollback()

	if err := cat.AttachFile(context.Background(), mockPlacement()); err == nil {
		t.Error("AttachFile() expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
