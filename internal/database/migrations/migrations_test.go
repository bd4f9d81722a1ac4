package migrations

import (
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	tables := []string{
		"collections", "disks", "partitions", "files", "file_hashes",
		"file_archive_entries", "file_placements", "catalog_operations", "schema_migrations",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus(t *testing.T) {
	t.Run("fresh database needs migration", func(t *testing.T) {
		db := openTestDB(t)

		err := CheckDBMigrationStatus(db)
		if err == nil {
			t.Fatal("CheckDBMigrationStatus() expected error for fresh database, got nil")
		}
		if !strings.Contains(err.Error(), "needs migration") {
			t.Errorf("CheckDBMigrationStatus() error = %q, want error about needing migration", err.Error())
		}
	})

	t.Run("up to date after migration", func(t *testing.T) {
		db := openTestDB(t)
		if err := MigrateUp(db); err != nil {
			t.Fatalf("MigrateUp() failed: %v", err)
		}
		if err := CheckDBMigrationStatus(db); err != nil {
			t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
		}
	})

	t.Run("ahead of binary", func(t *testing.T) {
		db := openTestDB(t)
		if err := MigrateUp(db); err != nil {
			t.Fatalf("MigrateUp() failed: %v", err)
		}
		if _, err := db.Exec("UPDATE schema_migrations SET version = 999"); err != nil {
			t.Fatalf("bumping version: %v", err)
		}
		err := CheckDBMigrationStatus(db)
		if err == nil || !strings.Contains(err.Error(), "ahead of binary") {
			t.Errorf("CheckDBMigrationStatus() error = %v, want ahead of binary", err)
		}
	})
}

func TestReadStatus(t *testing.T) {
	db := openTestDB(t)

	st, err := ReadStatus(db)
	if err != nil {
		t.Fatalf("ReadStatus() error = %v", err)
	}
	if st.Version != 0 || st.Latest == 0 || st.UpToDate() {
		t.Errorf("ReadStatus() on fresh db = %+v", st)
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	st, err = ReadStatus(db)
	if err != nil {
		t.Fatalf("ReadStatus() error = %v", err)
	}
	if !st.UpToDate() {
		t.Errorf("ReadStatus() after migration = %+v, want up to date", st)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after double migration returned error: %v", err)
	}
}

func TestSchemaConstraints(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	id := func(b byte) []byte {
		out := make([]byte, 16)
		out[15] = b
		return out
	}
	const now = "2024-01-01T00:00:00.000Z"

	if _, err := db.Exec("INSERT INTO disks (id, serial_number, label, created_at) VALUES (?, 'SN1', 'disk-a', ?)", id(1), now); err != nil {
		t.Fatalf("inserting disk: %v", err)
	}

	tests := []struct {
		name  string
		query string
		args  []any
	}{
		{"partition with unknown disk", "INSERT INTO partitions (id, disk_id, uuid, capacity, created_at) VALUES (?, ?, 'P-1', 0, ?)", []any{id(2), id(99), now}},
		{"duplicate disk label", "INSERT INTO disks (id, serial_number, label, created_at) VALUES (?, 'SN2', 'disk-a', ?)", []any{id(3), now}},
		{"duplicate disk serial", "INSERT INTO disks (id, serial_number, label, created_at) VALUES (?, 'SN1', 'disk-b', ?)", []any{id(4), now}},
		{"empty collection name", "INSERT INTO collections (id, name, created_at) VALUES (?, '', ?)", []any{id(5), now}},
		{"short id", "INSERT INTO collections (id, name, created_at) VALUES (?, 'c', ?)", []any{[]byte{1, 2, 3}, now}},
		{"negative capacity", "INSERT INTO partitions (id, disk_id, uuid, capacity, created_at) VALUES (?, ?, 'P-2', -1, ?)", []any{id(6), id(1), now}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := db.Exec(tt.query, tt.args...); err == nil {
				t.Error("expected constraint violation, but insert succeeded")
			}
		})
	}
}

// openTestDB opens a single-connection in-memory SQLite database with
// foreign keys enabled.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=1")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
