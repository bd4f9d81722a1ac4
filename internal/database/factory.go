package database

import (
	"fmt"
	"os"
	"path/filepath"

	"hoard-go/internal/config"
)

// CatalogFileName is the catalog's file name inside the sqlite data_dir.
const CatalogFileName = "catalog.db"

// NewCatalogFromConfig opens the catalog selected by the database config type.
func NewCatalogFromConfig(cfg config.DatabaseConfig) (*SQLiteCatalog, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return NewSQLiteCatalog(filepath.Join(cfg.DataDir, CatalogFileName))
	case "memory":
		return NewSQLiteCatalog(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
