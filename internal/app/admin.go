package app

import (
	"context"
	"fmt"

	"hoard-go/internal/config"
	"hoard-go/internal/database"
	"hoard-go/internal/database/migrations"
	"hoard-go/internal/encryption"
)

// MigrateCatalog brings the catalog schema up to date. It returns the
// status before migrating.
func MigrateCatalog(cfg *config.Config) (*migrations.Status, error) {
	catalog, err := database.NewCatalogFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer catalog.Close()

	before, err := catalog.MigrationStatus()
	if err != nil {
		return nil, err
	}
	if err := catalog.Migrate(); err != nil {
		return before, err
	}
	return before, nil
}

// VacuumCatalog compacts the catalog file.
func VacuumCatalog(ctx context.Context, cfg *config.Config) error {
	catalog, err := database.NewCatalogFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer catalog.Close()

	if err := catalog.CheckMigrations(); err != nil {
		return fmt.Errorf("catalog schema out of date, run 'hoard db migrate': %w", err)
	}
	return catalog.Vacuum(ctx)
}

// SetupEncryption generates the snapshot key pair.
func SetupEncryption(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	return enc.Setup(passphrase)
}
