package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"hoard-go/internal/config"
	"hoard-go/internal/database"
	"hoard-go/internal/encryption"
	"hoard-go/internal/hoard"
	"hoard-go/internal/vault"
)

// SnapshotName is the name catalog snapshots are stored under in a vault.
func SnapshotName(cfg *config.Config) string {
	if cfg.Encryption.EncryptSnapshots {
		return database.CatalogFileName + encryption.SnapshotSuffix
	}
	return database.CatalogFileName
}

// snapshot writes a consistent copy of the catalog to a temp file and
// returns its path.
func (a *HoardApp) snapshot() (string, error) {
	tmp, err := os.CreateTemp("", "hoard-snapshot-*.db")
	if err != nil {
		return "", fmt.Errorf("creating temp file for snapshot: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	// VACUUM INTO refuses to overwrite an existing file.
	os.Remove(path)

	if err := a.catalog.BackupTo(path); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("snapshotting catalog: %w", err)
	}
	return path, nil
}

// uploadSnapshot sends the snapshot at path to the vault, encrypting it
// first when configured.
func (a *HoardApp) uploadSnapshot(path string, version int64) error {
	if a.cfg.Encryption.EncryptSnapshots {
		encrypted, err := a.encryptFile(path)
		if err != nil {
			return err
		}
		defer os.Remove(encrypted)
		path = encrypted
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}

	name := SnapshotName(a.cfg)
	if err := a.vault.PutSnapshot(a.cfg.CatalogID, name, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading snapshot to vault: %w", err)
	}
	a.logger.Info("snapshot uploaded", "name", name, "version", version, "size", info.Size())
	return nil
}

func (a *HoardApp) encryptFile(path string) (string, error) {
	if !a.encryptor.IsConfigured() {
		return "", fmt.Errorf("encrypt_snapshots is set but no keys exist: run 'hoard config keys'")
	}
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening snapshot: %w", err)
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "hoard-snapshot-*"+encryption.SnapshotSuffix)
	if err != nil {
		return "", fmt.Errorf("creating temp file for encrypted snapshot: %w", err)
	}
	if err := a.encryptor.Encrypt(src, dst); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("encrypting snapshot: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("closing encrypted snapshot: %w", err)
	}
	return dst.Name(), nil
}

// RestoreOptions controls RestoreCatalog.
type RestoreOptions struct {
	// Version, when non-zero, must match the version stored in the vault.
	Version int64
	// Force replaces an existing local catalog.
	Force bool
	// Passphrase is called only when the snapshot is encrypted.
	Passphrase func() (string, error)
}

// RestoreCatalog downloads the catalog snapshot from the first configured
// vault and installs it as the local catalog. Returns the restored version.
func RestoreCatalog(ctx context.Context, cfg *config.Config, opts RestoreOptions) (int64, error) {
	if cfg.Database.Type != "sqlite" {
		return 0, fmt.Errorf("restore needs a sqlite database, not %q", cfg.Database.Type)
	}
	if len(cfg.Vaults) == 0 {
		return 0, fmt.Errorf("no vaults configured")
	}
	v, err := vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
	if err != nil {
		return 0, fmt.Errorf("creating vault: %w", err)
	}

	name := SnapshotName(cfg)
	version, err := v.SnapshotVersion(cfg.CatalogID, name)
	if err != nil {
		return 0, fmt.Errorf("checking snapshot version: %w", err)
	}
	if version == 0 {
		return 0, fmt.Errorf("vault %s holds no snapshot of catalog %s", cfg.Vaults[0].Name, cfg.CatalogID)
	}
	if opts.Version != 0 && opts.Version != version {
		return 0, fmt.Errorf("vault holds snapshot version %d, not %d", version, opts.Version)
	}

	dest := filepath.Join(cfg.Database.DataDir, database.CatalogFileName)
	if _, err := os.Stat(dest); err == nil && !opts.Force {
		return 0, fmt.Errorf("%s exists; use --force to replace it", dest)
	}
	if err := os.MkdirAll(cfg.Database.DataDir, 0700); err != nil {
		return 0, fmt.Errorf("creating data dir: %w", err)
	}

	tmp, err := os.CreateTemp(cfg.Database.DataDir, ".restore-*.db")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := download(cfg, v, name, tmp, opts.Passphrase); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing restored catalog: %w", err)
	}

	if err := verifyRestored(ctx, tmpPath, version); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return 0, fmt.Errorf("installing restored catalog: %w", err)
	}
	return version, nil
}

func download(cfg *config.Config, v hoard.Vault, name string, w io.Writer, passphrase func() (string, error)) error {
	if !cfg.Encryption.EncryptSnapshots {
		if err := v.GetSnapshot(cfg.CatalogID, name, w); err != nil {
			return fmt.Errorf("downloading snapshot: %w", err)
		}
		return nil
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if passphrase == nil {
		return fmt.Errorf("snapshot is encrypted and no passphrase was provided")
	}
	pass, err := passphrase()
	if err != nil {
		return fmt.Errorf("reading passphrase: %w", err)
	}
	dc, err := enc.Unlock(pass)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(v.GetSnapshot(cfg.CatalogID, name, pw))
	}()
	if err := dc.Decrypt(pr, w); err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("decrypting snapshot: %w", err)
	}
	return nil
}

// verifyRestored opens the downloaded catalog and checks it is the version
// the vault advertised.
func verifyRestored(ctx context.Context, path string, version int64) error {
	catalog, err := database.NewSQLiteCatalog(path)
	if err != nil {
		return fmt.Errorf("opening restored catalog: %w", err)
	}
	defer catalog.Close()

	got, err := catalog.MaxOperationID(ctx)
	if err != nil {
		return fmt.Errorf("reading restored catalog: %w", err)
	}
	if got != version {
		return fmt.Errorf("restored catalog is at version %d, vault advertised %d", got, version)
	}
	return nil
}
