// Package app wires configuration, the catalog, media probing and vaults
// into a hoard.Service for the CLI.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"hoard-go/internal/config"
	"hoard-go/internal/database"
	"hoard-go/internal/encryption"
	"hoard-go/internal/fs"
	"hoard-go/internal/hoard"
	"hoard-go/internal/media"
	"hoard-go/internal/model"
	"hoard-go/internal/vault"
)

// HoardApp is the application layer between the CLI and hoard.Service.
// It constructs all dependencies from config, exposes operations that
// accept raw CLI arguments, and snapshots the catalog on Close when the
// command changed it.
type HoardApp struct {
	cfg       *config.Config
	catalog   *database.SQLiteCatalog
	vault     hoard.Vault // nil when no vault is configured
	fsmgr     *fs.OSFilesystemManager
	encryptor hoard.Encryptor
	service   *hoard.Service
	logger    *slogAdapter
	op        *Operation
	logFile   *os.File
}

// deps are the OS-facing pieces tests replace.
type deps struct {
	prober  media.Prober
	console io.Writer
	clock   hoard.Clock
	idgen   hoard.IDGenerator
}

// NewHoardApp creates a fully wired HoardApp from the given config.
// operation names the CLI command being run (e.g. "file add"), parameters
// its arguments. The caller must call Close when done.
func NewHoardApp(ctx context.Context, cfg *config.Config, operation, parameters string) (*HoardApp, error) {
	return newHoardApp(ctx, cfg, operation, parameters, deps{
		prober:  media.NewSysfsProber(cfg.Media.SysfsRoot, cfg.Media.UdevRoot),
		console: os.Stderr,
		clock:   hoard.RealClock{},
		idgen:   hoard.RandomIDGenerator{},
	})
}

func newHoardApp(ctx context.Context, cfg *config.Config, operation, parameters string, d deps) (*HoardApp, error) {
	opts, err := cfg.ServiceOptions()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var v hoard.Vault
	if len(cfg.Vaults) > 0 {
		v, err = vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
		if err != nil {
			return nil, fmt.Errorf("creating vault: %w", err)
		}
	}

	catalog, err := database.NewCatalogFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	// A memory catalog starts empty on every run.
	if cfg.Database.Type == "memory" {
		if err := catalog.Migrate(); err != nil {
			catalog.Close()
			return nil, fmt.Errorf("migrating memory catalog: %w", err)
		}
	}
	if err := catalog.CheckMigrations(); err != nil {
		catalog.Close()
		return nil, fmt.Errorf("catalog schema out of date, run 'hoard db migrate': %w", err)
	}

	if v != nil {
		if err := checkNotBehind(ctx, catalog, v, cfg); err != nil {
			catalog.Close()
			return nil, err
		}
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	opID := d.clock.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID, d.console)
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	fsmgr := fs.NewOSFilesystemManager(cfg.Filesystem.Ignore)
	registry := media.NewRegistry(d.prober)
	svc := hoard.NewService(catalog, registry, fsmgr, adapter, d.clock, d.idgen, opts)

	return &HoardApp{
		cfg:       cfg,
		catalog:   catalog,
		vault:     v,
		fsmgr:     fsmgr,
		encryptor: enc,
		service:   svc,
		logger:    adapter,
		op:        NewOperation(operation, parameters),
		logFile:   logFile,
	}, nil
}

// checkNotBehind refuses to work on a catalog older than the snapshot in
// the vault; changes made to it would overwrite newer history on upload.
func checkNotBehind(ctx context.Context, catalog *database.SQLiteCatalog, v hoard.Vault, cfg *config.Config) error {
	remote, err := v.SnapshotVersion(cfg.CatalogID, SnapshotName(cfg))
	if err != nil {
		return fmt.Errorf("checking remote snapshot version: %w", err)
	}
	local, err := catalog.MaxOperationID(ctx)
	if err != nil {
		return fmt.Errorf("checking local catalog version: %w", err)
	}
	if remote > local {
		return fmt.Errorf("local catalog is behind the vault snapshot (local=%d, remote=%d): run 'hoard db restore'", local, remote)
	}
	return nil
}

// persistOperation saves the operation record the first time the command
// mutates the catalog.
func (a *HoardApp) persistOperation(ctx context.Context) error {
	if a.op.Persisted() {
		return nil
	}
	dbOp, err := a.catalog.CreateOperation(ctx, a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting catalog operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// mutate runs fn as part of a persisted operation and logs the outcome.
func (a *HoardApp) mutate(ctx context.Context, fn func() error) error {
	if err := a.persistOperation(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		a.op.Fail()
		a.logger.Error("operation failed", "operation", a.op.Operation, "error", err)
		return err
	}
	a.logger.Info("operation succeeded", "operation", a.op.Operation)
	return nil
}

// AddCollection creates a collection.
func (a *HoardApp) AddCollection(ctx context.Context, name string) (c *model.Collection, err error) {
	err = a.mutate(ctx, func() error {
		c, err = a.service.AddCollection(ctx, name)
		return err
	})
	return c, err
}

// ListCollections returns all collections ordered by name.
func (a *HoardApp) ListCollections(ctx context.Context) ([]*model.Collection, error) {
	return a.service.ListCollections(ctx)
}

// AddDisk registers the disk at devicePath under label.
func (a *HoardApp) AddDisk(ctx context.Context, devicePath, label string) (d *model.Disk, err error) {
	err = a.mutate(ctx, func() error {
		d, err = a.service.AddDisk(ctx, devicePath, label)
		return err
	})
	return d, err
}

// ListDisks returns all registered disks.
func (a *HoardApp) ListDisks(ctx context.Context) ([]*model.Disk, error) {
	return a.service.ListDisks(ctx)
}

// AddPartition registers the partition at devicePath.
func (a *HoardApp) AddPartition(ctx context.Context, devicePath string) (p *model.Partition, err error) {
	err = a.mutate(ctx, func() error {
		p, err = a.service.AddPartition(ctx, devicePath)
		return err
	})
	return p, err
}

// ListPartitions returns all registered partitions.
func (a *HoardApp) ListPartitions(ctx context.Context) ([]*model.Partition, error) {
	return a.service.ListPartitions(ctx)
}

// AddFiles catalogs the local path src at dest. A directory is only
// accepted with recursive set, in which case its files land below dest.
// Returns the number of files added.
func (a *HoardApp) AddFiles(ctx context.Context, collection, partitionUUID, src, dest string, recursive bool) (n int, err error) {
	p, err := a.fsmgr.Resolve(src)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}
	err = a.mutate(ctx, func() error {
		if p.IsDir() {
			if !recursive {
				return hoard.ErrInvalidArgument.New("%s is a directory; use -r to add its files", p.String())
			}
			n, err = a.service.AddTree(ctx, collection, partitionUUID, p, dest)
			return err
		}
		if _, err = a.service.AddFile(ctx, collection, partitionUUID, p, dest); err != nil {
			return err
		}
		n = 1
		return nil
	})
	return n, err
}

// AttachFile records an extra placement for an already-cataloged file.
func (a *HoardApp) AttachFile(ctx context.Context, collection, partitionUUID, dest string) error {
	return a.mutate(ctx, func() error {
		return a.service.AttachFile(ctx, collection, partitionUUID, dest)
	})
}

// ListChildren lists the files directly below prefix.
func (a *HoardApp) ListChildren(ctx context.Context, collection, prefix string, all bool) ([]*model.File, error) {
	return a.service.ListChildren(ctx, collection, prefix, all)
}

// FindFiles streams the files matching q to fn.
func (a *HoardApp) FindFiles(ctx context.Context, collection string, q hoard.FindQuery, fn func(*model.File) error) error {
	return a.service.FindFiles(ctx, collection, q, fn)
}

// InspectFile returns everything recorded about one file.
func (a *HoardApp) InspectFile(ctx context.Context, collection, path string) (*hoard.FileDetail, error) {
	return a.service.InspectFile(ctx, collection, path)
}

// FindByDigest looks files up by a digest written as ALGO:HEX.
func (a *HoardApp) FindByDigest(ctx context.Context, spec string) ([]*hoard.FileMatch, error) {
	alg, value, ok := strings.Cut(spec, ":")
	if !ok || alg == "" || value == "" {
		return nil, hoard.ErrInvalidArgument.New("digest must be written as ALGO:HEX, got %q", spec)
	}
	return a.service.FindByDigest(ctx, alg, value)
}

// GetHistory returns the most recent catalog operations.
func (a *HoardApp) GetHistory(ctx context.Context, limit int) ([]*model.CatalogOperation, error) {
	return a.service.GetHistory(ctx, limit)
}

// Backup records an operation so that Close uploads a snapshot now.
func (a *HoardApp) Backup(ctx context.Context) error {
	if a.vault == nil {
		return fmt.Errorf("no vaults configured")
	}
	return a.mutate(ctx, func() error { return nil })
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the operation record, snapshots the
// catalog, and uploads it to the vault. Otherwise it only closes the catalog.
func (a *HoardApp) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.op.Persisted() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := a.catalog.FinishOperation(ctx, a.op.ID, a.op.Status); err != nil {
			keep(fmt.Errorf("finishing catalog operation: %w", err))
		}

		var snapshot string
		if a.vault != nil {
			path, err := a.snapshot()
			keep(err)
			snapshot = path
		}

		keep(a.closeCatalog())

		if snapshot != "" {
			keep(a.uploadSnapshot(snapshot, a.op.ID))
			os.Remove(snapshot)
		}
	} else {
		keep(a.closeCatalog())
	}

	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

func (a *HoardApp) closeCatalog() error {
	if err := a.catalog.Close(); err != nil {
		return fmt.Errorf("closing catalog: %w", err)
	}
	return nil
}
