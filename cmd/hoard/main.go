package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hoard-go/internal/app"
	"hoard-go/internal/config"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a HoardApp. The caller must close it
// with closeApp. operation identifies the CLI command being run
// (e.g. "file add").
func newApp(ctx context.Context, operation string, args []string) (*app.HoardApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.NewHoardApp(ctx, cfg, operation, strings.Join(args, " "))
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// closeApp closes a and reports its error unless the command already failed.
// Close uploads the catalog snapshot, so its error must not be dropped.
func closeApp(a *app.HoardApp, err *error) {
	if cerr := a.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

var rootCmd = &cobra.Command{
	Use:          "hoard",
	Short:        "Catalog of files kept on offline disks",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		catalogID := uuid.New().String()
		cfg := config.NewConfig(catalogID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Catalog ID: %s\n", catalogID)
		fmt.Printf("Base Dir:   %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Catalog ID: %s\n", cfg.CatalogID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Database:   %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Hashes:     %s\n", strings.Join(cfg.Files.Hashes, ", "))
		fmt.Printf("Archives:   inspect=%t on_corrupt=%s\n", cfg.Archive.Inspect, cfg.Archive.OnCorrupt)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:      %s (%s)\n", v.Name, v.Type)
		}
		fmt.Printf("Encrypt:    %t\n", cfg.Encryption.EncryptSnapshots)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate the snapshot encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pass, err := readNewPassphrase()
		if err != nil {
			return err
		}
		if err := app.SetupEncryption(cfg, pass); err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s (passphrase protected)\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the catalog database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		before, err := app.MigrateCatalog(cfg)
		if err != nil {
			return err
		}
		if before.UpToDate() {
			fmt.Printf("Catalog schema is up to date (version %d)\n", before.Latest)
			return nil
		}
		fmt.Printf("Migrated catalog schema from version %d to %d\n", before.Version, before.Latest)
		return nil
	},
}

var dbVacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Compact the catalog file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.VacuumCatalog(cmd.Context(), cfg); err != nil {
			return err
		}
		fmt.Println("Catalog vacuumed.")
		return nil
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload a catalog snapshot to the vault",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context(), "db backup", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := a.Backup(cmd.Context()); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Println("Catalog snapshot uploaded.")
		return nil
	},
}

var dbRestoreCmd = &cobra.Command{
	Use:   "restore [VERSION]",
	Short: "Replace the local catalog with the vault snapshot",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		opts := app.RestoreOptions{Force: force, Passphrase: readPassphrase}
		if len(args) == 1 {
			if _, err := fmt.Sscan(args[0], &opts.Version); err != nil || opts.Version <= 0 {
				return fmt.Errorf("invalid snapshot version %q", args[0])
			}
		}

		version, err := app.RestoreCatalog(cmd.Context(), cfg, opts)
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Printf("Restored catalog at version %d\n", version)
		return nil
	},
}

// collection command
var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage collections",
}

var collectionAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context(), "collection add", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		c, err := a.AddCollection(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Added collection %s\n", c.Name)
		return nil
	},
}

var collectionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List collections",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context(), "collection ls", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		colls, err := a.ListCollections(cmd.Context())
		if err != nil {
			return err
		}
		for _, c := range colls {
			fmt.Printf("%s  %s\n", c.CreatedAt.Format("2006-01-02 15:04:05"), c.Name)
		}
		return nil
	},
}

// disk command
var diskCmd = &cobra.Command{
	Use:   "disk",
	Short: "Manage disks",
}

var diskAddCmd = &cobra.Command{
	Use:   "add DEVICE",
	Short: "Register a whole disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		label, _ := cmd.Flags().GetString("label")

		a, err := newApp(cmd.Context(), "disk add", append([]string{"--label", label}, args...))
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		d, err := a.AddDisk(cmd.Context(), args[0], label)
		if err != nil {
			return err
		}
		fmt.Printf("Added disk %s (serial %s)\n", d.Label, d.SerialNumber)
		return nil
	},
}

var diskLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List disks",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context(), "disk ls", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		disks, err := a.ListDisks(cmd.Context())
		if err != nil {
			return err
		}
		for _, d := range disks {
			fmt.Printf("%-20s  %s\n", d.Label, d.SerialNumber)
		}
		return nil
	},
}

// partition command
var partitionCmd = &cobra.Command{
	Use:   "partition",
	Short: "Manage partitions",
}

var partitionAddCmd = &cobra.Command{
	Use:   "add DEVICE",
	Short: "Register a partition of a known disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context(), "partition add", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		p, err := a.AddPartition(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Added partition %s (%s)\n", p.UUID, humanize.IBytes(uint64(p.Capacity)))
		return nil
	},
}

var partitionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List partitions",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd.Context(), "partition ls", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		disks, err := a.ListDisks(cmd.Context())
		if err != nil {
			return err
		}
		labels := make(map[string]string, len(disks))
		for _, d := range disks {
			labels[d.ID.String()] = d.Label
		}

		parts, err := a.ListPartitions(cmd.Context())
		if err != nil {
			return err
		}
		for _, p := range parts {
			fmt.Printf("%-36s  %10s  %s\n", p.UUID, humanize.IBytes(uint64(p.Capacity)), labels[p.DiskID.String()])
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View catalog operation history",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "history", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		ops, err := a.GetHistory(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No catalog operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-15s  %s  %-8s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbVacuumCmd)
	dbCmd.AddCommand(dbBackupCmd)
	dbCmd.AddCommand(dbRestoreCmd)
	dbRestoreCmd.Flags().Bool("force", false, "Replace an existing local catalog")

	collectionCmd.AddCommand(collectionAddCmd)
	collectionCmd.AddCommand(collectionLsCmd)

	diskCmd.AddCommand(diskAddCmd)
	diskCmd.AddCommand(diskLsCmd)
	diskAddCmd.Flags().String("label", "", "Unique label for the disk")
	diskAddCmd.MarkFlagRequired("label")

	partitionCmd.AddCommand(partitionAddCmd)
	partitionCmd.AddCommand(partitionLsCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(collectionCmd)
	rootCmd.AddCommand(diskCmd)
	rootCmd.AddCommand(partitionCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
