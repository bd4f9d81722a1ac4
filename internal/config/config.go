package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"hoard-go/internal/digest"
	"hoard-go/internal/hoard"
)

// Config represents the main configuration for hoard.
type Config struct {
	// CatalogID names this catalog's snapshots in a vault.
	CatalogID  string           `toml:"catalog_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
	Files      FilesConfig      `toml:"files"`
	Archive    ArchiveConfig    `toml:"archive"`
	Media      MediaConfig      `toml:"media"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// EncryptionConfig holds paths to the age key pair used for snapshots.
type EncryptionConfig struct {
	Type             string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath    string `toml:"public_key_path"`
	PrivateKeyPath   string `toml:"private_key_path"`
	EncryptSnapshots bool   `toml:"encrypt_snapshots"`
}

// FilesConfig controls what is computed for every ingested file.
type FilesConfig struct {
	Hashes []string `toml:"hashes"`
}

// ArchiveConfig controls archive inspection during ingestion.
type ArchiveConfig struct {
	Inspect   bool   `toml:"inspect"`
	OnCorrupt string `toml:"on_corrupt"` // "opaque" (default) or "reject"
}

// MediaConfig points the block device prober at sysfs and the udev database.
type MediaConfig struct {
	SysfsRoot string `toml:"sysfs_root"`
	UdevRoot  string `toml:"udev_root"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// VaultConfig represents configuration for a snapshot vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`

	// S3Endpoint points at an S3-compatible store instead of AWS.
	S3Endpoint string `toml:"s3_endpoint,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// DatabaseConfig represents configuration for the catalog database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// NewConfig creates a new Config with the provided values and defaults for
// everything else.
func NewConfig(catalogID, baseDir string) *Config {
	hashes := make([]string, len(digest.DefaultAlgorithms))
	for i, alg := range digest.DefaultAlgorithms {
		hashes[i] = alg.String()
	}
	return &Config{
		CatalogID: catalogID,
		BaseDir:   baseDir,
		LogDir:    filepath.Join(baseDir, "log"),
		Database:  DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "hoard.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "hoard.key"),
		},
		Files:   FilesConfig{Hashes: hashes},
		Archive: ArchiveConfig{Inspect: true, OnCorrupt: string(hoard.CorruptOpaque)},
		Media:   MediaConfig{SysfsRoot: "/sys", UdevRoot: "/run/udev/data"},
	}
}

// Validate rejects settings that would only fail later, mid-operation.
func (c *Config) Validate() error {
	if _, err := c.ServiceOptions(); err != nil {
		return err
	}
	switch c.Database.Type {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown database type: %q", c.Database.Type)
	}
	for _, v := range c.Vaults {
		switch v.Type {
		case "memory", "filesystem", "s3":
		default:
			return fmt.Errorf("vault %q: unknown type %q", v.Name, v.Type)
		}
	}
	return nil
}

// ServiceOptions converts the [files] and [archive] sections into ingestion
// options. An empty hash list means the defaults.
func (c *Config) ServiceOptions() (hoard.Options, error) {
	opts := hoard.Options{InspectArchives: c.Archive.Inspect}
	if len(c.Files.Hashes) == 0 {
		opts.Algorithms = digest.DefaultAlgorithms
	} else {
		algs, err := digest.ParseAlgorithms(c.Files.Hashes)
		if err != nil {
			return hoard.Options{}, fmt.Errorf("[files] hashes: %w", err)
		}
		opts.Algorithms = algs
	}
	policy, err := hoard.ParseCorruptPolicy(c.Archive.OnCorrupt)
	if err != nil {
		return hoard.Options{}, fmt.Errorf("[archive] on_corrupt: %w", err)
	}
	opts.CorruptPolicy = policy
	return opts, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
