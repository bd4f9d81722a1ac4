package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables overriding the default locations.
const (
	ConfigPathEnv = "HOARD_CONFIG_PATH"
	HomeEnv       = "HOARD_HOME"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - HOARD_CONFIG_PATH: config file location (default: ~/.config/hoard.toml)
//   - HOARD_HOME: base directory for hoard data (default: ~/.local/share/hoard)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv(ConfigPathEnv); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "hoard.toml"), nil
}

func getBaseDir() (string, error) {
	if path := os.Getenv(HomeEnv); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "hoard"), nil
}
