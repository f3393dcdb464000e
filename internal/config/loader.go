package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader reads, validates and resolves the daemon configuration.
type Loader struct {
	configPath string
}

// NewLoader creates a loader for the given path. An empty path falls back to
// $HOME/.orbiter/orbiter.json.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Path returns the resolved config file path.
func (l *Loader) Path() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".orbiter", "orbiter.json"), nil
}

// Load reads the config file (defaults when absent), applies ORBITER_*
// environment overrides, validates the document against the config schema
// and resolves derived paths.
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.Path()
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := ValidateDocument(raw); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
		}

		v := viper.New()
		v.SetConfigFile(configPath)
		v.SetConfigType("json")
		v.SetEnvPrefix("ORBITER")
		v.AutomaticEnv()

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := resolvePaths(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePaths fills DataDir-derived defaults.
func resolvePaths(cfg *Config) error {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".orbiter")
	}

	if cfg.Memory.Dir == "" {
		cfg.Memory.Dir = filepath.Join(cfg.DataDir, "observations")
	}
	if cfg.Memory.Compression.SnapshotDir == "" {
		cfg.Memory.Compression.SnapshotDir = filepath.Join(cfg.Memory.Dir, "snapshots")
	}
	if cfg.Schedule.StorePath == "" {
		cfg.Schedule.StorePath = filepath.Join(cfg.DataDir, "polling-jobs.json")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "orbiter.log")
	}
	if cfg.Logging.AuditFile == "" {
		cfg.Logging.AuditFile = filepath.Join(cfg.DataDir, "audit.jsonl")
	}
	return nil
}
