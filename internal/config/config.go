// Package config loads and validates server settings. Values come from an
// optional YAML file and are then overridden by command-line flags.
package config

import (
	stdErrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// AppName names the config directory under $XDG_CONFIG_HOME.
const AppName = "hybrid-filesystem"

// Config holds all configurable values for the server.
type Config struct {
	AllowedDirectories   []string `yaml:"allowed_directories"`
	Transport            string   `yaml:"transport"`
	Host                 string   `yaml:"host"`
	Port                 int      `yaml:"port"`
	MaxFileSizeMB        int      `yaml:"max_file_size_mb"`
	OperationTimeoutSec  int      `yaml:"operation_timeout_sec"`
	CommandTimeoutSec    int      `yaml:"command_timeout_sec"`
	SearchMaxFiles       int      `yaml:"search_max_files"`
	WalkMaxEntries       int      `yaml:"walk_max_entries"`
	MaxConcurrentCalls   int      `yaml:"max_concurrent_calls"`
	LockEdits            bool     `yaml:"lock_edits"`
	LockDir              string   `yaml:"lock_dir"`
	LockTimeoutSec       int      `yaml:"lock_timeout_sec"`
	RateLimit            float64  `yaml:"rate_limit"`
	RateBurst            int      `yaml:"rate_burst"`
	LogLevel             string   `yaml:"log_level"`
	CaseInsensitivePaths *bool    `yaml:"case_insensitive_paths"`
}

// Default returns a Config with every field at its default.
func Default() *Config {
	return &Config{
		Transport:           "stdio",
		Host:                "127.0.0.1",
		Port:                8080,
		MaxFileSizeMB:       10,
		OperationTimeoutSec: 30,
		CommandTimeoutSec:   60,
		SearchMaxFiles:      100,
		WalkMaxEntries:      100000,
		MaxConcurrentCalls:  16,
		LockTimeoutSec:      5,
		RateLimit:           50,
		RateBurst:           100,
		LogLevel:            "info",
	}
}

// Path returns the default config file location.
func Path() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Load reads path over the defaults. An empty path means Path(); a missing
// default file is not an error, but a missing explicit one is.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = Path()
	}
	f, err := os.Open(path)
	if err != nil {
		if !explicit && stdErrors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if len(c.AllowedDirectories) == 0 {
		return fmt.Errorf("at least one allowed directory is required")
	}
	for _, dir := range c.AllowedDirectories {
		info, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("allowed directory does not exist: %s", dir)
			}
			return fmt.Errorf("error accessing allowed directory: %v", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("allowed directory is not a directory: %s", dir)
		}
	}

	if c.Transport != "http" && c.Transport != "stdio" {
		return fmt.Errorf("transport must be 'http' or 'stdio'")
	}

	if c.Port < 1024 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1024 and 65535")
	}

	if c.MaxFileSizeMB < 1 || c.MaxFileSizeMB > 100 {
		return fmt.Errorf("max file size must be between 1 and 100 MB")
	}

	if c.OperationTimeoutSec < 1 || c.OperationTimeoutSec > 300 {
		return fmt.Errorf("operation timeout must be between 1 and 300 seconds")
	}

	if c.CommandTimeoutSec < 1 || c.CommandTimeoutSec > 600 {
		return fmt.Errorf("command timeout must be between 1 and 600 seconds")
	}

	if c.SearchMaxFiles < 1 || c.SearchMaxFiles > 100000 {
		return fmt.Errorf("search max files must be between 1 and 100000")
	}

	if c.WalkMaxEntries < 1 {
		return fmt.Errorf("walk max entries must be positive")
	}

	if c.MaxConcurrentCalls < 1 || c.MaxConcurrentCalls > 1024 {
		return fmt.Errorf("max concurrent calls must be between 1 and 1024")
	}

	if c.LockEdits && (c.LockTimeoutSec < 1 || c.LockTimeoutSec > 300) {
		return fmt.Errorf("lock timeout must be between 1 and 300 seconds")
	}

	if c.RateLimit < 0 || c.RateBurst < 0 {
		return fmt.Errorf("rate limit and burst must not be negative")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error")
	}

	return nil
}

func (c *Config) MaxFileSize() int64 { return int64(c.MaxFileSizeMB) * 1024 * 1024 }

func (c *Config) OperationTimeout() time.Duration {
	return time.Duration(c.OperationTimeoutSec) * time.Second
}

func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSec) * time.Second
}

func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutSec) * time.Second
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }
