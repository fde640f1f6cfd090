// Package config loads and saves the binlay configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"

	"github.com/binlay/binlay/diag"
)

// Config represents the compiler configuration
type Config struct {
	// Evaluation limits
	Limits struct {
		MaxIterations     int `toml:"max_iterations"`
		MaxRecursionDepth int `toml:"max_recursion_depth"`
		MaxErrors         int `toml:"max_errors"`
	} `toml:"limits"`

	// Display settings
	Display struct {
		ColorOutput bool `toml:"color_output"`
		Verbose     bool `toml:"verbose"`
	} `toml:"display"`

	// Debug dump settings
	Dump struct {
		Enabled bool   `toml:"enabled"`
		ASTFile string `toml:"ast_file"`
	} `toml:"dump"`
}

// DefaultConfig returns a configuration with default values. The
// limits default to the language's documented caps; raising them
// never changes the meaning of a valid program.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Limits.MaxIterations = 1024
	cfg.Limits.MaxRecursionDepth = 100
	cfg.Limits.MaxErrors = 10

	cfg.Display.ColorOutput = true
	cfg.Display.Verbose = false

	cfg.Dump.Enabled = false
	cfg.Dump.ASTFile = "ast.dot"

	return cfg
}

// GetConfigPath returns the platform-specific config file path
func GetConfigPath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		// Windows: %APPDATA%\binlay\config.toml
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, "binlay")

	case "darwin", "linux":
		// macOS/Linux: ~/.config/binlay/config.toml
		homeDir, err := os.UserHomeDir()
		if err != nil {
			// Fallback to current directory
			return "config.toml"
		}
		configDir = filepath.Join(homeDir, ".config", "binlay")

	default:
		// Unknown platform: use current directory
		return "config.toml"
	}

	// Ensure directory exists
	if err := os.MkdirAll(configDir, 0750); err != nil {
		// If we can't create the directory, fall back to current directory
		return "config.toml"
	}

	return filepath.Join(configDir, "config.toml")
}

// Load loads configuration from the default config file. A missing
// default file silently yields the defaults.
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath(), nil)
}

// LoadFrom loads configuration from the specified file. A missing
// file yields the defaults; when d is non-nil the fallback is
// reported as a warning.
func LoadFrom(path string, d *diag.Diags) (*Config, error) {
	cfg := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if d != nil {
			d.Warn0("CFG_1", fmt.Sprintf("Configuration file %s not found, using defaults.", path))
		}
		return cfg, nil
	}

	// Read and parse config file
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo saves configuration to the specified file
func (c *Config) SaveTo(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 -- user config file path
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
