package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/binlay/binlay/diag"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Test limit defaults
	if cfg.Limits.MaxIterations != 1024 {
		t.Errorf("Expected MaxIterations=1024, got %d", cfg.Limits.MaxIterations)
	}
	if cfg.Limits.MaxRecursionDepth != 100 {
		t.Errorf("Expected MaxRecursionDepth=100, got %d", cfg.Limits.MaxRecursionDepth)
	}
	if cfg.Limits.MaxErrors != 10 {
		t.Errorf("Expected MaxErrors=10, got %d", cfg.Limits.MaxErrors)
	}

	// Test display defaults
	if !cfg.Display.ColorOutput {
		t.Error("Expected ColorOutput=true")
	}
	if cfg.Display.Verbose {
		t.Error("Expected Verbose=false")
	}

	// Test dump defaults
	if cfg.Dump.Enabled {
		t.Error("Expected Dump.Enabled=false")
	}
	if cfg.Dump.ASTFile != "ast.dot" {
		t.Errorf("Expected ASTFile=ast.dot, got %s", cfg.Dump.ASTFile)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "does-not-exist.toml"), nil)
	if err != nil {
		t.Fatalf("Missing config file should fall back to defaults: %v", err)
	}
	if cfg.Limits.MaxIterations != 1024 {
		t.Errorf("Expected default MaxIterations, got %d", cfg.Limits.MaxIterations)
	}
}

func TestLoadFromMissingFileWarns(t *testing.T) {
	d := diag.New("test.lay", "")
	d.SetWriter(io.Discard)

	_, err := LoadFrom(filepath.Join(t.TempDir(), "does-not-exist.toml"), d)
	if err != nil {
		t.Fatalf("Missing config file should fall back to defaults: %v", err)
	}
	if !d.HasCode("CFG_1") {
		t.Error("Expected CFG_1 warning for missing config file")
	}
	if d.HasErrors() {
		t.Error("Config fallback must be a warning, not an error")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[limits]
max_iterations = 64
max_errors = 3

[display]
color_output = false
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path, nil)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Limits.MaxIterations != 64 {
		t.Errorf("Expected MaxIterations=64, got %d", cfg.Limits.MaxIterations)
	}
	if cfg.Limits.MaxErrors != 3 {
		t.Errorf("Expected MaxErrors=3, got %d", cfg.Limits.MaxErrors)
	}
	// Unset keys keep their defaults.
	if cfg.Limits.MaxRecursionDepth != 100 {
		t.Errorf("Expected default MaxRecursionDepth, got %d", cfg.Limits.MaxRecursionDepth)
	}
	if cfg.Display.ColorOutput {
		t.Error("Expected ColorOutput=false")
	}
}

func TestLoadFromInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path, nil); err == nil {
		t.Error("Expected error for invalid config file")
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")

	cfg := DefaultConfig()
	cfg.Limits.MaxIterations = 99
	cfg.Display.Verbose = true

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadFrom(path, nil)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if loaded.Limits.MaxIterations != 99 {
		t.Errorf("Expected MaxIterations=99, got %d", loaded.Limits.MaxIterations)
	}
	if !loaded.Display.Verbose {
		t.Error("Expected Verbose=true")
	}
}
