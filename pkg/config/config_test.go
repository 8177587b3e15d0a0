package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfig verifies the default values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Stack.OutputSuffix != "_4d" {
		t.Errorf("Expected outputSuffix=_4d, got %s", cfg.Stack.OutputSuffix)
	}
	if !cfg.Stack.CheckAffines {
		t.Errorf("Expected checkAffines=true by default")
	}
	if cfg.Stack.AffineTolerance != 1e-4 {
		t.Errorf("Expected affineTolerance=1e-4, got %g", cfg.Stack.AffineTolerance)
	}
	if cfg.Mask.LowerCutoff != 0.2 || cfg.Mask.UpperCutoff != 0.9 {
		t.Errorf("Expected mask cutoffs [0.2, 0.9], got [%g, %g]",
			cfg.Mask.LowerCutoff, cfg.Mask.UpperCutoff)
	}
	if !cfg.Output.Verbose {
		t.Errorf("Expected verbose=true by default")
	}
}

// TestLoadConfigMissingFile verifies that a missing config file yields
// the defaults rather than an error
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "no-such-config.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed for a missing file: %v", err)
	}
	if cfg.Stack.OutputSuffix != "_4d" {
		t.Errorf("Expected default config for a missing file")
	}
}

// TestSaveLoadRoundTrip verifies that a modified configuration
// survives a save/load cycle, including a false boolean
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "nii3dto4d.yaml")

	cfg := DefaultConfig()
	cfg.Stack.OutputSuffix = "_stacked"
	cfg.Stack.CheckAffines = false
	cfg.Mask.Opening = 5

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Stack.OutputSuffix != "_stacked" {
		t.Errorf("Expected outputSuffix=_stacked, got %s", loaded.Stack.OutputSuffix)
	}
	if loaded.Stack.CheckAffines {
		t.Errorf("Expected checkAffines=false to survive the round trip")
	}
	if loaded.Mask.Opening != 5 {
		t.Errorf("Expected opening=5, got %d", loaded.Mask.Opening)
	}
}

// TestLoadConfigInvalidYAML verifies that malformed YAML is an error
func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("stack: ["), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected an error for malformed YAML")
	}
}

// TestCreateDefaultConfigFile verifies the convenience helper
func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !cfg.Stack.CheckAffines {
		t.Errorf("Expected checkAffines=true in the written defaults")
	}
}
