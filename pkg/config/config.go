// Package config provides configuration loading and management for the
// nii3dto4d tools. It handles loading configuration from YAML files
// and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"nii3dto4d/pkg/fourd"
	"nii3dto4d/pkg/nifti"
)

// Config represents the tool configuration loaded from YAML
type Config struct {
	// Stacking parameters
	Stack struct {
		// OutputSuffix is inserted before the extension of the first
		// input filename when deriving the output name
		OutputSuffix string `yaml:"outputSuffix"`

		// CheckAffines controls whether input images must agree in
		// shape and affine transform before stacking
		CheckAffines bool `yaml:"checkAffines"`

		// AffineTolerance is the absolute tolerance used when
		// comparing affine transforms
		AffineTolerance float64 `yaml:"affineTolerance"`
	} `yaml:"stack"`

	// Mask computation parameters
	Mask struct {
		// LowerCutoff is the lower fraction of the intensity histogram
		// discarded when searching for the mask threshold
		LowerCutoff float64 `yaml:"lowerCutoff"`

		// UpperCutoff is the upper fraction of the intensity histogram
		// discarded when searching for the mask threshold
		UpperCutoff float64 `yaml:"upperCutoff"`

		// Opening is the number of morphological opening iterations
		// applied to the raw threshold mask
		Opening int `yaml:"opening"`
	} `yaml:"mask"`

	// Output parameters
	Output struct {
		// Verbose controls the level of progress output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default stacking parameters
	cfg.Stack.OutputSuffix = fourd.OutputSuffix
	cfg.Stack.CheckAffines = true
	cfg.Stack.AffineTolerance = nifti.DefaultAffineTol

	// Set default mask parameters
	cfg.Mask.LowerCutoff = 0.2
	cfg.Mask.UpperCutoff = 0.9
	cfg.Mask.Opening = 2

	// Set default output parameters
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
