// Package config provides configuration loading for bidsforge. It handles
// loading from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Dataset controls the dataset_description.json written to new archives.
	Dataset struct {
		// Name is the dataset name.
		Name string `yaml:"name"`

		// BIDSVersion is the BIDS standard version the archive claims.
		BIDSVersion string `yaml:"bidsVersion"`

		// Authors is the author list for the dataset description.
		Authors []string `yaml:"authors"`
	} `yaml:"dataset"`

	// Convert holds defaults for DICOM conversion.
	Convert struct {
		// Suffix is the imaging method, e.g. "bold".
		Suffix string `yaml:"suffix"`

		// Datatype is the BIDS datatype directory, e.g. "func".
		Datatype string `yaml:"datatype"`
	} `yaml:"convert"`

	// Checks tunes the append compatibility gates.
	Checks struct {
		// DisableSameAcquisitionCheck turns off rejection of appends whose
		// acquisition stamps equal the existing image's.
		DisableSameAcquisitionCheck bool `yaml:"disableSameAcquisitionCheck"`
	} `yaml:"checks"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Dataset.Name = "BIDS-Incremental Dataset"
	cfg.Dataset.BIDSVersion = "1.4.1"
	cfg.Dataset.Authors = []string{"The bidsforge Authors"}

	cfg.Convert.Suffix = "bold"
	cfg.Convert.Datatype = "func"

	cfg.Checks.DisableSameAcquisitionCheck = false

	return cfg
}

// DatasetDescription builds the dataset description mapping the config
// describes.
func (c *Config) DatasetDescription() map[string]any {
	authors := make([]any, len(c.Dataset.Authors))
	for i, a := range c.Dataset.Authors {
		authors[i] = a
	}
	return map[string]any{
		"Name":        c.Dataset.Name,
		"BIDSVersion": c.Dataset.BIDSVersion,
		"Authors":     authors,
	}
}

// LoadConfig loads configuration from a YAML file. If the file doesn't
// exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
