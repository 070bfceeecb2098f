package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Convert.Suffix != "bold" || cfg.Convert.Datatype != "func" {
		t.Errorf("convert defaults = %q/%q, want bold/func",
			cfg.Convert.Suffix, cfg.Convert.Datatype)
	}
	if cfg.Dataset.BIDSVersion != "1.4.1" {
		t.Errorf("BIDSVersion = %q, want 1.4.1", cfg.Dataset.BIDSVersion)
	}
	if cfg.Checks.DisableSameAcquisitionCheck {
		t.Error("acquisition check disabled by default")
	}
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bidsforge.yaml")
	body := "dataset:\n  name: My Study\nchecks:\n  disableSameAcquisitionCheck: true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Dataset.Name != "My Study" {
		t.Errorf("name = %q, want My Study", cfg.Dataset.Name)
	}
	if !cfg.Checks.DisableSameAcquisitionCheck {
		t.Error("checks override not applied")
	}
	// Unset sections keep their defaults.
	if cfg.Convert.Suffix != "bold" {
		t.Errorf("suffix = %q, want default bold", cfg.Convert.Suffix)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("dataset: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dataset.Name = "Round Trip"
	cfg.Dataset.Authors = []string{"A. Author", "B. Author"}

	path := filepath.Join(t.TempDir(), "sub", "bidsforge.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got.Dataset.Name != "Round Trip" {
		t.Errorf("name = %q, want Round Trip", got.Dataset.Name)
	}
	if len(got.Dataset.Authors) != 2 {
		t.Errorf("authors = %v, want 2 entries", got.Dataset.Authors)
	}
}

func TestDatasetDescription(t *testing.T) {
	desc := DefaultConfig().DatasetDescription()
	if desc["Name"] == "" || desc["BIDSVersion"] == "" {
		t.Errorf("description missing required fields: %v", desc)
	}
}
