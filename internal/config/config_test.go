package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestApplyDefaults(t *testing.T) {
	SetLogger(zerolog.New(os.Stdout).Level(zerolog.ErrorLevel))

	t.Run("Config struct defaults", func(t *testing.T) {
		config := &Config{}
		applyDefaults(config)

		if config.Site.Name != "Matrix CBS" {
			t.Errorf("Expected site name 'Matrix CBS', got %q", config.Site.Name)
		}
		if config.Server.Host != "0.0.0.0" {
			t.Errorf("Expected host '0.0.0.0', got %q", config.Server.Host)
		}
		if config.Server.Port != "12800" {
			t.Errorf("Expected port '12800', got %q", config.Server.Port)
		}
		if config.Content.PostsPerPage != 20 {
			t.Errorf("Expected posts_per_page 20, got %d", config.Content.PostsPerPage)
		}
		if config.Content.RelatedDefault != 4 {
			t.Errorf("Expected related_default 4, got %d", config.Content.RelatedDefault)
		}
		if !config.Autosave.Enabled {
			t.Error("Expected autosave enabled by default")
		}
		if config.Autosave.DebounceSeconds != 3 {
			t.Errorf("Expected debounce_seconds 3, got %d", config.Autosave.DebounceSeconds)
		}
		if config.Autosave.IntervalSeconds != 30 {
			t.Errorf("Expected interval_seconds 30, got %d", config.Autosave.IntervalSeconds)
		}
		if config.Maintenance.Enabled {
			t.Error("Expected maintenance disabled by default")
		}
		if len(config.Maintenance.AllowedIPs) != 2 {
			t.Errorf("Expected 2 default allowed IPs, got %v", config.Maintenance.AllowedIPs)
		}
		if config.Uploads.Backend != "fs" {
			t.Errorf("Expected uploads backend 'fs', got %q", config.Uploads.Backend)
		}
		if config.Logging.Level != "info" {
			t.Errorf("Expected log level 'info', got %q", config.Logging.Level)
		}
	})
}

func TestLoadConfig(t *testing.T) {
	SetLogger(zerolog.New(os.Stdout).Level(zerolog.ErrorLevel))

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		if err := LoadConfig("does-not-exist.yaml"); err != nil {
			t.Fatalf("Expected no error for missing config, got %v", err)
		}
		if AppConfig == nil || AppConfig.Site.Name != "Matrix CBS" {
			t.Error("Expected default config when file is missing")
		}
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		content := "site:\n  name: Override\nautosave:\n  debounce_seconds: 5\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		if err := LoadConfig(path); err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if AppConfig.Site.Name != "Override" {
			t.Errorf("Expected overridden site name, got %q", AppConfig.Site.Name)
		}
		if AppConfig.Autosave.DebounceSeconds != 5 {
			t.Errorf("Expected overridden debounce 5, got %d", AppConfig.Autosave.DebounceSeconds)
		}
		// Untouched fields keep their defaults.
		if AppConfig.Server.Port != "12800" {
			t.Errorf("Expected default port to survive partial config, got %q", AppConfig.Server.Port)
		}
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("site: [unclosed"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := LoadConfig(path); err == nil {
			t.Error("Expected error for malformed config")
		}
	})
}
