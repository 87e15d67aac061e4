package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
	if cfg.Player.DefaultVolume != 70 {
		t.Errorf("Expected default volume 70, got %d", cfg.Player.DefaultVolume)
	}
	if len(cfg.Library.SupportedFormats) == 0 {
		t.Error("Expected default supported formats")
	}
}

func TestLoadConfigCreatesDefaultFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.Path != "./kodu.db" {
		t.Errorf("Expected default database path, got %q", cfg.Database.Path)
	}

	// The defaults must have been written out
	if _, err := os.Stat(configPath); err != nil {
		t.Errorf("Expected config file to be created: %v", err)
	}

	// And load back unchanged
	reloaded, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}
	if reloaded.Library.Path != cfg.Library.Path {
		t.Errorf("Expected round-tripped library path, got %q", reloaded.Library.Path)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[database]
path = "/data/music.db"

[library]
path = "/srv/music"
supported_formats = [".mp3"]
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.Path != "/data/music.db" {
		t.Errorf("Expected overridden database path, got %q", cfg.Database.Path)
	}
	if cfg.Library.Path != "/srv/music" {
		t.Errorf("Expected overridden library path, got %q", cfg.Library.Path)
	}
	// Sections absent from the file keep their defaults
	if cfg.Player.DefaultVolume != 70 {
		t.Errorf("Expected default volume preserved, got %d", cfg.Player.DefaultVolume)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"EmptyDatabasePath", func(c *Config) { c.Database.Path = "" }},
		{"EmptyLibraryPath", func(c *Config) { c.Library.Path = "" }},
		{"NoFormats", func(c *Config) { c.Library.SupportedFormats = nil }},
		{"VolumeTooHigh", func(c *Config) { c.Player.DefaultVolume = 101 }},
		{"VolumeNegative", func(c *Config) { c.Player.DefaultVolume = -1 }},
		{"ZeroPollInterval", func(c *Config) { c.Player.PollIntervalMs = 0 }},
		{"BadLogLevel", func(c *Config) { c.Logging.Level = "verbose" }},
		{"BadLogFormat", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation to fail")
			}
		})
	}
}

func TestIsFormatSupported(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.IsFormatSupported(".mp3") {
		t.Error("Expected .mp3 to be supported")
	}
	if cfg.IsFormatSupported(".exe") {
		t.Error("Expected .exe to be unsupported")
	}
}
