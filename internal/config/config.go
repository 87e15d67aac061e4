package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Library    LibraryConfig    `toml:"library"`
	Player     PlayerConfig     `toml:"player"`
	Logging    LoggingConfig    `toml:"logging"`
	Downloader DownloaderConfig `toml:"downloader"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LibraryConfig contains music library configuration
type LibraryConfig struct {
	Path             string   `toml:"path"`
	SupportedFormats []string `toml:"supported_formats"`
	WatchForChanges  bool     `toml:"watch_for_changes"`
	ScanOnStartup    bool     `toml:"scan_on_startup"`
}

// PlayerConfig contains playback configuration
type PlayerConfig struct {
	DefaultVolume  int `toml:"default_volume"`   // 0-100
	PollIntervalMs int `toml:"poll_interval_ms"` // position refresh interval
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// DownloaderConfig contains audio download configuration
type DownloaderConfig struct {
	Enabled        bool     `toml:"enabled"`
	YtDlpPath      string   `toml:"yt_dlp_path"`
	MaxConcurrent  int      `toml:"max_concurrent_downloads"`
	AudioFormat    string   `toml:"audio_format"`
	AudioQuality   string   `toml:"audio_quality"`
	AllowedDomains []string `toml:"allowed_domains"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "./kodu.db",
		},
		Library: LibraryConfig{
			Path:             "./music",
			SupportedFormats: []string{".mp3", ".wav", ".flac", ".m4a", ".ogg"},
			WatchForChanges:  true,
			ScanOnStartup:    true,
		},
		Player: PlayerConfig{
			DefaultVolume:  70,
			PollIntervalMs: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
		Downloader: DownloaderConfig{
			Enabled:        true,
			YtDlpPath:      "yt-dlp",
			MaxConcurrent:  2,
			AudioFormat:    "mp3",
			AudioQuality:   "192",
			AllowedDomains: []string{"youtube.com", "youtu.be", "soundcloud.com"},
		},
	}
}

// LoadConfig loads configuration from a TOML file, creating the file with
// defaults when it does not exist yet.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Kodu Music Library Configuration
# Edit the values below to customize library, playback and download settings.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if c.Library.Path == "" {
		return fmt.Errorf("library path cannot be empty")
	}
	if len(c.Library.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format must be specified")
	}

	if c.Player.DefaultVolume < 0 || c.Player.DefaultVolume > 100 {
		return fmt.Errorf("default volume must be between 0 and 100")
	}
	if c.Player.PollIntervalMs < 1 {
		return fmt.Errorf("poll interval must be at least 1ms")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// IsFormatSupported checks if an audio file extension is supported
func (c *Config) IsFormatSupported(ext string) bool {
	for _, supported := range c.Library.SupportedFormats {
		if supported == ext {
			return true
		}
	}
	return false
}
