package main

import (
	"os"
	"os/signal"
	"syscall"

	"kodu/internal/config"
	"kodu/internal/downloader"
	"kodu/internal/library"
	"kodu/internal/metadata"
	"kodu/internal/store"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := "./config.toml"

	// Initialize basic logger for startup
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// .env is optional; real env vars win either way
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Warn("Could not load .env file")
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Error loading configuration")
	}

	configureLogger(logger, cfg)

	// Check if music directory exists
	if _, err := os.Stat(cfg.Library.Path); os.IsNotExist(err) {
		logger.WithField("library_path", cfg.Library.Path).Fatal("Music directory does not exist. Please create it and add your music files.")
	}

	// Initialize the metadata store
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing metadata store")
	}
	defer st.Close()

	extractor := metadata.NewExtractor(cfg.Library.SupportedFormats)
	scanner := library.NewScanner(st, extractor)
	defer scanner.Close()

	// Scan the music library
	if cfg.Library.ScanOnStartup {
		results, err := scanner.Scan(cfg.Library.Path)
		if err != nil {
			logger.WithError(err).Fatal("Error scanning music library")
		}
		if len(results) == 0 {
			logger.WithField("supported_formats", cfg.Library.SupportedFormats).Warn("No supported audio files found in music directory")
		}
	}

	// Watch the library for changes
	if cfg.Library.WatchForChanges {
		watcher, err := library.NewWatcher(st, scanner)
		if err != nil {
			logger.WithError(err).Fatal("Error creating file watcher")
		}
		if err := watcher.Start(cfg.Library.Path); err != nil {
			logger.WithError(err).Fatal("Error starting file watcher")
		}
		defer watcher.Close()
	}

	// Downloader is optional; a missing yt-dlp disables it rather than
	// failing startup
	if cfg.Downloader.Enabled {
		if _, err := downloader.NewDownloader(cfg, st); err != nil {
			logger.WithError(err).Warn("Downloader disabled")
		} else {
			logger.Info("Downloader ready")
		}
	}

	songs, err := st.ListSongs()
	if err != nil {
		logger.WithError(err).Warn("Could not get song count")
	} else {
		logger.WithField("songs", len(songs)).Info("Library ready")
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Wait for shutdown signal
	<-c

	logger.Info("Received shutdown signal")
}

// configureLogger applies the logging section of the config.
func configureLogger(logger *logrus.Logger, cfg *config.Config) {
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger.WithError(err).Warn("Could not open log file, using stderr")
		} else {
			logger.SetOutput(f)
		}
	}
}
