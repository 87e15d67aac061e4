package library

import (
	"os"
	"path/filepath"
	"time"

	"kodu/internal/store"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher keeps the store in sync with filesystem changes under the
// library root: new or rewritten audio files are upserted, removed files
// are deleted by path. It runs off the interactive path; callers start it
// once and Close it on shutdown.
type Watcher struct {
	fsw     *fsnotify.Watcher
	store   *store.Store
	scanner *Scanner
	logger  *logrus.Logger
}

// NewWatcher creates a watcher that feeds events through the scanner.
func NewWatcher(st *store.Store, scanner *Scanner) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Watcher{
		fsw:     fsw,
		store:   st,
		scanner: scanner,
		logger:  logger,
	}, nil
}

// Start begins recursive monitoring of root.
func (w *Watcher) Start(root string) error {
	go w.watchFiles()

	if err := w.addDirectoryTree(root); err != nil {
		return err
	}

	w.logger.WithField("library_path", root).Info("File watcher started")
	return nil
}

// Close stops the watcher (idempotent).
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// addDirectoryTree recursively walks and adds subdirectories to the watcher.
func (w *Watcher) addDirectoryTree(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// watchFiles selects on watcher channels and dispatches events.
func (w *Watcher) watchFiles() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("File watcher error")
		}
	}
}

// handleEvent applies filtering and delegates creation/removal actions.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if isHiddenOrTemp(event.Name) {
		return
	}

	isAudioFile := w.scanner.reader.IsAudioFile(event.Name)

	switch {
	case event.Has(fsnotify.Create) && isAudioFile:
		go func(name string) {
			time.Sleep(500 * time.Millisecond) // Ensure file is fully written
			w.handleNewFile(name)
		}(event.Name)

	case event.Has(fsnotify.Write) && isAudioFile:
		go w.handleNewFile(event.Name)

	case (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) && isAudioFile:
		go w.handleRemovedFile(event.Name)

	case event.Has(fsnotify.Create):
		// Check if it's a new directory
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.fsw.Add(event.Name)
			w.logger.WithField("directory", event.Name).Info("Watching new directory")
		}
	}
}

// handleNewFile extracts metadata and upserts the song row.
func (w *Watcher) handleNewFile(filePath string) {
	w.logger.WithField("filepath", filePath).Info("Audio file changed")

	result, err := w.scanner.ProcessFile(filePath)
	if err != nil {
		w.logger.WithError(err).WithField("filepath", filePath).Error("Error processing changed file")
		return
	}

	w.logger.WithFields(logrus.Fields{
		"artist": result.Meta.Artist,
		"title":  result.Meta.Title,
		"id":     result.SongID,
	}).Info("Updated song from file change")
}

// handleRemovedFile removes song rows referencing deleted audio files.
func (w *Watcher) handleRemovedFile(filePath string) {
	w.logger.WithField("filepath", filePath).Info("Audio file removed")

	if err := w.store.DeleteSongByPath(filePath); err != nil {
		w.logger.WithError(err).WithField("filepath", filePath).Error("Error removing song from store")
		return
	}

	w.logger.WithField("filepath", filePath).Info("Removed song from store")
}
