package library

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kodu/internal/cache"
	"kodu/internal/metadata"
	"kodu/internal/store"
	"kodu/pkg/models"

	"github.com/sirupsen/logrus"
)

// MetadataReader is the extractor boundary the scanner depends on.
// Failures never propagate past it; the scanner converts them to the
// filename-derived fallback record.
type MetadataReader interface {
	Extract(filePath string) (metadata.Meta, error)
	IsAudioFile(filePath string) bool
}

// ScanResult describes one file processed during a scan.
type ScanResult struct {
	SongID int
	Path   string
	Meta   metadata.Meta
}

// cachedMeta pairs extracted metadata with the file's mtime so a rescan
// can skip re-extraction of unchanged files.
type cachedMeta struct {
	Meta    metadata.Meta
	ModTime time.Time
}

// Scanner walks a library directory, extracts metadata and upserts the
// results into the store.
type Scanner struct {
	store  *store.Store
	reader MetadataReader
	cache  *cache.MemoryCache
	logger *logrus.Logger
}

// NewScanner creates a library scanner.
func NewScanner(st *store.Store, reader MetadataReader) *Scanner {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Scanner{
		store:  st,
		reader: reader,
		cache:  cache.NewMemoryCache(15 * time.Minute),
		logger: logger,
	}
}

// Close releases the scan cache.
func (s *Scanner) Close() {
	s.cache.Close()
}

// Scan walks root recursively and upserts every supported audio file it
// finds. A file whose metadata cannot be extracted is stored with
// filename-derived defaults rather than aborting the scan. Rows whose
// backing file has since disappeared are NOT removed here; they persist
// until an explicit delete. Callers should surface that limitation when
// reporting scan results.
func (s *Scanner) Scan(root string) ([]ScanResult, error) {
	started := time.Now()
	var results []ScanResult

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree: log and keep walking the rest
			s.logger.WithError(err).WithField("path", path).Warn("Skipping unreadable path")
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if isHiddenOrTemp(path) || !s.reader.IsAudioFile(path) {
			return nil
		}

		result, err := s.ProcessFile(path)
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Error("Failed to process file")
			return nil
		}
		results = append(results, result)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"root":     root,
		"files":    len(results),
		"duration": time.Since(started),
	}).Info("Library scan complete")

	return results, nil
}

// ProcessFile extracts metadata for a single file (falling back to
// filename-derived defaults on extractor failure) and upserts it into
// the store. The file watcher shares this path with full scans.
func (s *Scanner) ProcessFile(path string) (ScanResult, error) {
	stat, statErr := os.Stat(path)

	meta, ok := s.cachedMetaFor(path, stat)
	if !ok {
		var err error
		meta, err = s.reader.Extract(path)
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Extractor failed, using fallback metadata")
			meta = metadata.Fallback(path)
			if statErr == nil {
				meta.FileSize = stat.Size()
			}
		}
		if statErr == nil {
			s.cache.Set(path, cachedMeta{Meta: meta, ModTime: stat.ModTime()})
		}
	}

	song := models.Song{
		Title:    meta.Title,
		Artist:   meta.Artist,
		Album:    meta.Album,
		Duration: meta.Duration,
		FilePath: path,
		FileSize: meta.FileSize,
		Bitrate:  meta.Bitrate,
	}

	id, err := s.store.UpsertSong(song)
	if err != nil {
		return ScanResult{}, err
	}

	return ScanResult{SongID: id, Path: path, Meta: meta}, nil
}

// cachedMetaFor returns previously extracted metadata when the file's
// mtime has not changed since it was cached.
func (s *Scanner) cachedMetaFor(path string, stat os.FileInfo) (metadata.Meta, bool) {
	if stat == nil {
		return metadata.Meta{}, false
	}
	value, exists := s.cache.Get(path)
	if !exists {
		return metadata.Meta{}, false
	}
	entry, ok := value.(cachedMeta)
	if !ok || !entry.ModTime.Equal(stat.ModTime()) {
		return metadata.Meta{}, false
	}
	return entry.Meta, true
}

// isHiddenOrTemp filters editor droppings and partially written files.
func isHiddenOrTemp(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") ||
		strings.HasSuffix(name, ".part")
}
