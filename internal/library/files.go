package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"kodu/internal/store"
	"kodu/pkg/models"

	"github.com/sirupsen/logrus"
)

// Files manages the on-disk side of the library: renaming, deleting and
// reorganizing audio files while keeping the store rows in step.
type Files struct {
	store  *store.Store
	logger *logrus.Logger
}

// NewFiles creates a file manager bound to the store.
func NewFiles(st *store.Store) *Files {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Files{store: st, logger: logger}
}

// RenameSong renames the song's file on disk and updates its title and
// filepath in the store.
func (f *Files) RenameSong(id int, newTitle string) error {
	if newTitle == "" {
		return fmt.Errorf("new title cannot be empty")
	}

	song, err := f.store.GetSong(id)
	if err != nil {
		return err
	}

	oldPath := song.FilePath
	if _, err := os.Stat(oldPath); err != nil {
		return fmt.Errorf("song file missing: %w", err)
	}

	newName := sanitizeFilename(newTitle) + filepath.Ext(oldPath)
	newPath := filepath.Join(filepath.Dir(oldPath), newName)

	if newPath != oldPath {
		if err := os.Rename(oldPath, newPath); err != nil {
			return fmt.Errorf("failed to rename file: %w", err)
		}
	}

	update := models.SongUpdate{Title: &newTitle, FilePath: &newPath}
	if err := f.store.UpdateSong(id, update); err != nil {
		// Put the file back so disk and store stay consistent
		if rbErr := os.Rename(newPath, oldPath); rbErr != nil {
			f.logger.WithError(rbErr).WithField("filepath", newPath).Error("Failed to restore renamed file")
		}
		return err
	}

	return nil
}

// DeleteSong removes a song from the library, optionally deleting the
// backing file from disk as well.
func (f *Files) DeleteSong(id int, deleteFile bool) error {
	song, err := f.store.GetSong(id)
	if err != nil {
		return err
	}

	if deleteFile {
		if err := os.Remove(song.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.logger.WithError(err).WithField("filepath", song.FilePath).Error("Failed to delete file")
		}
	}

	return f.store.DeleteSong(id)
}

// Organize patterns.
const (
	OrganizeArtistAlbum = "artist/album"
	OrganizeArtist      = "artist"
	OrganizeFlat        = "flat"
)

// Organize moves every library file under root into a folder layout
// derived from its metadata. A song whose file has disappeared is
// skipped; per-song failures are logged and do not abort the pass.
func (f *Files) Organize(root, pattern string) error {
	songs, err := f.store.ListSongs()
	if err != nil {
		return err
	}

	for _, song := range songs {
		if err := f.organizeSong(root, pattern, song); err != nil {
			f.logger.WithError(err).WithFields(logrus.Fields{
				"title":    song.Title,
				"filepath": song.FilePath,
			}).Error("Failed to organize song")
		}
	}

	return nil
}

func (f *Files) organizeSong(root, pattern string, song models.Song) error {
	oldPath := song.FilePath
	if _, err := os.Stat(oldPath); err != nil {
		return nil // file gone; leave the stale row for explicit delete
	}

	var targetDir string
	switch pattern {
	case OrganizeArtistAlbum:
		artist := song.Artist
		if artist == "" {
			artist = "Unknown"
		}
		album := song.Album
		if album == "" {
			album = "Unknown Album"
		}
		targetDir = filepath.Join(root, sanitizeFilename(artist), sanitizeFilename(album))
	case OrganizeArtist:
		artist := song.Artist
		if artist == "" {
			artist = "Unknown"
		}
		targetDir = filepath.Join(root, sanitizeFilename(artist))
	case OrganizeFlat:
		targetDir = root
	default:
		return fmt.Errorf("unknown organize pattern: %s", pattern)
	}

	newPath := filepath.Join(targetDir, filepath.Base(oldPath))
	if newPath == oldPath {
		return nil
	}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return err
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return err
	}

	return f.store.UpdateSong(song.ID, models.SongUpdate{FilePath: &newPath})
}

// sanitizeFilename replaces characters that are invalid in file names.
func sanitizeFilename(name string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := name
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	return strings.TrimSpace(result)
}
