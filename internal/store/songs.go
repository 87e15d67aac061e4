package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"kodu/pkg/models"
)

// UpsertSong inserts a new song or updates the existing row matched by
// filepath, returning the song's database ID. A replaced row keeps its
// id, play_count, last_played and added_date; only the metadata fields
// carried by song are overwritten, so rescanning a path never discards
// play history.
func (s *Store) UpsertSong(song models.Song) (int, error) {
	if song.FilePath == "" {
		return 0, fmt.Errorf("song filepath cannot be empty")
	}
	if song.Artist == "" {
		song.Artist = "Unknown"
	}

	var existingID int
	err := s.conn.QueryRow("SELECT id FROM songs WHERE filepath = ?", song.FilePath).Scan(&existingID)
	if err == nil {
		_, err = s.updateSongStmt.Exec(
			song.Title, song.Artist, song.Album, song.Duration,
			song.FileSize, song.Bitrate, existingID)
		if err != nil {
			s.logger.WithError(err).WithField("song_id", existingID).Error("Failed to update existing song")
			return 0, err
		}
		return existingID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	result, err := s.insertSongStmt.Exec(
		song.Title, song.Artist, song.Album, song.Duration,
		song.FilePath, song.FileSize, song.Bitrate)
	if err != nil {
		s.logger.WithError(err).WithField("filepath", song.FilePath).Error("Failed to insert new song")
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		s.logger.WithError(err).Error("Failed to get last insert ID")
		return 0, err
	}

	return int(id), nil
}

// GetSong returns a single song by its ID.
func (s *Store) GetSong(id int) (*models.Song, error) {
	song, err := scanSongRow(s.getSongByIDStmt.QueryRow(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("song %d: %w", id, ErrNotFound)
		}
		s.logger.WithError(err).WithField("song_id", id).Error("Failed to get song by ID")
		return nil, err
	}
	return song, nil
}

// GetSongByPath returns a single song by its file path. Callers that need
// a stable ID across rescans should look up by path rather than caching
// the result of an earlier UpsertSong.
func (s *Store) GetSongByPath(filePath string) (*models.Song, error) {
	song, err := scanSongRow(s.getSongByPathStmt.QueryRow(filePath))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("song at %s: %w", filePath, ErrNotFound)
		}
		s.logger.WithError(err).WithField("filepath", filePath).Error("Failed to get song by path")
		return nil, err
	}
	return song, nil
}

// ListSongs returns all songs ordered by title.
func (s *Store) ListSongs() ([]models.Song, error) {
	rows, err := s.conn.Query(`
		SELECT id, title, artist, album, duration, filepath, filesize, bitrate, added_date, last_played, play_count
		FROM songs
		ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSongRows(rows)
}

// SearchSongs performs a case-insensitive substring search over title and
// artist, ordered by title.
func (s *Store) SearchSongs(query string) ([]models.Song, error) {
	searchTerm := "%" + query + "%"
	rows, err := s.searchSongsStmt.Query(searchTerm, searchTerm)
	if err != nil {
		s.logger.WithError(err).WithField("query", query).Error("Failed to search songs")
		return nil, err
	}
	defer rows.Close()
	return scanSongRows(rows)
}

// UpdateSong applies the supplied fields to a song. An empty update is a
// documented no-op, not an error.
func (s *Store) UpdateSong(id int, update models.SongUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	var sets []string
	var args []interface{}

	if update.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *update.Title)
	}
	if update.Artist != nil {
		sets = append(sets, "artist = ?")
		args = append(args, *update.Artist)
	}
	if update.Album != nil {
		sets = append(sets, "album = ?")
		args = append(args, *update.Album)
	}
	if update.Duration != nil {
		sets = append(sets, "duration = ?")
		args = append(args, *update.Duration)
	}
	if update.FilePath != nil {
		sets = append(sets, "filepath = ?")
		args = append(args, *update.FilePath)
	}
	if update.FileSize != nil {
		sets = append(sets, "filesize = ?")
		args = append(args, *update.FileSize)
	}
	if update.Bitrate != nil {
		sets = append(sets, "bitrate = ?")
		args = append(args, *update.Bitrate)
	}

	args = append(args, id)
	query := "UPDATE songs SET " + strings.Join(sets, ", ") + " WHERE id = ?"

	result, err := s.conn.Exec(query, args...)
	if err != nil {
		s.logger.WithError(err).WithField("song_id", id).Error("Failed to update song")
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("song %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteSong removes a song and all playlist membership rows referencing
// it, closing the position gap in every affected playlist and recomputing
// each playlist's song count. Runs as a single transaction.
func (s *Store) DeleteSong(id int) error {
	return s.withTx(func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow("SELECT 1 FROM songs WHERE id = ?", id).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("song %d: %w", id, ErrNotFound)
			}
			return err
		}

		rows, err := tx.Query("SELECT playlist_id, position FROM playlist_songs WHERE song_id = ?", id)
		if err != nil {
			return err
		}

		type membership struct {
			playlistID int
			position   int
		}
		var memberships []membership
		for rows.Next() {
			var m membership
			if err := rows.Scan(&m.playlistID, &m.position); err != nil {
				rows.Close()
				return err
			}
			memberships = append(memberships, m)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		if _, err := tx.Exec("DELETE FROM playlist_songs WHERE song_id = ?", id); err != nil {
			return err
		}

		for _, m := range memberships {
			if _, err := tx.Exec(`
				UPDATE playlist_songs SET position = position - 1
				WHERE playlist_id = ? AND position > ?`, m.playlistID, m.position); err != nil {
				return err
			}
			if err := recomputeSongCount(tx, m.playlistID); err != nil {
				return err
			}
			if err := verifyPositions(tx, m.playlistID); err != nil {
				return err
			}
		}

		_, err = tx.Exec("DELETE FROM songs WHERE id = ?", id)
		return err
	})
}

// DeleteSongByPath removes the song row identified by its file path along
// with its playlist memberships. Missing paths are a no-op so the file
// watcher can report removals it has already processed.
func (s *Store) DeleteSongByPath(filePath string) error {
	song, err := s.GetSongByPath(filePath)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return s.DeleteSong(song.ID)
}

// RecordPlay atomically increments a song's play count and stamps
// last_played with the current time.
func (s *Store) RecordPlay(id int) error {
	result, err := s.recordPlayStmt.Exec(time.Now(), id)
	if err != nil {
		s.logger.WithError(err).WithField("song_id", id).Error("Failed to record play")
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("song %d: %w", id, ErrNotFound)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSongRow(row rowScanner) (*models.Song, error) {
	var song models.Song
	var lastPlayed sql.NullTime

	err := row.Scan(&song.ID, &song.Title, &song.Artist, &song.Album,
		&song.Duration, &song.FilePath, &song.FileSize, &song.Bitrate,
		&song.AddedDate, &lastPlayed, &song.PlayCount)
	if err != nil {
		return nil, err
	}
	if lastPlayed.Valid {
		song.LastPlayed = &lastPlayed.Time
	}
	return &song, nil
}

// scanSongRows scans standard song result sets into a slice. Callers must
// have already deferred rows.Close().
func scanSongRows(rows *sql.Rows) ([]models.Song, error) {
	var songs []models.Song
	for rows.Next() {
		song, err := scanSongRow(rows)
		if err != nil {
			return nil, err
		}
		songs = append(songs, *song)
	}
	return songs, rows.Err()
}
