package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"kodu/pkg/models"
)

// CreatePlaylist inserts a new playlist and returns its ID.
func (s *Store) CreatePlaylist(name, description string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("playlist name cannot be empty")
	}

	result, err := s.conn.Exec(`
		INSERT INTO playlists (name, description)
		VALUES (?, ?)`, name, description)
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	return int(id), err
}

// GetPlaylist returns a single playlist by its ID.
func (s *Store) GetPlaylist(id int) (*models.Playlist, error) {
	var playlist models.Playlist
	var description sql.NullString

	err := s.conn.QueryRow(`
		SELECT id, name, description, created_date, song_count
		FROM playlists WHERE id = ?`, id).Scan(
		&playlist.ID, &playlist.Name, &description,
		&playlist.CreatedDate, &playlist.SongCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("playlist %d: %w", id, ErrNotFound)
		}
		s.logger.WithError(err).WithField("playlist_id", id).Error("Failed to get playlist")
		return nil, err
	}

	if description.Valid {
		playlist.Description = description.String
	}
	return &playlist, nil
}

// ListPlaylists returns all playlists ordered by name.
func (s *Store) ListPlaylists() ([]models.Playlist, error) {
	rows, err := s.conn.Query(`
		SELECT id, name, description, created_date, song_count
		FROM playlists
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var playlists []models.Playlist
	for rows.Next() {
		var playlist models.Playlist
		var description sql.NullString
		err := rows.Scan(&playlist.ID, &playlist.Name, &description,
			&playlist.CreatedDate, &playlist.SongCount)
		if err != nil {
			return nil, err
		}
		if description.Valid {
			playlist.Description = description.String
		}
		playlists = append(playlists, playlist)
	}

	return playlists, rows.Err()
}

// UpdatePlaylist applies the supplied fields to a playlist. An empty
// update is a no-op.
func (s *Store) UpdatePlaylist(id int, update models.PlaylistUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	var sets []string
	var args []interface{}

	if update.Name != nil {
		if *update.Name == "" {
			return fmt.Errorf("playlist name cannot be empty")
		}
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}

	args = append(args, id)
	query := "UPDATE playlists SET " + strings.Join(sets, ", ") + " WHERE id = ?"

	result, err := s.conn.Exec(query, args...)
	if err != nil {
		s.logger.WithError(err).WithField("playlist_id", id).Error("Failed to update playlist")
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("playlist %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeletePlaylist deletes the playlist; membership rows referencing it are
// removed by the foreign-key cascade.
func (s *Store) DeletePlaylist(id int) error {
	result, err := s.conn.Exec("DELETE FROM playlists WHERE id = ?", id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("playlist %d: %w", id, ErrNotFound)
	}
	return nil
}

// AddToPlaylist appends a song to the end of a playlist. Adding a song
// that is already a member is an idempotent no-op. The new member gets
// position max+1 and the playlist's song count is recomputed from the
// membership table, all within one transaction.
func (s *Store) AddToPlaylist(playlistID, songID int) error {
	return s.withTx(func(tx *sql.Tx) error {
		var maxPosition sql.NullInt64
		err := tx.QueryRow(`
			SELECT MAX(position) FROM playlist_songs WHERE playlist_id = ?`,
			playlistID).Scan(&maxPosition)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		position := 1
		if maxPosition.Valid {
			position = int(maxPosition.Int64) + 1
		}

		_, err = tx.Exec(`
			INSERT INTO playlist_songs (playlist_id, song_id, position)
			VALUES (?, ?, ?)
			ON CONFLICT(playlist_id, song_id) DO NOTHING`,
			playlistID, songID, position)
		if err != nil {
			return err
		}

		if err := recomputeSongCount(tx, playlistID); err != nil {
			return err
		}
		return verifyPositions(tx, playlistID)
	})
}

// RemoveFromPlaylist removes a song from a playlist and closes the
// position gap by decrementing every member after it. Removing a pair
// that does not exist is a no-op.
func (s *Store) RemoveFromPlaylist(playlistID, songID int) error {
	return s.withTx(func(tx *sql.Tx) error {
		var position int
		err := tx.QueryRow(`
			SELECT position FROM playlist_songs
			WHERE playlist_id = ? AND song_id = ?`,
			playlistID, songID).Scan(&position)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}

		_, err = tx.Exec(`
			DELETE FROM playlist_songs
			WHERE playlist_id = ? AND song_id = ?`,
			playlistID, songID)
		if err != nil {
			return err
		}

		_, err = tx.Exec(`
			UPDATE playlist_songs SET position = position - 1
			WHERE playlist_id = ? AND position > ?`,
			playlistID, position)
		if err != nil {
			return err
		}

		if err := recomputeSongCount(tx, playlistID); err != nil {
			return err
		}
		return verifyPositions(tx, playlistID)
	})
}

// ListPlaylistSongs returns a playlist's songs ordered by stored position.
func (s *Store) ListPlaylistSongs(playlistID int) ([]models.PlaylistEntry, error) {
	rows, err := s.conn.Query(`
		SELECT s.id, s.title, s.artist, s.album, s.duration, s.filepath, s.filesize, s.bitrate,
		       s.added_date, s.last_played, s.play_count, ps.position, ps.added_date
		FROM songs s
		JOIN playlist_songs ps ON s.id = ps.song_id
		WHERE ps.playlist_id = ?
		ORDER BY ps.position`, playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.PlaylistEntry
	for rows.Next() {
		var entry models.PlaylistEntry
		var lastPlayed sql.NullTime
		err := rows.Scan(&entry.ID, &entry.Title, &entry.Artist, &entry.Album,
			&entry.Duration, &entry.FilePath, &entry.FileSize, &entry.Bitrate,
			&entry.AddedDate, &lastPlayed, &entry.PlayCount,
			&entry.Position, &entry.EntryAdded)
		if err != nil {
			return nil, err
		}
		if lastPlayed.Valid {
			entry.LastPlayed = &lastPlayed.Time
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Reorder moves a song to a new position within a playlist, shifting the
// members between the old and new position by one. The requested position
// is clamped to [1, member count] so the contiguity invariant holds for
// any input. Reordering a song that is not a member is a no-op. The whole
// sequence runs in one transaction.
func (s *Store) Reorder(playlistID, songID, newPosition int) error {
	return s.withTx(func(tx *sql.Tx) error {
		var oldPosition int
		err := tx.QueryRow(`
			SELECT position FROM playlist_songs
			WHERE playlist_id = ? AND song_id = ?`,
			playlistID, songID).Scan(&oldPosition)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}

		var count int
		err = tx.QueryRow(`
			SELECT COUNT(*) FROM playlist_songs WHERE playlist_id = ?`,
			playlistID).Scan(&count)
		if err != nil {
			return err
		}

		if newPosition < 1 {
			newPosition = 1
		}
		if newPosition > count {
			newPosition = count
		}
		if newPosition == oldPosition {
			return nil
		}

		if oldPosition < newPosition {
			// Moving down: pull the range (old, new] up by one
			_, err = tx.Exec(`
				UPDATE playlist_songs SET position = position - 1
				WHERE playlist_id = ? AND position > ? AND position <= ?`,
				playlistID, oldPosition, newPosition)
		} else {
			// Moving up: push the range [new, old) down by one
			_, err = tx.Exec(`
				UPDATE playlist_songs SET position = position + 1
				WHERE playlist_id = ? AND position >= ? AND position < ?`,
				playlistID, newPosition, oldPosition)
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(`
			UPDATE playlist_songs SET position = ?
			WHERE playlist_id = ? AND song_id = ?`,
			newPosition, playlistID, songID)
		if err != nil {
			return err
		}

		return verifyPositions(tx, playlistID)
	})
}

// recomputeSongCount refreshes the playlist's cached song count from the
// membership table. The cache is never incremented in place.
func recomputeSongCount(tx *sql.Tx, playlistID int) error {
	_, err := tx.Exec(`
		UPDATE playlists
		SET song_count = (
			SELECT COUNT(*) FROM playlist_songs
			WHERE playlist_id = ?
		)
		WHERE id = ?`, playlistID, playlistID)
	return err
}

// verifyPositions checks that a playlist's positions form the contiguous
// set {1..N}. A gap or duplicate rolls back the enclosing transaction
// with ErrInvariantViolation rather than being silently repaired, since a
// repair could mask a deeper ordering bug.
func verifyPositions(tx *sql.Tx, playlistID int) error {
	var count, distinct, minPos, maxPos int
	err := tx.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT position),
		       COALESCE(MIN(position), 0), COALESCE(MAX(position), 0)
		FROM playlist_songs WHERE playlist_id = ?`,
		playlistID).Scan(&count, &distinct, &minPos, &maxPos)
	if err != nil {
		return err
	}

	if count == 0 {
		return nil
	}
	if distinct != count || minPos != 1 || maxPos != count {
		return fmt.Errorf("playlist %d has %d members with positions [%d..%d] (%d distinct): %w",
			playlistID, count, minPos, maxPos, distinct, ErrInvariantViolation)
	}
	return nil
}
