package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when an id or path lookup misses. Callers are
// expected to treat it as an empty result, not a failure.
var ErrNotFound = errors.New("not found")

// ErrInvariantViolation is returned when a membership mutation would leave
// playlist positions with a gap or duplicate. The enclosing transaction is
// rolled back; the violation is never silently repaired.
var ErrInvariantViolation = errors.New("playlist position invariant violated")

// Store wraps a *sql.DB providing higher-level helper methods for the
// application's persistent library. It is safe for concurrent use because
// the underlying *sql.DB is concurrency-safe; every multi-statement
// membership mutation runs inside a single transaction.
type Store struct {
	conn   *sql.DB
	logger *logrus.Logger

	// Prepared statements for the hot paths
	getSongByIDStmt   *sql.Stmt
	getSongByPathStmt *sql.Stmt
	insertSongStmt    *sql.Stmt
	updateSongStmt    *sql.Stmt
	searchSongsStmt   *sql.Stmt
	recordPlayStmt    *sql.Stmt
}

// Open opens (or creates) a SQLite database at the provided path and
// ensures all required tables and indices exist. It also applies
// lightweight performance-oriented pragmas (WAL, cache sizing). Caller
// should Close() it when finished.
func Open(dbPath string) (*Store, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works better with fewer connections
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	s := &Store{
		conn:   conn,
		logger: logger,
	}

	if err := s.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := s.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Library store initialized")
	return s, nil
}

// createTables creates tables and indices if they do not already exist.
// This is idempotent and safe to call multiple times.
func (s *Store) createTables() error {
	songsTable := `
	CREATE TABLE IF NOT EXISTS songs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		artist TEXT NOT NULL DEFAULT 'Unknown',
		album TEXT NOT NULL DEFAULT '',
		duration INTEGER DEFAULT 0,
		filepath TEXT NOT NULL UNIQUE,
		filesize INTEGER DEFAULT 0,
		bitrate INTEGER DEFAULT 0,
		added_date DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_played DATETIME,
		play_count INTEGER NOT NULL DEFAULT 0
	);`

	playlistsTable := `
	CREATE TABLE IF NOT EXISTS playlists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT,
		created_date DATETIME DEFAULT CURRENT_TIMESTAMP,
		song_count INTEGER NOT NULL DEFAULT 0
	);`

	playlistSongsTable := `
	CREATE TABLE IF NOT EXISTS playlist_songs (
		playlist_id INTEGER,
		song_id INTEGER,
		position INTEGER NOT NULL,
		added_date DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (playlist_id) REFERENCES playlists(id) ON DELETE CASCADE,
		FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE,
		PRIMARY KEY (playlist_id, song_id)
	);`

	downloadJobsTable := `
	CREATE TABLE IF NOT EXISTS download_jobs (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		title TEXT,
		artist TEXT,
		status TEXT,
		progress INTEGER,
		error TEXT,
		output_path TEXT,
		created_at DATETIME,
		completed_at DATETIME
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_songs_title ON songs(title);",
		"CREATE INDEX IF NOT EXISTS idx_songs_artist ON songs(artist);",
		"CREATE INDEX IF NOT EXISTS idx_songs_filepath ON songs(filepath);",
		"CREATE INDEX IF NOT EXISTS idx_playlist_songs_position ON playlist_songs(playlist_id, position);",
		"CREATE INDEX IF NOT EXISTS idx_download_jobs_created ON download_jobs(created_at);",
	}

	tables := []string{songsTable, playlistsTable, playlistSongsTable, downloadJobsTable}
	for _, table := range tables {
		if _, err := s.conn.Exec(table); err != nil {
			return err
		}
	}

	for _, index := range indices {
		if _, err := s.conn.Exec(index); err != nil {
			return err
		}
	}

	return nil
}

// prepareStatements prepares commonly used SQL statements
func (s *Store) prepareStatements() error {
	var err error

	s.getSongByIDStmt, err = s.conn.Prepare(`
		SELECT id, title, artist, album, duration, filepath, filesize, bitrate, added_date, last_played, play_count
		FROM songs WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get song by ID statement: %w", err)
	}

	s.getSongByPathStmt, err = s.conn.Prepare(`
		SELECT id, title, artist, album, duration, filepath, filesize, bitrate, added_date, last_played, play_count
		FROM songs WHERE filepath = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get song by path statement: %w", err)
	}

	s.insertSongStmt, err = s.conn.Prepare(`
		INSERT INTO songs (title, artist, album, duration, filepath, filesize, bitrate)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert song statement: %w", err)
	}

	s.updateSongStmt, err = s.conn.Prepare(`
		UPDATE songs SET title = ?, artist = ?, album = ?, duration = ?, filesize = ?, bitrate = ?
		WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare update song statement: %w", err)
	}

	s.searchSongsStmt, err = s.conn.Prepare(`
		SELECT id, title, artist, album, duration, filepath, filesize, bitrate, added_date, last_played, play_count
		FROM songs
		WHERE title LIKE ? OR artist LIKE ?
		ORDER BY title`)
	if err != nil {
		return fmt.Errorf("failed to prepare search songs statement: %w", err)
	}

	s.recordPlayStmt, err = s.conn.Prepare(`
		UPDATE songs SET play_count = play_count + 1, last_played = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare record play statement: %w", err)
	}

	return nil
}

// Close closes the underlying database connection and prepared statements.
func (s *Store) Close() error {
	statements := []*sql.Stmt{
		s.getSongByIDStmt,
		s.getSongByPathStmt,
		s.insertSongStmt,
		s.updateSongStmt,
		s.searchSongsStmt,
		s.recordPlayStmt,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				s.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}

	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error. Membership mutations use it so a crash mid-sequence
// never leaves duplicate or skipped positions visible.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.WithError(rbErr).Error("Failed to roll back transaction")
		}
		return err
	}

	return tx.Commit()
}
