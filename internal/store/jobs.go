package store

import (
	"database/sql"
	"time"
)

// DownloadJobRecord is the persisted form of a download job, kept so the
// job list survives restarts.
type DownloadJobRecord struct {
	ID          string
	URL         string
	Title       string
	Artist      string
	Status      string
	Progress    int
	Error       string
	OutputPath  string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// UpsertDownloadJob inserts or updates a download job record by ID.
func (s *Store) UpsertDownloadJob(job DownloadJobRecord) error {
	_, err := s.conn.Exec(`
		INSERT INTO download_jobs (id, url, title, artist, status, progress, error, output_path, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url=excluded.url,
			title=excluded.title,
			artist=excluded.artist,
			status=excluded.status,
			progress=excluded.progress,
			error=excluded.error,
			output_path=excluded.output_path,
			completed_at=excluded.completed_at
	`, job.ID, job.URL, job.Title, job.Artist, job.Status, job.Progress,
		job.Error, job.OutputPath, job.CreatedAt, job.CompletedAt)
	return err
}

// ListDownloadJobs returns all persisted download jobs, newest first.
func (s *Store) ListDownloadJobs() ([]DownloadJobRecord, error) {
	rows, err := s.conn.Query(`
		SELECT id, url, title, artist, status, progress, error, output_path, created_at, completed_at
		FROM download_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []DownloadJobRecord
	for rows.Next() {
		var job DownloadJobRecord
		var title, artist, status, errMsg, outputPath sql.NullString
		var progress sql.NullInt64
		var completedAt sql.NullTime
		if err := rows.Scan(&job.ID, &job.URL, &title, &artist, &status,
			&progress, &errMsg, &outputPath, &job.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		job.Title = title.String
		job.Artist = artist.String
		job.Status = status.String
		job.Progress = int(progress.Int64)
		job.Error = errMsg.String
		job.OutputPath = outputPath.String
		if completedAt.Valid {
			job.CompletedAt = &completedAt.Time
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
