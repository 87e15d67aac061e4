package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"kodu/internal/config"
	"kodu/internal/store"
	"kodu/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Status represents the status of a download
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// DownloadError is the typed failure handed back across the download
// boundary. Message is human-readable.
type DownloadError struct {
	URL     string
	Message string
	Err     error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of %s failed: %s", e.URL, e.Message)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Result is the record a completed download hands to the library: the
// metadata plus the resolved path of the transcoded file.
type Result struct {
	Title         string
	Artist        string
	Duration      int // in seconds
	FilePath      string
	FileSize      int64
	ThumbnailPath string
}

// Job represents a download job
type Job struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Artist      string     `json:"artist"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	Error       string     `json:"error,omitempty"`
	OutputPath  string     `json:"output_path,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Downloader retrieves audio from supported sources via yt-dlp,
// transcodes it to the configured canonical format and upserts the
// result into the store. Downloads run in background goroutines and
// never block the interactive path.
type Downloader struct {
	config    *config.Config
	store     *store.Store
	logger    *logrus.Logger
	jobs      map[string]*Job
	jobsMux   sync.RWMutex
	ytDlpPath string
	sem       chan struct{} // bounds concurrent yt-dlp processes
}

// NewDownloader creates a new downloader instance. It fails when yt-dlp
// cannot be located.
func NewDownloader(cfg *config.Config, st *store.Store) (*Downloader, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	maxConcurrent := cfg.Downloader.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	d := &Downloader{
		config: cfg,
		store:  st,
		logger: logger,
		jobs:   make(map[string]*Job),
		sem:    make(chan struct{}, maxConcurrent),
	}

	if err := d.checkYtDlp(); err != nil {
		return nil, fmt.Errorf("yt-dlp not available: %w", err)
	}

	return d, nil
}

// checkYtDlp verifies that yt-dlp is installed and accessible
func (d *Downloader) checkYtDlp() error {
	possiblePaths := []string{d.config.Downloader.YtDlpPath, "yt-dlp", "yt-dlp.exe", "./yt-dlp"}

	for _, path := range possiblePaths {
		if path == "" {
			continue
		}
		if _, err := exec.LookPath(path); err == nil {
			d.ytDlpPath = path
			return nil
		}
	}

	return fmt.Errorf("yt-dlp not found in PATH. Please install yt-dlp")
}

// Download starts a background download from the given URL. The returned
// job can be polled by ID. Cancelling ctx abandons the download;
// partially written files are not cleaned up.
func (d *Downloader) Download(ctx context.Context, sourceURL, customTitle, customArtist string) (*Job, error) {
	if err := d.ValidateURL(sourceURL); err != nil {
		return nil, err
	}

	job := &Job{
		ID:        uuid.New().String(),
		URL:       sourceURL,
		Title:     customTitle,
		Artist:    customArtist,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}

	d.jobsMux.Lock()
	d.jobs[job.ID] = job
	d.jobsMux.Unlock()
	d.persistJob(job)

	go d.processDownload(ctx, job)

	return job, nil
}

// processDownload handles the actual download process
func (d *Downloader) processDownload(ctx context.Context, job *Job) {
	select {
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
	case <-ctx.Done():
		d.failJob(job, "Cancelled before download started")
		return
	}

	d.updateJob(job.ID, StatusDownloading, 0, "")

	meta, err := d.probeMetadata(ctx, job.URL)
	if err != nil {
		d.failJob(job, fmt.Sprintf("Failed to get metadata: %v", err))
		return
	}

	title := job.Title
	if title == "" {
		title = meta.Title
	}
	artist := job.Artist
	if artist == "" {
		artist = meta.Artist
		if artist == "" {
			artist = meta.Uploader
		}
	}
	if artist == "" {
		artist = "Unknown"
	}

	safeTitle := sanitizeFilename(title)
	safeArtist := sanitizeFilename(artist)
	filename := fmt.Sprintf("%s - %s.%%(ext)s", safeArtist, safeTitle)
	outputTemplate := filepath.Join(d.config.Library.Path, filename)

	d.updateJob(job.ID, StatusProcessing, 25, "")

	cmd := exec.CommandContext(ctx, d.ytDlpPath,
		"--extract-audio",
		"--audio-format", d.config.Downloader.AudioFormat,
		"--audio-quality", d.config.Downloader.AudioQuality,
		"--output", outputTemplate,
		"--no-playlist",
		job.URL,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		d.failJob(job, fmt.Sprintf("Download failed: %v\nOutput: %s", err, string(output)))
		return
	}

	// yt-dlp replaces %(ext)s with the post-transcode extension
	actualPath := strings.Replace(outputTemplate, ".%(ext)s", "."+d.config.Downloader.AudioFormat, 1)

	result := Result{
		Title:    title,
		Artist:   artist,
		Duration: meta.Duration,
		FilePath: actualPath,
	}
	if stat, err := os.Stat(actualPath); err == nil {
		result.FileSize = stat.Size()
	}

	if err := d.ingest(result); err != nil {
		d.failJob(job, fmt.Sprintf("Downloaded but failed to add to library: %v", err))
		return
	}

	d.jobsMux.Lock()
	job.Title = title
	job.Artist = artist
	job.OutputPath = actualPath
	job.Status = StatusCompleted
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
	jobCopy := *job
	d.jobsMux.Unlock()
	d.persistJobCopy(jobCopy)

	d.logger.WithFields(logrus.Fields{
		"title":  title,
		"artist": artist,
		"path":   actualPath,
	}).Info("Download completed")
}

// ingest upserts the finished download into the store.
func (d *Downloader) ingest(result Result) error {
	if d.store == nil {
		return nil
	}

	song := models.Song{
		Title:    result.Title,
		Artist:   result.Artist,
		Duration: result.Duration,
		FilePath: result.FilePath,
		FileSize: result.FileSize,
	}
	_, err := d.store.UpsertSong(song)
	return err
}

// probedMetadata represents metadata extracted from a source URL
type probedMetadata struct {
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Uploader  string `json:"uploader"`
	Duration  int    `json:"duration"`
	Thumbnail string `json:"thumbnail"`
}

// probeMetadata extracts metadata from a URL without downloading
func (d *Downloader) probeMetadata(ctx context.Context, sourceURL string) (*probedMetadata, error) {
	cmd := exec.CommandContext(ctx, d.ytDlpPath,
		"--dump-json",
		"--no-playlist",
		sourceURL,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}

	var meta probedMetadata
	if err := json.Unmarshal(output, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return &meta, nil
}

// ValidateURL checks if a URL is plausible for downloading. Domain
// filtering applies when allowed_domains is configured.
func (d *Downloader) ValidateURL(sourceURL string) error {
	parsed, err := url.Parse(sourceURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return &DownloadError{URL: sourceURL, Message: "invalid URL: must start with http:// or https://"}
	}

	if len(d.config.Downloader.AllowedDomains) == 0 {
		return nil
	}

	host := strings.TrimPrefix(parsed.Hostname(), "www.")
	for _, domain := range d.config.Downloader.AllowedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return nil
		}
	}

	return &DownloadError{URL: sourceURL, Message: fmt.Sprintf("domain %s is not in the allowed list", host)}
}

// GetJob returns a download job by ID
func (d *Downloader) GetJob(jobID string) (*Job, bool) {
	d.jobsMux.RLock()
	defer d.jobsMux.RUnlock()

	job, exists := d.jobs[jobID]
	if !exists {
		return nil, false
	}
	jobCopy := *job
	return &jobCopy, true
}

// GetAllJobs returns all download jobs
func (d *Downloader) GetAllJobs() []*Job {
	d.jobsMux.RLock()
	defer d.jobsMux.RUnlock()

	jobs := make([]*Job, 0, len(d.jobs))
	for _, job := range d.jobs {
		jobCopy := *job
		jobs = append(jobs, &jobCopy)
	}
	return jobs
}

// CleanupCompletedJobs removes completed jobs older than maxAge from the
// in-memory map. Persisted records are kept.
func (d *Downloader) CleanupCompletedJobs(maxAge time.Duration) {
	d.jobsMux.Lock()
	defer d.jobsMux.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range d.jobs {
		if job.Status == StatusCompleted || job.Status == StatusFailed {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(d.jobs, id)
			}
		}
	}
}

// updateJob updates the status of a download job and persists it.
func (d *Downloader) updateJob(jobID string, status Status, progress int, errorMsg string) {
	d.jobsMux.Lock()
	job, exists := d.jobs[jobID]
	if !exists {
		d.jobsMux.Unlock()
		return
	}
	job.Status = status
	job.Progress = progress
	if errorMsg != "" {
		job.Error = errorMsg
	}
	jobCopy := *job
	d.jobsMux.Unlock()

	d.persistJobCopy(jobCopy)
}

// failJob marks a job failed with a human-readable message.
func (d *Downloader) failJob(job *Job, message string) {
	d.jobsMux.Lock()
	job.Status = StatusFailed
	job.Error = message
	now := time.Now()
	job.CompletedAt = &now
	jobCopy := *job
	d.jobsMux.Unlock()

	d.persistJobCopy(jobCopy)
	d.logger.WithFields(logrus.Fields{
		"url":   job.URL,
		"error": message,
	}).Error("Download failed")
}

func (d *Downloader) persistJob(job *Job) {
	d.jobsMux.RLock()
	jobCopy := *job
	d.jobsMux.RUnlock()
	d.persistJobCopy(jobCopy)
}

func (d *Downloader) persistJobCopy(job Job) {
	if d.store == nil {
		return
	}
	record := store.DownloadJobRecord{
		ID:          job.ID,
		URL:         job.URL,
		Title:       job.Title,
		Artist:      job.Artist,
		Status:      string(job.Status),
		Progress:    job.Progress,
		Error:       job.Error,
		OutputPath:  job.OutputPath,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
	if err := d.store.UpsertDownloadJob(record); err != nil {
		d.logger.WithError(err).WithField("job_id", job.ID).Warn("Failed to persist download job")
	}
}

// sanitizeFilename removes invalid characters from filenames
func sanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	return strings.TrimSpace(result)
}
