package player

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"kodu/internal/audio"
	"kodu/pkg/models"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNoTrackLoaded is returned by every operation on a tracker
	// without a loaded song.
	ErrNoTrackLoaded = errors.New("no track loaded")
	// ErrNotPlaying is returned by Pause when playback is not active.
	ErrNotPlaying = errors.New("not currently playing")
)

// Status is the tracker's playback state. The three states are mutually
// exclusive.
type Status int

const (
	StatusStopped Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "stopped"
	}
}

// PlayRecorder receives play notifications; the metadata store satisfies
// it.
type PlayRecorder interface {
	RecordPlay(id int) error
}

// Snapshot is an immutable copy of the tracker state handed to
// subscribers.
type Snapshot struct {
	Song      *models.Song `json:"song,omitempty"`
	Status    string       `json:"status"`
	Position  float64      `json:"position"` // in seconds
	Duration  float64      `json:"duration"` // in seconds
	Volume    int          `json:"volume"`   // 0-100
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Tracker drives the audio-output collaborator and derives playback
// position from wall-clock arithmetic, because the collaborator does not
// report continuous position. Position while playing is now - startTime,
// clamped to the track duration; pausing captures the elapsed value and
// resuming back-dates startTime to preserve continuity.
//
// A Tracker carries mutable wall-clock state: there is one instance per
// application and all mutating calls are serialized by an internal lock.
type Tracker struct {
	mu       sync.Mutex
	out      audio.Output
	recorder PlayRecorder
	logger   *logrus.Logger

	// now is swappable so tests can simulate wall time
	now func() time.Time

	song           *models.Song
	status         Status
	duration       float64 // in seconds
	pausedPosition float64 // seconds elapsed when last paused
	startTime      time.Time
	volume         int

	listeners    []chan Snapshot
	pollInterval time.Duration
	pollDone     chan struct{}
	pollWg       sync.WaitGroup
	closed       bool
}

// NewTracker creates a position tracker over the given audio output and
// starts the position poller, which publishes snapshots to subscribers
// on a fixed short interval.
func NewTracker(out audio.Output, recorder PlayRecorder, pollInterval time.Duration) *Tracker {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}

	t := &Tracker{
		out:          out,
		recorder:     recorder,
		logger:       logger,
		now:          time.Now,
		status:       StatusStopped,
		volume:       70,
		pollInterval: pollInterval,
		pollDone:     make(chan struct{}),
	}

	t.pollWg.Add(1)
	go t.poll()

	return t
}

// SetClock replaces the tracker's time source. Intended for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Load prepares a song for playback. It fails when the file does not
// exist or the audio output rejects it. The tracker resets to Stopped
// with a cleared pause position. Duration comes from the song row when
// positive; otherwise it is estimated from file size — a documented
// fallback, not authoritative.
func (t *Tracker) Load(song models.Song) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	stat, err := os.Stat(song.FilePath)
	if err != nil {
		return fmt.Errorf("song file not found: %w", err)
	}

	if err := t.out.Load(song.FilePath); err != nil {
		return fmt.Errorf("audio output rejected file: %w", err)
	}

	t.song = &song
	t.status = StatusStopped
	t.pausedPosition = 0
	t.startTime = time.Time{}

	if song.Duration > 0 {
		t.duration = float64(song.Duration)
	} else {
		t.duration = estimateDuration(stat.Size(), song.Bitrate)
	}

	if err := t.out.SetVolume(t.volume); err != nil {
		t.logger.WithError(err).Warn("Failed to apply volume to loaded track")
	}

	t.logger.WithFields(logrus.Fields{
		"title":    song.Title,
		"duration": t.duration,
	}).Info("Loaded song")

	return nil
}

// Play starts or resumes playback. Resuming from a pause re-issues the
// play command and back-dates startTime by the paused position, since
// the collaborator cannot seek-resume. Each transition out of a
// non-playing state records one play against the song.
func (t *Tracker) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.song == nil {
		return ErrNoTrackLoaded
	}
	if t.status == StatusPlaying {
		return nil
	}

	if err := t.out.Play(); err != nil {
		return fmt.Errorf("audio output play failed: %w", err)
	}

	now := t.now()
	if t.pausedPosition > 0 {
		t.startTime = now.Add(-secondsToDuration(t.pausedPosition))
	} else {
		t.startTime = now
	}
	t.pausedPosition = 0
	t.status = StatusPlaying

	if t.recorder != nil {
		if err := t.recorder.RecordPlay(t.song.ID); err != nil {
			t.logger.WithError(err).WithField("song_id", t.song.ID).Warn("Failed to record play")
		}
	}

	return nil
}

// Pause transitions Playing -> Paused, capturing the elapsed position.
// Fails with ErrNotPlaying in any other state.
func (t *Tracker) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.song == nil {
		return ErrNoTrackLoaded
	}
	if t.status != StatusPlaying {
		return ErrNotPlaying
	}

	if err := t.out.Pause(); err != nil {
		return fmt.Errorf("audio output pause failed: %w", err)
	}

	t.pausedPosition = t.elapsed()
	t.status = StatusPaused
	return nil
}

// Stop transitions any state to Stopped and clears position state.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.song == nil {
		return ErrNoTrackLoaded
	}

	if err := t.out.Stop(); err != nil {
		return fmt.Errorf("audio output stop failed: %w", err)
	}

	t.status = StatusStopped
	t.pausedPosition = 0
	t.startTime = time.Time{}
	return nil
}

// Seek moves playback to position (seconds), clamped to [0, duration].
// While playing the collaborator is stopped and restarted and startTime
// rebased, since it cannot seek natively; otherwise the position is
// stored as the pause point.
func (t *Tracker) Seek(position float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seekLocked(position)
}

func (t *Tracker) seekLocked(position float64) error {
	if t.song == nil {
		return ErrNoTrackLoaded
	}

	if position < 0 {
		position = 0
	}
	if position > t.duration {
		position = t.duration
	}

	if t.status == StatusPlaying {
		if err := t.out.Stop(); err != nil {
			return fmt.Errorf("audio output stop failed: %w", err)
		}
		if err := t.out.Play(); err != nil {
			return fmt.Errorf("audio output play failed: %w", err)
		}
		t.startTime = t.now().Add(-secondsToDuration(position))
	} else {
		t.pausedPosition = position
	}

	return nil
}

// Skip seeks relative to the current position by delta seconds.
func (t *Tracker) Skip(delta float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.song == nil {
		return ErrNoTrackLoaded
	}

	var position float64
	if t.status == StatusPlaying {
		position = t.elapsed()
	} else {
		position = t.pausedPosition
	}

	return t.seekLocked(position + delta)
}

// Position returns the current playback position in seconds: the paused
// position when not playing, otherwise the wall-clock elapsed time
// clamped so clock drift never reports past the known duration.
func (t *Tracker) Position() (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.song == nil {
		return 0, ErrNoTrackLoaded
	}
	if t.status != StatusPlaying {
		return t.pausedPosition, nil
	}
	return t.elapsed(), nil
}

// SetVolume sets output volume (0-100, clamped).
func (t *Tracker) SetVolume(volume int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	if err := t.out.SetVolume(volume); err != nil {
		return err
	}
	t.volume = volume
	return nil
}

// Status returns the current playback state.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Snapshot returns a copy of the current tracker state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:    t.status.String(),
		Duration:  t.duration,
		Volume:    t.volume,
		UpdatedAt: t.now(),
	}
	if t.song != nil {
		songCopy := *t.song
		snap.Song = &songCopy
		if t.status == StatusPlaying {
			snap.Position = t.elapsed()
		} else {
			snap.Position = t.pausedPosition
		}
	}
	return snap
}

// elapsed computes seconds since the current continuous-play segment
// began, clamped to [0, duration]. Caller must hold the lock.
func (t *Tracker) elapsed() float64 {
	if t.startTime.IsZero() {
		return 0
	}
	seconds := t.now().Sub(t.startTime).Seconds()
	if seconds < 0 {
		return 0
	}
	if seconds > t.duration {
		return t.duration
	}
	return seconds
}

// Subscribe adds a listener for periodic state snapshots.
func (t *Tracker) Subscribe() <-chan Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan Snapshot, 10) // buffered to avoid blocking the poller
	t.listeners = append(t.listeners, ch)
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (t *Tracker) Unsubscribe(ch <-chan Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, listener := range t.listeners {
		if listener == ch {
			close(listener)
			t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
			break
		}
	}
}

// Close stops the poller and closes all subscriber channels. Idempotent.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.pollDone)
	t.mu.Unlock()

	t.pollWg.Wait()

	t.mu.Lock()
	for _, listener := range t.listeners {
		close(listener)
	}
	t.listeners = nil
	t.mu.Unlock()
}

// poll publishes snapshots to subscribers on the configured interval so
// a UI can refresh the displayed position without querying the tracker.
func (t *Tracker) poll() {
	defer t.pollWg.Done()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.pollDone:
			return
		case <-ticker.C:
			t.publish()
		}
	}
}

// publish sends the current snapshot to every listener, dropping
// listeners whose channel is full.
func (t *Tracker) publish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.listeners) == 0 {
		return
	}

	snap := t.snapshotLocked()
	kept := t.listeners[:0]
	for _, listener := range t.listeners {
		select {
		case listener <- snap:
			kept = append(kept, listener)
		default:
			close(listener)
		}
	}
	t.listeners = kept
}

// estimateDuration is the last-resort duration estimate from file size,
// assuming 128 kbps when the bitrate is unknown.
func estimateDuration(fileSize int64, bitrateKbps int) float64 {
	if bitrateKbps <= 0 {
		bitrateKbps = 128
	}
	return float64(fileSize*8) / float64(bitrateKbps*1000)
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
