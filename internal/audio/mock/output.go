// Package mock provides an in-memory implementation of the audio.Output
// interface for tests, simulating playback without producing sound.
package mock

import (
	"sync"

	"kodu/internal/audio"
)

// Output is a mock audio backend. It tracks the loaded path and
// transport state in memory and can be configured to fail specific
// operations for error-path tests.
//
// Thread-safety: all methods are safe for concurrent use.
type Output struct {
	mu sync.RWMutex

	loadedPath string
	playing    bool
	volume     int

	// Call counters for assertions
	loadCalls int
	playCalls int
	stopCalls int

	// Behavior configuration
	failLoad bool
	failPlay bool
}

// NewOutput creates a mock audio output.
func NewOutput() *Output {
	return &Output{volume: 100}
}

// SetFailLoad configures the mock to reject Load calls.
func (o *Output) SetFailLoad(fail bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failLoad = fail
}

// SetFailPlay configures the mock to reject Play calls.
func (o *Output) SetFailPlay(fail bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failPlay = fail
}

// Load prepares a file for playback.
func (o *Output) Load(path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.loadCalls++
	if o.failLoad {
		return audio.ErrLoadFailed
	}
	if path == "" {
		return audio.ErrLoadFailed
	}

	o.loadedPath = path
	o.playing = false
	return nil
}

// Play starts playback of the loaded track.
func (o *Output) Play() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.playCalls++
	if o.failPlay {
		return audio.ErrLoadFailed
	}
	if o.loadedPath == "" {
		return audio.ErrLoadFailed
	}

	o.playing = true
	return nil
}

// Pause halts playback keeping the track loaded.
func (o *Output) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.playing = false
	return nil
}

// Stop halts playback and discards progress.
func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stopCalls++
	o.playing = false
	return nil
}

// SetVolume sets output volume (0-100).
func (o *Output) SetVolume(volume int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if volume < 0 || volume > 100 {
		return audio.ErrInvalidVolume
	}
	o.volume = volume
	return nil
}

// IsBusy reports whether the mock is "playing".
func (o *Output) IsBusy() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.playing
}

// LoadedPath returns the last successfully loaded path (for assertions).
func (o *Output) LoadedPath() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.loadedPath
}

// Volume returns the current volume (for assertions).
func (o *Output) Volume() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.volume
}

// Calls returns the load, play and stop call counts (for assertions).
func (o *Output) Calls() (loads, plays, stops int) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.loadCalls, o.playCalls, o.stopCalls
}

// Verify that Output implements the audio.Output interface
var _ audio.Output = (*Output)(nil)
