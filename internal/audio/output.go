// Package audio defines the boundary to the audio-output collaborator.
// The collaborator exposes transport primitives only; it is not assumed
// to report playback position or support seeking. Deriving position is
// the player package's job.
package audio

import "errors"

var (
	// ErrLoadFailed indicates the collaborator rejected the file.
	ErrLoadFailed = errors.New("audio output failed to load file")
	// ErrInvalidVolume indicates a volume outside 0-100.
	ErrInvalidVolume = errors.New("volume must be between 0 and 100")
)

// Output is the capability interface for an audio backend. Implementations
// are swappable at construction time; all call sites go through this
// interface.
type Output interface {
	// Load prepares a file for playback, replacing any current track.
	Load(path string) error
	// Play starts or restarts playback of the loaded track from the top.
	Play() error
	// Pause halts playback keeping the track loaded.
	Pause() error
	// Stop halts playback and discards progress.
	Stop() error
	// SetVolume sets output volume in the range 0-100.
	SetVolume(volume int) error
	// IsBusy reports whether the backend is currently producing audio.
	IsBusy() bool
}
