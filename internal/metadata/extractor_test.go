package metadata

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExtractor(t *testing.T) {
	supportedFormats := []string{".mp3", ".flac", ".wav", ".m4a", ".ogg"}
	extractor := NewExtractor(supportedFormats)

	t.Run("IsAudioFile", func(t *testing.T) {
		testCases := []struct {
			filename string
			expected bool
		}{
			{"song.mp3", true},
			{"song.MP3", true},
			{"song.flac", true},
			{"song.FLAC", true},
			{"song.wav", true},
			{"song.m4a", true},
			{"song.ogg", true},
			{"song.txt", false},
			{"song.jpg", false},
			{"song", false},
			{"", false},
		}

		for _, tc := range testCases {
			result := extractor.IsAudioFile(tc.filename)
			if result != tc.expected {
				t.Errorf("IsAudioFile(%s): expected %v, got %v", tc.filename, tc.expected, result)
			}
		}
	})

	t.Run("ExtractMissingFile", func(t *testing.T) {
		_, err := extractor.Extract("/nonexistent/file.mp3")
		if err == nil {
			t.Error("Expected error for a file that cannot be opened")
		}
	})

	t.Run("ExtractFallsBackToFilename", func(t *testing.T) {
		// A garbage .mp3 cannot be probed or tagged, but extraction
		// still succeeds with filename-derived metadata
		testDir := t.TempDir()
		path := filepath.Join(testDir, "My Great Song.mp3")
		if err := os.WriteFile(path, []byte("this is not audio data"), 0644); err != nil {
			t.Fatalf("Failed to write test file: %v", err)
		}

		meta, err := extractor.Extract(path)
		if err != nil {
			t.Fatalf("Expected degraded extraction to succeed, got %v", err)
		}
		if meta.Title != "My Great Song" {
			t.Errorf("Expected title from filename, got %q", meta.Title)
		}
		if meta.Artist != "Unknown" {
			t.Errorf("Expected artist Unknown, got %q", meta.Artist)
		}
		if meta.FileSize == 0 {
			t.Error("Expected file size to be recorded")
		}
	})

	t.Run("GetAlbumArtMissing", func(t *testing.T) {
		if _, exists := extractor.GetAlbumArt("no-such-id"); exists {
			t.Error("Expected no album art for unknown ID")
		}
	})
}

func TestFallback(t *testing.T) {
	testCases := []struct {
		path  string
		title string
	}{
		{"/music/Artist - Track.mp3", "Artist - Track"},
		{"/music/nested/dir/track.flac", "track"},
		{"noext", "noext"},
	}

	for _, tc := range testCases {
		meta := Fallback(tc.path)
		if meta.Title != tc.title {
			t.Errorf("Fallback(%s): expected title %q, got %q", tc.path, tc.title, meta.Title)
		}
		if meta.Artist != "Unknown" {
			t.Errorf("Fallback(%s): expected artist Unknown, got %q", tc.path, meta.Artist)
		}
		if meta.Duration != 0 {
			t.Errorf("Fallback(%s): expected zero duration, got %d", tc.path, meta.Duration)
		}
	}
}
