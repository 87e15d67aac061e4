package library

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kodu/internal/metadata"
	"kodu/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubReader is a scriptable MetadataReader.
type stubReader struct {
	metas    map[string]metadata.Meta
	failures map[string]bool
}

func newStubReader() *stubReader {
	return &stubReader{
		metas:    make(map[string]metadata.Meta),
		failures: make(map[string]bool),
	}
}

func (r *stubReader) Extract(filePath string) (metadata.Meta, error) {
	if r.failures[filePath] {
		return metadata.Meta{}, errors.New("corrupt tag data")
	}
	if meta, ok := r.metas[filePath]; ok {
		return meta, nil
	}
	return metadata.Fallback(filePath), nil
}

func (r *stubReader) IsAudioFile(filePath string) bool {
	return strings.HasSuffix(filePath, ".mp3")
}

func newTestScanner(t *testing.T) (*Scanner, *store.Store, *stubReader) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reader := newStubReader()
	scanner := NewScanner(st, reader)
	t.Cleanup(scanner.Close)

	return scanner, st, reader
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("audio bytes"), 0644))
}

func TestScanWalksRecursively(t *testing.T) {
	scanner, st, reader := newTestScanner(t)

	root := t.TempDir()
	top := filepath.Join(root, "top.mp3")
	nested := filepath.Join(root, "artist", "album", "nested.mp3")
	writeFile(t, top)
	writeFile(t, nested)
	writeFile(t, filepath.Join(root, "cover.jpg"))    // not audio
	writeFile(t, filepath.Join(root, ".hidden.mp3"))  // hidden
	writeFile(t, filepath.Join(root, "partial.part")) // partial write

	reader.metas[top] = metadata.Meta{Title: "Top Song", Artist: "A", Duration: 100}
	reader.metas[nested] = metadata.Meta{Title: "Nested Song", Artist: "B", Duration: 200}

	results, err := scanner.Scan(root)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	songs, err := st.ListSongs()
	require.NoError(t, err)
	require.Len(t, songs, 2)

	byTitle := map[string]bool{}
	for _, song := range songs {
		byTitle[song.Title] = true
	}
	assert.True(t, byTitle["Top Song"])
	assert.True(t, byTitle["Nested Song"])
}

func TestScanFallsBackOnExtractorFailure(t *testing.T) {
	scanner, st, reader := newTestScanner(t)

	root := t.TempDir()
	broken := filepath.Join(root, "My Broken Song.mp3")
	writeFile(t, broken)
	reader.failures[broken] = true

	results, err := scanner.Scan(root)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Title comes from the filename, artist defaults to Unknown
	song, err := st.GetSongByPath(broken)
	require.NoError(t, err)
	assert.Equal(t, "My Broken Song", song.Title)
	assert.Equal(t, "Unknown", song.Artist)
	assert.Zero(t, song.Duration)
	assert.Positive(t, song.FileSize)
}

func TestScanIsIdempotent(t *testing.T) {
	scanner, st, reader := newTestScanner(t)

	root := t.TempDir()
	path := filepath.Join(root, "stable.mp3")
	writeFile(t, path)
	reader.metas[path] = metadata.Meta{Title: "Stable", Artist: "A", Duration: 90}

	_, err := scanner.Scan(root)
	require.NoError(t, err)
	_, err = scanner.Scan(root)
	require.NoError(t, err)

	songs, err := st.ListSongs()
	require.NoError(t, err)
	assert.Len(t, songs, 1, "rescanning must not duplicate rows")
}

func TestScanSurvivesMissingRoot(t *testing.T) {
	scanner, _, _ := newTestScanner(t)

	// WalkDir reports the root error through the callback, which logs and
	// continues, so a missing root yields an empty result set.
	results, err := scanner.Scan(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestProcessFileKeepsPlayHistoryOnRescan(t *testing.T) {
	scanner, st, reader := newTestScanner(t)

	path := filepath.Join(t.TempDir(), "history.mp3")
	writeFile(t, path)
	reader.metas[path] = metadata.Meta{Title: "History", Artist: "A", Duration: 150}

	result, err := scanner.ProcessFile(path)
	require.NoError(t, err)
	require.NoError(t, st.RecordPlay(result.SongID))

	again, err := scanner.ProcessFile(path)
	require.NoError(t, err)
	assert.Equal(t, result.SongID, again.SongID)

	song, err := st.GetSong(result.SongID)
	require.NoError(t, err)
	assert.Equal(t, 1, song.PlayCount)
}
