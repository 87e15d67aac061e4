package models

import "time"

// Song represents one audio file in the library.
type Song struct {
	ID         int        `json:"id"`
	Title      string     `json:"title"`
	Artist     string     `json:"artist"`
	Album      string     `json:"album,omitempty"`
	Duration   int        `json:"duration"` // in seconds
	FilePath   string     `json:"-"`        // don't expose file path to client
	FileSize   int64      `json:"fileSize"`
	Bitrate    int        `json:"bitrate"` // in kbps
	AddedDate  time.Time  `json:"addedDate"`
	LastPlayed *time.Time `json:"lastPlayed,omitempty"`
	PlayCount  int        `json:"playCount"`
}

// Playlist represents a user-created playlist. SongCount is a derived
// cache recomputed from the membership table on every mutation; it is
// never incremented in place.
type Playlist struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedDate time.Time `json:"createdDate"`
	SongCount   int       `json:"songCount"`
}

// PlaylistEntry is a song together with its 1-based position inside a
// playlist. Positions are contiguous: a playlist with N entries always
// holds positions 1..N.
type PlaylistEntry struct {
	Song
	Position   int       `json:"position"`
	EntryAdded time.Time `json:"entryAdded"`
}

// SongUpdate names every updatable song column. A nil field is left
// untouched; the zero-value update is a no-op.
type SongUpdate struct {
	Title    *string
	Artist   *string
	Album    *string
	Duration *int
	FilePath *string
	FileSize *int64
	Bitrate  *int
}

// IsEmpty reports whether the update would change nothing.
func (u SongUpdate) IsEmpty() bool {
	return u.Title == nil && u.Artist == nil && u.Album == nil &&
		u.Duration == nil && u.FilePath == nil && u.FileSize == nil && u.Bitrate == nil
}

// PlaylistUpdate names the updatable playlist columns.
type PlaylistUpdate struct {
	Name        *string
	Description *string
}

// IsEmpty reports whether the update would change nothing.
func (u PlaylistUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil
}
