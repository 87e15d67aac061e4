package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"kodu/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func addTestSong(t *testing.T, st *Store, title, artist, path string) int {
	t.Helper()

	id, err := st.UpsertSong(models.Song{
		Title:    title,
		Artist:   artist,
		Album:    "Test Album",
		Duration: 180,
		FilePath: path,
		FileSize: 1024000,
		Bitrate:  192,
	})
	if err != nil {
		t.Fatalf("Failed to upsert song %q: %v", title, err)
	}
	return id
}

func TestSongs(t *testing.T) {
	st := newTestStore(t)

	t.Run("UpsertAndGet", func(t *testing.T) {
		id := addTestSong(t, st, "First Song", "Test Artist", "/music/first.mp3")

		song, err := st.GetSong(id)
		if err != nil {
			t.Fatalf("Failed to get song: %v", err)
		}
		if song.Title != "First Song" {
			t.Errorf("Expected title %q, got %q", "First Song", song.Title)
		}
		if song.Artist != "Test Artist" {
			t.Errorf("Expected artist %q, got %q", "Test Artist", song.Artist)
		}
		if song.PlayCount != 0 {
			t.Errorf("Expected play count 0, got %d", song.PlayCount)
		}
		if song.LastPlayed != nil {
			t.Error("Expected LastPlayed to be nil for a fresh song")
		}
		if song.AddedDate.IsZero() {
			t.Error("Expected AddedDate to be set")
		}
	})

	t.Run("UpsertEmptyArtistDefaultsToUnknown", func(t *testing.T) {
		id := addTestSong(t, st, "No Artist", "", "/music/noartist.mp3")

		song, err := st.GetSong(id)
		if err != nil {
			t.Fatalf("Failed to get song: %v", err)
		}
		if song.Artist != "Unknown" {
			t.Errorf("Expected artist %q, got %q", "Unknown", song.Artist)
		}
	})

	t.Run("UpsertSamePathPreservesIdentityAndHistory", func(t *testing.T) {
		id := addTestSong(t, st, "Original Title", "Original Artist", "/music/rescan.mp3")

		if err := st.RecordPlay(id); err != nil {
			t.Fatalf("Failed to record play: %v", err)
		}

		// Rescan with updated metadata for the same path
		newID, err := st.UpsertSong(models.Song{
			Title:    "Retagged Title",
			Artist:   "Retagged Artist",
			Duration: 200,
			FilePath: "/music/rescan.mp3",
			FileSize: 2048000,
			Bitrate:  320,
		})
		if err != nil {
			t.Fatalf("Failed to upsert existing song: %v", err)
		}
		if newID != id {
			t.Errorf("Expected upsert to keep id %d, got %d", id, newID)
		}

		song, err := st.GetSong(id)
		if err != nil {
			t.Fatalf("Failed to get song: %v", err)
		}
		if song.Title != "Retagged Title" {
			t.Errorf("Expected updated title, got %q", song.Title)
		}
		if song.Bitrate != 320 {
			t.Errorf("Expected updated bitrate 320, got %d", song.Bitrate)
		}
		if song.PlayCount != 1 {
			t.Errorf("Expected play count preserved at 1, got %d", song.PlayCount)
		}
		if song.LastPlayed == nil {
			t.Error("Expected LastPlayed preserved across rescan")
		}
	})

	t.Run("GetMissingSong", func(t *testing.T) {
		_, err := st.GetSong(99999)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("GetSongByPath", func(t *testing.T) {
		id := addTestSong(t, st, "By Path", "Test Artist", "/music/bypath.mp3")

		song, err := st.GetSongByPath("/music/bypath.mp3")
		if err != nil {
			t.Fatalf("Failed to get song by path: %v", err)
		}
		if song.ID != id {
			t.Errorf("Expected id %d, got %d", id, song.ID)
		}

		_, err = st.GetSongByPath("/music/nope.mp3")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SearchSongs", func(t *testing.T) {
		addTestSong(t, st, "Searchable Tune", "Findable Band", "/music/search.mp3")

		byTitle, err := st.SearchSongs("Searchable")
		if err != nil {
			t.Fatalf("Failed to search songs: %v", err)
		}
		if len(byTitle) != 1 {
			t.Errorf("Expected 1 result by title, got %d", len(byTitle))
		}

		byArtist, err := st.SearchSongs("Findable")
		if err != nil {
			t.Fatalf("Failed to search songs: %v", err)
		}
		if len(byArtist) != 1 {
			t.Errorf("Expected 1 result by artist, got %d", len(byArtist))
		}

		none, err := st.SearchSongs("zzz-no-match")
		if err != nil {
			t.Fatalf("Failed to search songs: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("Expected no results, got %d", len(none))
		}
	})

	t.Run("UpdateSong", func(t *testing.T) {
		id := addTestSong(t, st, "Updatable", "Test Artist", "/music/update.mp3")

		newTitle := "Updated"
		newBitrate := 256
		err := st.UpdateSong(id, models.SongUpdate{Title: &newTitle, Bitrate: &newBitrate})
		if err != nil {
			t.Fatalf("Failed to update song: %v", err)
		}

		song, err := st.GetSong(id)
		if err != nil {
			t.Fatalf("Failed to get song: %v", err)
		}
		if song.Title != "Updated" {
			t.Errorf("Expected updated title, got %q", song.Title)
		}
		if song.Bitrate != 256 {
			t.Errorf("Expected bitrate 256, got %d", song.Bitrate)
		}
		if song.Artist != "Test Artist" {
			t.Errorf("Expected artist untouched, got %q", song.Artist)
		}
	})

	t.Run("EmptyUpdateIsNoOp", func(t *testing.T) {
		id := addTestSong(t, st, "Untouched", "Test Artist", "/music/untouched.mp3")

		if err := st.UpdateSong(id, models.SongUpdate{}); err != nil {
			t.Fatalf("Empty update should succeed, got %v", err)
		}

		song, err := st.GetSong(id)
		if err != nil {
			t.Fatalf("Failed to get song: %v", err)
		}
		if song.Title != "Untouched" {
			t.Errorf("Expected title unchanged, got %q", song.Title)
		}
	})

	t.Run("UpdateMissingSong", func(t *testing.T) {
		title := "Ghost"
		err := st.UpdateSong(99999, models.SongUpdate{Title: &title})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("RecordPlay", func(t *testing.T) {
		id := addTestSong(t, st, "Played", "Test Artist", "/music/played.mp3")

		if err := st.RecordPlay(id); err != nil {
			t.Fatalf("Failed to record play: %v", err)
		}
		if err := st.RecordPlay(id); err != nil {
			t.Fatalf("Failed to record second play: %v", err)
		}

		song, err := st.GetSong(id)
		if err != nil {
			t.Fatalf("Failed to get song: %v", err)
		}
		if song.PlayCount != 2 {
			t.Errorf("Expected play count 2, got %d", song.PlayCount)
		}
		if song.LastPlayed == nil {
			t.Error("Expected LastPlayed to be set after recording a play")
		}

		if err := st.RecordPlay(99999); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound for missing song, got %v", err)
		}
	})

	t.Run("DeleteSongByPathMissingIsNoOp", func(t *testing.T) {
		if err := st.DeleteSongByPath("/music/never-existed.mp3"); err != nil {
			t.Errorf("Expected no-op for missing path, got %v", err)
		}
	})
}

func TestPlaylists(t *testing.T) {
	st := newTestStore(t)

	t.Run("CreateAndGet", func(t *testing.T) {
		id, err := st.CreatePlaylist("Morning Mix", "wake up tunes")
		if err != nil {
			t.Fatalf("Failed to create playlist: %v", err)
		}

		pl, err := st.GetPlaylist(id)
		if err != nil {
			t.Fatalf("Failed to get playlist: %v", err)
		}
		if pl.Name != "Morning Mix" {
			t.Errorf("Expected name %q, got %q", "Morning Mix", pl.Name)
		}
		if pl.Description != "wake up tunes" {
			t.Errorf("Expected description preserved, got %q", pl.Description)
		}
		if pl.SongCount != 0 {
			t.Errorf("Expected empty playlist, got count %d", pl.SongCount)
		}
	})

	t.Run("CreateRequiresName", func(t *testing.T) {
		if _, err := st.CreatePlaylist("", "nameless"); err == nil {
			t.Error("Expected error creating playlist without a name")
		}
	})

	t.Run("UpdatePlaylist", func(t *testing.T) {
		id, err := st.CreatePlaylist("Old Name", "")
		if err != nil {
			t.Fatalf("Failed to create playlist: %v", err)
		}

		newName := "New Name"
		if err := st.UpdatePlaylist(id, models.PlaylistUpdate{Name: &newName}); err != nil {
			t.Fatalf("Failed to update playlist: %v", err)
		}

		pl, err := st.GetPlaylist(id)
		if err != nil {
			t.Fatalf("Failed to get playlist: %v", err)
		}
		if pl.Name != "New Name" {
			t.Errorf("Expected renamed playlist, got %q", pl.Name)
		}

		// Empty update is a no-op
		if err := st.UpdatePlaylist(id, models.PlaylistUpdate{}); err != nil {
			t.Errorf("Empty update should succeed, got %v", err)
		}
	})

	t.Run("GetMissingPlaylist", func(t *testing.T) {
		_, err := st.GetPlaylist(99999)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestPlaylistMembership(t *testing.T) {
	st := newTestStore(t)

	// Three songs and a playlist shared across the subtests below
	songA := addTestSong(t, st, "Song A", "Artist", "/music/a.mp3")
	songB := addTestSong(t, st, "Song B", "Artist", "/music/b.mp3")
	songC := addTestSong(t, st, "Song C", "Artist", "/music/c.mp3")

	playlistID, err := st.CreatePlaylist("Membership", "")
	if err != nil {
		t.Fatalf("Failed to create playlist: %v", err)
	}

	requireOrder := func(t *testing.T, want []int) {
		t.Helper()

		entries, err := st.ListPlaylistSongs(playlistID)
		if err != nil {
			t.Fatalf("Failed to list playlist songs: %v", err)
		}
		if len(entries) != len(want) {
			t.Fatalf("Expected %d entries, got %d", len(want), len(entries))
		}
		for i, entry := range entries {
			if entry.Position != i+1 {
				t.Errorf("Entry %d: expected position %d, got %d", i, i+1, entry.Position)
			}
			if entry.ID != want[i] {
				t.Errorf("Entry %d: expected song %d, got %d", i, want[i], entry.ID)
			}
		}
	}

	t.Run("AddAssignsContiguousPositions", func(t *testing.T) {
		for _, id := range []int{songA, songB, songC} {
			if err := st.AddToPlaylist(playlistID, id); err != nil {
				t.Fatalf("Failed to add song %d: %v", id, err)
			}
		}
		requireOrder(t, []int{songA, songB, songC})

		pl, err := st.GetPlaylist(playlistID)
		if err != nil {
			t.Fatalf("Failed to get playlist: %v", err)
		}
		if pl.SongCount != 3 {
			t.Errorf("Expected song count 3, got %d", pl.SongCount)
		}
	})

	t.Run("AddIsIdempotent", func(t *testing.T) {
		if err := st.AddToPlaylist(playlistID, songB); err != nil {
			t.Fatalf("Re-adding a member should succeed: %v", err)
		}
		requireOrder(t, []int{songA, songB, songC})
	})

	t.Run("ReorderMoveDown", func(t *testing.T) {
		// [A, B, C] -> move A to position 3 -> [B, C, A]
		if err := st.Reorder(playlistID, songA, 3); err != nil {
			t.Fatalf("Failed to reorder: %v", err)
		}
		requireOrder(t, []int{songB, songC, songA})
	})

	t.Run("ReorderMoveUp", func(t *testing.T) {
		// [B, C, A] -> move A to position 1 -> [A, B, C]
		if err := st.Reorder(playlistID, songA, 1); err != nil {
			t.Fatalf("Failed to reorder: %v", err)
		}
		requireOrder(t, []int{songA, songB, songC})
	})

	t.Run("ReorderClampsOutOfRange", func(t *testing.T) {
		// Position beyond the end clamps to the last slot
		if err := st.Reorder(playlistID, songA, 99); err != nil {
			t.Fatalf("Failed to reorder: %v", err)
		}
		requireOrder(t, []int{songB, songC, songA})

		// And below 1 clamps to the front
		if err := st.Reorder(playlistID, songA, -5); err != nil {
			t.Fatalf("Failed to reorder: %v", err)
		}
		requireOrder(t, []int{songA, songB, songC})
	})

	t.Run("ReorderNonMemberIsNoOp", func(t *testing.T) {
		outsider := addTestSong(t, st, "Outsider", "Artist", "/music/outsider.mp3")
		if err := st.Reorder(playlistID, outsider, 1); err != nil {
			t.Fatalf("Reordering a non-member should be a no-op: %v", err)
		}
		requireOrder(t, []int{songA, songB, songC})
	})

	t.Run("RemoveClosesGap", func(t *testing.T) {
		// [A, B, C] -> remove B -> [A, C] at positions 1,2
		if err := st.RemoveFromPlaylist(playlistID, songB); err != nil {
			t.Fatalf("Failed to remove song: %v", err)
		}
		requireOrder(t, []int{songA, songC})

		pl, err := st.GetPlaylist(playlistID)
		if err != nil {
			t.Fatalf("Failed to get playlist: %v", err)
		}
		if pl.SongCount != 2 {
			t.Errorf("Expected song count 2, got %d", pl.SongCount)
		}
	})

	t.Run("RemoveNonMemberIsNoOp", func(t *testing.T) {
		if err := st.RemoveFromPlaylist(playlistID, songB); err != nil {
			t.Fatalf("Removing a non-member should be a no-op: %v", err)
		}
		requireOrder(t, []int{songA, songC})
	})

	t.Run("DeleteSongClosesGapsEverywhere", func(t *testing.T) {
		// Put A, C in a second playlist too, then delete A entirely
		otherID, err := st.CreatePlaylist("Other", "")
		if err != nil {
			t.Fatalf("Failed to create playlist: %v", err)
		}
		for _, id := range []int{songA, songC} {
			if err := st.AddToPlaylist(otherID, id); err != nil {
				t.Fatalf("Failed to add song %d: %v", id, err)
			}
		}

		if err := st.DeleteSong(songA); err != nil {
			t.Fatalf("Failed to delete song: %v", err)
		}

		requireOrder(t, []int{songC})

		otherEntries, err := st.ListPlaylistSongs(otherID)
		if err != nil {
			t.Fatalf("Failed to list other playlist: %v", err)
		}
		if len(otherEntries) != 1 || otherEntries[0].Position != 1 || otherEntries[0].ID != songC {
			t.Errorf("Expected [C] at position 1 in other playlist, got %+v", otherEntries)
		}

		if _, err := st.GetSong(songA); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected deleted song to be gone, got %v", err)
		}
	})

	t.Run("DeletePlaylistKeepsSongs", func(t *testing.T) {
		if err := st.DeletePlaylist(playlistID); err != nil {
			t.Fatalf("Failed to delete playlist: %v", err)
		}

		if _, err := st.GetPlaylist(playlistID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected deleted playlist to be gone, got %v", err)
		}

		// Membership rows cascade away but the songs survive
		if _, err := st.GetSong(songC); err != nil {
			t.Errorf("Expected song to survive playlist deletion, got %v", err)
		}
	})
}

func TestPlaylistPositionsStayContiguousUnderChurn(t *testing.T) {
	st := newTestStore(t)

	playlistID, err := st.CreatePlaylist("Churn", "")
	if err != nil {
		t.Fatalf("Failed to create playlist: %v", err)
	}

	ids := make([]int, 0, 10)
	for i := 0; i < 10; i++ {
		id := addTestSong(t, st, fmt.Sprintf("Song %d", i), "Artist", fmt.Sprintf("/music/churn%d.mp3", i))
		ids = append(ids, id)
		if err := st.AddToPlaylist(playlistID, id); err != nil {
			t.Fatalf("Failed to add song: %v", err)
		}
	}

	// Interleave removes and reorders, checking contiguity after each step
	ops := []func() error{
		func() error { return st.RemoveFromPlaylist(playlistID, ids[4]) },
		func() error { return st.Reorder(playlistID, ids[0], 7) },
		func() error { return st.RemoveFromPlaylist(playlistID, ids[9]) },
		func() error { return st.Reorder(playlistID, ids[7], 1) },
		func() error { return st.RemoveFromPlaylist(playlistID, ids[0]) },
		func() error { return st.Reorder(playlistID, ids[2], 5) },
	}

	for i, op := range ops {
		if err := op(); err != nil {
			t.Fatalf("Operation %d failed: %v", i, err)
		}

		entries, err := st.ListPlaylistSongs(playlistID)
		if err != nil {
			t.Fatalf("Failed to list playlist songs: %v", err)
		}
		for j, entry := range entries {
			if entry.Position != j+1 {
				t.Fatalf("After operation %d: entry %d has position %d, want %d", i, j, entry.Position, j+1)
			}
		}
	}
}

func TestDownloadJobs(t *testing.T) {
	st := newTestStore(t)

	job := DownloadJobRecord{
		ID:        "job-1",
		URL:       "https://example.com/watch?v=abc",
		Title:     "Downloaded Song",
		Artist:    "Web Artist",
		Status:    "pending",
		Progress:  0,
		CreatedAt: time.Now(),
	}

	if err := st.UpsertDownloadJob(job); err != nil {
		t.Fatalf("Failed to insert job: %v", err)
	}

	job.Status = "completed"
	job.Progress = 100
	if err := st.UpsertDownloadJob(job); err != nil {
		t.Fatalf("Failed to update job: %v", err)
	}

	jobs, err := st.ListDownloadJobs()
	if err != nil {
		t.Fatalf("Failed to list jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("Expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Status != "completed" || jobs[0].Progress != 100 {
		t.Errorf("Expected upserted job state, got %+v", jobs[0])
	}
}
