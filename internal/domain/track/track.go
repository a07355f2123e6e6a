// Package track provides the track domain entities.
package track

import (
	"fmt"
	"strings"
	"time"
)

// ID is an opaque track reference naming a track known to the catalog.
// The playback engine treats it as an immutable key.
type ID = string

// Song represents a catalog record as uploaded by a user.
// Only the catalog and the library API deal with these fields.
type Song struct {
	ID        string        // Catalog ID
	UserID    string        // Uploader
	Title     string        // Song title
	Author    string        // Artist / author
	SongPath  string        // Object path inside the storage bucket
	ImagePath string        // Cover image path (optional)
	Duration  time.Duration // Known duration (0 if unknown)
	CreatedAt time.Time     // Upload time
}

// Resolution is the playable source for a track reference.
type Resolution struct {
	SourceURL    string         // URL the audio resource is built from
	DurationHint *time.Duration // Optional duration hint (nil if unknown)
}

// HasDurationHint reports whether the resolution carries a usable duration.
func (r Resolution) HasDurationHint() bool {
	return r.DurationHint != nil && *r.DurationHint > 0
}

// IDs returns the IDs of the given songs, preserving order.
func IDs(songs []Song) []ID {
	ids := make([]ID, len(songs))
	for i, s := range songs {
		ids[i] = s.ID
	}
	return ids
}

// MatchesTitle reports whether the song title contains the query (case-insensitive).
// An empty query matches every song.
func (s *Song) MatchesTitle(query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s.Title), strings.ToLower(query))
}

// FormatClock formats a duration as m:ss, the way the player bar shows it.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
