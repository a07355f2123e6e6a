package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSong_MatchesTitle(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		query    string
		expected bool
	}{
		{
			name:     "empty query matches everything",
			title:    "Blue in Green",
			query:    "",
			expected: true,
		},
		{
			name:     "substring match",
			title:    "Blue in Green",
			query:    "in gr",
			expected: true,
		},
		{
			name:     "case insensitive",
			title:    "Blue in Green",
			query:    "BLUE",
			expected: true,
		},
		{
			name:     "no match",
			title:    "Blue in Green",
			query:    "red",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Song{ID: "song-1", Title: tt.title}
			assert.Equal(t, tt.expected, s.MatchesTitle(tt.query))
		})
	}
}

func TestIDs(t *testing.T) {
	songs := []Song{{ID: "s1"}, {ID: "s2"}, {ID: "s1"}}
	assert.Equal(t, []ID{"s1", "s2", "s1"}, IDs(songs))
	assert.Empty(t, IDs(nil))
}

func TestResolution_HasDurationHint(t *testing.T) {
	zero := time.Duration(0)
	minute := time.Minute

	assert.False(t, Resolution{SourceURL: "http://x"}.HasDurationHint())
	assert.False(t, Resolution{DurationHint: &zero}.HasDurationHint())
	assert.True(t, Resolution{DurationHint: &minute}.HasDurationHint())
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{5 * time.Second, "0:05"},
		{65 * time.Second, "1:05"},
		{10*time.Minute + 59*time.Second + 900*time.Millisecond, "10:59"},
		{-3 * time.Second, "0:00"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatClock(tt.in))
		})
	}
}
