package catalog

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/playdeck/internal/domain/track"
	"github.com/osa030/playdeck/internal/infra/spotify"
)

// previewLength is the clip length Spotify serves as a preview.
const previewLength = 30 * time.Second

// Manifest is the YAML document accepted by ParseManifest.
type Manifest struct {
	Songs []ManifestSong `yaml:"songs" validate:"required,min=1,dive"`
}

// ManifestSong is one song entry of a manifest.
type ManifestSong struct {
	ID          string    `yaml:"id" validate:"required"`
	UserID      string    `yaml:"user_id" validate:"required"`
	Title       string    `yaml:"title" validate:"required"`
	Author      string    `yaml:"author"`
	SongPath    string    `yaml:"song_path" validate:"required"`
	ImagePath   string    `yaml:"image_path"`
	DurationSec float64   `yaml:"duration_sec" validate:"gte=0"`
	CreatedAt   time.Time `yaml:"created_at"`
}

// ParseManifest decodes and validates a YAML song manifest.
func ParseManifest(data []byte) ([]track.Song, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "failed to parse manifest")
	}
	if err := validator.New().Struct(&m); err != nil {
		return nil, errors.Wrap(err, "manifest validation failed")
	}

	seen := make(map[string]bool, len(m.Songs))
	songs := make([]track.Song, 0, len(m.Songs))
	for _, s := range m.Songs {
		if seen[s.ID] {
			return nil, errors.Newf("duplicate song id in manifest: %s", s.ID)
		}
		seen[s.ID] = true
		songs = append(songs, track.Song{
			ID:        s.ID,
			UserID:    s.UserID,
			Title:     s.Title,
			Author:    s.Author,
			SongPath:  s.SongPath,
			ImagePath: s.ImagePath,
			Duration:  time.Duration(s.DurationSec * float64(time.Second)),
			CreatedAt: s.CreatedAt,
		})
	}
	return songs, nil
}

// SongsFromSpotify turns playlist tracks into catalog songs owned by userID.
// Tracks without a preview clip are skipped and returned by id. Creation
// times descend in playlist order so the first track lists as newest.
func SongsFromSpotify(tracks []spotify.Track, userID string, now time.Time) (songs []track.Song, skipped []string) {
	for i, t := range tracks {
		if t.PreviewURL == "" {
			skipped = append(skipped, t.ID)
			continue
		}
		songs = append(songs, track.Song{
			ID:        t.ID,
			UserID:    userID,
			Title:     t.Name,
			Author:    strings.Join(t.Artists, ", "),
			SongPath:  t.PreviewURL,
			ImagePath: t.AlbumArtURL,
			Duration:  min(t.Duration, previewLength),
			CreatedAt: now.Add(-time.Duration(i) * time.Second),
		})
	}
	return songs, skipped
}
