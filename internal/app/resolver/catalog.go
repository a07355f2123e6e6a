package resolver

import (
	"context"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/playdeck/internal/domain/track"
	"github.com/osa030/playdeck/internal/infra/catalog"
)

// SongStore is the catalog lookup the catalog resolver needs.
type SongStore interface {
	GetSong(ctx context.Context, id track.ID) (*track.Song, error)
}

// CatalogResolverConfig locates song files in object storage.
type CatalogResolverConfig struct {
	StorageBaseURL string `mapstructure:"storage_base_url" validate:"required,url"`
	Bucket         string `mapstructure:"bucket" default:"songs"`
}

// CatalogResolver builds public storage URLs for catalog songs.
type CatalogResolver struct {
	songs  SongStore
	config *CatalogResolverConfig
}

// NewCatalogResolver creates a CatalogResolver from settings.
func NewCatalogResolver(songs SongStore, settings map[string]any) (*CatalogResolver, error) {
	if songs == nil {
		return nil, errors.New("catalog resolver requires a song store")
	}
	cfg, err := decodeSettings[CatalogResolverConfig](settings)
	if err != nil {
		return nil, err
	}
	return &CatalogResolver{songs: songs, config: cfg}, nil
}

// Resolve returns <storage_base_url>/<bucket>/<song_path>. Songs whose path
// is already an absolute http(s) URL are returned as is.
func (r *CatalogResolver) Resolve(ctx context.Context, id track.ID) (track.Resolution, error) {
	song, err := r.songs.GetSong(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return track.Resolution{}, errors.Mark(err, ErrNotFound)
		}
		return track.Resolution{}, errors.Mark(errors.Wrap(err, "catalog lookup failed"), ErrTransientIO)
	}

	src, err := r.sourceURL(song.SongPath)
	if err != nil {
		return track.Resolution{}, errors.Wrapf(err, "song %s", id)
	}
	return resolution(src, song.Duration), nil
}

func (r *CatalogResolver) sourceURL(songPath string) (string, error) {
	if strings.HasPrefix(songPath, "http://") || strings.HasPrefix(songPath, "https://") {
		return songPath, nil
	}
	src, err := url.JoinPath(r.config.StorageBaseURL, r.config.Bucket, strings.TrimPrefix(songPath, "/"))
	if err != nil {
		return "", errors.Wrap(err, "failed to build storage URL")
	}
	return src, nil
}

// Name returns the resolver type.
func (r *CatalogResolver) Name() string {
	return "catalog"
}
