package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/playdeck/internal/domain/track"
	"github.com/osa030/playdeck/internal/infra/spotify"
)

// previewLength is the clip length Spotify serves as preview_url.
const previewLength = 30 * time.Second

// SpotifyClient defines the Spotify operations the resolver needs.
type SpotifyClient interface {
	GetTrack(ctx context.Context, ref string) (*spotify.Track, error)
}

// SpotifyResolverConfig selects which ids are treated as Spotify tracks.
type SpotifyResolverConfig struct {
	// Prefix restricts the resolver to ids starting with it; the prefix
	// is stripped before the lookup. Empty accepts every id.
	Prefix string `mapstructure:"prefix"`
}

// SpotifyResolver plays Spotify preview clips.
type SpotifyResolver struct {
	client SpotifyClient
	config *SpotifyResolverConfig
}

// NewSpotifyResolver creates a SpotifyResolver from settings.
func NewSpotifyResolver(client SpotifyClient, settings map[string]any) (*SpotifyResolver, error) {
	if client == nil {
		return nil, errors.New("spotify resolver requires a spotify client")
	}
	cfg, err := decodeSettings[SpotifyResolverConfig](settings)
	if err != nil {
		return nil, err
	}
	return &SpotifyResolver{client: client, config: cfg}, nil
}

// Resolve returns the track's preview URL.
func (r *SpotifyResolver) Resolve(ctx context.Context, id track.ID) (track.Resolution, error) {
	ref := id
	if r.config.Prefix != "" {
		var ok bool
		if ref, ok = strings.CutPrefix(id, r.config.Prefix); !ok {
			return track.Resolution{}, errors.Wrapf(ErrNotFound, "spotify: %s lacks prefix %q", id, r.config.Prefix)
		}
	}

	t, err := r.client.GetTrack(ctx, ref)
	if err != nil {
		if errors.Is(err, spotify.ErrTrackNotFound) {
			return track.Resolution{}, errors.Mark(err, ErrNotFound)
		}
		return track.Resolution{}, errors.Mark(errors.Wrap(err, "spotify lookup failed"), ErrTransientIO)
	}
	if t.PreviewURL == "" {
		return track.Resolution{}, errors.Wrapf(ErrNotFound, "spotify: %s has no preview", id)
	}
	return resolution(t.PreviewURL, min(previewLength, t.Duration)), nil
}

// Name returns the resolver type.
func (r *SpotifyResolver) Name() string {
	return "spotify"
}
