package resolver

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/playdeck/internal/domain/track"
)

// StaticResolverConfig maps track ids to URLs.
type StaticResolverConfig struct {
	Tracks    map[string]string `mapstructure:"tracks" validate:"required,min=1"`
	Durations map[string]int    `mapstructure:"durations"` // Seconds, optional
}

// StaticResolver resolves from a fixed table.
type StaticResolver struct {
	config *StaticResolverConfig
}

// NewStaticResolver creates a StaticResolver from settings.
func NewStaticResolver(settings map[string]any) (*StaticResolver, error) {
	cfg, err := decodeSettings[StaticResolverConfig](settings)
	if err != nil {
		return nil, err
	}
	return &StaticResolver{config: cfg}, nil
}

// Resolve looks the id up in the table.
func (r *StaticResolver) Resolve(_ context.Context, id track.ID) (track.Resolution, error) {
	url, ok := r.config.Tracks[id]
	if !ok || url == "" {
		return track.Resolution{}, errors.Wrapf(ErrNotFound, "static: %s", id)
	}
	return resolution(url, time.Duration(r.config.Durations[id])*time.Second), nil
}

// Name returns the resolver type.
func (r *StaticResolver) Name() string {
	return "static"
}
