// Package resolver turns track references into playable sources.
package resolver

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/playdeck/internal/domain/track"
)

// Resolver failures. Implementations mark their errors with one of these
// so callers can use errors.Is.
var (
	ErrNotFound    = errors.New("track not found")
	ErrTransientIO = errors.New("transient I/O failure")
)

// Resolver yields a playable source for a track reference.
type Resolver interface {
	Resolve(ctx context.Context, id track.ID) (track.Resolution, error)

	// Name returns the resolver type (used in config and logs).
	Name() string
}

// decodeSettings fills T from a free-form settings map, applies defaults
// and validates the result.
func decodeSettings[T any](settings map[string]any) (*T, error) {
	var cfg T
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	return &cfg, nil
}

// resolution builds a Resolution, attaching d as the duration hint when known.
func resolution(url string, d time.Duration) track.Resolution {
	res := track.Resolution{SourceURL: url}
	if d > 0 {
		res.DurationHint = &d
	}
	return res
}
