package resolver

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playdeck/internal/infra/config"
)

// Deps carries the backends resolvers may need. Unused ones may be nil.
type Deps struct {
	Songs   SongStore
	Spotify SpotifyClient
}

// NewChainFromConfig creates a resolver chain from configuration.
func NewChainFromConfig(cfg *config.Config, deps Deps) (*Chain, error) {
	if len(cfg.Resolvers.Entries) == 0 {
		return nil, errors.New("no resolvers configured")
	}

	var entries []Entry

	for i, rcfg := range cfg.Resolvers.Entries {
		var r Resolver
		var err error
		zlog.Debug().Msgf("creating resolver: index=%d type=%s", i+1, rcfg.Type)
		switch rcfg.Type {
		case config.ResolverCatalog:
			r, err = NewCatalogResolver(deps.Songs, rcfg.Settings)

		case config.ResolverSpotify:
			r, err = NewSpotifyResolver(deps.Spotify, rcfg.Settings)

		case config.ResolverStatic:
			r, err = NewStaticResolver(rcfg.Settings)

		default:
			return nil, errors.Newf("unsupported resolver type: %s (resolver index %d)", rcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create resolver (index %d, type %s)", i, rcfg.Type)
		}

		name := rcfg.DisplayName
		if name == "" {
			name = rcfg.Type
		}
		entries = append(entries, Entry{Resolver: r, DisplayName: name})

		zlog.Info().Msgf("registered resolver: index=%d type=%s display_name=%s", i+1, rcfg.Type, name)
	}

	return NewChain(entries, cfg.Resolvers.CacheSize, cfg.Resolvers.CacheTTL()), nil
}
