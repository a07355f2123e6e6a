package resolver

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/golang-lru/v2/expirable"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playdeck/internal/domain/track"
)

// Entry wraps a resolver with its display name.
type Entry struct {
	Resolver    Resolver
	DisplayName string
}

// Chain tries resolvers in order until one yields a source.
// Successful resolutions are cached.
type Chain struct {
	entries []Entry
	cache   *expirable.LRU[track.ID, track.Resolution]
}

// NewChain creates a resolver chain. A cacheSize of 0 disables caching;
// a ttl of 0 keeps entries until evicted by size.
func NewChain(entries []Entry, cacheSize int, ttl time.Duration) *Chain {
	c := &Chain{entries: entries}
	if cacheSize > 0 {
		c.cache = expirable.NewLRU[track.ID, track.Resolution](cacheSize, nil, ttl)
	}
	return c
}

// Resolve asks each resolver in turn. ErrNotFound moves on to the next
// resolver; other failures are remembered and also move on. When nothing
// resolves, a transient failure is reported in preference to ErrNotFound.
func (c *Chain) Resolve(ctx context.Context, id track.ID) (track.Resolution, error) {
	if id == "" {
		return track.Resolution{}, errors.Wrap(ErrNotFound, "empty track reference")
	}

	if c.cache != nil {
		if res, ok := c.cache.Get(id); ok {
			zlog.Debug().Msgf("resolver: cache hit: id=%s", id)
			return res, nil
		}
	}

	var transient error
	for i, e := range c.entries {
		if err := ctx.Err(); err != nil {
			return track.Resolution{}, errors.Mark(errors.Wrap(err, "resolution canceled"), ErrTransientIO)
		}

		zlog.Debug().Msgf("resolver: trying: index=%d total=%d name=%s type=%s id=%s",
			i+1, len(c.entries), e.DisplayName, e.Resolver.Name(), id)

		res, err := e.Resolver.Resolve(ctx, id)
		if err == nil {
			if c.cache != nil {
				c.cache.Add(id, res)
			}
			zlog.Debug().Msgf("resolver: resolved: name=%s id=%s url=%s", e.DisplayName, id, res.SourceURL)
			return res, nil
		}

		if errors.Is(err, ErrNotFound) {
			continue
		}
		zlog.Warn().Msgf("resolver: failed, trying next: name=%s id=%s error=%v", e.DisplayName, id, err)
		transient = err
	}

	if transient != nil {
		return track.Resolution{}, errors.Mark(errors.Wrapf(transient, "failed to resolve %s", id), ErrTransientIO)
	}
	return track.Resolution{}, errors.Wrapf(ErrNotFound, "no resolver knows %s", id)
}

// Invalidate drops a cached resolution.
func (c *Chain) Invalidate(id track.ID) {
	if c.cache != nil {
		c.cache.Remove(id)
	}
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return "chain"
}

// Len returns the number of resolvers in the chain.
func (c *Chain) Len() int {
	return len(c.entries)
}
