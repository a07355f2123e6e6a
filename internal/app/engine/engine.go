// Package engine wires the queue store, the playback controller and the
// notification manager into one player instance.
package engine

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/osa030/playdeck/internal/app/notification"
	"github.com/osa030/playdeck/internal/app/playback"
	"github.com/osa030/playdeck/internal/app/queue"
	"github.com/osa030/playdeck/internal/domain/track"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

var (
	ErrAlreadyStarted = errors.New("engine is already started")
	ErrClosed         = errors.New("engine is closed")
	ErrEmptyQueue     = errors.New("no tracks to play")
	ErrNotQueued      = errors.New("track is not in the queue")
	ErrNoCatalog      = errors.New("no catalog configured")
)

// Catalog is the part of the song catalog the engine builds queues from.
type Catalog interface {
	ListByUser(ctx context.Context, userID string) ([]track.Song, error)
	SearchByTitle(ctx context.Context, query string) ([]track.Song, error)
}

// Invalidator is implemented by resolvers that cache resolutions.
type Invalidator interface {
	Invalidate(id track.ID)
}

// Deps holds everything New needs.
type Deps struct {
	Playback playback.Config
	// Resolver may implement Invalidator; its cached entry for a track is
	// dropped when that track's resource fails.
	Resolver playback.Resolver
	Factory  playback.Factory
	Catalog  Catalog // Optional; required by PlayUserLibrary and PlaySearch
}

// Engine is one player instance. Collaborators receive it explicitly
// instead of reaching for a process-wide store.
type Engine struct {
	mu sync.Mutex

	store        *queue.Store
	player       *playback.Controller
	notification *notification.Manager
	catalog      Catalog
	invalidator  Invalidator

	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an engine. Call Start before issuing commands.
func New(deps Deps) (*Engine, error) {
	if deps.Resolver == nil {
		return nil, errors.New("engine: resolver is required")
	}
	if deps.Factory == nil {
		return nil, errors.New("engine: resource factory is required")
	}

	store := queue.New()
	invalidator, _ := deps.Resolver.(Invalidator)
	return &Engine{
		store:        store,
		player:       playback.NewController(deps.Playback, deps.Resolver, deps.Factory, store),
		notification: notification.NewManager(),
		catalog:      deps.Catalog,
		invalidator:  invalidator,
		done:         make(chan struct{}),
	}, nil
}

// Start attaches the controller to queue activations and starts forwarding
// events to notification subscribers until ctx is done or Close is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true

	e.store.Observe(e.player.HandleQueueChange)

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	playerSub := e.player.Subscribe()
	queueSub := e.store.Subscribe()
	go e.forwardLoop(loopCtx, playerSub, queueSub)

	zlog.Info().Msgf("engine: started")
	return nil
}

// Close stops forwarding, releases the current session and closes every
// subscription. It is safe to call more than once.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	started := e.started
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	if started {
		<-e.done
	} else {
		close(e.done)
	}
	e.player.Close()
	e.store.Close()
	e.notification.Close()
	zlog.Info().Msgf("engine: closed")
}

// Done is closed when event forwarding stops.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Queue returns the queue store.
func (e *Engine) Queue() *queue.Store {
	return e.store
}

// Player returns the playback controller.
func (e *Engine) Player() *playback.Controller {
	return e.player
}

// Notifications returns the notification manager.
func (e *Engine) Notifications() *notification.Manager {
	return e.notification
}

// PlayFrom makes ids the browsing context and activates id.
func (e *Engine) PlayFrom(ids []track.ID, id track.ID) error {
	if err := e.checkRunning(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return ErrEmptyQueue
	}
	if !lo.Contains(ids, id) {
		return errors.Wrapf(ErrNotQueued, "id=%s", id)
	}

	e.store.SetQueue(ids)
	e.store.SetActive(id)
	return nil
}

// PlayUserLibrary queues a user's songs, newest first, and starts at
// startID or at the newest song when startID is empty.
func (e *Engine) PlayUserLibrary(ctx context.Context, userID string, startID track.ID) error {
	if e.catalog == nil {
		return ErrNoCatalog
	}
	songs, err := e.catalog.ListByUser(ctx, userID)
	if err != nil {
		return errors.Wrapf(err, "failed to list songs: user_id=%s", userID)
	}
	zlog.Debug().Msgf("engine: play user library: user_id=%s songs=%d", userID, len(songs))
	return e.playSongs(songs, startID)
}

// PlaySearch queues the songs whose title matches query and starts at
// startID or at the first match when startID is empty.
func (e *Engine) PlaySearch(ctx context.Context, query string, startID track.ID) error {
	if e.catalog == nil {
		return ErrNoCatalog
	}
	songs, err := e.catalog.SearchByTitle(ctx, query)
	if err != nil {
		return errors.Wrapf(err, "failed to search songs: query=%q", query)
	}
	zlog.Debug().Msgf("engine: play search: query=%q songs=%d", query, len(songs))
	return e.playSongs(songs, startID)
}

func (e *Engine) playSongs(songs []track.Song, startID track.ID) error {
	if len(songs) == 0 {
		return ErrEmptyQueue
	}
	ids := track.IDs(songs)
	if startID == "" {
		startID = ids[0]
	}
	return e.PlayFrom(ids, startID)
}

// Status is the aggregate state of the engine.
type Status struct {
	Queue       queue.Snapshot
	Playback    playback.Snapshot
	Subscribers int
}

// Status returns the queue snapshot together with the playback state.
func (e *Engine) Status() Status {
	return Status{
		Queue:       e.store.Snapshot(),
		Playback:    e.player.Snapshot(),
		Subscribers: e.notification.SubscriberCount(),
	}
}

func (e *Engine) checkRunning() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}
