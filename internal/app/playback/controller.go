package playback

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/playdeck/internal/app/queue"
	"github.com/osa030/playdeck/internal/domain/track"
)

// Config holds controller configuration.
type Config struct {
	SkipIncrement  time.Duration // Step used by SkipForward/SkipBackward
	SampleInterval time.Duration // Progress sampling period
	Autoplay       bool          // Start playing as soon as a resource is open
	InitialVolume  float64       // Volume in [0,1]
	LoadTimeout    time.Duration // Upper bound for resolve + open, 0 for none
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		SkipIncrement:  5 * time.Second,
		SampleInterval: time.Second,
		Autoplay:       true,
		InitialVolume:  1,
	}
}

// Snapshot is a point-in-time view of the playback session.
type Snapshot struct {
	Generation uint64
	TrackID    track.ID
	SourceURL  string
	Status     Status
	Volume     float64
	Muted      bool
	Progress   Progress
	Err        error
}

// Controller owns at most one playback session at a time.
//
// Every asynchronous continuation (resolution, resource events, sampler
// ticks) carries the generation it was started for and is dropped when a
// newer Load has happened since.
type Controller struct {
	mu sync.RWMutex

	resolver Resolver
	factory  Factory
	queue    Queue
	config   Config

	// Session state
	generation   uint64
	trackID      track.ID
	sourceURL    string
	durationHint time.Duration
	resource     Resource
	status       Status
	autoplay     bool
	progress     Progress
	lastErr      error

	// Output state, survives across sessions
	volume          float64
	muted           bool
	mutePriorVolume *float64

	loadCancel    context.CancelFunc
	samplerCancel context.CancelFunc

	subsMu     sync.Mutex
	subs       []*Subscription
	subsClosed bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewController creates a new playback controller.
func NewController(config Config, resolver Resolver, factory Factory, q Queue) *Controller {
	if config.SampleInterval <= 0 {
		config.SampleInterval = time.Second
	}
	if config.SkipIncrement <= 0 {
		config.SkipIncrement = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		resolver: resolver,
		factory:  factory,
		queue:    q,
		config:   config,
		status:   StatusIdle,
		volume:   lo.Clamp(config.InitialVolume, 0, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// HandleQueueChange loads the newly activated track. It is meant to be
// registered as a queue observer; replacing the queue alone leaves the
// current session untouched.
func (c *Controller) HandleQueueChange(change queue.Change) {
	if change.Kind != queue.ActiveChanged || !change.Snapshot.HasActive() {
		return
	}
	c.Load(change.Snapshot.Active)
}

// Load tears down the current session and starts a new one for id.
// Resolution and resource construction continue in the background.
func (c *Controller) Load(id track.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.releaseLocked()
	c.generation++
	gen := c.generation

	c.trackID = id
	c.sourceURL = ""
	c.durationHint = 0
	c.lastErr = nil
	c.autoplay = c.config.Autoplay
	c.progress = Progress{}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.config.LoadTimeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, c.config.LoadTimeout)
	} else {
		ctx, cancel = context.WithCancel(c.ctx)
	}
	c.loadCancel = cancel

	c.setStatusLocked(StatusLoading)
	c.publishProgressLocked()

	zlog.Debug().Msgf("playback: load started: generation=%d, track=%s", gen, id)

	c.wg.Add(1)
	go c.runLoad(ctx, gen, id)
}

func (c *Controller) runLoad(ctx context.Context, gen uint64, id track.ID) {
	defer c.wg.Done()

	res, err := c.resolver.Resolve(ctx, id)
	if err != nil {
		c.failLoad(gen, errors.Mark(errors.Wrapf(err, "failed to resolve track %s", id), ErrResolution))
		return
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		zlog.Debug().Msgf("playback: discarding stale resolution: generation=%d, track=%s", gen, id)
		return
	}
	c.sourceURL = res.SourceURL
	if res.HasDurationHint() {
		c.durationHint = *res.DurationHint
	}
	src := Source{URL: res.SourceURL, DurationHint: c.durationHint}
	c.mu.Unlock()

	sink := func(ev ResourceEvent) {
		c.handleResourceEvent(gen, ev)
	}
	r, err := c.factory.Open(ctx, src, sink)
	if err != nil {
		c.failLoad(gen, errors.Mark(errors.Wrapf(err, "failed to open source %s", src.URL), ErrResource))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.closed {
		zlog.Debug().Msgf("playback: closing stale resource: generation=%d, track=%s", gen, id)
		if err := r.Close(); err != nil {
			zlog.Warn().Err(err).Msgf("playback: failed to close stale resource: generation=%d", gen)
		}
		return
	}

	if c.loadCancel != nil {
		c.loadCancel()
		c.loadCancel = nil
	}
	c.resource = r
	r.SetVolume(c.volume)
	c.progress = NewProgress(0, c.durationLocked())
	c.publishProgressLocked()

	zlog.Info().Msgf("playback: track loaded: generation=%d, track=%s, duration=%v", gen, id, c.progress.Duration)

	if !c.autoplay {
		c.setStatusLocked(StatusPaused)
		return
	}
	c.playLocked()
}

func (c *Controller) failLoad(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		zlog.Debug().Err(err).Msgf("playback: discarding stale load failure: generation=%d", gen)
		return
	}
	c.failLocked(err)
}

// failLocked moves the session to Errored and releases its resource.
// Errored sessions are never retried or advanced.
func (c *Controller) failLocked(err error) {
	c.releaseLocked()
	c.lastErr = err
	zlog.Warn().Err(err).Msgf("playback: session failed: generation=%d, track=%s", c.generation, c.trackID)
	c.setStatusLocked(StatusErrored)
}

func (c *Controller) handleResourceEvent(gen uint64, ev ResourceEvent) {
	c.mu.Lock()

	if gen != c.generation || c.resource == nil {
		c.mu.Unlock()
		zlog.Debug().Msgf("playback: discarding stale resource event: generation=%d, event=%s", gen, ev.Type)
		return
	}

	switch ev.Type {
	case ResourceFailed:
		err := ev.Err
		if err == nil {
			err = errors.New("resource reported failure")
		}
		c.failLocked(errors.Mark(errors.Wrap(err, "audio output failed"), ErrResource))
		c.mu.Unlock()

	case ResourceEnded:
		if c.status != StatusPlaying && c.status != StatusPaused {
			c.mu.Unlock()
			return
		}
		c.stopSamplerLocked()
		d := c.durationLocked()
		c.progress = NewProgress(d, d)
		c.publishProgressLocked()
		c.setStatusLocked(StatusEnded)
		c.mu.Unlock()

		c.advance(gen)

	default:
		c.mu.Unlock()
	}
}

// advance activates the next queued track after a natural end. The queue
// observer turns the activation into a Load; a single-track queue wraps
// to itself and reloads.
func (c *Controller) advance(gen uint64) {
	next, ok := c.queue.Next()
	if !ok {
		zlog.Info().Msg("playback: queue exhausted, staying ended")
		return
	}

	c.mu.RLock()
	stale := gen != c.generation
	c.mu.RUnlock()
	if stale {
		return
	}

	zlog.Debug().Msgf("playback: advancing: from_generation=%d, next=%s", gen, next)
	c.queue.SetActive(next)
}

// Play resumes or starts output. In Ended it restarts from the beginning.
// During Loading it re-arms autoplay for the pending resource.
func (c *Controller) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case StatusLoading:
		c.autoplay = true
	case StatusPaused:
		c.playLocked()
	case StatusEnded:
		if c.resource == nil {
			return
		}
		if err := c.resource.Seek(0); err != nil {
			c.failLocked(errors.Mark(errors.Wrap(err, "failed to rewind"), ErrResource))
			return
		}
		c.progress = NewProgress(0, c.durationLocked())
		c.publishProgressLocked()
		c.playLocked()
	}
}

func (c *Controller) playLocked() {
	if c.resource == nil {
		return
	}
	if err := c.resource.Play(); err != nil {
		c.failLocked(errors.Mark(errors.Wrap(err, "failed to start output"), ErrResource))
		return
	}
	c.setStatusLocked(StatusPlaying)
	c.startSamplerLocked()
}

// Pause pauses output. It is ignored unless playing.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusPlaying {
		c.pauseLocked()
	}
}

func (c *Controller) pauseLocked() {
	if err := c.resource.Pause(); err != nil {
		c.failLocked(errors.Mark(errors.Wrap(err, "failed to pause output"), ErrResource))
		return
	}
	c.stopSamplerLocked()
	c.progress = NewProgress(c.resource.Position(), c.durationLocked())
	c.publishProgressLocked()
	c.setStatusLocked(StatusPaused)
}

// Toggle pauses when playing and plays otherwise.
func (c *Controller) Toggle() {
	c.mu.RLock()
	playing := c.status == StatusPlaying
	c.mu.RUnlock()

	if playing {
		c.Pause()
		return
	}
	c.Play()
}

// Stop ends the session and returns to Idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusIdle {
		return
	}
	c.releaseLocked()
	c.generation++
	c.trackID = ""
	c.sourceURL = ""
	c.durationHint = 0
	c.lastErr = nil
	c.progress = Progress{}
	c.publishProgressLocked()
	c.setStatusLocked(StatusIdle)
}

// Seek moves the playhead, clamped to [0, duration].
func (c *Controller) Seek(to time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seekLocked(to)
}

// SeekFraction seeks to f × duration, f clamped to [0,1]. NaN is ignored.
func (c *Controller) SeekFraction(f float64) {
	if math.IsNaN(f) {
		zlog.Debug().Msgf("playback: ignoring NaN seek fraction")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	f = lo.Clamp(f, 0, 1)
	c.seekLocked(time.Duration(f * float64(c.durationLocked())))
}

// SkipForward seeks one increment past the current time.
func (c *Controller) SkipForward() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seekLocked(c.progress.Current + c.config.SkipIncrement)
}

// SkipBackward seeks one increment before the current time.
func (c *Controller) SkipBackward() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seekLocked(c.progress.Current - c.config.SkipIncrement)
}

func (c *Controller) seekLocked(to time.Duration) {
	if c.resource == nil {
		return
	}
	d := c.durationLocked()
	pos := lo.Clamp(to, 0, d)
	if err := c.resource.Seek(pos); err != nil {
		c.failLocked(errors.Mark(errors.Wrapf(err, "failed to seek to %v", pos), ErrResource))
		return
	}
	c.progress = NewProgress(pos, d)
	c.publishProgressLocked()
}

// Next activates the next queued track.
func (c *Controller) Next() {
	if id, ok := c.queue.Next(); ok {
		c.queue.SetActive(id)
	}
}

// Previous activates the previous queued track.
func (c *Controller) Previous() {
	if id, ok := c.queue.Previous(); ok {
		c.queue.SetActive(id)
	}
}

// SetVolume sets the output level, clamped to [0,1]. Setting a volume
// while muted unmutes. NaN is ignored.
func (c *Controller) SetVolume(level float64) {
	if math.IsNaN(level) {
		zlog.Debug().Msgf("playback: ignoring NaN volume")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.volume = lo.Clamp(level, 0, 1)
	c.muted = false
	c.applyVolumeLocked()
}

// ToggleMute mutes, remembering the prior level, or restores it.
func (c *Controller) ToggleMute() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.muted {
		c.volume = 1
		if c.mutePriorVolume != nil {
			c.volume = *c.mutePriorVolume
		}
		c.muted = false
	} else {
		prior := c.volume
		c.mutePriorVolume = &prior
		c.volume = 0
		c.muted = true
	}
	c.applyVolumeLocked()
}

func (c *Controller) applyVolumeLocked() {
	if c.resource != nil {
		c.resource.SetVolume(c.volume)
	}
	c.publishVolumeLocked()
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Generation: c.generation,
		TrackID:    c.trackID,
		SourceURL:  c.sourceURL,
		Status:     c.status,
		Volume:     c.volume,
		Muted:      c.muted,
		Progress:   c.progress,
		Err:        c.lastErr,
	}
}

// Subscribe registers a new event subscriber.
func (c *Controller) Subscribe() *Subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	sub := newSubscription()
	if c.subsClosed {
		sub.close()
		return sub
	}
	c.subs = append(c.subs, sub)
	return sub
}

// Unsubscribe removes a subscriber and closes its Done channel.
func (c *Controller) Unsubscribe(sub *Subscription) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			sub.close()
			return
		}
	}
}

// Close ends the session, waits for in-flight loads and closes all
// subscriptions. The controller ignores every call afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.releaseLocked()
	c.generation++
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()

	c.subsMu.Lock()
	for _, sub := range c.subs {
		sub.close()
	}
	c.subs = nil
	c.subsClosed = true
	c.subsMu.Unlock()
}

// releaseLocked cancels the sampler and any pending load and closes the
// current resource.
func (c *Controller) releaseLocked() {
	c.stopSamplerLocked()
	if c.loadCancel != nil {
		c.loadCancel()
		c.loadCancel = nil
	}
	if c.resource != nil {
		if err := c.resource.Close(); err != nil {
			zlog.Warn().Err(err).Msgf("playback: failed to close resource: generation=%d", c.generation)
		}
		c.resource = nil
	}
}

// durationLocked prefers the resource's own length over the hint.
func (c *Controller) durationLocked() time.Duration {
	if c.resource != nil {
		if d := c.resource.Duration(); d > 0 {
			return d
		}
	}
	return c.durationHint
}

func (c *Controller) startSamplerLocked() {
	c.stopSamplerLocked()
	gen := c.generation
	res := c.resource
	c.samplerCancel = startSampler(c.ctx, c.config.SampleInterval, func() {
		c.sample(gen, res)
	})
}

func (c *Controller) stopSamplerLocked() {
	if c.samplerCancel != nil {
		c.samplerCancel()
		c.samplerCancel = nil
	}
}

func (c *Controller) sample(gen uint64, res Resource) {
	pos := res.Position()

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.resource != res || c.status != StatusPlaying {
		return
	}
	c.progress = NewProgress(pos, c.durationLocked())
	c.publishProgressLocked()
}

func (c *Controller) setStatusLocked(s Status) {
	prev := c.status
	c.status = s
	if prev != s {
		zlog.Debug().Msgf("playback: status changed: generation=%d, from=%s, to=%s", c.generation, prev, s)
	}

	change := StatusChange{
		Generation: c.generation,
		TrackID:    c.trackID,
		Previous:   prev,
		Current:    s,
	}
	if s == StatusErrored {
		change.Err = c.lastErr
	}

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, sub := range c.subs {
		sub.sendStatus(change)
	}
}

func (c *Controller) publishProgressLocked() {
	change := ProgressChange{
		Generation: c.generation,
		TrackID:    c.trackID,
		Progress:   c.progress,
	}

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, sub := range c.subs {
		sub.sendProgress(change)
	}
}

func (c *Controller) publishVolumeLocked() {
	change := VolumeChange{Volume: c.volume, Muted: c.muted}

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, sub := range c.subs {
		sub.sendVolume(change)
	}
}
