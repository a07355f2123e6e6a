// Package playbacktest provides in-memory playback resources for tests.
package playbacktest

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/playdeck/internal/app/playback"
)

// Resource is an in-memory playback.Resource. Its clock only moves
// when told to.
type Resource struct {
	mu       sync.Mutex
	src      playback.Source
	sink     playback.Sink
	playing  bool
	closed   bool
	position time.Duration
	duration time.Duration
	volume   float64
	seeks    []time.Duration

	PlayErr error
	SeekErr error
}

// NewResource creates a resource of the given length.
func NewResource(src playback.Source, duration time.Duration, sink playback.Sink) *Resource {
	return &Resource{src: src, sink: sink, duration: duration, volume: 1}
}

func (m *Resource) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PlayErr != nil {
		return m.PlayErr
	}
	m.playing = true
	return nil
}

func (m *Resource) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
	return nil
}

func (m *Resource) Seek(pos time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SeekErr != nil {
		return m.SeekErr
	}
	m.position = pos
	m.seeks = append(m.seeks, pos)
	return nil
}

func (m *Resource) SetVolume(level float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = level
}

func (m *Resource) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Resource) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *Resource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.playing = false
	return nil
}

// Source returns what the resource was opened from.
func (m *Resource) Source() playback.Source {
	return m.src
}

// Advance moves the clock forward.
func (m *Resource) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position += d
}

// Playing reports whether Play was called more recently than Pause.
func (m *Resource) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// Closed reports whether Close was called.
func (m *Resource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Volume returns the last level set.
func (m *Resource) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// Seeks returns every position passed to Seek.
func (m *Resource) Seeks() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.seeks...)
}

// End reports a natural end through the sink.
func (m *Resource) End() {
	m.mu.Lock()
	m.position = m.duration
	m.playing = false
	m.mu.Unlock()
	m.sink(playback.ResourceEvent{Type: playback.ResourceEnded})
}

// Fail reports a failure through the sink.
func (m *Resource) Fail(err error) {
	m.sink(playback.ResourceEvent{Type: playback.ResourceFailed, Err: err})
}

// Factory opens Resources and remembers them in order.
type Factory struct {
	mu        sync.Mutex
	resources []*Resource

	// Duration is the length given to every opened resource.
	Duration time.Duration
	// Errs fails Open for the listed source URLs.
	Errs map[string]error
}

// NewFactory creates a factory whose resources last duration.
func NewFactory(duration time.Duration) *Factory {
	return &Factory{Duration: duration, Errs: make(map[string]error)}
}

func (f *Factory) Open(ctx context.Context, src playback.Source, sink playback.Sink) (playback.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "open canceled")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.Errs[src.URL]; ok {
		return nil, err
	}
	r := NewResource(src, f.Duration, sink)
	f.resources = append(f.resources, r)
	return r, nil
}

// Opened returns every resource opened so far.
func (f *Factory) Opened() []*Resource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Resource(nil), f.resources...)
}

// Last returns the most recently opened resource, or nil.
func (f *Factory) Last() *Resource {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.resources) == 0 {
		return nil
	}
	return f.resources[len(f.resources)-1]
}
