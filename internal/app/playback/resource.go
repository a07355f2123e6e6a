package playback

import (
	"context"
	"time"

	"github.com/osa030/playdeck/internal/domain/track"
)

// Resolver yields a playable source for a track reference.
type Resolver interface {
	Resolve(ctx context.Context, id track.ID) (track.Resolution, error)
}

// ResourceEventType identifies an asynchronous resource event.
type ResourceEventType int

const (
	ResourceEnded  ResourceEventType = iota // Output reached the natural end
	ResourceFailed                          // Decoding or output failed
)

// String returns the string representation of the event type.
func (t ResourceEventType) String() string {
	switch t {
	case ResourceEnded:
		return "ended"
	case ResourceFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ResourceEvent is reported by a resource through its Sink.
type ResourceEvent struct {
	Type ResourceEventType
	Err  error // Set for ResourceFailed
}

// Sink receives resource events. Resources must never call it from inside
// one of their own methods.
type Sink func(ResourceEvent)

// Source describes what a resource should be built from.
type Source struct {
	URL          string
	DurationHint time.Duration // 0 if unknown
}

// Resource is one opened audio decoding/output handle.
// Implementations must be safe for concurrent use.
type Resource interface {
	Play() error
	Pause() error
	Seek(pos time.Duration) error
	SetVolume(level float64)
	Position() time.Duration
	Duration() time.Duration // 0 if unknown
	Close() error
}

// Factory opens resources. The context bounds opening only.
type Factory interface {
	Open(ctx context.Context, src Source, sink Sink) (Resource, error)
}

// Queue is the part of the queue store the controller navigates with.
type Queue interface {
	Next() (track.ID, bool)
	Previous() (track.ID, bool)
	SetActive(id track.ID)
}
