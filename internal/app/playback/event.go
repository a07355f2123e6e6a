package playback

import "github.com/osa030/playdeck/internal/domain/track"

const eventBufferSize = 16

// StatusChange is emitted on every status transition.
type StatusChange struct {
	Generation uint64
	TrackID    track.ID
	Previous   Status
	Current    Status
	Err        error // Set when Current is StatusErrored
}

// VolumeChange is emitted when volume or mute state changes.
type VolumeChange struct {
	Volume float64
	Muted  bool
}

// ProgressChange is emitted on every sampler tick and on seeks.
type ProgressChange struct {
	Generation uint64
	TrackID    track.ID
	Progress   Progress
}

// Subscription provides event channels for one subscriber.
// Sends never block; a subscriber that falls behind loses events and
// should re-read Controller.Snapshot.
type Subscription struct {
	StatusChanged   <-chan StatusChange
	ProgressChanged <-chan ProgressChange
	VolumeChanged   <-chan VolumeChange
	Done            <-chan struct{}

	statusCh   chan StatusChange
	progressCh chan ProgressChange
	volumeCh   chan VolumeChange
	doneCh     chan struct{}
}

func newSubscription() *Subscription {
	s := &Subscription{
		statusCh:   make(chan StatusChange, eventBufferSize),
		progressCh: make(chan ProgressChange, eventBufferSize),
		volumeCh:   make(chan VolumeChange, eventBufferSize),
		doneCh:     make(chan struct{}),
	}
	s.StatusChanged = s.statusCh
	s.ProgressChanged = s.progressCh
	s.VolumeChanged = s.volumeCh
	s.Done = s.doneCh
	return s
}

func (s *Subscription) close() {
	close(s.doneCh)
}

func (s *Subscription) sendStatus(e StatusChange) {
	select {
	case s.statusCh <- e:
	default:
	}
}

func (s *Subscription) sendProgress(e ProgressChange) {
	select {
	case s.progressCh <- e:
	default:
	}
}

func (s *Subscription) sendVolume(e VolumeChange) {
	select {
	case s.volumeCh <- e:
	default:
	}
}
