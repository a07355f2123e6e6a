package audio

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/osa030/playdeck/internal/app/playback"
)

// virtualTick is how often the virtual clock checks for the end of track.
const virtualTick = 100 * time.Millisecond

// VirtualFactory opens headless resources: the audio is downloaded and
// decoded once to learn its length, then a wall clock stands in for the
// output device.
type VirtualFactory struct {
	client   *http.Client
	maxBytes int64
}

// NewVirtualFactory creates a VirtualFactory.
func NewVirtualFactory(client *http.Client, maxBytes int64) *VirtualFactory {
	return &VirtualFactory{client: client, maxBytes: maxBytes}
}

// Open implements playback.Factory.
func (f *VirtualFactory) Open(ctx context.Context, src playback.Source, sink playback.Sink) (playback.Resource, error) {
	d, err := Fetch(ctx, f.client, src.URL, f.maxBytes)
	if err != nil {
		return nil, err
	}
	streamer, format, err := Decode(d)
	if err != nil {
		return nil, err
	}
	length := Length(streamer, format)
	if err := streamer.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close decoder")
	}
	return newVirtualResource(length, sink), nil
}

// virtualResource plays nothing but keeps time like a real output would.
type virtualResource struct {
	mu sync.Mutex

	sink      playback.Sink
	duration  time.Duration
	offset    time.Duration // Position when the clock was last (re)started
	startedAt time.Time
	playing   bool
	closed    bool
	volume    float64

	timerCancel func()
	timerID     uint64
}

func newVirtualResource(duration time.Duration, sink playback.Sink) *virtualResource {
	return &virtualResource{sink: sink, duration: duration, volume: 1}
}

func (r *virtualResource) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New("resource closed")
	}
	if r.playing {
		return nil
	}
	r.playing = true
	r.startedAt = toWallTime(time.Now())
	r.armTimerLocked()
	return nil
}

func (r *virtualResource) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.playing {
		return nil
	}
	r.offset = r.positionLocked()
	r.playing = false
	r.stopTimerLocked()
	return nil
}

func (r *virtualResource) Seek(pos time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New("resource closed")
	}
	r.offset = lo.Clamp(pos, 0, r.duration)
	if r.playing {
		r.startedAt = toWallTime(time.Now())
		r.armTimerLocked()
	}
	return nil
}

func (r *virtualResource) SetVolume(level float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volume = level
}

func (r *virtualResource) Position() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.positionLocked()
}

func (r *virtualResource) Duration() time.Duration {
	return r.duration
}

func (r *virtualResource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.playing = false
	r.stopTimerLocked()
	return nil
}

func (r *virtualResource) positionLocked() time.Duration {
	if !r.playing {
		return r.offset
	}
	elapsed := toWallTime(time.Now()).Sub(r.startedAt)
	return min(r.offset+elapsed, r.duration)
}

func (r *virtualResource) armTimerLocked() {
	r.stopTimerLocked()
	r.timerID++
	id := r.timerID
	r.timerCancel = startWallClockTimer(r.duration-r.offset, func() {
		r.finish(id)
	})
}

func (r *virtualResource) stopTimerLocked() {
	if r.timerCancel != nil {
		r.timerCancel()
		r.timerCancel = nil
	}
}

func (r *virtualResource) finish(id uint64) {
	r.mu.Lock()
	if r.closed || !r.playing || id != r.timerID {
		r.mu.Unlock()
		return
	}
	r.offset = r.duration
	r.playing = false
	r.timerCancel = nil
	r.mu.Unlock()

	r.sink(playback.ResourceEvent{Type: playback.ResourceEnded})
}

// startWallClockTimer calls callback once duration of wall-clock time has
// passed, unless the returned cancel function is called first.
func startWallClockTimer(duration time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		endTime := toWallTime(time.Now()).Add(duration)
		ticker := time.NewTicker(virtualTick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !toWallTime(time.Now()).Before(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime returns the time with monotonic clock stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
