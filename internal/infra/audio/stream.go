package audio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"

	"github.com/osa030/playdeck/internal/app/playback"
)

// resampleQuality is the beep.Resample quality used for every stream.
const resampleQuality = 4

var errResourceClosed = errors.New("resource closed")

// mixer is the output a stream resource is played through. Lock and Unlock
// guard state the mixer reads while streaming.
type mixer interface {
	Play(s ...beep.Streamer)
	Lock()
	Unlock()
}

// streamResource is one decoded stream mixed into an output.
type streamResource struct {
	mu      sync.Mutex
	closed  atomic.Bool // Read on the mixer goroutine without mu
	drained atomic.Bool // The mixer dropped the stream after it ended

	streamer beep.StreamSeekCloser
	format   beep.Format
	outRate  beep.SampleRate
	mixer    mixer
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	sink     playback.Sink
}

// newStreamResource registers streamer with m, paused.
func newStreamResource(streamer beep.StreamSeekCloser, format beep.Format, outRate beep.SampleRate, m mixer, sink playback.Sink) *streamResource {
	r := &streamResource{
		streamer: streamer,
		format:   format,
		outRate:  outRate,
		mixer:    m,
		sink:     sink,
	}
	r.ctrl = &beep.Ctrl{Streamer: r.resampled(), Paused: true}
	r.volume = &effects.Volume{Streamer: r.ctrl, Base: 2}
	r.mixer.Play(r.output())
	return r
}

func (r *streamResource) resampled() beep.Streamer {
	return beep.Resample(resampleQuality, r.format.SampleRate, r.outRate, r.streamer)
}

func (r *streamResource) output() beep.Streamer {
	return beep.Seq(r.volume, beep.Callback(r.finished))
}

// Play resumes output. After the stream drained it is handed to the mixer
// again from the current decoder position.
func (r *streamResource) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return errResourceClosed
	}

	r.mixer.Lock()
	replay := r.drained.Swap(false)
	if replay {
		// A resampler stays exhausted once its source ended.
		r.ctrl.Streamer = r.resampled()
	}
	r.ctrl.Paused = false
	r.mixer.Unlock()

	if replay {
		r.mixer.Play(r.output())
	}
	return nil
}

func (r *streamResource) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return errResourceClosed
	}
	r.mixer.Lock()
	r.ctrl.Paused = true
	r.mixer.Unlock()
	return nil
}

func (r *streamResource) Seek(pos time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return errResourceClosed
	}

	r.mixer.Lock()
	defer r.mixer.Unlock()

	n := min(max(r.format.SampleRate.N(pos), 0), r.streamer.Len())
	return r.streamer.Seek(n)
}

func (r *streamResource) SetVolume(level float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return
	}
	r.mixer.Lock()
	r.volume.Volume = levelToVolume(level)
	r.volume.Silent = level <= 0
	r.mixer.Unlock()
}

func (r *streamResource) Position() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return 0
	}
	r.mixer.Lock()
	pos := r.streamer.Position()
	r.mixer.Unlock()
	return r.format.SampleRate.D(pos)
}

func (r *streamResource) Duration() time.Duration {
	return Length(r.streamer, r.format)
}

// Close detaches the stream from the mixer and releases the decoder.
func (r *streamResource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Swap(true) {
		return nil
	}

	r.mixer.Lock()
	r.ctrl.Streamer = nil
	r.mixer.Unlock()

	return r.streamer.Close()
}

// finished runs on the mixer goroutine, with the mixer locked, once the
// stream stops producing samples. Events are reported from another
// goroutine.
func (r *streamResource) finished() {
	if r.closed.Load() {
		return
	}
	r.drained.Store(true)

	if err := r.streamer.Err(); err != nil {
		err = errors.Wrap(err, "failed to decode audio stream")
		go r.sink(playback.ResourceEvent{Type: playback.ResourceFailed, Err: err})
		return
	}
	go r.sink(playback.ResourceEvent{Type: playback.ResourceEnded})
}
