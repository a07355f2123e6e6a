package audio

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/playdeck/internal/app/playback"
)

var testFormat = beep.Format{SampleRate: 8000, NumChannels: 2, Precision: 2}

// fakeMixer stands in for the speaker. drain streams everything that was
// handed to Play, holding the lock the way the speaker goroutine does.
type fakeMixer struct {
	mu      sync.Mutex
	pending []beep.Streamer
	played  int
}

func (m *fakeMixer) Play(s ...beep.Streamer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, s...)
	m.played += len(s)
}

func (m *fakeMixer) Lock()   { m.mu.Lock() }
func (m *fakeMixer) Unlock() { m.mu.Unlock() }

func (m *fakeMixer) drain(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([][2]float64, 256)
	for _, s := range m.pending {
		for i := 0; ; i++ {
			require.Less(t, i, 10000, "stream never ended")
			if _, ok := s.Stream(buf); !ok {
				break
			}
		}
	}
	m.pending = nil
}

func (m *fakeMixer) playCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.played
}

// sampleStreamer yields n samples, or fails once failAt samples were read.
type sampleStreamer struct {
	n      int
	failAt int
	pos    int
	err    error
	closed bool
}

func (s *sampleStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.failAt > 0 && s.pos >= s.failAt {
		s.err = errors.New("corrupt frame")
		return 0, false
	}
	end := s.n
	if s.failAt > 0 {
		end = min(end, s.failAt)
	}
	n := min(len(samples), end-s.pos)
	if n <= 0 {
		return 0, false
	}
	for i := range samples[:n] {
		samples[i] = [2]float64{0.5, 0.5}
	}
	s.pos += n
	return n, true
}

func (s *sampleStreamer) Err() error    { return s.err }
func (s *sampleStreamer) Len() int      { return s.n }
func (s *sampleStreamer) Position() int { return s.pos }
func (s *sampleStreamer) Close() error  { s.closed = true; return nil }

func (s *sampleStreamer) Seek(p int) error {
	s.pos = p
	s.err = nil
	return nil
}

type eventSink chan playback.ResourceEvent

func (c eventSink) sink(ev playback.ResourceEvent) { c <- ev }

func (c eventSink) next(t *testing.T) playback.ResourceEvent {
	t.Helper()
	select {
	case ev := <-c:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no resource event")
		return playback.ResourceEvent{}
	}
}

func (c eventSink) none(t *testing.T) {
	t.Helper()
	select {
	case ev := <-c:
		t.Fatalf("unexpected resource event: %v", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStreamResource_EndsAndReplays(t *testing.T) {
	m := &fakeMixer{}
	events := make(eventSink, 4)
	s := &sampleStreamer{n: 4000}
	r := newStreamResource(s, testFormat, testFormat.SampleRate, m, events.sink)
	defer r.Close()

	assert.Equal(t, 500*time.Millisecond, r.Duration())
	require.NoError(t, r.Play())
	m.drain(t)

	assert.Equal(t, playback.ResourceEnded, events.next(t).Type)
	assert.Equal(t, 500*time.Millisecond, r.Position())
	assert.Equal(t, 1, m.playCount())

	require.NoError(t, r.Seek(0))
	require.NoError(t, r.Play())
	assert.Equal(t, 2, m.playCount())
	m.drain(t)

	assert.Equal(t, playback.ResourceEnded, events.next(t).Type)
	assert.Equal(t, 500*time.Millisecond, r.Position())
}

func TestStreamResource_PlayWhilePlayingDoesNotRegisterAgain(t *testing.T) {
	m := &fakeMixer{}
	events := make(eventSink, 4)
	r := newStreamResource(&sampleStreamer{n: 800}, testFormat, testFormat.SampleRate, m, events.sink)
	defer r.Close()

	require.NoError(t, r.Play())
	require.NoError(t, r.Pause())
	require.NoError(t, r.Play())
	assert.Equal(t, 1, m.playCount())
}

func TestStreamResource_DecodeErrorFails(t *testing.T) {
	m := &fakeMixer{}
	events := make(eventSink, 4)
	r := newStreamResource(&sampleStreamer{n: 4000, failAt: 1000}, testFormat, testFormat.SampleRate, m, events.sink)
	defer r.Close()

	require.NoError(t, r.Play())
	m.drain(t)

	ev := events.next(t)
	assert.Equal(t, playback.ResourceFailed, ev.Type)
	require.Error(t, ev.Err)
	assert.Contains(t, ev.Err.Error(), "corrupt frame")
}

func TestStreamResource_CloseSuppressesEvents(t *testing.T) {
	m := &fakeMixer{}
	events := make(eventSink, 4)
	s := &sampleStreamer{n: 4000}
	r := newStreamResource(s, testFormat, testFormat.SampleRate, m, events.sink)

	require.NoError(t, r.Play())
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	m.drain(t)

	events.none(t)
	assert.True(t, s.closed)
	assert.ErrorIs(t, r.Play(), errResourceClosed)
	assert.Zero(t, r.Position())
}
