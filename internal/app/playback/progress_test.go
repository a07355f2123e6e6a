package playback

import (
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewProgress(t *testing.T) {
	tests := []struct {
		name     string
		current  time.Duration
		duration time.Duration
		want     Progress
	}{
		{
			name:     "midway",
			current:  15 * time.Second,
			duration: time.Minute,
			want:     Progress{Current: 15 * time.Second, Duration: time.Minute, Fraction: 0.25},
		},
		{
			name:     "unknown duration",
			current:  15 * time.Second,
			duration: 0,
			want:     Progress{Current: 15 * time.Second},
		},
		{
			name:     "negative current",
			current:  -time.Second,
			duration: time.Minute,
			want:     Progress{Duration: time.Minute},
		},
		{
			name:     "past end",
			current:  2 * time.Minute,
			duration: time.Minute,
			want:     Progress{Current: 2 * time.Minute, Duration: time.Minute, Fraction: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewProgress(tt.current, tt.duration))
		})
	}
}

func TestProgress_Seconds(t *testing.T) {
	p := NewProgress(1500*time.Millisecond, 3*time.Second)
	assert.Equal(t, 1.5, p.CurrentSeconds())
	assert.Equal(t, 3.0, p.DurationSeconds())
	assert.Equal(t, 0.5, p.Fraction)
}

func TestStartSampler(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var ticks atomic.Int32
		cancel := startSampler(t.Context(), time.Second, func() { ticks.Add(1) })

		time.Sleep(3500 * time.Millisecond)
		synctest.Wait()
		assert.Equal(t, int32(3), ticks.Load())

		cancel()
		time.Sleep(3 * time.Second)
		synctest.Wait()
		assert.Equal(t, int32(3), ticks.Load())
	})
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusIdle, "idle"},
		{StatusLoading, "loading"},
		{StatusPlaying, "playing"},
		{StatusPaused, "paused"},
		{StatusEnded, "ended"},
		{StatusErrored, "errored"},
		{Status(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}
