package playback

import (
	"context"
	"time"

	"github.com/samber/lo"
)

// Progress is a derived snapshot of the session clock.
type Progress struct {
	Current  time.Duration // Elapsed time, never negative
	Duration time.Duration // Total time, 0 if unknown
	Fraction float64       // Current/Duration in [0,1], 0 when Duration is 0
}

// NewProgress builds a snapshot from raw clock readings.
func NewProgress(current, duration time.Duration) Progress {
	current = max(current, 0)
	duration = max(duration, 0)

	var fraction float64
	if duration > 0 {
		fraction = lo.Clamp(float64(current)/float64(duration), 0, 1)
	}
	return Progress{
		Current:  current,
		Duration: duration,
		Fraction: fraction,
	}
}

// CurrentSeconds returns the elapsed time in seconds.
func (p Progress) CurrentSeconds() float64 {
	return p.Current.Seconds()
}

// DurationSeconds returns the total time in seconds.
func (p Progress) DurationSeconds() float64 {
	return p.Duration.Seconds()
}

// startSampler runs tick every interval until the returned cancel function
// is called or parent is done. Ticks never overlap: a slow tick delays the
// next one.
func startSampler(parent context.Context, interval time.Duration, tick func()) context.CancelFunc {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				tick()
			}
		}
	}()

	return cancel
}
