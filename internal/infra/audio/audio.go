package audio

import (
	"math"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/playdeck/internal/app/playback"
	"github.com/osa030/playdeck/internal/infra/config"
)

// ErrAudioUnavailable is returned when no output device can be used.
var ErrAudioUnavailable = errors.New("audio output unavailable")

// NewFactoryFromConfig picks the output configured in cfg.
func NewFactoryFromConfig(cfg config.AudioConfig, client *http.Client) (playback.Factory, error) {
	switch cfg.Output {
	case config.OutputVirtual:
		return NewVirtualFactory(client, cfg.MaxDownloadBytes()), nil
	case config.OutputSpeaker, "":
		if !AudioAvailable {
			return nil, errors.Wrap(ErrAudioUnavailable, "this build has no speaker support, use output: virtual")
		}
		return NewSpeakerFactory(client, cfg.MaxDownloadBytes(), cfg.SampleRate, time.Duration(cfg.BufferMs)*time.Millisecond), nil
	default:
		return nil, errors.Newf("unsupported audio output: %s", cfg.Output)
	}
}

// levelToVolume converts a 0.0-1.0 level to beep's base-2 Volume value.
// 1.0 -> 0, 0.5 -> -1, 0.25 -> -2, 0 -> -10 (essentially silent)
func levelToVolume(level float64) float64 {
	if level <= 0 {
		return -10
	}
	if level >= 1 {
		return 0
	}
	return math.Log2(level)
}
