//go:build (linux && cgo) || windows || darwin

package audio

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/playdeck/internal/app/playback"
)

// AudioAvailable indicates whether audio playback is supported in this build.
const AudioAvailable = true

// SpeakerFactory opens resources that play through the system speaker.
// Every stream is resampled to one fixed output rate.
type SpeakerFactory struct {
	client     *http.Client
	maxBytes   int64
	sampleRate beep.SampleRate
	buffer     time.Duration

	initOnce sync.Once
	initErr  error
}

// NewSpeakerFactory creates a SpeakerFactory. The speaker itself is
// initialized lazily on the first Open.
func NewSpeakerFactory(client *http.Client, maxBytes int64, sampleRate int, buffer time.Duration) *SpeakerFactory {
	return &SpeakerFactory{
		client:     client,
		maxBytes:   maxBytes,
		sampleRate: beep.SampleRate(sampleRate),
		buffer:     buffer,
	}
}

func (f *SpeakerFactory) initSpeaker() error {
	f.initOnce.Do(func() {
		f.initErr = speaker.Init(f.sampleRate, f.sampleRate.N(f.buffer))
		if f.initErr == nil {
			zlog.Info().Msgf("audio: speaker initialized: sample_rate=%d buffer=%v", f.sampleRate, f.buffer)
		}
	})
	return f.initErr
}

// Open implements playback.Factory. The resource starts paused.
func (f *SpeakerFactory) Open(ctx context.Context, src playback.Source, sink playback.Sink) (playback.Resource, error) {
	if err := f.initSpeaker(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to initialize speaker"), ErrAudioUnavailable)
	}

	d, err := Fetch(ctx, f.client, src.URL, f.maxBytes)
	if err != nil {
		return nil, err
	}
	streamer, format, err := Decode(d)
	if err != nil {
		return nil, err
	}

	return newStreamResource(streamer, format, f.sampleRate, speakerMixer{}, sink), nil
}

// speakerMixer plays through the process-wide speaker.
type speakerMixer struct{}

func (speakerMixer) Play(s ...beep.Streamer) { speaker.Play(s...) }
func (speakerMixer) Lock()                   { speaker.Lock() }
func (speakerMixer) Unlock()                 { speaker.Unlock() }
