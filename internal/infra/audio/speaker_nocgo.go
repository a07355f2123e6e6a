//go:build !((linux && cgo) || windows || darwin)

package audio

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/playdeck/internal/app/playback"
)

// AudioAvailable indicates whether audio playback is supported in this build.
// Audio requires CGO for native sound libraries.
const AudioAvailable = false

// SpeakerFactory cannot open anything in builds without cgo.
type SpeakerFactory struct{}

// NewSpeakerFactory creates a SpeakerFactory.
func NewSpeakerFactory(_ *http.Client, _ int64, _ int, _ time.Duration) *SpeakerFactory {
	return &SpeakerFactory{}
}

// Open always fails with ErrAudioUnavailable.
func (f *SpeakerFactory) Open(_ context.Context, _ playback.Source, _ playback.Sink) (playback.Resource, error) {
	return nil, errors.Wrap(ErrAudioUnavailable, "speaker output needs a cgo build")
}
