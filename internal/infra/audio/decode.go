package audio

import (
	"bytes"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned when no decoder matches the data.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Format identifies a container/codec.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
	FormatWAV  Format = "wav"
)

var contentTypes = map[string]Format{
	"audio/mpeg":     FormatMP3,
	"audio/mp3":      FormatMP3,
	"audio/flac":     FormatFLAC,
	"audio/x-flac":   FormatFLAC,
	"audio/wav":      FormatWAV,
	"audio/wave":     FormatWAV,
	"audio/x-wav":    FormatWAV,
	"audio/vnd.wave": FormatWAV,
}

var extensions = map[string]Format{
	".mp3":  FormatMP3,
	".flac": FormatFLAC,
	".wav":  FormatWAV,
}

// DetectFormat picks a format from the content type, then the URL
// extension, then the leading bytes.
func DetectFormat(d *Download) (Format, error) {
	if mt, _, err := mime.ParseMediaType(d.ContentType); err == nil {
		if f, ok := contentTypes[strings.ToLower(mt)]; ok {
			return f, nil
		}
	}

	if u, err := url.Parse(d.URL); err == nil {
		if f, ok := extensions[strings.ToLower(path.Ext(u.Path))]; ok {
			return f, nil
		}
	}

	switch data := d.Data; {
	case bytes.HasPrefix(data, []byte("fLaC")):
		return FormatFLAC, nil
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV, nil
	case bytes.HasPrefix(data, []byte("ID3")), len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3, nil
	}

	return "", errors.Wrapf(ErrUnsupportedFormat, "content_type=%q url=%s", d.ContentType, d.URL)
}

// Decode opens a seekable stream over the downloaded bytes.
func Decode(d *Download) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := DetectFormat(d)
	if err != nil {
		return nil, beep.Format{}, err
	}

	reader := bytes.NewReader(d.Data)
	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch f {
	case FormatMP3:
		streamer, format, err = mp3.Decode(nopCloser{reader})
	case FormatFLAC:
		streamer, format, err = flac.Decode(reader)
	case FormatWAV:
		streamer, format, err = wav.Decode(reader)
	}
	if err != nil {
		return nil, beep.Format{}, errors.Wrapf(err, "failed to decode %s", f)
	}
	return streamer, format, nil
}

// Length returns the play time of a stream.
func Length(s beep.StreamSeeker, format beep.Format) time.Duration {
	return format.SampleRate.D(s.Len())
}

// nopCloser wraps a bytes.Reader to implement io.ReadCloser.
type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
