package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/playdeck/internal/app/playback"
	"github.com/osa030/playdeck/internal/infra/config"
)

// makeWAV builds a silent mono 16-bit PCM file.
func makeWAV(sampleRate, samples int) []byte {
	dataLen := samples * 2
	var buf bytes.Buffer
	le := binary.LittleEndian

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, le, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, le, uint32(16))
	_ = binary.Write(&buf, le, uint16(1)) // PCM
	_ = binary.Write(&buf, le, uint16(1)) // mono
	_ = binary.Write(&buf, le, uint32(sampleRate))
	_ = binary.Write(&buf, le, uint32(sampleRate*2))
	_ = binary.Write(&buf, le, uint16(2))
	_ = binary.Write(&buf, le, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, le, uint32(dataLen))
	buf.Write(make([]byte, dataLen))
	return buf.Bytes()
}

func newAudioServer(t *testing.T) *httptest.Server {
	t.Helper()
	wav := makeWAV(8000, 16000)

	mux := http.NewServeMux()
	mux.HandleFunc("/song.wav", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	})
	mux.HandleFunc("/blob", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(wav)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(4096))
		_, _ = w.Write(make([]byte, 4096))
	})
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("hello"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	srv := newAudioServer(t)

	tests := []struct {
		name     string
		path     string
		maxBytes int64
		wantErr  bool
		tooLarge bool
	}{
		{name: "ok", path: "/song.wav"},
		{name: "not found", path: "/missing", wantErr: true},
		{name: "declared too large", path: "/big", maxBytes: 1024, wantErr: true, tooLarge: true},
		{name: "within limit", path: "/big", maxBytes: 4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Fetch(context.Background(), srv.Client(), srv.URL+tt.path, tt.maxBytes)
			if tt.wantErr {
				require.Error(t, err)
				if tt.tooLarge {
					assert.ErrorIs(t, err, ErrTooLarge)
				}
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, d.Data)
			assert.Equal(t, srv.URL+tt.path, d.URL)
		})
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		d       Download
		want    Format
		wantErr bool
	}{
		{name: "content type", d: Download{ContentType: "audio/mpeg"}, want: FormatMP3},
		{name: "content type with params", d: Download{ContentType: "audio/x-flac; charset=binary"}, want: FormatFLAC},
		{name: "extension", d: Download{URL: "https://cdn.test/a/b.WAV?token=1"}, want: FormatWAV},
		{name: "flac magic", d: Download{Data: []byte("fLaC\x00\x00")}, want: FormatFLAC},
		{name: "wav magic", d: Download{Data: makeWAV(8000, 1)}, want: FormatWAV},
		{name: "id3 magic", d: Download{Data: []byte("ID3\x04")}, want: FormatMP3},
		{name: "mpeg frame sync", d: Download{Data: []byte{0xFF, 0xFB, 0x90}}, want: FormatMP3},
		{name: "unknown", d: Download{ContentType: "text/plain", URL: "https://cdn.test/a.txt", Data: []byte("hello")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(&tt.d)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_WAV(t *testing.T) {
	streamer, format, err := Decode(&Download{ContentType: "audio/wav", Data: makeWAV(8000, 16000)})
	require.NoError(t, err)
	defer streamer.Close()

	assert.Equal(t, 8000, int(format.SampleRate))
	assert.Equal(t, 2*time.Second, Length(streamer, format))
}

func TestVirtualFactory_Open(t *testing.T) {
	srv := newAudioServer(t)
	f := NewVirtualFactory(srv.Client(), 0)

	for _, path := range []string{"/song.wav", "/blob"} {
		r, err := f.Open(context.Background(), playback.Source{URL: srv.URL + path}, func(playback.ResourceEvent) {})
		require.NoError(t, err, path)
		assert.Equal(t, 2*time.Second, r.Duration())
		assert.Zero(t, r.Position())
		require.NoError(t, r.Close())
	}

	_, err := f.Open(context.Background(), playback.Source{URL: srv.URL + "/text"}, func(playback.ResourceEvent) {})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNewFactoryFromConfig(t *testing.T) {
	f, err := NewFactoryFromConfig(config.AudioConfig{Output: config.OutputVirtual, MaxDownloadMB: 1}, nil)
	require.NoError(t, err)
	assert.IsType(t, &VirtualFactory{}, f)

	_, err = NewFactoryFromConfig(config.AudioConfig{Output: "alsa"}, nil)
	assert.Error(t, err)

	f, err = NewFactoryFromConfig(config.AudioConfig{Output: config.OutputSpeaker, SampleRate: 44100, BufferMs: 100}, nil)
	if AudioAvailable {
		require.NoError(t, err)
		assert.IsType(t, &SpeakerFactory{}, f)
	} else {
		assert.True(t, errors.Is(err, ErrAudioUnavailable))
	}
}

func TestLevelToVolume(t *testing.T) {
	tests := []struct {
		level float64
		want  float64
	}{
		{level: 1, want: 0},
		{level: 1.5, want: 0},
		{level: 0.5, want: -1},
		{level: 0.25, want: -2},
		{level: 0, want: -10},
		{level: -1, want: -10},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, levelToVolume(tt.level), 1e-9, "level %v", tt.level)
	}
}
