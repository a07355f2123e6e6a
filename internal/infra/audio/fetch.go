// Package audio opens playable audio resources from URLs.
package audio

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	zlog "github.com/rs/zerolog/log"
)

// ErrTooLarge is returned when a download exceeds its size limit.
var ErrTooLarge = errors.New("audio file too large")

// Download is a fully buffered audio file.
type Download struct {
	URL         string
	ContentType string
	Data        []byte
}

// Fetch downloads url into memory so the decoder can seek freely.
// A maxBytes of 0 means no limit.
func Fetch(ctx context.Context, client *http.Client, url string, maxBytes int64) (*Download, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch audio")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("unexpected status fetching audio: %s", resp.Status)
	}
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return nil, errors.Wrapf(ErrTooLarge, "%s exceeds %s", humanize.IBytes(uint64(resp.ContentLength)), humanize.IBytes(uint64(maxBytes)))
	}

	var body io.Reader = resp.Body
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read audio")
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, errors.Wrapf(ErrTooLarge, "more than %s", humanize.IBytes(uint64(maxBytes)))
	}

	zlog.Debug().Msgf("audio: fetched: url=%s size=%s elapsed=%v", url, humanize.IBytes(uint64(len(data))), time.Since(start))

	return &Download{
		URL:         url,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
