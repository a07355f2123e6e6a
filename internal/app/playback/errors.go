package playback

import "github.com/cockroachdb/errors"

// Failures surfaced through the status feed. Callers test with errors.Is.
var (
	ErrResolution = errors.New("resolution failure")
	ErrResource   = errors.New("resource failure")
)
