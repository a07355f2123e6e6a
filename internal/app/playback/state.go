// Package playback provides the playback controller and its progress clock.
package playback

// Status represents the playback session status.
//
// Transitions:
//
//	Idle → Loading → Playing ⇄ Paused → Ended
//	Loading/Playing → Errored (resolution or resource failure)
//
// Ended advances automatically through the queue and re-enters Loading.
// Errored is terminal for its session only; a fresh Load starts over.
type Status int

const (
	StatusIdle    Status = iota // No session
	StatusLoading               // Resolving the source or opening the resource
	StatusPlaying               // Resource is producing output
	StatusPaused                // Resource is open but paused
	StatusEnded                 // Resource reached its natural end
	StatusErrored               // Session failed
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusEnded:
		return "ended"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// HasSession reports whether the status implies a live session.
func (s Status) HasSession() bool {
	return s == StatusLoading || s == StatusPlaying || s == StatusPaused || s == StatusEnded
}
