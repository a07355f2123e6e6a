// Package queue provides the play queue store.
package queue

import "github.com/osa030/playdeck/internal/domain/track"

// ChangeKind identifies what kind of transition a Change describes.
type ChangeKind int

const (
	QueueReplaced ChangeKind = iota // SetQueue replaced the ordered ids
	ActiveChanged                   // SetActive activated a track
)

// String returns the string representation of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case QueueReplaced:
		return "queue_replaced"
	case ActiveChanged:
		return "active_changed"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable copy of the queue state.
type Snapshot struct {
	IDs    []track.ID // Ordered track references (duplicates permitted)
	Active track.ID   // Active track reference ("" if unset)
}

// HasActive reports whether an active track is set.
func (s Snapshot) HasActive() bool {
	return s.Active != ""
}

// Change is published after every queue transition.
type Change struct {
	Kind     ChangeKind
	Snapshot Snapshot // State after the transition
}
