package queue

import (
	"sync"

	"github.com/samber/lo"

	"github.com/osa030/playdeck/internal/domain/track"
)

// Observer is called synchronously after each transition, outside the state
// lock. Transitions are serialized with their notifications, so an observer
// must not mutate the store itself.
type Observer func(Change)

// Store holds the ordered track references eligible for playback and the
// active one. It is pure state: no I/O happens here.
type Store struct {
	// pubMu orders transitions together with their notifications.
	pubMu sync.Mutex
	mu    sync.RWMutex

	ids    []track.ID
	active track.ID

	observers []Observer
	subs      []*Subscription
	subsMu    sync.Mutex
}

// New creates an empty store.
func New() *Store {
	return &Store{
		ids: make([]track.ID, 0),
	}
}

// SetQueue replaces the ordered ids atomically.
// If the previous active id is absent from ids, the active id is cleared.
func (s *Store) SetQueue(ids []track.ID) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	s.ids = append(make([]track.ID, 0, len(ids)), ids...)
	if s.active != "" && !lo.Contains(s.ids, s.active) {
		s.active = ""
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(Change{Kind: QueueReplaced, Snapshot: snap})
}

// SetActive activates id. It is a silent no-op when id is not queued.
// Activating the already active id publishes again, which reloads it.
func (s *Store) SetActive(id track.ID) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	if !lo.Contains(s.ids, id) {
		s.mu.Unlock()
		return
	}
	s.active = id
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(Change{Kind: ActiveChanged, Snapshot: snap})
}

// Next returns the reference after the active one, wrapping to the first.
// An unset or missing active id counts as index -1. It does not change the
// active id.
func (s *Store) Next() (track.ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.ids) == 0 {
		return "", false
	}
	i := s.activeIndexLocked()
	if i+1 < len(s.ids) {
		return s.ids[i+1], true
	}
	return s.ids[0], true
}

// Previous returns the reference before the active one, wrapping to the last.
// An unset or missing active id counts as past the end, so it wraps to the
// last element.
func (s *Store) Previous() (track.ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.ids) == 0 {
		return "", false
	}
	i := s.activeIndexLocked()
	if i-1 >= 0 {
		return s.ids[i-1], true
	}
	return s.ids[len(s.ids)-1], true
}

// Active returns the active id, if any.
func (s *Store) Active() (track.ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, s.active != ""
}

// Len returns the number of queued references.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Observe registers a synchronous observer.
func (s *Store) Observe(fn Observer) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.observers = append(s.observers, fn)
}

// Subscribe creates a buffered change subscription for display consumers.
func (s *Store) Subscribe() *Subscription {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	sub := newSubscription()
	s.subs = append(s.subs, sub)
	return sub
}

// Unsubscribe removes and closes a subscription.
func (s *Store) Unsubscribe(sub *Subscription) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for i, existing := range s.subs {
		if existing == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			sub.close()
			return
		}
	}
}

// Close closes all subscriptions and drops observers.
func (s *Store) Close() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, sub := range s.subs {
		sub.close()
	}
	s.subs = nil
	s.observers = nil
}

// activeIndexLocked returns the index of the active id, or -1.
// With duplicates, the first occurrence wins.
// Must be called with s.mu held.
func (s *Store) activeIndexLocked() int {
	if s.active == "" {
		return -1
	}
	return lo.IndexOf(s.ids, s.active)
}

// snapshotLocked must be called with s.mu held.
func (s *Store) snapshotLocked() Snapshot {
	ids := make([]track.ID, len(s.ids))
	copy(ids, s.ids)
	return Snapshot{IDs: ids, Active: s.active}
}

func (s *Store) publish(c Change) {
	s.subsMu.Lock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	subs := make([]*Subscription, len(s.subs))
	copy(subs, s.subs)
	s.subsMu.Unlock()

	for _, sub := range subs {
		sub.send(c)
	}
	for _, fn := range observers {
		fn(c)
	}
}
