// Package notification provides the notification manager for broadcasting events.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Kind identifies what a notification is about.
type Kind string

const (
	KindInitial  Kind = "initial" // Full state sent once to a new subscriber
	KindQueue    Kind = "queue"
	KindStatus   Kind = "status"
	KindProgress Kind = "progress"
	KindVolume   Kind = "volume"
	KindError    Kind = "error"
)

// Notification is one event delivered to every subscriber.
// Payload values are limited to JSON-compatible types.
type Notification struct {
	SequenceNo uint64
	Kind       Kind
	Time       time.Time
	Payload    map[string]any
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// ErrSubscriptionClosed is returned when sending to a removed subscriber.
var ErrSubscriptionClosed = errors.New("notification: subscription closed")

// subscription represents a subscriber's subscription. Sends to one
// stream never overlap.
type subscription struct {
	id     string
	stream Stream

	sendMu    sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (s *subscription) send(n *Notification) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	select {
	case <-s.done:
		return ErrSubscriptionClosed
	default:
	}
	return s.stream.Send(n)
}

func (s *subscription) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

const defaultSendTimeout = 500 * time.Millisecond

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   defaultSendTimeout,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
		done:   make(chan struct{}),
	}
	zlog.Debug().Msgf("notification: subscribed: id=%s total=%d", id, len(m.subscriptions))
	return id
}

// Unsubscribe removes a subscription and closes its Done channel.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subscriptions[subscriptionID]; ok {
		delete(m.subscriptions, subscriptionID)
		sub.close()
	}
}

// Done returns a channel that is closed once the subscription is removed,
// either by Unsubscribe or because the manager dropped it. Unknown ids get
// an already closed channel.
func (m *Manager) Done(subscriptionID string) <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sub, ok := m.subscriptions[subscriptionID]; ok {
		return sub.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Broadcast stamps the notification with the next sequence number and
// sends it to all subscribers. Each send runs in its own goroutine with a
// timeout; a subscriber whose send fails or times out is dropped.
func (m *Manager) Broadcast(n *Notification) {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	n.SequenceNo = m.sequenceNo
	m.sequenceNoMu.Unlock()

	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.send(n)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: dropping subscriber: id=%s error=%v", s.id, err)
					m.Unsubscribe(s.id)
				}
			case <-ctx.Done():
				zlog.Warn().Msgf("notification: dropping slow subscriber: id=%s seq=%d", s.id, n.SequenceNo)
				m.Unsubscribe(s.id)
			}
		}(sub)
	}

	wg.Wait()
}

// Send sends a notification to a specific subscriber without consuming a
// sequence number.
func (m *Manager) Send(subscriptionID string, n *Notification) error {
	m.mu.RLock()
	sub, ok := m.subscriptions[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	return sub.send(n)
}

// SequenceNo returns the last sequence number handed out.
func (m *Manager) SequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	return m.sequenceNo
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subscriptions {
		sub.close()
	}
	m.subscriptions = make(map[string]*subscription)
}
