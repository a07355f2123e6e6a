package notification

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStream struct {
	mu    sync.Mutex
	got   []*Notification
	err   error
	block chan struct{}
}

func (s *recordingStream) Send(n *Notification) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, n)
	return nil
}

func (s *recordingStream) received() []*Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Notification(nil), s.got...)
}

func TestManager_Broadcast(t *testing.T) {
	m := NewManager()
	a, b := &recordingStream{}, &recordingStream{}
	m.Subscribe(a)
	m.Subscribe(b)
	require.Equal(t, 2, m.SubscriberCount())

	m.Broadcast(&Notification{Kind: KindStatus, Payload: map[string]any{"status": "playing"}})
	m.Broadcast(&Notification{Kind: KindProgress})

	for _, s := range []*recordingStream{a, b} {
		got := s.received()
		require.Len(t, got, 2)
		assert.Equal(t, uint64(1), got[0].SequenceNo)
		assert.Equal(t, KindStatus, got[0].Kind)
		assert.Equal(t, "playing", got[0].Payload["status"])
		assert.False(t, got[0].Time.IsZero())
		assert.Equal(t, uint64(2), got[1].SequenceNo)
	}
	assert.Equal(t, uint64(2), m.SequenceNo())
}

func TestManager_DropsFailingSubscriber(t *testing.T) {
	m := NewManager()
	good := &recordingStream{}
	m.Subscribe(good)
	m.Subscribe(&recordingStream{err: errors.New("stream closed")})

	m.Broadcast(&Notification{Kind: KindQueue})

	assert.Equal(t, 1, m.SubscriberCount())
	assert.Len(t, good.received(), 1)
}

func TestManager_SlowSubscriberTimesOut(t *testing.T) {
	m := NewManager()
	m.sendTimeout = 20 * time.Millisecond

	slow := &recordingStream{block: make(chan struct{})}
	defer close(slow.block)
	fast := &recordingStream{}
	slowID := m.Subscribe(slow)
	fastID := m.Subscribe(fast)

	start := time.Now()
	m.Broadcast(&Notification{Kind: KindVolume})

	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, fast.received(), 1)
	assert.Equal(t, 1, m.SubscriberCount())

	select {
	case <-m.Done(slowID):
	default:
		t.Fatal("slow subscriber should be dropped")
	}
	select {
	case <-m.Done(fastID):
		t.Fatal("fast subscriber should stay subscribed")
	default:
	}

	m.Broadcast(&Notification{Kind: KindVolume})
	assert.Len(t, fast.received(), 2)
}

type overlapStream struct {
	inFlight atomic.Int32
	overlaps atomic.Int32
	sent     atomic.Int32
}

func (s *overlapStream) Send(*Notification) error {
	if s.inFlight.Add(1) > 1 {
		s.overlaps.Add(1)
	}
	time.Sleep(time.Millisecond)
	s.inFlight.Add(-1)
	s.sent.Add(1)
	return nil
}

func TestManager_SendsToOneStreamDoNotOverlap(t *testing.T) {
	m := NewManager()
	s := &overlapStream{}
	id := m.Subscribe(s)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Broadcast(&Notification{Kind: KindProgress})
		}()
		go func() {
			defer wg.Done()
			_ = m.Send(id, &Notification{Kind: KindInitial})
		}()
	}
	wg.Wait()

	assert.Zero(t, s.overlaps.Load())
	assert.Equal(t, int32(16), s.sent.Load())
}

func TestManager_SendAndUnsubscribe(t *testing.T) {
	m := NewManager()
	s := &recordingStream{}
	id := m.Subscribe(s)

	require.NoError(t, m.Send(id, &Notification{Kind: KindStatus}))
	require.NoError(t, m.Send("unknown", &Notification{Kind: KindStatus}))
	assert.Len(t, s.received(), 1)
	assert.Zero(t, s.received()[0].SequenceNo)

	done := m.Done(id)
	m.Unsubscribe(id)
	assert.Zero(t, m.SubscriberCount())
	_, open := <-done
	assert.False(t, open)

	m.Subscribe(s)
	m.Close()
	assert.Zero(t, m.SubscriberCount())
}
