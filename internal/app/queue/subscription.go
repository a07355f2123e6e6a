package queue

const changeBufferSize = 16

// Subscription delivers queue changes to one consumer.
// Changes are dropped when the consumer falls behind; consumers can always
// recover the full state from Store.Snapshot.
type Subscription struct {
	Changes <-chan Change
	Done    <-chan struct{}

	changeCh chan Change
	doneCh   chan struct{}
}

func newSubscription() *Subscription {
	s := &Subscription{
		changeCh: make(chan Change, changeBufferSize),
		doneCh:   make(chan struct{}),
	}
	s.Changes = s.changeCh
	s.Done = s.doneCh
	return s
}

func (s *Subscription) send(c Change) {
	select {
	case s.changeCh <- c:
	default:
	}
}

func (s *Subscription) close() {
	close(s.doneCh)
}
