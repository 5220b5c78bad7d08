package session

import "sync"

type EventKind int

const (
	// EventTransition is sent for every state change.
	EventTransition EventKind = iota
	// EventRowsAppended is sent when the poller stored new rows. Consecutive
	// row events for one session are merged while the consumer is behind.
	EventRowsAppended
	// EventProfileChanged follows SwitchProfile.
	EventProfileChanged
)

func (k EventKind) String() string {
	switch k {
	case EventTransition:
		return "transition"
	case EventRowsAppended:
		return "rows"
	case EventProfileChanged:
		return "profile"
	}
	return "unknown"
}

type Event struct {
	Kind      EventKind
	SessionID string
	From, To  State
	Err       error
	// Rows is the store size when the event was published.
	Rows int
	// Profile is set on EventProfileChanged.
	Profile string
}

// broker decouples publishers from the consumer: publish never blocks, and
// events are delivered in publish order.
type broker struct {
	mu      sync.Mutex
	pending []Event
	wake    chan struct{}
	out     chan Event
	done    chan struct{}
	stopped sync.Once
}

func newBroker() *broker {
	return &broker{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
		done: make(chan struct{}),
	}
}

func (b *broker) publish(e Event) {
	b.mu.Lock()
	if n := len(b.pending); n > 0 && e.Kind == EventRowsAppended {
		last := &b.pending[n-1]
		if last.Kind == EventRowsAppended && last.SessionID == e.SessionID {
			last.Rows = e.Rows
			b.mu.Unlock()
			return
		}
	}
	b.pending = append(b.pending, e)
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *broker) run() {
	defer close(b.out)
	for {
		b.mu.Lock()
		batch := b.pending
		b.pending = nil
		b.mu.Unlock()
		for _, e := range batch {
			select {
			case b.out <- e:
			case <-b.done:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-b.wake:
		case <-b.done:
			return
		}
	}
}

func (b *broker) stop() { b.stopped.Do(func() { close(b.done) }) }
