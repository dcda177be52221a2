package events

import "sync"

// mailbox is an unbounded FIFO of events for one subscriber.
//
// A goroutine pumps the mailbox into the subscriber's channel, so a slow
// subscriber delays only itself. The signal channel (buffered, size 1)
// coalesces wake-ups.
type mailbox struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// push appends e. Returns false once the mailbox is closed.
func (m *mailbox) push(e Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	m.events = append(m.events, e)

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// pop removes the front event.
func (m *mailbox) pop() (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.events) == 0 {
		return Event{}, false
	}
	e := m.events[0]
	m.events[0] = Event{} // release Err and Ordinals
	if len(m.events) == 1 {
		m.events = m.events[:0]
	} else {
		m.events = m.events[1:]
	}
	return e, true
}

func (m *mailbox) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	close(m.signal)
}
