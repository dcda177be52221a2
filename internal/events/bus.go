package events

import (
	"sync"
)

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: map[*Subscription]struct{}{}}
}

// Subscription receives the events it was registered for on C.
// C is closed after Close, once pending events are discarded.
type Subscription struct {
	bus   *Bus
	types map[Type]bool // empty means every type
	box   *mailbox
	out   chan Event
	done  chan struct{}
	once  sync.Once
}

// Subscribe registers for the given types, or for every type if none are
// given. On a closed bus the returned subscription's channel is closed.
func (b *Bus) Subscribe(types ...Type) *Subscription {
	s := &Subscription{
		bus:   b,
		types: make(map[Type]bool, len(types)),
		box:   newMailbox(),
		out:   make(chan Event),
		done:  make(chan struct{}),
	}
	for _, t := range types {
		s.types[t] = true
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.box.close()
		close(s.done)
		close(s.out)
		return s
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.pump()
	return s
}

// Publish delivers e to every matching subscriber. It never blocks.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for s := range b.subs {
		if len(s.types) == 0 || s.types[e.Type] {
			s.box.push(e)
		}
	}
}

// Close ends every subscription. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for s := range subs {
		s.stop()
	}
}

// C returns the delivery channel.
func (s *Subscription) C() <-chan Event {
	return s.out
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.stop()
}

func (s *Subscription) stop() {
	s.once.Do(func() {
		close(s.done)
		s.box.close()
	})
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		for {
			e, ok := s.box.pop()
			if !ok {
				break
			}
			select {
			case s.out <- e:
			case <-s.done:
				return
			}
		}
		if s.box.isClosed() {
			return
		}
		select {
		case <-s.box.signal:
		case <-s.done:
			return
		}
	}
}
