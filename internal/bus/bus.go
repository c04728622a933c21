package bus

import (
	"strings"
	"sync"
)

// Bus is the in-process event bus decoupling session, thread, and UI
// layers. Subscribers receive events whose Kind starts with their prefix.
type Bus struct {
	mu        sync.RWMutex
	listeners map[int]*listener
	nextID    int
}

type listener struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		listeners: make(map[int]*listener),
	}
}

// Publish delivers evt to every matching subscriber. Delivery is
// non-blocking: a subscriber with a full buffer misses the event rather
// than stalling the publisher.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, l := range b.listeners {
		if !strings.HasPrefix(evt.Kind, l.prefix) {
			continue
		}
		select {
		case l.ch <- evt:
		default:
		}
	}
}

// Subscribe registers a listener for event kinds starting with prefix; an
// empty prefix receives everything. bufSize is the channel buffer. The
// returned func unsubscribes; it does not close the channel.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = &listener{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}
