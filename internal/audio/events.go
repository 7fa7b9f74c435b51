package audio

import (
	"sync"
	"sync/atomic"
)

// EventType names the kind of event pushed to listeners
type EventType string

const (
	EventAudioData   EventType = "audioData"
	EventStateChange EventType = "stateChange"
	EventError       EventType = "error"
)

// Event is a notification published by the recorder
type Event struct {
	Type     EventType   `json:"type" msgpack:"type"`
	Chunk    *AudioChunk `json:"chunk,omitempty" msgpack:"chunk,omitempty"`
	OldState State       `json:"oldState,omitempty" msgpack:"oldState,omitempty"`
	NewState State       `json:"newState,omitempty" msgpack:"newState,omitempty"`
	Code     ErrorCode   `json:"code,omitempty" msgpack:"code,omitempty"`
	Message  string      `json:"message,omitempty" msgpack:"message,omitempty"`
}

// Listener receives recorder events. Callbacks run synchronously on the
// publishing thread (the capture thread for audio data) and must return
// quickly without calling the recorder's control methods.
type Listener interface {
	OnEvent(e Event)
}

// ListenerFunc adapts a function to the Listener interface
type ListenerFunc func(e Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }

// EventBus fans events out to any number of listeners
type EventBus struct {
	mu        sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64
}

// NewEventBus creates an empty bus
func NewEventBus() *EventBus {
	return &EventBus{listeners: make(map[uint64]Listener)}
}

// Subscribe registers l and returns a function removing it again
func (b *EventBus) Subscribe(l Listener) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers e to every listener
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, l := range b.listeners {
		l.OnEvent(e)
	}
}

// Len returns the number of registered listeners
func (b *EventBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// OnChunk makes the bus the chunk listener of a session
func (b *EventBus) OnChunk(c AudioChunk) {
	b.Publish(Event{Type: EventAudioData, Chunk: &c})
}

// Subscription is a channel-backed listener for consumers that cannot keep
// up with the capture thread. Events that do not fit in the buffer are
// dropped and counted.
type Subscription struct {
	C <-chan Event

	ch          chan Event
	mu          sync.Mutex
	closed      bool
	dropped     atomic.Uint64
	unsubscribe func()
}

// SubscribeChan registers a buffered channel subscription
func (b *EventBus) SubscribeChan(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	s := &Subscription{C: ch, ch: ch}
	s.unsubscribe = b.Subscribe(s)
	return s
}

func (s *Subscription) OnEvent(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many events did not fit in the buffer
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes and closes the channel
func (s *Subscription) Close() {
	s.unsubscribe()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
