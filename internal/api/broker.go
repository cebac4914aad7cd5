package api

import (
	"sync"

	"go.uber.org/zap"

	"nutriscan/internal/events"
	"nutriscan/internal/history"
)

// SSE event names
const (
	eventHistory      = "history"
	eventNavigate     = "navigate"
	eventLookupFailed = "lookup_failed"
)

const clientBuffer = 16

type sseEvent struct {
	Name string
	Data interface{}
}

// Broker fans bus events out to connected event-stream clients. It is the
// only subscriber on its topics.
type Broker struct {
	bus    events.Bus
	logger *zap.Logger

	mu      sync.Mutex
	clients map[chan sseEvent]struct{}
	last    *history.View
	closed  bool

	onHistory      func(history.View)
	onNavigate     func(events.Navigate)
	onLookupFailed func(events.LookupFailed)
}

// NewBroker subscribes to the bus. Call Close to unsubscribe.
func NewBroker(bus events.Bus, logger *zap.Logger) (*Broker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Broker{
		bus:     bus,
		logger:  logger,
		clients: make(map[chan sseEvent]struct{}),
	}
	b.onHistory = func(v history.View) {
		b.mu.Lock()
		// views can arrive out of order from concurrent publishers
		if b.last != nil && v.Version < b.last.Version {
			b.mu.Unlock()
			return
		}
		b.last = &v
		b.mu.Unlock()
		b.broadcast(sseEvent{Name: eventHistory, Data: v})
	}
	b.onNavigate = func(ev events.Navigate) {
		b.broadcast(sseEvent{Name: eventNavigate, Data: ev})
	}
	b.onLookupFailed = func(ev events.LookupFailed) {
		b.broadcast(sseEvent{Name: eventLookupFailed, Data: ev})
	}

	if err := bus.Subscribe(events.TopicHistory, b.onHistory); err != nil {
		return nil, err
	}
	if err := bus.Subscribe(events.TopicNavigate, b.onNavigate); err != nil {
		return nil, err
	}
	if err := bus.Subscribe(events.TopicLookupFailed, b.onLookupFailed); err != nil {
		return nil, err
	}
	return b, nil
}

// Subscribe registers a client. The latest history view, if any, is queued
// first.
func (b *Broker) Subscribe() (<-chan sseEvent, func()) {
	ch := make(chan sseEvent, clientBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.last != nil {
		ch <- sseEvent{Name: eventHistory, Data: *b.last}
	}
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.clients[ch]; ok {
				delete(b.clients, ch)
				close(ch)
			}
			b.mu.Unlock()
		})
	}
}

// Seed sets the view sent to new clients before the first change
func (b *Broker) Seed(v history.View) {
	b.onHistory(v)
}

// Clients returns the number of connected clients
func (b *Broker) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Broker) broadcast(ev sseEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.clients {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("event stream client too slow, dropping event", zap.String("event", ev.Name))
		}
	}
}

// Close unsubscribes from the bus and disconnects every client
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for ch := range b.clients {
		delete(b.clients, ch)
		close(ch)
	}
	b.mu.Unlock()

	_ = b.bus.Unsubscribe(events.TopicHistory, b.onHistory)
	_ = b.bus.Unsubscribe(events.TopicNavigate, b.onNavigate)
	_ = b.bus.Unsubscribe(events.TopicLookupFailed, b.onLookupFailed)
}
