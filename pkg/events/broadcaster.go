package events

import (
	"sync"

	"go.uber.org/zap"
)

// Event is a single named payload published to a topic.
type Event struct {
	Topic   string      `json:"topic"`
	Name    string      `json:"event"`
	Payload interface{} `json:"data"`
}

// Broadcaster fans events out to any number of per-topic subscribers.
// Delivery is best effort: a subscriber whose buffer is full misses the
// event rather than back-pressuring the publisher.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan Event
	nextID int
	buffer int
	logger *zap.Logger
}

// NewBroadcaster builds a broadcaster with the given per-subscriber buffer.
func NewBroadcaster(buffer int, logger *zap.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subs:   make(map[string]map[int]chan Event),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a listener for the topic. The returned cancel func must
// be called when the consumer goes away; it closes the channel.
func (b *Broadcaster) Subscribe(topic string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan Event, b.buffer)
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan Event)
	}
	b.subs[topic][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if listeners, ok := b.subs[topic]; ok {
			if ch, ok := listeners[id]; ok {
				delete(listeners, id)
				close(ch)
			}
			if len(listeners) == 0 {
				delete(b.subs, topic)
			}
		}
	}
	return ch, cancel
}

// Publish delivers the event to every live subscriber of the topic without
// blocking. Full subscriber buffers drop the event.
func (b *Broadcaster) Publish(topic, name string, payload interface{}) {
	event := Event{Topic: topic, Name: name, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs[topic] {
		select {
		case ch <- event:
		default:
			b.logger.Sugar().Debugw("dropping event for slow subscriber", "topic", topic, "event", name, "subscriber", id)
		}
	}
}

// SubscriberCount reports live listeners for a topic.
func (b *Broadcaster) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
