package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
)

const (
	EventNewDisaster    = "new-disaster"
	EventUpdateDisaster = "update-disaster"
	EventDeleteDisaster = "delete-disaster"
	EventNewReading     = "new-reading"
	EventDisasterAlert  = "disaster-alert"
)

// TopicAll receives every message regardless of topic.
const TopicAll = "ALL"

const subscriberBuffer = 100

type Message struct {
	Event string `json:"event"`
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

type subscriber struct {
	ch     chan Message
	topics map[string]struct{}
}

func (s *subscriber) wants(topic string) bool {
	if _, ok := s.topics[TopicAll]; ok {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// Hub fans messages out to subscribers by topic. A subscriber whose buffer
// is full misses the message.
type Hub struct {
	subscribers map[uint64]*subscriber
	nextID      atomic.Uint64
	mu          sync.RWMutex
	onChange    func(count int)
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[uint64]*subscriber),
	}
}

// OnSubscriberChange registers a callback invoked with the new subscriber
// count after every subscribe and unsubscribe.
func (h *Hub) OnSubscriberChange(fn func(count int)) {
	h.mu.Lock()
	h.onChange = fn
	h.mu.Unlock()
}

// Subscribe registers interest in topics. No topics means TopicAll.
func (h *Hub) Subscribe(topics ...string) (uint64, <-chan Message) {
	if len(topics) == 0 {
		topics = []string{TopicAll}
	}
	sub := &subscriber{
		ch:     make(chan Message, subscriberBuffer),
		topics: lo.Associate(topics, func(t string) (string, struct{}) { return t, struct{}{} }),
	}
	id := h.nextID.Add(1)

	h.mu.Lock()
	h.subscribers[id] = sub
	h.notify()
	h.mu.Unlock()

	return id, sub.ch
}

func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	if sub, ok := h.subscribers[id]; ok {
		close(sub.ch)
		delete(h.subscribers, id)
		h.notify()
	}
	h.mu.Unlock()
}

// Publish delivers the message at most once to every subscriber of topic or
// TopicAll and returns how many received it.
func (h *Hub) Publish(topic, event string, data any) int {
	msg := Message{Event: event, Topic: topic, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, sub := range h.subscribers {
		if !sub.wants(topic) {
			continue
		}
		select {
		case sub.ch <- msg:
			delivered++
		default:
			// Skip slow subscribers
		}
	}
	return delivered
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close closes all subscriber channels, causing streams to exit gracefully
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subscribers {
		close(sub.ch)
		delete(h.subscribers, id)
	}
	h.notify()
}

// notify must be called with mu held.
func (h *Hub) notify() {
	if h.onChange != nil {
		h.onChange(len(h.subscribers))
	}
}
