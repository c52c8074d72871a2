package notify

import (
	"sync"
	"sync/atomic"

	"github.com/felixgeelhaar/tradeflow/internal/log"
	"github.com/felixgeelhaar/tradeflow/internal/metrics"
)

const DefaultBufferSize = 64

// HubConfig tunes a Hub.
type HubConfig struct {
	BufferSize int
	Logger     *log.Logger
	Metrics    *metrics.Metrics
}

// Hub is an in-process topic fan-out. Delivery is at-most-once: a
// subscriber whose buffer is full misses the message.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[*Subscription]struct{}
	buffer  int
	closed  bool
	logger  *log.Logger
	metrics *metrics.Metrics
}

// NewHub creates a Hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}
	return &Hub{
		topics:  make(map[string]map[*Subscription]struct{}),
		buffer:  cfg.BufferSize,
		logger:  cfg.Logger.WithComponent("notify"),
		metrics: cfg.Metrics,
	}
}

// Subscribe returns a subscription joined to topics.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	s := &Subscription{
		hub:    h,
		ch:     make(chan Message, h.buffer),
		topics: make(map[string]struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.closed = true
		close(s.ch)
		return s
	}
	for _, t := range topics {
		h.joinLocked(s, t)
	}
	return s
}

func (h *Hub) joinLocked(s *Subscription, topic string) {
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.topics[topic] = subs
	}
	subs[s] = struct{}{}
	s.topics[topic] = struct{}{}
}

func (h *Hub) leaveLocked(s *Subscription, topic string) {
	if subs, ok := h.topics[topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(s.topics, topic)
}

// Publish delivers msg to every subscriber of topic without blocking.
func (h *Hub) Publish(topic string, msg Message) {
	if msg.Topic == "" {
		msg.Topic = topic
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.topics[topic] {
		select {
		case s.ch <- msg:
			h.metrics.RecordNotification(msg.Type, false)
		default:
			s.dropped.Add(1)
			h.metrics.RecordNotification(msg.Type, true)
			h.logger.Debug("subscriber buffer full, message dropped", "topic", topic, "type", msg.Type)
		}
	}
}

// Subscribers returns the number of subscriptions joined to topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close ends every subscription. Later Publish calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true

	seen := make(map[*Subscription]struct{})
	for _, subs := range h.topics {
		for s := range subs {
			seen[s] = struct{}{}
		}
	}
	for s := range seen {
		s.closed = true
		s.topics = map[string]struct{}{}
		close(s.ch)
	}
	h.topics = make(map[string]map[*Subscription]struct{})
}

// Subscription receives the messages of the topics it joined.
type Subscription struct {
	hub     *Hub
	ch      chan Message
	topics  map[string]struct{} // guarded by hub.mu
	closed  bool                // guarded by hub.mu
	dropped atomic.Int64
}

// C returns the delivery channel. It is closed by Close or Hub.Close.
func (s *Subscription) C() <-chan Message { return s.ch }

// Join adds a topic.
func (s *Subscription) Join(topic string) {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if !s.closed {
		s.hub.joinLocked(s, topic)
	}
}

// Leave removes a topic.
func (s *Subscription) Leave(topic string) {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.leaveLocked(s, topic)
}

// Topics returns the joined topics.
func (s *Subscription) Topics() []string {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// Dropped returns how many messages missed this subscriber.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close leaves all topics and closes the channel. Safe to call twice.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.closed {
		return
	}
	for t := range s.topics {
		s.hub.leaveLocked(s, t)
	}
	s.closed = true
	close(s.ch)
}
