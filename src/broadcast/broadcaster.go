// Package broadcast fans messages out to the connections subscribed to a
// topic.
package broadcast

import (
	"sort"
	"sync"

	"signal-streamer/src/interfaces"
	"signal-streamer/src/logger"
	"signal-streamer/src/metrics"

	"github.com/google/uuid"
)

// SubscriptionHandle identifies one (topic, connection) registration.
type SubscriptionHandle struct {
	ID    uuid.UUID
	Topic string
	Conn  interfaces.IConnection
}

// PublishResult reports the outcome of one Publish.
type PublishResult struct {
	Attempts  int
	Delivered int
	Pruned    []SubscriptionHandle
}

// -----------------------------------------------------------------------------
// Broadcaster
// -----------------------------------------------------------------------------

type Broadcaster struct {
	mu     sync.RWMutex
	topics map[string]map[interfaces.IConnection]SubscriptionHandle
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewBroadcaster(log *logger.Logger) *Broadcaster {
	return &Broadcaster{
		topics: make(map[string]map[interfaces.IConnection]SubscriptionHandle),
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

// Subscribe registers conn on topic. Subscribing the same connection twice
// returns the existing handle.
func (b *Broadcaster) Subscribe(topic string, conn interfaces.IConnection) SubscriptionHandle {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[interfaces.IConnection]SubscriptionHandle)
		b.topics[topic] = subs
	}
	if h, exists := subs[conn]; exists {
		return h
	}

	h := SubscriptionHandle{ID: uuid.New(), Topic: topic, Conn: conn}
	subs[conn] = h
	metrics.Subscribers.WithLabelValues(topic).Set(float64(len(subs)))
	return h
}

// -----------------------------------------------------------------------------

// Unsubscribe removes the registration. Unknown or stale handles are a no-op
// and return false.
func (b *Broadcaster) Unsubscribe(h SubscriptionHandle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[h.Topic]
	if !ok {
		return false
	}
	cur, ok := subs[h.Conn]
	if !ok || cur.ID != h.ID {
		return false
	}
	b.removeLocked(h.Topic, h.Conn)
	return true
}

// -----------------------------------------------------------------------------

func (b *Broadcaster) UnsubscribeConnection(topic string, conn interfaces.IConnection) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.topics[topic][conn]; !ok {
		return false
	}
	b.removeLocked(topic, conn)
	return true
}

// -----------------------------------------------------------------------------

func (b *Broadcaster) removeLocked(topic string, conn interfaces.IConnection) {
	subs := b.topics[topic]
	delete(subs, conn)
	if len(subs) == 0 {
		delete(b.topics, topic)
		metrics.Subscribers.DeleteLabelValues(topic)
		return
	}
	metrics.Subscribers.WithLabelValues(topic).Set(float64(len(subs)))
}

// -----------------------------------------------------------------------------

// Publish sends message to every current subscriber of topic. Sends happen
// outside the lock on a snapshot; a failing connection is unsubscribed and
// the remaining subscribers still receive the message.
func (b *Broadcaster) Publish(topic string, message interface{}) PublishResult {
	b.mu.RLock()
	subs := b.topics[topic]
	snapshot := make([]SubscriptionHandle, 0, len(subs))
	for _, h := range subs {
		snapshot = append(snapshot, h)
	}
	b.mu.RUnlock()

	result := PublishResult{Attempts: len(snapshot)}
	for _, h := range snapshot {
		if err := h.Conn.Send(message); err != nil {
			b.Logger.Warning("Send to %s on %s failed, pruning: %v", h.Conn.ID(), topic, err)
			if b.Unsubscribe(h) {
				result.Pruned = append(result.Pruned, h)
				metrics.SendFailures.WithLabelValues(topic).Inc()
			}
			continue
		}
		result.Delivered++
	}
	return result
}

// -----------------------------------------------------------------------------

// CloseTopic drops every subscription of topic and returns them. Connections
// are not closed.
func (b *Broadcaster) CloseTopic(topic string) []SubscriptionHandle {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	handles := make([]SubscriptionHandle, 0, len(subs))
	for _, h := range subs {
		handles = append(handles, h)
	}
	delete(b.topics, topic)
	metrics.Subscribers.DeleteLabelValues(topic)
	return handles
}

// -----------------------------------------------------------------------------

func (b *Broadcaster) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// -----------------------------------------------------------------------------

func (b *Broadcaster) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topics := make([]string, 0, len(b.topics))
	for t := range b.topics {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// -----------------------------------------------------------------------------

// ConnectionCount is the number of distinct connections across all topics.
func (b *Broadcaster) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	seen := make(map[interfaces.IConnection]struct{})
	for _, subs := range b.topics {
		for c := range subs {
			seen[c] = struct{}{}
		}
	}
	return len(seen)
}
