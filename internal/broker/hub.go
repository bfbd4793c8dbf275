// ABOUTME: In-memory fan-out hub for push-channel topics
// ABOUTME: Publishes JSON frames to all subscribers of a topic, dropping on full buffers

package broker

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Hub provides in-memory pub/sub for push-channel frames. Connected
// websocket sessions register their send channel per topic; REST handlers
// publish summary and message events as they are persisted.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan<- Frame // topic -> subID -> session send channel
	logger      *slog.Logger
}

// NewHub creates a hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]map[string]chan<- Frame),
		logger:      logger.With("component", "hub"),
	}
}

// Subscribe registers a send channel for frames on the given topic and
// returns a subscription ID for later unsubscription.
func (h *Hub) Subscribe(topic string, ch chan<- Frame) string {
	subID := uuid.New().String()

	h.mu.Lock()
	if _, ok := h.subscribers[topic]; !ok {
		h.subscribers[topic] = make(map[string]chan<- Frame)
	}
	h.subscribers[topic][subID] = ch
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "topic", topic, "sub_id", subID)
	return subID
}

// Unsubscribe removes a subscription. The channel itself is owned by the
// session and is not closed here.
func (h *Hub) Unsubscribe(topic, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[topic]
	if !ok {
		return
	}
	if _, exists := subs[subID]; !exists {
		return
	}

	delete(subs, subID)
	if len(subs) == 0 {
		delete(h.subscribers, topic)
	}

	h.logger.Debug("subscriber removed", "topic", topic, "sub_id", subID)
}

// Publish encodes body as a message frame and sends it to all subscribers
// of the topic. Non-blocking: frames are dropped for subscribers whose
// channels are full.
func (h *Hub) Publish(topic string, body any) {
	frame, err := MessageFrame(topic, body)
	if err != nil {
		h.logger.Error("dropping unencodable frame", "topic", topic, "error", err)
		return
	}

	h.mu.RLock()
	subs, ok := h.subscribers[topic]
	if !ok || len(subs) == 0 {
		h.mu.RUnlock()
		return
	}

	// Copy subscriber channels under read lock to avoid holding lock during sends
	targets := make([]chan<- Frame, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- frame:
			// Sent
		default:
			// Subscriber channel full, drop the frame for this subscriber
			h.logger.Debug("dropped frame for slow subscriber", "topic", topic)
		}
	}
}

// SubscriberCount reports how many subscriptions a topic currently has.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}
