// ABOUTME: Wire protocol frames for the websocket push channel
// ABOUTME: JSON text frames: subscribe/unsubscribe/ping from clients, message to clients

package broker

import (
	"encoding/json"
	"fmt"
)

// Frame types. Clients send subscribe, unsubscribe and ping; the server
// sends message frames. The channel is receive-only for clients beyond
// subscription control — all writes go through REST.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FrameMessage     = "message"
)

// Frame is one JSON-encoded text frame on the push channel.
type Frame struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// MessageFrame builds a server-to-client message frame carrying the JSON
// encoding of body on the given topic.
func MessageFrame(topic string, body any) (Frame, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding frame body: %w", err)
	}
	return Frame{Type: FrameMessage, Topic: topic, Body: raw}, nil
}

// Topic names. Per-conversation topics are built with ChatTopic.
const (
	TopicChats        = "/topic/chats"         // general summary updates
	TopicChatsSupport = "/topic/chats/support" // agent-only summary updates
)

// ChatTopic returns the per-conversation topic for a chat id.
func ChatTopic(chatID int64) string {
	return fmt.Sprintf("/topic/chats/%d", chatID)
}
