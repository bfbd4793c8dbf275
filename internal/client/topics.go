// ABOUTME: Role-aware subscription policy
// ABOUTME: Pure decision function from (role, screen) to broker topics

package client

import (
	"github.com/ycyw/support-chat/internal/broker"
	"github.com/ycyw/support-chat/internal/store"
)

// Screen identifies which view is currently on display.
type Screen int

const (
	// ScreenList is the conversation overview.
	ScreenList Screen = iota
	// ScreenDetail is one open conversation.
	ScreenDetail
)

// TopicsFor returns the broker topics a client should hold while a
// given screen is open. chatID is only consulted for ScreenDetail.
//
// Ordinary users on the list screen follow the general summary topic;
// support agents additionally follow the agent-only topic so they
// learn about brand-new conversations. A detail screen follows only
// its per-conversation topic.
func TopicsFor(role string, screen Screen, chatID int64) []string {
	if screen == ScreenDetail {
		return []string{broker.ChatTopic(chatID)}
	}
	topics := []string{broker.TopicChats}
	if role == store.RoleSupport {
		topics = append(topics, broker.TopicChatsSupport)
	}
	return topics
}
