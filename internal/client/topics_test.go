// ABOUTME: Tests for the role-aware subscription policy
// ABOUTME: Pure function, exercised over the full role/screen grid

package client

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ycyw/support-chat/internal/store"
)

func TestTopicsFor(t *testing.T) {
	tests := []struct {
		name   string
		role   string
		screen Screen
		chatID int64
		want   []string
	}{
		{
			name:   "user on list screen",
			role:   store.RoleUser,
			screen: ScreenList,
			want:   []string{"/topic/chats"},
		},
		{
			name:   "agent on list screen",
			role:   store.RoleSupport,
			screen: ScreenList,
			want:   []string{"/topic/chats", "/topic/chats/support"},
		},
		{
			name:   "user on detail screen",
			role:   store.RoleUser,
			screen: ScreenDetail,
			chatID: 7,
			want:   []string{"/topic/chats/7"},
		},
		{
			name:   "agent on detail screen",
			role:   store.RoleSupport,
			screen: ScreenDetail,
			chatID: 7,
			want:   []string{"/topic/chats/7"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TopicsFor(tt.role, tt.screen, tt.chatID))
		})
	}
}
