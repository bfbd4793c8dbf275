// ABOUTME: Screen coordinator enforcing the single-active-channel invariant
// ABOUTME: Tears down the outgoing screen's channel before opening the next

package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ycyw/support-chat/internal/broker"
	"github.com/ycyw/support-chat/internal/store"
)

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	// Endpoint is the websocket URL of the broker channel.
	Endpoint string
	REST     *RESTClient
	Session  *Session
	// OnSendFailed is forwarded to the active conversation.
	OnSendFailed func(error)
	Logger       *slog.Logger

	// Dial, ReconnectDelay and PingInterval are passed through to
	// every channel the coordinator opens. Zero values mean defaults.
	Dial           dialFunc
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// Coordinator owns screen navigation for one client process. Exactly
// one broker channel is live at a time: entering a detail view closes
// the list channel first, and leaving it restores the list channel.
type Coordinator struct {
	cfg    CoordinatorConfig
	logger *slog.Logger

	mu      sync.Mutex
	screen  Screen
	channel *Channel
	list    *ChatList
	conv    *Conversation
}

// NewCoordinator creates a coordinator with no channel open.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:    cfg,
		logger: logger.With("component", "coordinator"),
	}
}

// ShowList loads the conversation list from REST and opens the list
// channel for the session's role. Any previously open channel is torn
// down first.
func (c *Coordinator) ShowList(ctx context.Context) (*ChatList, error) {
	state := c.cfg.Session.State()

	c.mu.Lock()
	c.teardownLocked()
	c.screen = ScreenList
	c.conv = nil

	list := NewChatList(c.cfg.REST, state.Role == store.RoleSupport, c.cfg.Logger)
	c.list = list
	channel := c.newChannel(func(body []byte) { list.ApplyFrame(body) })
	c.channel = channel
	c.mu.Unlock()

	if _, err := list.Load(ctx); err != nil {
		return nil, err
	}
	channel.Open(TopicsFor(state.Role, ScreenList, 0))
	return list, nil
}

// OpenConversation loads a chat's history and switches the live
// channel to its per-conversation topic. A CLOSE event on that topic
// navigates back to the list.
func (c *Coordinator) OpenConversation(ctx context.Context, chatID int64) (*Conversation, error) {
	state := c.cfg.Session.State()

	c.mu.Lock()
	c.teardownLocked()
	c.screen = ScreenDetail
	c.list = nil

	conv := NewConversation(c.cfg.REST, ConversationConfig{
		ChatID: chatID,
		Self:   state.Name,
		OnClosed: func() {
			go func() {
				if _, err := c.ShowList(context.Background()); err != nil {
					c.logger.Warn("returning to list failed", "error", err)
				}
			}()
		},
		OnSendFailed: c.cfg.OnSendFailed,
		Logger:       c.cfg.Logger,
	})
	c.conv = conv
	channel := c.newChannel(func(body []byte) { conv.ApplyFrame(body) })
	c.channel = channel
	c.mu.Unlock()

	if _, err := conv.LoadMessages(ctx); err != nil {
		return nil, err
	}
	channel.Open(TopicsFor(state.Role, ScreenDetail, chatID))
	return conv, nil
}

// LeaveConversation returns to the list view, restoring its channel.
func (c *Coordinator) LeaveConversation(ctx context.Context) (*ChatList, error) {
	return c.ShowList(ctx)
}

// Shutdown closes whatever channel is open. The coordinator can be
// reused afterwards.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	c.teardownLocked()
	c.list = nil
	c.conv = nil
	c.mu.Unlock()
}

// Screen reports the current screen.
func (c *Coordinator) Screen() Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen
}

// ActiveChannel returns the channel for the current screen, or nil.
func (c *Coordinator) ActiveChannel() *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

func (c *Coordinator) newChannel(onBody func([]byte)) *Channel {
	return NewChannel(ChannelConfig{
		Endpoint:       c.cfg.Endpoint,
		Token:          c.cfg.Session.Token,
		OnFrame:        func(frame broker.Frame) { onBody(frame.Body) },
		Logger:         c.cfg.Logger,
		Dial:           c.cfg.Dial,
		ReconnectDelay: c.cfg.ReconnectDelay,
		PingInterval:   c.cfg.PingInterval,
	})
}

func (c *Coordinator) teardownLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
}
