// ABOUTME: Per-connection websocket session with read/write pumps
// ABOUTME: Routes subscribe/unsubscribe frames to the hub and forwards published frames

package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/ycyw/support-chat/internal/auth"
	"github.com/ycyw/support-chat/internal/store"
)

const (
	// sendBufferSize is the per-session outbound frame buffer.
	sendBufferSize = 64
	// writeTimeout bounds a single frame write.
	writeTimeout = 5 * time.Second
)

// session represents one connected websocket client.
type session struct {
	conn     *websocket.Conn
	hub      *Hub
	identity *auth.Identity
	send     chan Frame
	subs     map[string]string // topic -> subID
	logger   *slog.Logger
}

func newSession(conn *websocket.Conn, hub *Hub, identity *auth.Identity, logger *slog.Logger) *session {
	return &session{
		conn:     conn,
		hub:      hub,
		identity: identity,
		send:     make(chan Frame, sendBufferSize),
		subs:     make(map[string]string),
		logger:   logger.With("user", identity.Name),
	}
}

// run drives the session until the connection closes or ctx is cancelled.
func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.cleanup()

	go s.writePump(ctx)
	s.readPump(ctx)
}

func (s *session) readPump(ctx context.Context) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.logger.Debug("ignoring malformed frame", "error", err)
			continue
		}

		switch frame.Type {
		case FrameSubscribe:
			s.subscribe(frame.Topic)
		case FrameUnsubscribe:
			s.unsubscribe(frame.Topic)
		case FramePing:
			// Keep-alive only; no pong is sent, clients do not expect one
		default:
			s.logger.Debug("ignoring unknown frame type", "type", frame.Type)
		}
	}
}

func (s *session) writePump(ctx context.Context) {
	defer func() { _ = s.conn.Close(websocket.StatusNormalClosure, "") }()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.send:
			data, err := json.Marshal(frame)
			if err != nil {
				s.logger.Error("failed to marshal frame", "error", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = s.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// allowed reports whether this session's identity may subscribe to a topic.
// The agent-only summary topic is restricted to the SUPPORT role; every
// other topic is open to any authenticated client.
func (s *session) allowed(topic string) bool {
	if topic == TopicChatsSupport {
		return s.identity.Role == store.RoleSupport
	}
	return true
}

func (s *session) subscribe(topic string) {
	if topic == "" || !s.allowed(topic) {
		s.logger.Debug("subscription refused", "topic", topic)
		return
	}
	if _, already := s.subs[topic]; already {
		return
	}
	s.subs[topic] = s.hub.Subscribe(topic, s.send)
}

func (s *session) unsubscribe(topic string) {
	subID, ok := s.subs[topic]
	if !ok {
		return
	}
	delete(s.subs, topic)
	s.hub.Unsubscribe(topic, subID)
}

func (s *session) cleanup() {
	for topic, subID := range s.subs {
		s.hub.Unsubscribe(topic, subID)
	}
	s.subs = nil
}
