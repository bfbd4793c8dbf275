// ABOUTME: REST handlers for the /api/support surface: chat list, messages, status
// ABOUTME: Every persisted change is also published on the matching broker topics

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ycyw/support-chat/internal/auth"
	"github.com/ycyw/support-chat/internal/broker"
	"github.com/ycyw/support-chat/internal/store"
)

// CreateChatRequest is the JSON body for POST /api/support/chats.
type CreateChatRequest struct {
	Title string `json:"title"`
}

// UpdateStatusRequest is the JSON body for PATCH /api/support/chats/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// SendMessageRequest is the JSON body for POST /api/support/chats/{id}/messages.
type SendMessageRequest struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// MessageResponse is the JSON shape of a message in REST responses.
type MessageResponse struct {
	ID      int64  `json:"id"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
	SentAt  string `json:"sentAt"`
}

// ChatMessageEvent is the per-conversation broker payload for a new message.
// It carries sender and content only; receivers assign local identity.
type ChatMessageEvent struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

func toMessageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:      m.ID,
		Sender:  m.Sender,
		Content: m.Content,
		SentAt:  m.SentAt.Format(time.RFC3339),
	}
}

// chatID extracts the {id} path segment.
func chatID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// handleListChats handles GET /api/support/chats.
// SUPPORT sees every open chat; a USER sees only their own.
func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())

	var ownerID int64
	if identity.Role != store.RoleSupport {
		user, err := s.store.GetUserByName(r.Context(), identity.Name)
		if err != nil {
			s.logger.Error("failed to look up requesting user", "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		ownerID = user.ID
	}

	summaries, err := s.store.ListChats(r.Context(), ownerID)
	if err != nil {
		s.logger.Error("failed to list chats", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.sendJSON(w, http.StatusOK, summaries)
}

// handleCreateChat handles POST /api/support/chats.
// The new summary is broadcast so other clients can pick it up live: on the
// agent-only topic when a SUPPORT user created it, on the general topic
// otherwise (agents learn about brand-new user chats from the general topic).
func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())

	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		s.sendJSONError(w, http.StatusBadRequest, "title is required")
		return
	}

	user, err := s.store.GetUserByName(r.Context(), identity.Name)
	if err != nil {
		s.logger.Error("failed to look up requesting user", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	chat, err := s.store.CreateChat(r.Context(), req.Title, user.ID)
	if err != nil {
		s.logger.Error("failed to create chat", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	summary := store.ChatSummary{ID: chat.ID, Title: chat.Title, MessageCount: 0, Status: chat.Status}
	if identity.Role == store.RoleSupport {
		s.hub.Publish(broker.TopicChatsSupport, summary)
	} else {
		s.hub.Publish(broker.TopicChats, summary)
	}

	s.logger.Info("chat created", "chat_id", chat.ID, "owner", user.Name)
	s.sendJSON(w, http.StatusOK, summary)
}

// handleUpdateStatus handles PATCH /api/support/chats/{id}/status.
// The updated summary goes to both the list topic and the chat's own topic,
// so open detail views learn the conversation was closed.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := chatID(r)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Status != store.StatusOpen && req.Status != store.StatusClose {
		s.sendJSONError(w, http.StatusBadRequest, "unknown status")
		return
	}

	chat, err := s.store.UpdateChatStatus(r.Context(), id, req.Status)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "chat not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to update chat status", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	count, err := s.store.CountMessages(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to count messages", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	summary := store.ChatSummary{ID: chat.ID, Title: chat.Title, MessageCount: count, Status: chat.Status}
	s.hub.Publish(broker.TopicChats, summary)
	s.hub.Publish(broker.ChatTopic(id), summary)

	s.logger.Info("chat status updated", "chat_id", id, "status", chat.Status)
	s.sendJSON(w, http.StatusOK, summary)
}

// handleListMessages handles GET /api/support/chats/{id}/messages.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := chatID(r)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	messages, err := s.store.ListMessages(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to list messages", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]MessageResponse, 0, len(messages))
	for i := range messages {
		out = append(out, toMessageResponse(&messages[i]))
	}
	s.sendJSON(w, http.StatusOK, out)
}

// handleCreateMessage handles POST /api/support/chats/{id}/messages.
// Two broadcasts follow a successful write: the message itself into the
// chat's room, then the refreshed summary count onto the general list topic.
func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())

	id, err := chatID(r)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	}
	sender := req.Sender
	if sender == "" {
		sender = identity.Name
	}

	saved, err := s.store.CreateMessage(r.Context(), id, sender, req.Content)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "chat not found")
		return
	}
	if errors.Is(err, store.ErrChatClosed) {
		s.sendJSONError(w, http.StatusConflict, "chat is closed")
		return
	}
	if err != nil {
		s.logger.Error("failed to create message", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.hub.Publish(broker.ChatTopic(id), ChatMessageEvent{Sender: saved.Sender, Content: saved.Content})

	chat, err := s.store.GetChat(r.Context(), id)
	if err == nil {
		count, countErr := s.store.CountMessages(r.Context(), id)
		if countErr == nil {
			s.hub.Publish(broker.TopicChats, store.ChatSummary{
				ID:           chat.ID,
				Title:        chat.Title,
				MessageCount: count,
				Status:       chat.Status,
			})
		}
	}

	s.sendJSON(w, http.StatusOK, toMessageResponse(saved))
}
