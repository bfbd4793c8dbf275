// ABOUTME: Tests for the conversation detail synchronizer
// ABOUTME: Optimistic send, reconcile, rollback, and broker event merging

package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// messageBackend is a minimal REST stub for one chat's message
// endpoints. failSends makes POSTs return 500.
type messageBackend struct {
	history   []Message
	nextID    atomic.Int64
	failSends atomic.Bool
}

func (b *messageBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/support/chats/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(b.history)
	})
	mux.HandleFunc("POST /api/support/chats/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		if b.failSends.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var req struct {
			Sender  string `json:"sender"`
			Content string `json:"content"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(Message{
			ID:      b.nextID.Add(1) + 41, // first confirmed id is 42
			Sender:  req.Sender,
			Content: req.Content,
			SentAt:  time.Now().UTC(),
		})
	})
	return mux
}

func newTestConversation(t *testing.T, backend *messageBackend, cfg ConversationConfig) *Conversation {
	t.Helper()
	ts := httptest.NewServer(backend.handler())
	t.Cleanup(ts.Close)
	if cfg.ChatID == 0 {
		cfg.ChatID = 1
	}
	if cfg.Self == "" {
		cfg.Self = "alice"
	}
	return NewConversation(NewRESTClient(ts.URL, nil), cfg)
}

func TestLoadMessages_ReplacesStream(t *testing.T) {
	backend := &messageBackend{history: []Message{
		{ID: 1, Sender: "alice", Content: "hi"},
		{ID: 2, Sender: "support", Content: "hello"},
	}}
	conv := newTestConversation(t, backend, ConversationConfig{})

	msgs, err := conv.LoadMessages(t.Context())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestSend_OptimisticReconcile(t *testing.T) {
	conv := newTestConversation(t, &messageBackend{}, ConversationConfig{})

	require.NoError(t, conv.Send(t.Context(), "hello"))

	msgs := conv.Messages()
	require.Len(t, msgs, 1)
	assert.EqualValues(t, 42, msgs[0].ID)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.False(t, msgs[0].Provisional, "confirmed message must not stay provisional")
}

func TestSend_ReconcilePreservesPosition(t *testing.T) {
	backend := &messageBackend{history: []Message{
		{ID: 1, Sender: "support", Content: "how can I help?"},
	}}
	conv := newTestConversation(t, backend, ConversationConfig{})
	_, err := conv.LoadMessages(t.Context())
	require.NoError(t, err)

	require.NoError(t, conv.Send(t.Context(), "my card was declined"))

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.EqualValues(t, 1, msgs[0].ID)
	assert.EqualValues(t, 42, msgs[1].ID)
	assert.Equal(t, "my card was declined", msgs[1].Content)
}

func TestSend_RollbackOnFailure(t *testing.T) {
	backend := &messageBackend{}
	backend.failSends.Store(true)
	var notified atomic.Bool
	conv := newTestConversation(t, backend, ConversationConfig{
		OnSendFailed: func(error) { notified.Store(true) },
	})

	err := conv.Send(t.Context(), "hello")
	require.Error(t, err)
	assert.Empty(t, conv.Messages(), "failed send must be rolled back")
	assert.True(t, notified.Load())
}

func TestSend_ValidationBeforeNetwork(t *testing.T) {
	// nil REST client: any network call would panic
	conv := NewConversation(nil, ConversationConfig{ChatID: 1, Self: "alice"})

	assert.ErrorIs(t, conv.Send(t.Context(), "   "), ErrEmptyMessage)
	assert.Empty(t, conv.Messages())
}

func TestSend_RejectsReentrant(t *testing.T) {
	conv := NewConversation(nil, ConversationConfig{ChatID: 1, Self: "alice"})
	conv.sending = true

	assert.ErrorIs(t, conv.Send(t.Context(), "hello"), ErrSendInFlight)
}

func TestApplyFrame_AppendsIncomingMessage(t *testing.T) {
	conv := NewConversation(nil, ConversationConfig{ChatID: 1, Self: "alice"})

	conv.ApplyFrame(json.RawMessage(`{"sender":"support","content":"hello"}`))

	msgs := conv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "support", msgs[0].Sender)
	assert.True(t, msgs[0].Provisional)
	assert.Negative(t, msgs[0].ID, "broker-delivered messages get provisional ids")
}

func TestApplyFrame_DiscardsSelfEcho(t *testing.T) {
	conv := NewConversation(nil, ConversationConfig{ChatID: 1, Self: "alice"})

	conv.ApplyFrame(json.RawMessage(`{"sender":"alice","content":"hi"}`))
	assert.Empty(t, conv.Messages())
}

func TestApplyFrame_CloseTriggersLeave(t *testing.T) {
	var closed atomic.Bool
	conv := NewConversation(nil, ConversationConfig{
		ChatID:   1,
		Self:     "alice",
		OnClosed: func() { closed.Store(true) },
	})

	conv.ApplyFrame(json.RawMessage(`{"id":1,"title":"billing","status":"CLOSE"}`))
	assert.True(t, closed.Load())
	assert.Empty(t, conv.Messages())
}

func TestConversationApplyFrame_MalformedPayloadDropped(t *testing.T) {
	conv := NewConversation(nil, ConversationConfig{ChatID: 1, Self: "alice"})

	conv.ApplyFrame(json.RawMessage(`not json`))
	conv.ApplyFrame(json.RawMessage(`{}`))
	assert.Empty(t, conv.Messages())
}

func TestProvisionalIDsNeverCollide(t *testing.T) {
	conv := NewConversation(nil, ConversationConfig{ChatID: 1, Self: "alice"})

	conv.ApplyFrame(json.RawMessage(`{"sender":"support","content":"one"}`))
	conv.ApplyFrame(json.RawMessage(`{"sender":"support","content":"two"}`))

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
}
