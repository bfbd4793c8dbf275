// ABOUTME: Tests for the broker channel state machine
// ABOUTME: Uses in-memory fake connections instead of real sockets

package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ycyw/support-chat/internal/broker"
)

// fakeConn is an in-memory wsConn. Reads block until a frame is pushed
// or the connection drops.
type fakeConn struct {
	inbound chan []byte
	writes  chan []byte
	closed  chan struct{}
	once    sync.Once
	onClose func()
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		writes:  make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.inbound:
		return data, nil
	case <-f.closed:
		return nil, errors.New("connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Write(_ context.Context, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("connection closed")
	default:
	}
	f.writes <- append([]byte(nil), data...)
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() {
		close(f.closed)
		if f.onClose != nil {
			f.onClose()
		}
	})
	return nil
}

// push delivers a message frame to the client side.
func (f *fakeConn) push(t *testing.T, topic string, body any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	frame, err := json.Marshal(broker.Frame{Type: broker.FrameMessage, Topic: topic, Body: raw})
	require.NoError(t, err)
	f.inbound <- frame
}

// nextWrite decodes the next frame the client wrote.
func (f *fakeConn) nextWrite(t *testing.T) broker.Frame {
	t.Helper()
	select {
	case data := <-f.writes:
		var frame broker.Frame
		require.NoError(t, json.Unmarshal(data, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for client write")
		return broker.Frame{}
	}
}

// fakeDialer hands out fake connections and records every attempt.
type fakeDialer struct {
	mu       sync.Mutex
	conns    []*fakeConn
	urls     []string
	headers  []http.Header
	failNext atomic.Int32
}

func (d *fakeDialer) dial(_ context.Context, rawURL string, header http.Header) (wsConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, rawURL)
	d.headers = append(d.headers, header)
	if d.failNext.Load() > 0 {
		d.failNext.Add(-1)
		return nil, errors.New("dial refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func newTestChannel(dialer *fakeDialer, token string, onFrame func(broker.Frame)) *Channel {
	return NewChannel(ChannelConfig{
		Endpoint:       "ws://example.test/ws",
		Token:          func() string { return token },
		OnFrame:        onFrame,
		Dial:           dialer.dial,
		ReconnectDelay: 10 * time.Millisecond,
		PingInterval:   time.Hour,
	})
}

func waitForState(t *testing.T, ch *Channel, want ChannelState) {
	t.Helper()
	require.Eventually(t, func() bool { return ch.State() == want },
		2*time.Second, time.Millisecond, "channel never reached state %s", want)
}

func TestChannel_OpenIsIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	ch := newTestChannel(dialer, "", nil)
	defer ch.Close()

	ch.Open([]string{broker.TopicChats})
	ch.Open([]string{broker.TopicChats})
	waitForState(t, ch, StateActive)

	assert.Equal(t, 1, dialer.dialCount(), "second open must not dial again")
}

func TestChannel_TokenAttachedBothWays(t *testing.T) {
	dialer := &fakeDialer{}
	ch := newTestChannel(dialer, "sekret", nil)
	defer ch.Close()

	ch.Open([]string{broker.TopicChats})
	waitForState(t, ch, StateActive)

	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	assert.Contains(t, dialer.urls[0], "access_token=sekret")
	assert.Equal(t, "Bearer sekret", dialer.headers[0].Get("Authorization"))
}

func TestChannel_SubscribesOnConnect(t *testing.T) {
	dialer := &fakeDialer{}
	ch := newTestChannel(dialer, "", nil)
	defer ch.Close()

	ch.Open([]string{broker.TopicChats, broker.TopicChatsSupport})
	waitForState(t, ch, StateActive)

	conn := dialer.conn(0)
	first := conn.nextWrite(t)
	second := conn.nextWrite(t)
	assert.Equal(t, broker.FrameSubscribe, first.Type)
	assert.Equal(t, broker.TopicChats, first.Topic)
	assert.Equal(t, broker.FrameSubscribe, second.Type)
	assert.Equal(t, broker.TopicChatsSupport, second.Topic)
}

func TestChannel_DeliversFramesInOrder(t *testing.T) {
	var mu sync.Mutex
	var topics []string
	dialer := &fakeDialer{}
	ch := newTestChannel(dialer, "", func(frame broker.Frame) {
		mu.Lock()
		topics = append(topics, frame.Topic)
		mu.Unlock()
	})
	defer ch.Close()

	ch.Open([]string{broker.TopicChats})
	waitForState(t, ch, StateActive)

	conn := dialer.conn(0)
	conn.push(t, "/topic/chats", map[string]any{"id": 1})
	conn.push(t, "/topic/chats/1", map[string]any{"sender": "a", "content": "hi"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(topics) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/topic/chats", "/topic/chats/1"}, topics)
}

func TestChannel_ReconnectsAfterDialFailure(t *testing.T) {
	dialer := &fakeDialer{}
	dialer.failNext.Store(2)
	ch := newTestChannel(dialer, "", nil)
	defer ch.Close()

	ch.Open([]string{broker.TopicChats})
	waitForState(t, ch, StateActive)

	assert.GreaterOrEqual(t, dialer.dialCount(), 3)
}

func TestChannel_ReconnectsAfterConnectionDrop(t *testing.T) {
	dialer := &fakeDialer{}
	ch := newTestChannel(dialer, "", nil)
	defer ch.Close()

	ch.Open([]string{broker.TopicChats})
	waitForState(t, ch, StateActive)

	dialer.conn(0).Close()

	require.Eventually(t, func() bool { return dialer.dialCount() >= 2 },
		2*time.Second, time.Millisecond, "channel never redialed")
	waitForState(t, ch, StateActive)
}

func TestChannel_CloseIsAlwaysSafe(t *testing.T) {
	dialer := &fakeDialer{}
	ch := newTestChannel(dialer, "", nil)

	// Close before any open
	ch.Close()
	assert.Equal(t, StateIdle, ch.State())

	ch.Open([]string{broker.TopicChats})
	waitForState(t, ch, StateActive)
	ch.Close()
	assert.Equal(t, StateIdle, ch.State())

	// Double close
	ch.Close()
	assert.Equal(t, StateIdle, ch.State())

	// The channel is reusable after close
	ch.Open([]string{broker.TopicChats})
	waitForState(t, ch, StateActive)
	ch.Close()
	assert.Equal(t, StateIdle, ch.State())
}

func TestChannel_Heartbeat(t *testing.T) {
	dialer := &fakeDialer{}
	ch := NewChannel(ChannelConfig{
		Endpoint:       "ws://example.test/ws",
		Dial:           dialer.dial,
		ReconnectDelay: 10 * time.Millisecond,
		PingInterval:   5 * time.Millisecond,
	})
	defer ch.Close()

	ch.Open([]string{broker.TopicChats})
	waitForState(t, ch, StateActive)

	conn := dialer.conn(0)
	conn.nextWrite(t) // subscribe
	frame := conn.nextWrite(t)
	assert.Equal(t, broker.FramePing, frame.Type)
}
