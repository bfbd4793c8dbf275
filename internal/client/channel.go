// ABOUTME: Broker channel lifecycle: one reconnectable websocket subscription
// ABOUTME: Explicit state machine with idempotent open and fixed-delay retry

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ycyw/support-chat/internal/broker"
)

// ChannelState enumerates the lifecycle of a broker channel.
type ChannelState int

const (
	// StateIdle means no connection exists or is wanted.
	StateIdle ChannelState = iota
	// StateConnecting means a connect or reconnect attempt is in flight.
	StateConnecting
	// StateActive means the socket is up and subscriptions are placed.
	StateActive
	// StateClosing means Close was called and teardown is in progress.
	StateClosing
)

func (s ChannelState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	defaultReconnectDelay = 8 * time.Second
	defaultPingInterval   = 20 * time.Second
	channelWriteTimeout   = 5 * time.Second
)

// wsConn is the slice of a websocket connection the channel needs.
// Tests substitute in-memory implementations.
type wsConn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// dialFunc opens a websocket connection to a fully-formed URL.
type dialFunc func(ctx context.Context, rawURL string, header http.Header) (wsConn, error)

type coderConn struct {
	conn *websocket.Conn
}

func (c *coderConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *coderConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *coderConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

func dialWebsocket(ctx context.Context, rawURL string, header http.Header) (wsConn, error) {
	conn, _, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, err
	}
	return &coderConn{conn: conn}, nil
}

// ChannelConfig configures a Channel.
type ChannelConfig struct {
	// Endpoint is the websocket URL, e.g. ws://localhost:8080/ws.
	Endpoint string
	// Token is read once per connect attempt. The credential is sent
	// both as an access_token query parameter and as a bearer header,
	// since transport negotiation may honor either path.
	Token func() string
	// OnFrame receives every message frame, in arrival order.
	OnFrame func(broker.Frame)

	Logger *slog.Logger
	// Dial defaults to a coder/websocket dial.
	Dial dialFunc
	// ReconnectDelay is the fixed wait between attempts. No backoff,
	// no attempt cap; retrying continues until Close.
	ReconnectDelay time.Duration
	// PingInterval is the outbound heartbeat period. Server heartbeats
	// are neither expected nor required.
	PingInterval time.Duration
}

// Channel maintains one live broker subscription across reconnects.
// Open and Close drive the state machine; everything in between is
// internal.
type Channel struct {
	cfg    ChannelConfig
	logger *slog.Logger

	mu     sync.Mutex
	state  ChannelState
	topics []string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChannel creates a channel in the idle state.
func NewChannel(cfg ChannelConfig) *Channel {
	if cfg.Dial == nil {
		cfg.Dial = dialWebsocket
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Channel{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "channel"),
	}
}

// State reports the current lifecycle state.
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open starts the connection loop for the given topics. Calling Open
// while the channel is connecting or active is a no-op; the existing
// loop keeps running with its original topics.
func (c *Channel) Open(topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.state = StateConnecting
	c.topics = append([]string(nil), topics...)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.topics, c.done)
}

// Close tears down the connection loop and waits for it to finish.
// Always safe to call; the channel ends idle and can be reopened.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateClosing {
		c.mu.Unlock()
		return
	}
	c.state = StateClosing
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done
}

func (c *Channel) setState(next ChannelState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Closing is terminal until the run loop exits; a reconnect racing
	// with Close must not resurrect the channel.
	if c.state == StateClosing && next != StateIdle {
		return
	}
	c.state = next
}

func (c *Channel) run(ctx context.Context, topics []string, done chan struct{}) {
	defer close(done)
	defer c.setState(StateIdle)

	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("connect failed, will retry",
				"error", err, "delay", c.cfg.ReconnectDelay)
			if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
				return
			}
			continue
		}

		c.setState(StateActive)
		c.serve(ctx, conn, topics)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.setState(StateConnecting)
		c.logger.Debug("connection lost, will retry", "delay", c.cfg.ReconnectDelay)
		if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
			return
		}
	}
}

// dial builds the endpoint URL with the credential attached in both
// accepted forms and opens the socket.
func (c *Channel) dial(ctx context.Context) (wsConn, error) {
	endpoint := c.cfg.Endpoint
	header := http.Header{}
	token := ""
	if c.cfg.Token != nil {
		token = c.cfg.Token()
	}
	if token != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parsing endpoint: %w", err)
		}
		q := u.Query()
		q.Set("access_token", token)
		u.RawQuery = q.Encode()
		endpoint = u.String()
		header.Set("Authorization", "Bearer "+token)
	}
	return c.cfg.Dial(ctx, endpoint, header)
}

// serve subscribes and pumps frames until the connection drops or the
// channel is closed. Returning hands control back to the retry loop.
func (c *Channel) serve(ctx context.Context, conn wsConn, topics []string) {
	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()

	for _, topic := range topics {
		if err := c.writeFrame(connCtx, conn, broker.Frame{Type: broker.FrameSubscribe, Topic: topic}); err != nil {
			c.logger.Debug("subscribe failed", "topic", topic, "error", err)
			return
		}
	}

	go c.heartbeat(connCtx, conn, connCancel)

	for {
		data, err := conn.Read(connCtx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Debug("read failed", "error", err)
			}
			return
		}
		var frame broker.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Debug("discarding malformed frame", "error", err)
			continue
		}
		if frame.Type == broker.FrameMessage && c.cfg.OnFrame != nil {
			c.cfg.OnFrame(frame)
		}
	}
}

func (c *Channel) heartbeat(ctx context.Context, conn wsConn, cancel context.CancelFunc) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeFrame(ctx, conn, broker.Frame{Type: broker.FramePing}); err != nil {
				cancel()
				return
			}
		}
	}
}

func (c *Channel) writeFrame(ctx context.Context, conn wsConn, frame broker.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, channelWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, data)
}

// sleepCtx waits for d or until ctx is cancelled. Returns false when
// cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
