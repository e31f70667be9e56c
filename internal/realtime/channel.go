// Package realtime provides the persistent bidirectional channel used to
// receive server-originated change notifications with low latency and to
// push lightweight events back.
//
// The channel is a small state machine:
//
//	disconnected --Connect()--> connecting --handshake ok--> connected
//	     ^                                                        |
//	     +--------------- unexpected close / error ---------------+
//
// An unexpected close schedules a reconnect with exponential backoff (base
// delay doubling per attempt, capped). Exceeding the attempt ceiling stops
// automatic retries; an explicit Connect is then required. Event handlers
// are held in a registry owned by the channel, so subscriptions survive
// reconnects.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// State is the channel's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ErrNotConnected is logged-and-returned by Emit when the channel is down.
// Callers must not assume delivery.
var ErrNotConnected = errors.New("not connected to server")

// ErrReconnectExhausted is reported through OnDown when the channel gives up
// on automatic reconnection.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// Message is the wire shape of a channel event in either direction.
type Message struct {
	Event string          `json:"event"`
	Table string          `json:"table,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Config holds configuration for the channel.
type Config struct {
	// URL is the websocket endpoint, e.g. "wss://rt.fintrack.app/ws".
	URL string

	// Token is the bearer credential presented at connect time.
	Token string

	// DeviceID identifies this device to the server.
	DeviceID string

	// HandshakeTimeout bounds the connection attempt (default: 10s).
	HandshakeTimeout time.Duration

	// BackoffBase is the first reconnect delay (default: 1s).
	BackoffBase time.Duration

	// BackoffCap is the maximum reconnect delay (default: 30s).
	BackoffCap time.Duration

	// MaxAttempts is the reconnect ceiling (default: 10). Past it, the
	// channel stays disconnected until Connect is called again.
	MaxAttempts int

	// OnDown, if set, is called when automatic reconnection gives up.
	OnDown func(err error)

	// Logger for channel activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults for the given endpoint.
func DefaultConfig(wsURL, token, deviceID string) *Config {
	return &Config{
		URL:              wsURL,
		Token:            token,
		DeviceID:         deviceID,
		HandshakeTimeout: 10 * time.Second,
		BackoffBase:      time.Second,
		BackoffCap:       30 * time.Second,
		MaxAttempts:      10,
		Logger:           log.New(os.Stderr, "[realtime] ", log.LstdFlags),
	}
}

// Channel manages the websocket connection lifecycle and event fan-out.
type Channel struct {
	config   *Config
	registry *registry

	mu      sync.Mutex
	state   State
	attempt int
	conn    *websocket.Conn
	closed  bool
	closeCh chan struct{}

	wg sync.WaitGroup
}

// NewChannel creates a channel. No I/O happens until Connect.
func NewChannel(config *Config) (*Channel, error) {
	if config == nil || config.URL == "" {
		return nil, fmt.Errorf("websocket URL cannot be empty")
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if config.BackoffBase == 0 {
		config.BackoffBase = time.Second
	}
	if config.BackoffCap == 0 {
		config.BackoffCap = 30 * time.Second
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 10
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[realtime] ", log.LstdFlags)
	}

	return &Channel{
		config:   config,
		registry: newRegistry(),
		closeCh:  make(chan struct{}),
	}, nil
}

// Connect opens the transport with the configured credentials. It returns
// once the handshake confirms the connection, or with an error on handshake
// failure. Calling Connect resets the reconnect attempt counter.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("channel is closed")
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.attempt = 0
	c.mu.Unlock()

	return c.dial(ctx)
}

// dial performs one connection attempt. The caller must have set state to
// connecting.
func (c *Channel) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.config.HandshakeTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.endpoint(), nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("handshake failed: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "channel closed")
		return fmt.Errorf("channel is closed")
	}
	c.conn = conn
	c.state = StateConnected
	c.attempt = 0
	c.mu.Unlock()

	c.config.Logger.Printf("Connected to %s", c.config.URL)

	c.wg.Add(1)
	go c.readLoop(conn)

	return nil
}

// endpoint builds the dial URL with token and device_id query parameters.
func (c *Channel) endpoint() string {
	q := url.Values{}
	q.Set("token", c.config.Token)
	q.Set("device_id", c.config.DeviceID)
	return c.config.URL + "?" + q.Encode()
}

// readLoop reads inbound messages and dispatches them to the registry until
// the connection drops.
func (c *Channel) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			c.handleDisconnect(err)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.config.Logger.Printf("Dropping malformed message: %v", err)
			continue
		}
		if msg.Event == "" {
			c.config.Logger.Printf("Dropping message with no event name")
			continue
		}

		c.registry.dispatch(msg)
	}
}

// handleDisconnect transitions to disconnected and, unless the channel was
// closed deliberately, schedules a reconnect.
func (c *Channel) handleDisconnect(cause error) {
	c.mu.Lock()
	c.conn = nil
	c.state = StateDisconnected
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.config.Logger.Printf("Connection lost: %v", cause)
	c.scheduleReconnect()
}

// scheduleReconnect runs the backoff loop in its own goroutine: wait, retry,
// repeat until connected, closed, or the attempt ceiling is hit.
func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.attempt++
	attempt := c.attempt
	if attempt > c.config.MaxAttempts {
		c.mu.Unlock()
		c.config.Logger.Printf("Giving up after %d reconnect attempts", c.config.MaxAttempts)
		if c.config.OnDown != nil {
			c.config.OnDown(ErrReconnectExhausted)
		}
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	delay := backoffDelay(attempt, c.config.BackoffBase, c.config.BackoffCap)
	c.config.Logger.Printf("Reconnecting in %v (attempt %d/%d)", delay, attempt, c.config.MaxAttempts)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		select {
		case <-time.After(delay):
		case <-c.closeCh:
			return
		}

		if err := c.dial(context.Background()); err != nil {
			c.config.Logger.Printf("Reconnect attempt %d failed: %v", attempt, err)
			c.scheduleReconnect()
		}
	}()
}

// On registers a handler for an event. Handlers survive reconnects and may
// be registered before the first connection exists.
func (c *Channel) On(event string, handler Handler) Subscription {
	return c.registry.on(event, handler)
}

// Off removes a previously registered handler.
func (c *Channel) Off(event string, id Subscription) {
	c.registry.off(event, id)
}

// Emit sends an event to the server. When the channel is not connected this
// is a no-op beyond a logged warning; callers must not assume delivery.
func (c *Channel) Emit(ctx context.Context, msg Message) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		c.config.Logger.Printf("Warning: dropping emit %q: %v", msg.Event, ErrNotConnected)
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %q: %w", msg.Event, err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to emit %q: %w", msg.Event, err)
	}
	return nil
}

// Connected reports whether the channel currently has a live connection.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempt returns the current reconnect attempt counter. Zero while
// connected.
func (c *Channel) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// Close shuts the channel down for good: no further reconnects, connection
// closed, goroutines drained.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closeCh)
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}

	c.wg.Wait()
	return nil
}
