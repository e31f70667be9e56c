package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsServer is a test websocket endpoint that hands accepted connections to
// the test over a channel.
type wsServer struct {
	server *httptest.Server
	conns  chan *websocket.Conn

	mu      sync.Mutex
	queries []string
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()

	ws := &wsServer{conns: make(chan *websocket.Conn, 8)}
	ws.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.mu.Lock()
		ws.queries = append(ws.queries, r.URL.RawQuery)
		ws.mu.Unlock()

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ws.conns <- conn
	}))
	t.Cleanup(ws.server.Close)
	return ws
}

func (ws *wsServer) url() string {
	return "ws" + strings.TrimPrefix(ws.server.URL, "http")
}

// accept waits for the next connection the server accepted.
func (ws *wsServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ws.conns:
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}

func (ws *wsServer) send(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func testConfig(url string) *Config {
	cfg := DefaultConfig(url, "tok-1", "device-1")
	cfg.BackoffBase = 5 * time.Millisecond
	cfg.BackoffCap = 20 * time.Millisecond
	cfg.MaxAttempts = 3
	cfg.HandshakeTimeout = 2 * time.Second
	return cfg
}

func TestConnectPresentsCredentials(t *testing.T) {
	ws := newWSServer(t)

	ch, err := NewChannel(testConfig(ws.url()))
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.Connect(context.Background()))
	ws.accept(t)

	assert.True(t, ch.Connected())
	assert.Equal(t, StateConnected, ch.State())
	assert.Equal(t, 0, ch.Attempt())

	ws.mu.Lock()
	defer ws.mu.Unlock()
	require.Len(t, ws.queries, 1)
	assert.Contains(t, ws.queries[0], "token=tok-1")
	assert.Contains(t, ws.queries[0], "device_id=device-1")
}

func TestHandshakeFailureRejects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	ch, err := NewChannel(testConfig("ws" + strings.TrimPrefix(server.URL, "http")))
	require.NoError(t, err)
	defer ch.Close()

	err = ch.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, ch.State())
}

func TestInboundDispatch(t *testing.T) {
	ws := newWSServer(t)

	ch, err := NewChannel(testConfig(ws.url()))
	require.NoError(t, err)
	defer ch.Close()

	got := make(chan Message, 1)
	ch.On(EventRecordChanged, func(msg Message) { got <- msg })

	require.NoError(t, ch.Connect(context.Background()))
	conn := ws.accept(t)

	ws.send(t, conn, Message{Event: EventRecordChanged, Table: "goals"})

	select {
	case msg := <-got:
		assert.Equal(t, "goals", msg.Table)
	case <-time.After(5 * time.Second):
		t.Fatal("handler never received the event")
	}
}

func TestSubscriptionsSurviveReconnect(t *testing.T) {
	ws := newWSServer(t)

	ch, err := NewChannel(testConfig(ws.url()))
	require.NoError(t, err)
	defer ch.Close()

	// Registered before any connection exists.
	got := make(chan Message, 2)
	ch.On(EventRecordChanged, func(msg Message) { got <- msg })

	require.NoError(t, ch.Connect(context.Background()))
	first := ws.accept(t)

	// Kill the first connection; the channel must reconnect on its own.
	_ = first.Close(websocket.StatusInternalError, "simulated drop")

	second := ws.accept(t)
	ws.send(t, second, Message{Event: EventRecordChanged, Table: "accounts"})

	select {
	case msg := <-got:
		assert.Equal(t, "accounts", msg.Table, "handler must survive the reconnect")
	case <-time.After(5 * time.Second):
		t.Fatal("handler lost across reconnect")
	}
	assert.Equal(t, 0, ch.Attempt(), "attempt counter resets on successful connect")
}

func TestOffRemovesHandler(t *testing.T) {
	ws := newWSServer(t)

	ch, err := NewChannel(testConfig(ws.url()))
	require.NoError(t, err)
	defer ch.Close()

	got := make(chan Message, 1)
	id := ch.On(EventRecordChanged, func(msg Message) { got <- msg })
	ch.Off(EventRecordChanged, id)

	require.NoError(t, ch.Connect(context.Background()))
	conn := ws.accept(t)
	ws.send(t, conn, Message{Event: EventRecordChanged, Table: "loans"})

	select {
	case <-got:
		t.Fatal("removed handler still received the event")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestEmitWhenDisconnected(t *testing.T) {
	ch, err := NewChannel(testConfig("ws://127.0.0.1:0"))
	require.NoError(t, err)
	defer ch.Close()

	err = ch.Emit(context.Background(), Message{Event: EventUpdateRecord})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestEmitDelivers(t *testing.T) {
	ws := newWSServer(t)

	ch, err := NewChannel(testConfig(ws.url()))
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.Connect(context.Background()))
	conn := ws.accept(t)

	require.NoError(t, ch.Emit(context.Background(),
		Message{Event: EventRequestBooking, Data: json.RawMessage(`{"slot":"tue"}`)}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, EventRequestBooking, msg.Event)
}

func TestReconnectStopsAtCeiling(t *testing.T) {
	ws := newWSServer(t)

	cfg := testConfig(ws.url())
	down := make(chan error, 1)
	cfg.OnDown = func(err error) { down <- err }

	ch, err := NewChannel(cfg)
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.Connect(context.Background()))
	conn := ws.accept(t)

	// Take the server away entirely, then drop the connection: every
	// reconnect attempt must fail until the ceiling is hit.
	ws.server.CloseClientConnections()
	ws.server.Close()
	_ = conn.Close(websocket.StatusInternalError, "gone")

	select {
	case err := <-down:
		assert.ErrorIs(t, err, ErrReconnectExhausted)
	case <-time.After(5 * time.Second):
		t.Fatal("OnDown never fired")
	}
	assert.Equal(t, StateDisconnected, ch.State())
	assert.False(t, ch.Connected())
}
