package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// HeadNotification is one new-head announcement from the settlement layer.
type HeadNotification struct {
	Number int64
	Hash   string
}

// HeadWatcherConfig configures WebSocket head subscription behavior.
type HeadWatcherConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultHeadWatcherConfig returns default head watcher configuration.
func DefaultHeadWatcherConfig() HeadWatcherConfig {
	return HeadWatcherConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// HeadWatcher subscribes to new chain heads over WebSocket. New heads drive
// event-based refresh in the coordinator; the connection reconnects and
// resubscribes on failure.
type HeadWatcher struct {
	endpoint string
	config   HeadWatcherConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	heads chan HeadNotification

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// wsRequest is a JSON-RPC 2.0 request over WebSocket.
type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsMessage is either a request response or a subscription notification.
type wsMessage struct {
	Method string `json:"method"`
	Params *struct {
		Result json.RawMessage `json:"result"`
	} `json:"params"`
}

// wsHead is the wire form of a head notification.
type wsHead struct {
	Number string `json:"number"`
	Hash   string `json:"hash"`
}

// NewHeadWatcher connects to the endpoint and subscribes to new heads.
func NewHeadWatcher(ctx context.Context, endpoint string, config *HeadWatcherConfig) (*HeadWatcher, error) {
	cfg := DefaultHeadWatcherConfig()
	if config != nil {
		cfg = *config
	}

	w := &HeadWatcher{
		endpoint: endpoint,
		config:   cfg,
		heads:    make(chan HeadNotification, 64),
		done:     make(chan struct{}),
	}

	if err := w.connect(ctx); err != nil {
		return nil, err
	}

	w.wg.Add(1)
	go w.readLoop()

	w.wg.Add(1)
	go w.pingLoop()

	return w, nil
}

// Heads returns the channel of new-head notifications. Slow consumers drop
// heads rather than blocking the read loop; a head is only a refresh hint.
func (w *HeadWatcher) Heads() <-chan HeadNotification {
	return w.heads
}

// connect dials the endpoint and sends the newHeads subscription request.
func (w *HeadWatcher) connect(ctx context.Context) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: websocket dial: %s", ErrRemoteUnavailable, err)
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      w.requestID.Add(1),
		Method:  "grim_subscribe",
		Params:  []interface{}{"newHeads"},
	}

	conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return fmt.Errorf("write subscribe: %w", err)
	}

	w.conn = conn
	return nil
}

// Close closes the WebSocket connection and the heads channel.
func (w *HeadWatcher) Close() error {
	if w.closed.Swap(true) {
		return nil // Already closed
	}

	close(w.done)

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.conn.Close()
	}
	w.connMu.Unlock()

	w.wg.Wait()
	close(w.heads)
	return nil
}

// readLoop reads messages and dispatches head notifications.
func (w *HeadWatcher) readLoop() {
	defer w.wg.Done()

	reconnectDelay := w.config.ReconnectDelay

	for !w.closed.Load() {
		w.connMu.Lock()
		conn := w.conn
		w.connMu.Unlock()

		if conn == nil {
			select {
			case <-w.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if w.closed.Load() {
				return
			}

			if !w.reconnecting.Swap(true) {
				go w.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > w.config.MaxReconnectDelay {
				reconnectDelay = w.config.MaxReconnectDelay
			}

			select {
			case <-w.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = w.config.ReconnectDelay

		w.handleMessage(message)
	}
}

// handleMessage parses a subscription notification and forwards the head.
func (w *HeadWatcher) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if msg.Method != "grim_subscription" || msg.Params == nil {
		return // subscription confirmation or unrelated response
	}

	var head wsHead
	if err := json.Unmarshal(msg.Params.Result, &head); err != nil {
		return
	}

	number, err := parseHexInt64(head.Number)
	if err != nil {
		return
	}

	select {
	case w.heads <- HeadNotification{Number: number, Hash: head.Hash}:
	default:
		// Consumer is behind; drop the hint.
	}
}

// reconnect attempts to reconnect and resubscribe.
func (w *HeadWatcher) reconnect(delay time.Duration) {
	defer w.reconnecting.Store(false)

	if w.closed.Load() {
		return
	}

	select {
	case <-w.done:
		return
	case <-time.After(delay):
	}

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// connect resubscribes as part of the dial.
	if err := w.connect(ctx); err != nil {
		return // will retry on next read error
	}
}

// pingLoop sends ping frames to keep the connection alive.
func (w *HeadWatcher) pingLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.connMu.Lock()
			if w.conn != nil {
				w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
				w.conn.WriteMessage(websocket.PingMessage, nil)
			}
			w.connMu.Unlock()
		}
	}
}
