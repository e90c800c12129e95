package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/optionsvault/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// OfferHandler is called for every signed offer received from the venue feed.
type OfferHandler func(order domain.OptionOrder, signature string)

// OfferFeed is a WebSocket client for the venue's real-time signed-offer
// stream. It manages the connection lifecycle, subscriptions, and dispatches
// offers to registered handlers, reconnecting with exponential backoff on
// disconnect.
type OfferFeed struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Subscriptions to restore on reconnect.
	subscriptions []feedCommand

	handlerMu sync.RWMutex
	handlers  []OfferHandler

	// done is closed when the feed is shut down.
	done chan struct{}
}

// feedCommand is a subscribe/unsubscribe message to the venue feed.
type feedCommand struct {
	Type   string   `json:"type"`
	Tokens []string `json:"tokens,omitempty"`
}

// NewOfferFeed creates a feed client for the given WebSocket URL.
func NewOfferFeed(wsURL string) *OfferFeed {
	return &OfferFeed{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops.
func (f *OfferFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("market/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("market/ws: connect: %w", err)
	}

	f.conn = conn

	f.conn.SetReadDeadline(time.Now().Add(pongWait))
	f.conn.SetPongHandler(func(string) error {
		f.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go f.readLoop()
	go f.pingLoop()

	// Restore any previous subscriptions after reconnect.
	for _, cmd := range f.subscriptions {
		if err := f.sendCommand(cmd); err != nil {
			return fmt.Errorf("market/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// Subscribe subscribes to offers for the given collateral token addresses.
func (f *OfferFeed) Subscribe(_ context.Context, tokens []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return fmt.Errorf("market/ws: not connected")
	}

	cmd := feedCommand{Type: "subscribe", Tokens: tokens}
	if err := f.sendCommand(cmd); err != nil {
		return fmt.Errorf("market/ws: subscribe: %w", err)
	}

	f.subscriptions = append(f.subscriptions, cmd)
	return nil
}

// OnOffer registers a handler for every signed offer received.
func (f *OfferFeed) OnOffer(handler OfferHandler) {
	f.handlerMu.Lock()
	defer f.handlerMu.Unlock()
	f.handlers = append(f.handlers, handler)
}

// Close shuts down the connection and stops the read loop.
func (f *OfferFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}

	f.closed = true
	close(f.done)

	if f.conn != nil {
		_ = f.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return f.conn.Close()
	}
	return nil
}

// sendCommand sends a JSON command to the WebSocket. Caller must hold f.mu.
func (f *OfferFeed) sendCommand(cmd feedCommand) error {
	f.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages and dispatches offers to handlers.
// On disconnect it attempts to reconnect with exponential backoff.
func (f *OfferFeed) readLoop() {
	defer func() {
		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-f.done:
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				return
			default:
			}

			f.reconnect()
			return // readLoop restarts via reconnect -> Connect
		}

		f.handleMessage(message)
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (f *OfferFeed) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.mu.RLock()
			conn := f.conn
			f.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw feed message and dispatches signed offers.
func (f *OfferFeed) handleMessage(raw []byte) {
	var msg offerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return // Silently drop unparseable messages.
	}
	if msg.EventType != "offer" || msg.Signature == "" {
		return
	}

	order := msg.Order.toDomainOrder()

	f.handlerMu.RLock()
	handlers := f.handlers
	f.handlerMu.RUnlock()

	for _, h := range handlers {
		h(order, msg.Signature)
	}
}

// reconnect re-establishes the connection with exponential backoff. It
// blocks until successful or the feed is closed.
func (f *OfferFeed) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-f.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := f.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
