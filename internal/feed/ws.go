package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/quantrend/dexarb/internal/domain"
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

	// updateBuffer is the capacity of the Updates channel. When the pump
	// falls behind, excess quotes are dropped rather than blocking the
	// read loop; the next poll cycle refreshes the book anyway.
	updateBuffer = 256
)

// wsCommand is the subscription control message sent to the feed server.
type wsCommand struct {
	Type  string `json:"type"` // "subscribe" or "unsubscribe"
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// wsQuote is a pushed quote from the feed server.
type wsQuote struct {
	Type      string  `json:"type"`
	Venue     string  `json:"venue"`
	Base      string  `json:"base"`
	Quote     string  `json:"quote"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
}

// WSFeed is a WebSocket client for push-based quote delivery. It manages the
// connection lifecycle, restores subscriptions after reconnects, and fans
// quotes for subscribed pairs onto the Updates channel.
type WSFeed struct {
	wsURL  string
	logger *slog.Logger
	conn   *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Subscribed pairs, keyed by canonical pair key, restored on reconnect.
	subscriptions map[string]domain.TokenPair

	updates chan domain.QuoteUpdate
	dropped atomic.Uint64

	// done is closed when the feed is shut down.
	done chan struct{}
}

// NewWSFeed creates a push feed client for the given WebSocket URL,
// e.g. "wss://quotes.example.com/ws".
func NewWSFeed(logger *slog.Logger, wsURL string) *WSFeed {
	return &WSFeed{
		wsURL:         wsURL,
		logger:        logger.With(slog.String("component", "feed")),
		subscriptions: make(map[string]domain.TokenPair),
		updates:       make(chan domain.QuoteUpdate, updateBuffer),
		done:          make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops. Previously subscribed pairs are re-subscribed.
func (w *WSFeed) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("feed/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed/ws: connect: %w", err)
	}

	w.conn = conn

	// Set up pong handler for keep-alive.
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	// Restore subscriptions after a reconnect.
	for _, pair := range w.subscriptions {
		if err := w.sendCommand(subscribeCommand("subscribe", pair)); err != nil {
			return fmt.Errorf("feed/ws: restore subscription %s: %w", pair.Key(), err)
		}
	}

	return nil
}

// Subscribe registers interest in a pair. The subscription survives
// reconnects until Unsubscribe is called.
func (w *WSFeed) Subscribe(pair domain.TokenPair) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("feed/ws: not connected")
	}

	if err := w.sendCommand(subscribeCommand("subscribe", pair)); err != nil {
		return fmt.Errorf("feed/ws: subscribe %s: %w", pair.Key(), err)
	}
	w.subscriptions[pair.Key()] = pair
	return nil
}

// Unsubscribe drops interest in a pair.
func (w *WSFeed) Unsubscribe(pair domain.TokenPair) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("feed/ws: not connected")
	}

	if err := w.sendCommand(subscribeCommand("unsubscribe", pair)); err != nil {
		return fmt.Errorf("feed/ws: unsubscribe %s: %w", pair.Key(), err)
	}
	delete(w.subscriptions, pair.Key())
	return nil
}

// Updates returns the channel quotes for subscribed pairs arrive on.
func (w *WSFeed) Updates() <-chan domain.QuoteUpdate {
	return w.updates
}

// Dropped returns how many quotes were discarded because the Updates
// channel was full.
func (w *WSFeed) Dropped() uint64 {
	return w.dropped.Load()
}

// Close shuts down the connection and stops the read loop.
func (w *WSFeed) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

func subscribeCommand(typ string, pair domain.TokenPair) wsCommand {
	return wsCommand{
		Type:  typ,
		Base:  strings.ToLower(pair.Base.Address.Hex()),
		Quote: strings.ToLower(pair.Quote.Address.Hex()),
	}
}

// sendCommand sends a JSON command to the WebSocket. Caller must hold w.mu.
func (w *WSFeed) sendCommand(cmd wsCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages from the WebSocket and forwards
// subscribed quotes onto the updates channel. It runs in its own goroutine.
// On disconnect, it attempts to reconnect with exponential backoff.
func (w *WSFeed) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			// Check if we've been shut down.
			select {
			case <-w.done:
				return
			default:
			}

			w.logger.Warn("feed connection lost, reconnecting", slog.String("error", err.Error()))
			w.reconnect()
			return // readLoop is restarted by reconnect -> Connect
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the WebSocket alive.
func (w *WSFeed) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

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

// handleMessage parses a pushed message and forwards it if the pair is
// subscribed. The subscribed pair is used in the update so token symbols
// and decimals survive the address-only wire format.
func (w *WSFeed) handleMessage(raw []byte) {
	var msg wsQuote
	if err := json.Unmarshal(raw, &msg); err != nil {
		return // Silently drop unparseable messages.
	}
	if msg.Type != "quote" || msg.Price <= 0 {
		return
	}

	key := domain.NewTokenPair(
		domain.Token{Address: common.HexToAddress(msg.Base)},
		domain.Token{Address: common.HexToAddress(msg.Quote)},
	).Key()

	w.mu.RLock()
	pair, ok := w.subscriptions[key]
	w.mu.RUnlock()
	if !ok {
		return
	}

	ts := time.UnixMilli(msg.Timestamp).UTC()
	if msg.Timestamp == 0 {
		ts = time.Now().UTC()
	}

	update := domain.QuoteUpdate{
		VenueID: msg.Venue,
		Pair:    pair,
		Point: domain.PricePoint{
			Price:     msg.Price,
			Timestamp: ts,
			VenueID:   msg.Venue,
		},
	}

	select {
	case w.updates <- update:
	default:
		w.dropped.Add(1)
	}
}

// reconnect attempts to re-establish the WebSocket connection with
// exponential backoff. It blocks until successful or the feed is closed.
func (w *WSFeed) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
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
