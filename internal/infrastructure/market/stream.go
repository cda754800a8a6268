package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// StreamClient maintains a websocket subscription to the quote stream and
// keeps the latest quote per symbol. Read-side access is lock protected;
// the single reader goroutine is the only writer.
type StreamClient struct {
	url     string
	symbols []string

	mu        sync.RWMutex
	conn      *websocket.Conn
	latest    map[string]Quote
	connected bool

	reconnectCh chan struct{}
	closeCh     chan struct{}
	closeOnce   sync.Once
}

// NewStreamClient builds a stream client for the given symbols. Start must
// be called before quotes are available.
func NewStreamClient(url string, symbols []string) *StreamClient {
	return &StreamClient{
		url:         url,
		symbols:     symbols,
		latest:      make(map[string]Quote),
		reconnectCh: make(chan struct{}, 1),
		closeCh:     make(chan struct{}),
	}
}

type streamMessage struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
	Volume    int64   `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

type subscribeRequest struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

// Start connects and consumes the stream until ctx is done or Close is
// called, reconnecting with backoff on failure.
func (c *StreamClient) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *StreamClient) run(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		default:
		}

		if err := c.connect(ctx); err != nil {
			log.Warn().Err(err).Str("url", c.url).Msg("Quote stream connect failed")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			case <-c.closeCh:
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		c.readLoop(ctx)
	}
}

func (c *StreamClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	sub := subscribeRequest{Op: "subscribe", Symbols: c.symbols}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	log.Info().Strs("symbols", c.symbols).Msg("Quote stream connected")
	return nil
}

func (c *StreamClient) readLoop(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("Quote stream read failed, reconnecting")
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != "quote" || msg.Symbol == "" {
			continue
		}

		c.mu.Lock()
		c.latest[msg.Symbol] = Quote{
			Symbol:    msg.Symbol,
			Price:     msg.Price,
			ChangePct: msg.ChangePct,
			Volume:    msg.Volume,
			Timestamp: time.Unix(msg.Timestamp, 0).UTC(),
		}
		c.mu.Unlock()
	}
}

// Latest returns the most recent quote for symbol, if one has arrived.
func (c *StreamClient) Latest(symbol string) (Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.latest[symbol]
	return q, ok
}

// Snapshot copies the current quote book.
func (c *StreamClient) Snapshot() map[string]Quote {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Quote, len(c.latest))
	for k, v := range c.latest {
		out[k] = v
	}
	return out
}

// Connected reports whether the stream is currently up.
func (c *StreamClient) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close shuts the stream down permanently.
func (c *StreamClient) Close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	})
}
