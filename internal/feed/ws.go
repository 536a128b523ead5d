package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"tickvault/internal/domain"
)

type WSConfig struct {
	BaseURL        string // default wss://stream.binance.com:9443/stream
	Symbol         string
	StreamType     string        // default "trade"
	ReconnectDelay time.Duration // fixed, no backoff growth
}

func (c *WSConfig) withDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "wss://stream.binance.com:9443/stream"
	}
	if c.StreamType == "" {
		c.StreamType = "trade"
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
}

// wsConn is the slice of *websocket.Conn the client reads from; tests
// swap in a scripted connection.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	Close() error
}

// WSClient streams combined-stream frames from the exchange WebSocket
// endpoint. Any connection-level failure is logged and followed by a
// fixed reconnect delay; the upstream is generally available, so the
// delay deliberately does not grow.
type WSClient struct {
	cfg  WSConfig
	url  string
	log  *slog.Logger
	dial func(ctx context.Context, url string) (wsConn, error)
}

func NewWSClient(cfg WSConfig, log *slog.Logger) *WSClient {
	cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	streamName := fmt.Sprintf("%s@%s", strings.ToLower(cfg.Symbol), cfg.StreamType)
	c := &WSClient{
		cfg: cfg,
		url: fmt.Sprintf("%s?streams=%s", cfg.BaseURL, streamName),
		log: log,
	}
	c.dial = func(ctx context.Context, url string) (wsConn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	c.log.Info("initialized ws client", "stream", streamName)
	return c
}

// frame is the combined-stream envelope; only the data object is
// forwarded.
type frame struct {
	Stream string       `json:"stream"`
	Data   domain.Event `json:"data"`
}

// Run connects and streams until ctx is cancelled. It loops forever:
// dial, read frames, hand each data object to h, and on any connection
// error reconnect after the fixed delay. Returns ctx.Err() once
// cancelled.
func (c *WSClient) Run(ctx context.Context, h Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.log.Info("connecting", "url", c.url)
		conn, err := c.dial(ctx, c.url)
		if err != nil {
			c.log.Error("websocket connect failed", "err", err)
		} else {
			c.log.Info("websocket connected")
			c.readLoop(ctx, conn, h)
			_ = conn.Close()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		c.log.Info("reconnecting", "delay", c.cfg.ReconnectDelay)
		if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
			return ctx.Err()
		}
	}
}

// readLoop reads frames until the connection fails or ctx is cancelled.
// A decode failure skips only that frame.
func (c *WSClient) readLoop(ctx context.Context, conn wsConn, h Handler) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.log.Warn("websocket read failed", "err", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		var fr frame
		if err := json.Unmarshal(msg, &fr); err != nil {
			c.log.Error("failed to decode frame", "err", err)
			continue
		}
		if fr.Data == nil {
			c.log.Warn("unexpected frame format", "frame", string(msg))
			continue
		}
		h(fr.Data)
	}
}

// sleepCtx sleeps for d unless ctx is cancelled first; reports whether
// the full delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
