// internal/websocket/client.go
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	wstypes "backoffice-console/internal/domain/websocket"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512KB

	defaultMinBackoff = time.Second
	defaultMaxBackoff = 30 * time.Second
)

// ErrNoToken is reported while there is no access token to connect with.
var ErrNoToken = errors.New("no access token for realtime connection")

type ClientConfig struct {
	// URL of the user service websocket endpoint, e.g. wss://users.example.com/ws.
	URL string
	// Token is read before every dial.
	Token func() string
	// Channels are subscribed right after connecting.
	Channels []wstypes.ChannelType

	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Client keeps a connection to the user service open and publishes every
// message it receives to a Hub.
type Client struct {
	cfg    ClientConfig
	hub    Publisher
	logger *zap.Logger
}

func NewClient(cfg ClientConfig, hub Publisher, logger *zap.Logger) *Client {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.Token == nil {
		cfg.Token = func() string { return "" }
	}
	return &Client{cfg: cfg, hub: hub, logger: logger}
}

// Run connects, pumps messages, and reconnects with capped exponential backoff
// until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.MinBackoff

	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = c.cfg.MinBackoff
		}
		if err != nil && !errors.Is(err, ErrNoToken) {
			c.logger.Warn("realtime connection lost", zap.Error(err), zap.Duration("retry_in", backoff))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

// session runs one connection to completion. connected reports whether the dial succeeded.
func (c *Client) session(ctx context.Context) (connected bool, err error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	c.logger.Info("realtime connected", zap.String("url", c.cfg.URL))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	send := make(chan *wstypes.WSMessage, 16)
	if len(c.cfg.Channels) > 0 {
		send <- wstypes.NewMessage(wstypes.EventTypeSubscribe, wstypes.SubscribeRequest{Channels: c.cfg.Channels})
	}

	writeErr := make(chan error, 1)
	go func() { writeErr <- c.writePump(ctx, conn, send) }()

	readErr := c.readPump(ctx, conn, send)
	cancel()
	if werr := <-writeErr; readErr == nil {
		readErr = werr
	}
	return true, readErr
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	token := c.cfg.Token()
	if token == "" {
		return nil, ErrNoToken
	}

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := c.cfg.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime handshake rejected with status %d", resp.StatusCode)
		}
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("failed to dial realtime endpoint: %w", err)
	}
	return conn, nil
}

// readPump handles incoming messages from the server
func (c *Client) readPump(ctx context.Context, conn *websocket.Conn, send chan<- *wstypes.WSMessage) error {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := wstypes.ParseMessage(data)
		if err != nil {
			c.logger.Warn("dropping malformed realtime message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case wstypes.EventTypePing:
			select {
			case send <- wstypes.NewMessage(wstypes.EventTypePong, nil):
			default:
			}
			continue
		case wstypes.EventTypeError:
			var e wstypes.ErrorData
			_ = msg.DecodeData(&e)
			c.logger.Warn("realtime server error", zap.String("code", e.Code), zap.String("message", e.Message))
			continue
		}

		if err := c.hub.Publish(ctx, msg); err != nil {
			return nil
		}
	}
}

// writePump handles outgoing messages and keepalive pings
func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, send <-chan *wstypes.WSMessage) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			// Unblock readPump if the server never answers the close frame.
			_ = conn.SetReadDeadline(time.Now().Add(writeWait))
			return nil

		case msg := <-send:
			data, err := msg.ToJSON()
			if err != nil {
				c.logger.Warn("failed to marshal realtime message", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
