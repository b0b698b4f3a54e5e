package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"swap-guard/internal/domain"
)

// FeedClientConfig configures FeedClient behavior.
type FeedClientConfig struct {
	ReconnectDelay    time.Duration // first pause after a dropped session
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration // extended by every message and pong
	WriteTimeout      time.Duration
	HandshakeTimeout  time.Duration
	Buffer            int // capacity of the events channel
}

// DefaultFeedClientConfig returns default feed client configuration.
func DefaultFeedClientConfig() FeedClientConfig {
	return FeedClientConfig{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		Buffer:            256,
	}
}

// FeedClient follows the event feed of one identity. A dropped session is
// redialed with exponential backoff until Close; events published while
// disconnected are lost. A normal or policy close from the server ends the
// feed for good.
type FeedClient struct {
	endpoint string
	config   FeedClientConfig
	dialer   websocket.Dialer
	logger   *log.Logger

	events chan domain.Event

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// DialFeed connects to the feed at baseURL (ws:// or wss://) for identity.
// The first dial must succeed; later ones are retried in the background.
func DialFeed(ctx context.Context, baseURL, identity string, config *FeedClientConfig, logger *log.Logger) (*FeedClient, error) {
	cfg := DefaultFeedClientConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("identity", identity)
	u.RawQuery = q.Encode()

	c := &FeedClient{
		endpoint: u.String(),
		config:   cfg,
		dialer:   websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger:   logger,
		events:   make(chan domain.Event, cfg.Buffer),
		done:     make(chan struct{}),
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(runCtx, conn)
	return c, nil
}

// Events returns the channel of decoded events. It is closed once the feed ends.
func (c *FeedClient) Events() <-chan domain.Event {
	return c.events
}

// Close ends the feed and waits for the events channel to be closed.
func (c *FeedClient) Close() error {
	c.cancel()
	c.mu.Lock()
	if c.conn != nil {
		deadline := time.Now().Add(c.config.WriteTimeout)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.conn.Close()
	}
	c.mu.Unlock()
	<-c.done
	return nil
}

func (c *FeedClient) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// run owns the connection lifecycle: one session per connection, then
// backoff and redial.
func (c *FeedClient) run(ctx context.Context, conn *websocket.Conn) {
	defer close(c.done)
	defer close(c.events)

	delay := c.config.ReconnectDelay
	for {
		err := c.session(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.ClosePolicyViolation) {
			c.logger.Printf("Feed closed by server: %v", err)
			return
		}
		c.logger.Printf("Feed session ended: %v", err)

		for conn = nil; conn == nil; {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if conn, err = c.dial(ctx); err != nil {
				c.logger.Printf("Feed reconnect failed, retrying in %s: %v", delay, err)
				delay = min(delay*2, c.config.MaxReconnectDelay)
			}
		}
		delay = c.config.ReconnectDelay
	}
}

// session reads events from conn until it fails or ctx ends.
func (c *FeedClient) session(ctx context.Context, conn *websocket.Conn) error {
	c.mu.Lock()
	if err := ctx.Err(); err != nil {
		c.mu.Unlock()
		conn.Close()
		return err
	}
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	extend := func() { conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)) }
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go c.ping(conn, stopPing)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		extend()

		var ev domain.Event
		if err := json.Unmarshal(message, &ev); err != nil {
			c.logger.Printf("Feed: skipping undecodable message: %v", err)
			continue
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ping sends keepalives until stop is closed. A failed ping closes conn,
// which unblocks the session's read.
func (c *FeedClient) ping(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				conn.Close()
				return
			}
		}
	}
}
