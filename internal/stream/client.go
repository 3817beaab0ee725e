package stream

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Hausmaster333/MirageGen/internal/bus"
	"github.com/Hausmaster333/MirageGen/internal/metrics"
)

// Config configures both generation endpoints.
type Config struct {
	BaseURL        string        `mapstructure:"base_url"`
	StreamPath     string        `mapstructure:"stream_path"`
	ChatPath       string        `mapstructure:"chat_path"`
	HealthPath     string        `mapstructure:"health_path"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"` // zero disables the idle timeout
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:8000",
		StreamPath:     "/api/v1/stream",
		ChatPath:       "/api/v1/chat",
		HealthPath:     "/api/v1/health",
		DialTimeout:    10 * time.Second,
		RequestTimeout: 120 * time.Second,
	}
}

// StreamURL returns the WebSocket URL of the stream endpoint.
func (c Config) StreamURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = c.StreamPath
	return u.String(), nil
}

// Client opens streamed sessions, at most one at a time. The lock is never
// held across network I/O.
type Client struct {
	cfg    Config
	dialer Dialer
	events bus.Publisher
	logger zerolog.Logger

	mu         sync.Mutex
	current    *Session
	epoch      uint64
	cancelDial context.CancelFunc
}

// NewClient creates a stream client. A nil dialer uses gorilla's default.
func NewClient(cfg Config, dialer Dialer, events bus.Publisher, logger zerolog.Logger) *Client {
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	if events == nil {
		events = bus.Nop{}
	}
	return &Client{
		cfg:    cfg,
		dialer: dialer,
		events: events,
		logger: logger.With().Str("component", "stream").Logger(),
	}
}

// Current returns the open session, if any.
func (c *Client) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Open closes any open session, then dials a new one and sends text as the
// initiating message. Events of the new session go to h.
func (c *Client) Open(ctx context.Context, text string, h Handler) (*Session, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	return c.OpenReserved(ctx, c.Reserve(), text, h)
}

// Reserve closes any open session, abandons any dial in flight and returns
// the ticket the next session must be opened with.
func (c *Client) Reserve() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return c.epoch
}

// OpenReserved opens a session with a ticket from Reserve. It fails with
// ErrSuperseded when Reserve or Close was called again before the session
// could be installed.
func (c *Client) OpenReserved(ctx context.Context, ticket uint64, text string, h Handler) (*Session, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	target, err := c.cfg.StreamURL()
	if err != nil {
		return nil, err
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if c.cfg.DialTimeout > 0 {
		dctx, cancel = context.WithTimeout(dctx, c.cfg.DialTimeout)
		defer cancel()
	}

	c.mu.Lock()
	if c.epoch != ticket {
		c.mu.Unlock()
		return nil, ErrSuperseded
	}
	c.cancelDial = cancel
	c.mu.Unlock()

	c.logger.Info().Str("url", target).Msg("Opening stream session")
	conn, err := c.dialer.DialContext(dctx, target, nil)
	if err != nil {
		if c.stale(ticket) {
			return nil, ErrSuperseded
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	if c.stale(ticket) {
		conn.Close()
		return nil, ErrSuperseded
	}

	s := newSession(conn, &trackingHandler{Handler: h, client: c}, c.cfg.SessionTimeout, c.logger)
	if err := s.send(text); err != nil {
		conn.Close()
		if c.stale(ticket) {
			return nil, ErrSuperseded
		}
		return nil, err
	}

	c.mu.Lock()
	if c.epoch != ticket {
		c.mu.Unlock()
		conn.Close()
		c.logger.Debug().Str("session", s.ID()).Msg("Discarding superseded stream session")
		return nil, ErrSuperseded
	}
	c.current = s
	c.cancelDial = nil
	c.mu.Unlock()

	metrics.SessionsOpened.Inc()
	c.events.Publish(bus.Event{
		Type: bus.EventStreamSessionOpened,
		Data: map[string]any{"session": s.ID()},
	})

	go s.readLoop()
	return s, nil
}

func (c *Client) stale(ticket uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch != ticket
}

// Close closes the open session, if any, and abandons any dial in flight.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	c.epoch++
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	if c.current == nil {
		return
	}
	c.logger.Debug().Str("session", c.current.ID()).Msg("Closing stream session")
	c.current.Close()
	c.current = nil
}

// release forgets s if it is still the open session.
func (c *Client) release(s *Session) {
	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()

	c.events.Publish(bus.Event{
		Type: bus.EventStreamSessionClosed,
		Data: map[string]any{"session": s.ID()},
	})
}

// trackingHandler clears the client's open session on the terminal signal.
type trackingHandler struct {
	Handler
	client *Client
}

func (t *trackingHandler) OnDropped(s *Session, err error) {
	t.client.events.Publish(bus.Event{
		Type: bus.EventStreamFrameDropped,
		Data: map[string]any{"session": s.ID(), "error": err.Error()},
	})
	t.Handler.OnDropped(s, err)
}

func (t *trackingHandler) OnFinished(s *Session, r Result) {
	t.client.release(s)
	t.Handler.OnFinished(s, r)
}
