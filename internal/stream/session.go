package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Hausmaster333/MirageGen/internal/metrics"
)

// Conn is the subset of a WebSocket connection a session uses.
type Conn interface {
	WriteJSON(v any) error
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens a Conn.
type Dialer interface {
	DialContext(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WebsocketDialer adapts a gorilla dialer to Dialer.
type WebsocketDialer struct {
	*websocket.Dialer
}

func (d WebsocketDialer) DialContext(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Handler receives the events of one session. Calls are made from the
// session's read goroutine, in arrival order. OnFinished is called exactly once.
type Handler interface {
	OnFrame(s *Session, f Frame)
	OnDropped(s *Session, err error)
	OnFinished(s *Session, r Result)
}

// Session is one generation request over a dedicated connection.
type Session struct {
	id      string
	conn    Conn
	handler Handler
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	closing bool
	once    sync.Once
	done    chan struct{}
	frames  int
}

func newSession(conn Conn, h Handler, timeout time.Duration, logger zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:      id,
		conn:    conn,
		handler: h,
		timeout: timeout,
		logger:  logger.With().Str("session", id).Logger(),
		done:    make(chan struct{}),
	}
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Done is closed once the terminal signal has been delivered.
func (s *Session) Done() <-chan struct{} { return s.done }

// Frames returns the number of frames delivered so far.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Close ends the session from the client side. The handler still receives
// its terminal signal, with ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.conn.Close()
}

func (s *Session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Session) send(text string) error {
	if err := s.conn.WriteJSON(ChatMessage{Type: TypeChat, Message: text}); err != nil {
		return fmt.Errorf("write chat: %w", err)
	}
	return nil
}

// readLoop delivers messages until a terminal message or a read error.
func (s *Session) readLoop() {
	for {
		if s.timeout > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
				s.finish(Result{Err: fmt.Errorf("set read deadline: %w", err)})
				return
			}
		}
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if s.isClosing() {
				s.finish(Result{Err: ErrSessionClosed})
			} else {
				s.finish(Result{Err: fmt.Errorf("read: %w", err)})
			}
			return
		}
		if s.handleMessage(raw) {
			return
		}
	}
}

// handleMessage processes one message and reports whether it was terminal.
func (s *Session) handleMessage(raw []byte) bool {
	// First parse to determine message type
	var typeMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &typeMsg); err != nil {
		s.drop("json", fmt.Errorf("%w: %v", ErrMalformedFrame, err))
		return false
	}

	switch typeMsg.Type {
	case TypeFrame:
		var msg FrameMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.drop("json", fmt.Errorf("%w: %v", ErrMalformedFrame, err))
			return false
		}
		frame, err := msg.Frame()
		if err != nil {
			s.drop("shape", err)
			return false
		}
		s.mu.Lock()
		s.frames++
		s.mu.Unlock()
		metrics.FramesApplied.Inc()
		s.handler.OnFrame(s, frame)
		return false

	case TypeDone:
		var msg DoneMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.drop("json", fmt.Errorf("%w: %v", ErrMalformedFrame, err))
			return false
		}
		s.logger.Info().
			Int("frames", s.Frames()).
			Float32("total_duration", msg.TotalDuration).
			Msg("Generation completed")
		s.finish(Result{FullText: msg.FullText, TotalDuration: msg.TotalDuration})
		return true

	case TypeError:
		var msg ErrorMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			msg.Message = "unreadable error message"
		}
		s.logger.Warn().Str("message", msg.Message).Msg("Server error")
		s.finish(Result{Err: &ServerError{Message: msg.Message}})
		return true

	default:
		s.drop("type", fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, typeMsg.Type))
		return false
	}
}

func (s *Session) drop(reason string, err error) {
	metrics.FramesDropped.WithLabelValues(reason).Inc()
	s.logger.Warn().Err(err).Msg("Dropping stream message")
	s.handler.OnDropped(s, err)
}

// finish closes the connection and delivers the terminal signal once.
func (s *Session) finish(r Result) {
	s.once.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		s.conn.Close()

		outcome := "done"
		var se *ServerError
		switch {
		case errors.Is(r.Err, ErrSessionClosed):
			outcome = "closed"
		case errors.As(r.Err, &se):
			outcome = "error"
		case r.Err != nil:
			outcome = "network"
		}
		metrics.SessionsFinished.WithLabelValues(outcome).Inc()

		s.handler.OnFinished(s, r)
		close(s.done)
	})
}
