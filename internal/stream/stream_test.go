package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu       sync.Mutex
	frames   []Frame
	dropped  []error
	finished []Result
}

func (h *recordingHandler) OnFrame(_ *Session, f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, f)
}

func (h *recordingHandler) OnDropped(_ *Session, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropped = append(h.dropped, err)
}

func (h *recordingHandler) OnFinished(_ *Session, r Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished = append(h.finished, r)
}

func (h *recordingHandler) snapshot() ([]Frame, []error, []Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Frame(nil), h.frames...), append([]error(nil), h.dropped...), append([]Result(nil), h.finished...)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session never finished")
	}
}

// scriptedServer answers one chat message with the given raw messages and
// then waits for the client to hang up.
func scriptedServer(t *testing.T, script ...string) (*httptest.Server, <-chan ChatMessage) {
	t.Helper()
	received := make(chan ChatMessage, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req ChatMessage
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		received <- req
		for _, m := range script {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return srv, received
}

func testClient(url string) *Client {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	return NewClient(cfg, nil, nil, zerolog.Nop())
}

func TestSession_FramesThenDone(t *testing.T) {
	srv, received := scriptedServer(t,
		`{"type":"frame","timestamp":0.1,"text_chunk":"Hel","audio_chunk":"AAEC","blendshapes":{"viseme_aa":0.5}}`,
		`{"type":"frame","timestamp":0.2,"text_chunk":"lo","motion":{"head":[0,0,0,1]}}`,
		`{"type":"done","full_text":"Hello","total_duration":0.2}`,
	)
	c := testClient(srv.URL)
	h := &recordingHandler{}

	s, err := c.Open(context.Background(), "hi there", h)
	require.NoError(t, err)
	assert.Equal(t, ChatMessage{Type: TypeChat, Message: "hi there"}, <-received)

	waitDone(t, s)
	frames, dropped, finished := h.snapshot()
	require.Len(t, frames, 2)
	assert.Empty(t, dropped)
	require.Len(t, finished, 1)

	assert.Equal(t, "Hel", frames[0].Text)
	assert.Equal(t, []byte{0, 1, 2}, frames[0].Audio)
	assert.Equal(t, float32(0.5), frames[0].Visemes["viseme_aa"])
	assert.Equal(t, float32(1), frames[1].Motion["head"].W)

	assert.NoError(t, finished[0].Err)
	assert.Equal(t, "Hello", finished[0].FullText)
	assert.Equal(t, float32(0.2), finished[0].TotalDuration)
	assert.Nil(t, c.Current())
}

func TestSession_ErrorIsTerminal(t *testing.T) {
	srv, _ := scriptedServer(t,
		`{"type":"frame","timestamp":0.1,"text_chunk":"Hel"}`,
		`{"type":"error","message":"tts failed"}`,
		`{"type":"frame","timestamp":0.2,"text_chunk":"ignored"}`,
	)
	c := testClient(srv.URL)
	h := &recordingHandler{}

	s, err := c.Open(context.Background(), "hi", h)
	require.NoError(t, err)
	waitDone(t, s)

	frames, _, finished := h.snapshot()
	assert.Len(t, frames, 1)
	require.Len(t, finished, 1)
	var se *ServerError
	require.True(t, errors.As(finished[0].Err, &se))
	assert.Equal(t, "tts failed", se.Message)
}

func TestSession_MalformedFramesAreDropped(t *testing.T) {
	srv, _ := scriptedServer(t,
		`{"type":"frame","timestamp":0.1,"motion":{"head":[0,0,1]}}`,
		`{"type":"frame","timestamp":0.2,"audio_chunk":"not base64!"}`,
		`not json`,
		`{"type":"mystery"}`,
		`{"type":"frame","timestamp":0.3,"text_chunk":"ok"}`,
		`{"type":"done","full_text":"ok","total_duration":0.3}`,
	)
	c := testClient(srv.URL)
	h := &recordingHandler{}

	s, err := c.Open(context.Background(), "hi", h)
	require.NoError(t, err)
	waitDone(t, s)

	frames, dropped, finished := h.snapshot()
	assert.Len(t, frames, 1)
	assert.Len(t, dropped, 4)
	for _, err := range dropped {
		assert.ErrorIs(t, err, ErrMalformedFrame)
	}
	require.Len(t, finished, 1)
	assert.NoError(t, finished[0].Err)
}

func TestSession_ServerHangUp(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.ReadMessage()
		conn.Close()
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	h := &recordingHandler{}
	s, err := c.Open(context.Background(), "hi", h)
	require.NoError(t, err)
	waitDone(t, s)

	_, _, finished := h.snapshot()
	require.Len(t, finished, 1)
	assert.Error(t, finished[0].Err)
	assert.NotErrorIs(t, finished[0].Err, ErrSessionClosed)
}

func TestSession_IdleTimeout(t *testing.T) {
	srv, _ := scriptedServer(t)
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.SessionTimeout = 50 * time.Millisecond
	c := NewClient(cfg, nil, nil, zerolog.Nop())
	h := &recordingHandler{}

	s, err := c.Open(context.Background(), "hi", h)
	require.NoError(t, err)
	waitDone(t, s)

	_, _, finished := h.snapshot()
	require.Len(t, finished, 1)
	assert.Error(t, finished[0].Err)
}

type fakeConn struct {
	mu          sync.Mutex
	deadlineErr error
	written  []any
	closes   int
	incoming chan []byte
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan []byte, 8), closed: make(chan struct{})}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, v)
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case m := <-c.incoming:
		return websocket.TextMessage, m, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return c.deadlineErr }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type fakeDialer struct {
	mu          sync.Mutex
	conns       []*fakeConn
	deadlineErr error

	gate    chan struct{} // when set, dials wait on it
	entered chan struct{}
}

func (d *fakeDialer) DialContext(context.Context, string, http.Header) (Conn, error) {
	if d.gate != nil {
		d.entered <- struct{}{}
		<-d.gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c := newFakeConn()
	c.deadlineErr = d.deadlineErr
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialed() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

func TestClient_NewSessionClosesPrior(t *testing.T) {
	d := &fakeDialer{}
	c := NewClient(DefaultConfig(), d, nil, zerolog.Nop())

	h1 := &recordingHandler{}
	first, err := c.Open(context.Background(), "one", h1)
	require.NoError(t, err)

	h2 := &recordingHandler{}
	second, err := c.Open(context.Background(), "two", h2)
	require.NoError(t, err)

	waitDone(t, first)
	require.Len(t, d.conns, 2)
	assert.Equal(t, 0, d.conns[1].closeCount(), "new session stays open")
	assert.GreaterOrEqual(t, d.conns[0].closeCount(), 1)
	assert.Same(t, second, c.Current())

	_, _, finished := h1.snapshot()
	require.Len(t, finished, 1)
	assert.ErrorIs(t, finished[0].Err, ErrSessionClosed)

	_, _, finished = h2.snapshot()
	assert.Empty(t, finished)

	c.Close()
	waitDone(t, second)
	assert.Nil(t, c.Current())
}

func TestClient_RejectsEmptyMessage(t *testing.T) {
	d := &fakeDialer{}
	c := NewClient(DefaultConfig(), d, nil, zerolog.Nop())

	_, err := c.Open(context.Background(), "   ", &recordingHandler{})
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, d.conns)
}

func TestConfig_StreamURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://avatar.example.com"
	u, err := cfg.StreamURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://avatar.example.com/api/v1/stream", u)
}

func TestSession_ReadDeadlineFailureFinishes(t *testing.T) {
	d := &fakeDialer{deadlineErr: errors.New("deadline unsupported")}
	cfg := DefaultConfig()
	cfg.SessionTimeout = time.Second
	c := NewClient(cfg, d, nil, zerolog.Nop())
	h := &recordingHandler{}

	s, err := c.Open(context.Background(), "hi", h)
	require.NoError(t, err)
	waitDone(t, s)

	_, _, finished := h.snapshot()
	require.Len(t, finished, 1)
	assert.ErrorContains(t, finished[0].Err, "deadline unsupported")
	assert.Nil(t, c.Current())
}

func TestClient_CloseDoesNotWaitForDial(t *testing.T) {
	d := &fakeDialer{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := NewClient(DefaultConfig(), d, nil, zerolog.Nop())

	opened := make(chan error, 1)
	go func() {
		_, err := c.Open(context.Background(), "slow", &recordingHandler{})
		opened <- err
	}()
	<-d.entered

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind a dial")
	}

	close(d.gate)
	select {
	case err := <-opened:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("Open never returned")
	}

	conns := d.dialed()
	require.Len(t, conns, 1)
	assert.GreaterOrEqual(t, conns[0].closeCount(), 1)
	assert.Nil(t, c.Current())
}

func TestClient_StaleTicketIsRejected(t *testing.T) {
	d := &fakeDialer{}
	c := NewClient(DefaultConfig(), d, nil, zerolog.Nop())

	older := c.Reserve()
	newer := c.Reserve()

	_, err := c.OpenReserved(context.Background(), older, "one", &recordingHandler{})
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.Empty(t, d.dialed())

	s, err := c.OpenReserved(context.Background(), newer, "two", &recordingHandler{})
	require.NoError(t, err)
	assert.Same(t, s, c.Current())

	c.Close()
	waitDone(t, s)
}
