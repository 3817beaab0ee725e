package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hausmaster333/MirageGen/internal/schema"
)

func TestChatClient_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req schema.ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tell me a joke", req.Message)

		json.NewEncoder(w).Encode(schema.ChatResponse{
			FullText: "Why did the chicken...",
			Audio:    schema.AudioSegment{AudioBase64: "AAE=", SampleRate: 48000, Format: "wav", Duration: 1},
			Blendshapes: schema.BlendshapeWeights{
				Frames: []schema.BlendshapeFrame{{Timestamp: 0, MouthShapes: map[string]float32{"viseme_aa": 1}}},
				FPS:    30,
			},
			Motion:         schema.MotionKeyframes{Emotion: "happy", Duration: 2},
			ProcessingTime: 0.3,
		})
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	c := NewChatClient(cfg, zerolog.Nop())

	resp, err := c.Chat(context.Background(), "tell me a joke", nil)
	require.NoError(t, err)
	assert.Equal(t, "Why did the chicken...", resp.FullText)
	assert.Equal(t, "happy", resp.Motion.Emotion)
	assert.Len(t, resp.Blendshapes.Frames, 1)
}

func TestChatClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	c := NewChatClient(cfg, zerolog.Nop())

	_, err := c.Chat(context.Background(), "hello", nil)
	assert.ErrorContains(t, err, "status 500")

	_, err = c.Chat(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = c.Health(context.Background())
	assert.Error(t, err)
}

func TestChatClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/health", r.URL.Path)
		w.Write([]byte(`{"status":"healthy","components":{"llm":true,"tts":true}}`))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	h, err := NewChatClient(cfg, zerolog.Nop()).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.True(t, h.Components["tts"])
}
