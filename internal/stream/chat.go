package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Hausmaster333/MirageGen/internal/metrics"
	"github.com/Hausmaster333/MirageGen/internal/schema"
)

// ChatClient performs batched generations over HTTP.
type ChatClient struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewChatClient creates a new batched chat client
func NewChatClient(cfg Config, logger zerolog.Logger) *ChatClient {
	return &ChatClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger.With().Str("component", "chat").Logger(),
	}
}

func (c *ChatClient) endpoint(path string) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	u.Path = path
	return u.String(), nil
}

// Chat sends text and returns the complete response.
func (c *ChatClient) Chat(ctx context.Context, text string, history []schema.Message) (*schema.ChatResponse, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	body, err := json.Marshal(schema.ChatRequest{Message: text, ConversationHistory: history})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	target, err := c.endpoint(c.cfg.ChatPath)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug().Str("url", target).Msg("Sending chat request")
	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result schema.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	metrics.ChatLatency.Observe(time.Since(start).Seconds())
	c.logger.Info().
		Int("text_len", len(result.FullText)).
		Int("lipsync_frames", len(result.Blendshapes.Frames)).
		Int("keyframes", len(result.Motion.Keyframes)).
		Float64("processing_time", result.ProcessingTime).
		Msg("Chat response received")

	return &result, nil
}

// Health checks if the generation service is available
func (c *ChatClient) Health(ctx context.Context) (*schema.HealthResponse, error) {
	target, err := c.endpoint(c.cfg.HealthPath)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	var health schema.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &health, nil
}
