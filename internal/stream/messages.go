// Package stream implements the streamed generation protocol over a
// WebSocket session and the batched chat call over HTTP.
package stream

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Hausmaster333/MirageGen/internal/schema"
)

// Common errors
var (
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrSessionClosed  = errors.New("session closed")
	ErrSuperseded     = errors.New("session superseded")
	ErrMalformedFrame = errors.New("malformed frame")
)

// Message types on the wire.
const (
	TypeChat  = "chat"
	TypeFrame = "frame"
	TypeDone  = "done"
	TypeError = "error"
)

// ChatMessage opens a generation on a session.
type ChatMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// FrameMessage carries any subset of a text increment, one audio segment,
// sparse viseme weights and sparse bone targets.
type FrameMessage struct {
	Type        string               `json:"type"`
	Timestamp   float32              `json:"timestamp"`
	TextChunk   string               `json:"text_chunk,omitempty"`
	AudioChunk  string               `json:"audio_chunk,omitempty"`
	Blendshapes map[string]float32   `json:"blendshapes,omitempty"`
	Motion      map[string][]float32 `json:"motion,omitempty"`
}

// DoneMessage ends a generation successfully.
type DoneMessage struct {
	Type          string  `json:"type"`
	FullText      string  `json:"full_text"`
	TotalDuration float32 `json:"total_duration"`
}

// ErrorMessage ends a generation with a failure.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Frame is a validated frame message.
type Frame struct {
	Timestamp float32
	Text      string
	Audio     []byte
	Visemes   map[string]float32
	Motion    map[string]mgl32.Quat
}

// Frame validates the message and decodes its payloads.
func (m FrameMessage) Frame() (Frame, error) {
	f := Frame{Timestamp: m.Timestamp, Text: m.TextChunk}
	if m.Timestamp < 0 || isBad(m.Timestamp) {
		return Frame{}, fmt.Errorf("%w: bad timestamp", ErrMalformedFrame)
	}
	if m.AudioChunk != "" {
		data, err := schema.DecodeAudio(m.AudioChunk)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
		f.Audio = data
	}
	if len(m.Blendshapes) > 0 {
		for name, w := range m.Blendshapes {
			if isBad(w) {
				return Frame{}, fmt.Errorf("%w: blendshape %q is not finite", ErrMalformedFrame, name)
			}
		}
		f.Visemes = m.Blendshapes
	}
	if len(m.Motion) > 0 {
		motion, err := schema.QuatMap(m.Motion)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
		f.Motion = motion
	}
	return f, nil
}

func isBad(v float32) bool {
	return math.IsNaN(float64(v)) || math.IsInf(float64(v), 0)
}

// Result is the terminal outcome of a session.
type Result struct {
	FullText      string
	TotalDuration float32
	Err           error
}

// ServerError is an error message sent by the server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server: " + e.Message
}
