// Package audio plays queued speech segments one at a time and exposes the
// lip-sync and motion targets that belong to the segment currently playing.
package audio

import (
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// Common errors
var (
	ErrUndecodable    = errors.New("audio payload cannot be decoded")
	ErrEmptyPayload   = errors.New("audio payload is empty")
	ErrHandleReleased = errors.New("audio handle already released")
)

// Format represents audio encoding format
type Format string

const (
	FormatWAV  Format = "wav"
	FormatPCM  Format = "pcm"
	FormatMP3  Format = "mp3"
	FormatOpus Format = "opus"
)

// State is the playback state of the sequencer.
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
)

// Config holds audio defaults applied to payloads that omit them.
type Config struct {
	SampleRate int    `mapstructure:"sample_rate"`
	Format     Format `mapstructure:"format"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		SampleRate: 24000,
		Format:     FormatWAV,
	}
}

// Payload is one playable segment, either inline bytes or a transient handle.
type Payload struct {
	Format     Format
	SampleRate int
	Duration   time.Duration // declared duration; zero when unknown
	Data       []byte
	Handle     *Handle
}

// Item is one unit of streamed playback.
type Item struct {
	ID      string
	Payload Payload
	Visemes map[string]float32
	Motion  map[string]mgl32.Quat
}
