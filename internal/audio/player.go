package audio

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

// Segment is what a Player needs to start one payload.
type Segment struct {
	Handle     *Handle
	SampleRate int
	Duration   time.Duration
}

// Player starts playback of one segment at a time.
type Player interface {
	Play(ctx context.Context, seg Segment) (Playback, error)
}

// Playback is a segment in flight. Done yields exactly one value: nil on
// natural completion, an error otherwise.
type Playback interface {
	Done() <-chan error
	Position() time.Duration
	Stop()
}

// ClockPlayer is a headless output device. It decodes enough of each payload
// to learn its length and then runs a wall clock for that long.
type ClockPlayer struct {
	cfg    Config
	logger zerolog.Logger
}

func NewClockPlayer(cfg Config, logger zerolog.Logger) *ClockPlayer {
	return &ClockPlayer{
		cfg:    cfg,
		logger: logger.With().Str("component", "clock_player").Logger(),
	}
}

// Play measures seg and starts its clock.
func (p *ClockPlayer) Play(ctx context.Context, seg Segment) (Playback, error) {
	if seg.Handle == nil {
		return nil, ErrEmptyPayload
	}
	data, err := seg.Handle.Bytes()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	rate := seg.SampleRate
	if rate <= 0 {
		rate = p.cfg.SampleRate
	}
	dur, err := Measure(seg.Handle.Format(), data, rate, seg.Duration)
	if err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("handle", seg.Handle.ID()).
		Dur("duration", dur).
		Msg("Segment playback started")

	return startClock(ctx, dur), nil
}

// Measure returns the playable length of an encoded payload. WAV headers are
// decoded; raw PCM is assumed 16-bit mono at sampleRate; other formats rely on
// the declared duration.
func Measure(format Format, data []byte, sampleRate int, declared time.Duration) (time.Duration, error) {
	switch {
	case format == FormatWAV || bytes.HasPrefix(data, []byte("RIFF")):
		dec := wav.NewDecoder(bytes.NewReader(data))
		if !dec.IsValidFile() {
			return 0, fmt.Errorf("%w: invalid wav header", ErrUndecodable)
		}
		d, err := dec.Duration()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUndecodable, err)
		}
		return d, nil
	case format == FormatPCM && sampleRate > 0:
		samples := len(data) / 2
		return time.Duration(samples) * time.Second / time.Duration(sampleRate), nil
	case declared > 0:
		return declared, nil
	default:
		return 0, fmt.Errorf("%w: unknown length for format %q", ErrUndecodable, format)
	}
}

type clockPlayback struct {
	start    time.Time
	duration time.Duration
	done     chan error
	stop     chan struct{}
	once     sync.Once
}

func startClock(ctx context.Context, d time.Duration) *clockPlayback {
	pb := &clockPlayback{
		start:    time.Now(),
		duration: d,
		done:     make(chan error, 1),
		stop:     make(chan struct{}),
	}
	go pb.run(ctx)
	return pb
}

func (pb *clockPlayback) run(ctx context.Context) {
	t := time.NewTimer(pb.duration)
	defer t.Stop()

	select {
	case <-t.C:
		pb.done <- nil
	case <-ctx.Done():
		pb.done <- ctx.Err()
	case <-pb.stop:
		pb.done <- context.Canceled
	}
}

func (pb *clockPlayback) Done() <-chan error { return pb.done }

func (pb *clockPlayback) Position() time.Duration {
	el := time.Since(pb.start)
	if el > pb.duration {
		return pb.duration
	}
	return el
}

func (pb *clockPlayback) Stop() {
	pb.once.Do(func() { close(pb.stop) })
}
