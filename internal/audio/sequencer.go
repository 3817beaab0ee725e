package audio

import (
	"context"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"

	"github.com/Hausmaster333/MirageGen/internal/bus"
	"github.com/Hausmaster333/MirageGen/internal/metrics"
)

// Sequencer plays queued items strictly in arrival order, one at a time.
//
// It is not safe for concurrent use. Every method must be called from the
// goroutine that runs the functions handed to post; completions of in-flight
// segments are delivered back onto that goroutine through post.
type Sequencer struct {
	player Player
	store  *HandleStore
	post   func(func())
	events bus.Publisher
	logger zerolog.Logger

	queue   []Item
	current *segment
	state   State

	// Live targets of the current segment. Replaced wholesale, never merged.
	visemes map[string]float32
	motion  map[string]mgl32.Quat
}

type segment struct {
	item     Item
	handle   *Handle
	playback Playback
}

// NewSequencer creates an idle sequencer. post schedules a function on the
// owning goroutine as a new unit of work.
func NewSequencer(player Player, post func(func()), events bus.Publisher, logger zerolog.Logger) *Sequencer {
	if events == nil {
		events = bus.Nop{}
	}
	return &Sequencer{
		player: player,
		store:  NewHandleStore(),
		post:   post,
		events: events,
		logger: logger.With().Str("component", "audio_sequencer").Logger(),
		state:  StateIdle,
	}
}

// Store returns the handle store backing inline payloads.
func (s *Sequencer) Store() *HandleStore { return s.store }

// State returns the current playback state
func (s *Sequencer) State() State { return s.state }

// Active reports whether a segment is playing.
func (s *Sequencer) Active() bool { return s.state == StateActive }

// Len returns the number of items waiting behind the current one.
func (s *Sequencer) Len() int { return len(s.queue) }

// VisemeTargets returns the live viseme targets of the current segment.
func (s *Sequencer) VisemeTargets() map[string]float32 { return s.visemes }

// MotionTargets returns the live bone targets of the current segment.
func (s *Sequencer) MotionTargets() map[string]mgl32.Quat { return s.motion }

// Position returns the playback position of the current segment.
func (s *Sequencer) Position() time.Duration {
	if s.current == nil {
		return 0
	}
	return s.current.playback.Position()
}

// Current returns the item playing now.
func (s *Sequencer) Current() (Item, bool) {
	if s.current == nil {
		return Item{}, false
	}
	return s.current.item, true
}

// Enqueue appends item and starts it if nothing is playing.
func (s *Sequencer) Enqueue(item Item) {
	s.queue = append(s.queue, item)
	metrics.QueueDepth.Set(float64(len(s.queue)))

	s.logger.Debug().
		Str("item", item.ID).
		Int("queue_len", len(s.queue)).
		Msg("Audio queued for playback")

	if s.current == nil {
		s.playNext()
	}
}

// playNext starts the head of the queue. Items that fail to start are
// discarded and the next one is tried.
func (s *Sequencer) playNext() {
	for {
		if len(s.queue) == 0 {
			s.setIdle()
			return
		}

		item := s.queue[0]
		s.queue[0] = Item{}
		s.queue = s.queue[1:]
		metrics.QueueDepth.Set(float64(len(s.queue)))

		h := s.acquire(item.Payload)
		s.visemes = item.Visemes
		s.motion = item.Motion

		pb, err := s.player.Play(context.Background(), Segment{
			Handle:     h,
			SampleRate: item.Payload.SampleRate,
			Duration:   item.Payload.Duration,
		})
		if err != nil {
			h.Release()
			s.failed(item, err)
			continue
		}

		seg := &segment{item: item, handle: h, playback: pb}
		s.current = seg
		s.state = StateActive
		s.events.Publish(bus.Event{
			Type: bus.EventAudioSegmentStarted,
			Data: map[string]any{"item": item.ID},
		})
		go s.await(seg)
		return
	}
}

func (s *Sequencer) acquire(p Payload) *Handle {
	if p.Handle != nil {
		return p.Handle
	}
	return s.store.Acquire(p.Data, p.Format)
}

func (s *Sequencer) await(seg *segment) {
	err := <-seg.playback.Done()
	s.post(func() { s.finish(seg, err) })
}

// finish runs on the owning goroutine once seg has stopped. Completions of
// segments that were cleared in the meantime are ignored.
func (s *Sequencer) finish(seg *segment, err error) {
	if s.current != seg {
		return
	}
	s.current = nil
	seg.handle.Release()

	if err != nil {
		s.failed(seg.item, err)
	} else {
		metrics.SegmentsPlayed.Inc()
		s.events.Publish(bus.Event{
			Type: bus.EventAudioSegmentFinished,
			Data: map[string]any{"item": seg.item.ID},
		})
	}
	s.playNext()
}

func (s *Sequencer) failed(item Item, err error) {
	metrics.SegmentsFailed.Inc()
	s.logger.Warn().Err(err).Str("item", item.ID).Msg("Skipping audio segment")
	s.events.Publish(bus.Event{
		Type: bus.EventAudioSegmentFailed,
		Data: map[string]any{"item": item.ID, "error": err.Error()},
	})
}

func (s *Sequencer) setIdle() {
	s.state = StateIdle
	s.visemes = nil
	s.motion = nil
}

// Clear stops the current segment, drops everything queued and releases
// every transient handle involved.
func (s *Sequencer) Clear() {
	if s.current != nil {
		s.current.playback.Stop()
		s.current.handle.Release()
		s.current = nil
	}
	for _, item := range s.queue {
		if item.Payload.Handle != nil {
			item.Payload.Handle.Release()
		}
	}
	s.queue = nil
	metrics.QueueDepth.Set(0)
	s.setIdle()

	s.logger.Debug().Msg("Playback queue cleared")
}
