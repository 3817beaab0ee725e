package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Hausmaster333/MirageGen/internal/audio"
	"github.com/Hausmaster333/MirageGen/internal/avatar3d"
	"github.com/Hausmaster333/MirageGen/internal/metrics"
	"github.com/Hausmaster333/MirageGen/internal/schema"
	"github.com/Hausmaster333/MirageGen/internal/stream"
)

// Ask starts a streamed generation for text. Any session or playback still
// running is abandoned first. Ask returns once the session is open; frames
// are applied as they arrive.
func (e *Engine) Ask(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return stream.ErrEmptyMessage
	}
	if e.deps.Stream == nil {
		return ErrNoStreamClient
	}

	var gen, ticket uint64
	if err := e.do(ctx, func() {
		gen = e.begin()
		ticket = e.deps.Stream.Reserve()
		e.avatar.Visemes.UseLive()
	}); err != nil {
		return err
	}

	// The dial runs off the loop. A newer request or Stop in the meantime
	// invalidates the ticket, so only the latest Ask installs its session.
	_, err := e.deps.Stream.OpenReserved(ctx, ticket, text, &sessionHandler{e: e, gen: gen})
	if errors.Is(err, stream.ErrSuperseded) {
		return ErrSuperseded
	}
	if err != nil {
		e.post(func() {
			if gen == e.gen {
				e.fail(err)
			}
		})
		return err
	}
	return nil
}

// sessionHandler moves session events onto the loop. Events of a session
// that has since been replaced are ignored.
type sessionHandler struct {
	e   *Engine
	gen uint64
}

func (h *sessionHandler) OnFrame(s *stream.Session, f stream.Frame) {
	h.e.post(func() {
		if h.gen == h.e.gen {
			h.e.applyFrame(s, f)
		}
	})
}

func (h *sessionHandler) OnDropped(*stream.Session, error) {}

func (h *sessionHandler) OnFinished(s *stream.Session, r stream.Result) {
	h.e.post(func() {
		if h.gen != h.e.gen {
			return
		}
		if r.Err != nil {
			h.e.fail(r.Err)
			return
		}
		if r.FullText != "" {
			h.e.transcript.Reset()
			h.e.transcript.WriteString(r.FullText)
		}
		h.e.logger.Info().
			Str("session", s.ID()).
			Int("frames", s.Frames()).
			Float32("total_duration", r.TotalDuration).
			Msg("Stream finished")
		h.e.end(nil, r.TotalDuration)
	})
}

func (e *Engine) applyFrame(s *stream.Session, f stream.Frame) {
	e.transcript.WriteString(f.Text)
	if len(f.Audio) == 0 {
		return
	}
	e.seq.Enqueue(audio.Item{
		ID: e.nextItemID(s.ID()),
		Payload: audio.Payload{
			Format:     e.deps.Audio.Format,
			SampleRate: e.deps.Audio.SampleRate,
			Data:       f.Audio,
		},
		Visemes: f.Visemes,
		Motion:  f.Motion,
	})
}

// Chat performs a batched generation for text and plays the complete
// response: audio, baked lip-sync and a one-shot body clip.
func (e *Engine) Chat(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return stream.ErrEmptyMessage
	}
	if e.deps.Chat == nil {
		return ErrNoChatService
	}

	var gen uint64
	var history []schema.Message
	if err := e.do(ctx, func() {
		gen = e.begin()
		history = append([]schema.Message(nil), e.history...)
	}); err != nil {
		return err
	}

	resp, err := e.deps.Chat.Chat(ctx, text, history)

	var result error
	if derr := e.do(context.Background(), func() {
		if gen != e.gen {
			result = ErrSuperseded
			return
		}
		if err != nil {
			e.fail(err)
			result = err
			return
		}
		e.applyResponse(text, resp)
	}); derr != nil {
		return derr
	}
	return result
}

func (e *Engine) applyResponse(text string, resp *schema.ChatResponse) {
	e.seq.Clear()
	e.transcript.Reset()
	e.transcript.WriteString(resp.FullText)
	e.history = append(e.history,
		schema.Message{Role: "user", Content: text},
		schema.Message{Role: "assistant", Content: resp.FullText},
	)

	e.avatar.Visemes.UseTimeline(resp.Blendshapes.Timeline())

	duration := resp.Audio.Duration
	payload, err := resp.Audio.Payload()
	if err != nil {
		e.logger.Warn().Err(err).Msg("Dropping response audio")
	} else {
		if payload.Format == "" {
			payload.Format = e.deps.Audio.Format
		}
		if payload.SampleRate == 0 {
			payload.SampleRate = e.deps.Audio.SampleRate
		}
		e.seq.Enqueue(audio.Item{ID: e.nextItemID("chat"), Payload: payload})
	}
	if duration <= 0 {
		duration = resp.Blendshapes.Duration
	}

	clip, err := e.responseClip(resp.Motion, duration)
	if err != nil {
		metrics.ClipBuildFailures.Inc()
		e.logger.Warn().Err(err).Msg("Response clip not playable")
	}

	e.end(nil, duration)
	if clip != nil {
		e.avatar.Mixer.PlayResponse(clip)
		e.publishState()
	}
}

// responseClip builds the response motion, or the emotion's preset gesture
// when the response carries no keyframes.
func (e *Engine) responseClip(m schema.MotionKeyframes, duration float32) (*avatar3d.AnimationClip, error) {
	if len(m.Keyframes) == 0 && e.deps.Presets != nil && duration > 0 {
		emotion := m.Emotion
		if emotion == "" {
			emotion = schema.EmotionNeutral
		}
		preset, err := e.deps.Presets.ForEmotion(emotion, duration)
		if err != nil {
			return nil, err
		}
		return preset.Clip("response")
	}
	return m.Clip("response")
}

// Gesture plays the preset gesture for emotion as a one-shot clip lasting
// duration seconds.
func (e *Engine) Gesture(ctx context.Context, emotion string, duration time.Duration) error {
	if e.deps.Presets == nil {
		return ErrNoPresets
	}
	m, err := e.deps.Presets.ForEmotion(emotion, float32(duration.Seconds()))
	if err != nil {
		return err
	}
	clip, err := m.Clip("gesture_" + emotion)
	if err != nil {
		metrics.ClipBuildFailures.Inc()
		return err
	}
	return e.do(ctx, func() {
		e.avatar.Mixer.PlayResponse(clip)
		e.publishState()
	})
}
