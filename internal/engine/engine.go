// Package engine runs the avatar: one goroutine owns every animation and
// playback component, advancing them on a fixed tick and applying network
// results and audio completions as queued units of work between ticks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Hausmaster333/MirageGen/internal/audio"
	"github.com/Hausmaster333/MirageGen/internal/avatar3d"
	"github.com/Hausmaster333/MirageGen/internal/bus"
	"github.com/Hausmaster333/MirageGen/internal/metrics"
	"github.com/Hausmaster333/MirageGen/internal/presets"
	"github.com/Hausmaster333/MirageGen/internal/schema"
	"github.com/Hausmaster333/MirageGen/internal/stream"
)

var (
	ErrNotStarted     = errors.New("engine not started")
	ErrStarted        = errors.New("engine already started")
	ErrStopped        = errors.New("engine stopped")
	ErrSuperseded     = errors.New("request superseded by a newer one")
	ErrNoChatService  = errors.New("no chat service configured")
	ErrNoStreamClient = errors.New("no stream client configured")
	ErrNoPresets      = errors.New("no preset library configured")
)

// maxTick bounds the time step of one tick so a stalled loop does not
// jump animations forward.
const maxTick = 100 * time.Millisecond

// ChatService performs batched generation requests.
type ChatService interface {
	Chat(ctx context.Context, text string, history []schema.Message) (*schema.ChatResponse, error)
}

// Deps are the collaborators of an engine. Player is required; the others
// may be left nil to disable the matching request path.
type Deps struct {
	Player  audio.Player
	Stream  *stream.Client
	Chat    ChatService
	Presets *presets.Library
	Audio   audio.Config
	Events  bus.Publisher
	Logger  zerolog.Logger
}

// Snapshot is a copy of the avatar state at the end of a unit of work.
type Snapshot struct {
	State      avatar3d.PlaybackState
	Generating bool
	Transcript string
	IdleWeight float32
	Speaking   bool
	QueueLen   int
	Visemes    avatar3d.MorphWeights
	Pose       avatar3d.Pose
}

// Engine owns the avatar. Every exported method is safe for concurrent use;
// internally they hand work to the loop goroutine.
type Engine struct {
	cfg     Config
	deps    Deps
	events  bus.Publisher
	logger  zerolog.Logger
	avatar  *avatar3d.Avatar
	seq     *audio.Sequencer
	work    chan func()
	stop    chan struct{}
	done    chan struct{}
	started atomic.Bool
	once    sync.Once

	// Owned by the loop goroutine.
	gen        uint64
	generating bool
	transcript strings.Builder
	history    []schema.Message
	state      avatar3d.PlaybackState
	lastTick   time.Time
	items      int
}

// New builds an engine with the idle and thinking clips from the preset
// library. Without a library the avatar rests in its bind pose.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Player == nil {
		return nil, errors.New("engine: audio player is required")
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultConfig().TickRate
	}
	if cfg.WorkQueue <= 0 {
		cfg.WorkQueue = DefaultConfig().WorkQueue
	}
	if deps.Events == nil {
		deps.Events = bus.Nop{}
	}
	if deps.Audio.Format == "" {
		deps.Audio = audio.DefaultConfig()
	}

	e := &Engine{
		cfg:    cfg,
		deps:   deps,
		events: deps.Events,
		logger: deps.Logger.With().Str("component", "engine").Logger(),
		work:   make(chan func(), cfg.WorkQueue),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		state:  avatar3d.StateIdle,
	}

	var idle, thinking *avatar3d.AnimationClip
	if deps.Presets != nil {
		var err error
		if idle, thinking, err = loopClips(deps.Presets); err != nil {
			return nil, err
		}
	}

	e.avatar = avatar3d.NewAvatar(idle, thinking, cfg.Avatar(), e)
	e.seq = audio.NewSequencer(deps.Player, e.post, deps.Events, deps.Logger)
	return e, nil
}

func loopClips(lib *presets.Library) (idle, thinking *avatar3d.AnimationClip, err error) {
	pc := lib.Config()
	if idle, err = lib.Clip(pc.Idle); err != nil {
		return nil, nil, fmt.Errorf("idle preset: %w", err)
	}
	if thinking, err = lib.Clip(pc.Thinking); err != nil {
		return nil, nil, fmt.Errorf("thinking preset: %w", err)
	}
	return idle, thinking, nil
}

// ReloadLoops rebuilds the idle and thinking loops from the preset library
// and swaps them into the running mixer. On error the old loops stay.
func (e *Engine) ReloadLoops(ctx context.Context) error {
	if e.deps.Presets == nil {
		return ErrNoPresets
	}
	idle, thinking, err := loopClips(e.deps.Presets)
	if err != nil {
		return err
	}
	return e.do(ctx, func() {
		e.avatar.Mixer.SetLoops(idle, thinking)
		e.logger.Info().Str("idle", idle.Name).Str("thinking", thinking.Name).Msg("Loops reloaded")
	})
}

// Start launches the loop goroutine. It stops when ctx is done or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	e.logger.Info().Int("tick_rate", e.cfg.TickRate).Msg("Engine starting")
	go e.run(ctx)
	return nil
}

// Stop tears the engine down and waits for the loop to exit. It is safe to
// call more than once.
func (e *Engine) Stop() {
	e.once.Do(func() { close(e.stop) })
	if e.started.Load() {
		<-e.done
	}
}

// Done is closed once the loop has exited.
func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(time.Second / time.Duration(e.cfg.TickRate))
	defer ticker.Stop()
	e.lastTick = time.Now()

	for {
		select {
		case <-ctx.Done():
			e.teardown()
			return
		case <-e.stop:
			e.teardown()
			return
		case f := <-e.work:
			f()
		case now := <-ticker.C:
			e.tick(now)
		}
	}
}

// post schedules f on the loop. It never blocks past loop exit.
func (e *Engine) post(f func()) {
	select {
	case e.work <- f:
	case <-e.done:
	}
}

// do runs f on the loop and waits for it.
func (e *Engine) do(ctx context.Context, f func()) error {
	if !e.started.Load() {
		return ErrNotStarted
	}
	ran := make(chan struct{})
	select {
	case e.work <- func() { f(); close(ran) }:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) tick(now time.Time) {
	start := time.Now()
	dt := now.Sub(e.lastTick)
	e.lastTick = now
	if dt > maxTick {
		dt = maxTick
	}
	if dt < 0 {
		dt = 0
	}

	e.avatar.Visemes.SetTargets(e.seq.VisemeTargets())
	e.avatar.Motion.SetTargets(e.seq.MotionTargets())
	e.avatar.Update(float32(dt.Seconds()), e.seq.Active(), float32(e.seq.Position().Seconds()))
	e.publishState()

	metrics.TickDuration.Observe(time.Since(start).Seconds())
}

func (e *Engine) publishState() {
	s := e.avatar.Mixer.State()
	if s == e.state {
		return
	}
	from := e.state
	e.state = s
	e.logger.Debug().Str("from", from.String()).Str("to", s.String()).Msg("Playback state changed")
	e.events.Publish(bus.Event{
		Type: bus.EventEngineStateChanged,
		Data: map[string]any{"from": from.String(), "to": s.String()},
	})
}

func (e *Engine) teardown() {
	if e.deps.Stream != nil {
		e.deps.Stream.Close()
	}
	e.seq.Clear()
	e.avatar.Reset()
	e.gen++
	e.generating = false
	e.publishState()
	e.logger.Info().Int("live_handles", e.seq.Store().Live()).Msg("Engine stopped")
}

// ResponseFinished is called by the mixer when a one-shot clip completes.
func (e *Engine) ResponseFinished(clip string) {
	e.events.Publish(bus.Event{
		Type: bus.EventEngineResponseFinished,
		Data: map[string]any{"clip": clip},
	})
}

// Snapshot returns a copy of the current avatar state.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := e.do(ctx, func() {
		snap = Snapshot{
			State:      e.avatar.Mixer.State(),
			Generating: e.generating,
			Transcript: e.transcript.String(),
			IdleWeight: e.avatar.Mixer.IdleWeight(),
			Speaking:   e.seq.Active(),
			QueueLen:   e.seq.Len(),
			Visemes:    e.avatar.Visemes.Weights(),
			Pose:       e.avatar.Pose(),
		}
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// begin abandons any request in flight and marks a new generation. It
// returns the generation token results must carry to be applied.
func (e *Engine) begin() uint64 {
	if e.deps.Stream != nil {
		e.deps.Stream.Close()
	}
	e.seq.Clear()
	e.gen++
	e.generating = true
	e.transcript.Reset()
	e.avatar.Mixer.SetGenerating(true)
	e.publishState()
	return e.gen
}

// end clears the generating flag and reports the outcome.
func (e *Engine) end(err error, duration float32) {
	e.generating = false
	e.avatar.Mixer.SetGenerating(false)
	e.publishState()

	data := map[string]any{
		"text":     e.transcript.String(),
		"duration": duration,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	e.events.Publish(bus.Event{Type: bus.EventEngineGenerationFinished, Data: data})
}

// fail drops everything the failed generation left behind.
func (e *Engine) fail(err error) {
	e.logger.Warn().Err(err).Msg("Generation failed")
	e.seq.Clear()
	e.avatar.Visemes.UseLive()
	e.transcript.Reset()
	e.end(err, 0)
}

func (e *Engine) nextItemID(prefix string) string {
	e.items++
	return fmt.Sprintf("%s-%d", prefix, e.items)
}
