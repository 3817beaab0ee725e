package avatar3d

import (
	"github.com/go-gl/mathgl/mgl32"
)

// PlaybackState is the current foreground behavior of the avatar body.
type PlaybackState int

const (
	StateIdle PlaybackState = iota
	StateThinking
	StatePlayingResponse
)

func (s PlaybackState) String() string {
	switch s {
	case StateThinking:
		return "thinking"
	case StatePlayingResponse:
		return "playing_response"
	default:
		return "idle"
	}
}

// CompletionListener is told when a one-shot response clip has finished.
type CompletionListener interface {
	ResponseFinished(clip string)
}

// Pose is a set of bone orientations and translations keyed by rig joint.
type Pose struct {
	Rotations map[string]mgl32.Quat
	Positions map[string]mgl32.Vec3
}

func NewPose() Pose {
	return Pose{
		Rotations: make(map[string]mgl32.Quat),
		Positions: make(map[string]mgl32.Vec3),
	}
}

type MixerConfig struct {
	Crossfade    float32 // seconds
	IdleBaseline float32 // idle weight while a foreground action runs
	IdleApproach float32 // per-tick fraction of the distance to the idle target
}

func DefaultMixerConfig() MixerConfig {
	return MixerConfig{
		Crossfade:    0.5,
		IdleBaseline: 0.1,
		IdleApproach: 0.1,
	}
}

// PoseMixer crossfades the idle loop, the thinking loop and one-shot response
// clips.
type PoseMixer struct {
	cfg      MixerConfig
	listener CompletionListener

	state      PlaybackState
	generating bool

	idle     *Action
	thinking *Action
	response *Action
	retiring []*Action

	idleWeight float32
}

// NewPoseMixer starts the idle loop at full weight. Either clip may be nil.
func NewPoseMixer(idle, thinking *AnimationClip, cfg MixerConfig, listener CompletionListener) *PoseMixer {
	m := &PoseMixer{
		cfg:        cfg,
		listener:   listener,
		idleWeight: 1,
	}
	if idle != nil {
		m.idle = NewAction(idle, true)
		m.idle.Play(1)
	}
	if thinking != nil {
		m.thinking = NewAction(thinking, true)
	}
	return m
}

func (m *PoseMixer) State() PlaybackState { return m.state }

func (m *PoseMixer) IdleWeight() float32 { return m.idleWeight }

// Response returns the current one-shot action, if any.
func (m *PoseMixer) Response() *Action { return m.response }

// SetGenerating moves between Idle and Thinking. It has no effect while a
// response clip is playing.
func (m *PoseMixer) SetGenerating(on bool) {
	m.generating = on
	switch {
	case on && m.state == StateIdle:
		m.state = StateThinking
		if m.thinking != nil {
			m.thinking.FadeIn(m.cfg.Crossfade)
		}
	case !on && m.state == StateThinking:
		m.state = StateIdle
		if m.thinking != nil {
			m.thinking.FadeOut(m.cfg.Crossfade)
		}
	}
}

// SetLoops swaps the idle and thinking clips in place. Weights and fades in
// progress carry over to the new clips. A nil clip leaves its loop alone.
func (m *PoseMixer) SetLoops(idle, thinking *AnimationClip) {
	if idle != nil {
		if m.idle != nil {
			m.idle = m.idle.withClip(idle)
		} else {
			m.idle = NewAction(idle, true)
			m.idle.Play(m.idleWeight)
		}
	}
	if thinking != nil {
		if m.thinking != nil {
			m.thinking = m.thinking.withClip(thinking)
		} else {
			m.thinking = NewAction(thinking, true)
			if m.state == StateThinking {
				m.thinking.FadeIn(m.cfg.Crossfade)
			}
		}
	}
}

// PlayResponse starts clip as a one-shot response, replacing any response
// already playing.
func (m *PoseMixer) PlayResponse(clip *AnimationClip) {
	if m.thinking != nil {
		m.thinking.FadeOut(m.cfg.Crossfade)
	}
	m.retire(m.response)

	m.response = NewAction(clip, false)
	m.response.Play(1)
	m.state = StatePlayingResponse
}

// PlayResponseSamples builds a clip from samples and plays it. A build failure
// leaves the mixer untouched.
func (m *PoseMixer) PlayResponseSamples(name string, samples []KeyframeSample, duration float32) error {
	clip, err := BuildClip(name, samples, duration)
	if err != nil {
		return err
	}
	m.PlayResponse(clip)
	return nil
}

func (m *PoseMixer) retire(a *Action) {
	if a == nil || !a.Running() {
		return
	}
	a.FadeOut(m.cfg.Crossfade)
	m.retiring = append(m.retiring, a)
}

// Update advances every action by dt and applies the idle weight law.
func (m *PoseMixer) Update(dt float32) {
	if m.thinking != nil {
		m.thinking.Update(dt)
	}

	kept := m.retiring[:0]
	for _, a := range m.retiring {
		a.Update(dt)
		if a.Running() {
			kept = append(kept, a)
		}
	}
	for i := len(kept); i < len(m.retiring); i++ {
		m.retiring[i] = nil
	}
	m.retiring = kept

	if m.response != nil && m.response.Update(dt) {
		name := m.response.Clip().Name
		m.retire(m.response)
		m.response = nil
		m.state = StateIdle
		if m.generating {
			m.SetGenerating(true)
		}
		if m.listener != nil {
			m.listener.ResponseFinished(name)
		}
	}

	target := float32(1)
	if m.state != StateIdle {
		target = m.cfg.IdleBaseline
	}
	m.idleWeight += (target - m.idleWeight) * clampFactor(m.cfg.IdleApproach)
	if m.idle != nil {
		m.idle.Update(dt)
		m.idle.SetWeight(m.idleWeight)
	}
}

// StopAll halts every action and returns to Idle at full idle weight.
func (m *PoseMixer) StopAll() {
	if m.thinking != nil {
		m.thinking.Stop()
	}
	if m.response != nil {
		m.response.Stop()
		m.response = nil
	}
	for _, a := range m.retiring {
		a.Stop()
	}
	m.retiring = nil
	m.state = StateIdle
	m.generating = false
	m.idleWeight = 1
	if m.idle != nil {
		m.idle.Play(1)
	}
}

// Pose blends all running actions by weight.
func (m *PoseMixer) Pose() Pose {
	out := NewPose()
	rotW := make(map[string]float32)
	posW := make(map[string]float32)

	blend := func(a *Action) {
		if a == nil || !a.Running() || a.Weight() <= 0 {
			return
		}
		w := a.Weight()
		p := a.Sample()
		for bone, q := range p.Rotations {
			total := rotW[bone] + w
			if cur, ok := out.Rotations[bone]; ok {
				out.Rotations[bone] = slerp(cur, q, w/total)
			} else {
				out.Rotations[bone] = q
			}
			rotW[bone] = total
		}
		for bone, v := range p.Positions {
			total := posW[bone] + w
			if cur, ok := out.Positions[bone]; ok {
				out.Positions[bone] = cur.Add(v.Sub(cur).Mul(w / total))
			} else {
				out.Positions[bone] = v
			}
			posW[bone] = total
		}
	}

	blend(m.idle)
	blend(m.thinking)
	for _, a := range m.retiring {
		blend(a)
	}
	blend(m.response)
	return out
}
