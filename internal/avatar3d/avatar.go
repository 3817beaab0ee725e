// Package avatar3d holds the in-memory animation model of the avatar: clips
// built from keyframes, the pose mixer, and the viseme and motion drivers that
// are advanced once per render tick.
//
// Nothing in this package is safe for concurrent use. Callers own a single
// goroutine that mutates and reads every type here.
package avatar3d

// Avatar bundles the per-tick animation state of one character.
type Avatar struct {
	Mixer   *PoseMixer
	Visemes *VisemeDriver
	Motion  *MotionDriver
}

// Config groups the tuning of every driver.
type Config struct {
	Mixer  MixerConfig
	Viseme VisemeConfig
	Motion MotionConfig
	Morphs []string
}

func DefaultConfig() Config {
	return Config{
		Mixer:  DefaultMixerConfig(),
		Viseme: DefaultVisemeConfig(),
		Motion: DefaultMotionConfig(),
		Morphs: DefaultMorphTargets(),
	}
}

func NewAvatar(idle, thinking *AnimationClip, cfg Config, listener CompletionListener) *Avatar {
	return &Avatar{
		Mixer:   NewPoseMixer(idle, thinking, cfg.Mixer, listener),
		Visemes: NewVisemeDriver(cfg.Morphs, cfg.Viseme),
		Motion:  NewMotionDriver(cfg.Motion),
	}
}

// Update advances the mixer and both drivers by dt seconds. active reports
// whether an audio segment is playing and position is its playback cursor.
func (a *Avatar) Update(dt float32, active bool, position float32) {
	a.Mixer.Update(dt)
	a.Visemes.Update(dt, active, position)
	a.Motion.Update(dt, active)
}

// Pose returns the mixer pose with the motion offsets composed on top.
func (a *Avatar) Pose() Pose {
	p := a.Mixer.Pose()
	a.Motion.Apply(p)
	return p
}

// Reset stops every action and returns both drivers to rest.
func (a *Avatar) Reset() {
	a.Mixer.StopAll()
	a.Visemes.Reset()
	a.Motion.Reset()
}
