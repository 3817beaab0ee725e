package engine

import (
	"github.com/Hausmaster333/MirageGen/internal/avatar3d"
)

// Config tunes the run loop and the animation drivers it advances.
type Config struct {
	TickRate        int     `mapstructure:"tick_rate"`
	Crossfade       float32 `mapstructure:"crossfade"`
	IdleBaseline    float32 `mapstructure:"idle_baseline"`
	IdleApproach    float32 `mapstructure:"idle_approach"`
	VisemeAttack    float32 `mapstructure:"viseme_attack"`
	VisemeDecay     float32 `mapstructure:"viseme_decay"`
	VisemeThreshold float32 `mapstructure:"viseme_threshold"`
	Smoothing       float32 `mapstructure:"smoothing"`
	MotionAttack    float32 `mapstructure:"motion_attack"`
	MotionRelax     float32 `mapstructure:"motion_relax"`
	WorkQueue       int     `mapstructure:"work_queue"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	a := avatar3d.DefaultConfig()
	return Config{
		TickRate:        60,
		Crossfade:       a.Mixer.Crossfade,
		IdleBaseline:    a.Mixer.IdleBaseline,
		IdleApproach:    a.Mixer.IdleApproach,
		VisemeAttack:    a.Viseme.Attack,
		VisemeDecay:     a.Viseme.Decay,
		VisemeThreshold: a.Viseme.Threshold,
		Smoothing:       a.Viseme.Smoothing,
		MotionAttack:    a.Motion.Attack,
		MotionRelax:     a.Motion.Relax,
		WorkQueue:       256,
	}
}

// Avatar converts the tuning into driver configuration.
func (c Config) Avatar() avatar3d.Config {
	cfg := avatar3d.DefaultConfig()
	cfg.Mixer = avatar3d.MixerConfig{
		Crossfade:    c.Crossfade,
		IdleBaseline: c.IdleBaseline,
		IdleApproach: c.IdleApproach,
	}
	cfg.Viseme = avatar3d.VisemeConfig{
		Attack:    c.VisemeAttack,
		Decay:     c.VisemeDecay,
		Threshold: c.VisemeThreshold,
		Smoothing: c.Smoothing,
	}
	cfg.Motion = avatar3d.MotionConfig{
		Attack: c.MotionAttack,
		Relax:  c.MotionRelax,
	}
	return cfg
}
