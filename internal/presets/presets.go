// Package presets loads the animation clips the avatar plays when no
// generated motion is available: the idle loop, the thinking loop and the
// per-emotion gestures.
package presets

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Hausmaster333/MirageGen/internal/avatar3d"
	"github.com/Hausmaster333/MirageGen/internal/bus"
	"github.com/Hausmaster333/MirageGen/internal/schema"
)

var (
	ErrUnknownEmotion = errors.New("unknown emotion")
	ErrBadDuration    = errors.New("duration must be positive")
	ErrPresetNotFound = errors.New("preset not found")
	ErrInvalidPreset  = errors.New("invalid preset")
)

//go:embed builtin/*.json
var builtin embed.FS

const builtinDir = "builtin"

// durationTolerance is the largest difference between a preset's duration
// and the requested one that is played without rescaling.
const durationTolerance = 0.01

// extensions are tried in this order when resolving a preset name.
var extensions = []string{".json", ".yaml", ".yml"}

var emotionPresets = map[string]string{
	schema.EmotionHappy:    "happy_gesture",
	schema.EmotionSad:      "sad_gesture",
	schema.EmotionNeutral:  "idle",
	schema.EmotionThinking: "thinking_gesture",
}

// Config configures the preset library.
type Config struct {
	Dir      string `mapstructure:"dir"`
	Fallback string `mapstructure:"fallback"`
	Watch    bool   `mapstructure:"watch"`
	Idle     string `mapstructure:"idle"`
	Thinking string `mapstructure:"thinking"`
}

// DefaultConfig returns a library that serves the built-in presets only.
func DefaultConfig() Config {
	return Config{
		Fallback: "idle",
		Idle:     "idle",
		Thinking: "thinking_gesture",
	}
}

// Library resolves preset names against a directory and the built-in set.
// Files in the directory shadow built-ins of the same name. Parsed presets
// are cached until Invalidate or a watched file change evicts them.
type Library struct {
	cfg    Config
	events bus.Publisher
	logger zerolog.Logger

	mu    sync.RWMutex
	cache map[string]schema.MotionKeyframes
}

// NewLibrary creates a library. An empty cfg.Dir serves built-ins only.
func NewLibrary(cfg Config, events bus.Publisher, logger zerolog.Logger) *Library {
	if cfg.Fallback == "" {
		cfg.Fallback = "idle"
	}
	if events == nil {
		events = bus.Nop{}
	}
	return &Library{
		cfg:    cfg,
		events: events,
		logger: logger.With().Str("component", "presets").Logger(),
		cache:  make(map[string]schema.MotionKeyframes),
	}
}

// Config returns the library configuration.
func (l *Library) Config() Config { return l.cfg }

// Load returns the named preset, reading it on first use.
func (l *Library) Load(name string) (schema.MotionKeyframes, error) {
	l.mu.RLock()
	m, ok := l.cache[name]
	l.mu.RUnlock()
	if ok {
		return m, nil
	}

	m, src, err := l.read(name)
	if err != nil {
		return schema.MotionKeyframes{}, err
	}

	l.mu.Lock()
	l.cache[name] = m
	l.mu.Unlock()

	l.logger.Info().
		Str("preset", name).
		Str("source", src).
		Int("keyframes", len(m.Keyframes)).
		Msg("Preset loaded")
	return m, nil
}

// Clip loads the named preset and builds it into an animation clip.
func (l *Library) Clip(name string) (*avatar3d.AnimationClip, error) {
	m, err := l.Load(name)
	if err != nil {
		return nil, err
	}
	return m.Clip(name)
}

// ForEmotion returns the gesture for an emotion stretched to duration
// seconds. A missing gesture falls back to the fallback action.
func (l *Library) ForEmotion(emotion string, duration float32) (schema.MotionKeyframes, error) {
	if duration <= 0 {
		return schema.MotionKeyframes{}, fmt.Errorf("%w: %v", ErrBadDuration, duration)
	}
	name, ok := emotionPresets[emotion]
	if !ok {
		return schema.MotionKeyframes{}, fmt.Errorf("%w: %q", ErrUnknownEmotion, emotion)
	}

	m, err := l.Load(name)
	if errors.Is(err, ErrPresetNotFound) {
		l.logger.Warn().
			Str("preset", name).
			Str("fallback", l.cfg.Fallback).
			Msg("Preset missing, using fallback")
		m, err = l.Load(l.cfg.Fallback)
		if err != nil {
			return schema.MotionKeyframes{}, err
		}
		return m.Scaled(duration), nil
	}
	if err != nil {
		return schema.MotionKeyframes{}, err
	}

	if d := m.Duration - duration; d > durationTolerance || d < -durationTolerance {
		m = m.Scaled(duration)
	}
	return m, nil
}

// Actions lists every preset name available, sorted.
func (l *Library) Actions() ([]string, error) {
	seen := make(map[string]struct{})

	entries, err := fs.ReadDir(builtin, builtinDir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if name, ok := presetName(e.Name()); ok {
			seen[name] = struct{}{}
		}
	}

	if l.cfg.Dir != "" {
		entries, err := os.ReadDir(l.cfg.Dir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("list presets: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if name, ok := presetName(e.Name()); ok {
				seen[name] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// IsLoop reports whether name is the configured idle or thinking preset.
func (l *Library) IsLoop(name string) bool {
	return name == l.cfg.Idle || name == l.cfg.Thinking
}

// Invalidate evicts a cached preset so the next Load reads it again.
func (l *Library) Invalidate(name string) {
	l.mu.Lock()
	delete(l.cache, name)
	l.mu.Unlock()
}

func (l *Library) read(name string) (schema.MotionKeyframes, string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return schema.MotionKeyframes{}, "", fmt.Errorf("%w: %q", ErrPresetNotFound, name)
	}

	if l.cfg.Dir != "" {
		for _, ext := range extensions {
			path := filepath.Join(l.cfg.Dir, name+ext)
			data, err := os.ReadFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return schema.MotionKeyframes{}, "", fmt.Errorf("read preset %s: %w", path, err)
			}
			m, err := decode(data, ext)
			if err != nil {
				return schema.MotionKeyframes{}, "", fmt.Errorf("%w: %s: %v", ErrInvalidPreset, path, err)
			}
			return m, path, nil
		}
	}

	data, err := builtin.ReadFile(builtinDir + "/" + name + ".json")
	if err != nil {
		return schema.MotionKeyframes{}, "", fmt.Errorf("%w: %q", ErrPresetNotFound, name)
	}
	m, err := decode(data, ".json")
	if err != nil {
		return schema.MotionKeyframes{}, "", fmt.Errorf("%w: builtin %s: %v", ErrInvalidPreset, name, err)
	}
	return m, "builtin", nil
}

func decode(data []byte, ext string) (schema.MotionKeyframes, error) {
	var m schema.MotionKeyframes
	var err error
	if ext == ".json" {
		err = json.Unmarshal(data, &m)
	} else {
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return schema.MotionKeyframes{}, err
	}
	if m.Emotion == "" {
		return schema.MotionKeyframes{}, errors.New("missing emotion")
	}
	if m.Duration < 0 {
		return schema.MotionKeyframes{}, fmt.Errorf("negative duration %v", m.Duration)
	}
	for i, kf := range m.Keyframes {
		if kf.Timestamp < 0 {
			return schema.MotionKeyframes{}, fmt.Errorf("keyframe %d: negative timestamp", i)
		}
	}
	return m, nil
}

func presetName(file string) (string, bool) {
	ext := filepath.Ext(file)
	for _, e := range extensions {
		if ext == e {
			return strings.TrimSuffix(file, ext), true
		}
	}
	return "", false
}
