package presets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hausmaster333/MirageGen/internal/avatar3d"
	"github.com/Hausmaster333/MirageGen/internal/bus"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []bus.Event
}

func (p *recordingPublisher) Publish(e bus.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

const happyJSON = `{
  "emotion": "happy",
  "duration": 2.0,
  "keyframes": [
    {"timestamp": 0.0, "bone_rotations": {"head": [0, 0, 0, 1]}},
    {"timestamp": 1.0, "bone_rotations": {"head": [0, 0.2588, 0, 0.9659]}},
    {"timestamp": 2.0, "bone_rotations": {"head": [0, 0, 0, 1]}}
  ]
}`

const sadYAML = `emotion: sad
duration: 1.5
keyframes:
  - timestamp: 0
    bone_rotations:
      head: [0, 0, 0, 1]
  - timestamp: 1.5
    bone_rotations:
      head: [0.1305, 0, 0, 0.9914]
`

func writePreset(t *testing.T, dir, file, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644))
}

func newTestLibrary(t *testing.T, dir string) (*Library, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	cfg := DefaultConfig()
	cfg.Dir = dir
	return NewLibrary(cfg, pub, zerolog.Nop()), pub
}

func TestBuiltinPresetsLoad(t *testing.T) {
	lib, _ := newTestLibrary(t, "")

	for _, name := range []string{"idle", "thinking_gesture"} {
		clip, err := lib.Clip(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, clip.Name)
		assert.Greater(t, clip.Duration(), float32(0))
		assert.NotEmpty(t, clip.Tracks)
	}
}

func TestLoadJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "happy_gesture.json", happyJSON)
	writePreset(t, dir, "sad_gesture.yaml", sadYAML)
	lib, _ := newTestLibrary(t, dir)

	happy, err := lib.Load("happy_gesture")
	require.NoError(t, err)
	assert.Equal(t, "happy", happy.Emotion)
	assert.Len(t, happy.Keyframes, 3)

	sad, err := lib.Load("sad_gesture")
	require.NoError(t, err)
	assert.Equal(t, "sad", sad.Emotion)
	assert.InDelta(t, 1.5, sad.Duration, 1e-6)
	assert.Equal(t, []float32{0.1305, 0, 0, 0.9914}, sad.Keyframes[1].BoneRotations["head"])
}

func TestDirectoryShadowsBuiltin(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "idle.json", `{"emotion":"neutral","duration":9,"keyframes":[{"timestamp":0,"bone_rotations":{"head":[0,0,0,1]}}]}`)
	lib, _ := newTestLibrary(t, dir)

	idle, err := lib.Load("idle")
	require.NoError(t, err)
	assert.InDelta(t, 9, idle.Duration, 1e-6)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "broken.json", `{"keyframes": [`)
	writePreset(t, dir, "noemotion.json", `{"duration": 1, "keyframes": []}`)
	lib, _ := newTestLibrary(t, dir)

	_, err := lib.Load("missing")
	assert.ErrorIs(t, err, ErrPresetNotFound)

	_, err = lib.Load("../idle")
	assert.ErrorIs(t, err, ErrPresetNotFound)

	_, err = lib.Load("broken")
	assert.ErrorIs(t, err, ErrInvalidPreset)

	_, err = lib.Load("noemotion")
	assert.ErrorIs(t, err, ErrInvalidPreset)
}

func TestClipOfEmptyPresetIsConstructionError(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "empty.json", `{"emotion":"neutral","duration":1,"keyframes":[]}`)
	lib, _ := newTestLibrary(t, dir)

	_, err := lib.Clip("empty")
	assert.ErrorIs(t, err, avatar3d.ErrConstruction)
}

func TestForEmotion(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "happy_gesture.json", happyJSON)
	lib, _ := newTestLibrary(t, dir)

	t.Run("matching duration is kept", func(t *testing.T) {
		m, err := lib.ForEmotion("happy", 2.005)
		require.NoError(t, err)
		assert.InDelta(t, 2.0, m.Duration, 1e-6)
		assert.InDelta(t, 1.0, m.Keyframes[1].Timestamp, 1e-6)
	})

	t.Run("different duration is scaled", func(t *testing.T) {
		m, err := lib.ForEmotion("happy", 4)
		require.NoError(t, err)
		assert.InDelta(t, 4.0, m.Duration, 1e-6)
		assert.InDelta(t, 2.0, m.Keyframes[1].Timestamp, 1e-6)
		assert.InDelta(t, 4.0, m.Keyframes[2].Timestamp, 1e-6)
	})

	t.Run("scaling does not touch the cache", func(t *testing.T) {
		m, err := lib.Load("happy_gesture")
		require.NoError(t, err)
		assert.InDelta(t, 1.0, m.Keyframes[1].Timestamp, 1e-6)
	})

	t.Run("missing gesture falls back and scales", func(t *testing.T) {
		m, err := lib.ForEmotion("sad", 2)
		require.NoError(t, err)
		assert.Equal(t, "neutral", m.Emotion)
		assert.InDelta(t, 2.0, m.Duration, 1e-6)
		assert.InDelta(t, 2.0, m.Keyframes[len(m.Keyframes)-1].Timestamp, 1e-6)
	})

	t.Run("unknown emotion", func(t *testing.T) {
		_, err := lib.ForEmotion("angry", 1)
		assert.ErrorIs(t, err, ErrUnknownEmotion)
	})

	t.Run("non-positive duration", func(t *testing.T) {
		_, err := lib.ForEmotion("happy", 0)
		assert.ErrorIs(t, err, ErrBadDuration)
		_, err = lib.ForEmotion("happy", -1)
		assert.ErrorIs(t, err, ErrBadDuration)
	})
}

func TestForEmotionMissingFallback(t *testing.T) {
	lib := NewLibrary(Config{Fallback: "nothing_here"}, nil, zerolog.Nop())

	_, err := lib.ForEmotion("happy", 1)
	assert.ErrorIs(t, err, ErrPresetNotFound)
}

func TestActions(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "happy_gesture.json", happyJSON)
	writePreset(t, dir, "sad_gesture.yml", sadYAML)
	writePreset(t, dir, "idle.json", happyJSON)
	writePreset(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0o755))
	lib, _ := newTestLibrary(t, dir)

	actions, err := lib.Actions()
	require.NoError(t, err)
	assert.Equal(t, []string{"happy_gesture", "idle", "sad_gesture", "thinking_gesture"}, actions)
}

func TestActionsMissingDirectory(t *testing.T) {
	lib, _ := newTestLibrary(t, filepath.Join(t.TempDir(), "absent"))

	actions, err := lib.Actions()
	require.NoError(t, err)
	assert.Equal(t, []string{"idle", "thinking_gesture"}, actions)
}

func TestInvalidate(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "happy_gesture.json", happyJSON)
	lib, _ := newTestLibrary(t, dir)

	_, err := lib.Load("happy_gesture")
	require.NoError(t, err)

	writePreset(t, dir, "happy_gesture.json", `{"emotion":"happy","duration":7,"keyframes":[]}`)
	m, err := lib.Load("happy_gesture")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, m.Duration, 1e-6, "cached copy is served until invalidated")

	lib.Invalidate("happy_gesture")
	m, err = lib.Load("happy_gesture")
	require.NoError(t, err)
	assert.InDelta(t, 7.0, m.Duration, 1e-6)
}

func TestWatchReloadsChangedPreset(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "happy_gesture.json", happyJSON)
	lib, pub := newTestLibrary(t, dir)

	_, err := lib.Load("happy_gesture")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lib.Watch(ctx) }()

	n := 0
	assert.Eventually(t, func() bool {
		n++
		body := fmt.Sprintf(`{"emotion":"happy","duration":%d,"keyframes":[]}`, 10+n)
		if os.WriteFile(filepath.Join(dir, "happy_gesture.json"), []byte(body), 0o644) != nil {
			return false
		}
		m, err := lib.Load("happy_gesture")
		return err == nil && m.Duration >= 10
	}, 5*time.Second, 50*time.Millisecond)
	assert.Positive(t, pub.count())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchWithoutDirectory(t *testing.T) {
	lib, _ := newTestLibrary(t, "")
	assert.Error(t, lib.Watch(context.Background()))
}

func TestIsLoop(t *testing.T) {
	lib, _ := newTestLibrary(t, "")
	assert.True(t, lib.IsLoop("idle"))
	assert.True(t, lib.IsLoop("thinking_gesture"))
	assert.False(t, lib.IsLoop("happy_gesture"))
}
