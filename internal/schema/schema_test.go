package schema

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hausmaster333/MirageGen/internal/audio"
	"github.com/Hausmaster333/MirageGen/internal/avatar3d"
)

const chatResponseJSON = `{
  "full_text": "Hello there",
  "audio": {"audio_bytes_base64": "AAECAw==", "sample_rate": 48000, "format": "wav", "duration": 1.5},
  "blendshapes": {
    "frames": [
      {"timestamp": 0.0, "mouth_shapes": {"viseme_aa": 0.8}},
      {"timestamp": 0.5, "mouth_shapes": {"viseme_O": 0.6}}
    ],
    "fps": 30,
    "duration": 1.0
  },
  "motion": {
    "keyframes": [
      {"timestamp": 0.0, "bone_rotations": {"head": [0, 0, 0, 1]}, "bone_positions": {}},
      {"timestamp": 1.0, "bone_rotations": {"head": [0, 0.3826834, 0, 0.9238795]}}
    ],
    "emotion": "happy",
    "duration": 2.0
  },
  "processing_time": 0.42
}`

func TestChatResponse_Decode(t *testing.T) {
	var resp ChatResponse
	require.NoError(t, json.Unmarshal([]byte(chatResponseJSON), &resp))

	assert.Equal(t, "Hello there", resp.FullText)
	assert.Equal(t, EmotionHappy, resp.Motion.Emotion)

	p, err := resp.Audio.Payload()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3}, p.Data)
	assert.Equal(t, audio.FormatWAV, p.Format)
	assert.Equal(t, 48000, p.SampleRate)
	assert.Equal(t, 1500*time.Millisecond, p.Duration)

	tl := resp.Blendshapes.Timeline()
	f, ok := tl.FrameAt(0.7)
	require.True(t, ok)
	assert.Equal(t, float32(0.6), f.Weights["viseme_O"])

	clip, err := resp.Motion.Clip("response")
	require.NoError(t, err)
	assert.Equal(t, float32(2), clip.Duration())
	head, ok := clip.Track("Head")
	require.True(t, ok)
	assert.Equal(t, 2, head.Len())
}

func TestMotionKeyframes_BadQuaternion(t *testing.T) {
	m := MotionKeyframes{Keyframes: []MotionKeyframe{
		{Timestamp: 0, BoneRotations: map[string][]float32{"head": {0, 0, 1}}},
	}}
	_, err := m.Clip("broken")
	assert.ErrorIs(t, err, ErrBadQuaternion)
	assert.ErrorIs(t, err, avatar3d.ErrConstruction)
}

func TestMotionKeyframes_Scaled(t *testing.T) {
	m := MotionKeyframes{
		Keyframes: []MotionKeyframe{{Timestamp: 0}, {Timestamp: 1}, {Timestamp: 2}},
		Duration:  2,
	}
	s := m.Scaled(4)
	assert.Equal(t, float32(4), s.Duration)
	assert.Equal(t, float32(2), s.Keyframes[1].Timestamp)
	assert.Equal(t, float32(4), s.Keyframes[2].Timestamp)
	assert.Equal(t, float32(1), m.Keyframes[1].Timestamp, "original is untouched")
}

func TestAudioSegment_BadBase64(t *testing.T) {
	_, err := AudioSegment{AudioBase64: "%%%"}.Payload()
	assert.ErrorIs(t, err, ErrBadAudio)

	data, err := DecodeAudio(base64.StdEncoding.EncodeToString([]byte("pcm")))
	require.NoError(t, err)
	assert.Equal(t, []byte("pcm"), data)
}

func TestRemapFrames(t *testing.T) {
	frames, err := RemapFrames([]BlendshapeFrame{
		{Timestamp: 0, MouthShapes: map[string]float32{"X": 1}},
		{Timestamp: 0.1, MouthShapes: map[string]float32{"A": 0.4, "D": 0.9, "B": 0.2}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]float32{"viseme_sil": 1}, frames[0].MouthShapes)
	assert.Equal(t, map[string]float32{"viseme_aa": 0.9, "viseme_PP": 0.2}, frames[1].MouthShapes)

	_, err = RemapFrames([]BlendshapeFrame{{MouthShapes: map[string]float32{"Q": 1}}})
	assert.ErrorIs(t, err, ErrUnknownCue)
}

func TestBlendshapeWeights_TimelineFromCues(t *testing.T) {
	b := BlendshapeWeights{
		Frames: []BlendshapeFrame{
			{Timestamp: 0, MouthShapes: map[string]float32{"X": 1}},
			{Timestamp: 0.5, MouthShapes: map[string]float32{"A": 0.8}},
		},
		Duration: 1,
	}

	tl := b.Timeline()
	f, ok := tl.FrameAt(0.6)
	require.True(t, ok)
	assert.InDelta(t, 0.8, f.Weights["viseme_aa"], 1e-6)
	assert.NotContains(t, f.Weights, "A")
}
