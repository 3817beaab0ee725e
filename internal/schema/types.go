// Package schema defines the data shapes exchanged with the generation
// service and converts them into animation and audio types.
package schema

import "errors"

var (
	ErrBadQuaternion = errors.New("quaternion must have 4 components")
	ErrBadPosition   = errors.New("position must have 3 components")
	ErrBadAudio      = errors.New("audio payload is not valid base64")
	ErrUnknownCue    = errors.New("unknown mouth cue")
)

// Emotion labels produced by sentiment analysis.
const (
	EmotionHappy    = "happy"
	EmotionSad      = "sad"
	EmotionNeutral  = "neutral"
	EmotionThinking = "thinking"
)

// Emotions lists every emotion label in a stable order.
var Emotions = []string{EmotionHappy, EmotionSad, EmotionNeutral, EmotionThinking}

// MotionKeyframe is one skeletal keyframe. Rotations are (x, y, z, w).
type MotionKeyframe struct {
	Timestamp     float32              `json:"timestamp" yaml:"timestamp"`
	BoneRotations map[string][]float32 `json:"bone_rotations" yaml:"bone_rotations"`
	BonePositions map[string][]float32 `json:"bone_positions,omitempty" yaml:"bone_positions,omitempty"`
}

// MotionKeyframes is a gesture or preset clip definition.
type MotionKeyframes struct {
	Keyframes []MotionKeyframe `json:"keyframes" yaml:"keyframes"`
	Emotion   string           `json:"emotion" yaml:"emotion"`
	Duration  float32          `json:"duration" yaml:"duration"`
}

// BlendshapeFrame is one baked lip-sync frame.
type BlendshapeFrame struct {
	Timestamp   float32            `json:"timestamp"`
	MouthShapes map[string]float32 `json:"mouth_shapes"`
}

// BlendshapeWeights is the baked lip-sync track of a batched response.
type BlendshapeWeights struct {
	Frames   []BlendshapeFrame `json:"frames"`
	FPS      int               `json:"fps"`
	Duration float32           `json:"duration"`
}

// AudioSegment is the complete audio of a batched response.
type AudioSegment struct {
	AudioBase64 string  `json:"audio_bytes_base64"`
	SampleRate  int     `json:"sample_rate"`
	Format      string  `json:"format"`
	Duration    float32 `json:"duration"`
}

// ChatRequest is the body of a batched chat call.
type ChatRequest struct {
	Message             string    `json:"message"`
	ConversationHistory []Message `json:"conversation_history,omitempty"`
}

// Message is one turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the complete result of a batched chat call.
type ChatResponse struct {
	FullText       string            `json:"full_text"`
	Audio          AudioSegment      `json:"audio"`
	Blendshapes    BlendshapeWeights `json:"blendshapes"`
	Motion         MotionKeyframes   `json:"motion"`
	ProcessingTime float64           `json:"processing_time"`
}

// HealthResponse is returned by the service health endpoint.
type HealthResponse struct {
	Status     string          `json:"status"`
	Components map[string]bool `json:"components"`
}
