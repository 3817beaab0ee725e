package schema

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Hausmaster333/MirageGen/internal/audio"
	"github.com/Hausmaster333/MirageGen/internal/avatar3d"
)

// Quat converts a wire quaternion (x, y, z, w).
func Quat(v []float32) (mgl32.Quat, error) {
	if len(v) != 4 {
		return mgl32.Quat{}, fmt.Errorf("%w: got %d", ErrBadQuaternion, len(v))
	}
	return avatar3d.QuatFromXYZW([4]float32{v[0], v[1], v[2], v[3]}), nil
}

// QuatMap converts a map of wire quaternions keyed by bone name.
func QuatMap(m map[string][]float32) (map[string]mgl32.Quat, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]mgl32.Quat, len(m))
	for bone, v := range m {
		q, err := Quat(v)
		if err != nil {
			return nil, fmt.Errorf("bone %q: %w", bone, err)
		}
		out[bone] = q
	}
	return out, nil
}

// Samples converts keyframes into clip builder input, in the given order.
func (m MotionKeyframes) Samples() ([]avatar3d.KeyframeSample, error) {
	out := make([]avatar3d.KeyframeSample, 0, len(m.Keyframes))
	for i, kf := range m.Keyframes {
		rot, err := QuatMap(kf.BoneRotations)
		if err != nil {
			return nil, fmt.Errorf("keyframe %d: %w", i, err)
		}
		s := avatar3d.KeyframeSample{Time: kf.Timestamp, Rotations: rot}
		if len(kf.BonePositions) > 0 {
			s.Positions = make(map[string]mgl32.Vec3, len(kf.BonePositions))
			for bone, v := range kf.BonePositions {
				if len(v) != 3 {
					return nil, fmt.Errorf("keyframe %d bone %q: %w", i, bone, ErrBadPosition)
				}
				s.Positions[bone] = mgl32.Vec3{v[0], v[1], v[2]}
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// Clip builds a named animation clip from the keyframes.
func (m MotionKeyframes) Clip(name string) (*avatar3d.AnimationClip, error) {
	samples, err := m.Samples()
	if err != nil {
		return nil, fmt.Errorf("clip %q: %w: %w", name, avatar3d.ErrConstruction, err)
	}
	return avatar3d.BuildClip(name, samples, m.Duration)
}

// Scaled returns a copy whose keyframe timestamps are stretched to duration.
func (m MotionKeyframes) Scaled(duration float32) MotionKeyframes {
	out := m
	out.Keyframes = make([]MotionKeyframe, len(m.Keyframes))
	copy(out.Keyframes, m.Keyframes)
	if m.Duration > 0 {
		scale := duration / m.Duration
		for i := range out.Keyframes {
			out.Keyframes[i].Timestamp *= scale
		}
	}
	out.Duration = duration
	return out
}

// Timeline converts the frames into a lip-sync timeline. Frames keyed by
// Rhubarb mouth cues are renamed to viseme targets first.
func (b BlendshapeWeights) Timeline() *avatar3d.Timeline {
	src := b.Frames
	if usesCues(src) {
		if remapped, err := RemapFrames(src); err == nil {
			src = remapped
		}
	}
	frames := make([]avatar3d.TimelineFrame, 0, len(src))
	for _, f := range src {
		frames = append(frames, avatar3d.TimelineFrame{Time: f.Timestamp, Weights: f.MouthShapes})
	}
	return avatar3d.NewTimeline(frames, b.Duration)
}

// DecodeAudio decodes a base64 audio string as sent on the wire.
func DecodeAudio(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAudio, err)
	}
	return data, nil
}

// Payload decodes the segment into a playable payload.
func (a AudioSegment) Payload() (audio.Payload, error) {
	data, err := DecodeAudio(a.AudioBase64)
	if err != nil {
		return audio.Payload{}, err
	}
	return audio.Payload{
		Format:     audio.Format(a.Format),
		SampleRate: a.SampleRate,
		Duration:   time.Duration(float64(a.Duration) * float64(time.Second)),
		Data:       data,
	}, nil
}
