package avatar3d

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrConstruction is returned for every clip that cannot be built.
	ErrConstruction = errors.New("clip construction failed")
	ErrEmptyInput   = fmt.Errorf("%w: no keyframe samples", ErrConstruction)
	ErrNoTracks     = fmt.Errorf("%w: no mapped bones", ErrConstruction)
)

// KeyframeSample is one instant of a source animation keyed by logical bone name.
type KeyframeSample struct {
	Time      float32
	Rotations map[string]mgl32.Quat
	Positions map[string]mgl32.Vec3
}

// Track holds the keyed orientations of one physical bone. Values are
// flattened in x, y, z, w order, four per entry of Times.
type Track struct {
	Bone   string
	Times  []float32
	Values []float32
}

// Len returns the number of keys in the track.
func (t *Track) Len() int { return len(t.Times) }

// At returns the orientation stored for key i.
func (t *Track) At(i int) mgl32.Quat {
	v := t.Values[i*4 : i*4+4]
	return mgl32.Quat{W: v[3], V: mgl32.Vec3{v[0], v[1], v[2]}}
}

// Sample returns the orientation at time tm, holding the end keys outside the keyed range.
func (t *Track) Sample(tm float32) mgl32.Quat {
	n := t.Len()
	if n == 0 {
		return mgl32.QuatIdent()
	}
	if tm <= t.Times[0] {
		return t.At(0)
	}
	if tm >= t.Times[n-1] {
		return t.At(n - 1)
	}
	i := sort.Search(n, func(i int) bool { return t.Times[i] > tm }) - 1
	span := t.Times[i+1] - t.Times[i]
	if span <= 0 {
		return t.At(i + 1)
	}
	return slerp(t.At(i), t.At(i+1), (tm-t.Times[i])/span)
}

// PositionTrack holds the keyed translations of one physical bone, three
// values per entry of Times.
type PositionTrack struct {
	Bone   string
	Times  []float32
	Values []float32
}

func (t *PositionTrack) Len() int { return len(t.Times) }

func (t *PositionTrack) At(i int) mgl32.Vec3 {
	return mgl32.Vec3{t.Values[i*3], t.Values[i*3+1], t.Values[i*3+2]}
}

func (t *PositionTrack) Sample(tm float32) mgl32.Vec3 {
	n := t.Len()
	if n == 0 {
		return mgl32.Vec3{}
	}
	if tm <= t.Times[0] {
		return t.At(0)
	}
	if tm >= t.Times[n-1] {
		return t.At(n - 1)
	}
	i := sort.Search(n, func(i int) bool { return t.Times[i] > tm }) - 1
	span := t.Times[i+1] - t.Times[i]
	if span <= 0 {
		return t.At(i + 1)
	}
	a, b := t.At(i), t.At(i+1)
	return a.Add(b.Sub(a).Mul((tm - t.Times[i]) / span))
}

// AnimationClip is an immutable, named set of per-bone tracks.
type AnimationClip struct {
	Name      string
	Tracks    []Track
	Positions []PositionTrack

	explicit float32
}

// Duration is the explicit duration when positive, otherwise the latest key
// time over all tracks. It is derived on every call.
func (c *AnimationClip) Duration() float32 {
	if c.explicit > 0 {
		return c.explicit
	}
	var max float32
	for i := range c.Tracks {
		if n := len(c.Tracks[i].Times); n > 0 && c.Tracks[i].Times[n-1] > max {
			max = c.Tracks[i].Times[n-1]
		}
	}
	for i := range c.Positions {
		if n := len(c.Positions[i].Times); n > 0 && c.Positions[i].Times[n-1] > max {
			max = c.Positions[i].Times[n-1]
		}
	}
	return max
}

// Track returns the orientation track of a physical bone.
func (c *AnimationClip) Track(bone string) (*Track, bool) {
	for i := range c.Tracks {
		if c.Tracks[i].Bone == bone {
			return &c.Tracks[i], true
		}
	}
	return nil, false
}

// Sample evaluates every track of the clip at time t.
func (c *AnimationClip) Sample(t float32) Pose {
	p := NewPose()
	for i := range c.Tracks {
		p.Rotations[c.Tracks[i].Bone] = c.Tracks[i].Sample(t)
	}
	for i := range c.Positions {
		p.Positions[c.Positions[i].Bone] = c.Positions[i].Sample(t)
	}
	return p
}

// BuildClip converts keyframe samples into an animation clip. Samples must
// already be ordered by non-decreasing time; they are not sorted here. Logical
// bone names missing from the bone table are dropped.
func BuildClip(name string, samples []KeyframeSample, duration float32) (*AnimationClip, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("clip %q: %w", name, ErrEmptyInput)
	}

	clip := &AnimationClip{Name: name, explicit: duration}
	rotIdx := make(map[string]int)
	posIdx := make(map[string]int)

	for _, s := range samples {
		for _, logical := range sortedKeys(s.Rotations) {
			bone, ok := PhysicalBone(logical)
			if !ok {
				continue
			}
			i, seen := rotIdx[bone]
			if !seen {
				i = len(clip.Tracks)
				rotIdx[bone] = i
				clip.Tracks = append(clip.Tracks, Track{Bone: bone})
			}
			q := s.Rotations[logical]
			tr := &clip.Tracks[i]
			tr.Times = append(tr.Times, s.Time)
			tr.Values = append(tr.Values, q.V[0], q.V[1], q.V[2], q.W)
		}
		for _, logical := range sortedKeys(s.Positions) {
			bone, ok := PhysicalBone(logical)
			if !ok {
				continue
			}
			i, seen := posIdx[bone]
			if !seen {
				i = len(clip.Positions)
				posIdx[bone] = i
				clip.Positions = append(clip.Positions, PositionTrack{Bone: bone})
			}
			v := s.Positions[logical]
			tr := &clip.Positions[i]
			tr.Times = append(tr.Times, s.Time)
			tr.Values = append(tr.Values, v[0], v[1], v[2])
		}
	}

	if len(clip.Tracks) == 0 && len(clip.Positions) == 0 {
		return nil, fmt.Errorf("clip %q: %w", name, ErrNoTracks)
	}
	return clip, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
