package avatar3d

import "sort"

// TimelineFrame is one baked lip-sync frame.
type TimelineFrame struct {
	Time    float32
	Weights map[string]float32
}

// Timeline is a read-only sequence of lip-sync frames ordered by time.
type Timeline struct {
	frames   []TimelineFrame
	names    []string
	duration float32
}

// NewTimeline wraps frames ordered by non-decreasing time.
func NewTimeline(frames []TimelineFrame, duration float32) *Timeline {
	seen := make(map[string]struct{})
	var names []string
	for _, f := range frames {
		for _, n := range sortedKeys(f.Weights) {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			names = append(names, n)
		}
	}
	if duration <= 0 && len(frames) > 0 {
		duration = frames[len(frames)-1].Time
	}
	return &Timeline{frames: frames, names: names, duration: duration}
}

func (t *Timeline) Len() int { return len(t.frames) }

func (t *Timeline) Duration() float32 { return t.duration }

// Names lists every morph target named by any frame, in first-seen order.
func (t *Timeline) Names() []string { return t.names }

// FrameAt returns the most recent frame not after pos. The last frame covers
// all remaining time. It reports false before the first frame.
func (t *Timeline) FrameAt(pos float32) (TimelineFrame, bool) {
	i := sort.Search(len(t.frames), func(i int) bool { return t.frames[i].Time > pos }) - 1
	if i < 0 {
		return TimelineFrame{}, false
	}
	return t.frames[i], true
}
