package avatar3d

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimelineFrameAt(t *testing.T) {
	tl := NewTimeline([]TimelineFrame{
		{Time: 0.0, Weights: map[string]float32{"viseme_sil": 1}},
		{Time: 0.5, Weights: map[string]float32{"viseme_aa": 0.8}},
		{Time: 1.0, Weights: map[string]float32{"viseme_O": 0.6}},
	}, 0)

	f, ok := tl.FrameAt(0.7)
	require.True(t, ok)
	assert.Equal(t, float32(0.5), f.Time)

	f, ok = tl.FrameAt(1.5)
	require.True(t, ok)
	assert.Equal(t, float32(1.0), f.Time)

	f, ok = tl.FrameAt(0.5)
	require.True(t, ok)
	assert.Equal(t, float32(0.5), f.Time)

	_, ok = tl.FrameAt(-0.1)
	assert.False(t, ok)

	assert.Equal(t, []string{"viseme_sil", "viseme_aa", "viseme_O"}, tl.Names())
	assert.Equal(t, float32(1.0), tl.Duration())
}

func TestTimelineFrameAt_EqualTimestamps(t *testing.T) {
	tl := NewTimeline([]TimelineFrame{
		{Time: 0.0, Weights: map[string]float32{"viseme_aa": 0.1}},
		{Time: 0.0, Weights: map[string]float32{"viseme_aa": 0.9}},
	}, 2)

	f, ok := tl.FrameAt(0.3)
	require.True(t, ok)
	assert.Equal(t, float32(0.9), f.Weights["viseme_aa"])
	assert.Equal(t, float32(2), tl.Duration())
}

func TestTimelineEmpty(t *testing.T) {
	tl := NewTimeline(nil, 0)
	_, ok := tl.FrameAt(1)
	assert.False(t, ok)
	assert.Equal(t, 0, tl.Len())
}
