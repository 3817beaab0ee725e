package schema

import "fmt"

// RhubarbMapping maps Rhubarb mouth cues to Oculus viseme morph targets.
var RhubarbMapping = map[string]string{
	"A": "viseme_aa",
	"B": "viseme_PP",
	"C": "viseme_E",
	"D": "viseme_aa",
	"E": "viseme_O",
	"F": "viseme_FF",
	"G": "viseme_TH",
	"H": "viseme_DD",
	"X": "viseme_sil",
}

// RemapFrames renames the mouth cue keys of every frame to viseme names.
// Cues that map to the same viseme keep the larger weight.
func RemapFrames(frames []BlendshapeFrame) ([]BlendshapeFrame, error) {
	out := make([]BlendshapeFrame, len(frames))
	for i, f := range frames {
		shapes := make(map[string]float32, len(f.MouthShapes))
		for cue, w := range f.MouthShapes {
			name, ok := RhubarbMapping[cue]
			if !ok {
				return nil, fmt.Errorf("frame %d: %w %q", i, ErrUnknownCue, cue)
			}
			if cur, seen := shapes[name]; !seen || w > cur {
				shapes[name] = w
			}
		}
		out[i] = BlendshapeFrame{Timestamp: f.Timestamp, MouthShapes: shapes}
	}
	return out, nil
}

// usesCues reports whether every key of every frame is a Rhubarb cue.
func usesCues(frames []BlendshapeFrame) bool {
	seen := false
	for _, f := range frames {
		for cue := range f.MouthShapes {
			if _, ok := RhubarbMapping[cue]; !ok {
				return false
			}
			seen = true
		}
	}
	return seen
}
