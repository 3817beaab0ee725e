package avatar3d

import "sort"

// ARKitBlendshapes lists the 52 ARKit face shapes the avatar head exposes.
var ARKitBlendshapes = []string{
	"browDownLeft", "browDownRight", "browInnerUp", "browOuterUpLeft", "browOuterUpRight",
	"cheekPuff", "cheekSquintLeft", "cheekSquintRight",
	"eyeBlinkLeft", "eyeBlinkRight", "eyeLookDownLeft", "eyeLookDownRight",
	"eyeLookInLeft", "eyeLookInRight", "eyeLookOutLeft", "eyeLookOutRight",
	"eyeLookUpLeft", "eyeLookUpRight", "eyeSquintLeft", "eyeSquintRight",
	"eyeWideLeft", "eyeWideRight",
	"jawForward", "jawLeft", "jawOpen", "jawRight",
	"mouthClose", "mouthDimpleLeft", "mouthDimpleRight", "mouthFrownLeft", "mouthFrownRight",
	"mouthFunnel", "mouthLeft", "mouthLowerDownLeft", "mouthLowerDownRight",
	"mouthPressLeft", "mouthPressRight", "mouthPucker", "mouthRight",
	"mouthRollLower", "mouthRollUpper", "mouthShrugLower", "mouthShrugUpper",
	"mouthSmileLeft", "mouthSmileRight", "mouthStretchLeft", "mouthStretchRight",
	"mouthUpperUpLeft", "mouthUpperUpRight", "noseSneerLeft", "noseSneerRight",
	"tongueOut",
}

// OculusVisemes lists the 15 Oculus viseme morph targets.
var OculusVisemes = []string{
	"viseme_sil", "viseme_PP", "viseme_FF", "viseme_TH", "viseme_DD",
	"viseme_kk", "viseme_CH", "viseme_SS", "viseme_nn", "viseme_RR",
	"viseme_aa", "viseme_E", "viseme_I", "viseme_O", "viseme_U",
}

// DefaultMorphTargets returns the morph target dictionary of the stock head.
func DefaultMorphTargets() []string {
	names := make([]string, 0, len(OculusVisemes)+len(ARKitBlendshapes))
	names = append(names, OculusVisemes...)
	return append(names, ARKitBlendshapes...)
}

// MorphWeights holds the weight of each named morph target.
type MorphWeights map[string]float32

// NewMorphWeights creates zeroed weights for the given morph target names.
func NewMorphWeights(names []string) MorphWeights {
	w := make(MorphWeights, len(names))
	for _, n := range names {
		w[n] = 0
	}
	return w
}

// Has reports whether name is a known morph target.
func (w MorphWeights) Has(name string) bool {
	_, ok := w[name]
	return ok
}

// Set stores value clamped to [0,1] for a known target. Unknown names are ignored.
func (w MorphWeights) Set(name string, value float32) {
	if _, ok := w[name]; !ok {
		return
	}
	w[name] = clamp(value, 0, 1)
}

func (w MorphWeights) Get(name string) float32 {
	return w[name]
}

func (w MorphWeights) Reset() {
	for k := range w {
		w[k] = 0
	}
}

func (w MorphWeights) Clone() MorphWeights {
	out := make(MorphWeights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Names returns the morph target names in sorted order.
func (w MorphWeights) Names() []string {
	names := make([]string, 0, len(w))
	for k := range w {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
