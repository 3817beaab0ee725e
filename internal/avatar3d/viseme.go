package avatar3d

// VisemeMode selects how the face is driven.
type VisemeMode int

const (
	// VisemeLive follows sparse targets installed by the audio queue.
	VisemeLive VisemeMode = iota
	// VisemeBatched follows a baked timeline indexed by playback position.
	VisemeBatched
)

func (m VisemeMode) String() string {
	if m == VisemeBatched {
		return "batched"
	}
	return "live"
}

type VisemeConfig struct {
	Attack    float32 // per-second approach rate toward live targets
	Decay     float32 // per-second relax rate while idle
	Threshold float32 // weights at or below this are left alone while idle
	Smoothing float32 // per-tick blend factor in batched mode
}

func DefaultVisemeConfig() VisemeConfig {
	return VisemeConfig{
		Attack:    12,
		Decay:     8,
		Threshold: 0.01,
		Smoothing: 0.5,
	}
}

// VisemeDriver moves morph target weights toward live targets or a baked timeline.
type VisemeDriver struct {
	cfg      VisemeConfig
	weights  MorphWeights
	mode     VisemeMode
	targets  map[string]float32
	timeline *Timeline
}

// NewVisemeDriver creates a driver over the given morph target dictionary.
// Target names outside the dictionary are ignored.
func NewVisemeDriver(names []string, cfg VisemeConfig) *VisemeDriver {
	if len(names) == 0 {
		names = DefaultMorphTargets()
	}
	return &VisemeDriver{
		cfg:     cfg,
		weights: NewMorphWeights(names),
		mode:    VisemeLive,
	}
}

func (d *VisemeDriver) Mode() VisemeMode { return d.mode }

// UseLive switches to live mode and forgets any timeline.
func (d *VisemeDriver) UseLive() {
	d.mode = VisemeLive
	d.timeline = nil
}

// UseTimeline switches to batched mode over tl.
func (d *VisemeDriver) UseTimeline(tl *Timeline) {
	d.mode = VisemeBatched
	d.timeline = tl
	d.targets = nil
}

// SetTargets replaces the live target map. The map is not copied and must not
// be modified by the caller afterwards.
func (d *VisemeDriver) SetTargets(targets map[string]float32) {
	d.targets = targets
}

// Update advances the weights by dt seconds. active reports whether audio is
// playing, position is the playback position of the current segment.
func (d *VisemeDriver) Update(dt float32, active bool, position float32) {
	if !active {
		d.relax(dt)
		return
	}
	switch d.mode {
	case VisemeBatched:
		d.followTimeline(position)
	default:
		d.followTargets(dt)
	}
}

func (d *VisemeDriver) followTargets(dt float32) {
	f := stepFactor(dt, d.cfg.Attack)
	for name, target := range d.targets {
		cur, ok := d.weights[name]
		if !ok {
			continue
		}
		d.weights[name] = lerp(cur, clamp(target, 0, 1), f)
	}
}

func (d *VisemeDriver) followTimeline(position float32) {
	if d.timeline == nil {
		return
	}
	frame, ok := d.timeline.FrameAt(position)
	if !ok {
		return
	}
	f := clampFactor(d.cfg.Smoothing)
	for _, name := range d.timeline.Names() {
		cur, known := d.weights[name]
		if !known {
			continue
		}
		d.weights[name] = lerp(cur, clamp(frame.Weights[name], 0, 1), f)
	}
}

func (d *VisemeDriver) relax(dt float32) {
	f := stepFactor(dt, d.cfg.Decay)
	for name, cur := range d.weights {
		if cur <= d.cfg.Threshold {
			continue
		}
		d.weights[name] = lerp(cur, 0, f)
	}
}

// Weight returns the current weight of a morph target.
func (d *VisemeDriver) Weight(name string) float32 {
	return d.weights[name]
}

// Weights returns a copy of all current weights.
func (d *VisemeDriver) Weights() MorphWeights {
	return d.weights.Clone()
}

// Reset zeroes every weight and drops live targets and timeline.
func (d *VisemeDriver) Reset() {
	d.weights.Reset()
	d.targets = nil
	d.timeline = nil
	d.mode = VisemeLive
}
