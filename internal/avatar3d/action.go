package avatar3d

// Action plays one clip with its own time cursor and blend weight.
type Action struct {
	clip *AnimationClip
	loop bool

	time    float32
	weight  float32
	running bool
	done    bool

	fading    bool
	fadeFrom  float32
	fadeTo    float32
	fadeTime  float32
	fadeTotal float32
}

// NewAction creates a stopped action for clip. One-shot actions hold their
// final pose once the clip ends.
func NewAction(clip *AnimationClip, loop bool) *Action {
	return &Action{clip: clip, loop: loop}
}

func (a *Action) Clip() *AnimationClip { return a.clip }
func (a *Action) Time() float32        { return a.time }
func (a *Action) Weight() float32      { return a.weight }
func (a *Action) Running() bool        { return a.running }
func (a *Action) Done() bool           { return a.done }

// Play rewinds the action and starts it at weight.
func (a *Action) Play(weight float32) {
	a.time = 0
	a.done = false
	a.running = true
	a.fading = false
	a.weight = clamp(weight, 0, 1)
}

// SetWeight sets the blend weight directly and cancels any fade.
func (a *Action) SetWeight(w float32) {
	a.fading = false
	a.weight = clamp(w, 0, 1)
}

// FadeIn starts the action if needed and ramps its weight to 1 over d seconds.
func (a *Action) FadeIn(d float32) {
	if !a.running {
		a.Play(0)
	}
	a.fadeTowards(1, d)
}

// FadeOut ramps the weight to 0 over d seconds, then stops the action.
func (a *Action) FadeOut(d float32) {
	if !a.running {
		return
	}
	a.fadeTowards(0, d)
}

func (a *Action) fadeTowards(to, d float32) {
	if d <= 0 {
		a.fading = false
		a.weight = to
		if to == 0 {
			a.running = false
		}
		return
	}
	a.fading = true
	a.fadeFrom = a.weight
	a.fadeTo = to
	a.fadeTime = 0
	a.fadeTotal = d
}

// withClip returns a copy of the action playing clip instead, keeping the
// cursor, weight and any fade in progress.
func (a *Action) withClip(clip *AnimationClip) *Action {
	next := *a
	next.clip = clip
	if d := clip.Duration(); next.time >= d {
		next.time = 0
	}
	return &next
}

// Stop halts the action immediately.
func (a *Action) Stop() {
	a.running = false
	a.fading = false
	a.weight = 0
}

// Update advances the clip cursor and any fade by dt. It reports true on the
// tick a one-shot action reaches the end of its clip.
func (a *Action) Update(dt float32) bool {
	if !a.running {
		return false
	}

	finished := false
	dur := a.clip.Duration()
	a.time += dt
	switch {
	case dur <= 0:
		a.time = 0
		if !a.loop && !a.done {
			a.done = true
			finished = true
		}
	case a.loop:
		for a.time >= dur {
			a.time -= dur
		}
	case a.time >= dur:
		a.time = dur
		if !a.done {
			a.done = true
			finished = true
		}
	}

	if a.fading {
		a.fadeTime += dt
		p := a.fadeTime / a.fadeTotal
		if p >= 1 {
			a.fading = false
			a.weight = a.fadeTo
			if a.fadeTo == 0 {
				a.running = false
			}
		} else {
			a.weight = lerp(a.fadeFrom, a.fadeTo, p)
		}
	}
	return finished
}

// Sample evaluates the clip at the action's cursor.
func (a *Action) Sample() Pose {
	return a.clip.Sample(a.time)
}
