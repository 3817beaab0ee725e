package avatar3d

import (
	"github.com/go-gl/mathgl/mgl32"
)

type MotionConfig struct {
	Attack float32 // per-second slerp rate toward live targets
	Relax  float32 // per-second slerp rate back to identity while idle
}

func DefaultMotionConfig() MotionConfig {
	return MotionConfig{Attack: 8, Relax: 5}
}

// MotionDriver holds an orientation offset per bone that is layered on top of
// the mixer pose. Identity means no influence.
type MotionDriver struct {
	cfg     MotionConfig
	offsets map[string]mgl32.Quat
	targets map[string]mgl32.Quat
}

func NewMotionDriver(cfg MotionConfig) *MotionDriver {
	return &MotionDriver{
		cfg:     cfg,
		offsets: make(map[string]mgl32.Quat),
	}
}

// SetTargets replaces the live target map. Keys are bone names as sent by the
// generator; names the bone table does not know are used as rig joint names
// unchanged.
func (d *MotionDriver) SetTargets(targets map[string]mgl32.Quat) {
	d.targets = targets
}

// Update advances the bone offsets by dt seconds.
func (d *MotionDriver) Update(dt float32, active bool) {
	if !active {
		f := stepFactor(dt, d.cfg.Relax)
		ident := mgl32.QuatIdent()
		for bone, cur := range d.offsets {
			d.offsets[bone] = slerp(cur, ident, f).Normalize()
		}
		return
	}

	f := stepFactor(dt, d.cfg.Attack)
	for name, target := range d.targets {
		bone := PhysicalBoneOrRaw(name)
		cur, ok := d.offsets[bone]
		if !ok {
			cur = mgl32.QuatIdent()
		}
		d.offsets[bone] = slerp(cur, target.Normalize(), f).Normalize()
	}
}

// Offset returns the current offset of a rig joint.
func (d *MotionDriver) Offset(bone string) mgl32.Quat {
	if q, ok := d.offsets[bone]; ok {
		return q
	}
	return mgl32.QuatIdent()
}

// Offsets returns a copy of every tracked offset.
func (d *MotionDriver) Offsets() map[string]mgl32.Quat {
	out := make(map[string]mgl32.Quat, len(d.offsets))
	for k, v := range d.offsets {
		out[k] = v
	}
	return out
}

// Apply composes the offsets onto pose in place.
func (d *MotionDriver) Apply(pose Pose) {
	for bone, off := range d.offsets {
		base, ok := pose.Rotations[bone]
		if !ok {
			base = mgl32.QuatIdent()
		}
		pose.Rotations[bone] = off.Mul(base).Normalize()
	}
}

func (d *MotionDriver) Reset() {
	d.offsets = make(map[string]mgl32.Quat)
	d.targets = nil
}
