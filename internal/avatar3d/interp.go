package avatar3d

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// maxFactor is the largest interpolation factor a single tick may apply.
// Keeping it below 1 means a value approaches its target without landing past it.
var maxFactor = math.Nextafter32(1, 0)

// stepFactor converts a per-second approach rate into a per-tick factor in [0,1).
func stepFactor(dt, rate float32) float32 {
	return clampFactor(dt * rate)
}

func clampFactor(f float32) float32 {
	if f != f || f <= 0 {
		return 0
	}
	if f >= 1 {
		return maxFactor
	}
	return f
}

func lerp(from, to, t float32) float32 {
	return from + (to-from)*t
}

func clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// slerp interpolates along the shorter arc between two orientations.
func slerp(from, to mgl32.Quat, t float32) mgl32.Quat {
	if from.Dot(to) < 0 {
		to = to.Scale(-1)
	}
	return mgl32.QuatSlerp(from, to, t)
}

// angleBetween returns the rotation angle in radians separating two orientations.
func angleBetween(a, b mgl32.Quat) float32 {
	d := a.Normalize().Dot(b.Normalize())
	if d < 0 {
		d = -d
	}
	if d > 1 {
		d = 1
	}
	return 2 * float32(math.Acos(float64(d)))
}

// QuatFromXYZW converts the wire order (x, y, z, w) into a quaternion.
func QuatFromXYZW(v [4]float32) mgl32.Quat {
	return mgl32.Quat{W: v[3], V: mgl32.Vec3{v[0], v[1], v[2]}}
}

// QuatToXYZW converts a quaternion into the wire order (x, y, z, w).
func QuatToXYZW(q mgl32.Quat) [4]float32 {
	return [4]float32{q.V[0], q.V[1], q.V[2], q.W}
}
