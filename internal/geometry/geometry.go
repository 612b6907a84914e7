package geometry

import "math"

// Vec3 is a position (km) or velocity (km/s) vector.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Add returns v + o*s.
func (v Vec3) AddScaled(o Vec3, s float64) Vec3 {
	return Vec3{v.X + o.X*s, v.Y + o.Y*s, v.Z + o.Z*s}
}

// ClosestApproach finds the time and distance of closest approach to the
// origin for an object moving in a straight line at constant velocity:
//
//	r(t) = r0 + v*(t - epochTS)
//
// minimized over t in [startTS, endTS]. The caller guarantees endTS > startTS.
//
// The unconstrained minimizer of ||r(t)||^2 is t* = epochTS - (r0·v)/(v·v);
// since the squared distance is convex in t, clamping t* into the window
// lands on the nearer boundary whenever the true minimum is outside it.
func ClosestApproach(epochTS int64, pos, vel Vec3, startTS, endTS int64) (tcaTS int64, minDistanceKM float64) {
	v2 := vel.Dot(vel)

	// Stationary object: the position never changes, so both window
	// endpoints are tied and the start wins the tie. Exact zero only;
	// a tiny velocity still yields a usable vertex.
	if v2 == 0 {
		return startTS, pos.Norm()
	}

	t0 := float64(epochTS)
	tStar := t0 - pos.Dot(vel)/v2
	tStar = clamp(tStar, float64(startTS), float64(endTS))

	at := pos.AddScaled(vel, tStar-t0)
	return int64(math.Round(tStar)), at.Norm()
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
