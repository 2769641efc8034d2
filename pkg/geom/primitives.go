package geom

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ProjectPointOnSegment projects q onto the infinite line through a and b
// and returns (u, v) such that the projection is u*a + v*b with u+v = 1.
// The values are not clamped: v < 0 means the projection lies before a,
// v > 1 means it lies past b.
func ProjectPointOnSegment(a, b, q v3.Vec) (u, v float64) {
	ab := b.Sub(a)
	length := ab.Length()
	dir := ab.MulScalar(1 / length)
	v = q.Sub(a).Dot(dir) / length
	return 1 - v, v
}

// SignedArea returns |v1 x v2|, negated when the cross product points
// against ref. The factor of one half is omitted; every caller takes ratios.
func SignedArea(v1, v2, ref v3.Vec) float64 {
	c := v1.Cross(v2)
	if c.X == 0 && c.Y == 0 && c.Z == 0 {
		return 0
	}
	area := c.Length()
	if c.Dot(ref) < 0 {
		return -area
	}
	return area
}

// Barycentric returns the coordinates (u, v, w) of p with respect to the
// triangle abc, using n as the orientation reference for signed areas.
// p is assumed to lie in the plane of the triangle.
func Barycentric(a, b, c, n, p v3.Vec) (u, v, w float64) {
	ab := b.Sub(a)
	bc := c.Sub(b)
	ca := a.Sub(c)
	ac := c.Sub(a)

	abc := SignedArea(ab, ac, n)
	u = SignedArea(bc, p.Sub(b), n) / abc
	v = SignedArea(ca, p.Sub(c), n) / abc
	w = SignedArea(ab, p.Sub(a), n) / abc
	return u, v, w
}

// ProjectPointOntoPlane drops p onto the plane through a with unit normal n.
// b and c are accepted so the call mirrors the other triangle helpers.
func ProjectPointOntoPlane(a, b, c, n, p v3.Vec) v3.Vec {
	return p.Sub(n.MulScalar(p.Sub(a).Dot(n)))
}

// unit returns v scaled to length one and false when v has no direction.
func unit(v v3.Vec) (v3.Vec, bool) {
	l := v.Length()
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return v3.Vec{}, false
	}
	return v.MulScalar(1 / l), true
}
