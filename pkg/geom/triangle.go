package geom

import (
	"errors"
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// SignEpsilon is the plane distance below which a point is treated as lying
// on the triangle's plane. Such points always get a positive sign.
const SignEpsilon = 0.01

// degenerateTolerance bounds |ab x ac| relative to |ab||ac|.
const degenerateTolerance = 1e-12

// ErrDegenerate reports a triangle with (near) zero area or no usable normal.
var ErrDegenerate = errors.New("degenerate triangle")

// Feature identifies the part of a triangle closest to a query point.
type Feature int

const (
	FeatureFace Feature = iota // interior of the triangle
	FeatureA                   // vertex A
	FeatureB                   // vertex B
	FeatureC                   // vertex C
	FeatureAB                  // edge AB
	FeatureBC                  // edge BC
	FeatureCA                  // edge CA
)

func (f Feature) String() string {
	switch f {
	case FeatureFace:
		return "face"
	case FeatureA:
		return "A"
	case FeatureB:
		return "B"
	case FeatureC:
		return "C"
	case FeatureAB:
		return "AB"
	case FeatureBC:
		return "BC"
	case FeatureCA:
		return "CA"
	default:
		return fmt.Sprintf("Feature(%d)", int(f))
	}
}

// Triangle is a counter-clockwise triangle ABC with outward unit normal N.
type Triangle struct {
	A, B, C v3.Vec
	N       v3.Vec
}

// NewTriangle validates the vertices and normalizes n. A zero normal is
// replaced by the normal implied by the winding of a, b, c. The returned
// error wraps ErrDegenerate when the triangle has no area.
func NewTriangle(a, b, c, n v3.Vec) (Triangle, error) {
	ab := b.Sub(a)
	ac := c.Sub(a)
	cross := ab.Cross(ac)
	scale := ab.Length() * ac.Length()
	if scale == 0 || math.IsNaN(scale) || cross.Length() <= degenerateTolerance*scale {
		return Triangle{}, fmt.Errorf("%w: vertices %v %v %v", ErrDegenerate, a, b, c)
	}
	if n.X == 0 && n.Y == 0 && n.Z == 0 {
		n = cross
	}
	un, ok := unit(n)
	if !ok {
		return Triangle{}, fmt.Errorf("%w: unusable normal %v", ErrDegenerate, n)
	}
	return Triangle{A: a, B: b, C: c, N: un}, nil
}

// Distance returns the signed distance from p to the triangle.
func (t Triangle) Distance(p v3.Vec) float64 {
	_, d := t.Closest(p)
	return d
}

// Closest returns the feature nearest to p together with the signed
// distance. Vertex regions are tested before edge regions, in the order
// A, B, C, AB, BC, CA; the first match wins.
func (t Triangle) Closest(p v3.Vec) (Feature, float64) {
	a, b, c, n := t.A, t.B, t.C, t.N

	h := p.Sub(a).Dot(n)
	sign := 1.0
	if math.Abs(h) >= SignEpsilon && h < 0 {
		sign = -1
	}

	proj := ProjectPointOntoPlane(a, b, c, n, p)
	u, v, w := Barycentric(a, b, c, n, proj)
	if within(u) && within(v) && within(w) {
		return FeatureFace, math.Abs(h) * sign
	}

	uAB, vAB := ProjectPointOnSegment(a, b, proj)
	uBC, vBC := ProjectPointOnSegment(b, c, proj)
	uCA, vCA := ProjectPointOnSegment(c, a, proj)

	var (
		feature Feature
		dist    float64
	)
	switch {
	case vAB <= 0 && uCA <= 0:
		feature, dist = FeatureA, p.Sub(a).Length()
	case uAB <= 0 && vBC <= 0:
		feature, dist = FeatureB, p.Sub(b).Length()
	case uBC <= 0 && vCA <= 0:
		feature, dist = FeatureC, p.Sub(c).Length()
	case uAB > 0 && vAB > 0 && w <= 0:
		feature, dist = FeatureAB, p.Sub(foot(a, b, proj)).Length()
	case uBC > 0 && vBC > 0 && u <= 0:
		feature, dist = FeatureBC, p.Sub(foot(b, c, proj)).Length()
	case uCA > 0 && vCA > 0 && v <= 0:
		feature, dist = FeatureCA, p.Sub(foot(c, a, proj)).Length()
	default:
		// Rounding left proj in none of the six regions.
		feature, dist = t.nearestEdge(p)
	}
	return feature, dist * sign
}

// Distance is the functional form of Triangle.Distance. It fails only when
// the triangle is degenerate.
func Distance(a, b, c, n, p v3.Vec) (float64, error) {
	t, err := NewTriangle(a, b, c, n)
	if err != nil {
		return 0, err
	}
	return t.Distance(p), nil
}

// Centroid returns the mean of the three vertices.
func (t Triangle) Centroid() v3.Vec {
	return t.A.Add(t.B).Add(t.C).MulScalar(1.0 / 3.0)
}

// within reports whether a barycentric coordinate lies in [0, 1].
func within(x float64) bool {
	return x >= 0 && x <= 1
}

// foot returns the perpendicular foot of q on the line through from and to.
func foot(from, to, q v3.Vec) v3.Vec {
	dir, _ := unit(to.Sub(from))
	return from.Add(dir.MulScalar(q.Sub(from).Dot(dir)))
}

// nearestEdge measures p against the three clamped edge segments.
func (t Triangle) nearestEdge(p v3.Vec) (Feature, float64) {
	edges := [3]struct {
		from, to v3.Vec
		feature  Feature
	}{
		{t.A, t.B, FeatureAB},
		{t.B, t.C, FeatureBC},
		{t.C, t.A, FeatureCA},
	}
	best, bestDist := FeatureAB, math.Inf(1)
	for _, e := range edges {
		_, s := ProjectPointOnSegment(e.from, e.to, p)
		s = math.Max(0, math.Min(1, s))
		q := e.from.Add(e.to.Sub(e.from).MulScalar(s))
		if d := p.Sub(q).Length(); d < bestDist {
			best, bestDist = e.feature, d
		}
	}
	return best, bestDist
}
