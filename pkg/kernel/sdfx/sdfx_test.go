package sdfx

import (
	"math"
	"testing"

	"github.com/chazu/sdfsim/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// mustSolid returns a checker for a primitive constructor's results, so
// calls read mustSolid(t)(k.Box(...)).
func mustSolid(t *testing.T) func(kernel.Solid, error) kernel.Solid {
	return func(s kernel.Solid, err error) kernel.Solid {
		t.Helper()
		if err != nil {
			t.Fatalf("primitive: %v", err)
		}
		return s
	}
}

func TestBox(t *testing.T) {
	k := New()
	box := mustSolid(t)(k.Box(1, 0.5, 0.25))
	m, err := k.ToMesh(box, "box", 32)
	if err != nil {
		t.Fatalf("ToMesh failed: %v", err)
	}
	if m.IsEmpty() {
		t.Fatal("mesh is empty")
	}
	if m.VertexCount() != 3*m.FaceCount() {
		t.Fatalf("vertex count %d != 3 * face count %d", m.VertexCount(), m.FaceCount())
	}
	if m.NormalCount() != m.FaceCount() {
		t.Fatalf("normal count %d != face count %d", m.NormalCount(), m.FaceCount())
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	t.Logf("box triangle count: %d", m.FaceCount())
}

func TestSphereEvaluate(t *testing.T) {
	k := New()
	s := mustSolid(t)(k.Sphere(2))
	tests := []struct {
		p    v3.Vec
		want float64
	}{
		{v3.Vec{}, -2},
		{v3.Vec{X: 3}, 1},
		{v3.Vec{Y: -2}, 0},
	}
	for _, tt := range tests {
		if got := s.Evaluate(tt.p); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Evaluate(%v) = %g, want %g", tt.p, got, tt.want)
		}
	}
}

func TestSphereMeshBounds(t *testing.T) {
	k := New()
	m, err := k.ToMesh(mustSolid(t)(k.Sphere(1)), "ball", 40)
	if err != nil {
		t.Fatalf("ToMesh failed: %v", err)
	}
	b := m.Bounds()
	const tol = 0.1
	if math.Abs(b.Max.X-1) > tol || math.Abs(b.Min.Y+1) > tol {
		t.Errorf("sphere mesh bounds = %v, want about [-1, 1]^3", b)
	}
}

func TestCylinder(t *testing.T) {
	k := New()
	cyl := mustSolid(t)(k.Cylinder(2, 0.5))
	min, max := cyl.BoundingBox()
	if math.Abs(max.Z-1) > 0.01 || math.Abs(min.X+0.5) > 0.01 {
		t.Errorf("cylinder bounds = %v..%v", min, max)
	}
	m, err := k.ToMesh(cyl, "cyl", 32)
	if err != nil {
		t.Fatalf("ToMesh failed: %v", err)
	}
	if m.IsEmpty() {
		t.Fatal("mesh is empty")
	}
}

func TestDifference(t *testing.T) {
	k := New()

	box := mustSolid(t)(k.Box(1, 1, 1))
	cyl := mustSolid(t)(k.Cylinder(1.2, 0.2))
	diff := k.Difference(box, cyl)

	// The hole is empty, the wall is solid.
	if d := diff.Evaluate(v3.Vec{}); d <= 0 {
		t.Errorf("distance in the hole = %g, want > 0", d)
	}
	if d := diff.Evaluate(v3.Vec{X: 0.35}); d >= 0 {
		t.Errorf("distance in the wall = %g, want < 0", d)
	}

	boxMesh, err := k.ToMesh(box, "box", 32)
	if err != nil {
		t.Fatalf("ToMesh(box) failed: %v", err)
	}
	diffMesh, err := k.ToMesh(diff, "diff", 32)
	if err != nil {
		t.Fatalf("ToMesh(diff) failed: %v", err)
	}
	// A box with a hole should have more triangles than a plain box.
	if diffMesh.FaceCount() <= boxMesh.FaceCount() {
		t.Fatalf("difference (%d triangles) should have more triangles than box (%d triangles)",
			diffMesh.FaceCount(), boxMesh.FaceCount())
	}
}

func TestUnionAndIntersection(t *testing.T) {
	k := New()
	a := mustSolid(t)(k.Box(1, 1, 1))
	b := k.Translate(mustSolid(t)(k.Box(1, 1, 1)), v3.Vec{X: 0.6})

	u := k.Union(a, b)
	if d := u.Evaluate(v3.Vec{X: 1}); d >= 0 {
		t.Errorf("union misses the second box: %g", d)
	}
	i := k.Intersection(a, b)
	if d := i.Evaluate(v3.Vec{X: -0.4}); d <= 0 {
		t.Errorf("intersection contains a point only in the first box: %g", d)
	}
	if d := i.Evaluate(v3.Vec{X: 0.3}); d >= 0 {
		t.Errorf("intersection misses the overlap: %g", d)
	}
}

func TestTranslate(t *testing.T) {
	k := New()
	box := mustSolid(t)(k.Box(10, 10, 10))
	translated := k.Translate(box, v3.Vec{X: 100, Y: 200, Z: 300})

	min, max := translated.BoundingBox()

	// Translated box(10,10,10) by (100,200,300) should be centered at (100,200,300).
	const tol = 0.5
	expectMin := v3.Vec{X: 95, Y: 195, Z: 295}
	expectMax := v3.Vec{X: 105, Y: 205, Z: 305}
	if min.Sub(expectMin).Length() > tol {
		t.Errorf("min = %v, expected ~%v", min, expectMin)
	}
	if max.Sub(expectMax).Length() > tol {
		t.Errorf("max = %v, expected ~%v", max, expectMax)
	}
}

func TestRotate(t *testing.T) {
	k := New()
	box := mustSolid(t)(k.Box(100, 10, 10))

	// A long box along X rotated 90 degrees around Z should extend along Y instead.
	rotated := k.Rotate(box, v3.Vec{Z: 90})
	min, max := rotated.BoundingBox()

	xExtent := max.X - min.X
	yExtent := max.Y - min.Y

	const tol = 1.0
	if math.Abs(xExtent-10) > tol {
		t.Errorf("rotated X extent = %f, expected ~10", xExtent)
	}
	if math.Abs(yExtent-100) > tol {
		t.Errorf("rotated Y extent = %f, expected ~100", yExtent)
	}
}

func TestScale(t *testing.T) {
	k := New()
	s := k.Scale(mustSolid(t)(k.Sphere(1)), 3)
	if d := s.Evaluate(v3.Vec{X: 4}); math.Abs(d-1) > 1e-9 {
		t.Errorf("scaled sphere distance = %g, want 1", d)
	}
}

func TestInvalidPrimitive(t *testing.T) {
	k := New()
	if _, err := k.Sphere(-1); err == nil {
		t.Error("Sphere(-1) succeeded")
	}
	if _, err := k.Cylinder(1, -0.5); err == nil {
		t.Error("Cylinder(1, -0.5) succeeded")
	}
}
