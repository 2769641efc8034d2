package mesh

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/chazu/sdfsim/pkg/geom"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

func vec(x, y, z float64) v3.Vec { return v3.Vec{X: x, Y: y, Z: z} }

func near(a, b v3.Vec) bool { return a.Sub(b).Length() < 1e-9 }

const quadOBJ = `# unit square in z=0
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vn 0 0 1
f 1//1 2//1 3//1 4//1
`

func TestParseOBJQuadSplit(t *testing.T) {
	m, err := ParseOBJ(strings.NewReader(quadOBJ), "quad")
	if err != nil {
		t.Fatalf("ParseOBJ: %v", err)
	}
	if m.VertexCount() != 4 || m.NormalCount() != 1 {
		t.Fatalf("got %d vertices, %d normals", m.VertexCount(), m.NormalCount())
	}
	if m.FaceCount() != 2 {
		t.Fatalf("FaceCount() = %d, want 2", m.FaceCount())
	}
	want := [][3]int{{0, 1, 2}, {0, 2, 3}}
	for i, w := range want {
		f := m.Face(i)
		if f.V != w {
			t.Errorf("face %d = %v, want %v", i, f.V, w)
		}
		if f.N != 0 {
			t.Errorf("face %d normal = %d, want 0", i, f.N)
		}
	}
}

func TestParseOBJFaceForms(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 0 1 0
vt 0 0
vt 1 0
vt 0 1
vn 0 0 -1
vn 0 0 1
f 1/1/2 2/2/2 3/3/2
f 1 2 3
f 1//1 2//1 3//2
`
	m, err := ParseOBJ(strings.NewReader(src), "forms")
	if err != nil {
		t.Fatalf("ParseOBJ: %v", err)
	}
	if m.FaceCount() != 3 {
		t.Fatalf("FaceCount() = %d, want 3", m.FaceCount())
	}

	f0 := m.Face(0)
	if f0.UV != [3]int{0, 1, 2} || f0.N != 1 {
		t.Errorf("v/vt/vn face = %+v", f0)
	}

	// Bare faces get a normal from their winding.
	f1 := m.Face(1)
	if f1.UV != [3]int{-1, -1, -1} {
		t.Errorf("bare face uv = %v", f1.UV)
	}
	if !near(m.Normal(f1.N), vec(0, 0, 1)) {
		t.Errorf("derived normal = %v, want +z", m.Normal(f1.N))
	}

	// Last listed normal wins.
	if f2 := m.Face(2); f2.N != 1 {
		t.Errorf("v//vn normal = %d, want 1", f2.N)
	}
}

func TestParseOBJMalformed(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
vn 0 0 1
f 1//1 2//1 7//2
`
	_, err := ParseOBJ(strings.NewReader(src), "bad")
	var me *MalformedMeshError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want *MalformedMeshError", err)
	}
	if len(me.Errors) != 2 {
		t.Fatalf("got %d index errors, want 2: %v", len(me.Errors), me)
	}
	if me.Errors[0].Kind != "vertex" || me.Errors[0].Index != 6 {
		t.Errorf("first error = %+v", me.Errors[0])
	}
	if me.Errors[1].Kind != "normal" || me.Errors[1].Index != 1 {
		t.Errorf("second error = %+v", me.Errors[1])
	}
}

func TestParseOBJSyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"short vertex", "v 1 2\n", 1},
		{"bad number", "v 0 0 0\nv x 0 0\n", 2},
		{"five corners", "v 0 0 0\nf 1 1 1 1 1\n", 2},
		{"missing vertex index", "v 0 0 0\nf //1 1 1\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOBJ(strings.NewReader(tt.src), tt.name)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *ParseError", err)
			}
			if pe.Line != tt.line {
				t.Errorf("line = %d, want %d", pe.Line, tt.line)
			}
		})
	}
}

func TestWriteOBJRoundTrip(t *testing.T) {
	src := Cube("cube", vec(0, 0, 0), 1)
	var buf bytes.Buffer
	if err := WriteOBJ(&buf, src); err != nil {
		t.Fatalf("WriteOBJ: %v", err)
	}
	got, err := ParseOBJ(&buf, "cube")
	if err != nil {
		t.Fatalf("ParseOBJ: %v", err)
	}
	if got.FaceCount() != src.FaceCount() || got.VertexCount() != src.VertexCount() {
		t.Fatalf("round trip changed counts: %d/%d faces", got.FaceCount(), src.FaceCount())
	}
	for i := 0; i < src.FaceCount(); i++ {
		if got.Face(i) != src.Face(i) {
			t.Errorf("face %d = %+v, want %+v", i, got.Face(i), src.Face(i))
		}
	}
}

func TestBoundsInvalidatedByMutation(t *testing.T) {
	m := Cube("cube", vec(0, 0, 0), 2)
	b := m.Bounds()
	if !near(b.Min, vec(-1, -1, -1)) || !near(b.Max, vec(1, 1, 1)) {
		t.Fatalf("initial bounds = %v", b)
	}

	m.Translate(vec(1, 0, 0))
	b = m.Bounds()
	if !near(b.Min, vec(0, -1, -1)) || !near(b.Max, vec(2, 1, 1)) {
		t.Errorf("after Translate bounds = %v", b)
	}

	if err := m.Scale(vec(2, 1, 1)); err != nil {
		t.Fatalf("Scale: %v", err)
	}
	b = m.Bounds()
	if !near(b.Min, vec(0, -1, -1)) || !near(b.Max, vec(4, 1, 1)) {
		t.Errorf("after Scale bounds = %v", b)
	}

	m.AddVertex(vec(0, 5, 0))
	if b = m.Bounds(); b.Max.Y != 5 {
		t.Errorf("after AddVertex max.y = %g, want 5", b.Max.Y)
	}
}

func TestEmptyMeshBounds(t *testing.T) {
	m := New("empty")
	if !m.IsEmpty() {
		t.Error("IsEmpty() = false")
	}
	if b := m.Bounds(); b != (sdf.Box3{}) {
		t.Errorf("Bounds() = %v, want zero box", b)
	}
}

func TestScaleMirrorKeepsOrientation(t *testing.T) {
	m := Cube("cube", vec(0, 0, 0), 1)
	if err := m.Scale(vec(-1, 1, 1)); err != nil {
		t.Fatalf("Scale: %v", err)
	}
	for i := 0; i < m.FaceCount(); i++ {
		tri, err := m.Triangle(i)
		if err != nil {
			t.Fatalf("Triangle(%d): %v", i, err)
		}
		winding := tri.B.Sub(tri.A).Cross(tri.C.Sub(tri.A))
		if winding.Dot(tri.N) <= 0 {
			t.Errorf("face %d winding disagrees with normal %v", i, tri.N)
		}
	}
	if err := m.Scale(vec(0, 1, 1)); err == nil {
		t.Error("Scale with zero component succeeded")
	}
}

func TestRotate(t *testing.T) {
	m := New("pt")
	m.AddVertex(vec(1, 0, 0))
	m.AddNormal(vec(1, 0, 0))
	m.Rotate(vec(0, 0, 90))
	if !near(m.Vertex(0), vec(0, 1, 0)) {
		t.Errorf("vertex = %v, want (0,1,0)", m.Vertex(0))
	}
	if !near(m.Normal(0), vec(0, 1, 0)) {
		t.Errorf("normal = %v, want (0,1,0)", m.Normal(0))
	}
	if b := m.Bounds(); math.Abs(b.Max.Y-1) > 1e-9 {
		t.Errorf("bounds not refreshed: %v", b)
	}
}

func TestMergeRebasesIndices(t *testing.T) {
	a := Cube("a", vec(0, 0, 0), 1)
	b := Cube("b", vec(5, 0, 0), 1)
	a.Merge(b)
	if a.FaceCount() != 24 || a.VertexCount() != 16 || a.NormalCount() != 12 {
		t.Fatalf("merged counts: %d faces %d vertices %d normals", a.FaceCount(), a.VertexCount(), a.NormalCount())
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if f := a.Face(12); f.V[0] < 8 || f.N < 6 {
		t.Errorf("merged face not rebased: %+v", f)
	}
	if a.Bounds().Max.X != 5.5 {
		t.Errorf("merged bounds = %v", a.Bounds())
	}
}

func TestTriangleDegenerate(t *testing.T) {
	m := New("flat")
	m.AddVertex(vec(0, 0, 0))
	m.AddVertex(vec(1, 1, 1))
	m.AddVertex(vec(2, 2, 2))
	m.AddFace(NewFace(0, 1, 2, m.AddNormal(vec(0, 0, 1))))
	if _, err := m.Triangle(0); !errors.Is(err, geom.ErrDegenerate) {
		t.Fatalf("err = %v, want ErrDegenerate", err)
	}
}

func TestBuffers(t *testing.T) {
	m := Cube("cube", vec(0, 0, 0), 1)
	b := m.Buffers()
	if b.TriangleCount() != 12 || b.VertexCount() != 36 {
		t.Fatalf("buffers: %d triangles, %d vertices", b.TriangleCount(), b.VertexCount())
	}
	if b.IsEmpty() {
		t.Error("IsEmpty() = true")
	}
	if len(b.Normals) != len(b.Vertices) {
		t.Errorf("normals %d != vertices %d", len(b.Normals), len(b.Vertices))
	}
	if (&RenderBuffers{}).IsEmpty() == false {
		t.Error("empty buffers report geometry")
	}
}
