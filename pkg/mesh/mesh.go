// Package mesh holds indexed triangle meshes: vertices, per-face normals,
// optional texture coordinates, and faces referencing them by index.
//
// The axis-aligned bounding box is derived data. Every mutating method
// invalidates it and Bounds recomputes it on the next call, so it is never
// stale.
package mesh

import (
	"fmt"
	"math"

	"github.com/chazu/sdfsim/pkg/geom"
	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Face is one triangle: three vertex indices, optional texture coordinate
// indices (-1 when absent) and the index of its face normal.
type Face struct {
	V  [3]int `json:"v"`
	UV [3]int `json:"uv"`
	N  int    `json:"n"`
}

// NewFace returns a face without texture coordinates.
func NewFace(a, b, c, n int) Face {
	return Face{V: [3]int{a, b, c}, UV: [3]int{-1, -1, -1}, N: n}
}

// Mesh is an indexed triangle mesh.
type Mesh struct {
	Name string

	vertices []v3.Vec
	normals  []v3.Vec
	uvs      []v2.Vec
	faces    []Face

	bounds      sdf.Box3
	boundsValid bool
}

// New returns an empty mesh.
func New(name string) *Mesh {
	return &Mesh{Name: name}
}

// AddVertex appends a vertex and returns its index.
func (m *Mesh) AddVertex(v v3.Vec) int {
	m.vertices = append(m.vertices, v)
	m.boundsValid = false
	return len(m.vertices) - 1
}

// AddNormal appends a face normal and returns its index.
func (m *Mesh) AddNormal(n v3.Vec) int {
	m.normals = append(m.normals, n)
	return len(m.normals) - 1
}

// AddUV appends a texture coordinate and returns its index.
func (m *Mesh) AddUV(uv v2.Vec) int {
	m.uvs = append(m.uvs, uv)
	return len(m.uvs) - 1
}

// AddFace appends a face. Indices are not checked; see Validate.
func (m *Mesh) AddFace(f Face) {
	m.faces = append(m.faces, f)
}

// AddTriangle appends a face with its own three vertices and normal n.
// It returns the index of the new face.
func (m *Mesh) AddTriangle(a, b, c, n v3.Vec) int {
	ia := m.AddVertex(a)
	ib := m.AddVertex(b)
	ic := m.AddVertex(c)
	m.AddFace(NewFace(ia, ib, ic, m.AddNormal(n)))
	return len(m.faces) - 1
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.vertices) }

// NormalCount returns the number of face normals.
func (m *Mesh) NormalCount() int { return len(m.normals) }

// UVCount returns the number of texture coordinates.
func (m *Mesh) UVCount() int { return len(m.uvs) }

// FaceCount returns the number of faces.
func (m *Mesh) FaceCount() int { return len(m.faces) }

// IsEmpty returns true if the mesh has no faces.
func (m *Mesh) IsEmpty() bool { return len(m.faces) == 0 }

// Vertex returns vertex i.
func (m *Mesh) Vertex(i int) v3.Vec { return m.vertices[i] }

// Normal returns face normal i.
func (m *Mesh) Normal(i int) v3.Vec { return m.normals[i] }

// UV returns texture coordinate i.
func (m *Mesh) UV(i int) v2.Vec { return m.uvs[i] }

// Face returns face i.
func (m *Mesh) Face(i int) Face { return m.faces[i] }

// Triangle builds the geometric triangle for face i. It fails with a
// *MalformedMeshError for out-of-range indices and wraps geom.ErrDegenerate
// for faces without area.
func (m *Mesh) Triangle(i int) (geom.Triangle, error) {
	if i < 0 || i >= len(m.faces) {
		return geom.Triangle{}, fmt.Errorf("mesh %s: face %d out of range [0, %d)", m.Name, i, len(m.faces))
	}
	f := m.faces[i]
	if errs := m.checkFace(i, f); len(errs) > 0 {
		return geom.Triangle{}, &MalformedMeshError{Mesh: m.Name, Errors: errs}
	}
	t, err := geom.NewTriangle(m.vertices[f.V[0]], m.vertices[f.V[1]], m.vertices[f.V[2]], m.normals[f.N])
	if err != nil {
		return geom.Triangle{}, fmt.Errorf("mesh %s: face %d: %w", m.Name, i, err)
	}
	return t, nil
}

// Bounds returns the axis-aligned bounding box of the vertices, recomputing
// it if a mutation invalidated the cached value. An empty mesh has a zero box.
func (m *Mesh) Bounds() sdf.Box3 {
	if m.boundsValid {
		return m.bounds
	}
	m.bounds = sdf.Box3{}
	if len(m.vertices) > 0 {
		lo, hi := m.vertices[0], m.vertices[0]
		for _, v := range m.vertices[1:] {
			lo = lo.Min(v)
			hi = hi.Max(v)
		}
		m.bounds = sdf.Box3{Min: lo, Max: hi}
	}
	m.boundsValid = true
	return m.bounds
}

// Translate moves every vertex by d.
func (m *Mesh) Translate(d v3.Vec) {
	for i := range m.vertices {
		m.vertices[i] = m.vertices[i].Add(d)
	}
	m.boundsValid = false
}

// Scale multiplies every vertex component-wise by s. Normals are transformed
// by the inverse scale and renormalized; a mirroring scale reverses face
// winding so faces stay counter-clockwise about their normals.
func (m *Mesh) Scale(s v3.Vec) error {
	if s.X == 0 || s.Y == 0 || s.Z == 0 {
		return fmt.Errorf("mesh %s: scale %v has a zero component", m.Name, s)
	}
	for i := range m.vertices {
		m.vertices[i] = m.vertices[i].Mul(s)
	}
	inv := v3.Vec{X: 1 / s.X, Y: 1 / s.Y, Z: 1 / s.Z}
	for i := range m.normals {
		m.normals[i] = normalize(m.normals[i].Mul(inv))
	}
	if s.X*s.Y*s.Z < 0 {
		for i := range m.faces {
			f := &m.faces[i]
			f.V[1], f.V[2] = f.V[2], f.V[1]
			f.UV[1], f.UV[2] = f.UV[2], f.UV[1]
		}
	}
	m.boundsValid = false
	return nil
}

// Rotate applies Euler angles in degrees, X first, then Y, then Z, about
// the origin.
func (m *Mesh) Rotate(deg v3.Vec) {
	rot := sdf.RotateZ(radians(deg.Z)).Mul(sdf.RotateY(radians(deg.Y))).Mul(sdf.RotateX(radians(deg.X)))
	for i := range m.vertices {
		m.vertices[i] = rot.MulPosition(m.vertices[i])
	}
	for i := range m.normals {
		m.normals[i] = rot.MulPosition(m.normals[i])
	}
	m.boundsValid = false
}

// Merge appends other's geometry to m, rebasing its indices.
func (m *Mesh) Merge(other *Mesh) {
	vOff, nOff, tOff := len(m.vertices), len(m.normals), len(m.uvs)
	m.vertices = append(m.vertices, other.vertices...)
	m.normals = append(m.normals, other.normals...)
	m.uvs = append(m.uvs, other.uvs...)
	for _, f := range other.faces {
		nf := f
		for k := 0; k < 3; k++ {
			nf.V[k] += vOff
			if nf.UV[k] >= 0 {
				nf.UV[k] += tOff
			}
		}
		nf.N += nOff
		m.faces = append(m.faces, nf)
	}
	m.boundsValid = false
}

// Clone returns a deep copy of m.
func (m *Mesh) Clone() *Mesh {
	c := New(m.Name)
	c.Merge(m)
	return c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func normalize(v v3.Vec) v3.Vec {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.MulScalar(1 / l)
}
