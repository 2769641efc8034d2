package mesh

import (
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Box returns an axis-aligned box with 8 vertices and 12 outward-facing,
// counter-clockwise triangles.
func Box(name string, b sdf.Box3) *Mesh {
	m := New(name)
	lo, hi := b.Min, b.Max
	for i := 0; i < 8; i++ {
		v := lo
		if i&1 != 0 {
			v.X = hi.X
		}
		if i&2 != 0 {
			v.Y = hi.Y
		}
		if i&4 != 0 {
			v.Z = hi.Z
		}
		m.AddVertex(v)
	}
	sides := []struct {
		n    v3.Vec
		quad [4]int
	}{
		{v3.Vec{X: -1}, [4]int{0, 4, 6, 2}},
		{v3.Vec{X: 1}, [4]int{1, 3, 7, 5}},
		{v3.Vec{Y: -1}, [4]int{0, 1, 5, 4}},
		{v3.Vec{Y: 1}, [4]int{2, 6, 7, 3}},
		{v3.Vec{Z: -1}, [4]int{0, 2, 3, 1}},
		{v3.Vec{Z: 1}, [4]int{4, 5, 7, 6}},
	}
	for _, s := range sides {
		n := m.AddNormal(s.n)
		q := s.quad
		m.AddFace(NewFace(q[0], q[1], q[2], n))
		m.AddFace(NewFace(q[0], q[2], q[3], n))
	}
	return m
}

// Cube returns a box of edge length size centered on center.
func Cube(name string, center v3.Vec, size float64) *Mesh {
	h := v3.Vec{X: size / 2, Y: size / 2, Z: size / 2}
	return Box(name, sdf.Box3{Min: center.Sub(h), Max: center.Add(h)})
}
