// Package tessellate turns the bodies of a scene description into the
// triangle mesh the distance field is baked from. Analytic solids are
// tessellated by a geometry kernel; OBJ meshes are loaded and placed.
package tessellate

import (
	"fmt"
	"log"

	"github.com/chazu/sdfsim/pkg/kernel"
	"github.com/chazu/sdfsim/pkg/mesh"
	"github.com/chazu/sdfsim/pkg/scene"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// placement is a body's transform: scale, then rotate, then translate.
type placement struct {
	scale  float64
	rotate v3.Vec
	at     v3.Vec
}

func placementOf(b scene.Body) placement {
	return placement{scale: b.ScaleFactor(), rotate: b.Rotate, at: b.At}
}

func (p placement) solid(k kernel.Kernel, s kernel.Solid) kernel.Solid {
	if p.scale != 1 {
		s = k.Scale(s, p.scale)
	}
	if p.rotate != (v3.Vec{}) {
		s = k.Rotate(s, p.rotate)
	}
	if p.at != (v3.Vec{}) {
		s = k.Translate(s, p.at)
	}
	return s
}

func (p placement) mesh(m *mesh.Mesh) error {
	if p.scale != 1 {
		if err := m.Scale(v3.Vec{X: p.scale, Y: p.scale, Z: p.scale}); err != nil {
			return err
		}
	}
	if p.rotate != (v3.Vec{}) {
		m.Rotate(p.rotate)
	}
	if p.at != (v3.Vec{}) {
		m.Translate(p.at)
	}
	return nil
}

// Tessellator converts scene bodies to meshes. OBJ files named more than
// once are read once.
type Tessellator struct {
	Kernel kernel.Kernel
	// Cells is the marching cubes resolution for analytic solids; <= 0
	// selects the kernel default.
	Cells  int
	Logger *log.Logger

	objs map[string]*mesh.Mesh
}

// New returns a Tessellator using k.
func New(k kernel.Kernel, cells int) *Tessellator {
	return &Tessellator{Kernel: k, Cells: cells}
}

func (t *Tessellator) logger() *log.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return log.Default()
}

// Bodies produces one mesh per body, named after it. The description is
// never mutated.
func (t *Tessellator) Bodies(d *scene.Description) ([]*mesh.Mesh, error) {
	var meshes []*mesh.Mesh
	for _, b := range d.Bodies {
		if b.Shape == nil {
			return nil, fmt.Errorf("tessellate: body %s has no shape", b.Name)
		}
		m, err := t.body(d, b)
		if err != nil {
			return nil, fmt.Errorf("tessellate: body %s: %w", b.Name, err)
		}
		t.logger().Printf("tessellate: body %s: %d triangles", b.Name, m.FaceCount())
		meshes = append(meshes, m)
	}
	return meshes, nil
}

// Tessellate merges every body into a single collider mesh.
func (t *Tessellator) Tessellate(d *scene.Description) (*mesh.Mesh, error) {
	parts, err := t.Bodies(d)
	if err != nil {
		return nil, err
	}
	collider := mesh.New("collider")
	for _, p := range parts {
		collider.Merge(p)
	}
	if collider.IsEmpty() {
		return nil, fmt.Errorf("tessellate: scene has no geometry")
	}
	return collider, nil
}

// Tessellate is shorthand for New(k, cells).Tessellate(d).
func Tessellate(d *scene.Description, k kernel.Kernel, cells int) (*mesh.Mesh, error) {
	return New(k, cells).Tessellate(d)
}

func (t *Tessellator) body(d *scene.Description, b scene.Body) (*mesh.Mesh, error) {
	place := placementOf(b)
	out := mesh.New(b.Name)
	if err := t.walk(d, b.Shape, place, out); err != nil {
		return nil, err
	}
	return out, nil
}

// walk appends the triangles of s under place to out. Analytic subtrees
// go through the kernel as one solid; unions of meshes are concatenated.
func (t *Tessellator) walk(d *scene.Description, s *scene.Shape, place placement, out *mesh.Mesh) error {
	if s.Analytic() {
		if t.Kernel == nil {
			return fmt.Errorf("%s needs a geometry kernel", s.Kind)
		}
		solid, err := t.solid(s)
		if err != nil {
			return err
		}
		m, err := t.Kernel.ToMesh(place.solid(t.Kernel, solid), out.Name, t.Cells)
		if err != nil {
			return err
		}
		out.Merge(m)
		return nil
	}

	switch s.Kind {
	case scene.ShapeMesh:
		m, err := t.loadOBJ(d.Resolve(s.Path))
		if err != nil {
			return err
		}
		if err := place.mesh(m); err != nil {
			return fmt.Errorf("place %s: %w", s.Path, err)
		}
		out.Merge(m)
		return nil

	case scene.ShapeUnion:
		for _, c := range s.Children {
			if err := t.walk(d, c, place, out); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%s of obj meshes is not supported", s.Kind)
}

// loadOBJ returns a private copy of the mesh at path.
func (t *Tessellator) loadOBJ(path string) (*mesh.Mesh, error) {
	if m, ok := t.objs[path]; ok {
		return m.Clone(), nil
	}
	m, err := mesh.LoadOBJ(path)
	if err != nil {
		return nil, err
	}
	if t.objs == nil {
		t.objs = make(map[string]*mesh.Mesh)
	}
	t.objs[path] = m
	return m.Clone(), nil
}

// solid builds the kernel solid for an analytic shape tree.
func (t *Tessellator) solid(s *scene.Shape) (kernel.Solid, error) {
	k := t.Kernel
	switch s.Kind {
	case scene.ShapeBox:
		return k.Box(s.Size.X, s.Size.Y, s.Size.Z)
	case scene.ShapeSphere:
		return k.Sphere(s.Radius)
	case scene.ShapeCylinder:
		return k.Cylinder(s.Height, s.Radius)
	}

	if len(s.Children) == 0 {
		return nil, fmt.Errorf("%s has no operands", s.Kind)
	}
	acc, err := t.solid(s.Children[0])
	if err != nil {
		return nil, err
	}
	for _, c := range s.Children[1:] {
		next, err := t.solid(c)
		if err != nil {
			return nil, err
		}
		switch s.Kind {
		case scene.ShapeUnion:
			acc = k.Union(acc, next)
		case scene.ShapeDifference:
			acc = k.Difference(acc, next)
		case scene.ShapeIntersection:
			acc = k.Intersection(acc, next)
		default:
			return nil, fmt.Errorf("unexpected shape %s", s.Kind)
		}
	}
	return acc, nil
}
