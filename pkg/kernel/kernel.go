// Package kernel defines the solid modelling interface used to describe
// analytic collider shapes. Implementations turn solids into triangle
// meshes that the distance field builder consumes.
package kernel

import (
	"github.com/chazu/sdfsim/pkg/mesh"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Solid is an opaque handle to a kernel solid.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max v3.Vec)
	// Evaluate returns the analytic signed distance at p, negative inside.
	Evaluate(p v3.Vec) float64
}

// Kernel builds solids and tessellates them. All primitives are centered
// on the origin.
type Kernel interface {
	// Primitives
	Box(x, y, z float64) (Solid, error)
	Sphere(radius float64) (Solid, error)
	Cylinder(height, radius float64) (Solid, error) // axis along Z

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, d v3.Vec) Solid
	Rotate(s Solid, deg v3.Vec) Solid // Euler angles in degrees, X then Y then Z
	Scale(s Solid, k float64) Solid   // uniform

	// ToMesh tessellates s with the given number of cells along its
	// longest axis; cells <= 0 selects the kernel's default.
	ToMesh(s Solid, name string, cells int) (*mesh.Mesh, error)
}
