package scene

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/chazu/sdfsim/pkg/grid"
	"github.com/chazu/sdfsim/pkg/particle"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ShapeKind identifies the node type of a collider shape tree.
type ShapeKind int

const (
	ShapeBox ShapeKind = iota
	ShapeSphere
	ShapeCylinder
	ShapeMesh
	ShapeUnion
	ShapeDifference
	ShapeIntersection
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeBox:
		return "box"
	case ShapeSphere:
		return "sphere"
	case ShapeCylinder:
		return "cylinder"
	case ShapeMesh:
		return "mesh"
	case ShapeUnion:
		return "union"
	case ShapeDifference:
		return "difference"
	case ShapeIntersection:
		return "intersection"
	}
	return fmt.Sprintf("ShapeKind(%d)", int(k))
}

// Shape is a node of a collider shape tree. Leaves are primitives or OBJ
// meshes; inner nodes are booleans over their Children.
type Shape struct {
	Kind     ShapeKind
	Size     v3.Vec  // box
	Radius   float64 // sphere, cylinder
	Height   float64 // cylinder
	Path     string  // mesh
	Children []*Shape
}

// Analytic reports whether the tree contains no mesh leaves.
func (s *Shape) Analytic() bool {
	if s.Kind == ShapeMesh {
		return false
	}
	for _, c := range s.Children {
		if !c.Analytic() {
			return false
		}
	}
	return true
}

// Body places a shape in the world. Transforms apply scale, then rotate,
// then translate.
type Body struct {
	Name   string
	Shape  *Shape
	At     v3.Vec
	Rotate v3.Vec  // Euler degrees, X then Y then Z
	Scale  float64 // 0 means 1
}

// ScaleFactor returns Scale with the zero value mapped to 1.
func (b Body) ScaleFactor() float64 {
	if b.Scale == 0 {
		return 1
	}
	return b.Scale
}

// GridSpec selects how the distance field is obtained: baked from the
// bodies, or loaded from File when it is set.
type GridSpec struct {
	CellSize float64
	Margin   float64
	Workers  int
	File     string
	Format   grid.Format
}

// SeedSpec loads particle start positions from a point file.
type SeedSpec struct {
	Path   string
	Offset v3.Vec
	Jitter bool
}

// EmitSpec spawns Count particles uniformly in the box [Min, Max).
type EmitSpec struct {
	Count    int
	Min, Max v3.Vec
}

// Description is the result of evaluating a scene script.
type Description struct {
	// Dir resolves relative paths named by the script.
	Dir string

	Bodies   []Body
	Grid     GridSpec
	Seeds    []SeedSpec
	Emitters []EmitSpec
	Step     particle.Params
	Frames   int
}

// NewDescription returns a description carrying the default grid and
// stepper parameters.
func NewDescription() *Description {
	return &Description{
		Grid: GridSpec{
			CellSize: grid.DefaultCellSize,
			Margin:   grid.DefaultMargin,
		},
		Step: particle.DefaultParams(),
	}
}

// Resolve joins a relative path onto Dir.
func (d *Description) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || d.Dir == "" {
		return path
	}
	return filepath.Join(d.Dir, path)
}

// ParticleCount is the number of particles the description will spawn
// from emitters. Seed files are not counted.
func (d *Description) ParticleCount() int {
	n := 0
	for _, e := range d.Emitters {
		n += e.Count
	}
	return n
}

// Validate checks that the description can be simulated.
func (d *Description) Validate() error {
	var errs []error
	if len(d.Bodies) == 0 && d.Grid.File == "" {
		errs = append(errs, errors.New("no bodies and no sdf-file"))
	}
	if d.Grid.File == "" && d.Grid.CellSize <= 0 {
		errs = append(errs, fmt.Errorf("grid cell size %g must be positive", d.Grid.CellSize))
	}
	if d.Grid.Margin < 0 {
		errs = append(errs, fmt.Errorf("grid margin %g is negative", d.Grid.Margin))
	}
	if d.Frames < 0 {
		errs = append(errs, fmt.Errorf("frame count %d is negative", d.Frames))
	}
	for i, e := range d.Emitters {
		if e.Count < 0 {
			errs = append(errs, fmt.Errorf("emitter %d: negative count %d", i, e.Count))
		}
	}
	if err := d.Step.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("scene: %w", errors.Join(errs...))
	}
	return nil
}
