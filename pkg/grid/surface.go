package grid

import (
	"bufio"
	"fmt"
	"io"

	"github.com/chazu/sdfsim/pkg/mesh"
	"github.com/deadsy/sdfx/render"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// DefaultSurfaceCells is the marching cubes resolution along the longest
// axis when Isosurface is called with cells <= 0.
const DefaultSurfaceCells = 100

// Isosurface extracts the zero level set of g with marching cubes. The
// field is sampled nearest-cell, so the surface is stepped at cell scale.
func (g *Grid) Isosurface(name string, cells int) (*mesh.Mesh, error) {
	if cells <= 0 {
		cells = DefaultSurfaceCells
	}
	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(g, renderer)
	if len(triangles) == 0 {
		return nil, fmt.Errorf("grid: no zero crossing in %dx%dx%d field", g.Cells[0], g.Cells[1], g.Cells[2])
	}
	m := mesh.New(name)
	for _, tri := range triangles {
		m.AddTriangle(tri[0], tri[1], tri[2], tri.Normal())
	}
	return m, nil
}

// Voxelize returns the corner positions of all cells whose sample is below
// threshold, in flat-index order. Threshold 0 selects the solid interior.
func (g *Grid) Voxelize(threshold float64) []v3.Vec {
	var out []v3.Vec
	for _, c := range g.cells {
		if c.Distance < threshold {
			out = append(out, c.Pos)
		}
	}
	return out
}

// WritePoints writes one "x y z" line per point, the layout particle seed
// files use.
func WritePoints(w io.Writer, pts []v3.Vec) error {
	bw := bufio.NewWriter(w)
	for _, p := range pts {
		fmt.Fprintf(bw, "%g %g %g\n", p.X, p.Y, p.Z)
	}
	return bw.Flush()
}
