// Package grid stores a signed distance field sampled on a uniform voxel
// lattice and answers distance and gradient queries against it.
//
// Cells are addressed by a flat index i + j*nx + k*nx*ny, x varying
// fastest. The same hash is used when a grid is built, loaded and queried.
// Cells that were never written hold Sentinel.
package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Sentinel is the distance of unset cells and of queries outside the grid.
const Sentinel = 9999.0

var (
	// ErrOutOfBounds is returned for cell indices outside the lattice.
	ErrOutOfBounds = errors.New("grid: index out of bounds")
	// ErrDimensions is returned for non-positive extents or cell sizes,
	// and for sample counts that do not match the extents.
	ErrDimensions = errors.New("grid: bad dimensions")
)

// Cell is one lattice sample. Pos is the world-space corner of the cell.
type Cell struct {
	Index    [3]int
	Pos      v3.Vec
	Distance float64
}

// Grid is a uniform lattice of signed distance samples. It is written once
// by a Builder or a loader and is read-only afterwards, so concurrent
// queries are safe.
type Grid struct {
	Origin   v3.Vec
	CellSize float64
	Cells    [3]int

	cells []Cell
}

// New allocates a grid with every sample set to Sentinel.
func New(origin v3.Vec, cellSize float64, cells [3]int) (*Grid, error) {
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return nil, fmt.Errorf("%w: cell size %g", ErrDimensions, cellSize)
	}
	for _, n := range cells {
		if n <= 0 {
			return nil, fmt.Errorf("%w: extents %v", ErrDimensions, cells)
		}
	}
	g := &Grid{Origin: origin, CellSize: cellSize, Cells: cells}
	nx, ny, nz := cells[0], cells[1], cells[2]
	g.cells = make([]Cell, 0, nx*ny*nz)
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				g.cells = append(g.cells, Cell{
					Index:    [3]int{i, j, k},
					Pos:      g.cornerOf(i, j, k),
					Distance: Sentinel,
				})
			}
		}
	}
	return g, nil
}

// NewCovering returns a grid whose origin is box.Min-margin and whose
// extents are ceil((box.Max+margin - origin) / cellSize) + 1 on each axis,
// so cell corners reach both ends of the padded box.
func NewCovering(box sdf.Box3, cellSize, margin float64) (*Grid, error) {
	pad := v3.Vec{X: margin, Y: margin, Z: margin}
	lo := box.Min.Sub(pad)
	size := box.Max.Add(pad).Sub(lo)
	if !(cellSize > 0) {
		return nil, fmt.Errorf("%w: cell size %g", ErrDimensions, cellSize)
	}
	cells := [3]int{
		int(math.Ceil(size.X/cellSize)) + 1,
		int(math.Ceil(size.Y/cellSize)) + 1,
		int(math.Ceil(size.Z/cellSize)) + 1,
	}
	return New(lo, cellSize, cells)
}

func (g *Grid) cornerOf(i, j, k int) v3.Vec {
	return g.Origin.Add(v3.Vec{X: float64(i), Y: float64(j), Z: float64(k)}.MulScalar(g.CellSize))
}

// Len returns nx*ny*nz.
func (g *Grid) Len() int { return len(g.cells) }

// Index flattens (i, j, k). It does not check bounds.
func (g *Grid) Index(i, j, k int) int {
	return i + j*g.Cells[0] + k*g.Cells[0]*g.Cells[1]
}

// Coords is the inverse of Index.
func (g *Grid) Coords(flat int) (i, j, k int) {
	nx, ny := g.Cells[0], g.Cells[1]
	k = flat / (nx * ny)
	rem := flat % (nx * ny)
	return rem % nx, rem / nx, k
}

// Cell returns the cell at a flat index.
func (g *Grid) Cell(flat int) (Cell, error) {
	if flat < 0 || flat >= len(g.cells) {
		return Cell{}, fmt.Errorf("%w: flat index %d of %d", ErrOutOfBounds, flat, len(g.cells))
	}
	return g.cells[flat], nil
}

// At returns the sample stored at (i, j, k).
func (g *Grid) At(i, j, k int) (float64, error) {
	if !g.contains(i, j, k) {
		return 0, fmt.Errorf("%w: (%d, %d, %d) in %v", ErrOutOfBounds, i, j, k, g.Cells)
	}
	return g.cells[g.Index(i, j, k)].Distance, nil
}

// Set stores a sample at (i, j, k).
func (g *Grid) Set(i, j, k int, d float64) error {
	if !g.contains(i, j, k) {
		return fmt.Errorf("%w: (%d, %d, %d) in %v", ErrOutOfBounds, i, j, k, g.Cells)
	}
	g.cells[g.Index(i, j, k)].Distance = d
	return nil
}

func (g *Grid) contains(i, j, k int) bool {
	return i >= 0 && i < g.Cells[0] && j >= 0 && j < g.Cells[1] && k >= 0 && k < g.Cells[2]
}

// cornerTolerance is how close, in cells, a coordinate must be to a cell
// corner to be snapped onto it before flooring.
const cornerTolerance = 1e-9

// CellIndex returns the integer cell coordinates containing p, taken
// relative to the origin. The result may lie outside the lattice. A point
// on a cell corner, up to rounding, belongs to the cell starting there.
func (g *Grid) CellIndex(p v3.Vec) (i, j, k int) {
	r := p.Sub(g.Origin)
	return cellCoord(r.X / g.CellSize), cellCoord(r.Y / g.CellSize), cellCoord(r.Z / g.CellSize)
}

func cellCoord(x float64) int {
	if n := math.Round(x); math.Abs(x-n) < cornerTolerance {
		return int(n)
	}
	return int(math.Floor(x))
}

// Hash returns the flat index of the cell containing p. ok is false when
// any axis index falls outside [0, n).
func (g *Grid) Hash(p v3.Vec) (flat int, ok bool) {
	i, j, k := g.CellIndex(p)
	if !g.contains(i, j, k) {
		return -1, false
	}
	return g.Index(i, j, k), true
}

// Sample is the result of a distance query.
type Sample struct {
	Distance float64
	InBounds bool
}

// Query looks up the nearest-cell sample for p. Queries whose cell index
// on any axis lies outside [0, n-1) are out of bounds and report Sentinel.
// The last layer is excluded so that gradient stencils stay in the grid.
func (g *Grid) Query(p v3.Vec) Sample {
	i, j, k := g.CellIndex(p)
	if i < 0 || i >= g.Cells[0]-1 || j < 0 || j >= g.Cells[1]-1 || k < 0 || k >= g.Cells[2]-1 {
		return Sample{Distance: Sentinel}
	}
	return Sample{Distance: g.cells[g.Index(i, j, k)].Distance, InBounds: true}
}

// Distance returns the nearest-cell signed distance at p, or Sentinel.
func (g *Grid) Distance(p v3.Vec) float64 {
	return g.Query(p).Distance
}

// Gradient estimates the direction of steepest descent of the field at p:
// central differences one cell apart, blended bilinearly over the two other
// axes by p's fractional position in its cell, then negated and normalized.
// It points into the solid. A flat neighbourhood yields the zero vector.
func (g *Grid) Gradient(p v3.Vec) v3.Vec {
	r := p.Sub(g.Origin).MulScalar(1 / g.CellSize)
	frac := [3]float64{r.X - math.Floor(r.X), r.Y - math.Floor(r.Y), r.Z - math.Floor(r.Z)}
	axes := [3]v3.Vec{{X: g.CellSize}, {Y: g.CellSize}, {Z: g.CellSize}}

	var grad [3]float64
	for a := 0; a < 3; a++ {
		b, c := (a+1)%3, (a+2)%3
		fb, fc := frac[b], frac[c]
		grad[a] = (1-fb)*(1-fc)*g.centralDiff(p, axes[a]) +
			fb*(1-fc)*g.centralDiff(p.Add(axes[b]), axes[a]) +
			(1-fb)*fc*g.centralDiff(p.Add(axes[c]), axes[a]) +
			fb*fc*g.centralDiff(p.Add(axes[b]).Add(axes[c]), axes[a])
	}
	v := v3.Vec{X: -grad[0], Y: -grad[1], Z: -grad[2]}
	l := v.Length()
	if l == 0 || math.IsNaN(l) {
		return v3.Vec{}
	}
	return v.MulScalar(1 / l)
}

// centralDiff is d(q+h) - d(q-h). Where one side is outside the grid it
// falls back to a one-sided difference scaled to the same span.
func (g *Grid) centralDiff(q, h v3.Vec) float64 {
	fwd, back := g.Query(q.Add(h)), g.Query(q.Sub(h))
	switch {
	case fwd.InBounds && back.InBounds:
		return fwd.Distance - back.Distance
	case fwd.InBounds || back.InBounds:
		mid := g.Query(q)
		if !mid.InBounds {
			return 0
		}
		if fwd.InBounds {
			return 2 * (fwd.Distance - mid.Distance)
		}
		return 2 * (mid.Distance - back.Distance)
	default:
		return 0
	}
}

// Bounds returns the world-space box spanned by the cell corners.
func (g *Grid) Bounds() sdf.Box3 {
	return sdf.Box3{
		Min: g.Origin,
		Max: g.cornerOf(g.Cells[0]-1, g.Cells[1]-1, g.Cells[2]-1),
	}
}

// Evaluate makes Grid an sdf.SDF3 so it can be fed to sdfx renderers.
func (g *Grid) Evaluate(p v3.Vec) float64 {
	return g.Distance(p)
}

// BoundingBox implements sdf.SDF3.
func (g *Grid) BoundingBox() sdf.Box3 {
	return g.Bounds()
}

var _ sdf.SDF3 = (*Grid)(nil)

// Each calls fn for every cell in flat-index order.
func (g *Grid) Each(fn func(flat int, c Cell)) {
	for i, c := range g.cells {
		fn(i, c)
	}
}

// Samples returns a copy of the distance samples in flat-index order.
func (g *Grid) Samples() []float64 {
	out := make([]float64, len(g.cells))
	for i, c := range g.cells {
		out[i] = c.Distance
	}
	return out
}
