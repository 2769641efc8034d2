package grid

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"runtime"
	"time"

	"github.com/chazu/sdfsim/pkg/geom"
	"github.com/chazu/sdfsim/pkg/mesh"
	"golang.org/x/sync/errgroup"
)

// TieTolerance is the magnitude difference under which two candidate
// distances for a cell count as equal. Equal candidates resolve to the
// positive one.
const TieTolerance = 0.0001

// Defaults used by a zero Builder.
const (
	DefaultCellSize = 0.1
	DefaultMargin   = 0.2
)

// Builder samples a mesh's signed distance onto a grid.
type Builder struct {
	CellSize float64 // edge length of a cell; DefaultCellSize if zero
	Margin   float64 // padding around the mesh bounds; DefaultMargin if zero
	Workers  int     // concurrent z-slabs; runtime.NumCPU() if <= 0
	Logger   *log.Logger
}

// BuildStats summarizes one build.
type BuildStats struct {
	Cells        int
	Faces        int
	SkippedFaces int
	Elapsed      time.Duration
}

func (b *Builder) logger() *log.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return log.Default()
}

func (b *Builder) workers() int {
	if b.Workers > 0 {
		return b.Workers
	}
	return runtime.NumCPU()
}

// Build allocates a grid covering m's bounds plus the margin and fills it.
func (b *Builder) Build(ctx context.Context, m *mesh.Mesh) (*Grid, BuildStats, error) {
	if m.IsEmpty() {
		return nil, BuildStats{}, fmt.Errorf("grid: mesh %q has no faces", m.Name)
	}
	cs, margin := b.CellSize, b.Margin
	if cs == 0 {
		cs = DefaultCellSize
	}
	if margin == 0 {
		margin = DefaultMargin
	}
	g, err := NewCovering(m.Bounds(), cs, margin)
	if err != nil {
		return nil, BuildStats{}, err
	}
	stats, err := b.Fill(ctx, g, m)
	if err != nil {
		return nil, stats, err
	}
	return g, stats, nil
}

// Fill samples every cell of g against every face of m. Each cell keeps
// the candidate with the smallest magnitude; see Closer for ties. The face
// loop for a cell is sequential, so the result does not depend on the
// number of workers. Malformed meshes are rejected before any work starts;
// degenerate faces are skipped and counted.
func (b *Builder) Fill(ctx context.Context, g *Grid, m *mesh.Mesh) (BuildStats, error) {
	start := time.Now()
	if err := m.Validate(); err != nil {
		return BuildStats{}, err
	}

	tris := make([]geom.Triangle, 0, m.FaceCount())
	skipped := 0
	for i := 0; i < m.FaceCount(); i++ {
		t, err := m.Triangle(i)
		if errors.Is(err, geom.ErrDegenerate) {
			skipped++
			continue
		}
		if err != nil {
			return BuildStats{}, err
		}
		tris = append(tris, t)
	}
	if skipped > 0 {
		b.logger().Printf("grid: skipped %d degenerate face(s) of %q", skipped, m.Name)
	}
	stats := BuildStats{Cells: g.Len(), Faces: len(tris), SkippedFaces: skipped}

	nx, ny, nz := g.Cells[0], g.Cells[1], g.Cells[2]
	slab := nx * ny
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(b.workers())
	for k := 0; k < nz; k++ {
		if gctx.Err() != nil {
			break
		}
		lo := k * slab
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for flat := lo; flat < lo+slab; flat++ {
				c := &g.cells[flat]
				c.Distance = nearest(tris, c)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return stats, fmt.Errorf("grid: build %q: %w", m.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("grid: build %q: %w", m.Name, err)
	}
	stats.Elapsed = time.Since(start)
	b.logger().Printf("grid: built %dx%dx%d cells against %d faces in %v", nx, ny, nz, len(tris), stats.Elapsed)
	return stats, nil
}

func nearest(tris []geom.Triangle, c *Cell) float64 {
	d := Sentinel
	for _, t := range tris {
		d = Closer(d, t.Distance(c.Pos))
	}
	return d
}

// Closer folds a candidate distance into the current best. The candidate
// wins when its magnitude is smaller. When the magnitudes are within
// TieTolerance the positive value is kept: the candidate if it is positive,
// otherwise the current value.
func Closer(cur, cand float64) float64 {
	next := cur
	if math.Abs(cand) < math.Abs(cur) {
		next = cand
	}
	if math.Abs(math.Abs(cand)-math.Abs(cur)) < TieTolerance {
		if cand > 0 {
			next = cand
		} else {
			next = cur
		}
	}
	return next
}
