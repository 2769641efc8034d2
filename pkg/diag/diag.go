// Package diag computes diagnostics for distance fields and particle runs
// and plots them through matplotlib.
package diag

import (
	"fmt"

	"github.com/chazu/sdfsim/pkg/particle"
	v3 "github.com/deadsy/sdfx/vec/v3"
	plt "github.com/phil-mansfield/pyplot"
	"gonum.org/v1/gonum/floats"
)

// Sampler is anything with a scalar distance, such as *grid.Grid.
type Sampler interface {
	Distance(p v3.Vec) float64
}

// Profile samples f at n evenly spaced points from `from` to `to`. ts holds
// the segment parameter in [0, 1], ds the distances.
func Profile(f Sampler, from, to v3.Vec, n int) (ts, ds []float64, err error) {
	if n < 2 {
		return nil, nil, fmt.Errorf("diag: profile needs at least 2 samples, got %d", n)
	}
	ts = floats.Span(make([]float64, n), 0, 1)
	ds = make([]float64, n)
	seg := to.Sub(from)
	for i, t := range ts {
		ds[i] = f.Distance(from.Add(seg.MulScalar(t)))
	}
	return ts, ds, nil
}

// Crossings returns the parameters where the profile changes sign, found by
// linear interpolation between neighbouring samples.
func Crossings(ts, ds []float64) []float64 {
	var out []float64
	for i := 1; i < len(ds); i++ {
		a, b := ds[i-1], ds[i]
		if (a < 0) == (b < 0) {
			continue
		}
		out = append(out, ts[i-1]+(ts[i]-ts[i-1])*a/(a-b))
	}
	return out
}

// Energy is the mechanical energy of a particle set.
type Energy struct {
	Kinetic   float64
	Potential float64
}

func (e Energy) Total() float64 { return e.Kinetic + e.Potential }

// Measure returns the kinetic energy and the potential energy in the
// uniform field g, relative to the origin.
func Measure(ps []particle.Particle, g v3.Vec) Energy {
	var e Energy
	for _, p := range ps {
		e.Kinetic += 0.5 * p.Mass * p.Velocity.Dot(p.Velocity)
		e.Potential -= p.Mass * g.Dot(p.Position)
	}
	return e
}

// Trace accumulates energies frame by frame.
type Trace struct {
	Frames    []float64
	Kinetic   []float64
	Potential []float64
	Total     []float64
}

// Add appends one frame.
func (t *Trace) Add(frame int, e Energy) {
	t.Frames = append(t.Frames, float64(frame))
	t.Kinetic = append(t.Kinetic, e.Kinetic)
	t.Potential = append(t.Potential, e.Potential)
	t.Total = append(t.Total, e.Total())
}

// Len is the number of frames recorded.
func (t *Trace) Len() int { return len(t.Frames) }

// Dissipated is the fraction of the first frame's total energy lost by
// the last frame.
func (t *Trace) Dissipated() float64 {
	if t.Len() < 2 || t.Total[0] == 0 {
		return 0
	}
	return (t.Total[0] - t.Total[t.Len()-1]) / t.Total[0]
}

// PlotProfile queues a distance profile figure saved to fname. Call Render
// to run the queued plots.
func PlotProfile(fname, title string, ts, ds []float64) {
	plt.Figure()
	plt.Plot(ts, ds, "k", plt.LW(2))
	plt.Plot([]float64{0, 1}, []float64{0, 0}, "r")
	plt.Title(title)
	plt.XLabel("t", plt.FontSize(16))
	plt.YLabel("signed distance", plt.FontSize(16))
	plt.Grid(plt.Axis("y"))
	plt.SaveFig(fname)
}

// PlotEnergy queues an energy trace figure saved to fname.
func PlotEnergy(fname, title string, t *Trace) {
	plt.Figure()
	plt.Plot(t.Frames, t.Kinetic, "b", plt.LW(2))
	plt.Plot(t.Frames, t.Potential, "g", plt.LW(2))
	plt.Plot(t.Frames, t.Total, "k", plt.LW(3))
	plt.Title(title)
	plt.XLabel("frame", plt.FontSize(16))
	plt.YLabel("energy", plt.FontSize(16))
	plt.Grid(plt.Axis("y"))
	plt.SaveFig(fname)
}

// Render runs every queued plot.
func Render() {
	plt.Execute()
}
