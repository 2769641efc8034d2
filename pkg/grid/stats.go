package grid

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the samples of a grid. Unset cells are counted but
// excluded from the moments.
type Stats struct {
	Cells  int
	Set    int
	Unset  int
	Inside int // samples < 0
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// Stats computes summary statistics over the set samples.
func (g *Grid) Stats() Stats {
	s := Stats{Cells: len(g.cells)}
	set := make([]float64, 0, len(g.cells))
	for _, c := range g.cells {
		if c.Distance == Sentinel {
			s.Unset++
			continue
		}
		if c.Distance < 0 {
			s.Inside++
		}
		set = append(set, c.Distance)
	}
	s.Set = len(set)
	if len(set) == 0 {
		return s
	}
	s.Min = floats.Min(set)
	s.Max = floats.Max(set)
	s.Mean, s.StdDev = stat.MeanStdDev(set, nil)
	return s
}

func (s Stats) String() string {
	return fmt.Sprintf("cells=%d set=%d unset=%d inside=%d min=%.4g max=%.4g mean=%.4g stddev=%.4g",
		s.Cells, s.Set, s.Unset, s.Inside, s.Min, s.Max, s.Mean, s.StdDev)
}
