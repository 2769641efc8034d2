package particle

import (
	"fmt"
	"log"
	"math/rand"
	"os"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/phil-mansfield/table"
)

// SeedOptions controls how LoadSeeds synthesizes particle attributes.
type SeedOptions struct {
	Offset v3.Vec     // added to every position
	Jitter bool       // random initial velocity in [-0.5, 0.5) per axis
	Rand   *rand.Rand // mass and jitter source; seeded from 1 if nil
}

// LoadSeeds reads a particle seed file of one "x y z" position per line.
// Velocity is zero unless Jitter is set, mass is random in [0, 1) and the
// color is Gray. A file that cannot be opened is logged and returned as an
// error.
func LoadSeeds(path string, opts SeedOptions) ([]Particle, error) {
	if _, err := os.Stat(path); err != nil {
		log.Printf("failed to open particle file %s: %v", path, err)
		return nil, fmt.Errorf("particle: %w", err)
	}
	cols, err := table.ReadTable(path, []int{0, 1, 2}, nil)
	if err != nil {
		return nil, fmt.Errorf("particle: read %s: %w", path, err)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	xs, ys, zs := cols[0], cols[1], cols[2]
	ps := make([]Particle, len(xs))
	for i := range ps {
		p := Particle{
			Position: v3.Vec{X: xs[i], Y: ys[i], Z: zs[i]}.Add(opts.Offset),
			Color:    Gray,
		}
		if opts.Jitter {
			p.Velocity = v3.Vec{X: rng.Float64() - 0.5, Y: rng.Float64() - 0.5, Z: rng.Float64() - 0.5}
		}
		p.Mass = rng.Float64()
		ps[i] = p
	}
	return ps, nil
}
