// Package particle advances point masses under gravity and resolves their
// collisions against a signed distance field.
package particle

import (
	"math/rand"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Particle is a point mass. Color is carried for renderers only.
type Particle struct {
	Position v3.Vec  `json:"position"`
	Velocity v3.Vec  `json:"velocity"`
	Color    v3.Vec  `json:"color"`
	Mass     float64 `json:"mass"`
}

// Gray is the color given to particles that do not specify one.
var Gray = v3.Vec{X: 0.5, Y: 0.5, Z: 0.5}

// Emit places n particles uniformly at random in the box [lo, hi] with zero
// velocity, gray color and a random mass in [0, 1).
func Emit(rng *rand.Rand, n int, lo, hi v3.Vec) []Particle {
	size := hi.Sub(lo)
	ps := make([]Particle, n)
	for i := range ps {
		ps[i] = Particle{
			Position: lo.Add(v3.Vec{X: rng.Float64() * size.X, Y: rng.Float64() * size.Y, Z: rng.Float64() * size.Z}),
			Color:    Gray,
			Mass:     rng.Float64(),
		}
	}
	return ps
}

// Bounds returns the box spanned by the particle positions.
func Bounds(ps []Particle) (lo, hi v3.Vec) {
	if len(ps) == 0 {
		return v3.Vec{}, v3.Vec{}
	}
	lo, hi = ps[0].Position, ps[0].Position
	for _, p := range ps[1:] {
		lo = lo.Min(p.Position)
		hi = hi.Max(p.Position)
	}
	return lo, hi
}
