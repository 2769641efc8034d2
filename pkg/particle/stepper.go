package particle

import (
	"context"
	"fmt"
	"runtime"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"golang.org/x/sync/errgroup"
)

// Field is the distance field particles collide with. Distance is negative
// inside the solid and large outside the sampled region; Gradient points
// into the solid. *grid.Grid satisfies it.
type Field interface {
	Distance(p v3.Vec) float64
	Gradient(p v3.Vec) v3.Vec
}

// Params holds the integration and collision constants.
type Params struct {
	Dt          float64 `json:"dt"`
	Gravity     v3.Vec  `json:"gravity"`
	Threshold   float64 `json:"threshold"`   // collision band around the surface
	Friction    float64 `json:"friction"`    // Coulomb coefficient mu
	Restitution float64 `json:"restitution"` // normal restitution e
	PushOut     float64 `json:"pushOut"`     // penetration correction gain
}

// DefaultParams returns the stock constants.
func DefaultParams() Params {
	return Params{
		Dt:          0.01,
		Gravity:     v3.Vec{Y: -9.8},
		Threshold:   0.1,
		Friction:    0.3,
		Restitution: 0.3,
		PushOut:     2,
	}
}

// Validate rejects parameters that cannot produce a stable step.
func (p Params) Validate() error {
	switch {
	case !(p.Dt > 0):
		return fmt.Errorf("particle: dt must be positive, got %g", p.Dt)
	case p.Friction < 0:
		return fmt.Errorf("particle: friction must be non-negative, got %g", p.Friction)
	case p.Restitution < 0 || p.Restitution > 1:
		return fmt.Errorf("particle: restitution must be in [0, 1], got %g", p.Restitution)
	case p.PushOut < 0:
		return fmt.Errorf("particle: push-out must be non-negative, got %g", p.PushOut)
	}
	return nil
}

// StepStats counts what happened during one Step.
type StepStats struct {
	Collisions int `json:"collisions"`
	PushOuts   int `json:"pushOuts"`
}

// Stepper integrates particles with explicit Euler against a Field.
type Stepper struct {
	Field   Field
	Params  Params
	Workers int // concurrent chunks; runtime.NumCPU() if <= 0
}

// NewStepper returns a stepper with the given field and parameters.
func NewStepper(f Field, p Params) (*Stepper, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Stepper{Field: f, Params: p}, nil
}

// minChunk keeps tiny particle sets on one goroutine.
const minChunk = 256

// Step advances every particle by one time step. Particles do not interact,
// so they are split into chunks stepped concurrently.
func (s *Stepper) Step(ctx context.Context, ps []Particle) (StepStats, error) {
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	chunk := (len(ps) + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}
	nChunks := (len(ps) + chunk - 1) / chunk
	counts := make([]StepStats, nChunks)

	eg, gctx := errgroup.WithContext(ctx)
	for c := 0; c < nChunks; c++ {
		lo, hi := c*chunk, min((c+1)*chunk, len(ps))
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				collided, pushed := s.Advance(&ps[i])
				if collided {
					counts[c].Collisions++
				}
				if pushed {
					counts[c].PushOuts++
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return StepStats{}, fmt.Errorf("particle: step: %w", err)
	}
	var total StepStats
	for _, c := range counts {
		total.Collisions += c.Collisions
		total.PushOuts += c.PushOuts
	}
	return total, nil
}

// Advance moves one particle by one time step:
//
//  1. v += dt*g
//  2. inside the collision band, apply Collide with the outward normal
//  3. x += dt*v
//  4. if x ended up inside the solid, x += PushOut * d * Gradient(x)
//
// Step 4 moves the particle outward because d < 0 and the gradient points
// inward.
func (s *Stepper) Advance(p *Particle) (collided, pushed bool) {
	prm := s.Params
	p.Velocity = p.Velocity.Add(prm.Gravity.MulScalar(prm.Dt))

	if s.Field != nil && s.Field.Distance(p.Position) < prm.Threshold {
		n := s.Field.Gradient(p.Position).MulScalar(-1)
		v := Collide(p.Velocity, n, prm.Friction, prm.Restitution)
		collided = v != p.Velocity
		p.Velocity = v
	}

	p.Position = p.Position.Add(p.Velocity.MulScalar(prm.Dt))

	if s.Field != nil {
		if d := s.Field.Distance(p.Position); d < 0 {
			g := s.Field.Gradient(p.Position)
			p.Position = p.Position.Add(g.MulScalar(prm.PushOut * d))
			pushed = true
		}
	}
	return collided, pushed
}

// Collide applies Coulomb friction with restitution to v at a contact with
// outward unit normal n. Only approaching motion (v·n < 0) is changed: the
// normal component is reflected and scaled by e, and the tangential speed
// drops by mu*(1+e)*|v·n|, stopping at zero.
func Collide(v, n v3.Vec, mu, e float64) v3.Vec {
	vn := v.Dot(n)
	if vn >= 0 {
		return v
	}
	vt := v.Sub(n.MulScalar(vn))
	slip := vt.Length()
	loss := mu * (1 + e) * -vn
	if slip <= loss {
		vt = v3.Vec{}
	} else {
		vt = vt.MulScalar(1 - loss/slip)
	}
	return vt.Add(n.MulScalar(-e * vn))
}
