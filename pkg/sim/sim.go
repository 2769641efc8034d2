// Package sim ties the pieces together: it turns a scene description into
// a collider mesh and distance field, spawns the particles and steps them,
// handing every frame to a recorder.
package sim

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/chazu/sdfsim/pkg/grid"
	"github.com/chazu/sdfsim/pkg/kernel"
	"github.com/chazu/sdfsim/pkg/mesh"
	"github.com/chazu/sdfsim/pkg/particle"
	"github.com/chazu/sdfsim/pkg/scene"
	"github.com/chazu/sdfsim/pkg/tessellate"
)

// Recorder receives every simulated frame. *trajectory.Writer satisfies it.
type Recorder interface {
	Record(frame int, t float64, ps []particle.Particle, stats particle.StepStats) error
	Close() error
}

// RunStats summarizes a Run call.
type RunStats struct {
	Frames     int
	Collisions int
	PushOuts   int
	Elapsed    time.Duration
}

// Context holds all simulation state explicitly; nothing is global.
type Context struct {
	Scene  *scene.Description
	Kernel kernel.Kernel

	Mesh       *mesh.Mesh
	Grid       *grid.Grid
	BuildStats grid.BuildStats
	Particles  []particle.Particle
	Stepper    *particle.Stepper

	// Recorder is optional.
	Recorder Recorder
	// OnFrame, when set, is called after every frame is recorded.
	OnFrame func(frame int, ps []particle.Particle, stats particle.StepStats)
	// MeshCells is the tessellation resolution for analytic bodies.
	MeshCells int
	Logger    *log.Logger
	Rand      *rand.Rand

	// Frame and Time advance with every step.
	Frame int
	Time  float64
}

// NewContext validates d and returns an unprepared context. k may be nil
// when the scene has no analytic bodies.
func NewContext(d *scene.Description, k kernel.Kernel) (*Context, error) {
	if d == nil {
		return nil, fmt.Errorf("sim: nil scene")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &Context{Scene: d, Kernel: k}, nil
}

func (c *Context) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func (c *Context) rng() *rand.Rand {
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(1))
	}
	return c.Rand
}

// Prepare obtains the distance field, spawns the particles and builds the
// stepper. A grid already set on the context is reused.
func (c *Context) Prepare(ctx context.Context) error {
	if c.Grid == nil {
		if err := c.prepareGrid(ctx); err != nil {
			return err
		}
	}
	if err := c.spawn(); err != nil {
		return err
	}
	s, err := particle.NewStepper(c.Grid, c.Scene.Step)
	if err != nil {
		return fmt.Errorf("sim: %w", err)
	}
	s.Workers = c.Scene.Grid.Workers
	c.Stepper = s
	c.logger().Printf("sim: %d particles in a %dx%dx%d grid",
		len(c.Particles), c.Grid.Cells[0], c.Grid.Cells[1], c.Grid.Cells[2])
	return nil
}

func (c *Context) prepareGrid(ctx context.Context) error {
	d := c.Scene
	if d.Grid.File != "" {
		path := d.Resolve(d.Grid.File)
		g, err := grid.Load(path, d.Grid.Format)
		if err != nil {
			return fmt.Errorf("sim: %w", err)
		}
		c.logger().Printf("sim: loaded %s grid %s", d.Grid.Format, path)
		c.Grid = g
		return nil
	}

	if c.Mesh == nil {
		tess := tessellate.New(c.Kernel, c.MeshCells)
		tess.Logger = c.Logger
		m, err := tess.Tessellate(d)
		if err != nil {
			return fmt.Errorf("sim: %w", err)
		}
		c.Mesh = m
	}

	b := &grid.Builder{
		CellSize: d.Grid.CellSize,
		Margin:   d.Grid.Margin,
		Workers:  d.Grid.Workers,
		Logger:   c.Logger,
	}
	g, stats, err := b.Build(ctx, c.Mesh)
	if err != nil {
		return fmt.Errorf("sim: %w", err)
	}
	c.Grid, c.BuildStats = g, stats
	return nil
}

func (c *Context) spawn() error {
	d := c.Scene
	c.Particles = c.Particles[:0]
	for _, s := range d.Seeds {
		ps, err := particle.LoadSeeds(d.Resolve(s.Path), particle.SeedOptions{
			Offset: s.Offset,
			Jitter: s.Jitter,
			Rand:   c.rng(),
		})
		if err != nil {
			return fmt.Errorf("sim: %w", err)
		}
		c.Particles = append(c.Particles, ps...)
	}
	for _, e := range d.Emitters {
		c.Particles = append(c.Particles, particle.Emit(c.rng(), e.Count, e.Min, e.Max)...)
	}
	return nil
}

// Run advances frames steps, recording the starting state first when the
// context is at frame zero. It stops early when ctx is cancelled.
func (c *Context) Run(ctx context.Context, frames int) (RunStats, error) {
	if c.Stepper == nil {
		return RunStats{}, fmt.Errorf("sim: Run before Prepare")
	}
	start := time.Now()
	var rs RunStats

	if c.Frame == 0 {
		if err := c.emit(particle.StepStats{}); err != nil {
			return rs, err
		}
	}
	for i := 0; i < frames; i++ {
		stats, err := c.Stepper.Step(ctx, c.Particles)
		if err != nil {
			rs.Elapsed = time.Since(start)
			return rs, err
		}
		c.Frame++
		c.Time += c.Stepper.Params.Dt
		rs.Frames++
		rs.Collisions += stats.Collisions
		rs.PushOuts += stats.PushOuts
		if err := c.emit(stats); err != nil {
			rs.Elapsed = time.Since(start)
			return rs, err
		}
	}
	rs.Elapsed = time.Since(start)
	c.logger().Printf("sim: %d frames in %s, %d collisions, %d push-outs",
		rs.Frames, rs.Elapsed, rs.Collisions, rs.PushOuts)
	return rs, nil
}

func (c *Context) emit(stats particle.StepStats) error {
	if c.Recorder != nil {
		if err := c.Recorder.Record(c.Frame, c.Time, c.Particles, stats); err != nil {
			return fmt.Errorf("sim: frame %d: %w", c.Frame, err)
		}
	}
	if c.OnFrame != nil {
		c.OnFrame(c.Frame, c.Particles, stats)
	}
	return nil
}

// Close closes the recorder, if any.
func (c *Context) Close() error {
	if c.Recorder == nil {
		return nil
	}
	return c.Recorder.Close()
}
