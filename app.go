package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"path/filepath"
	"strings"

	"github.com/chazu/sdfsim/pkg/config"
	"github.com/chazu/sdfsim/pkg/diag"
	"github.com/chazu/sdfsim/pkg/grid"
	"github.com/chazu/sdfsim/pkg/kernel"
	"github.com/chazu/sdfsim/pkg/kernel/sdfx"
	"github.com/chazu/sdfsim/pkg/particle"
	"github.com/chazu/sdfsim/pkg/scene"
	"github.com/chazu/sdfsim/pkg/sim"
	"github.com/chazu/sdfsim/pkg/tessellate"
	"github.com/chazu/sdfsim/pkg/trajectory"
)

// colorPalette is a default palette used to assign distinct colors to bodies.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// App wires the scene engine, the geometry kernel and the simulation
// together. The command line tools are thin wrappers around it.
type App struct {
	engine *scene.Engine
	kernel kernel.Kernel

	// Cells is the marching cubes resolution for analytic bodies; <= 0
	// selects the kernel default.
	Cells int
	// Dir is where relative paths in evaluated source resolve.
	Dir    string
	Logger *log.Logger
}

// MeshData is the JSON-serializable mesh format written by preview.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	BodyName string    `json:"bodyName"`
	Color    string    `json:"color"`
}

// EvalErrorData is a JSON-serializable eval error.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// EvalResult is the full result of previewing a scene script.
type EvalResult struct {
	Meshes    []MeshData      `json:"meshes"`
	Errors    []EvalErrorData `json:"errors"`
	Warnings  []EvalErrorData `json:"warnings"`
	Particles int             `json:"particles"`
	Frames    int             `json:"frames"`
}

// NewApp creates a new App with a scene engine and the sdfx kernel.
func NewApp() *App {
	return &App{
		engine: scene.NewEngine(),
		kernel: sdfx.New(),
	}
}

func (a *App) logger() *log.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return log.Default()
}

func (a *App) setLogger(l *log.Logger) {
	a.Logger = l
	a.engine.Logger = l
}

// Evaluate takes scene source and returns one mesh per body plus errors.
func (a *App) Evaluate(source string) EvalResult {
	result := EvalResult{
		Meshes:   []MeshData{},
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}

	// Step 1: Evaluate the script into a scene description.
	d, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		// Fatal error (panic, timeout, etc.)
		a.logger().Printf("Evaluate fatal error: %v", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}

	// Step 2: Convert eval errors.
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{
				Line:    e.Line,
				Col:     e.Col,
				Message: e.Message,
			})
		}
		return result
	}

	if a.Dir != "" {
		d.Dir = a.Dir
	}
	result.Particles = d.ParticleCount()
	result.Frames = d.Frames
	if len(d.Bodies) == 0 {
		return result
	}
	if len(d.Seeds) == 0 && d.ParticleCount() == 0 {
		result.Warnings = append(result.Warnings, EvalErrorData{Message: "scene spawns no particles"})
	}

	// Step 3: Tessellate every body.
	tess := tessellate.New(a.kernel, a.Cells)
	tess.Logger = a.Logger
	meshes, err := tess.Bodies(d)
	if err != nil {
		a.logger().Printf("Tessellate error: %v", err)
		result.Errors = append(result.Errors, EvalErrorData{
			Message: "tessellation failed: " + err.Error(),
		})
		return result
	}

	// Step 4: Flatten the meshes for a renderer.
	for i, m := range meshes {
		b := m.Buffers()
		if b.IsEmpty() {
			result.Warnings = append(result.Warnings, EvalErrorData{Message: fmt.Sprintf("body %s is empty", m.Name)})
			continue
		}
		result.Meshes = append(result.Meshes, MeshData{
			Vertices: b.Vertices,
			Normals:  b.Normals,
			Indices:  b.Indices,
			BodyName: b.Name,
			Color:    colorPalette[i%len(colorPalette)],
		})
	}
	return result
}

// Job is a loaded simulation: the scene plus where and how to record it.
type Job struct {
	Name   string
	Scene  *scene.Description
	Output config.OutputConfig
	Seed   int64
}

// Load reads a run from path. Configuration files (.cfg, .ini) and OBJ
// meshes use the config defaults; anything else is a scene script.
func (a *App) Load(path string) (*Job, error) {
	def := config.Default()
	job := &Job{
		Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Output: def.Output,
		Seed:   def.Simulation.RandomSeed,
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cfg", ".ini":
		c, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		job.Scene = c.Description()
		job.Output = c.Output
		job.Output.Dir = c.Resolve(c.Output.Dir)
		job.Seed = c.Simulation.RandomSeed
	case ".obj":
		d := def.Description()
		d.Dir = filepath.Dir(path)
		d.Bodies = []scene.Body{{
			Name:  job.Name,
			Shape: &scene.Shape{Kind: scene.ShapeMesh, Path: filepath.Base(path)},
		}}
		job.Scene = d
	default:
		d, evalErrs, err := a.engine.EvaluateFile(path)
		if err != nil {
			return nil, err
		}
		if len(evalErrs) > 0 {
			errs := make([]error, len(evalErrs))
			for i, e := range evalErrs {
				errs[i] = e
			}
			return nil, fmt.Errorf("%s: %w", path, errors.Join(errs...))
		}
		job.Scene = d
	}

	if err := job.Scene.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return job, nil
}

// Bake tessellates the bodies of d and builds their distance field. A
// scene that names a grid file has that file loaded instead.
func (a *App) Bake(ctx context.Context, d *scene.Description) (*grid.Grid, grid.BuildStats, error) {
	if d.Grid.File != "" {
		g, err := grid.Load(d.Resolve(d.Grid.File), d.Grid.Format)
		return g, grid.BuildStats{}, err
	}
	tess := tessellate.New(a.kernel, a.Cells)
	tess.Logger = a.Logger
	m, err := tess.Tessellate(d)
	if err != nil {
		return nil, grid.BuildStats{}, err
	}
	b := &grid.Builder{
		CellSize: d.Grid.CellSize,
		Margin:   d.Grid.Margin,
		Workers:  d.Grid.Workers,
		Logger:   a.Logger,
	}
	return b.Build(ctx, m)
}

// Report summarizes a finished simulation.
type Report struct {
	Stats  sim.RunStats
	Grid   grid.Stats
	Energy *diag.Trace
	// Bundle is the trajectory directory, empty when recording was off.
	Bundle string
}

// Simulate prepares and runs job, recording a trajectory bundle under
// job.Output.Dir unless it is empty.
func (a *App) Simulate(ctx context.Context, job *Job) (*Report, error) {
	c, err := sim.NewContext(job.Scene, a.kernel)
	if err != nil {
		return nil, err
	}
	c.Logger = a.Logger
	c.MeshCells = a.Cells
	c.Rand = rand.New(rand.NewSource(job.Seed))
	if err := c.Prepare(ctx); err != nil {
		return nil, err
	}

	rep := &Report{Grid: c.Grid.Stats(), Energy: &diag.Trace{}}
	if job.Output.Dir != "" {
		w, err := trajectory.NewWriter(job.Output.Dir, trajectory.Options{
			Name:      job.Name,
			Dt:        job.Scene.Step.Dt,
			Every:     job.Output.Every,
			Particles: len(c.Particles),
		})
		if err != nil {
			return nil, err
		}
		c.Recorder = w
		rep.Bundle = w.Directory()
	}

	g := job.Scene.Step.Gravity
	c.OnFrame = func(frame int, ps []particle.Particle, _ particle.StepStats) {
		rep.Energy.Add(frame, diag.Measure(ps, g))
	}

	rep.Stats, err = c.Run(ctx, job.Scene.Frames)
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	a.logger().Printf("simulate %s: %d frames, %.1f%% of the energy dissipated",
		job.Name, rep.Stats.Frames, 100*rep.Energy.Dissipated())
	return rep, nil
}
