// Package config reads the INI-style run configuration used by the
// command line tools.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chazu/sdfsim/pkg/grid"
	"github.com/chazu/sdfsim/pkg/particle"
	"github.com/chazu/sdfsim/pkg/scene"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gopkg.in/gcfg.v1"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

const Example = `[Grid]

# Collider mesh to bake. Ignored when Cache is set.
Mesh = bunny.obj

# Edge length of a grid cell and the padding around the mesh bounds.
CellSize = 0.1
Margin = 0.2

# Bake worker count. 0 uses every CPU.
# Workers = 0

# Precomputed distance field. Format is one of [ cells | batty | binary ].
# Cache = bunny.sdfz
# Format = binary

[Simulation]

Frames = 500
Dt = 0.01
Gravity = 0 -9.8 0
Threshold = 0.1
Friction = 0.3
Restitution = 0.3
PushOut = 2

# Particle sources. Seeds is a file of "x y z" lines.
Seeds = points.txt
Offset = 0 4 0
# Jitter = true
# Emit = 1000
# EmitMin = -1 2 -1
# EmitMax = 1 3 1
# RandomSeed = 1

[Output]

Dir = out
# Record every Nth frame.
Every = 1
# Plot = true`

// Vec3 is a vector written as three space-separated numbers.
type Vec3 v3.Vec

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Vec3) UnmarshalText(text []byte) error {
	fields := strings.Fields(string(text))
	if len(fields) != 3 {
		return fmt.Errorf("vector %q needs 3 components", text)
	}
	var c [3]float64
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return fmt.Errorf("vector %q: %w", text, err)
		}
		c[i] = x
	}
	*v = Vec3{X: c[0], Y: c[1], Z: c[2]}
	return nil
}

// MarshalText implements encoding.TextMarshaler, so a Vec3 can back a
// flag.TextVar.
func (v Vec3) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v Vec3) String() string {
	return fmt.Sprintf("%g %g %g", v.X, v.Y, v.Z)
}

// Vec returns v as an sdfx vector.
func (v Vec3) Vec() v3.Vec { return v3.Vec(v) }

type GridConfig struct {
	Mesh     string
	CellSize float64
	Margin   float64
	Workers  int
	Cache    string
	Format   string
}

type SimulationConfig struct {
	Frames      int
	Dt          float64
	Gravity     Vec3
	Threshold   float64
	Friction    float64
	Restitution float64
	PushOut     float64

	Seeds      string
	Offset     Vec3
	Jitter     bool
	Emit       int
	EmitMin    Vec3
	EmitMax    Vec3
	RandomSeed int64
}

type OutputConfig struct {
	Dir   string
	Every int
	Plot  bool
}

// Config is the whole file. Section names match the field names.
type Config struct {
	Grid       GridConfig
	Simulation SimulationConfig
	Output     OutputConfig

	// dir is the directory of the file the config was loaded from.
	dir string
}

// Default returns the stock configuration. Load and Parse start from it,
// so a file only needs the keys it changes.
func Default() *Config {
	p := particle.DefaultParams()
	return &Config{
		Grid: GridConfig{
			CellSize: grid.DefaultCellSize,
			Margin:   grid.DefaultMargin,
			Format:   grid.FormatCells.String(),
		},
		Simulation: SimulationConfig{
			Frames:      500,
			Dt:          p.Dt,
			Gravity:     Vec3(p.Gravity),
			Threshold:   p.Threshold,
			Friction:    p.Friction,
			Restitution: p.Restitution,
			PushOut:     p.PushOut,
			RandomSeed:  1,
		},
		Output: OutputConfig{
			Dir:   "out",
			Every: 1,
		},
	}
}

// Load reads and validates the file at path. Relative paths inside it are
// resolved against its directory.
func Load(path string) (*Config, error) {
	c := Default()
	if err := gcfg.ReadFileInto(c, path); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	c.dir = filepath.Dir(path)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse reads and validates config text.
func Parse(text string) (*Config, error) {
	c := Default()
	if err := gcfg.ReadStringInto(c, text); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports every invalid value, each wrapping ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalid}, args...)...))
	}

	g := &c.Grid
	if g.Mesh == "" && g.Cache == "" {
		bad("[Grid] needs Mesh or Cache")
	}
	if !(g.CellSize > 0) {
		bad("[Grid] CellSize must be positive, got %g", g.CellSize)
	}
	if g.Margin < 0 {
		bad("[Grid] Margin must be non-negative, got %g", g.Margin)
	}
	if g.Workers < 0 {
		bad("[Grid] Workers must be non-negative, got %d", g.Workers)
	}
	if _, err := grid.ParseFormat(strings.ToLower(g.Format)); err != nil {
		bad("[Grid] Format: %v", err)
	}

	s := &c.Simulation
	if s.Frames < 0 {
		bad("[Simulation] Frames must be non-negative, got %d", s.Frames)
	}
	if err := c.StepParams().Validate(); err != nil {
		bad("[Simulation] %v", err)
	}
	if s.Emit < 0 {
		bad("[Simulation] Emit must be non-negative, got %d", s.Emit)
	}
	if s.Emit > 0 && (s.EmitMax.X < s.EmitMin.X || s.EmitMax.Y < s.EmitMin.Y || s.EmitMax.Z < s.EmitMin.Z) {
		bad("[Simulation] EmitMax %v is below EmitMin %v", s.EmitMax, s.EmitMin)
	}

	if c.Output.Every < 1 {
		bad("[Output] Every must be at least 1, got %d", c.Output.Every)
	}
	return errors.Join(errs...)
}

// StepParams returns the particle stepper constants.
func (c *Config) StepParams() particle.Params {
	s := c.Simulation
	return particle.Params{
		Dt:          s.Dt,
		Gravity:     s.Gravity.Vec(),
		Threshold:   s.Threshold,
		Friction:    s.Friction,
		Restitution: s.Restitution,
		PushOut:     s.PushOut,
	}
}

// GridFormat returns the parsed cache format. Validate has already
// rejected unknown names.
func (c *Config) GridFormat() grid.Format {
	f, _ := grid.ParseFormat(strings.ToLower(c.Grid.Format))
	return f
}

// Description converts the configuration into the scene form the
// simulation context runs. The mesh becomes a single body.
func (c *Config) Description() *scene.Description {
	d := scene.NewDescription()
	d.Dir = c.dir
	if c.Grid.Mesh != "" {
		d.Bodies = append(d.Bodies, scene.Body{
			Name:  strings.TrimSuffix(filepath.Base(c.Grid.Mesh), filepath.Ext(c.Grid.Mesh)),
			Shape: &scene.Shape{Kind: scene.ShapeMesh, Path: c.Grid.Mesh},
		})
	}
	d.Grid = scene.GridSpec{
		CellSize: c.Grid.CellSize,
		Margin:   c.Grid.Margin,
		Workers:  c.Grid.Workers,
		File:     c.Grid.Cache,
		Format:   c.GridFormat(),
	}
	s := c.Simulation
	if s.Seeds != "" {
		d.Seeds = append(d.Seeds, scene.SeedSpec{Path: s.Seeds, Offset: s.Offset.Vec(), Jitter: s.Jitter})
	}
	if s.Emit > 0 {
		d.Emitters = append(d.Emitters, scene.EmitSpec{Count: s.Emit, Min: s.EmitMin.Vec(), Max: s.EmitMax.Vec()})
	}
	d.Step = c.StepParams()
	d.Frames = s.Frames
	return d
}

// Resolve joins a relative path onto the directory the config came from.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.dir == "" {
		return path
	}
	return filepath.Join(c.dir, path)
}
