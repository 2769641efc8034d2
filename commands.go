package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/chazu/sdfsim/pkg/config"
	"github.com/chazu/sdfsim/pkg/diag"
	"github.com/chazu/sdfsim/pkg/grid"
	"github.com/chazu/sdfsim/pkg/mesh"
)

// eachInput calls fn for every input. With keepGoing a failure is logged
// and the remaining inputs still run; the failures are returned together
// at the end.
func eachInput(a *App, inputs []string, keepGoing bool, fn func(string) error) error {
	var failed []error
	for _, in := range inputs {
		if err := fn(in); err != nil {
			if !keepGoing {
				return err
			}
			a.logger().Printf("%s: %v", in, err)
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d inputs failed: %w", len(failed), len(inputs), errors.Join(failed...))
	}
	return nil
}

// gridFormat returns the named format, or the one implied by path when
// name is empty.
func gridFormat(name, path string) (grid.Format, error) {
	if name == "" {
		return grid.FormatOf(path), nil
	}
	return grid.ParseFormat(strings.ToLower(name))
}

func loadGrid(path, format string) (*grid.Grid, error) {
	f, err := gridFormat(format, path)
	if err != nil {
		return nil, err
	}
	return grid.Load(path, f)
}

// single checks that fs was given exactly one positional argument.
func single(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 {
		return "", fmt.Errorf("expected one input, got %d", fs.NArg())
	}
	return fs.Arg(0), nil
}

func create(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func runBake(a *App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("bake", flag.ContinueOnError)
	var (
		output    = fs.String("o", "", "Output file. Defaults to the input name with the format's extension.")
		format    = fs.String("format", "binary", "Output format: cells, batty or binary. Batty needs a grid whose origin is zero.")
		cellSize  = fs.Float64("cell-size", 0, "Override the grid cell size.")
		margin    = fs.Float64("margin", -1, "Override the padding around the mesh bounds.")
		workers   = fs.Int("workers", -1, "Override the bake worker count. 0 uses every CPU.")
		cells     = fs.Int("cells", 0, "Marching cubes resolution for analytic bodies.")
		keepGoing = fs.Bool("keep-going", false, "Report inputs that fail and continue with the rest.")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("no inputs")
	}
	if *output != "" && fs.NArg() > 1 {
		return errors.New("-o needs a single input")
	}
	f, err := grid.ParseFormat(strings.ToLower(*format))
	if err != nil {
		return err
	}
	if *cells > 0 {
		a.Cells = *cells
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return eachInput(a, fs.Args(), *keepGoing, func(in string) error {
		job, err := a.Load(in)
		if err != nil {
			return err
		}
		gs := &job.Scene.Grid
		if *cellSize > 0 {
			gs.CellSize = *cellSize
		}
		if *margin >= 0 {
			gs.Margin = *margin
		}
		if *workers >= 0 {
			gs.Workers = *workers
		}

		path := *output
		if path == "" {
			path = strings.TrimSuffix(in, filepath.Ext(in)) + f.Ext()
		}
		if path == in || (gs.File != "" && path == job.Scene.Resolve(gs.File)) {
			return fmt.Errorf("refusing to overwrite input %s", path)
		}

		g, stats, err := a.Bake(ctx, job.Scene)
		if err != nil {
			return err
		}
		if err := grid.Save(path, g, f); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %dx%dx%d cells, %d faces (%d skipped) in %s -> %s\n",
			in, g.Cells[0], g.Cells[1], g.Cells[2], stats.Faces, stats.SkippedFaces, stats.Elapsed, path)
		return nil
	})
}

func runSimulate(a *App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	var (
		outDir   = fs.String("out", "", "Directory the trajectory bundle is created in. Overrides [Output] Dir.")
		noRecord = fs.Bool("no-record", false, "Do not write a trajectory bundle.")
		frames   = fs.Int("frames", -1, "Override the frame count.")
		every    = fs.Int("every", 0, "Record every Nth frame. Overrides [Output] Every.")
		seed     = fs.Int64("seed", 0, "Override the random seed.")
		plot     = fs.Bool("plot", false, "Plot the energy trace next to the bundle. Needs python and matplotlib.")
		cells    = fs.Int("cells", 0, "Marching cubes resolution for analytic bodies.")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	in, err := single(fs)
	if err != nil {
		return err
	}

	if *cells > 0 {
		a.Cells = *cells
	}
	job, err := a.Load(in)
	if err != nil {
		return err
	}
	if *outDir != "" {
		job.Output.Dir = *outDir
	}
	if *noRecord {
		job.Output.Dir = ""
	}
	if *frames >= 0 {
		job.Scene.Frames = *frames
	}
	if *every > 0 {
		job.Output.Every = *every
	}
	if *seed != 0 {
		job.Seed = *seed
	}
	if job.Output.Dir != "" {
		if err := os.MkdirAll(job.Output.Dir, 0o755); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rep, err := a.Simulate(ctx, job)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "grid: %s\n", rep.Grid)
	fmt.Fprintf(out, "frames: %d  collisions: %d  push-outs: %d  elapsed: %s\n",
		rep.Stats.Frames, rep.Stats.Collisions, rep.Stats.PushOuts, rep.Stats.Elapsed)
	fmt.Fprintf(out, "energy dissipated: %.1f%%\n", 100*rep.Energy.Dissipated())
	if rep.Bundle != "" {
		fmt.Fprintf(out, "trajectory: %s\n", rep.Bundle)
	}

	if *plot || job.Output.Plot {
		dir := rep.Bundle
		if dir == "" {
			dir = "."
		}
		diag.PlotEnergy(filepath.Join(dir, "energy.png"), job.Name, rep.Energy)
		diag.Render()
	}
	return nil
}

func runInspect(a *App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	var (
		format    = fs.String("format", "", "Grid format. Guessed from the extension when empty.")
		keepGoing = fs.Bool("keep-going", false, "Report files that fail to load and continue with the rest.")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("no inputs")
	}
	return eachInput(a, fs.Args(), *keepGoing, func(in string) error {
		g, err := loadGrid(in, *format)
		if err != nil {
			return err
		}
		b := g.Bounds()
		fmt.Fprintf(out, "%s\n  cells:  %dx%dx%d (%d)\n  size:   %g\n  bounds: %v to %v\n  %s\n",
			in, g.Cells[0], g.Cells[1], g.Cells[2], g.Len(), g.CellSize, b.Min, b.Max, g.Stats())
		return nil
	})
}

func runVoxelize(a *App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("voxelize", flag.ContinueOnError)
	var (
		format    = fs.String("format", "", "Grid format. Guessed from the extension when empty.")
		threshold = fs.Float64("threshold", 0, "Select cells whose distance is below this value.")
		output    = fs.String("o", "", "Point file to write. Defaults to stdout.")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	in, err := single(fs)
	if err != nil {
		return err
	}
	g, err := loadGrid(in, *format)
	if err != nil {
		return err
	}
	pts := g.Voxelize(*threshold)

	w, closeFn, err := create(*output, out)
	if err != nil {
		return err
	}
	if err := grid.WritePoints(w, pts); err != nil {
		closeFn()
		return err
	}
	a.logger().Printf("voxelize %s: %d of %d cells below %g", in, len(pts), g.Len(), *threshold)
	return closeFn()
}

func runSurface(a *App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("surface", flag.ContinueOnError)
	var (
		format = fs.String("format", "", "Grid format. Guessed from the extension when empty.")
		cells  = fs.Int("cells", 0, "Marching cubes resolution along the longest axis.")
		output = fs.String("o", "", "OBJ file to write. Defaults to the input name with .obj.")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	in, err := single(fs)
	if err != nil {
		return err
	}
	g, err := loadGrid(in, *format)
	if err != nil {
		return err
	}
	name := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	m, err := g.Isosurface(name, *cells)
	if err != nil {
		return err
	}
	path := *output
	if path == "" {
		path = strings.TrimSuffix(in, filepath.Ext(in)) + ".obj"
	}
	if err := mesh.SaveOBJ(path, m); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d triangles -> %s\n", in, m.FaceCount(), path)
	return nil
}

func runProfile(a *App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	var from, to config.Vec3
	fs.TextVar(&from, "from", config.Vec3{X: -1}, "Start of the segment, \"x y z\".")
	fs.TextVar(&to, "to", config.Vec3{X: 1}, "End of the segment, \"x y z\".")
	var (
		format = fs.String("format", "", "Grid format. Guessed from the extension when empty.")
		n      = fs.Int("n", 100, "Number of samples.")
		plot   = fs.String("plot", "", "Save a plot of the profile to this file. Needs python and matplotlib.")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	in, err := single(fs)
	if err != nil {
		return err
	}
	g, err := loadGrid(in, *format)
	if err != nil {
		return err
	}
	ts, ds, err := diag.Profile(g, from.Vec(), to.Vec(), *n)
	if err != nil {
		return err
	}
	for i := range ts {
		fmt.Fprintf(out, "%.6g %.6g\n", ts[i], ds[i])
	}
	for _, c := range diag.Crossings(ts, ds) {
		fmt.Fprintf(out, "# crossing at t=%.4g\n", c)
	}

	if *plot != "" {
		diag.PlotProfile(*plot, fmt.Sprintf("%s: %v to %v", filepath.Base(in), from, to), ts, ds)
		diag.Render()
	}
	return nil
}

func runPreview(a *App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	var (
		output = fs.String("o", "", "JSON file to write. Defaults to stdout.")
		cells  = fs.Int("cells", 0, "Marching cubes resolution for analytic bodies.")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	in, err := single(fs)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	if *cells > 0 {
		a.Cells = *cells
	}
	a.Dir = filepath.Dir(in)

	result := a.Evaluate(string(src))
	w, closeFn, err := create(*output, out)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		closeFn()
		return err
	}
	if err := closeFn(); err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		e := result.Errors[0]
		return fmt.Errorf("%s:%d: %s", in, e.Line, e.Message)
	}
	return nil
}

func runExampleConfig(_ *App, args []string, out io.Writer) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments %v", args)
	}
	_, err := fmt.Fprintln(out, config.Example)
	return err
}
