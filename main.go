// Command sdfsim bakes signed distance fields from triangle meshes and
// drops particles onto them.
//
//	sdfsim bake [flags] mesh.obj|scene.lisp|run.cfg ...
//	sdfsim simulate [flags] scene.lisp|run.cfg
//	sdfsim inspect [flags] grid ...
//	sdfsim voxelize [flags] grid
//	sdfsim surface [flags] grid
//	sdfsim profile [flags] grid
//	sdfsim preview [flags] scene.lisp
//	sdfsim example-config
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
)

type command struct {
	run     func(a *App, args []string, out io.Writer) error
	summary string
}

var commands = map[string]command{
	"bake":           {runBake, "bake meshes or scenes into grid files"},
	"simulate":       {runSimulate, "run a particle simulation and record its trajectory"},
	"inspect":        {runInspect, "print the extents and sample statistics of grid files"},
	"voxelize":       {runVoxelize, "write the cells below a distance threshold as points"},
	"surface":        {runSurface, "extract the zero level set of a grid as an OBJ mesh"},
	"profile":        {runProfile, "sample a grid along a segment"},
	"preview":        {runPreview, "tessellate a scene script into JSON render buffers"},
	"example-config": {runExampleConfig, "print an example configuration file"},
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "usage: sdfsim <command> [flags] [inputs]")
	fmt.Fprintln(w)
	for _, name := range names {
		fmt.Fprintf(w, "  %-15s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'sdfsim <command> -h' for the flags of a command.")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		usage(os.Stdout)
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "sdfsim: unknown command %q\n\n", name)
		usage(os.Stderr)
		os.Exit(2)
	}

	app := NewApp()
	err := cmd.run(app, os.Args[2:], os.Stdout)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("%s: %v", name, err)
	}
}
