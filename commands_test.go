package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/sdfsim/pkg/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyExample copies files from examples/ into a fresh directory.
func copyExample(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join("examples", name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	return dir
}

func TestGridCommands(t *testing.T) {
	app := quietApp()
	dir := t.TempDir()
	sdfz := filepath.Join(dir, "cube.sdfz")

	var out bytes.Buffer
	require.NoError(t, runBake(app, []string{"-o", sdfz, "-margin", "0.3", "examples/cube.obj"}, &out))
	assert.Contains(t, out.String(), "12 faces (0 skipped)")
	assert.Contains(t, out.String(), "-> "+sdfz)

	t.Run("inspect", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runInspect(app, []string{sdfz}, &out))
		assert.Regexp(t, `cells:  2[78]x2[78]x2[78] `, out.String())
		assert.Contains(t, out.String(), "unset=0")
	})

	t.Run("voxelize", func(t *testing.T) {
		pts := filepath.Join(dir, "inside.txt")
		require.NoError(t, runVoxelize(app, []string{"-o", pts, sdfz}, &bytes.Buffer{}))
		data, err := os.ReadFile(pts)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		assert.Greater(t, len(lines), 1000)
		assert.Less(t, len(lines), 28*28*28)
	})

	t.Run("surface", func(t *testing.T) {
		obj := filepath.Join(dir, "surface.obj")
		var out bytes.Buffer
		require.NoError(t, runSurface(app, []string{"-cells", "40", "-o", obj, sdfz}, &out))
		m, err := mesh.LoadOBJ(obj)
		require.NoError(t, err)
		assert.Positive(t, m.FaceCount())
		b := m.Bounds()
		assert.InDelta(t, -1, b.Min.X, 0.25)
		assert.InDelta(t, 1, b.Max.Y, 0.25)
	})

	t.Run("profile", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runProfile(app, []string{"-from=-1.2 0 0", "-to=1.2 0 0", "-n", "49", sdfz}, &out))
		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		var crossings int
		for _, l := range lines {
			if strings.HasPrefix(l, "# crossing") {
				crossings++
			}
		}
		assert.Equal(t, 2, crossings, out.String())
		assert.Equal(t, 49+crossings, len(lines))
	})

	t.Run("missing grid", func(t *testing.T) {
		assert.ErrorIs(t, runInspect(app, []string{filepath.Join(dir, "nope.sdfz")}, &bytes.Buffer{}), os.ErrNotExist)
	})
}

func TestBakeKeepGoing(t *testing.T) {
	app := quietApp()
	dir := copyExample(t, "cube.obj")
	missing := filepath.Join(dir, "missing.obj")
	cube := filepath.Join(dir, "cube.obj")
	baked := filepath.Join(dir, "cube.sdf")

	err := runBake(app, []string{"-format", "cells", missing, cube}, &bytes.Buffer{})
	require.Error(t, err)
	assert.NoFileExists(t, baked, "bake stopped at the first failure")

	var out bytes.Buffer
	err = runBake(app, []string{"-format", "cells", "-keep-going", missing, cube}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 inputs failed")
	assert.FileExists(t, baked)
	assert.Contains(t, out.String(), cube)
}

func TestBakeFlagErrors(t *testing.T) {
	app := quietApp()
	assert.Error(t, runBake(app, nil, &bytes.Buffer{}))
	assert.Error(t, runBake(app, []string{"-o", "x.sdfz", "a.obj", "b.obj"}, &bytes.Buffer{}))
	assert.Error(t, runBake(app, []string{"-format", "vdb", "a.obj"}, &bytes.Buffer{}))
	assert.Error(t, runVoxelize(app, []string{"a.sdf", "b.sdf"}, &bytes.Buffer{}))
}

func TestSimulateCommand(t *testing.T) {
	app := quietApp()
	outDir := t.TempDir()

	var out bytes.Buffer
	require.NoError(t, runSimulate(app, []string{"-out", outDir, "-frames", "20", "-every", "10", "examples/drop.cfg"}, &out))
	assert.Contains(t, out.String(), "frames: 20 ")
	assert.Contains(t, out.String(), "trajectory: "+outDir)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "drop-"))

	out.Reset()
	require.NoError(t, runSimulate(app, []string{"-no-record", "-frames", "5", "examples/drop.cfg"}, &out))
	assert.NotContains(t, out.String(), "trajectory:")
}

func TestPreviewCommand(t *testing.T) {
	app := quietApp()
	dir := t.TempDir()
	js := filepath.Join(dir, "drop.json")

	require.NoError(t, runPreview(app, []string{"-cells", "12", "-o", js, "examples/drop.lisp"}, &bytes.Buffer{}))
	data, err := os.ReadFile(js)
	require.NoError(t, err)
	var result EvalResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Meshes, 2)
	assert.Equal(t, "cube", result.Meshes[0].BodyName)
	assert.Equal(t, 200, result.Particles)

	bad := filepath.Join(dir, "bad.lisp")
	require.NoError(t, os.WriteFile(bad, []byte("(body (sphere :radius 0))"), 0o644))
	var out bytes.Buffer
	err = runPreview(app, []string{bad}, &out)
	require.Error(t, err)
	assert.Contains(t, out.String(), `"errors"`)
}

func TestExampleConfigCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runExampleConfig(nil, nil, &out))
	assert.Contains(t, out.String(), "[Simulation]")
	assert.Error(t, runExampleConfig(nil, []string{"extra"}, &out))
}

func TestUsageListsCommands(t *testing.T) {
	var out bytes.Buffer
	usage(&out)
	for name := range commands {
		assert.Contains(t, out.String(), name)
	}
}
