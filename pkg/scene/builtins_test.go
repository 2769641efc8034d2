package scene

import (
	"strings"
	"testing"

	"github.com/chazu/sdfsim/pkg/grid"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessSource(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"simple keyword", `(sphere :radius 1)`, `(sphere "__kw_radius" 1)`},
		{"multiple keywords", `(grid :cell-size 0.1 :margin 0.2)`, `(grid "__kw_cell-size" 0.1 "__kw_margin" 0.2)`},
		{"keyword in string preserved", `"thing with :keyword inside"`, `"thing with :keyword inside"`},
		{"assignment operator preserved", `(def x := 10)`, `(def x := 10)`},
		{"kebab-case identifier", `(sdf-file "a.sdf" :format :batty)`, `(sdf_file "a.sdf" "__kw_format" "__kw_batty")`},
		{"minus operator preserved", `(- 10 5)`, `(- 10 5)`},
		{"negative literal preserved", `(vec3 0 -9.8 0)`, `(vec3 0 -9.8 0)`},
		{"comment converted to // style", `;; comment with :keyword`, `// comment with :keyword`},
		{"single semicolon comment", `; simple comment`, `// simple comment`},
		{"hyphen in keyword preserved", `:push-out`, `"__kw_push-out"`},
		{"backtick string preserved", "`raw :kw`", "`raw :kw`"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := preprocessSource(tt.input); got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

func mustEvaluate(t *testing.T, src string) *Description {
	t.Helper()
	d, evalErrs, err := quietEngine().Evaluate(src)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	return d
}

func TestFullScene(t *testing.T) {
	src := `
; a bowl of sand
(def floor (box :size (vec3 4 0.2 4)))
(body floor :name "floor" :at (vec3 0 -1 0))
(body (obj "bunny.obj") :rotate (vec3 0 90 0) :scale 2)
(body (difference (sphere :radius 1) (cylinder :height 3 :radius 0.25)))

(grid :cell-size 0.05 :margin 0.3 :workers 4)
(particles "points.txt" :offset (vec3 0 4 0) :jitter true)
(emit :count 500 :min (vec3 -1 2 -1) :max (vec3 1 3 1))
(gravity (vec3 0 -3.7 0))
(step :dt 0.005 :friction 0.5 :push-out 1.5)
(frames 200)
`
	d := mustEvaluate(t, src)

	if len(d.Bodies) != 3 {
		t.Fatalf("expected 3 bodies, got %d", len(d.Bodies))
	}
	floor := d.Bodies[0]
	if floor.Name != "floor" || floor.Shape.Kind != ShapeBox {
		t.Errorf("floor = %+v", floor)
	}
	if floor.Shape.Size != (v3.Vec{X: 4, Y: 0.2, Z: 4}) {
		t.Errorf("floor size = %v", floor.Shape.Size)
	}
	if floor.At != (v3.Vec{Y: -1}) || floor.ScaleFactor() != 1 {
		t.Errorf("floor transform at=%v scale=%g", floor.At, floor.ScaleFactor())
	}

	bunny := d.Bodies[1]
	if bunny.Name != "body1" {
		t.Errorf("default name = %q, want body1", bunny.Name)
	}
	if bunny.Shape.Kind != ShapeMesh || bunny.Shape.Path != "bunny.obj" {
		t.Errorf("bunny shape = %+v", bunny.Shape)
	}
	if bunny.Shape.Analytic() {
		t.Error("obj shape reported analytic")
	}
	if bunny.Rotate != (v3.Vec{Y: 90}) || bunny.Scale != 2 {
		t.Errorf("bunny transform rotate=%v scale=%g", bunny.Rotate, bunny.Scale)
	}

	holed := d.Bodies[2].Shape
	if holed.Kind != ShapeDifference || len(holed.Children) != 2 || !holed.Analytic() {
		t.Errorf("difference shape = %+v", holed)
	}
	if c := holed.Children[1]; c.Kind != ShapeCylinder || c.Height != 3 || c.Radius != 0.25 {
		t.Errorf("cylinder = %+v", c)
	}

	if d.Grid.CellSize != 0.05 || d.Grid.Margin != 0.3 || d.Grid.Workers != 4 {
		t.Errorf("grid = %+v", d.Grid)
	}
	if len(d.Seeds) != 1 || !d.Seeds[0].Jitter || d.Seeds[0].Offset != (v3.Vec{Y: 4}) {
		t.Errorf("seeds = %+v", d.Seeds)
	}
	if len(d.Emitters) != 1 || d.ParticleCount() != 500 {
		t.Errorf("emitters = %+v", d.Emitters)
	}
	if d.Emitters[0].Min != (v3.Vec{X: -1, Y: 2, Z: -1}) {
		t.Errorf("emit min = %v", d.Emitters[0].Min)
	}
	if d.Step.Gravity != (v3.Vec{Y: -3.7}) {
		t.Errorf("gravity = %v", d.Step.Gravity)
	}
	if d.Step.Dt != 0.005 || d.Step.Friction != 0.5 || d.Step.PushOut != 1.5 {
		t.Errorf("step = %+v", d.Step)
	}
	if d.Step.Threshold != 0.1 || d.Step.Restitution != 0.3 {
		t.Errorf("unset step params changed: %+v", d.Step)
	}
	if d.Frames != 200 {
		t.Errorf("frames = %d", d.Frames)
	}
	if err := d.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestSDFFile(t *testing.T) {
	tests := []struct {
		src  string
		want grid.Format
	}{
		{`(sdf-file "bunny.sdf")`, grid.FormatCells},
		{`(sdf-file "bunny.sdf" :format :batty)`, grid.FormatBatty},
		{`(sdf-file "bunny.sdf" :format "binary")`, grid.FormatBinary},
	}
	for _, tt := range tests {
		d := mustEvaluate(t, tt.src)
		if d.Grid.File != "bunny.sdf" || d.Grid.Format != tt.want {
			t.Errorf("%s: grid = %+v", tt.src, d.Grid)
		}
		if err := d.Validate(); err != nil {
			t.Errorf("%s: a loaded grid needs no bodies: %v", tt.src, err)
		}
	}
}

func TestUnionAcceptsMeshes(t *testing.T) {
	d := mustEvaluate(t, `(body (union (obj "a.obj") (sphere :radius 1)))`)
	u := d.Bodies[0].Shape
	if u.Kind != ShapeUnion || u.Analytic() {
		t.Errorf("union = %+v", u)
	}
}

func TestBuiltinErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"box without size", `(box)`, "requires :size"},
		{"flat box", `(box :size (vec3 1 0 1))`, "positive"},
		{"negative radius", `(sphere :radius -1)`, "positive"},
		{"cylinder missing height", `(cylinder :radius 1)`, "requires :height"},
		{"vec3 arity", `(vec3 1 2)`, "exactly 3"},
		{"vec3 type", `(vec3 1 "a" 2)`, "expected number"},
		{"difference of mesh", `(difference (obj "a.obj") (sphere :radius 1))`, "analytic"},
		{"union of one", `(union (sphere :radius 1))`, "at least 2"},
		{"body of number", `(body 3)`, "expected shape"},
		{"bad format", `(sdf-file "a" :format :png)`, "format"},
		{"unknown step key", `(step :speed 3)`, "unknown parameter"},
		{"bad restitution", `(step :restitution 2)`, "restitution"},
		{"negative frames", `(frames -1)`, "negative"},
		{"fractional count", `(emit :count 2.5 :min (vec3 0 0 0) :max (vec3 1 1 1))`, "integer"},
		{"emit missing max", `(emit :count 2 :min (vec3 0 0 0))`, "requires :max"},
		{"jitter not bool", `(particles "p.txt" :jitter 1)`, "true or false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, evalErrs, err := quietEngine().Evaluate(tt.src)
			if err != nil {
				t.Fatalf("fatal error: %v", err)
			}
			if d != nil {
				t.Fatal("expected nil description on error")
			}
			if len(evalErrs) == 0 {
				t.Fatal("expected an eval error")
			}
			if !strings.Contains(evalErrs[0].Error(), tt.want) {
				t.Errorf("error %q does not mention %q", evalErrs[0].Error(), tt.want)
			}
		})
	}
}

func TestDescriptionValidate(t *testing.T) {
	d := NewDescription()
	if err := d.Validate(); err == nil {
		t.Error("an empty description should not validate")
	}
	d.Bodies = append(d.Bodies, Body{Shape: &Shape{Kind: ShapeSphere, Radius: 1}})
	if err := d.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	d.Grid.CellSize = 0
	d.Frames = -3
	err := d.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"cell size", "frame count"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestShapeKindString(t *testing.T) {
	if ShapeIntersection.String() != "intersection" {
		t.Errorf("got %q", ShapeIntersection.String())
	}
	if ShapeKind(42).String() != "ShapeKind(42)" {
		t.Errorf("got %q", ShapeKind(42).String())
	}
}
