package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// 1. Empty editor: empty string -> 0 meshes, 0 errors.
// ---------------------------------------------------------------------------

func TestE2EEmptySourceExtended(t *testing.T) {
	app := quietApp()
	result := app.Evaluate("")

	if len(result.Errors) != 0 {
		t.Errorf("expected 0 errors for empty source, got %d", len(result.Errors))
	}
	if len(result.Meshes) != 0 {
		t.Errorf("expected 0 meshes for empty source, got %d", len(result.Meshes))
	}
	if len(result.Warnings) != 0 {
		t.Errorf("expected 0 warnings for empty source, got %d", len(result.Warnings))
	}
	// Slices must be non-nil so JSON holds [] rather than null.
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"meshes":[]`, `"errors":[]`, `"warnings":[]`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("JSON %s lacks %s", data, key)
		}
	}
}

func TestE2EWhitespaceAndComments(t *testing.T) {
	app := quietApp()
	for _, source := range []string{"   \n\t\n  ", ";; just a comment", "; one\n\n  ; two\n"} {
		result := app.Evaluate(source)
		if len(result.Errors) != 0 || len(result.Meshes) != 0 {
			t.Errorf("%q: errors=%v meshes=%d", source, result.Errors, len(result.Meshes))
		}
	}
}

// ---------------------------------------------------------------------------
// 2. Syntax errors: unmatched parens -> eval error, 0 meshes.
// ---------------------------------------------------------------------------

func TestE2ESyntaxErrorWithLineInfo(t *testing.T) {
	app := quietApp()

	// Valid code on line 1, broken code on line 2 so line info is meaningful.
	source := "(+ 1 2)\n(body (sphere :radius 1)"
	result := app.Evaluate(source)

	if len(result.Errors) == 0 {
		t.Fatal("expected at least one eval error for unmatched parens")
	}
	if len(result.Meshes) != 0 {
		t.Errorf("expected 0 meshes on syntax error, got %d", len(result.Meshes))
	}
	e := result.Errors[0]
	if e.Message == "" {
		t.Error("syntax error should have a non-empty message")
	}
	t.Logf("syntax error: line=%d, col=%d, message=%q", e.Line, e.Col, e.Message)
}

func TestE2ESyntaxErrorSingleLineMissingParen(t *testing.T) {
	app := quietApp()
	result := app.Evaluate("(+ 1 2")

	if len(result.Errors) == 0 {
		t.Fatal("expected eval error for missing closing paren")
	}
	if result.Errors[0].Message == "" {
		t.Error("error message should not be empty")
	}
}

// ---------------------------------------------------------------------------
// 3. Bad shapes: unknown builtins, bad dimensions, missing files.
// ---------------------------------------------------------------------------

func TestE2EUndefinedBuiltin(t *testing.T) {
	app := quietApp()
	result := app.Evaluate(`(body (pyramid :size 1))`)
	if len(result.Errors) == 0 {
		t.Fatal("expected eval error for an undefined builtin")
	}
	if len(result.Meshes) != 0 {
		t.Errorf("expected 0 meshes on error, got %d", len(result.Meshes))
	}
}

func TestE2EBadDimensions(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"zero box", `(body (box :size (vec3 0 1 1)))`},
		{"negative sphere", `(body (sphere :radius -1))`},
		{"zero cylinder", `(body (cylinder :height 0 :radius 1))`},
	}
	app := quietApp()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := app.Evaluate(tt.source)
			if len(result.Errors) == 0 {
				t.Fatal("expected an eval error")
			}
			if !strings.Contains(result.Errors[0].Message, "positive") {
				t.Errorf("error %q does not mention positivity", result.Errors[0].Message)
			}
		})
	}
}

func TestE2EMissingMesh(t *testing.T) {
	app := quietApp()
	app.Dir = t.TempDir()
	result := app.Evaluate(`(body (obj "nowhere.obj") :name "ghost")`)

	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", result.Errors)
	}
	msg := result.Errors[0].Message
	if !strings.HasPrefix(msg, "tessellation failed") || !strings.Contains(msg, "ghost") {
		t.Errorf("error = %q", msg)
	}
}

func TestE2EMeshDifferenceRejected(t *testing.T) {
	app := quietApp()
	app.Dir = "examples"
	result := app.Evaluate(`(body (difference (obj "cube.obj") (sphere :radius 0.5)))`)
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0].Message, "analytic") {
		t.Errorf("errors = %v", result.Errors)
	}
}

// ---------------------------------------------------------------------------
// 4. Rapid evaluation (debounce simulation): no panics, clean recovery.
// ---------------------------------------------------------------------------

func TestE2ERapidEvaluationAlternating(t *testing.T) {
	// Alternates between valid and invalid sources. Calls are sequential:
	// zygomys keeps global state that is not safe for concurrent sandbox
	// creation, and the engine serializes calls anyway.
	app := quietApp()

	sources := []struct {
		source string
		ok     bool
	}{
		{`(body (sphere :radius 1))`, true},
		{`(body (sphere`, false},
		{``, true},
		{`(frames -1)`, false},
		{`(body (box :size (vec3 1 2 3)) :at (vec3 0 5 0))`, true},
		{`(+ 1 2)`, true},
		{`;; just a comment`, true},
		{`(undefined-func 1 2 3)`, false},
		{`(body (cylinder :height 2 :radius 0.5) :rotate (vec3 90 0 0))`, true},
	}

	for i, s := range sources {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("iteration %d panicked on source %q: %v", i, s.source, r)
				}
			}()
			result := app.Evaluate(s.source)
			if ok := len(result.Errors) == 0; ok != s.ok {
				t.Errorf("iteration %d %q: errors=%v", i, s.source, result.Errors)
			}
		}()
	}
}

// ---------------------------------------------------------------------------
// 5. Language features: defs, arithmetic, booleans.
// ---------------------------------------------------------------------------

func TestE2EArithmeticDef(t *testing.T) {
	app := quietApp()
	source := `
(def r (* 0.5 3))
(def lift (+ r 1))
(body (sphere :radius r) :name "ball" :at (vec3 0 lift 0))
`
	result := app.Evaluate(source)
	if len(result.Errors) > 0 {
		t.Fatalf("eval errors: %v", result.Errors)
	}
	if len(result.Meshes) != 1 {
		t.Fatalf("expected 1 mesh, got %d", len(result.Meshes))
	}
	// Radius 1.5 centred 2.5 above the origin.
	lo, hi := float32(100), float32(-100)
	vs := result.Meshes[0].Vertices
	for i := 1; i < len(vs); i += 3 {
		lo, hi = min(lo, vs[i]), max(hi, vs[i])
	}
	if lo < 0.8 || lo > 1.2 || hi < 3.8 || hi > 4.2 {
		t.Errorf("y range = [%g, %g], want about [1, 4]", lo, hi)
	}
}

func TestE2EBooleans(t *testing.T) {
	app := quietApp()
	source := `
(def ball (sphere :radius 1))
(def slab (box :size (vec3 3 0.5 3)))
(body (union ball slab) :name "u")
(body (difference ball slab) :name "d")
(body (intersection ball slab) :name "i")
`
	result := app.Evaluate(source)
	if len(result.Errors) > 0 {
		t.Fatalf("eval errors: %v", result.Errors)
	}
	if len(result.Meshes) != 3 {
		t.Fatalf("expected 3 meshes, got %d", len(result.Meshes))
	}
	for _, m := range result.Meshes {
		if len(m.Indices) == 0 {
			t.Errorf("body %s: no triangles", m.BodyName)
		}
	}
}

func TestE2EColorPaletteWrapping(t *testing.T) {
	app := quietApp()

	// More bodies than the palette has colors.
	var b strings.Builder
	for i := 0; i < 9; i++ {
		fmt.Fprintf(&b, "(body (sphere :radius 0.4) :at (vec3 %d 0 0))\n", i)
	}
	result := app.Evaluate(b.String())
	if len(result.Errors) > 0 {
		t.Fatalf("eval errors: %v", result.Errors)
	}
	if len(result.Meshes) != 9 {
		t.Fatalf("expected 9 meshes, got %d", len(result.Meshes))
	}
	for _, m := range result.Meshes {
		if m.Color == "" {
			t.Errorf("mesh %q should have a color assigned", m.BodyName)
		}
	}
	if result.Meshes[8].Color != result.Meshes[0].Color {
		t.Errorf("palette did not wrap: %q vs %q", result.Meshes[8].Color, result.Meshes[0].Color)
	}
	if result.Meshes[8].BodyName != "body8" {
		t.Errorf("default name = %q", result.Meshes[8].BodyName)
	}
}
