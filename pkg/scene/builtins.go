package scene

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/sdfsim/pkg/grid"
	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource rewrites scene source before zygomys sees it:
//
//  1. :keyword becomes the string literal "__kw_keyword".
//  2. Kebab-case identifiers become snake_case (sdf-file -> sdf_file),
//     since zygomys reads a hyphen as the subtraction operator.
//  3. ; line comments become // comments.
//
// String literals are left untouched.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		switch {
		case b[i] == '"':
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}

		case b[i] == '`':
			j := i + 1
			for j < len(b) && b[j] != '`' {
				j++
			}
			if j < len(b) {
				j++
			}
			result = append(result, b[i:j]...)
			i = j

		case b[i] == ';':
			result = append(result, '/', '/')
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}

		case b[i] == ':' && i+1 < len(b) && b[i+1] == '=':
			result = append(result, b[i], b[i+1])
			i += 2

		case b[i] == ':' && i+1 < len(b) && isLetter(b[i+1]):
			j := i + 1
			for j < len(b) && isKWChar(b[j]) {
				j++
			}
			result = append(result, '"')
			result = append(result, kwPrefix...)
			result = append(result, b[i+1:j]...)
			result = append(result, '"')
			i = j

		case b[i] == '-' && i > 0 && i+1 < len(b) && isIdentChar(b[i-1]) && isLetter(b[i+1]):
			result = append(result, '_')
			i++

		default:
			result = append(result, b[i])
			i++
		}
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpShape carries a shape tree from the primitive and boolean builtins
// to `body`.
type sexpShape struct {
	shape *Shape
}

func (s *sexpShape) SexpString(ps *zygo.PrintState) string {
	switch s.shape.Kind {
	case ShapeMesh:
		return fmt.Sprintf("(obj %q)", s.shape.Path)
	case ShapeBox:
		b := s.shape.Size
		return fmt.Sprintf("(box %gx%gx%g)", b.X, b.Y, b.Z)
	}
	return fmt.Sprintf("(%s)", s.shape.Kind)
}
func (s *sexpShape) Type() *zygo.RegisteredType { return nil }

type sexpBody struct {
	name string
}

func (b *sexpBody) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(body %q)", b.name)
}
func (b *sexpBody) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW returns the keyword name when s is a preprocessed keyword.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			// Trailing keyword reads as a flag.
			result.kw[name] = &zygo.SexpBool{Val: true}
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

func toInt(s zygo.Sexp) (int, error) {
	f, err := toFloat64(s)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("expected integer, got %g", f)
	}
	return int(f), nil
}

func toBool(s zygo.Sexp) (bool, error) {
	if b, ok := s.(*zygo.SexpBool); ok {
		return b.Val, nil
	}
	return false, fmt.Errorf("expected true or false, got %T (%s)", s, s.SexpString(nil))
}

func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString accepts both :batty and "batty".
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

func toVec3(s zygo.Sexp) (v3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return v3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

func toShape(s zygo.Sexp) (*Shape, error) {
	if v, ok := s.(*sexpShape); ok {
		return v.shape, nil
	}
	return nil, fmt.Errorf("expected shape, got %T (%s)", s, s.SexpString(nil))
}

// positive reads a keyword that must hold a number > 0.
func positive(pa kwArgs, key string) (float64, bool, error) {
	v, ok := pa.kw[key]
	if !ok {
		return 0, false, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, true, err
	}
	if !(f > 0) {
		return 0, true, fmt.Errorf("must be positive, got %g", f)
	}
	return f, true, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the scene builtins into env. They record into d
// as the script runs. Source must go through preprocessSource first so that
// keywords are recognizable.
func registerBuiltins(env *zygo.Zlisp, d *Description) {

	// (vec3 1 2 3)
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var c [3]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %c: %w", "xyz"[i], err)
			}
			c[i] = f
		}
		return &sexpVec3{vec: v3.Vec{X: c[0], Y: c[1], Z: c[2]}}, nil
	})

	// (box :size (vec3 2 1 2))
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		v, ok := pa.kw["size"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("box requires :size")
		}
		size, err := toVec3(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("box: size: %w", err)
		}
		if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
			return zygo.SexpNull, fmt.Errorf("box: size %v must be positive on every axis", size)
		}
		return &sexpShape{shape: &Shape{Kind: ShapeBox, Size: size}}, nil
	})

	// (sphere :radius 1)
	env.AddFunction("sphere", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		r, ok, err := positive(parseArgs(args), "radius")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sphere: radius: %w", err)
		}
		if !ok {
			return zygo.SexpNull, fmt.Errorf("sphere requires :radius")
		}
		return &sexpShape{shape: &Shape{Kind: ShapeSphere, Radius: r}}, nil
	})

	// (cylinder :height 2 :radius 0.5)
	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		h, okH, err := positive(pa, "height")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: height: %w", err)
		}
		r, okR, err := positive(pa, "radius")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: radius: %w", err)
		}
		if !okH || !okR {
			return zygo.SexpNull, fmt.Errorf("cylinder requires :height and :radius")
		}
		return &sexpShape{shape: &Shape{Kind: ShapeCylinder, Height: h, Radius: r}}, nil
	})

	// (obj "bunny.obj")
	env.AddFunction("obj", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("obj requires a path argument")
		}
		path, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("obj: path: %w", err)
		}
		return &sexpShape{shape: &Shape{Kind: ShapeMesh, Path: path}}, nil
	})

	// (union a b ...), (difference a b ...), (intersection a b ...)
	for fn, kind := range map[string]ShapeKind{
		"union":        ShapeUnion,
		"difference":   ShapeDifference,
		"intersection": ShapeIntersection,
	} {
		env.AddFunction(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) < 2 {
				return zygo.SexpNull, fmt.Errorf("%s requires at least 2 shapes, got %d", fn, len(args))
			}
			s := &Shape{Kind: kind}
			for i, a := range args {
				child, err := toShape(a)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: operand %d: %w", fn, i, err)
				}
				s.Children = append(s.Children, child)
			}
			if kind != ShapeUnion && !s.Analytic() {
				return zygo.SexpNull, fmt.Errorf("%s: operands must be analytic solids, not obj meshes", fn)
			}
			return &sexpShape{shape: s}, nil
		})
	}

	// (body shape :name "floor" :at (vec3 0 -1 0) :rotate (vec3 0 0 45) :scale 2)
	env.AddFunction("body", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("body requires exactly one shape")
		}
		shape, err := toShape(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("body: %w", err)
		}
		b := Body{Name: fmt.Sprintf("body%d", len(d.Bodies)), Shape: shape}

		if v, ok := pa.kw["name"]; ok {
			if b.Name, err = toString(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("body: name: %w", err)
			}
		}
		if v, ok := pa.kw["at"]; ok {
			if b.At, err = toVec3(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("body: at: %w", err)
			}
		}
		if v, ok := pa.kw["rotate"]; ok {
			if b.Rotate, err = toVec3(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("body: rotate: %w", err)
			}
		}
		if s, ok, err := positive(pa, "scale"); err != nil {
			return zygo.SexpNull, fmt.Errorf("body: scale: %w", err)
		} else if ok {
			b.Scale = s
		}

		d.Bodies = append(d.Bodies, b)
		return &sexpBody{name: b.Name}, nil
	})

	// (grid :cell-size 0.05 :margin 0.2 :workers 4)
	env.AddFunction("grid", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if cs, ok, err := positive(pa, "cell-size"); err != nil {
			return zygo.SexpNull, fmt.Errorf("grid: cell-size: %w", err)
		} else if ok {
			d.Grid.CellSize = cs
		}
		if v, ok := pa.kw["margin"]; ok {
			m, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("grid: margin: %w", err)
			}
			if m < 0 {
				return zygo.SexpNull, fmt.Errorf("grid: margin %g is negative", m)
			}
			d.Grid.Margin = m
		}
		if v, ok := pa.kw["workers"]; ok {
			n, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("grid: workers: %w", err)
			}
			d.Grid.Workers = n
		}
		return zygo.SexpNull, nil
	})

	// (sdf-file "bunny.sdf" :format :batty)
	env.AddFunction("sdf_file", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("sdf-file requires a path argument")
		}
		path, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sdf-file: path: %w", err)
		}
		format := grid.FormatCells
		if v, ok := pa.kw["format"]; ok {
			s, err := toKeywordString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("sdf-file: format: %w", err)
			}
			if format, err = grid.ParseFormat(s); err != nil {
				return zygo.SexpNull, fmt.Errorf("sdf-file: %w", err)
			}
		}
		d.Grid.File = path
		d.Grid.Format = format
		return zygo.SexpNull, nil
	})

	// (particles "points.txt" :offset (vec3 0 4 0) :jitter true)
	env.AddFunction("particles", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("particles requires a path argument")
		}
		path, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("particles: path: %w", err)
		}
		s := SeedSpec{Path: path}
		if v, ok := pa.kw["offset"]; ok {
			if s.Offset, err = toVec3(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("particles: offset: %w", err)
			}
		}
		if v, ok := pa.kw["jitter"]; ok {
			if s.Jitter, err = toBool(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("particles: jitter: %w", err)
			}
		}
		d.Seeds = append(d.Seeds, s)
		return zygo.SexpNull, nil
	})

	// (emit :count 1000 :min (vec3 -1 2 -1) :max (vec3 1 3 1))
	env.AddFunction("emit", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var e EmitSpec
		var err error
		v, ok := pa.kw["count"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("emit requires :count")
		}
		if e.Count, err = toInt(v); err != nil {
			return zygo.SexpNull, fmt.Errorf("emit: count: %w", err)
		}
		if e.Count < 0 {
			return zygo.SexpNull, fmt.Errorf("emit: count %d is negative", e.Count)
		}
		for key, dst := range map[string]*v3.Vec{"min": &e.Min, "max": &e.Max} {
			v, ok := pa.kw[key]
			if !ok {
				return zygo.SexpNull, fmt.Errorf("emit requires :%s", key)
			}
			if *dst, err = toVec3(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("emit: %s: %w", key, err)
			}
		}
		d.Emitters = append(d.Emitters, e)
		return zygo.SexpNull, nil
	})

	// (gravity (vec3 0 -9.8 0))
	env.AddFunction("gravity", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("gravity requires a vec3 argument")
		}
		g, err := toVec3(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("gravity: %w", err)
		}
		d.Step.Gravity = g
		return zygo.SexpNull, nil
	})

	// (step :dt 0.01 :threshold 0.1 :friction 0.3 :restitution 0.3 :push-out 2)
	env.AddFunction("step", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		fields := map[string]*float64{
			"dt":          &d.Step.Dt,
			"threshold":   &d.Step.Threshold,
			"friction":    &d.Step.Friction,
			"restitution": &d.Step.Restitution,
			"push-out":    &d.Step.PushOut,
		}
		for key, v := range pa.kw {
			dst, ok := fields[key]
			if !ok {
				return zygo.SexpNull, fmt.Errorf("step: unknown parameter :%s", key)
			}
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("step: %s: %w", key, err)
			}
			*dst = f
		}
		if err := d.Step.Validate(); err != nil {
			return zygo.SexpNull, fmt.Errorf("step: %w", err)
		}
		return zygo.SexpNull, nil
	})

	// (frames 500)
	env.AddFunction("frames", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("frames requires a count argument")
		}
		n, err := toInt(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("frames: %w", err)
		}
		if n < 0 {
			return zygo.SexpNull, fmt.Errorf("frames: count %d is negative", n)
		}
		d.Frames = n
		return zygo.SexpNull, nil
	})
}
