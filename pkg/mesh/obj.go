package mesh

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ParseError reports a line the OBJ reader could not understand.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// LoadOBJ reads an OBJ file from disk. A file that cannot be opened is
// logged and returned as an error.
func LoadOBJ(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("failed to open mesh file %s: %v", path, err)
		return nil, fmt.Errorf("mesh: %w", err)
	}
	defer f.Close()
	return ParseOBJ(f, path)
}

// ParseOBJ reads the OBJ subset used for collider meshes: v, vn, vt and f
// lines. Faces may be written as v//vn (three or four corners; quads are
// split into two triangles), v/vt/vn, or bare vertex indices, in which case
// the face normal is derived from the winding. Indices are 1-based in the
// file and 0-based in the returned mesh. The mesh is validated before it is
// returned.
func ParseOBJ(r io.Reader, name string) (*Mesh, error) {
	m := New(name)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "v":
			v, err := parseVec3(fields[1:])
			if err != nil {
				return nil, &ParseError{Line: lineNo, Msg: "vertex: " + err.Error()}
			}
			m.AddVertex(v)
		case "vn":
			n, err := parseVec3(fields[1:])
			if err != nil {
				return nil, &ParseError{Line: lineNo, Msg: "normal: " + err.Error()}
			}
			m.AddNormal(n)
		case "vt":
			if len(fields) < 3 {
				return nil, &ParseError{Line: lineNo, Msg: "texture coordinate: want 2 values"}
			}
			u, err1 := strconv.ParseFloat(fields[1], 64)
			v, err2 := strconv.ParseFloat(fields[2], 64)
			if err1 != nil || err2 != nil {
				return nil, &ParseError{Line: lineNo, Msg: "texture coordinate: bad number"}
			}
			m.AddUV(v2.Vec{X: u, Y: v})
		case "f":
			if err := m.parseFace(fields[1:]); err != nil {
				return nil, &ParseError{Line: lineNo, Msg: "face: " + err.Error()}
			}
		default:
			// o, g, s, usemtl and friends carry nothing we need.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mesh %s: %w", name, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

type corner struct {
	v, t, n int
}

func (m *Mesh) parseFace(tokens []string) error {
	if len(tokens) < 3 || len(tokens) > 4 {
		return fmt.Errorf("want 3 or 4 corners, got %d", len(tokens))
	}
	corners := make([]corner, len(tokens))
	hasNormal := false
	for i, tok := range tokens {
		c, err := parseCorner(tok)
		if err != nil {
			return err
		}
		if c.n >= 0 {
			hasNormal = true
		}
		corners[i] = c
	}
	if len(corners) == 4 && corners[0].t >= 0 {
		return fmt.Errorf("v/vt/vn faces must have 3 corners")
	}

	for _, tri := range fan(len(corners)) {
		a, b, c := corners[tri[0]], corners[tri[1]], corners[tri[2]]
		f := Face{
			V:  [3]int{a.v, b.v, c.v},
			UV: [3]int{a.t, b.t, c.t},
		}
		if hasNormal {
			// One normal per face: the last one listed wins.
			f.N = lastNormal(a, b, c)
		} else {
			f.N = m.AddNormal(m.windingNormal(f))
		}
		m.AddFace(f)
	}
	return nil
}

func fan(n int) [][3]int {
	if n == 4 {
		return [][3]int{{0, 1, 2}, {0, 2, 3}}
	}
	return [][3]int{{0, 1, 2}}
}

func lastNormal(cs ...corner) int {
	n := -1
	for _, c := range cs {
		if c.n >= 0 {
			n = c.n
		}
	}
	return n
}

// windingNormal returns the counter-clockwise normal of f, or the zero
// vector when its vertices are missing or collinear. Validation reports the
// missing vertices; the builder skips the degenerate face.
func (m *Mesh) windingNormal(f Face) v3.Vec {
	for _, vi := range f.V {
		if vi < 0 || vi >= len(m.vertices) {
			return v3.Vec{}
		}
	}
	a, b, c := m.vertices[f.V[0]], m.vertices[f.V[1]], m.vertices[f.V[2]]
	return normalize(b.Sub(a).Cross(c.Sub(a)))
}

// parseCorner decodes "v", "v/vt", "v//vn" or "v/vt/vn" into 0-based
// indices, with -1 for absent parts.
func parseCorner(tok string) (corner, error) {
	parts := strings.Split(tok, "/")
	if len(parts) > 3 {
		return corner{}, fmt.Errorf("bad corner %q", tok)
	}
	c := corner{v: -1, t: -1, n: -1}
	dst := []*int{&c.v, &c.t, &c.n}
	for i, p := range parts {
		if p == "" {
			if i == 0 {
				return corner{}, fmt.Errorf("corner %q has no vertex index", tok)
			}
			continue
		}
		idx, err := strconv.Atoi(p)
		if err != nil {
			return corner{}, fmt.Errorf("bad index in %q", tok)
		}
		*dst[i] = idx - 1
	}
	return c, nil
}

func parseVec3(fields []string) (v3.Vec, error) {
	if len(fields) < 3 {
		return v3.Vec{}, fmt.Errorf("want 3 values, got %d", len(fields))
	}
	var xyz [3]float64
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return v3.Vec{}, fmt.Errorf("bad number %q", fields[i])
		}
		xyz[i] = f
	}
	return v3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

// WriteOBJ writes m in the v//vn form ParseOBJ reads. Texture coordinates
// are written as v/vt/vn when every face has them.
func WriteOBJ(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s: %d vertices, %d faces\n", m.Name, m.VertexCount(), m.FaceCount())
	for _, v := range m.vertices {
		fmt.Fprintf(bw, "v %g %g %g\n", v.X, v.Y, v.Z)
	}
	for _, n := range m.normals {
		fmt.Fprintf(bw, "vn %g %g %g\n", n.X, n.Y, n.Z)
	}
	for _, t := range m.uvs {
		fmt.Fprintf(bw, "vt %g %g\n", t.X, t.Y)
	}
	withUV := len(m.uvs) > 0
	for _, f := range m.faces {
		if f.UV[0] < 0 || f.UV[1] < 0 || f.UV[2] < 0 {
			withUV = false
			break
		}
	}
	for _, f := range m.faces {
		if withUV {
			fmt.Fprintf(bw, "f %d/%d/%d %d/%d/%d %d/%d/%d\n",
				f.V[0]+1, f.UV[0]+1, f.N+1,
				f.V[1]+1, f.UV[1]+1, f.N+1,
				f.V[2]+1, f.UV[2]+1, f.N+1)
		} else {
			fmt.Fprintf(bw, "f %d//%d %d//%d %d//%d\n",
				f.V[0]+1, f.N+1, f.V[1]+1, f.N+1, f.V[2]+1, f.N+1)
		}
	}
	return bw.Flush()
}

// SaveOBJ writes m to path.
func SaveOBJ(path string, m *Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("mesh: %w", err)
	}
	if err := WriteOBJ(f, m); err != nil {
		f.Close()
		return fmt.Errorf("mesh: write %s: %w", path, err)
	}
	return f.Close()
}
