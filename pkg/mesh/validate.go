package mesh

import (
	"fmt"
	"strings"
)

// IndexError describes one face index that points outside its array.
type IndexError struct {
	Face  int    // face number
	Kind  string // "vertex", "uv" or "normal"
	Index int    // offending index
	Limit int    // length of the referenced array
}

func (e IndexError) Error() string {
	return fmt.Sprintf("face %d: %s index %d out of range [0, %d)", e.Face, e.Kind, e.Index, e.Limit)
}

// MalformedMeshError is returned when faces reference vertices, normals or
// texture coordinates that do not exist.
type MalformedMeshError struct {
	Mesh   string
	Errors []IndexError
}

func (e *MalformedMeshError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "malformed mesh %q: %d bad index(es)", e.Mesh, len(e.Errors))
	for i, ie := range e.Errors {
		if i == 5 {
			fmt.Fprintf(&b, "; ... %d more", len(e.Errors)-i)
			break
		}
		b.WriteString("; ")
		b.WriteString(ie.Error())
	}
	return b.String()
}

// Validate checks every face index. It returns nil or a *MalformedMeshError
// listing each bad index.
func (m *Mesh) Validate() error {
	var errs []IndexError
	for i, f := range m.faces {
		errs = append(errs, m.checkFace(i, f)...)
	}
	if len(errs) > 0 {
		return &MalformedMeshError{Mesh: m.Name, Errors: errs}
	}
	return nil
}

func (m *Mesh) checkFace(i int, f Face) []IndexError {
	var errs []IndexError
	for _, vi := range f.V {
		if vi < 0 || vi >= len(m.vertices) {
			errs = append(errs, IndexError{Face: i, Kind: "vertex", Index: vi, Limit: len(m.vertices)})
		}
	}
	for _, ti := range f.UV {
		if ti >= len(m.uvs) {
			errs = append(errs, IndexError{Face: i, Kind: "uv", Index: ti, Limit: len(m.uvs)})
		}
	}
	if f.N < 0 || f.N >= len(m.normals) {
		errs = append(errs, IndexError{Face: i, Kind: "normal", Index: f.N, Limit: len(m.normals)})
	}
	return errs
}
