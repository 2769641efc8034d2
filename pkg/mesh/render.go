package mesh

// RenderBuffers is a flat, unindexed copy of a mesh for a renderer.
// Vertices and Normals hold 3 floats per corner; every face gets three
// fresh corners carrying its face normal, so Indices is simply 0..n-1.
type RenderBuffers struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	Name     string    `json:"name"`
}

// VertexCount returns the number of vertices.
func (b *RenderBuffers) VertexCount() int {
	return len(b.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (b *RenderBuffers) TriangleCount() int {
	return len(b.Indices) / 3
}

// IsEmpty returns true if the buffers hold no geometry.
func (b *RenderBuffers) IsEmpty() bool {
	return len(b.Vertices) == 0
}

// Buffers flattens m for upload. Faces with bad indices are left out.
func (m *Mesh) Buffers() *RenderBuffers {
	b := &RenderBuffers{
		Name:     m.Name,
		Vertices: make([]float32, 0, len(m.faces)*9),
		Normals:  make([]float32, 0, len(m.faces)*9),
		Indices:  make([]uint32, 0, len(m.faces)*3),
	}
	for i, f := range m.faces {
		if len(m.checkFace(i, f)) > 0 {
			continue
		}
		n := m.normals[f.N]
		for _, vi := range f.V {
			v := m.vertices[vi]
			b.Indices = append(b.Indices, uint32(len(b.Vertices)/3))
			b.Vertices = append(b.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
			b.Normals = append(b.Normals, float32(n.X), float32(n.Y), float32(n.Z))
		}
	}
	return b
}
