// Package geom implements the point-to-triangle signed distance used to
// bake distance fields from meshes. Vectors are sdfx v3.Vec values.
package geom
