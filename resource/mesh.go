// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/stage/backend"
	"github.com/gogpu/stage/geom"
)

// MeshData is a triangle list. Without indices, every three consecutive
// vertices form a triangle.
type MeshData struct {
	Label    string
	Vertices []Vertex
	Indices  []uint32
}

// MeshPatch edits a registered mesh. Vertices overwrite the mesh starting
// at Offset and may extend it. When ReplaceIndices is set the index list is
// replaced by Indices; a nil Indices makes the mesh non-indexed.
type MeshPatch struct {
	Offset         int
	Vertices       []Vertex
	Indices        []uint32
	ReplaceIndices bool
}

// Geometry is the CPU copy of a mesh used for triangle-accurate picking.
// The slices are shared and must not be modified.
type Geometry struct {
	Positions []mgl32.Vec3
	Indices   []uint32
}

// TriangleCount returns the number of triangles.
func (g Geometry) TriangleCount() int {
	if g.Indices != nil {
		return len(g.Indices) / 3
	}
	return len(g.Positions) / 3
}

// Triangle returns the corners of triangle i.
func (g Geometry) Triangle(i int) (a, b, c mgl32.Vec3) {
	if g.Indices != nil {
		return g.Positions[g.Indices[3*i]], g.Positions[g.Indices[3*i+1]], g.Positions[g.Indices[3*i+2]]
	}
	return g.Positions[3*i], g.Positions[3*i+1], g.Positions[3*i+2]
}

// MeshInfo is a read-only view of a registered mesh.
type MeshInfo struct {
	Handle      MeshHandle
	Label       string
	VertexCount int
	IndexCount  int
	Bounds      geom.AABB
	Refs        int
	Resident    bool
	Dirty       bool
	SizeBytes   uint64
}

type meshState struct {
	vertices  []Vertex
	indices   []uint32
	positions []mgl32.Vec3
	bounds    geom.AABB

	binding backend.MeshBinding
	vbufCap uint64
	ibufCap uint64
}

func validateMesh(vs []Vertex, idx []uint32) error {
	if len(vs) == 0 {
		return fmt.Errorf("%w: no vertices", ErrInvalidGeometry)
	}
	for i, v := range vs {
		for _, f := range v.Position {
			if math32.IsNaN(f) || math32.IsInf(f, 0) {
				return fmt.Errorf("%w: vertex %d has non-finite position", ErrInvalidGeometry, i)
			}
		}
	}
	if idx == nil {
		if len(vs)%3 != 0 {
			return fmt.Errorf("%w: %d vertices is not a whole number of triangles", ErrInvalidGeometry, len(vs))
		}
		return nil
	}
	if len(idx) == 0 || len(idx)%3 != 0 {
		return fmt.Errorf("%w: index count %d is not a positive multiple of 3", ErrInvalidGeometry, len(idx))
	}
	for i, ix := range idx {
		if int(ix) >= len(vs) {
			return fmt.Errorf("%w: index %d references vertex %d of %d", ErrInvalidGeometry, i, ix, len(vs))
		}
	}
	return nil
}

// newMeshState copies the caller's slices so later edits by the caller do
// not reach the registry.
func newMeshState(vs []Vertex, idx []uint32) *meshState {
	m := &meshState{}
	m.set(append([]Vertex(nil), vs...), cloneIndices(idx))
	return m
}

// set installs freshly allocated slices. Slices handed out through
// Geometry are never written again.
func (m *meshState) set(vs []Vertex, idx []uint32) {
	m.vertices = vs
	m.indices = idx
	m.positions = make([]mgl32.Vec3, len(vs))
	b := geom.EmptyAABB()
	for i, v := range vs {
		m.positions[i] = v.Position
		b = b.Extend(v.Position)
	}
	m.bounds = b
}

func (m *meshState) patched(p MeshPatch) ([]Vertex, []uint32, error) {
	if p.Offset < 0 || p.Offset > len(m.vertices) {
		return nil, nil, fmt.Errorf("%w: patch offset %d outside 0..%d", ErrInvalidGeometry, p.Offset, len(m.vertices))
	}
	n := max(len(m.vertices), p.Offset+len(p.Vertices))
	vs := make([]Vertex, n)
	copy(vs, m.vertices)
	copy(vs[p.Offset:], p.Vertices)

	idx := m.indices
	if p.ReplaceIndices {
		idx = cloneIndices(p.Indices)
	}
	if err := validateMesh(vs, idx); err != nil {
		return nil, nil, err
	}
	return vs, idx, nil
}

func (m *meshState) geometry() Geometry {
	return Geometry{Positions: m.positions, Indices: m.indices}
}

// gpuSizes returns the aligned vertex and index buffer sizes.
func (m *meshState) gpuSizes() (vsize, isize uint64) {
	vsize = uint64(len(m.vertices) * VertexStride)
	if m.indices != nil {
		per := uint64(4)
		if indexFormatFor(len(m.vertices)) == gputypes.IndexFormatUint16 {
			per = 2
		}
		isize = align4(uint64(len(m.indices)) * per)
	}
	return vsize, isize
}

func cloneIndices(idx []uint32) []uint32 {
	if idx == nil {
		return nil
	}
	return append(make([]uint32, 0, len(idx)), idx...)
}
