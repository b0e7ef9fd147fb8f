// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import "github.com/go-gl/mathgl/mgl32"

// Cube returns an indexed axis-aligned cube centered on the origin with
// edge length size: 24 vertices with per-face normals, 36 indices.
func Cube(size float32, color mgl32.Vec4) MeshData {
	h := size / 2
	faces := []struct {
		n    mgl32.Vec3
		u, v mgl32.Vec3
	}{
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
	}
	data := MeshData{
		Label:    "cube",
		Vertices: make([]Vertex, 0, 24),
		Indices:  make([]uint32, 0, 36),
	}
	for _, f := range faces {
		base := uint32(len(data.Vertices))
		center := f.n.Mul(h)
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			p := center.Add(f.u.Mul(c[0] * h)).Add(f.v.Mul(c[1] * h))
			data.Vertices = append(data.Vertices, Vertex{Position: p, Normal: f.n, Color: color})
		}
		data.Indices = append(data.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return data
}

// Quad returns a two-triangle square in the XY plane facing +Z.
func Quad(size float32, color mgl32.Vec4) MeshData {
	h := size / 2
	n := mgl32.Vec3{0, 0, 1}
	return MeshData{
		Label: "quad",
		Vertices: []Vertex{
			{Position: mgl32.Vec3{-h, -h, 0}, Normal: n, Color: color},
			{Position: mgl32.Vec3{h, -h, 0}, Normal: n, Color: color},
			{Position: mgl32.Vec3{h, h, 0}, Normal: n, Color: color},
			{Position: mgl32.Vec3{-h, h, 0}, Normal: n, Color: color},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}
