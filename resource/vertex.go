// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
)

// Vertex is the interleaved vertex format every mesh uses.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Color    mgl32.Vec4
}

// Vertex layout constants.
const (
	// VertexStride is the size of one encoded Vertex in bytes.
	VertexStride = 40

	positionOffset = 0
	normalOffset   = 12
	colorOffset    = 24
)

// VertexLayout returns the vertex buffer layout matching Vertex, with
// position, normal and color at shader locations 0, 1 and 2.
func VertexLayout() gputypes.VertexBufferLayout {
	return gputypes.VertexBufferLayout{
		ArrayStride: VertexStride,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, Offset: positionOffset, ShaderLocation: 0},
			{Format: gputypes.VertexFormatFloat32x3, Offset: normalOffset, ShaderLocation: 1},
			{Format: gputypes.VertexFormatFloat32x4, Offset: colorOffset, ShaderLocation: 2},
		},
	}
}

func encodeVertices(vs []Vertex) []byte {
	buf := make([]byte, len(vs)*VertexStride)
	for i, v := range vs {
		b := buf[i*VertexStride:]
		putFloats(b[positionOffset:], v.Position[:])
		putFloats(b[normalOffset:], v.Normal[:])
		putFloats(b[colorOffset:], v.Color[:])
	}
	return buf
}

func putFloats(b []byte, fs []float32) {
	for i, f := range fs {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
}

// indexFormatFor picks 16-bit indices when every vertex is addressable.
func indexFormatFor(vertexCount int) gputypes.IndexFormat {
	if vertexCount <= math.MaxUint16 {
		return gputypes.IndexFormatUint16
	}
	return gputypes.IndexFormatUint32
}

// encodeIndices packs indices in format, padded to a 4-byte multiple.
func encodeIndices(idx []uint32, format gputypes.IndexFormat) []byte {
	size := 4
	if format == gputypes.IndexFormatUint16 {
		size = 2
	}
	buf := make([]byte, align4(uint64(len(idx)*size)))
	for i, v := range idx {
		if size == 2 {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
		} else {
			binary.LittleEndian.PutUint32(buf[i*4:], v)
		}
	}
	return buf
}

func align4(n uint64) uint64 {
	return (n + 3) &^ 3
}
