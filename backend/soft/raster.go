// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/stage/backend"
)

// edgeEpsilon lets samples on a shared edge hit either triangle.
const edgeEpsilon = 1e-6

// rasterizer point-samples a draw list. It reads buffers directly, so the
// device lock must be held.
type rasterizer struct {
	buffers   map[backend.BufferID]*buffer
	triangles uint64
}

// clipVert is a vertex in clip space.
type clipVert = mgl32.Vec4

// samplePicks returns one sample per pick request, in request order.
func (r *rasterizer) samplePicks(f *backend.Frame) []backend.PickSample {
	out := make([]backend.PickSample, len(f.Picks))
	points := make([][2]float32, len(f.Picks))
	depth := make([]float32, len(f.Picks))
	for i, p := range f.Picks {
		out[i] = backend.PickSample{X: p.X, Y: p.Y}
		// Sample at the pixel center.
		points[i] = [2]float32{
			2*(float32(p.X)+0.5)/float32(f.Width) - 1,
			1 - 2*(float32(p.Y)+0.5)/float32(f.Height),
		}
		depth[i] = math.MaxFloat32
	}

	for _, d := range f.Draws {
		if d.PickID == 0 {
			continue
		}
		mvp := f.ViewProjection.Mul4(d.Model)
		r.eachTriangle(d.Mesh, mvp, func(a, b, c mgl32.Vec3) {
			for i, p := range points {
				z, ok := coverage(a, b, c, p)
				if !ok || z < -1 || z > 1 || z >= depth[i] {
					continue
				}
				depth[i] = z
				out[i].ID = d.PickID
			}
		})
	}
	return out
}

// eachTriangle transforms the mesh by mvp, clips every triangle against
// the near plane and calls fn with NDC triangles.
func (r *rasterizer) eachTriangle(m backend.MeshBinding, mvp mgl32.Mat4, fn func(a, b, c mgl32.Vec3)) {
	vb, ok := r.buffers[m.VertexBuffer]
	if !ok || m.Stride < 12 {
		return
	}
	pos := func(i uint32) (mgl32.Vec3, bool) {
		off := uint64(i) * uint64(m.Stride)
		if off+12 > uint64(len(vb.data)) {
			return mgl32.Vec3{}, false
		}
		return mgl32.Vec3{
			readFloat(vb.data[off:]),
			readFloat(vb.data[off+4:]),
			readFloat(vb.data[off+8:]),
		}, true
	}

	var index func(i uint32) (uint32, bool)
	count := m.VertexCount
	if m.Indexed() {
		ib, ok := r.buffers[m.IndexBuffer]
		if !ok {
			return
		}
		count = m.IndexCount
		index = indexReader(ib.data, m.IndexFormat)
	} else {
		index = func(i uint32) (uint32, bool) { return i, true }
	}

	var poly [9]clipVert
	for t := uint32(0); t+2 < count; t += 3 {
		var tri [3]clipVert
		valid := true
		for k := range uint32(3) {
			vi, ok := index(t + k)
			if !ok {
				valid = false
				break
			}
			p, ok := pos(vi)
			if !ok {
				valid = false
				break
			}
			tri[k] = mvp.Mul4x1(p.Vec4(1))
		}
		if !valid {
			continue
		}
		r.triangles++
		n := clipNear(tri, poly[:0])
		if n < 3 {
			continue
		}
		a := perspective(poly[0])
		for i := 1; i+1 < n; i++ {
			fn(a, perspective(poly[i]), perspective(poly[i+1]))
		}
	}
}

func indexReader(data []byte, format gputypes.IndexFormat) func(uint32) (uint32, bool) {
	if format == gputypes.IndexFormatUint32 {
		return func(i uint32) (uint32, bool) {
			off := uint64(i) * 4
			if off+4 > uint64(len(data)) {
				return 0, false
			}
			return binary.LittleEndian.Uint32(data[off:]), true
		}
	}
	return func(i uint32) (uint32, bool) {
		off := uint64(i) * 2
		if off+2 > uint64(len(data)) {
			return 0, false
		}
		return uint32(binary.LittleEndian.Uint16(data[off:])), true
	}
}

func readFloat(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// clipNear clips a triangle against z >= -w (Sutherland-Hodgman) into
// dst and returns the vertex count of the resulting polygon.
func clipNear(tri [3]clipVert, dst []clipVert) int {
	dist := func(v clipVert) float32 { return v.Z() + v.W() }
	for i := range 3 {
		cur, next := tri[i], tri[(i+1)%3]
		dc, dn := dist(cur), dist(next)
		if dc >= 0 {
			dst = append(dst, cur)
		}
		if (dc >= 0) != (dn >= 0) {
			s := dc / (dc - dn)
			dst = append(dst, cur.Add(next.Sub(cur).Mul(s)))
		}
	}
	return len(dst)
}

func perspective(v clipVert) mgl32.Vec3 {
	w := v.W()
	if w <= 0 {
		w = 1e-20
	}
	return mgl32.Vec3{v.X() / w, v.Y() / w, v.Z() / w}
}

// coverage reports whether p lies inside triangle abc in NDC, regardless
// of winding, and returns the interpolated depth there.
func coverage(a, b, c mgl32.Vec3, p [2]float32) (float32, bool) {
	den := (b.Y()-c.Y())*(a.X()-c.X()) + (c.X()-b.X())*(a.Y()-c.Y())
	if den == 0 {
		return 0, false
	}
	l1 := ((b.Y()-c.Y())*(p[0]-c.X()) + (c.X()-b.X())*(p[1]-c.Y())) / den
	l2 := ((c.Y()-a.Y())*(p[0]-c.X()) + (a.X()-c.X())*(p[1]-c.Y())) / den
	l3 := 1 - l1 - l2
	if l1 < -edgeEpsilon || l2 < -edgeEpsilon || l3 < -edgeEpsilon {
		return 0, false
	}
	return l1*a.Z() + l2*b.Z() + l3*c.Z(), true
}
