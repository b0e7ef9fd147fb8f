// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geom

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// parallelEpsilon is the magnitude below which a direction component or a
// triangle determinant is treated as zero.
const parallelEpsilon = 1e-12

// Ray is a half line Origin + t*Dir for t >= 0. Dir need not be unit
// length; intersection distances are expressed in multiples of Dir.
type Ray struct {
	Origin mgl32.Vec3
	Dir    mgl32.Vec3
}

// At returns the point at parameter t.
func (r Ray) At(t float32) mgl32.Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}

// Transformed maps r through m. The direction is not renormalized, so a
// parameter t names the same point before and after the mapping.
func (r Ray) Transformed(m mgl32.Mat4) Ray {
	o := m.Mul4x1(r.Origin.Vec4(1))
	d := m.Mul4x1(r.Dir.Vec4(0))
	return Ray{Origin: o.Vec3(), Dir: d.Vec3()}
}

// IntersectAABB runs the slab test against b. It returns the smallest
// t >= 0 at which the ray is inside b; a ray starting inside b reports 0.
func (r Ray) IntersectAABB(b AABB) (float32, bool) {
	if b.IsEmpty() {
		return 0, false
	}
	tmin := float32(0)
	tmax := math32.Inf(1)
	for i := 0; i < 3; i++ {
		if math32.Abs(r.Dir[i]) < parallelEpsilon {
			if r.Origin[i] < b.Min[i] || r.Origin[i] > b.Max[i] {
				return 0, false
			}
			continue
		}
		inv := 1 / r.Dir[i]
		t1 := (b.Min[i] - r.Origin[i]) * inv
		t2 := (b.Max[i] - r.Origin[i]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math32.Max(tmin, t1)
		tmax = math32.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

// IntersectTriangle runs the Moller-Trumbore test against the triangle
// (a, b, c). Both faces count as hits.
func (r Ray) IntersectTriangle(a, b, c mgl32.Vec3) (float32, bool) {
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	p := r.Dir.Cross(e2)
	det := e1.Dot(p)
	if math32.Abs(det) < parallelEpsilon {
		return 0, false
	}
	inv := 1 / det
	s := r.Origin.Sub(a)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := r.Dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * inv
	if t < 0 {
		return 0, false
	}
	return t, true
}
