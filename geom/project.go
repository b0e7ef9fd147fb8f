// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geom

import "github.com/go-gl/mathgl/mgl32"

// ScreenToNDC converts a pixel position in a width x height viewport to
// normalized device coordinates.
func ScreenToNDC(x, y float32, width, height int) (float32, float32) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	nx := 2*x/float32(width) - 1
	ny := 1 - 2*y/float32(height)
	return nx, ny
}

// NDCToScreen is the inverse of ScreenToNDC.
func NDCToScreen(nx, ny float32, width, height int) (float32, float32) {
	x := (nx + 1) * 0.5 * float32(width)
	y := (1 - ny) * 0.5 * float32(height)
	return x, y
}

// RayFromNDC unprojects (nx, ny) on the near and far planes through
// invViewProj and returns the ray between them. The origin lies on the
// near plane and Dir is unit length.
func RayFromNDC(invViewProj mgl32.Mat4, nx, ny float32) Ray {
	near := unproject(invViewProj, mgl32.Vec4{nx, ny, -1, 1})
	far := unproject(invViewProj, mgl32.Vec4{nx, ny, 1, 1})
	return Ray{Origin: near, Dir: far.Sub(near).Normalize()}
}

// Project maps a world point to NDC through viewProj. ok is false when the
// point is behind the eye.
func Project(viewProj mgl32.Mat4, p mgl32.Vec3) (ndc mgl32.Vec3, ok bool) {
	c := viewProj.Mul4x1(p.Vec4(1))
	if c[3] <= 0 {
		return mgl32.Vec3{}, false
	}
	return mgl32.Vec3{c[0] / c[3], c[1] / c[3], c[2] / c[3]}, true
}

func unproject(inv mgl32.Mat4, v mgl32.Vec4) mgl32.Vec3 {
	p := inv.Mul4x1(v)
	if p[3] == 0 {
		return p.Vec3()
	}
	return p.Vec3().Mul(1 / p[3])
}
