// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geom

import "github.com/go-gl/mathgl/mgl32"

// Transform places an entity in the world. The composed matrix applies
// scale first, then rotation, then translation.
type Transform struct {
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
	Scale       mgl32.Vec3
}

// Identity returns the transform that leaves points unchanged.
func Identity() Transform {
	return Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Translation returns an identity transform moved to (x, y, z).
func Translation(x, y, z float32) Transform {
	t := Identity()
	t.Translation = mgl32.Vec3{x, y, z}
	return t
}

// Translate returns t moved by d in world space.
func (t Transform) Translate(d mgl32.Vec3) Transform {
	t.Translation = t.Translation.Add(d)
	return t
}

// Rotate returns t with q applied after its current rotation.
func (t Transform) Rotate(q mgl32.Quat) Transform {
	t.Rotation = q.Mul(t.rotation()).Normalize()
	return t
}

// Scaled returns t with its scale multiplied component-wise by s.
func (t Transform) Scaled(s mgl32.Vec3) Transform {
	t.Scale = mgl32.Vec3{t.Scale[0] * s[0], t.Scale[1] * s[1], t.Scale[2] * s[2]}
	return t
}

// Matrix returns translation * rotation * scale.
func (t Transform) Matrix() mgl32.Mat4 {
	s := t.Scale
	if s == (mgl32.Vec3{}) {
		s = mgl32.Vec3{1, 1, 1}
	}
	return mgl32.Translate3D(t.Translation[0], t.Translation[1], t.Translation[2]).
		Mul4(t.rotation().Mat4()).
		Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
}

// Inverse returns the inverse of Matrix. A transform with a zero scale
// component has no inverse; the zero matrix is returned and ok is false.
func (t Transform) Inverse() (m mgl32.Mat4, ok bool) {
	m = t.Matrix()
	if m.Det() == 0 {
		return mgl32.Mat4{}, false
	}
	return m.Inv(), true
}

// rotation treats the zero quaternion as identity so a zero Transform is
// usable.
func (t Transform) rotation() mgl32.Quat {
	if t.Rotation.W == 0 && t.Rotation.V == (mgl32.Vec3{}) {
		return mgl32.QuatIdent()
	}
	return t.Rotation
}
