// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package camera

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/stage/geom"
)

// Snapshot is an immutable copy of the camera matrices taken at the start
// of a frame.
type Snapshot struct {
	Kind              Kind
	Position          mgl32.Vec3
	View              mgl32.Mat4
	Projection        mgl32.Mat4
	ViewProjection    mgl32.Mat4
	InvViewProjection mgl32.Mat4
	Near, Far         float32
}

// ScreenRay unprojects pixel (x, y) of a width x height viewport.
func (s Snapshot) ScreenRay(x, y float32, width, height int) geom.Ray {
	nx, ny := geom.ScreenToNDC(x, y, width, height)
	return geom.RayFromNDC(s.InvViewProjection, nx, ny)
}
