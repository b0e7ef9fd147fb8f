// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package geom holds the small amount of 3D geometry shared by the camera,
// the resource registry and the picking system: rigid transforms, axis
// aligned bounding boxes, rays and the intersection tests between them.
//
// All math is float32 and built on go-gl/mathgl's mgl32 types. The world is
// right-handed with Y up; matrices are column-major as in mgl32.
//
// Screen coordinates are pixels with the origin at the top-left corner and
// Y growing downward. NDC follows OpenGL: X and Y in [-1, 1] with Y up and
// Z in [-1, 1] from the near to the far plane.
package geom
