// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements backend.Device on a gogpu/wgpu HAL device.
//
// The device does not create a GPU context. It borrows the host's through
// a provider exposing HalDevice() any and HalQueue() any, the same
// contract gogpu applications implement.
//
// Each submitted frame records:
//
//   - a scene pass drawing every mesh with vertex colors into an offscreen
//     RGBA8 target, depth tested against a Depth24PlusStencil8 buffer;
//   - when picks are requested, an identifier pass drawing pickable meshes
//     with their 32-bit pick id packed little-endian into an RGBA8 target;
//   - one 1x1 texture-to-buffer copy per requested pixel into a staging
//     buffer, one 256-byte row per sample.
//
// Submissions signal one fence with increasing values. Completed polls it
// with a zero timeout, so the frame loop never waits on the GPU; ReadPicks
// maps the staging buffer once the fence has passed.
//
// Projection matrices arrive in OpenGL clip space and are remapped to the
// WebGPU [0, 1] depth range before upload.
//
// Importing the package registers it under backend.NameWGPU.
package wgpu
