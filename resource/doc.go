// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package resource implements the registry that owns every mesh and
// texture the stage draws.
//
// The registry hands out generational handles. A handle names a slot and
// the generation the slot had when the resource was registered; once the
// resource is destroyed or evicted the slot's generation moves on and the
// handle is stale forever, even after the slot is reused.
//
// Resources are created on the CPU side and uploaded lazily: registration
// and updates only mark the resource dirty, and FlushUploads, called once
// per frame, moves all dirty data to the device in one pass.
//
// # Lifetime
//
// A freshly registered resource has a reference count of zero. It is
// resident but evictable: when an upload needs room under the byte budget,
// the least recently used evictable resources go first. Acquire pins a
// resource. When Release drops the count back to zero the resource is
// scheduled for destruction and freed at the first flush after the GPU has
// finished the last frame that used it.
//
// The registry is safe for concurrent use.
package resource
