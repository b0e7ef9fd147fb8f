// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package picking maps screen positions to scene entities.
//
// Two strategies are available. The identifier-buffer strategy renders
// every pickable entity's pick-id into an offscreen target during the
// frame and reads back the pixel under each pick request once the GPU has
// finished; its queries resolve a frame or more after Pick is called. The
// analytic strategy casts a ray through the camera and intersects it with
// entity bounds, optionally refined against triangles, and resolves
// immediately.
//
// Either way Pick returns a *Query. A query is settled exactly once, with
// a hit, ErrPickMiss, ErrTimeout, ErrCancelled or a device error, and can
// be polled, waited on or observed through a callback.
//
// Pick-id 0 is the background. Live entities hold distinct non-zero ids;
// an id returns to the pool when its entity is removed and the lowest free
// id is handed out first.
package picking
