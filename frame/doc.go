// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package frame drives one tick of the renderer.
//
// A Coordinator ties the device, the resource registry, the camera and the
// picking system together. Each call to RunFrame:
//
//  1. asks the device which submissions have completed,
//  2. flushes pending uploads and frees resources the GPU is done with,
//  3. snapshots the camera,
//  4. builds the draw list, ordered by (Order, registration),
//  5. attaches queued identifier-buffer pick requests,
//  6. submits the frame and records resource use,
//  7. resolves pick queries whose readback has completed.
//
// Entities whose handles are stale or not resident are left out of the
// draw list and reported in Report.Diagnostics; they never fail the frame.
// Device loss is fatal: outstanding picks fail, every handle becomes stale
// and later frames return backend.ErrDeviceLost.
package frame
