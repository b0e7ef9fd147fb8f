// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package stage is the rendering-support core of a 3D viewer: GPU resource
// lifetime, an orbit camera, and entity picking, driven one frame at a time.
//
// # Quick Start
//
//	st, err := stage.New(nil, stage.WithViewport(800, 600))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
//	cube, _ := st.RegisterMesh(resource.Cube(1, mgl32.Vec4{1, 1, 1, 1}))
//	_ = st.AddPickable(1, cube, geom.Identity())
//
//	q := st.Pick(400, 300)
//	for {
//	    if _, err := st.Frame(ctx); err != nil {
//	        log.Fatal(err)
//	    }
//	    if r, ok := q.Poll(); ok {
//	        fmt.Println(r.Entity, r.Err)
//	        break
//	    }
//	}
//
// # Architecture
//
// The root package is a thin facade over the sub-packages:
//
//   - resource: generational handles, reference counts, deferred uploads
//     and LRU eviction under a byte budget
//   - camera: perspective and orthographic projections, orbit/pan/zoom
//   - picking: asynchronous pick queries resolved from an identifier
//     buffer, or synchronously by ray casting
//   - frame: the per-frame sequence tying the above to a device
//   - backend: the device contract, with backend/soft (CPU) and
//     backend/wgpu (gogpu/wgpu HAL) implementations
//
// Passing a nil device to New opens the best registered one: wgpu when a
// provider is given with WithProvider, the soft device otherwise.
//
// # Errors
//
// Sentinels are defined by the owning package and re-exported here, so
// errors.Is(err, stage.ErrStaleHandle) works for errors from any layer.
// Device loss is fatal: every handle becomes stale and Frame keeps
// returning ErrDeviceLost until a new Stage is created.
//
// # Logging
//
// Nothing is logged by default. SetLogger enables logging for this
// package and every sub-package.
package stage
