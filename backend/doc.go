// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend defines the device contract the stage runtime drives.
//
// A Device owns GPU buffers and textures, accepts one Frame per tick and
// reports, without blocking, which submissions the GPU has finished. Pick
// requests ride along with a frame: the device renders entity pick-ids
// into an identifier target and returns the samples once the submission
// completes.
//
// # Implementations
//
//   - "soft": CPU device in backend/soft, always available, deterministic;
//     used for headless runs and tests.
//   - "wgpu": gogpu/wgpu HAL device in backend/wgpu, built on a host
//     supplied gpucontext.DeviceProvider.
//
// Implementations register a Factory from an init function:
//
//	import _ "github.com/gogpu/stage/backend/soft"
//
//	dev, err := backend.Open("soft", backend.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
// # Submission indices
//
// Submit returns a monotonically increasing SubmissionIndex. Completed
// returns the highest index whose work has finished; every lower index is
// finished too. Resources used by a submission may be destroyed once it
// has completed.
package backend
