// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import "fmt"

// Stats contains registry usage statistics.
type Stats struct {
	// BudgetBytes is the resident byte budget.
	BudgetBytes uint64

	// ResidentBytes is the device memory currently held, including
	// allocations retired but not yet freed.
	ResidentBytes uint64

	// Meshes and Textures count live resources.
	Meshes   int
	Textures int

	// Evictions counts resources destroyed under budget pressure.
	Evictions uint64

	// Destroyed counts resources freed after their last release.
	Destroyed uint64

	// Uploads counts successful resource uploads.
	Uploads uint64

	// UploadedBytes is the total bytes written to the device.
	UploadedBytes uint64

	// PendingFrees counts retired allocations waiting for the GPU.
	PendingFrees int
}

// Utilization returns ResidentBytes / BudgetBytes.
func (s Stats) Utilization() float64 {
	if s.BudgetBytes == 0 {
		return 0
	}
	return float64(s.ResidentBytes) / float64(s.BudgetBytes)
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Resources[%.1f%% used, %d/%d KB, %d meshes, %d textures, %d evictions]",
		s.Utilization()*100,
		s.ResidentBytes/1024,
		s.BudgetBytes/1024,
		s.Meshes,
		s.Textures,
		s.Evictions)
}

// Stats returns current statistics.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		BudgetBytes:   r.budget,
		ResidentBytes: r.resident,
		Meshes:        r.meshes.live(),
		Textures:      r.textures.live(),
		Evictions:     r.evictions,
		Destroyed:     r.destroyed,
		Uploads:       r.uploads,
		UploadedBytes: r.uploaded,
		PendingFrees:  len(r.retired),
	}
}
