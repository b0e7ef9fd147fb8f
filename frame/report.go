// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/stage/backend"
	"github.com/gogpu/stage/picking"
	"github.com/gogpu/stage/resource"
)

// Diagnostic reports an entity left out of a frame.
type Diagnostic struct {
	Entity picking.EntityID
	Handle resource.AnyHandle
	Err    error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("entity %d: %v: %v", d.Entity, d.Handle, d.Err)
}

// Report describes one frame.
type Report struct {
	Frame      uint64
	Submission backend.SubmissionIndex
	Completed  backend.SubmissionIndex

	// Draws is the length of the submitted draw list.
	Draws int

	// PickRequests is the number of pixels read back by this frame.
	PickRequests int

	// Settled counts pick queries resolved while servicing this frame.
	Settled int

	// UploadErrors holds the per-resource failures of the flush, each an
	// *resource.UploadError.
	UploadErrors []error

	Diagnostics []Diagnostic
	Resources   resource.Stats
	Elapsed     time.Duration
}

// OK reports whether every upload succeeded and every entity was drawn.
func (r *Report) OK() bool {
	return len(r.UploadErrors) == 0 && len(r.Diagnostics) == 0
}

// LogValue implements slog.LogValuer.
func (r *Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("frame", r.Frame),
		slog.Uint64("submission", uint64(r.Submission)),
		slog.Uint64("completed", uint64(r.Completed)),
		slog.Int("draws", r.Draws),
		slog.Int("picks", r.PickRequests),
		slog.Int("settled", r.Settled),
		slog.Int("upload_errors", len(r.UploadErrors)),
		slog.Int("skipped", len(r.Diagnostics)),
		slog.Uint64("resident", r.Resources.ResidentBytes),
		slog.Duration("elapsed", r.Elapsed),
	)
}
