// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"errors"
	"fmt"
)

// Registry errors.
var (
	// ErrInvalidGeometry is returned for mesh data that cannot be drawn as a
	// triangle list.
	ErrInvalidGeometry = errors.New("resource: invalid geometry")

	// ErrInvalidImageData is returned when pixel data does not match the
	// declared format and dimensions.
	ErrInvalidImageData = errors.New("resource: invalid image data")

	// ErrStaleHandle is returned for a handle whose generation no longer
	// matches its slot.
	ErrStaleHandle = errors.New("resource: stale handle")

	// ErrOutOfBudget is returned when an upload cannot fit in the byte
	// budget even after evicting every evictable resource.
	ErrOutOfBudget = errors.New("resource: out of budget")

	// ErrNotResident is returned when a live resource has no GPU copy yet.
	ErrNotResident = errors.New("resource: not resident")

	// ErrRefcountUnderflow is returned by Release on a resource that holds
	// no references.
	ErrRefcountUnderflow = errors.New("resource: release without acquire")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("resource: registry closed")
)

// UploadError reports a resource that FlushUploads could not upload. The
// resource stays dirty and is retried on the next flush.
type UploadError struct {
	Handle AnyHandle
	Label  string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("resource: upload %v (%s): %v", e.Handle, e.Label, e.Err)
	}
	return fmt.Sprintf("resource: upload %v: %v", e.Handle, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
