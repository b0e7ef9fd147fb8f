// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package stage

import (
	"errors"

	"github.com/gogpu/stage/backend"
	"github.com/gogpu/stage/camera"
	"github.com/gogpu/stage/picking"
	"github.com/gogpu/stage/resource"
)

// Errors returned by stage and its sub-packages.
var (
	// ErrInvalidGeometry reports malformed vertex or index data.
	ErrInvalidGeometry = resource.ErrInvalidGeometry
	// ErrInvalidImageData reports pixel data that does not match its
	// format and dimensions.
	ErrInvalidImageData = resource.ErrInvalidImageData
	// ErrStaleHandle reports a handle whose slot was freed or recycled.
	ErrStaleHandle = resource.ErrStaleHandle
	// ErrOutOfBudget reports that eviction could not free enough memory.
	ErrOutOfBudget = resource.ErrOutOfBudget
	// ErrNotResident reports a live resource that has no device copy yet.
	ErrNotResident = resource.ErrNotResident
	// ErrRefcountUnderflow reports a Release without a matching Acquire.
	ErrRefcountUnderflow = resource.ErrRefcountUnderflow

	// ErrPickMiss is the result of a pick with no entity under the cursor.
	// It is a valid answer, not a failure.
	ErrPickMiss = picking.ErrPickMiss
	// ErrTimeout is the result of a pick whose readback took too long.
	ErrTimeout = picking.ErrTimeout
	// ErrCancelled is the result of a cancelled pick.
	ErrCancelled = picking.ErrCancelled
	// ErrDuplicateEntity reports an entity ID that is already in use.
	ErrDuplicateEntity = picking.ErrDuplicateEntity
	// ErrUnknownEntity reports an entity ID that was never added.
	ErrUnknownEntity = picking.ErrUnknownEntity

	// ErrInvalidProjection reports projection parameters that do not
	// describe a usable view volume.
	ErrInvalidProjection = camera.ErrInvalidProjection

	// ErrDeviceLost is fatal to the session.
	ErrDeviceLost = backend.ErrDeviceLost

	// ErrClosed is returned after Close.
	ErrClosed = resource.ErrClosed

	// ErrInvalidConfig reports a configuration that failed validation.
	ErrInvalidConfig = errors.New("stage: invalid config")
)
