// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package picking

import "errors"

// Picking errors.
var (
	// ErrPickMiss means nothing pickable is under the position. It is a
	// valid result, not a failure.
	ErrPickMiss = errors.New("picking: miss")

	// ErrTimeout is returned for a query that did not resolve within the
	// configured frame count or wall time.
	ErrTimeout = errors.New("picking: query timed out")

	// ErrCancelled is returned for a cancelled query.
	ErrCancelled = errors.New("picking: query cancelled")

	// ErrDuplicateEntity is returned by Add for an entity already present.
	ErrDuplicateEntity = errors.New("picking: entity already pickable")

	// ErrUnknownEntity is returned for an entity that is not pickable.
	ErrUnknownEntity = errors.New("picking: unknown entity")

	// ErrNoViewport is returned when a pick is requested before the
	// camera has a viewport size.
	ErrNoViewport = errors.New("picking: viewport not set")

	// ErrIDsExhausted is returned when every 32-bit pick-id is in use.
	ErrIDsExhausted = errors.New("picking: pick-ids exhausted")
)
