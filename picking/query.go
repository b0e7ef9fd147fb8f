// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package picking

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// QueryState is the lifecycle stage of a Query.
type QueryState uint8

const (
	// QueryPending is queued for the next frame's pick pass.
	QueryPending QueryState = iota
	// QueryIssued has been submitted and awaits readback.
	QueryIssued
	// QueryResolved has a result.
	QueryResolved
	// QueryCancelled was cancelled before it resolved.
	QueryCancelled
)

// String returns the state name.
func (s QueryState) String() string {
	switch s {
	case QueryPending:
		return "pending"
	case QueryIssued:
		return "issued"
	case QueryResolved:
		return "resolved"
	case QueryCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("QueryState(%d)", s)
	}
}

// Result is the outcome of a pick.
type Result struct {
	// Entity is the picked entity when Err is nil.
	Entity EntityID

	// PickID is the id read back or intersected; zero on a miss.
	PickID PickID

	// Distance is the ray parameter of the hit for analytic picks.
	Distance float32

	// Err is nil for a hit, ErrPickMiss for a miss, or the failure.
	Err error
}

// Hit reports whether the pick found an entity.
func (r Result) Hit() bool { return r.Err == nil }

// Query is an outstanding pick. It settles exactly once.
type Query struct {
	X, Y float32

	created      time.Time
	createdFrame uint64

	mu        sync.Mutex
	state     QueryState
	result    Result
	done      chan struct{}
	callbacks []func(Result)
}

func newQuery(x, y float32, now time.Time, frame uint64) *Query {
	return &Query{
		X:            x,
		Y:            y,
		created:      now,
		createdFrame: frame,
		done:         make(chan struct{}),
	}
}

// State returns the query's lifecycle stage.
func (q *Query) State() QueryState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Poll returns the result and true once the query has settled.
func (q *Query) Poll() (Result, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == QueryResolved || q.state == QueryCancelled {
		return q.result, true
	}
	return Result{}, false
}

// Done is closed when the query settles.
func (q *Query) Done() <-chan struct{} {
	return q.done
}

// OnResolve registers fn to run when the query resolves. Callbacks run on
// the goroutine that resolves the query, which for identifier-buffer
// picks is the frame goroutine. If the query has already resolved fn runs
// immediately. Cancelled queries never run callbacks.
func (q *Query) OnResolve(fn func(Result)) {
	q.mu.Lock()
	switch q.state {
	case QueryResolved:
		r := q.result
		q.mu.Unlock()
		fn(r)
		return
	case QueryCancelled:
		q.mu.Unlock()
		return
	}
	q.callbacks = append(q.callbacks, fn)
	q.mu.Unlock()
}

// Cancel abandons the query. A later readback for it is discarded. It
// reports whether the query was still outstanding.
func (q *Query) Cancel() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == QueryResolved || q.state == QueryCancelled {
		return false
	}
	q.state = QueryCancelled
	q.result = Result{Err: ErrCancelled}
	q.callbacks = nil
	close(q.done)
	return true
}

// Wait blocks until the query settles or ctx is done. It must not be
// called from the frame goroutine, which is what settles queries.
func (q *Query) Wait(ctx context.Context) (Result, error) {
	select {
	case <-q.done:
		r, _ := q.Poll()
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (q *Query) markIssued() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != QueryPending {
		return false
	}
	q.state = QueryIssued
	return true
}

// open reports whether the query has neither resolved nor been cancelled.
func (q *Query) open() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state == QueryPending || q.state == QueryIssued
}

// settle records r and runs callbacks. It is a no-op on a settled query.
func (q *Query) settle(r Result) bool {
	q.mu.Lock()
	if q.state == QueryResolved || q.state == QueryCancelled {
		q.mu.Unlock()
		return false
	}
	q.state = QueryResolved
	q.result = r
	cbs := q.callbacks
	q.callbacks = nil
	close(q.done)
	q.mu.Unlock()

	for _, fn := range cbs {
		fn(r)
	}
	return true
}

// expired reports whether the query has outlived its timeout.
func (q *Query) expired(frame uint64, now time.Time, maxFrames uint64, maxAge time.Duration) bool {
	if maxFrames > 0 && frame > q.createdFrame && frame-q.createdFrame > maxFrames {
		return true
	}
	return maxAge > 0 && now.Sub(q.created) > maxAge
}
