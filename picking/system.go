// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package picking

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gogpu/stage/backend"
	"github.com/gogpu/stage/camera"
	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/resource"
)

// Default query limits.
const (
	DefaultTimeout       = 2 * time.Second
	DefaultTimeoutFrames = 8
)

// EntityID is the application's opaque entity identifier.
type EntityID uint64

// Entity is a pickable scene entity.
type Entity struct {
	ID        EntityID
	PickID    PickID
	Mesh      resource.MeshHandle
	Transform geom.Transform

	// Order is the draw-order key; lower draws first.
	Order int

	// Seq is the registration sequence, used to break ties.
	Seq uint64
}

// Strategy selects how picks are resolved.
type Strategy uint8

const (
	// StrategyIDBuffer reads entity ids back from an offscreen target.
	StrategyIDBuffer Strategy = iota
	// StrategyAnalytic intersects camera rays with entity bounds.
	StrategyAnalytic
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyIDBuffer:
		return "idbuffer"
	case StrategyAnalytic:
		return "analytic"
	default:
		return fmt.Sprintf("Strategy(%d)", s)
	}
}

// ParseStrategy parses "idbuffer" or "analytic".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "idbuffer", "id-buffer", "id_buffer", "":
		return StrategyIDBuffer, nil
	case "analytic", "ray":
		return StrategyAnalytic, nil
	}
	return 0, fmt.Errorf("picking: unknown strategy %q", s)
}

// MeshSource is the part of the resource registry picking needs.
type MeshSource interface {
	Acquire(h resource.AnyHandle) error
	Release(h resource.AnyHandle) error
	Mesh(h resource.MeshHandle) (resource.MeshInfo, error)
	MeshGeometry(h resource.MeshHandle) (resource.Geometry, error)
}

// View supplies the camera state a pick is resolved against.
type View interface {
	Snapshot() camera.Snapshot
	Viewport() (width, height int)
}

// Config holds picking configuration.
type Config struct {
	Strategy Strategy

	// Timeout bounds the wall time from Pick to resolution.
	Timeout time.Duration

	// TimeoutFrames bounds the frames from Pick to resolution.
	TimeoutFrames uint64

	// RefineTriangles makes analytic picks test triangles after boxes.
	RefineTriangles bool

	// TieEpsilon is the analytic tie distance.
	TieEpsilon float32

	// Workers caps analytic refinement parallelism.
	Workers int

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// batch is the set of queries issued with one frame.
type batch struct {
	frame     uint64
	sub       backend.SubmissionIndex
	submitted bool
	queries   []*Query
	table     map[PickID]EntityID
}

// System tracks pickable entities and outstanding queries.
//
// Entity management and Pick are safe for concurrent use. BeginFrame,
// Submitted, Service and FailAll belong to the frame goroutine.
type System struct {
	mu       sync.Mutex
	cfg      Config
	meshes   MeshSource
	view     View
	ids      *idPool
	entities map[EntityID]*Entity
	seq      uint64

	pending []*Query
	batches []*batch
	frame   uint64
}

// NewSystem creates a picking system over meshes and view.
func NewSystem(meshes MeshSource, view View, cfg Config) *System {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TimeoutFrames == 0 {
		cfg.TimeoutFrames = DefaultTimeoutFrames
	}
	if cfg.TieEpsilon <= 0 {
		cfg.TieEpsilon = DefaultTieEpsilon
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &System{
		cfg:      cfg,
		meshes:   meshes,
		view:     view,
		ids:      newIDPool(),
		entities: make(map[EntityID]*Entity),
	}
}

// Strategy returns the active strategy.
func (s *System) Strategy() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Strategy
}

// SetStrategy switches strategy for later picks. Outstanding queries
// finish under the strategy they were created with.
func (s *System) SetStrategy(st Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Strategy = st
}

// Add makes an entity pickable and takes a reference on its mesh. The
// entity keeps the returned pick-id until it is removed.
func (s *System) Add(id EntityID, mesh resource.MeshHandle, t geom.Transform) (PickID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[id]; ok {
		return 0, fmt.Errorf("%w: %d", ErrDuplicateEntity, id)
	}
	pid, ok := s.ids.take()
	if !ok {
		return 0, ErrIDsExhausted
	}
	if err := s.meshes.Acquire(mesh); err != nil {
		s.ids.put(pid)
		return 0, err
	}
	s.seq++
	s.entities[id] = &Entity{ID: id, PickID: pid, Mesh: mesh, Transform: t, Seq: s.seq}
	slogger().Debug("picking: entity added", "entity", id, "pick_id", pid, "mesh", mesh.String())
	return pid, nil
}

// Remove drops an entity, releasing its mesh and returning its pick-id to
// the pool. Queries already issued still resolve to it.
func (s *System) Remove(id EntityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	delete(s.entities, id)
	s.ids.put(e.PickID)
	if err := s.meshes.Release(e.Mesh); err != nil {
		slogger().Warn("picking: mesh release failed", "entity", id, "err", err)
	}
	return nil
}

// SetTransform moves an entity.
func (s *System) SetTransform(id EntityID, t geom.Transform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	e.Transform = t
	return nil
}

// SetOrder sets an entity's draw-order key.
func (s *System) SetOrder(id EntityID, order int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	e.Order = order
	return nil
}

// SetMesh rebinds an entity to another mesh, moving its reference.
func (s *System) SetMesh(id EntityID, mesh resource.MeshHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	if err := s.meshes.Acquire(mesh); err != nil {
		return err
	}
	old := e.Mesh
	e.Mesh = mesh
	if err := s.meshes.Release(old); err != nil {
		slogger().Warn("picking: mesh release failed", "entity", id, "err", err)
	}
	return nil
}

// Entity returns a copy of a pickable entity.
func (s *System) Entity(id EntityID) (Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// Entities returns copies of all entities in registration order.
func (s *System) Entities() []Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Len returns the number of pickable entities.
func (s *System) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entities)
}

// Pick starts a query for pixel (x, y), origin top-left. Analytic picks
// resolve before Pick returns; identifier-buffer picks join the next
// frame's pick pass.
func (s *System) Pick(x, y float32) *Query {
	s.mu.Lock()
	q := newQuery(x, y, s.cfg.Clock(), s.frame)
	strategy := s.cfg.Strategy
	w, h := s.view.Viewport()
	if w <= 0 || h <= 0 {
		s.mu.Unlock()
		q.settle(Result{Err: ErrNoViewport})
		return q
	}
	if x < 0 || y < 0 || x >= float32(w) || y >= float32(h) {
		s.mu.Unlock()
		q.settle(Result{Err: ErrPickMiss})
		return q
	}
	if strategy == StrategyIDBuffer {
		s.pending = append(s.pending, q)
		s.mu.Unlock()
		return q
	}
	s.mu.Unlock()

	ray := s.view.Snapshot().ScreenRay(x, y, w, h)
	q.settle(s.PickRay(context.Background(), ray))
	return q
}

// PickRay resolves a world-space ray analytically, whatever the strategy.
func (s *System) PickRay(ctx context.Context, ray geom.Ray) Result {
	s.mu.Lock()
	ents := s.sortedLocked()
	a := Analytic{Refine: s.cfg.RefineTriangles, TieEpsilon: s.cfg.TieEpsilon, Workers: s.cfg.Workers}
	s.mu.Unlock()

	cands := make([]Candidate, 0, len(ents))
	for _, e := range ents {
		info, err := s.meshes.Mesh(e.Mesh)
		if err != nil {
			slogger().Debug("picking: skipping entity", "entity", e.ID, "err", err)
			continue
		}
		c := Candidate{Entity: e, Bounds: info.Bounds}
		if a.Refine {
			g, err := s.meshes.MeshGeometry(e.Mesh)
			if err == nil {
				c.Geometry = &g
			}
		}
		cands = append(cands, c)
	}
	hit, ok, err := a.Pick(ctx, ray, cands)
	switch {
	case err != nil:
		return Result{Err: err}
	case !ok:
		return Result{Err: ErrPickMiss}
	}
	return Result{Entity: hit.Entity.ID, PickID: hit.Entity.PickID, Distance: hit.Distance}
}

// BeginFrame moves queued identifier-buffer queries into a batch for
// frame and returns their pixel requests, in query order. It returns nil
// when nothing is queued.
func (s *System) BeginFrame(frame uint64) []backend.PickRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
	if len(s.pending) == 0 {
		return nil
	}
	b := &batch{frame: frame}
	for _, q := range s.pending {
		if q.markIssued() {
			b.queries = append(b.queries, q)
		}
	}
	s.pending = nil
	if len(b.queries) == 0 {
		return nil
	}
	b.table = make(map[PickID]EntityID, len(s.entities))
	for id, e := range s.entities {
		b.table[e.PickID] = id
	}
	s.batches = append(s.batches, b)

	reqs := make([]backend.PickRequest, len(b.queries))
	for i, q := range b.queries {
		reqs[i] = backend.PickRequest{X: int(math.Floor(float64(q.X))), Y: int(math.Floor(float64(q.Y)))}
	}
	return reqs
}

// Submitted records the submission that carries frame's pick batch.
func (s *System) Submitted(frame uint64, sub backend.SubmissionIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.batches {
		if b.frame == frame && !b.submitted {
			b.sub = sub
			b.submitted = true
		}
	}
}

// SubmitFailed settles frame's batch with err.
func (s *System) SubmitFailed(frame uint64, err error) {
	s.mu.Lock()
	var failed []*Query
	kept := s.batches[:0]
	for _, b := range s.batches {
		if b.frame == frame && !b.submitted {
			failed = append(failed, b.queries...)
			continue
		}
		kept = append(kept, b)
	}
	s.batches = kept
	s.mu.Unlock()
	for _, q := range failed {
		q.settle(Result{Err: err})
	}
}

// ReadFunc reads the pick samples of a completed submission.
type ReadFunc func(backend.SubmissionIndex) ([]backend.PickSample, error)

// Service resolves batches whose submission is at or below completed,
// then times out queries that have waited too long. It returns the number
// of queries settled. A read error settles the batch with that error and
// is returned.
func (s *System) Service(completed backend.SubmissionIndex, read ReadFunc) (int, error) {
	s.mu.Lock()
	var ready []*batch
	kept := s.batches[:0]
	for _, b := range s.batches {
		if b.submitted && b.sub <= completed {
			ready = append(ready, b)
			continue
		}
		kept = append(kept, b)
	}
	s.batches = kept
	frame := s.frame
	s.mu.Unlock()

	settled := 0
	var firstErr error
	for _, b := range ready {
		samples, err := read(b.sub)
		if err != nil {
			slogger().Warn("picking: readback failed", "submission", b.sub, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			for _, q := range b.queries {
				if q.settle(Result{Err: err}) {
					settled++
				}
			}
			continue
		}
		for i, q := range b.queries {
			if !q.open() {
				continue
			}
			var id PickID
			if i < len(samples) {
				id = samples[i].ID
			}
			if q.settle(resolveID(id, b.table)) {
				settled++
			}
		}
	}

	settled += s.expire(frame)
	return settled, firstErr
}

func resolveID(id PickID, table map[PickID]EntityID) Result {
	if id == 0 {
		return Result{Err: ErrPickMiss}
	}
	ent, ok := table[id]
	if !ok {
		return Result{PickID: id, Err: ErrPickMiss}
	}
	return Result{Entity: ent, PickID: id}
}

// expire settles overdue pending and issued queries with ErrTimeout.
func (s *System) expire(frame uint64) int {
	now := s.cfg.Clock()
	var late []*Query
	over := func(q *Query) bool {
		return q.expired(frame, now, s.cfg.TimeoutFrames, s.cfg.Timeout)
	}

	s.mu.Lock()
	keptPending := s.pending[:0]
	for _, q := range s.pending {
		if over(q) {
			late = append(late, q)
			continue
		}
		keptPending = append(keptPending, q)
	}
	s.pending = keptPending

	// Expired queries stay in their batch so later slots keep their
	// sample index. A submitted batch is kept until it is read so the
	// device can release its readback.
	keptBatches := s.batches[:0]
	for _, b := range s.batches {
		live := 0
		for _, q := range b.queries {
			if !q.open() {
				continue
			}
			if over(q) {
				late = append(late, q)
				continue
			}
			live++
		}
		if b.submitted || live > 0 {
			keptBatches = append(keptBatches, b)
		}
	}
	s.batches = keptBatches
	s.mu.Unlock()

	n := 0
	for _, q := range late {
		if q.settle(Result{Err: ErrTimeout}) {
			slogger().Warn("picking: query timed out", "x", q.X, "y", q.Y)
			n++
		}
	}
	return n
}

// Outstanding returns the number of unsettled identifier-buffer queries.
func (s *System) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, q := range s.pending {
		if q.open() {
			n++
		}
	}
	for _, b := range s.batches {
		for _, q := range b.queries {
			if q.open() {
				n++
			}
		}
	}
	return n
}

// FailAll settles every outstanding query with err.
func (s *System) FailAll(err error) {
	s.mu.Lock()
	all := s.pending
	for _, b := range s.batches {
		all = append(all, b.queries...)
	}
	s.pending = nil
	s.batches = nil
	s.mu.Unlock()
	for _, q := range all {
		q.settle(Result{Err: err})
	}
}

func (s *System) sortedLocked() []Entity {
	out := make([]Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
