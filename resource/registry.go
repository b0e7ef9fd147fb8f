// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/gogpu/stage/backend"
)

// Default budget limits.
const (
	// DefaultBudgetMB is the default resident byte budget (256 MB).
	DefaultBudgetMB = 256
)

// Config holds registry configuration.
type Config struct {
	// BudgetBytes caps the bytes resident on the device. Defaults to
	// DefaultBudgetMB when zero.
	BudgetBytes uint64
}

// entry is one registered resource.
type entry struct {
	kind  Kind
	index uint32
	gen   uint32
	label string
	seq   uint64

	refs      int
	scheduled bool // released to zero, destroy once the GPU is done
	dirty     bool
	resident  bool
	sizeBytes uint64
	lastUse   backend.SubmissionIndex
	element   *list.Element // in Registry.recency while the slot is live

	mesh *meshState
	tex  *textureState
}

func (e *entry) handle() AnyHandle {
	if e.kind == KindMesh {
		return MeshHandle{index: e.index, gen: e.gen}
	}
	return TextureHandle{index: e.index, gen: e.gen}
}

// retired is a GPU allocation that outlived its resource, waiting for the
// last submission that may read it.
type retired struct {
	buffers []backend.BufferID
	texture backend.TextureID
	bytes   uint64
	after   backend.SubmissionIndex
}

// Registry owns every mesh and texture.
type Registry struct {
	mu  sync.Mutex
	dev backend.ResourceDevice

	budget   uint64
	resident uint64

	meshes   pool
	textures pool
	recency  *list.List // front = most recently used
	retired  []retired

	seq       uint64
	completed backend.SubmissionIndex
	closed    bool

	evictions uint64
	destroyed uint64
	uploads   uint64
	uploaded  uint64
}

// NewRegistry creates a registry that uploads through dev.
func NewRegistry(dev backend.ResourceDevice, cfg Config) *Registry {
	budget := cfg.BudgetBytes
	if budget == 0 {
		budget = DefaultBudgetMB * 1024 * 1024
	}
	return &Registry{
		dev:     dev,
		budget:  budget,
		recency: list.New(),
	}
}

// RegisterMesh validates data, computes its bounds and stores a CPU copy.
// The mesh is uploaded by the next FlushUploads.
func (r *Registry) RegisterMesh(data MeshData) (MeshHandle, error) {
	if err := validateMesh(data.Vertices, data.Indices); err != nil {
		return MeshHandle{}, err
	}
	m := newMeshState(data.Vertices, data.Indices)
	vsize, isize := m.gpuSizes()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return MeshHandle{}, ErrClosed
	}
	if vsize+isize > r.budget {
		return MeshHandle{}, fmt.Errorf("%w: mesh needs %d bytes, budget is %d", ErrOutOfBudget, vsize+isize, r.budget)
	}
	e := &entry{kind: KindMesh, label: data.Label, mesh: m}
	r.insert(&r.meshes, e)
	slogger().Debug("resource: mesh registered",
		"handle", e.handle().String(), "vertices", len(m.vertices), "indices", len(m.indices))
	return MeshHandle{index: e.index, gen: e.gen}, nil
}

// RegisterTexture validates data and stores a CPU copy, generating mip
// levels when requested. The texture is uploaded by the next FlushUploads.
func (r *Registry) RegisterTexture(data TextureData) (TextureHandle, error) {
	if err := validateTexture(data); err != nil {
		return TextureHandle{}, err
	}
	t := newTextureState(data)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return TextureHandle{}, ErrClosed
	}
	if t.sizeBytes() > r.budget {
		return TextureHandle{}, fmt.Errorf("%w: texture needs %d bytes, budget is %d", ErrOutOfBudget, t.sizeBytes(), r.budget)
	}
	e := &entry{kind: KindTexture, label: data.Label, tex: t}
	r.insert(&r.textures, e)
	slogger().Debug("resource: texture registered",
		"handle", e.handle().String(), "width", t.width, "height", t.height, "mips", t.levels)
	return TextureHandle{index: e.index, gen: e.gen}, nil
}

// UpdateMesh applies patch to the CPU copy and marks the mesh dirty.
func (r *Registry) UpdateMesh(h MeshHandle, patch MeshPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(h)
	if err != nil {
		return err
	}
	vs, idx, err := e.mesh.patched(patch)
	if err != nil {
		return err
	}
	e.mesh.set(vs, idx)
	r.markDirty(e)
	return nil
}

// UpdateTexture applies patch to the base level, regenerates the mip chain
// and marks the texture dirty.
func (r *Registry) UpdateTexture(h TextureHandle, patch TexturePatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(h)
	if err != nil {
		return err
	}
	if err := e.tex.applyPatch(patch); err != nil {
		return err
	}
	r.markDirty(e)
	return nil
}

// Acquire adds a reference, pinning the resource against eviction and
// cancelling a scheduled destruction.
func (r *Registry) Acquire(h AnyHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(h)
	if err != nil {
		return err
	}
	e.refs++
	e.scheduled = false
	return nil
}

// Release drops a reference. Dropping the last one schedules the resource
// for destruction once the GPU has finished with it.
func (r *Registry) Release(h AnyHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(h)
	if err != nil {
		return err
	}
	if e.refs == 0 {
		return fmt.Errorf("%w: %v", ErrRefcountUnderflow, h)
	}
	e.refs--
	if e.refs == 0 {
		e.scheduled = true
		slogger().Debug("resource: scheduled for destruction", "handle", h.String())
	}
	return nil
}

// Valid reports whether h names a live resource.
func (r *Registry) Valid(h AnyHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.lookup(h)
	return err == nil
}

// Mesh returns a snapshot of the mesh's state.
func (r *Registry) Mesh(h MeshHandle) (MeshInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(h)
	if err != nil {
		return MeshInfo{}, err
	}
	return MeshInfo{
		Handle:      h,
		Label:       e.label,
		VertexCount: len(e.mesh.vertices),
		IndexCount:  len(e.mesh.indices),
		Bounds:      e.mesh.bounds,
		Refs:        e.refs,
		Resident:    e.resident,
		Dirty:       e.dirty,
		SizeBytes:   e.sizeBytes,
	}, nil
}

// Texture returns a snapshot of the texture's state.
func (r *Registry) Texture(h TextureHandle) (TextureInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(h)
	if err != nil {
		return TextureInfo{}, err
	}
	t := e.tex
	return TextureInfo{
		Handle:    h,
		Label:     e.label,
		Width:     t.width,
		Height:    t.height,
		Format:    t.format,
		MipLevels: t.levels,
		Sampler:   t.sampler,
		Refs:      e.refs,
		Resident:  e.resident,
		Dirty:     e.dirty,
		SizeBytes: e.sizeBytes,
	}, nil
}

// MeshGeometry returns the CPU positions and indices of a mesh.
func (r *Registry) MeshGeometry(h MeshHandle) (Geometry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(h)
	if err != nil {
		return Geometry{}, err
	}
	return e.mesh.geometry(), nil
}

// ResolveMesh returns the resident GPU binding of a mesh. A mesh updated
// since its last upload resolves to the previous upload.
func (r *Registry) ResolveMesh(h MeshHandle) (backend.MeshBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(h)
	if err != nil {
		return backend.MeshBinding{}, err
	}
	if !e.resident {
		return backend.MeshBinding{}, fmt.Errorf("%w: %v", ErrNotResident, h)
	}
	return e.mesh.binding, nil
}

// ResolveTexture returns the resident GPU binding of a texture.
func (r *Registry) ResolveTexture(h TextureHandle) (backend.TextureBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(h)
	if err != nil {
		return backend.TextureBinding{}, err
	}
	if !e.resident {
		return backend.TextureBinding{}, fmt.Errorf("%w: %v", ErrNotResident, h)
	}
	return e.tex.binding, nil
}

// RecordUse marks handles as read by submission sub. They move to the front
// of the eviction order and are not destroyed before sub completes. Stale
// handles are ignored.
func (r *Registry) RecordUse(sub backend.SubmissionIndex, handles ...AnyHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range handles {
		e, err := r.lookup(h)
		if err != nil {
			continue
		}
		if sub > e.lastUse {
			e.lastUse = sub
		}
		r.touch(e)
	}
}

func (r *Registry) insert(p *pool, e *entry) {
	r.seq++
	e.seq = r.seq
	e.dirty = true
	e.index, e.gen = p.alloc(e)
	e.element = r.recency.PushFront(e)
}

func (r *Registry) markDirty(e *entry) {
	e.dirty = true
	r.touch(e)
}

func (r *Registry) touch(e *entry) {
	if e.element != nil {
		r.recency.MoveToFront(e.element)
	}
}

func (r *Registry) poolOf(k Kind) *pool {
	if k == KindMesh {
		return &r.meshes
	}
	return &r.textures
}

func (r *Registry) lookup(h AnyHandle) (*entry, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if h == nil || h.IsZero() {
		return nil, fmt.Errorf("%w: zero handle", ErrStaleHandle)
	}
	e, ok := r.poolOf(h.Kind()).get(h.Index(), h.Generation())
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrStaleHandle, h)
	}
	return e, nil
}
