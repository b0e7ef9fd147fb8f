// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/stage/backend"
)

// FlushUploads runs the once-per-frame upload pass. completed is the
// highest submission the device has finished.
//
// It first frees scheduled resources and retired allocations the GPU is
// done with, then uploads every dirty resource in registration order.
// A failed upload leaves its resource dirty and is reported as an
// *UploadError in the joined result; the other uploads proceed.
func (r *Registry) FlushUploads(completed backend.SubmissionIndex) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if completed > r.completed {
		r.completed = completed
	}
	r.collect()

	var dirty []*entry
	collectDirty := func(e *entry) {
		if e.dirty {
			dirty = append(dirty, e)
		}
	}
	r.meshes.each(collectDirty)
	r.textures.each(collectDirty)
	sort.Slice(dirty, func(i, j int) bool { return dirty[i].seq < dirty[j].seq })

	var errs []error
	for _, e := range dirty {
		var err error
		if e.kind == KindMesh {
			err = r.uploadMesh(e)
		} else {
			err = r.uploadTexture(e)
		}
		if err != nil {
			slogger().Warn("resource: upload failed", "handle", e.handle().String(), "err", err)
			errs = append(errs, &UploadError{Handle: e.handle(), Label: e.label, Err: err})
			if errors.Is(err, backend.ErrDeviceLost) {
				break
			}
			continue
		}
		e.dirty = false
		r.uploads++
	}
	if len(dirty) > 0 {
		slogger().Debug("resource: flush", "dirty", len(dirty), "failed", len(errs),
			"resident", r.resident, "budget", r.budget)
	}
	return errors.Join(errs...)
}

func (r *Registry) uploadMesh(e *entry) error {
	m := e.mesh
	vsize, isize := m.gpuSizes()
	format := indexFormatFor(len(m.vertices))

	if e.resident && vsize <= m.vbufCap && isize <= m.ibufCap && (isize == 0) == (m.binding.IndexBuffer == 0) {
		if err := r.writeMesh(m.binding.VertexBuffer, m.binding.IndexBuffer, m, format); err != nil {
			return err
		}
		m.binding.VertexCount = uint32(len(m.vertices))
		m.binding.IndexCount = uint32(len(m.indices))
		m.binding.IndexFormat = format
		r.uploaded += vsize + isize
		return nil
	}

	if err := r.ensureRoom(vsize+isize, e); err != nil {
		return err
	}
	vbuf, err := r.dev.CreateBuffer(backend.BufferDesc{Label: e.label, Size: vsize, Kind: backend.BufferVertex})
	if err != nil {
		return fmt.Errorf("create vertex buffer: %w", err)
	}
	var ibuf backend.BufferID
	if isize > 0 {
		ibuf, err = r.dev.CreateBuffer(backend.BufferDesc{Label: e.label, Size: isize, Kind: backend.BufferIndex})
		if err != nil {
			r.dev.DestroyBuffer(vbuf)
			return fmt.Errorf("create index buffer: %w", err)
		}
	}
	if err := r.writeMesh(vbuf, ibuf, m, format); err != nil {
		r.dev.DestroyBuffer(vbuf)
		if ibuf != 0 {
			r.dev.DestroyBuffer(ibuf)
		}
		return err
	}

	if e.resident {
		// The previous buffers may still be read by in-flight frames.
		r.retire(e)
	}
	m.binding = backend.MeshBinding{
		VertexBuffer: vbuf,
		VertexCount:  uint32(len(m.vertices)),
		Stride:       VertexStride,
		IndexBuffer:  ibuf,
		IndexCount:   uint32(len(m.indices)),
		IndexFormat:  format,
	}
	m.vbufCap, m.ibufCap = vsize, isize
	e.sizeBytes = vsize + isize
	e.resident = true
	r.resident += e.sizeBytes
	r.uploaded += e.sizeBytes
	return nil
}

func (r *Registry) writeMesh(vbuf, ibuf backend.BufferID, m *meshState, format gputypes.IndexFormat) error {
	if err := r.dev.WriteBuffer(vbuf, 0, encodeVertices(m.vertices)); err != nil {
		return fmt.Errorf("write vertex buffer: %w", err)
	}
	if ibuf != 0 {
		if err := r.dev.WriteBuffer(ibuf, 0, encodeIndices(m.indices, format)); err != nil {
			return fmt.Errorf("write index buffer: %w", err)
		}
	}
	return nil
}

func (r *Registry) uploadTexture(e *entry) error {
	t := e.tex
	if !e.resident {
		size := t.sizeBytes()
		if err := r.ensureRoom(size, e); err != nil {
			return err
		}
		id, err := r.dev.CreateTexture(backend.TextureDesc{
			Label:     e.label,
			Width:     uint32(t.width),
			Height:    uint32(t.height),
			MipLevels: uint32(t.levels),
			Format:    t.format.ToWGPUFormat(),
		})
		if err != nil {
			return fmt.Errorf("create texture: %w", err)
		}
		t.binding = backend.TextureBinding{
			Texture:   id,
			Width:     uint32(t.width),
			Height:    uint32(t.height),
			MipLevels: uint32(t.levels),
			Format:    t.format.ToWGPUFormat(),
		}
		e.sizeBytes = size
		e.resident = true
		r.resident += size
	}
	for level, pix := range t.mips {
		if err := r.dev.WriteTexture(t.binding.Texture, uint32(level), pix); err != nil {
			return fmt.Errorf("write texture mip %d: %w", level, err)
		}
	}
	r.uploaded += e.sizeBytes
	return nil
}

// ensureRoom makes need bytes available, evicting least recently used
// evictable resources. Nothing is evicted unless the eviction makes enough
// room.
func (r *Registry) ensureRoom(need uint64, self *entry) error {
	if need > r.budget {
		return fmt.Errorf("%w: need %d bytes, budget is %d", ErrOutOfBudget, need, r.budget)
	}
	avail := r.budget - min(r.resident, r.budget)
	if need <= avail {
		return nil
	}
	var victims []*entry
	for el := r.recency.Back(); el != nil && avail < need; el = el.Prev() {
		e := el.Value.(*entry)
		if e == self || !r.evictable(e) {
			continue
		}
		victims = append(victims, e)
		avail += e.sizeBytes
	}
	if avail < need {
		return fmt.Errorf("%w: need %d bytes, %d available after eviction", ErrOutOfBudget, need, avail)
	}
	for _, v := range victims {
		slogger().Warn("resource: evicting under budget pressure",
			"handle", v.handle().String(), "bytes", v.sizeBytes)
		r.destroy(v)
		r.evictions++
	}
	return nil
}

// evictable reports whether e may be destroyed now: unreferenced, holding
// GPU memory and not read by an unfinished submission.
func (r *Registry) evictable(e *entry) bool {
	return e.refs == 0 && e.resident && e.lastUse <= r.completed
}

// collect frees retired allocations and scheduled resources whose last
// use has completed.
func (r *Registry) collect() {
	kept := r.retired[:0]
	for _, old := range r.retired {
		if old.after > r.completed {
			kept = append(kept, old)
			continue
		}
		r.freeRetired(old)
	}
	r.retired = kept

	var done []*entry
	pick := func(e *entry) {
		if e.scheduled && e.refs == 0 && e.lastUse <= r.completed {
			done = append(done, e)
		}
	}
	r.meshes.each(pick)
	r.textures.each(pick)
	for _, e := range done {
		r.destroy(e)
		r.destroyed++
	}
}

// destroy releases e's GPU memory and slot. Its handles become stale.
func (r *Registry) destroy(e *entry) {
	if e.resident {
		r.releaseGPU(e)
	}
	if e.element != nil {
		r.recency.Remove(e.element)
		e.element = nil
	}
	r.poolOf(e.kind).release(e.index)
}

func (r *Registry) releaseGPU(e *entry) {
	switch e.kind {
	case KindMesh:
		r.dev.DestroyBuffer(e.mesh.binding.VertexBuffer)
		if e.mesh.binding.IndexBuffer != 0 {
			r.dev.DestroyBuffer(e.mesh.binding.IndexBuffer)
		}
		e.mesh.binding = backend.MeshBinding{}
		e.mesh.vbufCap, e.mesh.ibufCap = 0, 0
	case KindTexture:
		r.dev.DestroyTexture(e.tex.binding.Texture)
		e.tex.binding = backend.TextureBinding{}
	}
	r.resident -= min(e.sizeBytes, r.resident)
	e.sizeBytes = 0
	e.resident = false
}

// retire moves e's current allocation to the retired list. Its bytes stay
// counted as resident until it is freed.
func (r *Registry) retire(e *entry) {
	old := retired{bytes: e.sizeBytes, after: e.lastUse}
	if e.kind == KindMesh {
		old.buffers = []backend.BufferID{e.mesh.binding.VertexBuffer}
		if e.mesh.binding.IndexBuffer != 0 {
			old.buffers = append(old.buffers, e.mesh.binding.IndexBuffer)
		}
	} else {
		old.texture = e.tex.binding.Texture
	}
	if old.after <= r.completed {
		r.freeRetired(old)
	} else {
		r.retired = append(r.retired, old)
	}
	e.sizeBytes = 0
	e.resident = false
}

func (r *Registry) freeRetired(old retired) {
	for _, b := range old.buffers {
		r.dev.DestroyBuffer(b)
	}
	if old.texture != 0 {
		r.dev.DestroyTexture(old.texture)
	}
	r.resident -= min(old.bytes, r.resident)
}

// SetBudget changes the byte budget. Lowering it below the resident size
// evicts evictable resources, oldest first, until the registry fits or no
// candidate is left.
func (r *Registry) SetBudget(bytes uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bytes == 0 {
		bytes = DefaultBudgetMB * 1024 * 1024
	}
	r.budget = bytes
	slogger().Info("resource: budget changed", "bytes", bytes)
	for r.resident > r.budget {
		var victim *entry
		for el := r.recency.Back(); el != nil; el = el.Prev() {
			if e := el.Value.(*entry); r.evictable(e) {
				victim = e
				break
			}
		}
		if victim == nil {
			return
		}
		r.destroy(victim)
		r.evictions++
	}
}

// Invalidate forgets every resource without touching the device. It is the
// device-lost path: all handles become stale and resident bytes drop to
// zero.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
	slogger().Warn("resource: registry invalidated")
}

// Close destroys every resource and retired allocation. Later calls fail
// with ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for _, old := range r.retired {
		r.freeRetired(old)
	}
	release := func(e *entry) {
		if e.resident {
			r.releaseGPU(e)
		}
	}
	r.meshes.each(release)
	r.textures.each(release)
	r.reset()
	r.closed = true
}

func (r *Registry) reset() {
	for _, p := range []*pool{&r.meshes, &r.textures} {
		var live []uint32
		p.each(func(e *entry) { live = append(live, e.index) })
		for _, i := range live {
			p.release(i)
		}
	}
	r.recency.Init()
	r.retired = nil
	r.resident = 0
}
