// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gogpu/stage/backend"
	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/picking"
	"github.com/gogpu/stage/resource"
)

// ErrUnknownDrawable is returned for drawable IDs that were never added.
var ErrUnknownDrawable = errors.New("frame: unknown drawable")

// Drawable is a non-pickable scene entity.
type Drawable struct {
	Mesh      resource.MeshHandle
	Texture   resource.TextureHandle // zero for untextured
	Transform geom.Transform
	Order     int
}

type drawable struct {
	Drawable
	seq uint64
}

// Draw-list groups. Within equal Order, pickable entities draw first.
const (
	groupPickable = iota
	groupPlain
)

type item struct {
	draw    backend.Draw
	order   int
	group   int
	seq     uint64
	handles []resource.AnyHandle
}

// Coordinator runs frames. Drawable management is safe for concurrent
// use; RunFrame and Poll must be called from one goroutine.
type Coordinator struct {
	dev   backend.Device
	reg   *resource.Registry
	view  picking.View
	picks *picking.System

	mu        sync.Mutex
	drawables map[picking.EntityID]*drawable
	seq       uint64

	// run serializes RunFrame and Poll.
	run   sync.Mutex
	frame uint64
	lost  error
}

// New creates a coordinator. view is usually the *camera.Camera the
// picking system was built with.
func New(dev backend.Device, reg *resource.Registry, view picking.View, picks *picking.System) *Coordinator {
	return &Coordinator{
		dev:       dev,
		reg:       reg,
		view:      view,
		picks:     picks,
		drawables: make(map[picking.EntityID]*drawable),
	}
}

// AddDrawable adds a non-pickable entity and takes references on its mesh
// and texture. IDs share one space with pickable entities.
func (c *Coordinator) AddDrawable(id picking.EntityID, d Drawable) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.drawables[id]; ok {
		return fmt.Errorf("%w: %d", picking.ErrDuplicateEntity, id)
	}
	if _, ok := c.picks.Entity(id); ok {
		return fmt.Errorf("%w: %d is pickable", picking.ErrDuplicateEntity, id)
	}
	if err := c.reg.Acquire(d.Mesh); err != nil {
		return err
	}
	if !d.Texture.IsZero() {
		if err := c.reg.Acquire(d.Texture); err != nil {
			_ = c.reg.Release(d.Mesh)
			return err
		}
	}
	c.seq++
	c.drawables[id] = &drawable{Drawable: d, seq: c.seq}
	return nil
}

// RemoveDrawable removes a drawable and releases its references.
func (c *Coordinator) RemoveDrawable(id picking.EntityID) error {
	c.mu.Lock()
	d, ok := c.drawables[id]
	delete(c.drawables, id)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownDrawable, id)
	}
	if err := c.reg.Release(d.Mesh); err != nil {
		slogger().Debug("frame: release after remove", "entity", id, "err", err)
	}
	if !d.Texture.IsZero() {
		if err := c.reg.Release(d.Texture); err != nil {
			slogger().Debug("frame: release after remove", "entity", id, "err", err)
		}
	}
	return nil
}

// SetDrawableTransform moves a drawable.
func (c *Coordinator) SetDrawableTransform(id picking.EntityID, t geom.Transform) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.drawables[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownDrawable, id)
	}
	d.Transform = t
	return nil
}

// SetDrawableOrder changes a drawable's draw-order key.
func (c *Coordinator) SetDrawableOrder(id picking.EntityID, order int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.drawables[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownDrawable, id)
	}
	d.Order = order
	return nil
}

// AddPickable makes id pickable through the picking system. The check
// against drawables and the insert happen under one lock.
func (c *Coordinator) AddPickable(id picking.EntityID, mesh resource.MeshHandle, t geom.Transform) (picking.PickID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.drawables[id]; ok {
		return 0, fmt.Errorf("%w: %d is a drawable", picking.ErrDuplicateEntity, id)
	}
	return c.picks.Add(id, mesh, t)
}

// Drawables returns the number of non-pickable entities.
func (c *Coordinator) Drawables() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.drawables)
}

// Frame returns the index of the last frame run.
func (c *Coordinator) Frame() uint64 {
	c.run.Lock()
	defer c.run.Unlock()
	return c.frame
}

// Lost returns the device-lost error, or nil while the device is healthy.
func (c *Coordinator) Lost() error {
	c.run.Lock()
	defer c.run.Unlock()
	return c.lost
}

// RunFrame runs one frame. The report is returned even when err is
// non-nil, describing how far the frame got.
func (c *Coordinator) RunFrame(ctx context.Context) (*Report, error) {
	c.run.Lock()
	defer c.run.Unlock()
	if c.lost != nil {
		return nil, c.lost
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	c.frame++
	rep := &Report{Frame: c.frame}
	defer func() {
		rep.Resources = c.reg.Stats()
		rep.Elapsed = time.Since(start)
	}()

	completed, err := c.dev.Completed()
	if err != nil {
		return rep, c.fail(err)
	}
	rep.Completed = completed

	if err := c.reg.FlushUploads(completed); err != nil {
		if errors.Is(err, backend.ErrDeviceLost) {
			return rep, c.fail(err)
		}
		if errors.Is(err, resource.ErrClosed) {
			return rep, err
		}
		rep.UploadErrors = unjoin(err)
	}

	snap := c.view.Snapshot()
	width, height := c.view.Viewport()
	items, diags := c.buildDrawList()
	rep.Diagnostics = diags

	f := &backend.Frame{
		Index:          c.frame,
		Width:          width,
		Height:         height,
		View:           snap.View,
		Projection:     snap.Projection,
		ViewProjection: snap.ViewProjection,
		Draws:          make([]backend.Draw, len(items)),
	}
	var used []resource.AnyHandle
	for i, it := range items {
		f.Draws[i] = it.draw
		used = append(used, it.handles...)
	}
	if width > 0 && height > 0 {
		f.Picks = c.picks.BeginFrame(c.frame)
	}
	rep.Draws = len(f.Draws)
	rep.PickRequests = len(f.Picks)

	sub, err := c.dev.Submit(f)
	if err != nil {
		c.picks.SubmitFailed(c.frame, err)
		if errors.Is(err, backend.ErrDeviceLost) {
			return rep, c.fail(err)
		}
		return rep, fmt.Errorf("frame: submit: %w", err)
	}
	rep.Submission = sub
	c.picks.Submitted(c.frame, sub)
	c.reg.RecordUse(sub, used...)

	// Poll again so readbacks that finished during submission resolve in
	// this frame.
	if done, err := c.dev.Completed(); err != nil {
		return rep, c.fail(err)
	} else if done > completed {
		completed = done
		rep.Completed = done
	}

	n, err := c.picks.Service(completed, c.dev.ReadPicks)
	rep.Settled = n
	if err != nil && errors.Is(err, backend.ErrDeviceLost) {
		return rep, c.fail(err)
	}

	if len(rep.Diagnostics) > 0 || len(rep.UploadErrors) > 0 {
		slogger().Warn("frame: degraded", "report", rep)
	} else {
		slogger().Debug("frame: done", "report", rep)
	}
	return rep, nil
}

// Poll services pick queries between frames without submitting work. It
// returns the number of queries settled.
func (c *Coordinator) Poll() (int, error) {
	c.run.Lock()
	defer c.run.Unlock()
	if c.lost != nil {
		return 0, c.lost
	}
	completed, err := c.dev.Completed()
	if err != nil {
		return 0, c.fail(err)
	}
	n, err := c.picks.Service(completed, c.dev.ReadPicks)
	if err != nil && errors.Is(err, backend.ErrDeviceLost) {
		return n, c.fail(err)
	}
	return n, err
}

// buildDrawList resolves every entity to its resident resources.
func (c *Coordinator) buildDrawList() ([]item, []Diagnostic) {
	var (
		items []item
		diags []Diagnostic
	)
	for _, e := range c.picks.Entities() {
		mesh, err := c.reg.ResolveMesh(e.Mesh)
		if err != nil {
			diags = append(diags, Diagnostic{Entity: e.ID, Handle: e.Mesh, Err: err})
			continue
		}
		items = append(items, item{
			draw: backend.Draw{
				Entity: uint64(e.ID),
				PickID: e.PickID,
				Model:  e.Transform.Matrix(),
				Mesh:   mesh,
			},
			order:   e.Order,
			group:   groupPickable,
			seq:     e.Seq,
			handles: []resource.AnyHandle{e.Mesh},
		})
	}

	c.mu.Lock()
	plain := make(map[picking.EntityID]drawable, len(c.drawables))
	for id, d := range c.drawables {
		plain[id] = *d
	}
	c.mu.Unlock()

	for id, d := range plain {
		mesh, err := c.reg.ResolveMesh(d.Mesh)
		if err != nil {
			diags = append(diags, Diagnostic{Entity: id, Handle: d.Mesh, Err: err})
			continue
		}
		it := item{
			draw: backend.Draw{
				Entity: uint64(id),
				Model:  d.Transform.Matrix(),
				Mesh:   mesh,
			},
			order:   d.Order,
			group:   groupPlain,
			seq:     d.seq,
			handles: []resource.AnyHandle{d.Mesh},
		}
		if !d.Texture.IsZero() {
			tex, err := c.reg.ResolveTexture(d.Texture)
			if err != nil {
				diags = append(diags, Diagnostic{Entity: id, Handle: d.Texture, Err: err})
				continue
			}
			it.draw.Texture = &tex
			it.handles = append(it.handles, d.Texture)
		}
		items = append(items, it)
	}

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.order != b.order {
			return a.order < b.order
		}
		if a.group != b.group {
			return a.group < b.group
		}
		return a.seq < b.seq
	})
	sort.Slice(diags, func(i, j int) bool { return diags[i].Entity < diags[j].Entity })
	return items, diags
}

// fail handles an error from the device. Device loss ends the session.
func (c *Coordinator) fail(err error) error {
	if !errors.Is(err, backend.ErrDeviceLost) {
		return err
	}
	c.lost = err
	slogger().Error("frame: device lost", "frame", c.frame, "err", err)
	c.picks.FailAll(err)
	c.reg.Invalidate()
	return err
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
