// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/stage/backend"
)

// copyPitchAlignment is the WebGPU bytesPerRow alignment for texture to
// buffer copies. Each pick sample gets one aligned row in the staging
// buffer.
const copyPitchAlignment = 256

// depthRangeFix maps OpenGL clip-space depth [-w, w] to WebGPU's [0, w].
var depthRangeFix = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// submission holds what a submitted frame keeps alive until the GPU is
// done with it.
type submission struct {
	cmd      hal.CommandBuffer
	uniforms hal.Buffer
	groups   []hal.BindGroup
	staging  hal.Buffer
	picks    []backend.PickRequest
}

// releaseFrame frees the frame resources, keeping the staging buffer for
// ReadPicks.
func (s *submission) releaseFrame(device hal.Device) {
	for _, g := range s.groups {
		device.DestroyBindGroup(g)
	}
	s.groups = nil
	if s.uniforms != nil {
		device.DestroyBuffer(s.uniforms)
		s.uniforms = nil
	}
	if s.cmd != nil {
		device.FreeCommandBuffer(s.cmd)
		s.cmd = nil
	}
}

func (s *submission) release(device hal.Device) {
	s.releaseFrame(device)
	if s.staging != nil {
		device.DestroyBuffer(s.staging)
		s.staging = nil
	}
}

// Submit encodes the scene pass, the identifier pass when f carries pick
// requests, and the copies of the requested pixels, then submits them
// signalling the device fence with the new submission index.
func (d *Device) Submit(f *backend.Frame) (backend.SubmissionIndex, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}

	s := &submission{picks: f.Picks}
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "stage_frame"})
	if err != nil {
		return 0, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("stage_frame"); err != nil {
		return 0, fmt.Errorf("wgpu: begin encoding: %w", err)
	}

	if f.Width > 0 && f.Height > 0 {
		if err := d.encodeFrame(encoder, f, s); err != nil {
			encoder.DiscardEncoding()
			s.release(d.device)
			return 0, err
		}
	}

	s.cmd, err = encoder.EndEncoding()
	if err != nil {
		s.release(d.device)
		return 0, fmt.Errorf("wgpu: end encoding: %w", err)
	}

	idx := d.submitted + 1
	if err := d.queue.Submit([]hal.CommandBuffer{s.cmd}, d.fence, uint64(idx)); err != nil {
		s.release(d.device)
		return 0, fmt.Errorf("wgpu: submit: %w", err)
	}
	d.submitted = idx
	d.inflight[idx] = s
	return idx, nil
}

func (d *Device) encodeFrame(encoder hal.CommandEncoder, f *backend.Frame, s *submission) error {
	w, h := uint32(f.Width), uint32(f.Height) //nolint:gosec // checked positive by caller
	if err := d.targets.ensure(d.device, w, h); err != nil {
		return err
	}
	if err := d.buildUniforms(f, s); err != nil {
		return err
	}

	scene := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "scene_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       d.targets.colorView,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 1},
		}},
		DepthStencilAttachment: d.depthAttachment(),
	})
	scene.SetPipeline(d.pipes.scene)
	d.recordDraws(scene, f.Draws, s.groups, false)
	scene.End()

	if len(f.Picks) == 0 {
		return nil
	}

	pick := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "pick_id_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       d.targets.idView,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{},
		}},
		DepthStencilAttachment: d.depthAttachment(),
	})
	pick.SetPipeline(d.pipes.pick)
	d.recordDraws(pick, f.Draws, s.groups, true)
	pick.End()

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: d.targets.id,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "pick_staging",
		Size:  uint64(len(f.Picks)) * copyPitchAlignment,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create staging buffer: %w", err)
	}
	s.staging = staging

	copies := make([]hal.BufferTextureCopy, 0, len(f.Picks))
	for i, p := range f.Picks {
		if p.X < 0 || p.Y < 0 || p.X >= f.Width || p.Y >= f.Height {
			continue
		}
		copies = append(copies, hal.BufferTextureCopy{
			BufferLayout: hal.ImageDataLayout{
				Offset:       uint64(i) * copyPitchAlignment,
				BytesPerRow:  copyPitchAlignment,
				RowsPerImage: 1,
			},
			TextureBase: hal.ImageCopyTexture{
				Texture:  d.targets.id,
				MipLevel: 0,
				Origin:   hal.Origin3D{X: uint32(p.X), Y: uint32(p.Y)}, //nolint:gosec // bounds checked above
			},
			Size: hal.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1},
		})
	}
	if len(copies) > 0 {
		encoder.CopyTextureToBuffer(d.targets.id, staging, copies)
	}

	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: d.targets.id,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})
	return nil
}

func (d *Device) depthAttachment() *hal.RenderPassDepthStencilAttachment {
	return &hal.RenderPassDepthStencilAttachment{
		View:              d.targets.depthView,
		DepthLoadOp:       gputypes.LoadOpClear,
		DepthStoreOp:      gputypes.StoreOpDiscard,
		DepthClearValue:   1.0,
		StencilLoadOp:     gputypes.LoadOpClear,
		StencilStoreOp:    gputypes.StoreOpDiscard,
		StencilClearValue: 0,
	}
}

// buildUniforms writes one uniform slot per draw and creates a bind group
// for each.
func (d *Device) buildUniforms(f *backend.Frame, s *submission) error {
	if len(f.Draws) == 0 {
		return nil
	}
	data := make([]byte, len(f.Draws)*uniformSlot)
	vp := depthRangeFix.Mul4(f.ViewProjection)
	for i, dr := range f.Draws {
		putDrawUniform(data[i*uniformSlot:], vp.Mul4(dr.Model), dr.PickID)
	}

	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "draw_uniforms",
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create uniform buffer: %w", err)
	}
	s.uniforms = buf
	d.queue.WriteBuffer(buf, 0, data)

	s.groups = make([]hal.BindGroup, len(f.Draws))
	for i := range f.Draws {
		g, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  "draw_bind",
			Layout: d.pipes.layout,
			Entries: []gputypes.BindGroupEntry{{
				Binding: 0,
				Resource: gputypes.BufferBinding{
					Buffer: buf.NativeHandle(),
					Offset: uint64(i) * uniformSlot,
					Size:   drawUniformSize,
				},
			}},
		})
		if err != nil {
			return fmt.Errorf("wgpu: create bind group: %w", err)
		}
		s.groups[i] = g
	}
	return nil
}

func putDrawUniform(b []byte, mvp mgl32.Mat4, id uint32) {
	for i, v := range mvp {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(b[64:], id)
}

// recordDraws binds and draws each mesh. Draws whose buffers are gone are
// skipped.
func (d *Device) recordDraws(rp hal.RenderPassEncoder, draws []backend.Draw, groups []hal.BindGroup, pickableOnly bool) {
	for i, dr := range draws {
		if pickableOnly && dr.PickID == 0 {
			continue
		}
		vb, ok := d.buffers[dr.Mesh.VertexBuffer]
		if !ok {
			continue
		}
		rp.SetBindGroup(0, groups[i], nil)
		rp.SetVertexBuffer(0, vb.buf, 0)
		if !dr.Mesh.Indexed() {
			rp.Draw(dr.Mesh.VertexCount, 1, 0, 0)
			continue
		}
		ib, ok := d.buffers[dr.Mesh.IndexBuffer]
		if !ok {
			continue
		}
		rp.SetIndexBuffer(ib.buf, dr.Mesh.IndexFormat, 0)
		rp.DrawIndexed(dr.Mesh.IndexCount, 1, 0, 0, 0)
	}
}

// Completed polls the fence without blocking and frees the frame
// resources of every finished submission.
func (d *Device) Completed() (backend.SubmissionIndex, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	for d.completed < d.submitted {
		next := d.completed + 1
		ok, err := d.device.Wait(d.fence, uint64(next), 0)
		if err != nil {
			return d.completed, d.markLost(err)
		}
		if !ok {
			break
		}
		d.completed = next
		if s, ok := d.inflight[next]; ok {
			s.releaseFrame(d.device)
			if s.staging == nil {
				delete(d.inflight, next)
			}
		}
	}
	return d.completed, nil
}

// ReadPicks maps the staging buffer of a finished submission and decodes
// one identifier per pick request.
func (d *Device) ReadPicks(idx backend.SubmissionIndex) ([]backend.PickSample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	if idx > d.completed {
		return nil, fmt.Errorf("%w: %d > %d", backend.ErrNotReady, idx, d.completed)
	}
	s, ok := d.inflight[idx]
	if !ok || s.staging == nil {
		return nil, nil
	}
	defer func() {
		s.release(d.device)
		delete(d.inflight, idx)
	}()

	raw := make([]byte, len(s.picks)*copyPitchAlignment)
	if err := d.queue.ReadBuffer(s.staging, 0, raw); err != nil {
		return nil, fmt.Errorf("wgpu: read pick staging: %w", err)
	}
	out := make([]backend.PickSample, len(s.picks))
	for i, p := range s.picks {
		out[i] = backend.PickSample{
			X:  p.X,
			Y:  p.Y,
			ID: binary.LittleEndian.Uint32(raw[i*copyPitchAlignment:]),
		}
	}
	return out, nil
}
