// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/stage/resource"
)

// Render target formats.
const (
	colorFormat = gputypes.TextureFormatRGBA8Unorm
	idFormat    = gputypes.TextureFormatRGBA8Unorm
	depthFormat = gputypes.TextureFormatDepth24PlusStencil8
)

// drawUniformSize is mat4x4<f32> followed by vec4<u32>.
const drawUniformSize = 64 + 16

// uniformSlot is the per-draw stride in the uniform buffer; bind group
// offsets must be aligned to it.
const uniformSlot = 256

// pipelines holds the scene and identifier pipelines. Both share one bind
// group layout: a uniform buffer at binding 0.
type pipelines struct {
	sceneShader hal.ShaderModule
	pickShader  hal.ShaderModule
	layout      hal.BindGroupLayout
	pipeLayout  hal.PipelineLayout
	scene       hal.RenderPipeline
	pick        hal.RenderPipeline
}

func newPipelines(device hal.Device) (*pipelines, error) {
	p := &pipelines{}
	if err := p.create(device); err != nil {
		p.destroy(device)
		return nil, err
	}
	return p, nil
}

func (p *pipelines) create(device hal.Device) error {
	var err error
	if p.sceneShader, err = createShader(device, "scene", sceneShaderSource); err != nil {
		return err
	}
	if p.pickShader, err = createShader(device, "pickid", pickShaderSource); err != nil {
		return err
	}

	p.layout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "draw_uniform_layout",
		Entries: []gputypes.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		}},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create bind group layout: %w", err)
	}
	p.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "draw_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.layout},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create pipeline layout: %w", err)
	}

	full := resource.VertexLayout()
	positions := full
	positions.Attributes = nil
	for _, a := range full.Attributes {
		if a.ShaderLocation == 0 {
			positions.Attributes = append(positions.Attributes, a)
		}
	}

	if p.scene, err = p.renderPipeline(device, "scene", p.sceneShader, full, colorFormat); err != nil {
		return err
	}
	if p.pick, err = p.renderPipeline(device, "pickid", p.pickShader, positions, idFormat); err != nil {
		return err
	}
	return nil
}

func (p *pipelines) renderPipeline(
	device hal.Device, name string, shader hal.ShaderModule,
	layout gputypes.VertexBufferLayout, format gputypes.TextureFormat,
) (hal.RenderPipeline, error) {
	keep := hal.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      hal.StencilOperationKeep,
	}
	pipe, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  name + "_pipeline",
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     shader,
			EntryPoint: "vs_main",
			Buffers:    []gputypes.VertexBufferLayout{layout},
		},
		Fragment: &hal.FragmentState{
			Module:     shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    format,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            depthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
			StencilFront:      keep,
			StencilBack:       keep,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create %s pipeline: %w", name, err)
	}
	return pipe, nil
}

func (p *pipelines) destroy(device hal.Device) {
	if p == nil {
		return
	}
	if p.pick != nil {
		device.DestroyRenderPipeline(p.pick)
		p.pick = nil
	}
	if p.scene != nil {
		device.DestroyRenderPipeline(p.scene)
		p.scene = nil
	}
	if p.pipeLayout != nil {
		device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.layout != nil {
		device.DestroyBindGroupLayout(p.layout)
		p.layout = nil
	}
	if p.pickShader != nil {
		device.DestroyShaderModule(p.pickShader)
		p.pickShader = nil
	}
	if p.sceneShader != nil {
		device.DestroyShaderModule(p.sceneShader)
		p.sceneShader = nil
	}
}

// targets are the offscreen attachments, recreated when the viewport size
// changes.
type targets struct {
	width, height uint32

	color, id, depth             hal.Texture
	colorView, idView, depthView hal.TextureView
}

func (t *targets) ensure(device hal.Device, w, h uint32) error {
	if t.width == w && t.height == h && t.color != nil {
		return nil
	}
	t.destroy(device)

	var err error
	if t.color, t.colorView, err = createTarget(device, "scene_color", w, h, colorFormat,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageCopySrc); err != nil {
		t.destroy(device)
		return err
	}
	if t.id, t.idView, err = createTarget(device, "pick_id", w, h, idFormat,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageCopySrc); err != nil {
		t.destroy(device)
		return err
	}
	if t.depth, t.depthView, err = createTarget(device, "depth", w, h, depthFormat,
		gputypes.TextureUsageRenderAttachment); err != nil {
		t.destroy(device)
		return err
	}
	t.width, t.height = w, h
	slogger().Debug("wgpu: targets resized", "width", w, "height", h)
	return nil
}

func createTarget(device hal.Device, label string, w, h uint32, format gputypes.TextureFormat, usage gputypes.TextureUsage) (hal.Texture, hal.TextureView, error) {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wgpu: create %s texture: %w", label, err)
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         label + "_view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return nil, nil, fmt.Errorf("wgpu: create %s view: %w", label, err)
	}
	return tex, view, nil
}

func (t *targets) destroy(device hal.Device) {
	for _, v := range []*hal.TextureView{&t.colorView, &t.idView, &t.depthView} {
		if *v != nil {
			device.DestroyTextureView(*v)
			*v = nil
		}
	}
	for _, tex := range []*hal.Texture{&t.color, &t.id, &t.depth} {
		if *tex != nil {
			device.DestroyTexture(*tex)
			*tex = nil
		}
	}
	t.width, t.height = 0, 0
}
