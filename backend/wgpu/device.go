// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/stage/backend"
)

func init() {
	backend.Register(backend.NameWGPU, func(opts backend.Options) (backend.Device, error) {
		if opts.Provider == nil {
			return nil, fmt.Errorf("%w: wgpu needs a device provider", backend.ErrNotAvailable)
		}
		return NewFromProvider(opts.Provider)
	})
}

// ErrNoHAL is returned when a provider does not expose HAL objects.
var ErrNoHAL = errors.New("wgpu: provider does not expose HAL device and queue")

type gpuBuffer struct {
	buf  hal.Buffer
	size uint64
}

type gpuTexture struct {
	tex  hal.Texture
	desc backend.TextureDesc
}

// Device renders frames on a gogpu/wgpu HAL device. It does not own the
// HAL device; Close releases only what it created.
type Device struct {
	mu sync.Mutex

	device hal.Device
	queue  hal.Queue

	nextID   uint64
	buffers  map[backend.BufferID]*gpuBuffer
	textures map[backend.TextureID]*gpuTexture

	pipes   *pipelines
	targets targets

	fence     hal.Fence
	submitted backend.SubmissionIndex
	completed backend.SubmissionIndex
	inflight  map[backend.SubmissionIndex]*submission

	lost   error
	closed bool
}

// NewFromProvider creates a device from a host provider exposing
// HalDevice() any and HalQueue() any, such as a gogpu application.
func NewFromProvider(provider any) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	return New(device, queue)
}

// New creates a device on an open HAL device and queue. Shaders are
// compiled and pipelines created up front.
func New(device hal.Device, queue hal.Queue) (*Device, error) {
	pipes, err := newPipelines(device)
	if err != nil {
		return nil, err
	}
	fence, err := device.CreateFence()
	if err != nil {
		pipes.destroy(device)
		return nil, fmt.Errorf("wgpu: create fence: %w", err)
	}
	slogger().Info("wgpu: device ready")
	return &Device{
		device:   device,
		queue:    queue,
		buffers:  make(map[backend.BufferID]*gpuBuffer),
		textures: make(map[backend.TextureID]*gpuTexture),
		pipes:    pipes,
		fence:    fence,
		inflight: make(map[backend.SubmissionIndex]*submission),
	}, nil
}

// Name returns backend.NameWGPU.
func (d *Device) Name() string { return backend.NameWGPU }

func (d *Device) check() error {
	if d.lost != nil {
		return d.lost
	}
	if d.closed {
		return fmt.Errorf("%w: device closed", backend.ErrNotAvailable)
	}
	return nil
}

// markLost records device loss. Every later call fails with the returned
// error.
func (d *Device) markLost(err error) error {
	if d.lost == nil {
		d.lost = fmt.Errorf("%w: %v", backend.ErrDeviceLost, err)
		slogger().Error("wgpu: device lost", "err", err)
	}
	return d.lost
}

// CreateBuffer creates a vertex or index buffer.
func (d *Device) CreateBuffer(desc backend.BufferDesc) (backend.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	usage := gputypes.BufferUsageCopyDst
	switch desc.Kind {
	case backend.BufferVertex:
		usage |= gputypes.BufferUsageVertex
	case backend.BufferIndex:
		usage |= gputypes.BufferUsageIndex
	default:
		return 0, fmt.Errorf("wgpu: unsupported buffer kind %v", desc.Kind)
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: usage,
	})
	if err != nil {
		return 0, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	d.nextID++
	id := backend.BufferID(d.nextID)
	d.buffers[id] = &gpuBuffer{buf: buf, size: desc.Size}
	return id, nil
}

// WriteBuffer queues a buffer write.
func (d *Device) WriteBuffer(id backend.BufferID, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", backend.ErrUnknownResource, id)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("wgpu: write of %d bytes at %d overflows buffer %d (%d bytes)", len(data), offset, id, b.size)
	}
	d.queue.WriteBuffer(b.buf, offset, data)
	return nil
}

// DestroyBuffer destroys a buffer.
func (d *Device) DestroyBuffer(id backend.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[id]; ok {
		d.device.DestroyBuffer(b.buf)
		delete(d.buffers, id)
	}
}

// CreateTexture creates a sampled 2D texture.
func (d *Device) CreateTexture(desc backend.TextureDesc) (backend.TextureID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	if bytesPerPixel(desc.Format) == 0 {
		return 0, fmt.Errorf("wgpu: unsupported texture format %v", desc.Format)
	}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: max(desc.MipLevels, 1),
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return 0, fmt.Errorf("wgpu: create texture %q: %w", desc.Label, err)
	}
	d.nextID++
	id := backend.TextureID(d.nextID)
	d.textures[id] = &gpuTexture{tex: tex, desc: desc}
	return id, nil
}

// WriteTexture queues a write of one full mip level.
func (d *Device) WriteTexture(id backend.TextureID, mip uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	t, ok := d.textures[id]
	if !ok {
		return fmt.Errorf("%w: texture %d", backend.ErrUnknownResource, id)
	}
	if mip >= max(t.desc.MipLevels, 1) {
		return fmt.Errorf("wgpu: mip %d of texture %d with %d levels", mip, id, t.desc.MipLevels)
	}
	w, h := max(t.desc.Width>>mip, 1), max(t.desc.Height>>mip, 1)
	bpp := bytesPerPixel(t.desc.Format)
	if uint64(len(data)) != uint64(w)*uint64(h)*uint64(bpp) {
		return fmt.Errorf("wgpu: mip %d of texture %d: got %d bytes, want %d", mip, id, len(data), w*h*bpp)
	}
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, MipLevel: mip, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: w * bpp, RowsPerImage: h},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	return nil
}

// DestroyTexture destroys a texture.
func (d *Device) DestroyTexture(id backend.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.textures[id]; ok {
		d.device.DestroyTexture(t.tex)
		delete(d.textures, id)
	}
}

// Close destroys every resource the device created, including in-flight
// staging buffers. The HAL device itself belongs to the provider.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	for idx, s := range d.inflight {
		s.release(d.device)
		delete(d.inflight, idx)
	}
	for id, b := range d.buffers {
		d.device.DestroyBuffer(b.buf)
		delete(d.buffers, id)
	}
	for id, t := range d.textures {
		d.device.DestroyTexture(t.tex)
		delete(d.textures, id)
	}
	d.targets.destroy(d.device)
	d.pipes.destroy(d.device)
	if d.fence != nil {
		d.device.DestroyFence(d.fence)
		d.fence = nil
	}
	return nil
}

func bytesPerPixel(f gputypes.TextureFormat) uint32 {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return 4
	case gputypes.TextureFormatR8Unorm:
		return 1
	default:
		return 0
	}
}

var _ backend.Device = (*Device)(nil)
