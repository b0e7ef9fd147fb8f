// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package soft is a CPU implementation of backend.Device.
//
// Buffers and textures are byte slices. Submitting a frame resolves its
// pick requests immediately by point-sampling the draw list at each
// requested pixel with a depth test; the result becomes readable once the
// submission completes. Completion is simulated: a submission finishes
// after a configurable number of Completed polls, which lets tests
// exercise the asynchronous paths deterministically.
//
// Importing the package registers it under backend.NameSoft.
package soft

import (
	"fmt"
	"sync"

	"github.com/gogpu/stage/backend"
)

func init() {
	backend.Register(backend.NameSoft, func(opts backend.Options) (backend.Device, error) {
		return New(Config{Latency: opts.Latency}), nil
	})
}

// Config holds soft device configuration.
type Config struct {
	// Latency is how many Completed calls a submission needs before it
	// finishes. Zero finishes submissions on the next Completed call.
	Latency int
}

// Stats counts the work the device has done.
type Stats struct {
	Submissions uint64
	Draws       uint64
	Triangles   uint64
	Buffers     int
	Textures    int
	Bytes       uint64

	// PickSets is the number of pick readbacks not yet collected.
	PickSets int
}

type buffer struct {
	kind backend.BufferKind
	data []byte
}

type texture struct {
	desc backend.TextureDesc
	mips [][]byte
}

type inflight struct {
	index     backend.SubmissionIndex
	remaining int
}

// Device is the CPU device. It is safe for concurrent use.
type Device struct {
	mu      sync.Mutex
	latency int

	nextID   uint64
	buffers  map[backend.BufferID]*buffer
	textures map[backend.TextureID]*texture

	submitted backend.SubmissionIndex
	completed backend.SubmissionIndex
	inflight  []inflight
	picks     map[backend.SubmissionIndex][]backend.PickSample

	lost   bool
	closed bool
	stats  Stats
}

// New creates a soft device.
func New(cfg Config) *Device {
	return &Device{
		latency:  max(cfg.Latency, 0),
		buffers:  make(map[backend.BufferID]*buffer),
		textures: make(map[backend.TextureID]*texture),
		picks:    make(map[backend.SubmissionIndex][]backend.PickSample),
	}
}

// Name returns backend.NameSoft.
func (d *Device) Name() string { return backend.NameSoft }

// Lose simulates device loss. Every later call fails with
// backend.ErrDeviceLost.
func (d *Device) Lose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.lost {
		d.lost = true
		slogger().Error("soft: device lost")
	}
}

// SetLatency changes the completion latency of later submissions.
func (d *Device) SetLatency(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latency = max(n, 0)
}

// Stats returns the work counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Buffers = len(d.buffers)
	s.Textures = len(d.textures)
	s.PickSets = len(d.picks)
	s.Bytes = 0
	for _, b := range d.buffers {
		s.Bytes += uint64(len(b.data))
	}
	for _, t := range d.textures {
		for _, m := range t.mips {
			s.Bytes += uint64(len(m))
		}
	}
	return s
}

func (d *Device) check() error {
	if d.lost {
		return backend.ErrDeviceLost
	}
	if d.closed {
		return fmt.Errorf("%w: device closed", backend.ErrNotAvailable)
	}
	return nil
}

// CreateBuffer allocates a zeroed buffer.
func (d *Device) CreateBuffer(desc backend.BufferDesc) (backend.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	d.nextID++
	id := backend.BufferID(d.nextID)
	d.buffers[id] = &buffer{kind: desc.Kind, data: make([]byte, desc.Size)}
	slogger().Debug("soft: buffer created", "id", id, "kind", desc.Kind.String(), "size", desc.Size, "label", desc.Label)
	return id, nil
}

// WriteBuffer copies data into a buffer.
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
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("soft: write of %d bytes at %d overflows buffer %d (%d bytes)", len(data), offset, id, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

// DestroyBuffer frees a buffer.
func (d *Device) DestroyBuffer(id backend.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, id)
}

// CreateTexture allocates a texture with empty mip levels.
func (d *Device) CreateTexture(desc backend.TextureDesc) (backend.TextureID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	if desc.Width == 0 || desc.Height == 0 || desc.MipLevels == 0 {
		return 0, fmt.Errorf("soft: invalid texture %dx%d with %d mips", desc.Width, desc.Height, desc.MipLevels)
	}
	d.nextID++
	id := backend.TextureID(d.nextID)
	d.textures[id] = &texture{desc: desc, mips: make([][]byte, desc.MipLevels)}
	return id, nil
}

// WriteTexture replaces one mip level.
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
	if int(mip) >= len(t.mips) {
		return fmt.Errorf("soft: mip %d of texture %d with %d levels", mip, id, len(t.mips))
	}
	t.mips[mip] = append([]byte(nil), data...)
	return nil
}

// DestroyTexture frees a texture.
func (d *Device) DestroyTexture(id backend.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.textures, id)
}

// Submit resolves the frame's pick requests against the current buffer
// contents and queues the submission for completion.
func (d *Device) Submit(f *backend.Frame) (backend.SubmissionIndex, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	d.submitted++
	idx := d.submitted
	d.stats.Submissions++
	d.stats.Draws += uint64(len(f.Draws))

	if len(f.Picks) > 0 {
		r := rasterizer{buffers: d.buffers}
		d.picks[idx] = r.samplePicks(f)
		d.stats.Triangles += r.triangles
	}
	d.inflight = append(d.inflight, inflight{index: idx, remaining: d.latency})
	return idx, nil
}

// Completed advances simulated time by one poll and returns the highest
// finished submission.
func (d *Device) Completed() (backend.SubmissionIndex, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	for i := range d.inflight {
		if d.inflight[i].remaining > 0 {
			d.inflight[i].remaining--
		}
	}
	n := 0
	for n < len(d.inflight) && d.inflight[n].remaining == 0 {
		d.completed = d.inflight[n].index
		n++
	}
	d.inflight = d.inflight[n:]
	return d.completed, nil
}

// ReadPicks returns and forgets the samples of a finished submission.
func (d *Device) ReadPicks(idx backend.SubmissionIndex) ([]backend.PickSample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return nil, err
	}
	if idx > d.completed {
		return nil, fmt.Errorf("%w: %d > %d", backend.ErrNotReady, idx, d.completed)
	}
	s := d.picks[idx]
	delete(d.picks, idx)
	return s, nil
}

// Close frees everything. It is safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.buffers = make(map[backend.BufferID]*buffer)
	d.textures = make(map[backend.TextureID]*texture)
	d.picks = make(map[backend.SubmissionIndex][]backend.PickSample)
	d.inflight = nil
	return nil
}

var _ backend.Device = (*Device)(nil)
