// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
)

// Common device errors.
var (
	// ErrDeviceLost is returned by every operation after the device has been
	// lost. It is fatal for the session.
	ErrDeviceLost = errors.New("backend: device lost")

	// ErrNotAvailable is returned when a requested device is not registered
	// or cannot be created on this system.
	ErrNotAvailable = errors.New("backend: not available")

	// ErrUnknownResource is returned for buffer or texture IDs the device
	// does not own.
	ErrUnknownResource = errors.New("backend: unknown resource")

	// ErrNotReady is returned by ReadPicks for a submission that has not
	// completed yet.
	ErrNotReady = errors.New("backend: submission not complete")
)

// BufferID identifies a device buffer. Zero is never a valid ID.
type BufferID uint64

// TextureID identifies a device texture. Zero is never a valid ID.
type TextureID uint64

// SubmissionIndex orders frame submissions. Zero means nothing submitted.
type SubmissionIndex uint64

// BufferKind is what a buffer holds.
type BufferKind uint8

const (
	// BufferVertex holds interleaved vertices.
	BufferVertex BufferKind = iota + 1
	// BufferIndex holds triangle-list indices.
	BufferIndex
)

// String returns the buffer kind name.
func (k BufferKind) String() string {
	switch k {
	case BufferVertex:
		return "vertex"
	case BufferIndex:
		return "index"
	default:
		return fmt.Sprintf("BufferKind(%d)", k)
	}
}

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Label string
	Size  uint64
	Kind  BufferKind
}

// TextureDesc describes a 2D sampled texture to create.
type TextureDesc struct {
	Label     string
	Width     uint32
	Height    uint32
	MipLevels uint32
	Format    gputypes.TextureFormat
}

// ResourceDevice is the subset of a device the resource registry uploads
// through.
type ResourceDevice interface {
	// CreateBuffer allocates a buffer of desc.Size bytes.
	CreateBuffer(desc BufferDesc) (BufferID, error)

	// WriteBuffer copies data into the buffer at offset. len(data) and
	// offset are multiples of 4.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// DestroyBuffer releases a buffer. Unknown IDs are ignored.
	DestroyBuffer(id BufferID)

	// CreateTexture allocates a texture with desc.MipLevels levels.
	CreateTexture(desc TextureDesc) (TextureID, error)

	// WriteTexture replaces the contents of one mip level. data is tightly
	// packed rows of width*height texels.
	WriteTexture(id TextureID, mip uint32, data []byte) error

	// DestroyTexture releases a texture. Unknown IDs are ignored.
	DestroyTexture(id TextureID)
}

// Device is a GPU device as seen by the frame coordinator.
//
// Implementations are safe for concurrent use, but the runtime only calls
// Submit, Completed and ReadPicks from the frame goroutine.
type Device interface {
	ResourceDevice

	// Name returns the registered device name.
	Name() string

	// Submit records and submits one frame. It never waits for the GPU.
	Submit(f *Frame) (SubmissionIndex, error)

	// Completed returns the highest finished submission without blocking.
	Completed() (SubmissionIndex, error)

	// ReadPicks returns the pick samples of a finished submission, in the
	// order of Frame.Picks. Samples are released after the first read.
	ReadPicks(idx SubmissionIndex) ([]PickSample, error)

	// Close releases every resource owned by the device.
	Close() error
}

// MeshBinding is the resident GPU form of a mesh.
type MeshBinding struct {
	VertexBuffer BufferID
	VertexCount  uint32
	Stride       uint32
	IndexBuffer  BufferID // zero for non-indexed meshes
	IndexCount   uint32
	IndexFormat  gputypes.IndexFormat
}

// Indexed reports whether the mesh draws through an index buffer.
func (m MeshBinding) Indexed() bool {
	return m.IndexBuffer != 0
}

// TextureBinding is the resident GPU form of a texture.
type TextureBinding struct {
	Texture   TextureID
	Width     uint32
	Height    uint32
	MipLevels uint32
	Format    gputypes.TextureFormat
}

// Draw is one entity in a frame's draw list.
type Draw struct {
	Entity  uint64
	PickID  uint32 // zero for entities that are not pickable
	Model   mgl32.Mat4
	Mesh    MeshBinding
	Texture *TextureBinding
}

// PickRequest asks for the identifier under one pixel.
type PickRequest struct {
	X, Y int
}

// PickSample is the identifier read back for a PickRequest. Zero is the
// background.
type PickSample struct {
	X, Y int
	ID   uint32
}

// Frame is everything a device needs to record one tick.
type Frame struct {
	Index          uint64
	Width, Height  int
	View           mgl32.Mat4
	Projection     mgl32.Mat4
	ViewProjection mgl32.Mat4
	Draws          []Draw
	Picks          []PickRequest
}
