// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/stage/backend"
	"github.com/gogpu/stage/camera"
	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/resource"
)

var white = mgl32.Vec4{1, 1, 1, 1}

// uploadCube registers a unit cube through a registry on dev and returns
// its resident binding.
func uploadCube(t *testing.T, dev *Device) backend.MeshBinding {
	t.Helper()
	reg := resource.NewRegistry(dev, resource.Config{})
	h, err := reg.RegisterMesh(resource.Cube(1, white))
	require.NoError(t, err)
	require.NoError(t, reg.FlushUploads(0))
	b, err := reg.ResolveMesh(h)
	require.NoError(t, err)
	return b
}

func newFrame(draws []backend.Draw, picks ...backend.PickRequest) *backend.Frame {
	cam := camera.New(camera.Config{})
	cam.SetViewport(100, 100)
	snap := cam.Snapshot()
	return &backend.Frame{
		Index:          1,
		Width:          100,
		Height:         100,
		View:           snap.View,
		Projection:     snap.Projection,
		ViewProjection: snap.ViewProjection,
		Draws:          draws,
		Picks:          picks,
	}
}

func TestRegisteredAsSoft(t *testing.T) {
	dev, err := backend.Open(backend.NameSoft, backend.Options{Latency: 3})
	require.NoError(t, err)
	assert.Equal(t, backend.NameSoft, dev.Name())
	assert.Equal(t, 3, dev.(*Device).latency)
}

func TestBufferLifecycle(t *testing.T) {
	dev := New(Config{})
	id, err := dev.CreateBuffer(backend.BufferDesc{Size: 8, Kind: backend.BufferVertex})
	require.NoError(t, err)

	require.NoError(t, dev.WriteBuffer(id, 4, []byte{1, 2, 3, 4}))
	assert.Error(t, dev.WriteBuffer(id, 8, []byte{1, 2, 3, 4}))
	assert.ErrorIs(t, dev.WriteBuffer(id+100, 0, nil), backend.ErrUnknownResource)

	st := dev.Stats()
	assert.Equal(t, 1, st.Buffers)
	assert.Equal(t, uint64(8), st.Bytes)

	dev.DestroyBuffer(id)
	assert.Equal(t, 0, dev.Stats().Buffers)
}

func TestTextureLifecycle(t *testing.T) {
	dev := New(Config{})
	_, err := dev.CreateTexture(backend.TextureDesc{Width: 0, Height: 4, MipLevels: 1})
	assert.Error(t, err)

	id, err := dev.CreateTexture(backend.TextureDesc{Width: 4, Height: 4, MipLevels: 3})
	require.NoError(t, err)
	require.NoError(t, dev.WriteTexture(id, 2, []byte{1, 2, 3, 4}))
	assert.Error(t, dev.WriteTexture(id, 3, []byte{1, 2, 3, 4}))
	assert.Equal(t, uint64(4), dev.Stats().Bytes)

	dev.DestroyTexture(id)
	assert.ErrorIs(t, dev.WriteTexture(id, 0, nil), backend.ErrUnknownResource)
}

func TestPickCenterAndCorner(t *testing.T) {
	dev := New(Config{Latency: 1})
	cube := uploadCube(t, dev)

	f := newFrame(
		[]backend.Draw{{Entity: 1, PickID: 7, Model: mgl32.Ident4(), Mesh: cube}},
		backend.PickRequest{X: 50, Y: 50},
		backend.PickRequest{X: 0, Y: 0},
	)
	idx, err := dev.Submit(f)
	require.NoError(t, err)
	assert.Equal(t, backend.SubmissionIndex(1), idx)

	_, err = dev.ReadPicks(idx)
	assert.ErrorIs(t, err, backend.ErrNotReady)

	done, err := dev.Completed()
	require.NoError(t, err)
	require.Equal(t, idx, done)

	samples, err := dev.ReadPicks(idx)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, backend.PickSample{X: 50, Y: 50, ID: 7}, samples[0])
	assert.Equal(t, backend.PickSample{X: 0, Y: 0, ID: 0}, samples[1])

	// Samples are released after the first read.
	samples, err = dev.ReadPicks(idx)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestPickDepthOrder(t *testing.T) {
	dev := New(Config{})
	cube := uploadCube(t, dev)

	near := backend.Draw{Entity: 1, PickID: 1, Model: mgl32.Ident4(), Mesh: cube}
	far := backend.Draw{Entity: 2, PickID: 2, Model: geom.Translation(0, 0, -3).Matrix(), Mesh: cube}

	for _, draws := range [][]backend.Draw{{near, far}, {far, near}} {
		idx, err := dev.Submit(newFrame(draws, backend.PickRequest{X: 50, Y: 50}))
		require.NoError(t, err)
		_, err = dev.Completed()
		require.NoError(t, err)
		samples, err := dev.ReadPicks(idx)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), samples[0].ID)
	}
}

func TestPickSkipsUnpickableDraws(t *testing.T) {
	dev := New(Config{})
	cube := uploadCube(t, dev)

	idx, err := dev.Submit(newFrame(
		[]backend.Draw{{Entity: 1, Model: mgl32.Ident4(), Mesh: cube}},
		backend.PickRequest{X: 50, Y: 50},
	))
	require.NoError(t, err)
	_, err = dev.Completed()
	require.NoError(t, err)
	samples, err := dev.ReadPicks(idx)
	require.NoError(t, err)
	assert.Zero(t, samples[0].ID)
}

func TestPickClipsAtNearPlane(t *testing.T) {
	dev := New(Config{})
	cube := uploadCube(t, dev)

	// The eye at z=5 sits inside this cube; only the far faces are
	// visible and the side faces cross the near plane.
	model := geom.Identity().Scaled(mgl32.Vec3{20, 20, 20}).Matrix()
	idx, err := dev.Submit(newFrame(
		[]backend.Draw{{Entity: 1, PickID: 3, Model: model, Mesh: cube}},
		backend.PickRequest{X: 50, Y: 50},
		backend.PickRequest{X: 2, Y: 97},
	))
	require.NoError(t, err)
	_, err = dev.Completed()
	require.NoError(t, err)
	samples, err := dev.ReadPicks(idx)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), samples[0].ID)
	assert.Equal(t, uint32(3), samples[1].ID)
}

func TestLatency(t *testing.T) {
	dev := New(Config{Latency: 2})
	idx, err := dev.Submit(newFrame(nil))
	require.NoError(t, err)

	done, err := dev.Completed()
	require.NoError(t, err)
	assert.Zero(t, done)

	done, err = dev.Completed()
	require.NoError(t, err)
	assert.Equal(t, idx, done)
}

func TestLose(t *testing.T) {
	dev := New(Config{})
	dev.Lose()

	_, err := dev.Submit(newFrame(nil))
	assert.ErrorIs(t, err, backend.ErrDeviceLost)
	_, err = dev.Completed()
	assert.ErrorIs(t, err, backend.ErrDeviceLost)
	_, err = dev.CreateBuffer(backend.BufferDesc{Size: 4})
	assert.ErrorIs(t, err, backend.ErrDeviceLost)
}

func TestClose(t *testing.T) {
	dev := New(Config{})
	_, err := dev.CreateBuffer(backend.BufferDesc{Size: 4})
	require.NoError(t, err)
	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())

	assert.Equal(t, 0, dev.Stats().Buffers)
	_, err = dev.CreateBuffer(backend.BufferDesc{Size: 4})
	assert.ErrorIs(t, err, backend.ErrNotAvailable)
}
