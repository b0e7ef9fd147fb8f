// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import (
	"context"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/stage/backend"
	"github.com/gogpu/stage/backend/soft"
	"github.com/gogpu/stage/camera"
	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/picking"
	"github.com/gogpu/stage/resource"
)

var white = mgl32.Vec4{1, 1, 1, 1}

// recorder keeps every submitted frame.
type recorder struct {
	*soft.Device
	frames []*backend.Frame
}

func (r *recorder) Submit(f *backend.Frame) (backend.SubmissionIndex, error) {
	r.frames = append(r.frames, f)
	return r.Device.Submit(f)
}

type fixture struct {
	dev   *recorder
	reg   *resource.Registry
	cam   *camera.Camera
	picks *picking.System
	co    *Coordinator
	cube  resource.MeshHandle
}

func newFixture(t *testing.T, latency int, rcfg resource.Config, pcfg picking.Config) *fixture {
	t.Helper()
	f := &fixture{dev: &recorder{Device: soft.New(soft.Config{Latency: latency})}}
	f.reg = resource.NewRegistry(f.dev, rcfg)
	f.cam = camera.New(camera.Config{})
	require.NoError(t, f.cam.SetPerspective(mgl32.DegToRad(60), 1, 0.1, 100))
	f.cam.SetViewport(100, 100)
	f.picks = picking.NewSystem(f.reg, f.cam, pcfg)
	f.co = New(f.dev, f.reg, f.cam, f.picks)

	cube, err := f.reg.RegisterMesh(resource.Cube(1, white))
	require.NoError(t, err)
	f.cube = cube
	return f
}

func (f *fixture) run(t *testing.T) *Report {
	t.Helper()
	rep, err := f.co.RunFrame(context.Background())
	require.NoError(t, err)
	return rep
}

func TestCenterHitCornerMiss(t *testing.T) {
	f := newFixture(t, 0, resource.Config{}, picking.Config{})
	_, err := f.picks.Add(1, f.cube, geom.Identity())
	require.NoError(t, err)

	center := f.picks.Pick(50, 50)
	corner := f.picks.Pick(0, 0)
	assert.Equal(t, picking.QueryPending, center.State())

	rep := f.run(t)
	assert.Equal(t, 1, rep.Draws)
	assert.Equal(t, 2, rep.PickRequests)
	assert.Equal(t, 2, rep.Settled)
	assert.True(t, rep.OK())

	r, ok := center.Poll()
	require.True(t, ok)
	require.NoError(t, r.Err)
	assert.Equal(t, picking.EntityID(1), r.Entity)

	r, ok = corner.Poll()
	require.True(t, ok)
	assert.ErrorIs(t, r.Err, picking.ErrPickMiss)
}

func TestAnalyticCenterHitCornerMiss(t *testing.T) {
	f := newFixture(t, 0, resource.Config{}, picking.Config{Strategy: picking.StrategyAnalytic, RefineTriangles: true})
	_, err := f.picks.Add(1, f.cube, geom.Identity())
	require.NoError(t, err)

	r, ok := f.picks.Pick(50, 50).Poll()
	require.True(t, ok)
	require.NoError(t, r.Err)
	assert.Equal(t, picking.EntityID(1), r.Entity)

	r, ok = f.picks.Pick(0, 0).Poll()
	require.True(t, ok)
	assert.ErrorIs(t, r.Err, picking.ErrPickMiss)

	rep := f.run(t)
	assert.Zero(t, rep.PickRequests)
}

func TestPickResolvesOnLaterFrame(t *testing.T) {
	f := newFixture(t, 2, resource.Config{}, picking.Config{})
	_, err := f.picks.Add(1, f.cube, geom.Identity())
	require.NoError(t, err)

	var got []picking.Result
	q := f.picks.Pick(50, 50)
	q.OnResolve(func(r picking.Result) { got = append(got, r) })

	rep := f.run(t)
	assert.Equal(t, 1, rep.PickRequests)
	assert.Zero(t, rep.Settled)
	assert.Equal(t, picking.QueryIssued, q.State())

	rep = f.run(t)
	assert.Equal(t, 1, rep.Settled)
	require.Len(t, got, 1)
	assert.Equal(t, picking.EntityID(1), got[0].Entity)
}

func TestPollResolvesBetweenFrames(t *testing.T) {
	f := newFixture(t, 2, resource.Config{}, picking.Config{})
	_, err := f.picks.Add(1, f.cube, geom.Identity())
	require.NoError(t, err)

	q := f.picks.Pick(50, 50)
	rep := f.run(t)
	assert.Zero(t, rep.Settled)

	n, err := f.co.Poll()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	r, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, picking.EntityID(1), r.Entity)
}

func TestPickTimesOut(t *testing.T) {
	f := newFixture(t, 100, resource.Config{}, picking.Config{TimeoutFrames: 3})
	_, err := f.picks.Add(1, f.cube, geom.Identity())
	require.NoError(t, err)

	q := f.picks.Pick(50, 50)
	for range 3 {
		f.run(t)
		assert.Equal(t, picking.QueryIssued, q.State())
	}
	rep := f.run(t)
	assert.Equal(t, 1, rep.Settled)
	r, ok := q.Poll()
	require.True(t, ok)
	assert.ErrorIs(t, r.Err, picking.ErrTimeout)
}

func TestTimedOutPickReadbackIsReleased(t *testing.T) {
	f := newFixture(t, 4, resource.Config{}, picking.Config{TimeoutFrames: 1})
	_, err := f.picks.Add(1, f.cube, geom.Identity())
	require.NoError(t, err)

	q := f.picks.Pick(50, 50)
	f.run(t)
	f.run(t)
	r, ok := q.Poll()
	require.True(t, ok)
	assert.ErrorIs(t, r.Err, picking.ErrTimeout)
	assert.Equal(t, 1, f.dev.Stats().PickSets)

	for range 4 {
		f.run(t)
	}
	assert.Zero(t, f.dev.Stats().PickSets)
	assert.Zero(t, f.picks.Outstanding())
}

func TestDrawOrder(t *testing.T) {
	f := newFixture(t, 0, resource.Config{}, picking.Config{})
	_, err := f.picks.Add(1, f.cube, geom.Identity())
	require.NoError(t, err)
	require.NoError(t, f.co.AddDrawable(2, Drawable{Mesh: f.cube, Order: 5}))
	require.NoError(t, f.co.AddDrawable(3, Drawable{Mesh: f.cube, Order: -1}))
	require.NoError(t, f.co.AddDrawable(4, Drawable{Mesh: f.cube}))
	_, err = f.picks.Add(5, f.cube, geom.Identity())
	require.NoError(t, err)
	require.NoError(t, f.co.AddDrawable(6, Drawable{Mesh: f.cube, Order: 5}))

	for range 3 {
		f.run(t)
	}
	require.Len(t, f.dev.frames, 3)
	for _, fr := range f.dev.frames {
		var order []uint64
		for _, d := range fr.Draws {
			order = append(order, d.Entity)
		}
		assert.Equal(t, []uint64{3, 1, 5, 4, 2, 6}, order)
	}

	pickable := 0
	for _, d := range f.dev.frames[0].Draws {
		if d.PickID != 0 {
			pickable++
		}
	}
	assert.Equal(t, 2, pickable)
}

func TestPickableAndDrawableRace(t *testing.T) {
	f := newFixture(t, 0, resource.Config{}, picking.Config{})

	const ids = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins = map[picking.EntityID]int{}
	)
	for i := range ids {
		id := picking.EntityID(i + 1)
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := f.co.AddPickable(id, f.cube, geom.Identity()); err == nil {
				mu.Lock()
				wins[id]++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, picking.ErrDuplicateEntity)
			}
		}()
		go func() {
			defer wg.Done()
			if err := f.co.AddDrawable(id, Drawable{Mesh: f.cube}); err == nil {
				mu.Lock()
				wins[id]++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, picking.ErrDuplicateEntity)
			}
		}()
	}
	wg.Wait()

	for i := range ids {
		assert.Equal(t, 1, wins[picking.EntityID(i+1)], "entity %d", i+1)
	}
	assert.Equal(t, ids, len(f.picks.Entities())+f.co.Drawables())
	info, err := f.reg.Mesh(f.cube)
	require.NoError(t, err)
	assert.Equal(t, ids, info.Refs)
}

func TestAddDrawableDuplicate(t *testing.T) {
	f := newFixture(t, 0, resource.Config{}, picking.Config{})
	_, err := f.picks.Add(1, f.cube, geom.Identity())
	require.NoError(t, err)

	assert.ErrorIs(t, f.co.AddDrawable(1, Drawable{Mesh: f.cube}), picking.ErrDuplicateEntity)
	require.NoError(t, f.co.AddDrawable(2, Drawable{Mesh: f.cube}))
	assert.ErrorIs(t, f.co.AddDrawable(2, Drawable{Mesh: f.cube}), picking.ErrDuplicateEntity)
	assert.ErrorIs(t, f.co.RemoveDrawable(9), ErrUnknownDrawable)

	info, err := f.reg.Mesh(f.cube)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Refs)

	require.NoError(t, f.co.RemoveDrawable(2))
	info, err = f.reg.Mesh(f.cube)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Refs)
}

func TestTexturedDrawable(t *testing.T) {
	f := newFixture(t, 0, resource.Config{}, picking.Config{})
	tex, err := f.reg.RegisterTexture(resource.TextureData{
		Width:  2,
		Height: 2,
		Format: resource.TextureFormatRGBA8,
		Pixels: make([]byte, 16),
	})
	require.NoError(t, err)
	require.NoError(t, f.co.AddDrawable(1, Drawable{Mesh: f.cube, Texture: tex}))

	f.run(t)
	d := f.dev.frames[0].Draws[0]
	require.NotNil(t, d.Texture)
	assert.Equal(t, uint32(2), d.Texture.Width)
}

func TestStaleHandleIsSkipped(t *testing.T) {
	f := newFixture(t, 0, resource.Config{}, picking.Config{})
	other, err := f.reg.RegisterMesh(resource.Quad(1, white))
	require.NoError(t, err)
	require.NoError(t, f.co.AddDrawable(1, Drawable{Mesh: f.cube}))
	require.NoError(t, f.co.AddDrawable(2, Drawable{Mesh: other}))

	rep := f.run(t)
	assert.Equal(t, 2, rep.Draws)

	// Drop the reference the drawable holds; the mesh is destroyed once
	// frame 1 has completed.
	require.NoError(t, f.reg.Release(other))

	rep = f.run(t)
	assert.Equal(t, 1, rep.Draws)
	require.Len(t, rep.Diagnostics, 1)
	assert.Equal(t, picking.EntityID(2), rep.Diagnostics[0].Entity)
	assert.ErrorIs(t, rep.Diagnostics[0].Err, resource.ErrStaleHandle)
	assert.False(t, rep.OK())

	require.NoError(t, f.co.RemoveDrawable(2))
}

func TestOutOfBudgetIsReported(t *testing.T) {
	f := newFixture(t, 0, resource.Config{BudgetBytes: 1500}, picking.Config{})
	second, err := f.reg.RegisterMesh(resource.Cube(2, white))
	require.NoError(t, err)
	require.NoError(t, f.co.AddDrawable(1, Drawable{Mesh: f.cube}))
	require.NoError(t, f.co.AddDrawable(2, Drawable{Mesh: second}))

	rep := f.run(t)
	assert.Equal(t, 1, rep.Draws)
	require.Len(t, rep.UploadErrors, 1)
	assert.ErrorIs(t, rep.UploadErrors[0], resource.ErrOutOfBudget)
	require.Len(t, rep.Diagnostics, 1)
	assert.ErrorIs(t, rep.Diagnostics[0].Err, resource.ErrNotResident)
	assert.LessOrEqual(t, rep.Resources.ResidentBytes, uint64(1500))
}

func TestDeviceLost(t *testing.T) {
	f := newFixture(t, 5, resource.Config{}, picking.Config{})
	_, err := f.picks.Add(1, f.cube, geom.Identity())
	require.NoError(t, err)

	issued := f.picks.Pick(50, 50)
	f.run(t)
	queued := f.picks.Pick(10, 10)

	f.dev.Lose()
	_, err = f.co.RunFrame(context.Background())
	require.ErrorIs(t, err, backend.ErrDeviceLost)
	assert.ErrorIs(t, f.co.Lost(), backend.ErrDeviceLost)

	for _, q := range []*picking.Query{issued, queued} {
		r, ok := q.Poll()
		require.True(t, ok)
		assert.ErrorIs(t, r.Err, backend.ErrDeviceLost)
	}
	assert.False(t, f.reg.Valid(f.cube))

	_, err = f.co.RunFrame(context.Background())
	assert.ErrorIs(t, err, backend.ErrDeviceLost)
	_, err = f.co.Poll()
	assert.ErrorIs(t, err, backend.ErrDeviceLost)
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t, 0, resource.Config{}, picking.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.co.RunFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.co.Frame())
}
