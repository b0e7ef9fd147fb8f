// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package picking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/stage/backend"
	"github.com/gogpu/stage/camera"
	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/resource"
)

type fixture struct {
	reg  *resource.Registry
	cam  *camera.Camera
	sys  *System
	cube resource.MeshHandle
	now  time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		reg: resource.NewRegistry(nil, resource.Config{}),
		cam: camera.New(camera.Config{}),
		now: time.Unix(1000, 0),
	}
	f.cam.SetViewport(100, 100)
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return f.now }
	}
	f.sys = NewSystem(f.reg, f.cam, cfg)
	cube, err := f.reg.RegisterMesh(resource.Cube(1, mgl32.Vec4{1, 1, 1, 1}))
	require.NoError(t, err)
	f.cube = cube
	return f
}

func TestIDPoolReusesLowest(t *testing.T) {
	p := newIDPool()
	for want := uint32(1); want <= 4; want++ {
		id, ok := p.take()
		require.True(t, ok)
		assert.Equal(t, want, id)
	}
	p.put(3)
	p.put(1)
	p.put(1)
	p.put(0)

	id, _ := p.take()
	assert.Equal(t, uint32(1), id)
	id, _ = p.take()
	assert.Equal(t, uint32(3), id)
	id, _ = p.take()
	assert.Equal(t, uint32(5), id)
}

func TestAddRemove(t *testing.T) {
	f := newFixture(t, Config{})

	a, err := f.sys.Add(10, f.cube, geom.Identity())
	require.NoError(t, err)
	b, err := f.sys.Add(11, f.cube, geom.Translation(3, 0, 0))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotZero(t, a)
	assert.NotZero(t, b)

	info, _ := f.reg.Mesh(f.cube)
	assert.Equal(t, 2, info.Refs)

	_, err = f.sys.Add(10, f.cube, geom.Identity())
	assert.ErrorIs(t, err, ErrDuplicateEntity)

	require.NoError(t, f.sys.Remove(10))
	assert.ErrorIs(t, f.sys.Remove(10), ErrUnknownEntity)
	info, _ = f.reg.Mesh(f.cube)
	assert.Equal(t, 1, info.Refs)

	// The freed pick-id is reused first.
	c, err := f.sys.Add(12, f.cube, geom.Identity())
	require.NoError(t, err)
	assert.Equal(t, a, c)

	ents := f.sys.Entities()
	require.Len(t, ents, 2)
	assert.Equal(t, EntityID(11), ents[0].ID)
	assert.Equal(t, EntityID(12), ents[1].ID)
}

func TestAddStaleMesh(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.sys.Add(1, resource.MeshHandle{}, geom.Identity())
	assert.ErrorIs(t, err, resource.ErrStaleHandle)
	assert.Equal(t, 0, f.sys.Len())

	// The failed Add did not leak its pick-id.
	id, err := f.sys.Add(2, f.cube, geom.Identity())
	require.NoError(t, err)
	assert.Equal(t, PickID(1), id)
}

func TestAnalyticCenterAndCorner(t *testing.T) {
	for _, refine := range []bool{false, true} {
		f := newFixture(t, Config{Strategy: StrategyAnalytic, RefineTriangles: refine})
		_, err := f.sys.Add(7, f.cube, geom.Identity())
		require.NoError(t, err)

		q := f.sys.Pick(50, 50)
		r, ok := q.Poll()
		require.True(t, ok, "analytic query must resolve immediately")
		require.NoError(t, r.Err)
		assert.Equal(t, EntityID(7), r.Entity)
		assert.InDelta(t, 4.4, r.Distance, 1e-3)

		r, ok = f.sys.Pick(0, 0).Poll()
		require.True(t, ok)
		assert.ErrorIs(t, r.Err, ErrPickMiss)
		assert.False(t, r.Hit())
	}
}

func TestAnalyticOrderIndependence(t *testing.T) {
	ray := geom.Ray{Origin: mgl32.Vec3{2, 0, 10}, Dir: mgl32.Vec3{0, 0, -1}}
	for _, order := range [][]EntityID{{1, 2}, {2, 1}} {
		f := newFixture(t, Config{})
		pos := map[EntityID]float32{1: -2, 2: 2}
		for _, id := range order {
			_, err := f.sys.Add(id, f.cube, geom.Translation(pos[id], 0, 0))
			require.NoError(t, err)
		}
		r := f.sys.PickRay(context.Background(), ray)
		require.NoError(t, r.Err)
		assert.Equal(t, EntityID(2), r.Entity, "order %v", order)
	}
}

func TestAnalyticNearestWins(t *testing.T) {
	ray := geom.Ray{Origin: mgl32.Vec3{0, 0, 10}, Dir: mgl32.Vec3{0, 0, -1}}
	for _, order := range [][]EntityID{{1, 2}, {2, 1}} {
		f := newFixture(t, Config{RefineTriangles: true})
		z := map[EntityID]float32{1: -3, 2: 0}
		for _, id := range order {
			_, err := f.sys.Add(id, f.cube, geom.Translation(0, 0, z[id]))
			require.NoError(t, err)
		}
		r := f.sys.PickRay(context.Background(), ray)
		require.NoError(t, r.Err)
		assert.Equal(t, EntityID(2), r.Entity, "order %v", order)
		assert.InDelta(t, 9.5, r.Distance, 1e-4)
	}
}

func TestAnalyticTieGoesToFirstRegistered(t *testing.T) {
	f := newFixture(t, Config{})
	_, _ = f.sys.Add(9, f.cube, geom.Identity())
	_, _ = f.sys.Add(3, f.cube, geom.Identity())
	r := f.sys.PickRay(context.Background(), geom.Ray{Origin: mgl32.Vec3{0, 0, 5}, Dir: mgl32.Vec3{0, 0, -1}})
	require.NoError(t, r.Err)
	assert.Equal(t, EntityID(9), r.Entity)
}

func TestAnalyticTieMeasuredFromNearest(t *testing.T) {
	box := func(id EntityID, seq uint64, top float32) Candidate {
		return Candidate{
			Entity: Entity{ID: id, Seq: seq, Transform: geom.Identity()},
			Bounds: geom.AABB{Min: mgl32.Vec3{-1, -1, -2}, Max: mgl32.Vec3{1, 1, top}},
		}
	}
	// Hit distances 1.16, 1.08 and 1.0. Only the second is within
	// epsilon of the nearest, so it wins over the later nearest box.
	cands := []Candidate{box(1, 1, 8.84), box(2, 2, 8.92), box(3, 3, 9)}
	ray := geom.Ray{Origin: mgl32.Vec3{0, 0, 10}, Dir: mgl32.Vec3{0, 0, -1}}

	hit, ok, err := Analytic{TieEpsilon: 0.1}.Pick(context.Background(), ray, cands)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, EntityID(2), hit.Entity.ID)
	assert.InDelta(t, 1.08, hit.Distance, 1e-4)
}

func TestAnalyticRefineMissesInsideBox(t *testing.T) {
	// A thin diagonal triangle leaves most of its box empty.
	reg := resource.NewRegistry(nil, resource.Config{})
	tri, err := reg.RegisterMesh(resource.MeshData{Vertices: []resource.Vertex{
		{Position: mgl32.Vec3{-1, -1, 0}},
		{Position: mgl32.Vec3{1, -1, 0}},
		{Position: mgl32.Vec3{-1, 1, 0}},
	}})
	require.NoError(t, err)
	cam := camera.New(camera.Config{})
	cam.SetViewport(100, 100)

	ray := geom.Ray{Origin: mgl32.Vec3{0.8, 0.8, 5}, Dir: mgl32.Vec3{0, 0, -1}}
	coarse := NewSystem(reg, cam, Config{})
	_, _ = coarse.Add(1, tri, geom.Identity())
	assert.True(t, coarse.PickRay(context.Background(), ray).Hit())

	fine := NewSystem(reg, cam, Config{RefineTriangles: true})
	_, _ = fine.Add(1, tri, geom.Identity())
	assert.ErrorIs(t, fine.PickRay(context.Background(), ray).Err, ErrPickMiss)
}

func reader(ids map[backend.SubmissionIndex][]uint32) ReadFunc {
	return func(sub backend.SubmissionIndex) ([]backend.PickSample, error) {
		var out []backend.PickSample
		for _, id := range ids[sub] {
			out = append(out, backend.PickSample{ID: id})
		}
		return out, nil
	}
}

func TestIDBufferFlow(t *testing.T) {
	f := newFixture(t, Config{})
	pid, err := f.sys.Add(42, f.cube, geom.Identity())
	require.NoError(t, err)

	hitQ := f.sys.Pick(50.7, 50.2)
	missQ := f.sys.Pick(1, 1)
	assert.Equal(t, QueryPending, hitQ.State())

	var got []Result
	hitQ.OnResolve(func(r Result) { got = append(got, r) })

	reqs := f.sys.BeginFrame(1)
	require.Equal(t, []backend.PickRequest{{X: 50, Y: 50}, {X: 1, Y: 1}}, reqs)
	assert.Equal(t, QueryIssued, hitQ.State())
	f.sys.Submitted(1, 1)

	n, err := f.sys.Service(0, reader(nil))
	require.NoError(t, err)
	assert.Zero(t, n)
	_, ok := hitQ.Poll()
	assert.False(t, ok)

	// The entity is removed after issue; the frame's table still names it.
	require.NoError(t, f.sys.Remove(42))

	n, err = f.sys.Service(1, reader(map[backend.SubmissionIndex][]uint32{1: {pid, 0}}))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	r, ok := hitQ.Poll()
	require.True(t, ok)
	require.NoError(t, r.Err)
	assert.Equal(t, EntityID(42), r.Entity)
	require.Len(t, got, 1)
	assert.Equal(t, EntityID(42), got[0].Entity)

	r, _ = missQ.Poll()
	assert.ErrorIs(t, r.Err, ErrPickMiss)

	// Late callbacks run immediately.
	late := false
	hitQ.OnResolve(func(Result) { late = true })
	assert.True(t, late)
	assert.Zero(t, f.sys.Outstanding())
}

func TestPickOutsideViewport(t *testing.T) {
	f := newFixture(t, Config{})
	r, ok := f.sys.Pick(-1, 10).Poll()
	require.True(t, ok)
	assert.ErrorIs(t, r.Err, ErrPickMiss)
	assert.Nil(t, f.sys.BeginFrame(1))

	f.cam = camera.New(camera.Config{})
	sys := NewSystem(f.reg, f.cam, Config{})
	r, _ = sys.Pick(1, 1).Poll()
	assert.ErrorIs(t, r.Err, ErrNoViewport)
}

func TestCancelDiscardsReadback(t *testing.T) {
	f := newFixture(t, Config{})
	pid, _ := f.sys.Add(1, f.cube, geom.Identity())

	q := f.sys.Pick(50, 50)
	called := false
	q.OnResolve(func(Result) { called = true })
	f.sys.BeginFrame(1)
	f.sys.Submitted(1, 1)

	assert.True(t, q.Cancel())
	assert.False(t, q.Cancel())
	select {
	case <-q.Done():
	default:
		t.Fatal("Done not closed after Cancel")
	}

	n, err := f.sys.Service(1, reader(map[backend.SubmissionIndex][]uint32{1: {pid}}))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, called)
	r, _ := q.Poll()
	assert.ErrorIs(t, r.Err, ErrCancelled)
	assert.Equal(t, QueryCancelled, q.State())
}

func TestCancelBeforeIssue(t *testing.T) {
	f := newFixture(t, Config{})
	q := f.sys.Pick(50, 50)
	q.Cancel()
	assert.Nil(t, f.sys.BeginFrame(1))
	assert.Zero(t, f.sys.Outstanding())
}

func TestTimeoutByFrames(t *testing.T) {
	f := newFixture(t, Config{TimeoutFrames: 3, Timeout: time.Hour})
	q := f.sys.Pick(50, 50)
	f.sys.BeginFrame(1)
	f.sys.Submitted(1, 1)

	for frame := uint64(2); frame <= 3; frame++ {
		f.sys.BeginFrame(frame)
		_, _ = f.sys.Service(0, reader(nil))
		_, ok := q.Poll()
		require.False(t, ok, "frame %d", frame)
	}
	f.sys.BeginFrame(4)
	n, err := f.sys.Service(0, reader(nil))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	r, _ := q.Poll()
	assert.ErrorIs(t, r.Err, ErrTimeout)
}

func TestTimeoutByClock(t *testing.T) {
	f := newFixture(t, Config{Timeout: time.Second, TimeoutFrames: 1000})
	q := f.sys.Pick(50, 50)

	f.now = f.now.Add(500 * time.Millisecond)
	_, _ = f.sys.Service(0, reader(nil))
	_, ok := q.Poll()
	require.False(t, ok)

	f.now = f.now.Add(time.Second)
	_, _ = f.sys.Service(0, reader(nil))
	r, ok := q.Poll()
	require.True(t, ok)
	assert.ErrorIs(t, r.Err, ErrTimeout)
	assert.Nil(t, f.sys.BeginFrame(1))
}

func TestTimeoutKeepsSampleSlots(t *testing.T) {
	f := newFixture(t, Config{Timeout: time.Second, TimeoutFrames: 1000})
	pid, err := f.sys.Add(7, f.cube, geom.Identity())
	require.NoError(t, err)

	older := f.sys.Pick(10, 10)
	f.now = f.now.Add(900 * time.Millisecond)
	newer := f.sys.Pick(50, 50)
	require.Len(t, f.sys.BeginFrame(1), 2)
	f.sys.Submitted(1, 1)

	// The older query times out before its submission completes.
	f.now = f.now.Add(200 * time.Millisecond)
	n, err := f.sys.Service(0, reader(nil))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	r, _ := older.Poll()
	assert.ErrorIs(t, r.Err, ErrTimeout)
	assert.Equal(t, 1, f.sys.Outstanding())

	n, err = f.sys.Service(1, reader(map[backend.SubmissionIndex][]uint32{1: {0, pid}}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	r, ok := newer.Poll()
	require.True(t, ok)
	require.NoError(t, r.Err)
	assert.Equal(t, EntityID(7), r.Entity)
}

func TestTimedOutBatchIsStillRead(t *testing.T) {
	f := newFixture(t, Config{TimeoutFrames: 2, Timeout: time.Hour})
	q := f.sys.Pick(50, 50)
	f.sys.BeginFrame(1)
	f.sys.Submitted(1, 1)

	reads := map[backend.SubmissionIndex]int{}
	counting := func(sub backend.SubmissionIndex) ([]backend.PickSample, error) {
		reads[sub]++
		return []backend.PickSample{{ID: 5}}, nil
	}
	for frame := uint64(2); frame <= 4; frame++ {
		f.sys.BeginFrame(frame)
		_, err := f.sys.Service(0, counting)
		require.NoError(t, err)
	}
	r, ok := q.Poll()
	require.True(t, ok)
	assert.ErrorIs(t, r.Err, ErrTimeout)
	assert.Zero(t, f.sys.Outstanding())
	assert.Empty(t, reads)

	// The readback is still collected once so the device can free it.
	n, err := f.sys.Service(1, counting)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = f.sys.Service(1, counting)
	require.NoError(t, err)
	assert.Equal(t, map[backend.SubmissionIndex]int{1: 1}, reads)
	r, _ = q.Poll()
	assert.ErrorIs(t, r.Err, ErrTimeout)
}

func TestReadErrorAndFailAll(t *testing.T) {
	f := newFixture(t, Config{})
	q1 := f.sys.Pick(10, 10)
	f.sys.BeginFrame(1)
	f.sys.Submitted(1, 1)
	q2 := f.sys.Pick(20, 20)

	failing := func(backend.SubmissionIndex) ([]backend.PickSample, error) {
		return nil, backend.ErrDeviceLost
	}
	_, err := f.sys.Service(1, failing)
	assert.ErrorIs(t, err, backend.ErrDeviceLost)
	r, _ := q1.Poll()
	assert.ErrorIs(t, r.Err, backend.ErrDeviceLost)

	f.sys.FailAll(backend.ErrDeviceLost)
	r, ok := q2.Poll()
	require.True(t, ok)
	assert.True(t, errors.Is(r.Err, backend.ErrDeviceLost))
}

func TestSubmitFailed(t *testing.T) {
	f := newFixture(t, Config{})
	q := f.sys.Pick(10, 10)
	f.sys.BeginFrame(1)
	boom := errors.New("boom")
	f.sys.SubmitFailed(1, boom)
	r, ok := q.Poll()
	require.True(t, ok)
	assert.ErrorIs(t, r.Err, boom)
}

func TestWaitFromOtherGoroutine(t *testing.T) {
	f := newFixture(t, Config{})
	pid, _ := f.sys.Add(5, f.cube, geom.Identity())
	q := f.sys.Pick(50, 50)

	var wg sync.WaitGroup
	var got Result
	wg.Add(1)
	go func() {
		defer wg.Done()
		got, _ = q.Wait(context.Background())
	}()

	f.sys.BeginFrame(1)
	f.sys.Submitted(1, 1)
	_, _ = f.sys.Service(1, reader(map[backend.SubmissionIndex][]uint32{1: {pid}}))
	wg.Wait()
	assert.Equal(t, EntityID(5), got.Entity)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.sys.Pick(50, 50).Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("Analytic")
	require.NoError(t, err)
	assert.Equal(t, StrategyAnalytic, s)
	s, err = ParseStrategy("idbuffer")
	require.NoError(t, err)
	assert.Equal(t, StrategyIDBuffer, s)
	_, err = ParseStrategy("psychic")
	assert.Error(t, err)
	assert.Equal(t, "analytic", StrategyAnalytic.String())
}
