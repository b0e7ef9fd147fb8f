// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package stage

import (
	"context"
	"errors"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/stage/backend"
	"github.com/gogpu/stage/camera"
	"github.com/gogpu/stage/frame"
	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/picking"
	"github.com/gogpu/stage/resource"
)

// Stage owns the registry, camera, picking system and frame coordinator
// for one device. Registration, camera control and Pick may be called
// from any goroutine; Frame and Poll belong to the frame goroutine.
type Stage struct {
	dev       backend.Device
	ownDevice bool

	reg   *resource.Registry
	cam   *camera.Camera
	picks *picking.System
	co    *frame.Coordinator

	closeOnce sync.Once
	closeErr  error
}

// New creates a Stage on dev. When dev is nil the device named by the
// configuration is opened, or the best registered one, and the Stage
// closes it on Close.
func New(dev backend.Device, opts ...Option) (*Stage, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	own := false
	if dev == nil {
		var err error
		dev, err = openDevice(o)
		if err != nil {
			return nil, err
		}
		own = true
	}

	budget := o.budgetBytes
	if budget == 0 {
		budget = o.cfg.budgetBytes()
	}

	s := &Stage{dev: dev, ownDevice: own}
	s.reg = resource.NewRegistry(dev, resource.Config{BudgetBytes: budget})
	s.cam = camera.New(o.cfg.cameraConfig())
	cc := o.cfg.Camera
	if err := s.cam.SetPerspective(mgl32.DegToRad(cc.FovDeg), o.cfg.aspect(), cc.Near, cc.Far); err != nil {
		s.closeDevice()
		return nil, err
	}
	s.cam.SetViewport(o.cfg.Viewport.Width, o.cfg.Viewport.Height)

	pcfg := o.cfg.pickingConfig()
	pcfg.Clock = o.clock
	s.picks = picking.NewSystem(s.reg, s.cam, pcfg)
	s.co = frame.New(dev, s.reg, s.cam, s.picks)

	Logger().Info("stage: created",
		"device", dev.Name(),
		"budget", budget,
		"picking", pcfg.Strategy.String())
	return s, nil
}

func openDevice(o options) (backend.Device, error) {
	bo := backend.Options{Provider: o.provider, Latency: o.cfg.Device.Latency}
	if o.cfg.Device.Name != "" {
		return backend.Open(o.cfg.Device.Name, bo)
	}
	return backend.OpenDefault(bo)
}

// RegisterMesh registers a mesh. It is uploaded by the next Frame.
func (s *Stage) RegisterMesh(data resource.MeshData) (resource.MeshHandle, error) {
	return s.reg.RegisterMesh(data)
}

// RegisterTexture registers a texture. It is uploaded by the next Frame.
func (s *Stage) RegisterTexture(data resource.TextureData) (resource.TextureHandle, error) {
	return s.reg.RegisterTexture(data)
}

// UpdateMesh stages new vertex or index data for the next Frame.
func (s *Stage) UpdateMesh(h resource.MeshHandle, patch resource.MeshPatch) error {
	return s.reg.UpdateMesh(h, patch)
}

// UpdateTexture stages new pixels for the next Frame.
func (s *Stage) UpdateTexture(h resource.TextureHandle, patch resource.TexturePatch) error {
	return s.reg.UpdateTexture(h, patch)
}

// Acquire takes a reference on a resource.
func (s *Stage) Acquire(h resource.AnyHandle) error {
	return s.reg.Acquire(h)
}

// Release drops a reference. At zero the resource is destroyed once the
// device is done with it.
func (s *Stage) Release(h resource.AnyHandle) error {
	return s.reg.Release(h)
}

// SetPerspective switches to a perspective projection. fovYDeg is the
// vertical field of view in degrees.
func (s *Stage) SetPerspective(fovYDeg, aspect, near, far float32) error {
	return s.cam.SetPerspective(mgl32.DegToRad(fovYDeg), aspect, near, far)
}

// SetOrthographic switches to an orthographic projection.
func (s *Stage) SetOrthographic(b camera.OrthoBounds) error {
	return s.cam.SetOrthographic(b)
}

// Orbit rotates the camera around its pivot by angles in degrees. Pitch
// is clamped short of vertical.
func (s *Stage) Orbit(dYawDeg, dPitchDeg float32) {
	s.cam.Orbit(mgl32.DegToRad(dYawDeg), mgl32.DegToRad(dPitchDeg))
}

// Pan moves the camera and its pivot in the view plane.
func (s *Stage) Pan(dx, dy float32) {
	s.cam.Pan(dx, dy)
}

// Zoom moves the camera toward the pivot.
func (s *Stage) Zoom(delta float32) {
	s.cam.Zoom(delta)
}

// LookAt places the camera at eye looking at target.
func (s *Stage) LookAt(eye, target mgl32.Vec3) {
	s.cam.LookAt(eye, target)
}

// Resize sets the viewport. The perspective aspect follows it.
func (s *Stage) Resize(width, height int) {
	s.cam.SetViewport(width, height)
}

// AddPickable makes an entity pickable and draws it every frame.
func (s *Stage) AddPickable(id picking.EntityID, mesh resource.MeshHandle, t geom.Transform) error {
	_, err := s.co.AddPickable(id, mesh, t)
	return err
}

// RemovePickable removes a pickable entity.
func (s *Stage) RemovePickable(id picking.EntityID) error {
	return s.picks.Remove(id)
}

// SetPickableTransform moves a pickable entity.
func (s *Stage) SetPickableTransform(id picking.EntityID, t geom.Transform) error {
	return s.picks.SetTransform(id, t)
}

// AddDrawable adds an entity that is drawn but never picked.
func (s *Stage) AddDrawable(id picking.EntityID, d frame.Drawable) error {
	return s.co.AddDrawable(id, d)
}

// RemoveDrawable removes a drawable entity.
func (s *Stage) RemoveDrawable(id picking.EntityID) error {
	return s.co.RemoveDrawable(id)
}

// Pick starts a pick at window coordinates, origin top-left. With the
// analytic strategy the query is already resolved; otherwise it resolves
// during a later Frame or Poll.
func (s *Stage) Pick(x, y float32) *picking.Query {
	return s.picks.Pick(x, y)
}

// Frame runs one frame: uploads, draw list, submission and pick servicing.
func (s *Stage) Frame(ctx context.Context) (*frame.Report, error) {
	return s.co.RunFrame(ctx)
}

// Poll resolves finished picks without running a frame.
func (s *Stage) Poll() (int, error) {
	return s.co.Poll()
}

// Stats reports resource usage.
func (s *Stage) Stats() resource.Stats {
	return s.reg.Stats()
}

// Device returns the device the Stage renders with.
func (s *Stage) Device() backend.Device { return s.dev }

// Camera returns the camera.
func (s *Stage) Camera() *camera.Camera { return s.cam }

// Registry returns the resource registry.
func (s *Stage) Registry() *resource.Registry { return s.reg }

// Picking returns the picking system.
func (s *Stage) Picking() *picking.System { return s.picks }

// Coordinator returns the frame coordinator.
func (s *Stage) Coordinator() *frame.Coordinator { return s.co }

// Close fails outstanding picks, frees every resource and closes the
// device if New opened it. Close is idempotent.
func (s *Stage) Close() error {
	s.closeOnce.Do(func() {
		s.picks.FailAll(ErrClosed)
		s.reg.Close()
		s.closeErr = s.closeDevice()
		Logger().Info("stage: closed")
	})
	return s.closeErr
}

func (s *Stage) closeDevice() error {
	if !s.ownDevice {
		return nil
	}
	if err := s.dev.Close(); err != nil && !errors.Is(err, backend.ErrDeviceLost) {
		return err
	}
	return nil
}
