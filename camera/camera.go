// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package camera implements an orbit camera with lazily recomputed view
// and projection matrices.
//
// Conventions: right-handed world, Y up, the camera looks down its local
// -Z axis. Projection matrices follow OpenGL clip space (Z in [-1, 1]);
// backends with a [0, 1] depth range apply their own correction.
//
// The camera orbits a pivot point. Yaw rotates about world +Y, pitch
// raises the eye above the pivot and is clamped to +-MaxPitch so the view
// never flips over the pole.
package camera

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/stage/geom"
)

// ErrInvalidProjection is returned for projection parameters that do not
// describe a usable frustum or box.
var ErrInvalidProjection = errors.New("camera: invalid projection")

// Default camera configuration.
const (
	DefaultMaxPitchDeg = 89
	DefaultMinDistance = 0.01
	DefaultFovYDeg     = 60
	DefaultNear        = 0.1
	DefaultFar         = 100
	DefaultDistance    = 5
)

// Kind selects the projection model.
type Kind uint8

const (
	// Perspective is a symmetric frustum.
	Perspective Kind = iota
	// Orthographic is an axis-aligned box.
	Orthographic
)

// String returns the projection name.
func (k Kind) String() string {
	switch k {
	case Perspective:
		return "perspective"
	case Orthographic:
		return "orthographic"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// PerspectiveParams describes a perspective frustum. FovY is in radians.
type PerspectiveParams struct {
	FovY   float32
	Aspect float32
	Near   float32
	Far    float32
}

// OrthoBounds describes an orthographic view volume in view space.
type OrthoBounds struct {
	Left, Right float32
	Bottom, Top float32
	Near, Far   float32
}

// Config holds the camera limits. Zero fields take the defaults.
type Config struct {
	// MaxPitch is the pitch limit in radians.
	MaxPitch float32

	// MinDistance is the closest the eye may get to the pivot.
	MinDistance float32
}

// Camera is an orbit camera. It is safe for concurrent use; the cached
// matrices are recomputed on first read after a change.
type Camera struct {
	mu sync.Mutex

	maxPitch    float32
	minDistance float32

	pivot    mgl32.Vec3
	yaw      float32
	pitch    float32
	distance float32

	kind  Kind
	persp PerspectiveParams
	ortho OrthoBounds

	viewportW, viewportH int

	view       mgl32.Mat4
	proj       mgl32.Mat4
	viewDirty  bool
	projDirty  bool
	viewBuilds int
	projBuilds int
}

// New returns a perspective camera 5 units in front of the origin looking
// down -Z, with a 60 degree vertical field of view and square aspect.
func New(cfg Config) *Camera {
	if cfg.MaxPitch <= 0 || cfg.MaxPitch >= math32.Pi/2 {
		cfg.MaxPitch = mgl32.DegToRad(DefaultMaxPitchDeg)
	}
	if cfg.MinDistance <= 0 {
		cfg.MinDistance = DefaultMinDistance
	}
	return &Camera{
		maxPitch:    cfg.MaxPitch,
		minDistance: cfg.MinDistance,
		distance:    DefaultDistance,
		kind:        Perspective,
		persp: PerspectiveParams{
			FovY:   mgl32.DegToRad(DefaultFovYDeg),
			Aspect: 1,
			Near:   DefaultNear,
			Far:    DefaultFar,
		},
		viewDirty: true,
		projDirty: true,
	}
}

// SetPerspective switches to a perspective projection. fovY is in radians.
func (c *Camera) SetPerspective(fovY, aspect, near, far float32) error {
	p := PerspectiveParams{FovY: fovY, Aspect: aspect, Near: near, Far: far}
	if err := p.validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kind = Perspective
	c.persp = p
	c.projDirty = true
	return nil
}

// SetOrthographic switches to an orthographic projection.
func (c *Camera) SetOrthographic(b OrthoBounds) error {
	if err := b.validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kind = Orthographic
	c.ortho = b
	c.projDirty = true
	return nil
}

// SetViewport records the target size in pixels. A perspective camera
// adopts width/height as its aspect ratio.
func (c *Camera) SetViewport(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewportW, c.viewportH = width, height
	if c.kind == Perspective {
		c.persp.Aspect = float32(width) / float32(height)
		c.projDirty = true
	}
}

// Viewport returns the size recorded by SetViewport.
func (c *Camera) Viewport() (width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewportW, c.viewportH
}

// Orbit rotates the eye around the pivot. Angles are in radians; the
// resulting pitch is clamped to +-MaxPitch.
func (c *Camera) Orbit(dYaw, dPitch float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.yaw = wrapAngle(c.yaw + dYaw)
	c.pitch = mgl32.Clamp(c.pitch+dPitch, -c.maxPitch, c.maxPitch)
	c.viewDirty = true
}

// Pan moves the pivot, and the eye with it, along the camera's right and
// up axes by world-space amounts dx and dy.
func (c *Camera) Pan(dx, dy float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.orientation()
	right := q.Rotate(mgl32.Vec3{1, 0, 0})
	up := q.Rotate(mgl32.Vec3{0, 1, 0})
	c.pivot = c.pivot.Add(right.Mul(dx)).Add(up.Mul(dy))
	c.viewDirty = true
}

// Zoom dollies the eye toward the pivot by delta. Negative values move it
// away. The distance never drops below MinDistance.
func (c *Camera) Zoom(delta float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.distance = math32.Max(c.distance-delta, c.minDistance)
	c.viewDirty = true
}

// SetPivot moves the orbit center without changing the eye's angles or
// distance.
func (c *Camera) SetPivot(p mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pivot = p
	c.viewDirty = true
}

// SetDistance sets the eye-to-pivot distance, clamped to MinDistance.
func (c *Camera) SetDistance(d float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.distance = math32.Max(d, c.minDistance)
	c.viewDirty = true
}

// LookAt places the eye at eye looking at target, which becomes the new
// pivot. Roll is always zero.
func (c *Camera) LookAt(eye, target mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	offset := eye.Sub(target)
	d := offset.Len()
	c.pivot = target
	c.distance = math32.Max(d, c.minDistance)
	if d > 0 {
		c.setAngles(offset.Mul(-1 / d))
	}
	c.viewDirty = true
}

// SetPose places the eye at position with the given orientation, keeping
// the current distance: the pivot moves to the point that distance ahead
// of the eye. Roll in orientation is discarded.
func (c *Camera) SetPose(position mgl32.Vec3, orientation mgl32.Quat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fwd := orientation.Normalize().Rotate(mgl32.Vec3{0, 0, -1})
	c.setAngles(fwd)
	c.pivot = position.Add(c.orientation().Rotate(mgl32.Vec3{0, 0, -1}).Mul(c.distance))
	c.viewDirty = true
}

// Pivot returns the orbit center.
func (c *Camera) Pivot() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pivot
}

// Distance returns the eye-to-pivot distance.
func (c *Camera) Distance() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.distance
}

// Angles returns yaw and pitch in radians.
func (c *Camera) Angles() (yaw, pitch float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.yaw, c.pitch
}

// Position returns the eye position.
func (c *Camera) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position()
}

// Orientation returns the eye rotation as a unit quaternion.
func (c *Camera) Orientation() mgl32.Quat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orientation()
}

// Forward returns the unit view direction.
func (c *Camera) Forward() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orientation().Rotate(mgl32.Vec3{0, 0, -1})
}

// Kind returns the active projection model.
func (c *Camera) Kind() Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kind
}

// Perspective returns the perspective parameters, valid when Kind is
// Perspective.
func (c *Camera) Perspective() PerspectiveParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persp
}

// Ortho returns the orthographic bounds, valid when Kind is Orthographic.
func (c *Camera) Ortho() OrthoBounds {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ortho
}

// ViewMatrix returns the world-to-view matrix.
func (c *Camera) ViewMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// ProjectionMatrix returns the view-to-clip matrix.
func (c *Camera) ProjectionMatrix() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projLocked()
}

// ViewProjection returns projection * view.
func (c *Camera) ViewProjection() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projLocked().Mul4(c.viewLocked())
}

// ScreenRay returns the world-space ray under pixel (x, y) of a
// width x height viewport. The origin lies on the near plane.
func (c *Camera) ScreenRay(x, y float32, width, height int) geom.Ray {
	s := c.Snapshot()
	return s.ScreenRay(x, y, width, height)
}

// Snapshot captures the matrices for one frame.
func (c *Camera) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	view := c.viewLocked()
	proj := c.projLocked()
	vp := proj.Mul4(view)
	return Snapshot{
		Kind:              c.kind,
		Position:          c.position(),
		View:              view,
		Projection:        proj,
		ViewProjection:    vp,
		InvViewProjection: vp.Inv(),
		Near:              c.nearPlane(),
		Far:               c.farPlane(),
	}
}

func (c *Camera) viewLocked() mgl32.Mat4 {
	if c.viewDirty {
		up := c.orientation().Rotate(mgl32.Vec3{0, 1, 0})
		c.view = mgl32.LookAtV(c.position(), c.pivot, up)
		c.viewDirty = false
		c.viewBuilds++
	}
	return c.view
}

func (c *Camera) projLocked() mgl32.Mat4 {
	if c.projDirty {
		switch c.kind {
		case Orthographic:
			b := c.ortho
			c.proj = mgl32.Ortho(b.Left, b.Right, b.Bottom, b.Top, b.Near, b.Far)
		default:
			p := c.persp
			c.proj = mgl32.Perspective(p.FovY, p.Aspect, p.Near, p.Far)
		}
		c.projDirty = false
		c.projBuilds++
	}
	return c.proj
}

// orientation is yaw about +Y followed by pitch about the local X axis.
func (c *Camera) orientation() mgl32.Quat {
	qy := mgl32.QuatRotate(c.yaw, mgl32.Vec3{0, 1, 0})
	qp := mgl32.QuatRotate(-c.pitch, mgl32.Vec3{1, 0, 0})
	return qy.Mul(qp).Normalize()
}

func (c *Camera) position() mgl32.Vec3 {
	cp := math32.Cos(c.pitch)
	offset := mgl32.Vec3{
		cp * math32.Sin(c.yaw),
		math32.Sin(c.pitch),
		cp * math32.Cos(c.yaw),
	}
	return c.pivot.Add(offset.Mul(c.distance))
}

// setAngles derives yaw and pitch from a unit forward vector.
func (c *Camera) setAngles(fwd mgl32.Vec3) {
	c.pitch = mgl32.Clamp(-math32.Asin(mgl32.Clamp(fwd.Y(), -1, 1)), -c.maxPitch, c.maxPitch)
	if math32.Abs(fwd.X()) > 1e-6 || math32.Abs(fwd.Z()) > 1e-6 {
		c.yaw = math32.Atan2(-fwd.X(), -fwd.Z())
	}
}

func (c *Camera) nearPlane() float32 {
	if c.kind == Orthographic {
		return c.ortho.Near
	}
	return c.persp.Near
}

func (c *Camera) farPlane() float32 {
	if c.kind == Orthographic {
		return c.ortho.Far
	}
	return c.persp.Far
}

func (p PerspectiveParams) validate() error {
	switch {
	case !finite(p.FovY, p.Aspect, p.Near, p.Far):
		return fmt.Errorf("%w: non-finite parameter", ErrInvalidProjection)
	case p.FovY <= 0 || p.FovY >= math32.Pi:
		return fmt.Errorf("%w: fov %v outside (0, pi)", ErrInvalidProjection, p.FovY)
	case p.Aspect <= 0:
		return fmt.Errorf("%w: aspect %v", ErrInvalidProjection, p.Aspect)
	case p.Near <= 0 || p.Far <= p.Near:
		return fmt.Errorf("%w: near %v far %v", ErrInvalidProjection, p.Near, p.Far)
	}
	return nil
}

func (b OrthoBounds) validate() error {
	switch {
	case !finite(b.Left, b.Right, b.Bottom, b.Top, b.Near, b.Far):
		return fmt.Errorf("%w: non-finite bound", ErrInvalidProjection)
	case b.Left == b.Right || b.Bottom == b.Top || b.Near == b.Far:
		return fmt.Errorf("%w: degenerate ortho box", ErrInvalidProjection)
	}
	return nil
}

func finite(vs ...float32) bool {
	for _, v := range vs {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func wrapAngle(a float32) float32 {
	a = math32.Mod(a+math32.Pi, 2*math32.Pi)
	if a < 0 {
		a += 2 * math32.Pi
	}
	return a - math32.Pi
}
