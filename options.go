// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package stage

import (
	"time"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/stage/picking"
)

// Option configures a Stage during creation.
//
// Example:
//
//	cfg, err := stage.LoadConfig("stage.yaml")
//	...
//	st, err := stage.New(dev,
//	    stage.WithConfig(cfg),
//	    stage.WithPickingStrategy(picking.StrategyAnalytic),
//	)
//
// Options apply in order; later options override earlier ones.
type Option func(*options)

type options struct {
	cfg         Config
	budgetBytes uint64
	provider    gpucontext.DeviceProvider
	clock       func() time.Time
}

func defaultOptions() options {
	return options{cfg: DefaultConfig()}
}

// WithConfig replaces the whole configuration, typically one returned by
// LoadConfig. Options given before it are overwritten.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
		o.budgetBytes = 0
	}
}

// WithBudget caps device-resident resource memory in bytes.
func WithBudget(bytes uint64) Option {
	return func(o *options) {
		o.budgetBytes = bytes
	}
}

// WithPickingStrategy selects how picks are resolved.
func WithPickingStrategy(s picking.Strategy) Option {
	return func(o *options) {
		o.cfg.Picking.Strategy = s.String()
	}
}

// WithPickTimeout bounds how long a pick may stay unresolved, in wall time
// and in frames. Zero values keep the defaults.
func WithPickTimeout(d time.Duration, frames uint64) Option {
	return func(o *options) {
		if d > 0 {
			o.cfg.Picking.Timeout = d
		}
		if frames > 0 {
			o.cfg.Picking.TimeoutFrames = frames
		}
	}
}

// WithTriangleRefinement makes analytic picks test mesh triangles after
// the bounding box test.
func WithTriangleRefinement(on bool) Option {
	return func(o *options) {
		o.cfg.Picking.RefineTriangles = on
	}
}

// WithViewport sets the initial viewport size in pixels.
func WithViewport(width, height int) Option {
	return func(o *options) {
		o.cfg.Viewport = ViewportConfig{Width: width, Height: height}
	}
}

// WithDevice selects the registered device New opens when it is passed a
// nil device.
func WithDevice(name string, latency int) Option {
	return func(o *options) {
		o.cfg.Device = DeviceConfig{Name: name, Latency: latency}
	}
}

// WithProvider hands the host GPU context to the wgpu device. It is only
// used when New opens the device itself.
func WithProvider(p gpucontext.DeviceProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithClock sets the time source for pick timeouts. Mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}
