// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package stage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/stage/camera"
	"github.com/gogpu/stage/picking"
	"github.com/gogpu/stage/resource"
)

// Config is the file-level configuration of a Stage.
//
// Example YAML:
//
//	budget_mb: 512
//	device:
//	  name: soft
//	  latency: 1
//	picking:
//	  strategy: idbuffer
//	  timeout: 500ms
//	  timeout_frames: 8
//	camera:
//	  fov_deg: 60
//	  near: 0.1
//	  far: 100
//	viewport:
//	  width: 1280
//	  height: 720
type Config struct {
	// BudgetMB caps device-resident resource memory in MiB.
	BudgetMB int `yaml:"budget_mb"`

	Device   DeviceConfig   `yaml:"device"`
	Picking  PickingConfig  `yaml:"picking"`
	Camera   CameraConfig   `yaml:"camera"`
	Viewport ViewportConfig `yaml:"viewport"`
}

// DeviceConfig selects the device New opens when none is passed in.
type DeviceConfig struct {
	// Name is a registered device name; empty picks the best available.
	Name string `yaml:"name"`

	// Latency is the soft device's completion delay in polls.
	Latency int `yaml:"latency"`
}

// PickingConfig configures pick resolution.
type PickingConfig struct {
	// Strategy is "idbuffer" or "analytic".
	Strategy        string        `yaml:"strategy"`
	Timeout         time.Duration `yaml:"timeout"`
	TimeoutFrames   uint64        `yaml:"timeout_frames"`
	RefineTriangles bool          `yaml:"refine_triangles"`
	TieEpsilon      float32       `yaml:"tie_epsilon"`
	Workers         int           `yaml:"workers"`
}

// CameraConfig configures the initial projection and orbit limits.
// Angles are in degrees.
type CameraConfig struct {
	MaxPitchDeg float32 `yaml:"max_pitch_deg"`
	MinDistance float32 `yaml:"min_distance"`
	FovDeg      float32 `yaml:"fov_deg"`
	Near        float32 `yaml:"near"`
	Far         float32 `yaml:"far"`
}

// ViewportConfig is the initial viewport size in pixels.
type ViewportConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		BudgetMB: resource.DefaultBudgetMB,
		Picking: PickingConfig{
			Strategy:      picking.StrategyIDBuffer.String(),
			Timeout:       picking.DefaultTimeout,
			TimeoutFrames: picking.DefaultTimeoutFrames,
			TieEpsilon:    picking.DefaultTieEpsilon,
		},
		Camera: CameraConfig{
			MaxPitchDeg: camera.DefaultMaxPitchDeg,
			MinDistance: camera.DefaultMinDistance,
			FovDeg:      camera.DefaultFovYDeg,
			Near:        camera.DefaultNear,
			Far:         camera.DefaultFar,
		},
	}
}

// LoadConfig reads a YAML configuration file. Missing keys keep their
// defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("stage: read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
// Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("stage: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values no component accepts.
func (c Config) Validate() error {
	var errs []error
	if c.BudgetMB < 0 {
		errs = append(errs, fmt.Errorf("budget_mb %d is negative", c.BudgetMB))
	}
	if c.Device.Latency < 0 {
		errs = append(errs, fmt.Errorf("device.latency %d is negative", c.Device.Latency))
	}
	if _, err := picking.ParseStrategy(c.Picking.Strategy); err != nil {
		errs = append(errs, err)
	}
	if c.Picking.Timeout < 0 {
		errs = append(errs, fmt.Errorf("picking.timeout %v is negative", c.Picking.Timeout))
	}
	if c.Picking.TieEpsilon < 0 {
		errs = append(errs, fmt.Errorf("picking.tie_epsilon %v is negative", c.Picking.TieEpsilon))
	}
	if c.Camera.MaxPitchDeg <= 0 || c.Camera.MaxPitchDeg >= 90 {
		errs = append(errs, fmt.Errorf("camera.max_pitch_deg %v not in (0, 90)", c.Camera.MaxPitchDeg))
	}
	if c.Camera.MinDistance <= 0 {
		errs = append(errs, fmt.Errorf("camera.min_distance %v must be positive", c.Camera.MinDistance))
	}
	if c.Camera.FovDeg <= 0 || c.Camera.FovDeg >= 180 {
		errs = append(errs, fmt.Errorf("camera.fov_deg %v not in (0, 180)", c.Camera.FovDeg))
	}
	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		errs = append(errs, fmt.Errorf("camera near %v / far %v: need 0 < near < far", c.Camera.Near, c.Camera.Far))
	}
	if c.Viewport.Width < 0 || c.Viewport.Height < 0 {
		errs = append(errs, fmt.Errorf("viewport %dx%d is negative", c.Viewport.Width, c.Viewport.Height))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (c Config) budgetBytes() uint64 {
	return uint64(c.BudgetMB) << 20 //nolint:gosec // validated non-negative
}

func (c Config) pickingConfig() picking.Config {
	st, _ := picking.ParseStrategy(c.Picking.Strategy)
	return picking.Config{
		Strategy:        st,
		Timeout:         c.Picking.Timeout,
		TimeoutFrames:   c.Picking.TimeoutFrames,
		RefineTriangles: c.Picking.RefineTriangles,
		TieEpsilon:      c.Picking.TieEpsilon,
		Workers:         c.Picking.Workers,
	}
}

func (c Config) cameraConfig() camera.Config {
	return camera.Config{
		MaxPitch:    mgl32.DegToRad(c.Camera.MaxPitchDeg),
		MinDistance: c.Camera.MinDistance,
	}
}

// aspect is the viewport aspect, or 1 before a viewport is known.
func (c Config) aspect() float32 {
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return 1
	}
	return float32(c.Viewport.Width) / float32(c.Viewport.Height)
}
