// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command stagedemo drives a small scene through stage headlessly and
// prints the pick results.
//
// Usage:
//
//	stagedemo [-config stage.yaml] [-strategy idbuffer|analytic] [-frames 4] [-v]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/stage"
	"github.com/gogpu/stage/frame"
	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/picking"
	"github.com/gogpu/stage/resource"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file")
		width      = flag.Int("width", 800, "viewport width")
		height     = flag.Int("height", 600, "viewport height")
		strategy   = flag.String("strategy", "", "picking strategy: idbuffer or analytic")
		latency    = flag.Int("latency", 1, "soft device completion latency, in polls")
		frames     = flag.Int("frames", 4, "frames to run")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	stage.SetLogger(logger)

	cfg := stage.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = stage.LoadConfig(*configPath); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	opts := []stage.Option{stage.WithConfig(cfg)}
	if cfg.Viewport.Width == 0 || cfg.Viewport.Height == 0 {
		opts = append(opts, stage.WithViewport(*width, *height))
	}
	if cfg.Device.Name == "" {
		opts = append(opts, stage.WithDevice("soft", *latency))
	}
	if *strategy != "" {
		s, err := picking.ParseStrategy(*strategy)
		if err != nil {
			log.Fatal(err)
		}
		opts = append(opts, stage.WithPickingStrategy(s))
	}

	st, err := stage.New(nil, opts...)
	if err != nil {
		log.Fatalf("stage: %v", err)
	}
	defer st.Close()

	if err := run(st, *frames, logger); err != nil {
		log.Fatal(err)
	}
}

func run(st *stage.Stage, frames int, logger *slog.Logger) error {
	red := mgl32.Vec4{0.9, 0.2, 0.2, 1}
	blue := mgl32.Vec4{0.2, 0.3, 0.9, 1}

	cube, err := st.RegisterMesh(resource.Cube(1, red))
	if err != nil {
		return err
	}
	small, err := st.RegisterMesh(resource.Cube(0.5, blue))
	if err != nil {
		return err
	}
	floor, err := st.RegisterMesh(resource.Quad(8, mgl32.Vec4{0.5, 0.5, 0.5, 1}))
	if err != nil {
		return err
	}
	checker, err := st.RegisterTexture(checkerTexture(64, 8))
	if err != nil {
		return err
	}

	if err := st.AddPickable(1, cube, geom.Identity()); err != nil {
		return err
	}
	if err := st.AddPickable(2, small, geom.Translation(1.5, 0.5, -1)); err != nil {
		return err
	}
	ground := geom.Translation(0, -0.5, 0)
	ground.Rotation = mgl32.QuatRotate(-mgl32.DegToRad(90), mgl32.Vec3{1, 0, 0})
	if err := st.AddDrawable(100, frame.Drawable{Mesh: floor, Texture: checker, Transform: ground, Order: -1}); err != nil {
		return err
	}

	w, h := st.Camera().Viewport()
	queries := map[string]*picking.Query{
		"center": st.Pick(float32(w)/2, float32(h)/2),
		"corner": st.Pick(0, 0),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < frames; i++ {
		rep, err := st.Frame(ctx)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i+1, err)
		}
		logger.Info("frame", "report", rep)
		st.Orbit(5, 0)
	}

	for name, q := range queries {
		r, err := q.Wait(ctx)
		switch {
		case err != nil:
			logger.Warn("pick unresolved", "pick", name, "err", err)
		case errors.Is(r.Err, stage.ErrPickMiss):
			fmt.Printf("%-6s miss\n", name)
		case r.Err != nil:
			fmt.Printf("%-6s %v\n", name, r.Err)
		default:
			fmt.Printf("%-6s entity %d\n", name, r.Entity)
		}
	}

	stats := st.Stats()
	fmt.Printf("resident %d / %d bytes, %d meshes, %d textures\n",
		stats.ResidentBytes, stats.BudgetBytes, stats.Meshes, stats.Textures)
	return nil
}

// checkerTexture builds an RGBA8 checkerboard with a full mip chain.
func checkerTexture(size, cell int) resource.TextureData {
	px := make([]byte, size*size*4)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := byte(60)
			if (x/cell+y/cell)%2 == 0 {
				v = 200
			}
			o := (y*size + x) * 4
			px[o], px[o+1], px[o+2], px[o+3] = v, v, v, 255
		}
	}
	return resource.TextureData{
		Label:     "checker",
		Width:     size,
		Height:    size,
		Format:    resource.TextureFormatRGBA8,
		Pixels:    px,
		MipLevels: resource.FullMipChain,
	}
}
