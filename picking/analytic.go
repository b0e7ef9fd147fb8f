// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package picking

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/stage/geom"
	"github.com/gogpu/stage/resource"
)

// DefaultTieEpsilon is the distance within which two hits count as a tie.
const DefaultTieEpsilon = 1e-5

// Candidate is one entity offered to the analytic picker.
type Candidate struct {
	Entity Entity

	// Bounds is the mesh's local-space bounding box.
	Bounds geom.AABB

	// Geometry is the mesh's CPU copy. Required when refining.
	Geometry *resource.Geometry
}

// Hit is the closest intersection found by Analytic.
type Hit struct {
	Entity   Entity
	Distance float32
}

// Analytic intersects a ray with candidate entities on the CPU.
type Analytic struct {
	// Refine tests triangles after the box test passes.
	Refine bool

	// TieEpsilon is the distance within which the earlier registered
	// entity wins. Defaults to DefaultTieEpsilon.
	TieEpsilon float32

	// Workers caps refinement parallelism. Defaults to GOMAXPROCS.
	Workers int
}

// Pick returns the nearest candidate hit by ray. Candidates must be in
// registration order; among hits closer together than TieEpsilon the
// first one wins.
func (a Analytic) Pick(ctx context.Context, ray geom.Ray, cands []Candidate) (Hit, bool, error) {
	dist := make([]float32, len(cands))
	hit := make([]bool, len(cands))

	g, ctx := errgroup.WithContext(ctx)
	workers := a.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)

	for i := range cands {
		c := &cands[i]
		inv, ok := c.Entity.Transform.Inverse()
		if !ok {
			continue
		}
		local := ray.Transformed(inv)
		t, ok := local.IntersectAABB(c.Bounds)
		if !ok {
			continue
		}
		if !a.Refine || c.Geometry == nil {
			dist[i], hit[i] = t, true
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dist[i], hit[i] = nearestTriangle(local, c.Geometry)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Hit{}, false, err
	}

	eps := a.TieEpsilon
	if eps <= 0 {
		eps = DefaultTieEpsilon
	}
	nearest := -1
	for i := range cands {
		if hit[i] && (nearest < 0 || dist[i] < dist[nearest]) {
			nearest = i
		}
	}
	if nearest < 0 {
		return Hit{}, false, nil
	}
	// Ties are measured against the nearest hit, not pairwise.
	best := nearest
	for i := range cands {
		if hit[i] && dist[i] <= dist[nearest]+eps {
			best = i
			break
		}
	}
	return Hit{Entity: cands[best].Entity, Distance: dist[best]}, true, nil
}

func nearestTriangle(r geom.Ray, g *resource.Geometry) (float32, bool) {
	var best float32
	found := false
	for i, n := 0, g.TriangleCount(); i < n; i++ {
		a, b, c := g.Triangle(i)
		if t, ok := r.IntersectTriangle(a, b, c); ok && (!found || t < best) {
			best, found = t, true
		}
	}
	return best, found
}
