// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geom

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const eps = 1e-4

func near(a, b float32) bool { return math32.Abs(a-b) < eps }

func unitCube() AABB {
	return AABB{Min: mgl32.Vec3{-0.5, -0.5, -0.5}, Max: mgl32.Vec3{0.5, 0.5, 0.5}}
}

func TestAABBFromPoints(t *testing.T) {
	b := AABBFromPoints(
		mgl32.Vec3{1, -2, 3},
		mgl32.Vec3{-1, 4, 0},
		mgl32.Vec3{0, 0, -5},
	)
	want := AABB{Min: mgl32.Vec3{-1, -2, -5}, Max: mgl32.Vec3{1, 4, 3}}
	if b != want {
		t.Fatalf("AABBFromPoints = %v, want %v", b, want)
	}
	if !EmptyAABB().IsEmpty() {
		t.Fatal("EmptyAABB is not empty")
	}
	if AABBFromPoints().IsEmpty() != true {
		t.Fatal("box from no points should be empty")
	}
}

func TestAABBTransformed(t *testing.T) {
	m := Translation(2, 0, 0).Scaled(mgl32.Vec3{2, 2, 2}).Matrix()
	got := unitCube().Transformed(m)
	want := AABB{Min: mgl32.Vec3{1, -1, -1}, Max: mgl32.Vec3{3, 1, 1}}
	for i := 0; i < 3; i++ {
		if !near(got.Min[i], want.Min[i]) || !near(got.Max[i], want.Max[i]) {
			t.Fatalf("Transformed = %v, want %v", got, want)
		}
	}
}

func TestRayIntersectAABB(t *testing.T) {
	tests := []struct {
		name  string
		ray   Ray
		wantT float32
		hit   bool
	}{
		{"front", Ray{mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, -1}}, 4.5, true},
		{"miss beside", Ray{mgl32.Vec3{2, 0, 5}, mgl32.Vec3{0, 0, -1}}, 0, false},
		{"behind origin", Ray{mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, 1}}, 0, false},
		{"inside", Ray{mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0}}, 0, true},
		{"parallel outside slab", Ray{mgl32.Vec3{0, 1, 5}, mgl32.Vec3{0, 0, -1}}, 0, false},
		{"diagonal", Ray{mgl32.Vec3{-2, -2, 0}, mgl32.Vec3{1, 1, 0}}, 1.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.ray.IntersectAABB(unitCube())
			if ok != tt.hit {
				t.Fatalf("hit = %v, want %v", ok, tt.hit)
			}
			if ok && !near(got, tt.wantT) {
				t.Errorf("t = %v, want %v", got, tt.wantT)
			}
		})
	}
}

func TestRayIntersectTriangle(t *testing.T) {
	a := mgl32.Vec3{-1, -1, 0}
	b := mgl32.Vec3{1, -1, 0}
	c := mgl32.Vec3{0, 1, 0}

	tests := []struct {
		name  string
		ray   Ray
		wantT float32
		hit   bool
	}{
		{"front face", Ray{mgl32.Vec3{0, 0, 3}, mgl32.Vec3{0, 0, -1}}, 3, true},
		{"back face", Ray{mgl32.Vec3{0, 0, -2}, mgl32.Vec3{0, 0, 1}}, 2, true},
		{"outside edge", Ray{mgl32.Vec3{1, 1, 3}, mgl32.Vec3{0, 0, -1}}, 0, false},
		{"parallel", Ray{mgl32.Vec3{0, 0, 3}, mgl32.Vec3{1, 0, 0}}, 0, false},
		{"behind", Ray{mgl32.Vec3{0, 0, 3}, mgl32.Vec3{0, 0, 1}}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.ray.IntersectTriangle(a, b, c)
			if ok != tt.hit {
				t.Fatalf("hit = %v, want %v", ok, tt.hit)
			}
			if ok && !near(got, tt.wantT) {
				t.Errorf("t = %v, want %v", got, tt.wantT)
			}
		})
	}
}

func TestRayTransformedKeepsParameter(t *testing.T) {
	tr := Translation(0, 0, -5).Scaled(mgl32.Vec3{2, 2, 2})
	inv, ok := tr.Inverse()
	if !ok {
		t.Fatal("Inverse failed")
	}
	world := Ray{Origin: mgl32.Vec3{0, 0, 0}, Dir: mgl32.Vec3{0, 0, -1}}
	local := world.Transformed(inv)

	tLocal, hit := local.IntersectAABB(unitCube())
	if !hit {
		t.Fatal("expected hit")
	}
	// The scaled cube spans z in [-6, -4], so the world entry is at t = 4.
	if !near(tLocal, 4) {
		t.Fatalf("t = %v, want 4", tLocal)
	}
	p := world.At(tLocal)
	if !near(p.Z(), -4) {
		t.Fatalf("entry point z = %v, want -4", p.Z())
	}
}

func TestTransformMatrixOrder(t *testing.T) {
	tr := Identity()
	tr.Translation = mgl32.Vec3{1, 0, 0}
	tr.Rotation = mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 0, 1})
	tr.Scale = mgl32.Vec3{2, 2, 2}

	// Scale (1,0,0) -> (2,0,0), rotate -> (0,2,0), translate -> (1,2,0).
	got := mgl32.TransformCoordinate(mgl32.Vec3{1, 0, 0}, tr.Matrix())
	want := mgl32.Vec3{1, 2, 0}
	if !got.ApproxEqualThreshold(want, eps) {
		t.Fatalf("T*R*S applied = %v, want %v", got, want)
	}

	var zero Transform
	if zero.Matrix() != mgl32.Ident4() {
		t.Fatal("zero Transform should compose to identity")
	}
	if _, ok := (Transform{Scale: mgl32.Vec3{0, 1, 1}, Rotation: mgl32.QuatIdent()}).Inverse(); ok {
		t.Fatal("degenerate scale should have no inverse")
	}
}

func TestScreenToNDC(t *testing.T) {
	tests := []struct {
		x, y   float32
		nx, ny float32
	}{
		{400, 300, 0, 0},
		{0, 0, -1, 1},
		{800, 600, 1, -1},
	}
	for _, tt := range tests {
		nx, ny := ScreenToNDC(tt.x, tt.y, 800, 600)
		if !near(nx, tt.nx) || !near(ny, tt.ny) {
			t.Errorf("ScreenToNDC(%v, %v) = (%v, %v), want (%v, %v)", tt.x, tt.y, nx, ny, tt.nx, tt.ny)
		}
		x, y := NDCToScreen(nx, ny, 800, 600)
		if !near(x, tt.x) || !near(y, tt.y) {
			t.Errorf("round trip (%v, %v) -> (%v, %v)", tt.x, tt.y, x, y)
		}
	}
}

func TestRayFromNDC(t *testing.T) {
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 100)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	inv := proj.Mul4(view).Inv()

	r := RayFromNDC(inv, 0, 0)
	if !r.Dir.ApproxEqualThreshold(mgl32.Vec3{0, 0, -1}, eps) {
		t.Fatalf("center ray dir = %v", r.Dir)
	}
	if math32.Abs(r.Origin.Z()-4.9) > 1e-3 {
		t.Fatalf("center ray origin = %v, want z=4.9", r.Origin)
	}

	ndc, ok := Project(proj.Mul4(view), mgl32.Vec3{})
	if !ok || !near(ndc.X(), 0) || !near(ndc.Y(), 0) {
		t.Fatalf("Project(origin) = %v, %v", ndc, ok)
	}
}
