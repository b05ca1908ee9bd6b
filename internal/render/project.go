package render

import (
	"github.com/beztri/engine/internal/bezier"
	"github.com/beztri/engine/internal/camera"
	"github.com/beztri/engine/internal/gaussian"
	"github.com/beztri/engine/internal/primitive"
	"github.com/beztri/engine/internal/raster"
	"github.com/beztri/engine/pkg/vecmath"
)

// backRef retains per-primitive forward state the backward pass needs to
// chain screen-space gradients to store parameters.
type backRef struct {
	slot    int
	net     primitive.Net // world-space net actually rendered
	linear  bool
	anchor  vecmath.Vec3 // world-space Gaussian center
	viewDir vecmath.Vec3 // camera-to-anchor, normalized
	clamped [3]bool      // SH channels clipped at zero
}

// anchorWeight is the Bernstein weight of control point k at the surface
// center (1/3, 1/3, 1/3): 1/9 for corners, 2/9 for mid-edge points.
func anchorWeight(k int) float32 {
	if k < primitive.MidAB {
		return 1.0 / 9.0
	}
	return 2.0 / 9.0
}

// project builds the rasterizer input for every live primitive. Culled
// and degenerate primitives are dropped and counted in stats; nothing
// here is an error condition.
func (e *Engine) project(cam *camera.Camera) ([]raster.Projected, []backRef, raster.FrameStats) {
	var projected []raster.Projected
	var refs []backRef
	var stats raster.FrameStats

	camPos := cam.R.Transposed().MulVec(cam.T).Mul(-1)
	degree := e.store.SHDegree()

	e.store.Each(func(i int) {
		net := e.store.Net(i)
		if e.store.IsLinear(i) {
			net = net.Linearized()
		}
		if net.Degenerate() {
			stats.Degenerate++
			return
		}

		var n2 bezier.Net2D
		for k := 0; k < primitive.ControlPoints; k++ {
			p, _, ok := cam.ProjectWorld(net[k])
			if !ok {
				stats.Culled++
				return
			}
			n2[k] = p
		}

		boundary := bezier.Flatten(n2, e.opts.SegmentsPerEdge)
		if boundary.Degenerate() {
			stats.Degenerate++
			return
		}
		if boundary.Area() < e.opts.MinPixelArea {
			stats.Culled++
			return
		}

		anchor := net.Eval(1.0/3, 1.0/3, 1.0/3)
		cov3 := gaussian.Cov3D(e.store.LogScale(i), e.store.Rot(i), e.opts.GaussianScale)
		proj := gaussian.Project(cam, anchor, cov3)
		if !proj.OK {
			stats.Degenerate++
			return
		}

		dir := anchor.Sub(camPos).Normalize()
		color, clamped := gaussian.EvalSH(degree, e.store.SH(i), dir)

		// The coverage ramp extends one AA half-width past the boundary;
		// the binning box has to include it.
		min, max := boundary.Bounds()
		min[0] = min32(min[0], proj.Mean[0]-proj.Radius) - e.opts.AAWidth
		min[1] = min32(min[1], proj.Mean[1]-proj.Radius) - e.opts.AAWidth
		max[0] = max32(max[0], proj.Mean[0]+proj.Radius) + e.opts.AAWidth
		max[1] = max32(max[1], proj.Mean[1]+proj.Radius) + e.opts.AAWidth

		projected = append(projected, raster.Projected{
			ID:       int32(i),
			Seq:      e.store.Created(i),
			Boundary: boundary,
			Net:      n2,
			Mean:     proj.Mean,
			Depth:    proj.Depth,
			Conic:    proj.Conic,
			Cov2D:    proj.Cov2D,
			Color:    color,
			Opacity:  e.store.Opacity(i),
			Min:      min,
			Max:      max,
		})
		refs = append(refs, backRef{
			slot:    i,
			net:     net,
			linear:  e.store.IsLinear(i),
			anchor:  anchor,
			viewDir: dir,
			clamped: clamped,
		})
	})

	stats.Projected = len(projected)
	return projected, refs, stats
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
