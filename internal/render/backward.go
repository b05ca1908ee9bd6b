package render

import (
	"github.com/beztri/engine/internal/camera"
	"github.com/beztri/engine/internal/gaussian"
	"github.com/beztri/engine/internal/primitive"
	"github.com/beztri/engine/internal/raster"
	"github.com/beztri/engine/pkg/vecmath"
)

// ParamGrads carries loss gradients for primitive parameters, one entry
// per projected primitive. Slots maps entries back to store slots.
type ParamGrads struct {
	Slots    []int
	Ctrl     []primitive.Net // world-space control point gradients
	LogScale []vecmath.Vec3
	Rot      [][4]float32 // unnormalized quaternion, (w, x, y, z)
	Opacity  []float32
	SH       [][]float32
}

// Backward propagates a per-pixel RGB loss gradient through the frame to
// primitive parameters. dLdC must hold 3 floats per pixel of cam's
// viewport. The traversal replays the forward pass exactly, so the store
// must not change between the matching Render call and this one.
//
// Gradients flow along five chains: boundary coverage to control points,
// Gaussian mean to the surface anchor and on to control points, conic to
// covariance to log-scales and rotation, color to SH coefficients, and
// opacity directly. The dependence of the projection Jacobian on the
// anchor position is dropped; at practical fields of view the term is
// vanishingly small against the mean gradient.
func (e *Engine) Backward(cam *camera.Camera, dLdC []float32) *ParamGrads {
	e.mu.RLock()
	defer e.mu.RUnlock()

	projected, refs, _ := e.project(cam)
	cfg := e.config(cam)
	binned := raster.Bin(projected, cfg)
	frame := raster.Forward(projected, binned, cfg)
	sg := raster.Backward(projected, binned, cfg, frame, dLdC)

	degree := e.store.SHDegree()
	stride := e.store.SHStride()

	out := &ParamGrads{
		Slots:    make([]int, len(projected)),
		Ctrl:     make([]primitive.Net, len(projected)),
		LogScale: make([]vecmath.Vec3, len(projected)),
		Rot:      make([][4]float32, len(projected)),
		Opacity:  make([]float32, len(projected)),
		SH:       make([][]float32, len(projected)),
	}

	e.accum.Resize(e.store.Slots())
	for i := range projected {
		p := &projected[i]
		ref := &refs[i]
		out.Slots[i] = ref.slot
		out.SH[i] = make([]float32, stride)

		e.accum.Observe(ref.slot, sg.Mean[i].Len(), p.Boundary.Area(), int64(sg.Touch[i]))
		if sg.Touch[i] == 0 {
			continue
		}

		// Boundary coverage gradients, pulled back per control point.
		var ctrl primitive.Net
		netGrad := sg.Net[i]
		if ref.linear {
			netGrad = foldLinearGrad(netGrad)
		}
		for k := 0; k < primitive.ControlPoints; k++ {
			g2 := netGrad[k]
			if g2[0] != 0 || g2[1] != 0 {
				ctrl[k] = cam.ScreenGradToWorld(cam.View(ref.net[k]), g2)
			}
		}

		// Gaussian mean gradients reach the anchor, which is a fixed
		// Bernstein combination of the control points.
		if sg.Mean[i][0] != 0 || sg.Mean[i][1] != 0 {
			anchorGrad := cam.ScreenGradToWorld(cam.View(ref.anchor), sg.Mean[i])
			for k := 0; k < primitive.ControlPoints; k++ {
				ctrl[k] = ctrl[k].Add(anchorGrad.Mul(anchorWeight(k)))
			}
		}
		out.Ctrl[i] = ctrl

		// Conic to covariance to shape parameters.
		if sg.Conic[i] != ([3]float32{}) {
			dCov2 := gaussian.ConicBackward(p.Cov2D, sg.Conic[i])
			dCov3 := gaussian.Cov2DBackward(cam, ref.anchor, dCov2)
			dls, drot := gaussian.Cov3DBackward(
				e.store.LogScale(ref.slot), e.store.Rot(ref.slot),
				e.opts.GaussianScale, dCov3)
			out.LogScale[i] = dls
			out.Rot[i] = drot
		}

		gaussian.EvalSHGrad(degree, ref.viewDir, sg.Color[i], ref.clamped, out.SH[i])
		out.Opacity[i] = sg.Opacity[i]
	}
	return out
}

// foldLinearGrad redistributes mid-edge gradients of a linearized net to
// its corners. The rendered midpoints are edge averages, so each adjacent
// corner receives half; the stored midpoints get no gradient.
func foldLinearGrad(g [primitive.ControlPoints]vecmath.Vec2) [primitive.ControlPoints]vecmath.Vec2 {
	var out [primitive.ControlPoints]vecmath.Vec2
	out[primitive.CornerA] = g[primitive.CornerA].
		Add(g[primitive.MidAB].Mul(0.5)).Add(g[primitive.MidCA].Mul(0.5))
	out[primitive.CornerB] = g[primitive.CornerB].
		Add(g[primitive.MidAB].Mul(0.5)).Add(g[primitive.MidBC].Mul(0.5))
	out[primitive.CornerC] = g[primitive.CornerC].
		Add(g[primitive.MidBC].Mul(0.5)).Add(g[primitive.MidCA].Mul(0.5))
	return out
}
