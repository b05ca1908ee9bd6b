// Package primitive owns the renderable primitives and their parameters.
//
// A primitive is a quadratic Bézier triangle: a triangular patch whose
// three boundary edges are quadratic Bézier curves, together with a
// Gaussian opacity falloff (log-scales plus rotation), a scalar opacity
// and spherical-harmonic color coefficients. The store is the only owner
// of primitive data; rendering components receive read-only views for the
// duration of a frame.
package primitive

import (
	"github.com/chewxy/math32"

	"github.com/beztri/engine/pkg/vecmath"
)

// ControlPoints is the size of a quadratic triangular Bézier control net:
// three corners followed by three mid-edge points.
const ControlPoints = 6

// Control net layout.
const (
	CornerA = 0
	CornerB = 1
	CornerC = 2
	MidAB   = 3
	MidBC   = 4
	MidCA   = 5
)

// DegenerateArea is the minimum world-space corner-triangle area below
// which a primitive is treated as degenerate and excluded from
// rasterization.
const DegenerateArea = 1e-12

// Net is a quadratic triangular Bézier control net.
type Net [ControlPoints]vecmath.Vec3

// Eval evaluates the patch at barycentric coordinates (u, v, w), u+v+w=1,
// using the degree-2 Bernstein basis.
func (n *Net) Eval(u, v, w float32) vecmath.Vec3 {
	p := n[CornerA].Mul(u * u)
	p = p.Add(n[CornerB].Mul(v * v))
	p = p.Add(n[CornerC].Mul(w * w))
	p = p.Add(n[MidAB].Mul(2 * u * v))
	p = p.Add(n[MidBC].Mul(2 * v * w))
	p = p.Add(n[MidCA].Mul(2 * w * u))
	return p
}

// Center returns the patch point at the barycentric center. It serves as
// the primitive's anchor for depth sorting and as the Gaussian mean, so
// moving control points moves the falloff with the boundary.
func (n *Net) Center() vecmath.Vec3 {
	const third = 1.0 / 3.0
	return n.Eval(third, third, third)
}

// CornerArea returns the area of the triangle spanned by the three
// corners. Zero or near-zero area marks the net degenerate.
func (n *Net) CornerArea() float32 {
	e1 := n[CornerB].Sub(n[CornerA])
	e2 := n[CornerC].Sub(n[CornerA])
	return e1.Cross(e2).Len() / 2
}

// Degenerate reports whether the net fails the non-degeneracy invariant.
func (n *Net) Degenerate() bool {
	a := n.CornerArea()
	return a < DegenerateArea || math32.IsNaN(a) || math32.IsInf(a, 0)
}

// Linearized returns a copy with the mid-edge points moved onto the edge
// midpoints, turning the boundary into straight lines. Used by the density
// controller to coarsen sub-pixel primitives.
func (n *Net) Linearized() Net {
	var out Net
	out[CornerA], out[CornerB], out[CornerC] = n[CornerA], n[CornerB], n[CornerC]
	out[MidAB] = n[CornerA].Lerp(n[CornerB], 0.5)
	out[MidBC] = n[CornerB].Lerp(n[CornerC], 0.5)
	out[MidCA] = n[CornerC].Lerp(n[CornerA], 0.5)
	return out
}

// polar evaluates the symmetric polar form (blossom) of the quadratic
// patch at two barycentric arguments. polar(x, x) equals Eval(x).
func (n *Net) polar(x, y [3]float32) vecmath.Vec3 {
	p := n[CornerA].Mul(x[0] * y[0])
	p = p.Add(n[CornerB].Mul(x[1] * y[1]))
	p = p.Add(n[CornerC].Mul(x[2] * y[2]))
	p = p.Add(n[MidAB].Mul(x[0]*y[1] + x[1]*y[0]))
	p = p.Add(n[MidBC].Mul(x[1]*y[2] + x[2]*y[1]))
	p = p.Add(n[MidCA].Mul(x[2]*y[0] + x[0]*y[2]))
	return p
}

// Subdivide splits the patch into four sub-patches at the barycentric edge
// midpoints. The union of the children reproduces the parent surface
// exactly, which keeps the rendered image unchanged across a split up to
// anti-aliasing.
func (n *Net) Subdivide() [4]Net {
	a := [3]float32{1, 0, 0}
	b := [3]float32{0, 1, 0}
	c := [3]float32{0, 0, 1}
	ab := [3]float32{0.5, 0.5, 0}
	bc := [3]float32{0, 0.5, 0.5}
	ca := [3]float32{0.5, 0, 0.5}

	sub := func(p, q, r [3]float32) Net {
		return Net{
			n.polar(p, p), n.polar(q, q), n.polar(r, r),
			n.polar(p, q), n.polar(q, r), n.polar(r, p),
		}
	}
	return [4]Net{
		sub(a, ab, ca),
		sub(ab, b, bc),
		sub(ca, bc, c),
		sub(ab, bc, ca), // center child
	}
}

// SHCoeffsForDegree returns the number of spherical-harmonic coefficients
// per color channel for the given degree.
func SHCoeffsForDegree(degree int) int {
	return (degree + 1) * (degree + 1)
}

// Params carries the full parameter set of one primitive.
type Params struct {
	Ctrl     Net
	LogScale vecmath.Vec3
	Rot      vecmath.Quat
	Opacity  float32
	SH       []float32 // coeffs*3, RGB interleaved per coefficient
}
