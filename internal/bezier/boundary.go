// Package bezier evaluates the curved triangle boundary of a primitive in
// screen space: anti-aliased coverage plus its derivative with respect to
// the projected control points.
package bezier

import (
	"github.com/chewxy/math32"

	"github.com/beztri/engine/internal/primitive"
	"github.com/beztri/engine/pkg/vecmath"
)

// DegenerateArea is the minimum absolute screen-space polygon area (px^2)
// below which coverage is zero everywhere.
const DegenerateArea = 1e-6

// Net2D is a projected quadratic control net. Indices follow
// primitive.Net: three corners, then mid-edge points AB, BC, CA. Corners
// must be ordered counter-clockwise in screen space; the evaluator does
// not correct a caller that projects them clockwise.
type Net2D [primitive.ControlPoints]vecmath.Vec2

// edges maps edge index to (start corner, mid point, end corner) indices
// in the control net.
var edges = [3][3]int{
	{primitive.CornerA, primitive.MidAB, primitive.CornerB},
	{primitive.CornerB, primitive.MidBC, primitive.CornerC},
	{primitive.CornerC, primitive.MidCA, primitive.CornerA},
}

// Boundary is the flattened screen-space outline of one primitive,
// prepared once per frame and queried per pixel.
type Boundary struct {
	net  Net2D
	poly []vecmath.Vec2
	// Bernstein weights of each polygon vertex with respect to the three
	// control points of its edge; used to route gradients back to the net.
	vertEdge []uint8
	vertB    [][3]float32

	area       float32 // signed area of the flattened polygon
	min, max   vecmath.Vec2
	degenerate bool
}

// Flatten builds the boundary polygon by splitting each curved edge into
// segs chords. segs must be >= 1; 1 yields the straight-edged outline used
// for coarsened primitives.
func Flatten(net Net2D, segs int) *Boundary {
	if segs < 1 {
		segs = 1
	}
	b := &Boundary{
		net:      net,
		poly:     make([]vecmath.Vec2, 0, 3*segs),
		vertEdge: make([]uint8, 0, 3*segs),
		vertB:    make([][3]float32, 0, 3*segs),
	}

	for e := 0; e < 3; e++ {
		p0 := net[edges[e][0]]
		pm := net[edges[e][1]]
		p1 := net[edges[e][2]]
		for k := 0; k < segs; k++ {
			t := float32(k) / float32(segs)
			b0 := (1 - t) * (1 - t)
			b1 := 2 * t * (1 - t)
			b2 := t * t
			v := p0.Mul(b0).Add(pm.Mul(b1)).Add(p1.Mul(b2))
			b.poly = append(b.poly, v)
			b.vertEdge = append(b.vertEdge, uint8(e))
			b.vertB = append(b.vertB, [3]float32{b0, b1, b2})
		}
	}

	b.min = b.poly[0]
	b.max = b.poly[0]
	for _, v := range b.poly[1:] {
		b.min[0] = math32.Min(b.min[0], v[0])
		b.min[1] = math32.Min(b.min[1], v[1])
		b.max[0] = math32.Max(b.max[0], v[0])
		b.max[1] = math32.Max(b.max[1], v[1])
	}

	for i, v := range b.poly {
		w := b.poly[(i+1)%len(b.poly)]
		b.area += v.Cross(w)
	}
	b.area /= 2
	if abs := math32.Abs(b.area); abs < DegenerateArea || math32.IsNaN(abs) || math32.IsInf(abs, 0) {
		b.degenerate = true
	}
	return b
}

// Degenerate reports whether the outline has no usable area. A degenerate
// boundary yields zero coverage and zero gradients everywhere.
func (b *Boundary) Degenerate() bool {
	return b.degenerate
}

// Area returns the absolute flattened outline area in px^2.
func (b *Boundary) Area() float32 {
	return math32.Abs(b.area)
}

// Bounds returns the outline bounding box.
func (b *Boundary) Bounds() (min, max vecmath.Vec2) {
	return b.min, b.max
}

// Centroid returns the centroid of the flattened outline.
func (b *Boundary) Centroid() vecmath.Vec2 {
	var c vecmath.Vec2
	var area float32
	for i, v := range b.poly {
		w := b.poly[(i+1)%len(b.poly)]
		cross := v.Cross(w)
		c = c.Add(v.Add(w).Mul(cross))
		area += cross
	}
	if area == 0 {
		return b.min.Add(b.max).Mul(0.5)
	}
	return c.Mul(1 / (3 * area))
}

// inside reports whether p is inside the closed outline (even-odd rule).
func (b *Boundary) inside(p vecmath.Vec2) bool {
	in := false
	n := len(b.poly)
	for i := 0; i < n; i++ {
		a := b.poly[i]
		c := b.poly[(i+1)%n]
		if (a[1] > p[1]) != (c[1] > p[1]) {
			x := a[0] + (p[1]-a[1])/(c[1]-a[1])*(c[0]-a[0])
			if p[0] < x {
				in = !in
			}
		}
	}
	return in
}

// nearest returns the index of the outline segment closest to p, the clamp
// parameter along it and the distance.
func (b *Boundary) nearest(p vecmath.Vec2) (seg int, s, dist float32) {
	n := len(b.poly)
	best := float32(math32.MaxFloat32)
	for i := 0; i < n; i++ {
		a := b.poly[i]
		c := b.poly[(i+1)%n]
		ac := c.Sub(a)
		denom := ac.LenSq()
		var t float32
		if denom > 0 {
			t = p.Sub(a).Dot(ac) / denom
			if t < 0 {
				t = 0
			} else if t > 1 {
				t = 1
			}
		}
		d := p.Sub(a.Add(ac.Mul(t))).LenSq()
		if d < best {
			best = d
			seg = i
			s = t
		}
	}
	return seg, s, math32.Sqrt(best)
}

// SignedDistance returns the distance from p to the outline, negative
// inside.
func (b *Boundary) SignedDistance(p vecmath.Vec2) float32 {
	_, _, d := b.nearest(p)
	if b.inside(p) {
		return -d
	}
	return d
}

// Coverage returns the anti-aliased coverage of p in [0, 1], ramping
// linearly across +-aaWidth around the outline. Exactly 1 deeper than
// aaWidth inside, exactly 0 farther than aaWidth outside.
func (b *Boundary) Coverage(p vecmath.Vec2, aaWidth float32) float32 {
	if b.degenerate {
		return 0
	}
	if p[0] < b.min[0]-aaWidth || p[0] > b.max[0]+aaWidth ||
		p[1] < b.min[1]-aaWidth || p[1] > b.max[1]+aaWidth {
		return 0
	}
	sd := b.SignedDistance(p)
	cov := 0.5 - sd/(2*aaWidth)
	if cov <= 0 {
		return 0
	}
	if cov >= 1 {
		return 1
	}
	return cov
}

// CoverageGrad returns coverage plus its partial derivative with respect
// to each projected control point. The gradient is nonzero only inside the
// anti-aliasing ramp; in the flat interior and exterior it vanishes, which
// matches the clamped coverage exactly.
func (b *Boundary) CoverageGrad(p vecmath.Vec2, aaWidth float32) (float32, Net2D) {
	var grad Net2D
	if b.degenerate {
		return 0, grad
	}
	if p[0] < b.min[0]-aaWidth || p[0] > b.max[0]+aaWidth ||
		p[1] < b.min[1]-aaWidth || p[1] > b.max[1]+aaWidth {
		return 0, grad
	}

	seg, s, dist := b.nearest(p)
	sd := dist
	neg := b.inside(p)
	if neg {
		sd = -dist
	}
	cov := 0.5 - sd/(2*aaWidth)
	if cov <= 0 {
		return 0, grad
	}
	if cov >= 1 {
		return 1, grad
	}
	if dist == 0 {
		// On the outline the distance direction is undefined; the ramp
		// value is still well defined.
		return cov, grad
	}

	n := len(b.poly)
	a := b.poly[seg]
	c := b.poly[(seg+1)%n]
	closest := a.Add(c.Sub(a).Mul(s))
	dir := p.Sub(closest).Mul(1 / dist) // d dist / d p, unit

	// d dist / d endpoint: moving an endpoint moves the closest point by
	// its barycentric share along the segment.
	dDistA := dir.Mul(-(1 - s))
	dDistC := dir.Mul(-s)

	// d cov / d sd = -1/(2 aaWidth); sd = sign * dist.
	scale := float32(-1) / (2 * aaWidth)
	if neg {
		scale = -scale
	}
	dCovA := dDistA.Mul(scale)
	dCovC := dDistC.Mul(scale)

	b.scatterVertexGrad(seg, dCovA, &grad)
	b.scatterVertexGrad((seg+1)%n, dCovC, &grad)
	return cov, grad
}

// scatterVertexGrad routes a gradient on polygon vertex vi back to the
// three control points of its edge via the stored Bernstein weights.
func (b *Boundary) scatterVertexGrad(vi int, g vecmath.Vec2, grad *Net2D) {
	e := edges[b.vertEdge[vi]]
	w := b.vertB[vi]
	grad[e[0]] = grad[e[0]].Add(g.Mul(w[0]))
	grad[e[1]] = grad[e[1]].Add(g.Mul(w[1]))
	grad[e[2]] = grad[e[2]].Add(g.Mul(w[2]))
}
