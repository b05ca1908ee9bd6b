// Package gaussian implements the smooth opacity falloff attached to each
// primitive: a 3D Gaussian built from log-scales and a rotation, projected
// to a screen-space conic, plus spherical-harmonic color evaluation. All
// forward functions have matching backward counterparts.
package gaussian

import (
	"github.com/chewxy/math32"

	"github.com/beztri/engine/internal/camera"
	"github.com/beztri/engine/pkg/vecmath"
)

// lowPass is added to the diagonal of the projected covariance so no
// primitive shrinks below roughly a third of a pixel. It also keeps the
// covariance invertible for near-degenerate scales.
const lowPass = 0.3

// Sym3 is a symmetric 3x3 matrix stored as xx, xy, xz, yy, yz, zz.
type Sym3 [6]float32

// Conic holds the inverse of a 2x2 screen-space covariance, entries
// [[A, B], [B, C]].
type Conic struct {
	A, B, C float32
}

// Projection is the screen-space footprint of one Gaussian.
type Projection struct {
	Mean   vecmath.Vec2
	Depth  float32
	Conic  Conic
	Cov2D  [3]float32 // a, b, c prior to inversion; kept for backward
	Radius float32    // 3-sigma extent in pixels
	OK     bool       // false when the covariance is ill-conditioned
}

// Cov3D builds the world-space covariance R*S*S^T*R^T from log-scales and
// rotation. mult is the global gaussian scale multiplier applied to the
// standard deviations.
func Cov3D(logScale vecmath.Vec3, rot vecmath.Quat, mult float32) Sym3 {
	s := vecmath.Vec3{
		mult * math32.Exp(logScale[0]),
		mult * math32.Exp(logScale[1]),
		mult * math32.Exp(logScale[2]),
	}
	r := rot.Mat3()
	// M = R * S, columns scaled.
	var m vecmath.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i*3+j] = r[i*3+j] * s[j]
		}
	}
	return Sym3{
		m[0]*m[0] + m[1]*m[1] + m[2]*m[2],
		m[0]*m[3] + m[1]*m[4] + m[2]*m[5],
		m[0]*m[6] + m[1]*m[7] + m[2]*m[8],
		m[3]*m[3] + m[4]*m[4] + m[5]*m[5],
		m[3]*m[6] + m[4]*m[7] + m[5]*m[8],
		m[6]*m[6] + m[7]*m[7] + m[8]*m[8],
	}
}

// Project maps a world-space Gaussian into screen space with the EWA
// approximation: Sigma' = J*W*Sigma*W^T*J^T, where J is the projection
// Jacobian at the view-space mean and W the camera rotation. A false OK
// means the primitive must be excluded from the frame (degenerate
// covariance), never an error.
func Project(cam *camera.Camera, center vecmath.Vec3, cov3 Sym3) Projection {
	view := cam.View(center)
	mean, ok := cam.Project(view)
	if !ok {
		return Projection{}
	}

	t := projJW(cam, view)
	a, b, c := projectCov(t, cov3)
	a += lowPass
	c += lowPass

	det := a*c - b*b
	if det <= 0 || math32.IsNaN(det) || math32.IsInf(det, 0) {
		return Projection{}
	}
	invDet := 1 / det

	mid := (a + c) / 2
	lambda := mid + math32.Sqrt(math32.Max(0.1, mid*mid-det))

	return Projection{
		Mean:   mean,
		Depth:  view[2],
		Conic:  Conic{A: c * invDet, B: -b * invDet, C: a * invDet},
		Cov2D:  [3]float32{a, b, c},
		Radius: 3 * math32.Sqrt(lambda),
		OK:     true,
	}
}

// Weight evaluates the unnormalized Gaussian kernel at offset d from the
// projected mean. The result is in (0, 1].
func Weight(con Conic, d vecmath.Vec2) float32 {
	power := -0.5*(con.A*d[0]*d[0]+con.C*d[1]*d[1]) - con.B*d[0]*d[1]
	if power > 0 {
		// Only reachable through numerical noise; the quadratic form is
		// positive semi-definite for a valid conic.
		return 1
	}
	return math32.Exp(power)
}

// projJW returns T = J*W as a 2x3 row-major matrix.
func projJW(cam *camera.Camera, view vecmath.Vec3) [6]float32 {
	jx, jy := cam.Jacobian(view)
	w := cam.R
	var t [6]float32
	for j := 0; j < 3; j++ {
		t[j] = jx[0]*w[0+j] + jx[1]*w[3+j] + jx[2]*w[6+j]
		t[3+j] = jy[0]*w[0+j] + jy[1]*w[3+j] + jy[2]*w[6+j]
	}
	return t
}

// projectCov computes the upper 2x2 of T*Sigma*T^T for symmetric Sigma.
func projectCov(t [6]float32, s Sym3) (a, b, c float32) {
	// Rows of T times Sigma.
	r0 := [3]float32{
		t[0]*s[0] + t[1]*s[1] + t[2]*s[2],
		t[0]*s[1] + t[1]*s[3] + t[2]*s[4],
		t[0]*s[2] + t[1]*s[4] + t[2]*s[5],
	}
	r1 := [3]float32{
		t[3]*s[0] + t[4]*s[1] + t[5]*s[2],
		t[3]*s[1] + t[4]*s[3] + t[5]*s[4],
		t[3]*s[2] + t[4]*s[4] + t[5]*s[5],
	}
	a = r0[0]*t[0] + r0[1]*t[1] + r0[2]*t[2]
	b = r0[0]*t[3] + r0[1]*t[4] + r0[2]*t[5]
	c = r1[0]*t[3] + r1[1]*t[4] + r1[2]*t[5]
	return a, b, c
}
