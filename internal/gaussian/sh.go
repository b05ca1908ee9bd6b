package gaussian

import (
	"github.com/beztri/engine/pkg/vecmath"
)

// Real spherical harmonic constants, bands 0 to 3.
var (
	shC0 = float32(0.28209479177387814)
	shC1 = float32(0.4886025119029199)
	shC2 = [5]float32{
		1.0925484305920792,
		-1.0925484305920792,
		0.31539156525252005,
		-1.0925484305920792,
		0.5462742152960396,
	}
	shC3 = [7]float32{
		-0.5900435899266435,
		2.890611442640554,
		-0.4570457994644658,
		0.3731763325901154,
		-0.4570457994644658,
		1.445305721320277,
		-0.5900435899266435,
	}
)

// SHBasis evaluates the spherical harmonic basis for the given degree
// along unit direction dir. The result has SHCoeffsForDegree(degree)
// entries.
func SHBasis(degree int, dir vecmath.Vec3) []float32 {
	x, y, z := dir[0], dir[1], dir[2]
	basis := make([]float32, (degree+1)*(degree+1))
	basis[0] = shC0
	if degree < 1 {
		return basis
	}
	basis[1] = -shC1 * y
	basis[2] = shC1 * z
	basis[3] = -shC1 * x
	if degree < 2 {
		return basis
	}
	xx, yy, zz := x*x, y*y, z*z
	xy, yz, xz := x*y, y*z, x*z
	basis[4] = shC2[0] * xy
	basis[5] = shC2[1] * yz
	basis[6] = shC2[2] * (2*zz - xx - yy)
	basis[7] = shC2[3] * xz
	basis[8] = shC2[4] * (xx - yy)
	if degree < 3 {
		return basis
	}
	basis[9] = shC3[0] * y * (3*xx - yy)
	basis[10] = shC3[1] * xy * z
	basis[11] = shC3[2] * y * (4*zz - xx - yy)
	basis[12] = shC3[3] * z * (2*zz - 3*xx - 3*yy)
	basis[13] = shC3[4] * x * (4*zz - xx - yy)
	basis[14] = shC3[5] * z * (xx - yy)
	basis[15] = shC3[6] * x * (xx - 3*yy)
	return basis
}

// EvalSH evaluates the view-dependent color for coefficients laid out as
// RGB triplets per basis function. A 0.5 offset recenters the DC band; the
// result is clamped at zero per channel. The returned mask records which
// channels were clamped so gradients can be zeroed there.
func EvalSH(degree int, coeffs []float32, dir vecmath.Vec3) (rgb vecmath.Vec3, clamped [3]bool) {
	basis := SHBasis(degree, dir)
	for k, b := range basis {
		rgb[0] += b * coeffs[k*3+0]
		rgb[1] += b * coeffs[k*3+1]
		rgb[2] += b * coeffs[k*3+2]
	}
	for ch := 0; ch < 3; ch++ {
		rgb[ch] += 0.5
		if rgb[ch] < 0 {
			rgb[ch] = 0
			clamped[ch] = true
		}
	}
	return rgb, clamped
}

// EvalSHGrad scatters an upstream color gradient onto the coefficient
// gradient slice (same layout as the coefficients), honoring the clamp
// mask from the forward evaluation.
func EvalSHGrad(degree int, dir vecmath.Vec3, dColor vecmath.Vec3, clamped [3]bool, dCoeffs []float32) {
	basis := SHBasis(degree, dir)
	for ch := 0; ch < 3; ch++ {
		if clamped[ch] {
			continue
		}
		for k, b := range basis {
			dCoeffs[k*3+ch] += b * dColor[ch]
		}
	}
}
