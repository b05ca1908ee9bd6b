package gaussian

import (
	"github.com/chewxy/math32"

	"github.com/beztri/engine/internal/camera"
	"github.com/beztri/engine/pkg/vecmath"
)

// WeightGrad returns the derivative of the Gaussian weight with respect to
// the projected mean and the conic entries, given the forward weight w at
// offset d = pixel - mean.
func WeightGrad(con Conic, d vecmath.Vec2, w float32) (dMean vecmath.Vec2, dConic [3]float32) {
	// power = -0.5*(A dx^2 + 2 B dx dy + C dy^2); d = p - mean.
	gx := con.A*d[0] + con.B*d[1]
	gy := con.B*d[0] + con.C*d[1]
	dMean = vecmath.Vec2{w * gx, w * gy}
	dConic = [3]float32{
		-0.5 * w * d[0] * d[0],
		-w * d[0] * d[1],
		-0.5 * w * d[1] * d[1],
	}
	return dMean, dConic
}

// ConicBackward pulls a gradient on the conic entries back to the 2x2
// covariance (a, b, c), using d(inv S)/dS = -inv(S) dS inv(S).
func ConicBackward(cov2 [3]float32, dConic [3]float32) [3]float32 {
	a, b, c := cov2[0], cov2[1], cov2[2]
	det := a*c - b*b
	if det == 0 {
		return [3]float32{}
	}
	inv := 1 / det
	ia, ib, ic := c*inv, -b*inv, a*inv

	// Off-diagonal parameters are shared between two matrix entries.
	g00, g11 := dConic[0], dConic[2]
	g01 := dConic[1] / 2

	// G = -Inv * Ghat * Inv, Inv = [[ia, ib], [ib, ic]].
	m00 := ia*g00 + ib*g01
	m01 := ia*g01 + ib*g11
	m10 := ib*g00 + ic*g01
	m11 := ib*g01 + ic*g11

	o00 := -(m00*ia + m01*ib)
	o01 := -(m00*ib + m01*ic)
	o10 := -(m10*ia + m11*ib)
	o11 := -(m10*ib + m11*ic)

	return [3]float32{o00, o01 + o10, o11}
}

// Cov2DBackward pulls a gradient on the projected 2x2 covariance back to
// the 3D covariance through Sigma' = T*Sigma*T^T. The Jacobian is treated
// as constant at the view-space mean.
func Cov2DBackward(cam *camera.Camera, center vecmath.Vec3, dCov2 [3]float32) Sym3 {
	view := cam.View(center)
	t := projJW(cam, view)

	g00, g11 := dCov2[0], dCov2[2]
	g01 := dCov2[1] / 2

	// G3 = T^T * G2 * T with G2 = [[g00, g01], [g01, g11]].
	var g3 [3][3]float32
	for i := 0; i < 3; i++ {
		// Column i of T is (t[i], t[3+i]).
		u0 := t[i]*g00 + t[3+i]*g01
		u1 := t[i]*g01 + t[3+i]*g11
		for j := 0; j < 3; j++ {
			g3[i][j] = u0*t[j] + u1*t[3+j]
		}
	}
	return Sym3{
		g3[0][0],
		g3[0][1] + g3[1][0],
		g3[0][2] + g3[2][0],
		g3[1][1],
		g3[1][2] + g3[2][1],
		g3[2][2],
	}
}

// Cov3DBackward pulls a gradient on the 3D covariance back to the
// log-scales and the rotation quaternion, through Sigma = M*M^T, M = R*S.
func Cov3DBackward(logScale vecmath.Vec3, rot vecmath.Quat, mult float32, dCov3 Sym3) (dLogScale vecmath.Vec3, dRot [4]float32) {
	s := vecmath.Vec3{
		mult * math32.Exp(logScale[0]),
		mult * math32.Exp(logScale[1]),
		mult * math32.Exp(logScale[2]),
	}
	u := rot.Normalize()
	r := u.Mat3()

	var m vecmath.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i*3+j] = r[i*3+j] * s[j]
		}
	}

	// Full-matrix gradient of Sigma; off-diagonal parameters split evenly.
	g := [3][3]float32{
		{dCov3[0], dCov3[1] / 2, dCov3[2] / 2},
		{dCov3[1] / 2, dCov3[3], dCov3[4] / 2},
		{dCov3[2] / 2, dCov3[4] / 2, dCov3[5]},
	}

	// dL/dM = (G + G^T) * M = 2*G*M since G is symmetric.
	var gm vecmath.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float32
			for k := 0; k < 3; k++ {
				sum += 2 * g[i][k] * m[k*3+j]
			}
			gm[i*3+j] = sum
		}
	}

	// dL/dS_jj = column j of R dotted with column j of dL/dM;
	// dS/dlogScale_j = S_jj.
	for j := 0; j < 3; j++ {
		var d float32
		for i := 0; i < 3; i++ {
			d += r[i*3+j] * gm[i*3+j]
		}
		dLogScale[j] = d * s[j]
	}

	// dL/dR = dL/dM * S.
	var gr vecmath.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			gr[i*3+j] = gm[i*3+j] * s[j]
		}
	}

	dUnit := rotationGrad(u, gr)

	// Chain through quaternion normalization: d u/d q = (I - u u^T)/|q|.
	n := math32.Sqrt(rot.W*rot.W + rot.X*rot.X + rot.Y*rot.Y + rot.Z*rot.Z)
	if n == 0 {
		return dLogScale, [4]float32{}
	}
	uq := [4]float32{u.W, u.X, u.Y, u.Z}
	var dot float32
	for k := 0; k < 4; k++ {
		dot += dUnit[k] * uq[k]
	}
	for k := 0; k < 4; k++ {
		dRot[k] = (dUnit[k] - dot*uq[k]) / n
	}
	return dLogScale, dRot
}

// rotationGrad contracts a gradient on the rotation matrix entries with
// dR/dq for a unit quaternion u.
func rotationGrad(u vecmath.Quat, gr vecmath.Mat3) [4]float32 {
	w, x, y, z := u.W, u.X, u.Y, u.Z

	dRdW := [9]float32{
		0, -2 * z, 2 * y,
		2 * z, 0, -2 * x,
		-2 * y, 2 * x, 0,
	}
	dRdX := [9]float32{
		0, 2 * y, 2 * z,
		2 * y, -4 * x, -2 * w,
		2 * z, 2 * w, -4 * x,
	}
	dRdY := [9]float32{
		-4 * y, 2 * x, 2 * w,
		2 * x, 0, 2 * z,
		-2 * w, 2 * z, -4 * y,
	}
	dRdZ := [9]float32{
		-4 * z, -2 * w, 2 * x,
		2 * w, -4 * z, 2 * y,
		2 * x, 2 * y, 0,
	}

	var out [4]float32
	for i := 0; i < 9; i++ {
		out[0] += gr[i] * dRdW[i]
		out[1] += gr[i] * dRdX[i]
		out[2] += gr[i] * dRdY[i]
		out[3] += gr[i] * dRdZ[i]
	}
	return out
}
