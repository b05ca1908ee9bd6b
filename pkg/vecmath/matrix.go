package vecmath

import "github.com/chewxy/math32"

// Mat3 is a row-major 3x3 matrix.
type Mat3 [9]float32

// Identity3 returns the 3x3 identity matrix.
func Identity3() Mat3 {
	return Mat3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// MulVec transforms a 3 component vector.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2],
		m[3]*v[0] + m[4]*v[1] + m[5]*v[2],
		m[6]*v[0] + m[7]*v[1] + m[8]*v[2],
	}
}

// Mul multiplies two 3x3 matrices.
func (m Mat3) Mul(o Mat3) Mat3 {
	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float32
			for k := 0; k < 3; k++ {
				sum += m[i*3+k] * o[k*3+j]
			}
			r[i*3+j] = sum
		}
	}
	return r
}

// Transposed returns the transpose.
func (m Mat3) Transposed() Mat3 {
	return Mat3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// Quat is a rotation quaternion (w, x, y, z).
type Quat struct {
	W, X, Y, Z float32
}

// QuatIdentity returns the identity rotation.
func QuatIdentity() Quat {
	return Quat{W: 1}
}

// Normalize returns a unit quaternion. The zero quaternion normalizes to
// the identity so downstream rotation matrices stay well formed.
func (q Quat) Normalize() Quat {
	n := math32.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n == 0 {
		return QuatIdentity()
	}
	inv := 1.0 / n
	return Quat{q.W * inv, q.X * inv, q.Y * inv, q.Z * inv}
}

// Mat3 converts the quaternion to a rotation matrix. The quaternion is
// normalized first.
func (q Quat) Mat3() Mat3 {
	u := q.Normalize()
	w, x, y, z := u.W, u.X, u.Y, u.Z
	return Mat3{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}
}

// AxisAngle builds a quaternion rotating by angle (radians) around axis.
func AxisAngle(axis Vec3, angle float32) Quat {
	a := axis.Normalize()
	s := math32.Sin(angle / 2)
	return Quat{
		W: math32.Cos(angle / 2),
		X: a[0] * s,
		Y: a[1] * s,
		Z: a[2] * s,
	}
}
