// Package camera provides the pinhole camera model used for projecting
// primitives into screen space.
package camera

import (
	"github.com/chewxy/math32"

	"github.com/beztri/engine/pkg/vecmath"
)

// Near is the view-space near plane. Points with a smaller depth are
// outside the frustum.
const Near = 0.01

// Camera describes a posed pinhole camera. R and T map world space to view
// space (view = R*p + T), with +z pointing into the screen.
type Camera struct {
	R      vecmath.Mat3
	T      vecmath.Vec3
	FoVx   float32 // horizontal field of view, radians
	FoVy   float32 // vertical field of view, radians
	Width  int
	Height int
}

// Fx returns the horizontal focal length in pixels.
func (c *Camera) Fx() float32 {
	return float32(c.Width) / (2 * math32.Tan(c.FoVx/2))
}

// Fy returns the vertical focal length in pixels.
func (c *Camera) Fy() float32 {
	return float32(c.Height) / (2 * math32.Tan(c.FoVy/2))
}

// View transforms a world-space point into view space.
func (c *Camera) View(p vecmath.Vec3) vecmath.Vec3 {
	return c.R.MulVec(p).Add(c.T)
}

// Project maps a view-space point to pixel coordinates. The second return
// is false when the point is behind the near plane.
func (c *Camera) Project(v vecmath.Vec3) (vecmath.Vec2, bool) {
	if v[2] < Near {
		return vecmath.Vec2{}, false
	}
	return vecmath.Vec2{
		c.Fx()*v[0]/v[2] + float32(c.Width)/2,
		c.Fy()*v[1]/v[2] + float32(c.Height)/2,
	}, true
}

// ProjectWorld composes View and Project.
func (c *Camera) ProjectWorld(p vecmath.Vec3) (vecmath.Vec2, float32, bool) {
	v := c.View(p)
	s, ok := c.Project(v)
	return s, v[2], ok
}

// Jacobian returns the 2x3 derivative of Project with respect to the
// view-space point, rows packed as (dx/dv, dy/dv).
func (c *Camera) Jacobian(v vecmath.Vec3) (jx, jy vecmath.Vec3) {
	invZ := 1.0 / v[2]
	fx, fy := c.Fx(), c.Fy()
	jx = vecmath.Vec3{fx * invZ, 0, -fx * v[0] * invZ * invZ}
	jy = vecmath.Vec3{0, fy * invZ, -fy * v[1] * invZ * invZ}
	return jx, jy
}

// ScreenGradToWorld chains a screen-space gradient at view-space point v
// back to world space through the projection and the camera rotation.
func (c *Camera) ScreenGradToWorld(v vecmath.Vec3, g vecmath.Vec2) vecmath.Vec3 {
	jx, jy := c.Jacobian(v)
	gv := jx.Mul(g[0]).Add(jy.Mul(g[1]))
	// view = R*p + T, so d view/d p = R and the pullback is R^T.
	return c.R.Transposed().MulVec(gv)
}

// LookAt builds a camera positioned at eye looking at target.
func LookAt(eye, target, up vecmath.Vec3, fovY float32, width, height int) *Camera {
	fwd := target.Sub(eye).Normalize()
	right := up.Cross(fwd).Normalize()
	down := fwd.Cross(right).Normalize()

	r := vecmath.Mat3{
		right[0], right[1], right[2],
		down[0], down[1], down[2],
		fwd[0], fwd[1], fwd[2],
	}
	aspect := float32(width) / float32(height)
	fovX := 2 * math32.Atan(math32.Tan(fovY/2)*aspect)
	return &Camera{
		R:      r,
		T:      r.MulVec(eye).Mul(-1),
		FoVx:   fovX,
		FoVy:   fovY,
		Width:  width,
		Height: height,
	}
}

// Orbit builds a camera on a sphere around target, parameterized by yaw and
// pitch in radians. Used by the viewer.
func Orbit(target vecmath.Vec3, radius, yaw, pitch, fovY float32, width, height int) *Camera {
	cp := math32.Cos(pitch)
	eye := target.Add(vecmath.Vec3{
		radius * cp * math32.Sin(yaw),
		radius * math32.Sin(pitch),
		-radius * cp * math32.Cos(yaw),
	})
	return LookAt(eye, target, vecmath.XYZ(0, 1, 0), fovY, width, height)
}
