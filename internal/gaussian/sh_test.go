package gaussian

import (
	"testing"

	"github.com/chewxy/math32"

	"github.com/beztri/engine/pkg/vecmath"
)

func TestEvalSHDegreeZeroIsPlainColor(t *testing.T) {
	// Degree 0 must reduce to a view-independent color: C0*coeff + 0.5.
	coeffs := []float32{0.8, -0.4, 1.2}
	for _, dir := range []vecmath.Vec3{
		vecmath.XYZ(0, 0, 1),
		vecmath.XYZ(1, 0, 0).Normalize(),
		vecmath.XYZ(1, -2, 3).Normalize(),
	} {
		rgb, _ := EvalSH(0, coeffs, dir)
		for ch := 0; ch < 3; ch++ {
			want := shC0*coeffs[ch] + 0.5
			if want < 0 {
				want = 0
			}
			if math32.Abs(rgb[ch]-want) > 1e-6 {
				t.Fatalf("dir %v ch %d: got %g, want %g", dir, ch, rgb[ch], want)
			}
		}
	}
}

func TestEvalSHClampMask(t *testing.T) {
	coeffs := []float32{-10, 0, 0.2}
	rgb, clamped := EvalSH(0, coeffs, vecmath.XYZ(0, 0, 1))
	if rgb[0] != 0 || !clamped[0] {
		t.Fatalf("expected clamped red channel, got %g (mask %v)", rgb[0], clamped[0])
	}
	if clamped[2] {
		t.Fatal("unexpected clamp on blue channel")
	}
}

func TestSHBasisLength(t *testing.T) {
	dir := vecmath.XYZ(0.3, -0.5, 0.8).Normalize()
	for deg := 0; deg <= 3; deg++ {
		if got := len(SHBasis(deg, dir)); got != (deg+1)*(deg+1) {
			t.Fatalf("degree %d: basis length %d", deg, got)
		}
	}
}

func TestEvalSHGradMatchesFiniteDifference(t *testing.T) {
	const deg = 2
	dir := vecmath.XYZ(0.2, 0.9, -0.4).Normalize()
	n := (deg + 1) * (deg + 1) * 3
	coeffs := make([]float32, n)
	for k := range coeffs {
		coeffs[k] = 0.3 * float32(k%5-2)
	}

	_, clamped := EvalSH(deg, coeffs, dir)
	upstream := vecmath.XYZ(1, -0.5, 2)
	grad := make([]float32, n)
	EvalSHGrad(deg, dir, upstream, clamped, grad)

	const eps = 1e-3
	for k := 0; k < n; k++ {
		plus := make([]float32, n)
		minus := make([]float32, n)
		copy(plus, coeffs)
		copy(minus, coeffs)
		plus[k] += eps
		minus[k] -= eps
		rp, _ := EvalSH(deg, plus, dir)
		rm, _ := EvalSH(deg, minus, dir)
		fd := (rp.Sub(rm).Dot(upstream)) / (2 * eps)
		if math32.Abs(fd-grad[k]) > 1e-3 {
			t.Fatalf("coeff %d: finite diff %g vs analytic %g", k, fd, grad[k])
		}
	}
}
