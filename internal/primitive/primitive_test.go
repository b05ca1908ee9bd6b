package primitive

import (
	"math/rand"
	"testing"

	"github.com/beztri/engine/pkg/vecmath"
)

func curvedNet() Net {
	return Net{
		vecmath.XYZ(0, 0, 0),
		vecmath.XYZ(2, 0, 0),
		vecmath.XYZ(1, 2, 0),
		vecmath.XYZ(1, -0.4, 0.2), // bulge the AB edge
		vecmath.XYZ(1.7, 1.1, 0),
		vecmath.XYZ(0.3, 1.1, -0.1),
	}
}

func TestNetEvalCorners(t *testing.T) {
	n := curvedNet()
	cases := []struct {
		u, v, w float32
		want    vecmath.Vec3
	}{
		{1, 0, 0, n[CornerA]},
		{0, 1, 0, n[CornerB]},
		{0, 0, 1, n[CornerC]},
	}
	for _, c := range cases {
		got := n.Eval(c.u, c.v, c.w)
		if got.Sub(c.want).Len() > 1e-6 {
			t.Fatalf("Eval(%g,%g,%g) = %v, want %v", c.u, c.v, c.w, got, c.want)
		}
	}
}

func TestNetSubdivideReproducesSurface(t *testing.T) {
	n := curvedNet()
	children := n.Subdivide()

	// Child barycentric frames in parent coordinates.
	frames := [4][3][3]float32{
		{{1, 0, 0}, {0.5, 0.5, 0}, {0.5, 0, 0.5}},
		{{0.5, 0.5, 0}, {0, 1, 0}, {0, 0.5, 0.5}},
		{{0.5, 0, 0.5}, {0, 0.5, 0.5}, {0, 0, 1}},
		{{0.5, 0.5, 0}, {0, 0.5, 0.5}, {0.5, 0, 0.5}},
	}

	rng := rand.New(rand.NewSource(7))
	for ci, child := range children {
		for trial := 0; trial < 50; trial++ {
			u := rng.Float32()
			v := rng.Float32() * (1 - u)
			w := 1 - u - v

			// Map the child-local barycentric point into the parent.
			var pu, pv, pw float32
			f := frames[ci]
			pu = u*f[0][0] + v*f[1][0] + w*f[2][0]
			pv = u*f[0][1] + v*f[1][1] + w*f[2][1]
			pw = u*f[0][2] + v*f[1][2] + w*f[2][2]

			got := child.Eval(u, v, w)
			want := n.Eval(pu, pv, pw)
			if got.Sub(want).Len() > 1e-5 {
				t.Fatalf("child %d Eval(%g,%g,%g) = %v, parent gives %v", ci, u, v, w, got, want)
			}
		}
	}
}

func TestNetDegenerate(t *testing.T) {
	n := curvedNet()
	if n.Degenerate() {
		t.Fatal("curved net flagged degenerate")
	}

	var collapsed Net
	for i := range collapsed {
		collapsed[i] = vecmath.XYZ(1, 1, 1)
	}
	if !collapsed.Degenerate() {
		t.Fatal("collapsed net not flagged degenerate")
	}
}

func TestNetLinearized(t *testing.T) {
	n := curvedNet()
	l := n.Linearized()
	mid := n[CornerA].Lerp(n[CornerB], 0.5)
	if l[MidAB].Sub(mid).Len() > 1e-6 {
		t.Fatalf("expected mid-edge point at edge midpoint, got %v", l[MidAB])
	}
	if l[CornerA] != n[CornerA] || l[CornerB] != n[CornerB] || l[CornerC] != n[CornerC] {
		t.Fatal("linearization moved a corner")
	}
}

func TestSHCoeffsForDegree(t *testing.T) {
	want := []int{1, 4, 9, 16}
	for deg, n := range want {
		if got := SHCoeffsForDegree(deg); got != n {
			t.Fatalf("degree %d: got %d coeffs, want %d", deg, got, n)
		}
	}
}
