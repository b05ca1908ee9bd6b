package primitive

import (
	"testing"

	"github.com/beztri/engine/pkg/vecmath"
)

func testParams(x float32) Params {
	return Params{
		Ctrl: Net{
			vecmath.XYZ(x, 0, 0), vecmath.XYZ(x+1, 0, 0), vecmath.XYZ(x, 1, 0),
			vecmath.XYZ(x+0.5, 0, 0), vecmath.XYZ(x+0.5, 0.5, 0), vecmath.XYZ(x, 0.5, 0),
		},
		LogScale: vecmath.XYZ(-1, -1, -1),
		Rot:      vecmath.QuatIdentity(),
		Opacity:  0.8,
		SH:       []float32{0.5, 0.25, 0.125},
	}
}

func TestStoreSlotReuse(t *testing.T) {
	s, err := NewStore(0)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	a := s.Add(testParams(0))
	b := s.Add(testParams(1))
	c := s.Add(testParams(2))
	if s.Len() != 3 || s.Slots() != 3 {
		t.Fatalf("expected 3 live in 3 slots, got %d in %d", s.Len(), s.Slots())
	}

	s.Remove(b)
	if s.Alive(b) {
		t.Fatal("removed slot still alive")
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 live, got %d", s.Len())
	}

	// Indices of survivors must not shift.
	if !s.Alive(a) || !s.Alive(c) {
		t.Fatal("removal shifted surviving slots")
	}

	d := s.Add(testParams(3))
	if d != b {
		t.Fatalf("expected free slot %d to be reused, got %d", b, d)
	}
	if s.Slots() != 3 {
		t.Fatalf("expected arena to stay at 3 slots, got %d", s.Slots())
	}

	// Creation order keeps increasing across reuse.
	if s.Created(d) <= s.Created(c) {
		t.Fatalf("expected creation sequence to increase, got %d after %d", s.Created(d), s.Created(c))
	}
}

func TestStoreRemoveDeadSlot(t *testing.T) {
	s, _ := NewStore(0)
	i := s.Add(testParams(0))
	s.Remove(i)
	s.Remove(i) // must be a no-op
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
	if got := len(s.free); got != 1 {
		t.Fatalf("expected a single free slot entry, got %d", got)
	}
}

func TestStoreOpacityClamped(t *testing.T) {
	s, _ := NewStore(0)
	i := s.Add(testParams(0))
	s.SetOpacity(i, 1.5)
	if s.Opacity(i) != 1 {
		t.Fatalf("expected opacity clamped to 1, got %g", s.Opacity(i))
	}
	s.SetOpacity(i, -0.5)
	if s.Opacity(i) != 0 {
		t.Fatalf("expected opacity clamped to 0, got %g", s.Opacity(i))
	}
}

func TestStoreSHStride(t *testing.T) {
	s, err := NewStore(2)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if s.SHStride() != 9*3 {
		t.Fatalf("expected 27 SH floats for degree 2, got %d", s.SHStride())
	}
	i := s.Add(testParams(0))
	if got := len(s.SH(i)); got != 27 {
		t.Fatalf("expected 27-float SH view, got %d", got)
	}
	// Short input is zero-padded.
	if s.SH(i)[3] != 0 {
		t.Fatalf("expected zero-padded SH tail, got %g", s.SH(i)[3])
	}
}

func TestNewStoreRejectsBadDegree(t *testing.T) {
	if _, err := NewStore(4); err == nil {
		t.Fatal("expected error for SH degree 4")
	}
}
