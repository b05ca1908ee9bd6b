package primitive

import (
	"fmt"

	"github.com/beztri/engine/pkg/vecmath"
)

// Store is an arena of primitives with stable indices. Removing a
// primitive marks its slot free for reuse instead of shifting later
// indices, so per-primitive accumulators stay valid across a frame.
type Store struct {
	ctrl     []vecmath.Vec3 // len = slots*ControlPoints
	logScale []vecmath.Vec3
	rot      []vecmath.Quat
	opacity  []float32
	sh       []float32 // len = slots*shStride
	linear   []bool
	alive    []bool
	created  []uint64

	shDegree int
	shStride int
	nextSeq  uint64
	free     []int
	count    int

	// Iteration is the optimization step counter carried through
	// checkpoints.
	Iteration int
}

// NewStore creates an empty store for primitives with the given
// spherical-harmonic degree (0..3).
func NewStore(shDegree int) (*Store, error) {
	if shDegree < 0 || shDegree > 3 {
		return nil, fmt.Errorf("unsupported SH degree %d", shDegree)
	}
	return &Store{
		shDegree: shDegree,
		shStride: SHCoeffsForDegree(shDegree) * 3,
	}, nil
}

// SHDegree returns the spherical-harmonic degree of stored colors.
func (s *Store) SHDegree() int {
	return s.shDegree
}

// SHStride returns the number of stored floats per primitive color.
func (s *Store) SHStride() int {
	return s.shStride
}

// Slots returns the arena size, including free slots. Valid primitive
// indices are in [0, Slots).
func (s *Store) Slots() int {
	return len(s.opacity)
}

// Len returns the number of live primitives.
func (s *Store) Len() int {
	return s.count
}

// Alive reports whether slot i holds a live primitive.
func (s *Store) Alive(i int) bool {
	return i >= 0 && i < len(s.alive) && s.alive[i]
}

// Created returns the creation sequence number of slot i, the depth-sort
// tie-break key.
func (s *Store) Created(i int) uint64 {
	return s.created[i]
}

// Net returns a copy of the control net of slot i.
func (s *Store) Net(i int) Net {
	var n Net
	copy(n[:], s.ctrl[i*ControlPoints:(i+1)*ControlPoints])
	return n
}

// SetNet replaces the control net of slot i.
func (s *Store) SetNet(i int, n Net) {
	copy(s.ctrl[i*ControlPoints:(i+1)*ControlPoints], n[:])
}

// LogScale returns the Gaussian log-scales of slot i.
func (s *Store) LogScale(i int) vecmath.Vec3 {
	return s.logScale[i]
}

// SetLogScale replaces the Gaussian log-scales of slot i.
func (s *Store) SetLogScale(i int, v vecmath.Vec3) {
	s.logScale[i] = v
}

// Rot returns the Gaussian rotation of slot i.
func (s *Store) Rot(i int) vecmath.Quat {
	return s.rot[i]
}

// SetRot replaces the Gaussian rotation of slot i.
func (s *Store) SetRot(i int, q vecmath.Quat) {
	s.rot[i] = q
}

// Opacity returns the opacity of slot i.
func (s *Store) Opacity(i int) float32 {
	return s.opacity[i]
}

// SetOpacity replaces the opacity of slot i, clamped to [0, 1].
func (s *Store) SetOpacity(i int, o float32) {
	if o < 0 {
		o = 0
	} else if o > 1 {
		o = 1
	}
	s.opacity[i] = o
}

// SH returns the spherical-harmonic coefficients of slot i as a view into
// the arena. The caller must not retain it across density control.
func (s *Store) SH(i int) []float32 {
	return s.sh[i*s.shStride : (i+1)*s.shStride]
}

// IsLinear reports whether slot i has been coarsened to straight edges.
func (s *Store) IsLinear(i int) bool {
	return s.linear[i]
}

// SetLinear marks slot i as straight-edged.
func (s *Store) SetLinear(i int, v bool) {
	s.linear[i] = v
}

// Add inserts a primitive, reusing a free slot when available, and returns
// its index.
func (s *Store) Add(p Params) int {
	var i int
	if n := len(s.free); n > 0 {
		i = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		i = len(s.opacity)
		s.ctrl = append(s.ctrl, make([]vecmath.Vec3, ControlPoints)...)
		s.logScale = append(s.logScale, vecmath.Vec3{})
		s.rot = append(s.rot, vecmath.Quat{})
		s.opacity = append(s.opacity, 0)
		s.sh = append(s.sh, make([]float32, s.shStride)...)
		s.linear = append(s.linear, false)
		s.alive = append(s.alive, false)
		s.created = append(s.created, 0)
	}

	s.SetNet(i, p.Ctrl)
	s.logScale[i] = p.LogScale
	s.rot[i] = p.Rot.Normalize()
	s.SetOpacity(i, p.Opacity)
	dst := s.SH(i)
	for k := range dst {
		dst[k] = 0
	}
	copy(dst, p.SH)
	s.linear[i] = false
	s.alive[i] = true
	s.created[i] = s.nextSeq
	s.nextSeq++
	s.count++
	return i
}

// Remove frees slot i. Removing a dead slot is a no-op.
func (s *Store) Remove(i int) {
	if !s.Alive(i) {
		return
	}
	s.alive[i] = false
	s.free = append(s.free, i)
	s.count--
}

// Params returns a copy of the full parameter set of slot i.
func (s *Store) Params(i int) Params {
	sh := make([]float32, s.shStride)
	copy(sh, s.SH(i))
	return Params{
		Ctrl:     s.Net(i),
		LogScale: s.logScale[i],
		Rot:      s.rot[i],
		Opacity:  s.opacity[i],
		SH:       sh,
	}
}

// Each calls fn for every live primitive index in slot order.
func (s *Store) Each(fn func(i int)) {
	for i := range s.alive {
		if s.alive[i] {
			fn(i)
		}
	}
}
