// Package densify owns the per-primitive training statistics and the
// adaptive population controller that splits, prunes and coarsens
// primitives between optimization steps.
package densify

import (
	"math"
	"sync/atomic"
	"unsafe"
)

// Accumulator keeps running per-primitive statistics across an
// accumulation window: summed screen-space gradient magnitude, the number
// of frames the primitive was observed, the largest projected area and a
// visibility touch counter. Slots are indexed by primitive store slot;
// the arena's stable indices keep entries valid while frames are in
// flight.
type Accumulator struct {
	GradSum []float32
	Frames  []int32
	MaxArea []float32
	Touch   []int64
}

// NewAccumulator creates an accumulator sized for the given number of
// store slots.
func NewAccumulator(slots int) *Accumulator {
	a := &Accumulator{}
	a.Resize(slots)
	return a
}

// Resize grows the accumulator to cover at least slots entries. Existing
// statistics are preserved. Called after density control adds primitives.
func (a *Accumulator) Resize(slots int) {
	for len(a.GradSum) < slots {
		a.GradSum = append(a.GradSum, 0)
		a.Frames = append(a.Frames, 0)
		a.MaxArea = append(a.MaxArea, 0)
		a.Touch = append(a.Touch, 0)
	}
}

// Observe folds one frame's statistics for slot i into the running sums.
// Safe for concurrent use, including on the same slot: backward passes
// from overlapping frames land on shared entries.
func (a *Accumulator) Observe(i int, gradNorm, area float32, touched int64) {
	atomicAddF32(&a.GradSum[i], gradNorm)
	atomic.AddInt32(&a.Frames[i], 1)
	atomicMaxF32(&a.MaxArea[i], area)
	atomic.AddInt64(&a.Touch[i], touched)
}

// atomicAddF32 adds v to *addr with a compare-and-swap loop.
func atomicAddF32(addr *float32, v float32) {
	if v == 0 {
		return
	}
	ptr := (*uint32)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint32(ptr)
		val := math.Float32frombits(old) + v
		if atomic.CompareAndSwapUint32(ptr, old, math.Float32bits(val)) {
			return
		}
	}
}

// atomicMaxF32 raises *addr to v if v is larger.
func atomicMaxF32(addr *float32, v float32) {
	ptr := (*uint32)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint32(ptr)
		if math.Float32frombits(old) >= v {
			return
		}
		if atomic.CompareAndSwapUint32(ptr, old, math.Float32bits(v)) {
			return
		}
	}
}

// MeanGrad returns the average per-frame gradient magnitude of slot i.
// Loads are atomic so heatmap reads may overlap a backward pass.
func (a *Accumulator) MeanGrad(i int) float32 {
	frames := atomic.LoadInt32(&a.Frames[i])
	if frames == 0 {
		return 0
	}
	sum := math.Float32frombits(atomic.LoadUint32((*uint32)(unsafe.Pointer(&a.GradSum[i]))))
	return sum / float32(frames)
}

// Reset clears slot i, typically after the controller consumed it or
// replaced the primitive.
func (a *Accumulator) Reset(i int) {
	a.GradSum[i] = 0
	a.Frames[i] = 0
	a.MaxArea[i] = 0
	a.Touch[i] = 0
}

// ResetAll clears every slot at the end of an accumulation window.
func (a *Accumulator) ResetAll() {
	for i := range a.GradSum {
		a.Reset(i)
	}
}
