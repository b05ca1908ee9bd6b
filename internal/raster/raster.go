// Package raster performs screen-space rasterization of projected
// primitives: tile binning, depth sorting and discontinuity-aware alpha
// compositing, forward and backward.
package raster

import (
	"github.com/beztri/engine/internal/bezier"
	"github.com/beztri/engine/internal/gaussian"
	"github.com/beztri/engine/pkg/vecmath"
)

// TileSize is the screen tile edge in pixels.
const TileSize = 16

// MinAlpha is the contribution threshold below which a primitive is
// skipped at a pixel. Matches one 8-bit quantization step.
const MinAlpha = 1.0 / 255.0

// MaxAlpha caps a single primitive's per-pixel alpha so transmittance
// never reaches exact zero mid-list.
const MaxAlpha = 0.995

// Projected is the per-frame screen-space footprint of one primitive. It
// is derived data, rebuilt every frame and never persisted.
type Projected struct {
	ID       int32  // primitive store slot
	Seq      uint64 // creation order, depth tie-break
	Boundary *bezier.Boundary
	Net      bezier.Net2D // projected control net, kept for backward
	Mean     vecmath.Vec2
	Depth    float32
	Conic    gaussian.Conic
	Cov2D    [3]float32
	Color    vecmath.Vec3
	Opacity  float32
	Min, Max vecmath.Vec2 // conservative bounds: boundary and 3-sigma extent
}

// Config drives a forward or backward pass.
type Config struct {
	Width      int
	Height     int
	AAWidth    float32 // boundary anti-aliasing half-width, px
	EarlyExit  float32 // transmittance cutoff
	Background vecmath.Vec3
	Workers    int // <=0 means GOMAXPROCS
}

// Frame is the output of a forward pass.
type Frame struct {
	Width, Height int
	Color         []float32 // RGB, 3 floats per pixel
	Depth         []float32 // alpha-weighted view depth
	Alpha         []float32 // 1 - residual transmittance
	Index         []int32   // dominant primitive slot per pixel, -1 if none
	Stats         FrameStats
}

// NewFrame allocates an empty frame.
func NewFrame(width, height int) *Frame {
	n := width * height
	f := &Frame{
		Width:  width,
		Height: height,
		Color:  make([]float32, 3*n),
		Depth:  make([]float32, n),
		Alpha:  make([]float32, n),
		Index:  make([]int32, n),
	}
	for i := range f.Index {
		f.Index[i] = -1
	}
	return f
}

// FrameStats counts per-frame recovered conditions. All recoveries are
// absorbed here rather than surfaced as errors, to keep long optimization
// runs resilient.
type FrameStats struct {
	Projected  int // live primitives considered
	Culled     int // outside the frustum or below one pixel
	Degenerate int // zero-area boundary or invalid covariance
	Binned     int // primitives that reached at least one tile
	NaNClamped int64 // per-pixel contributions zeroed due to NaN/Inf
}

// ScreenGrads accumulates backward-pass gradients in screen space, indexed
// by position in the projected slice. Conversion to primitive parameters
// happens in the render layer.
type ScreenGrads struct {
	Net     []bezier.Net2D
	Mean    []vecmath.Vec2
	Conic   [][3]float32
	Color   []vecmath.Vec3
	Opacity []float32
	Touch   []int32 // pixels with a nonzero contribution
}

// NewScreenGrads allocates zeroed gradient buffers for n projected
// primitives.
func NewScreenGrads(n int) *ScreenGrads {
	return &ScreenGrads{
		Net:     make([]bezier.Net2D, n),
		Mean:    make([]vecmath.Vec2, n),
		Conic:   make([][3]float32, n),
		Color:   make([]vecmath.Vec3, n),
		Opacity: make([]float32, n),
		Touch:   make([]int32, n),
	}
}
