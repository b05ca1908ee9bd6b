// Package render orchestrates a full differentiable frame: projecting the
// primitive store through a camera, rasterizing it, propagating image
// gradients back to primitive parameters and driving density control.
package render

import (
	"sync"
	"sync/atomic"

	"github.com/beztri/engine/internal/camera"
	"github.com/beztri/engine/internal/densify"
	"github.com/beztri/engine/internal/primitive"
	"github.com/beztri/engine/internal/raster"
	"github.com/beztri/engine/pkg/vecmath"
)

// Options configure the rendering pipeline. Zero values pick defaults
// that match the bundled scene tuning.
type Options struct {
	// SegmentsPerEdge is the number of chords each Bézier edge is
	// flattened into.
	SegmentsPerEdge int
	// AAWidth is the boundary anti-aliasing half-width in pixels.
	AAWidth float32
	// GaussianScale multiplies every primitive's standard deviations.
	GaussianScale float32
	// EarlyExit stops per-pixel compositing once transmittance drops
	// below it.
	EarlyExit float32
	// MinPixelArea culls primitives whose projected outline is smaller.
	MinPixelArea float32
	// Background is composited under the residual transmittance.
	Background vecmath.Vec3
	// Workers bounds rasterization parallelism; <=0 means GOMAXPROCS.
	Workers int
}

func (o *Options) applyDefaults() {
	if o.SegmentsPerEdge <= 0 {
		o.SegmentsPerEdge = 8
	}
	if o.AAWidth <= 0 {
		o.AAWidth = 1
	}
	if o.GaussianScale <= 0 {
		o.GaussianScale = 1
	}
	if o.EarlyExit <= 0 {
		o.EarlyExit = 1e-4
	}
}

// Engine binds a primitive store to the rasterization pipeline. Forward
// and backward passes may run concurrently with each other; density
// control takes the write side of the barrier and must observe no frame
// in flight.
type Engine struct {
	mu    sync.RWMutex
	store *primitive.Store
	accum *densify.Accumulator
	ctl   *densify.Controller
	opts  Options
}

// NewEngine wraps a store. The engine takes ownership of density
// bookkeeping for the store's slots.
func NewEngine(store *primitive.Store, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{
		store: store,
		accum: densify.NewAccumulator(store.Slots()),
		ctl:   densify.NewController(),
		opts:  opts,
	}
}

// Store returns the underlying primitive store.
func (e *Engine) Store() *primitive.Store {
	return e.store
}

// Options returns the engine configuration.
func (e *Engine) Options() Options {
	return e.opts
}

// Touch returns the accumulated visibility touch count for slot i in the
// current window.
func (e *Engine) Touch(i int) int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i < 0 || i >= len(e.accum.Touch) {
		return 0
	}
	return atomic.LoadInt64(&e.accum.Touch[i])
}

// MeanGrad returns the mean accumulated gradient magnitude for slot i in
// the current window.
func (e *Engine) MeanGrad(i int) float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i < 0 || i >= len(e.accum.GradSum) {
		return 0
	}
	return e.accum.MeanGrad(i)
}

func (e *Engine) config(cam *camera.Camera) raster.Config {
	return raster.Config{
		Width:      cam.Width,
		Height:     cam.Height,
		AAWidth:    e.opts.AAWidth,
		EarlyExit:  e.opts.EarlyExit,
		Background: e.opts.Background,
		Workers:    e.opts.Workers,
	}
}

// Render rasterizes the store through cam and returns the frame.
func (e *Engine) Render(cam *camera.Camera) *raster.Frame {
	e.mu.RLock()
	defer e.mu.RUnlock()

	projected, _, stats := e.project(cam)
	cfg := e.config(cam)
	binned := raster.Bin(projected, cfg)
	frame := raster.Forward(projected, binned, cfg)
	frame.Stats.Projected = stats.Projected
	frame.Stats.Culled = stats.Culled
	frame.Stats.Degenerate += stats.Degenerate
	countBinned(&frame.Stats, projected, binned)
	return frame
}

func countBinned(stats *raster.FrameStats, projected []raster.Projected, binned *raster.Binned) {
	seen := make([]bool, len(projected))
	for ty := 0; ty < binned.TilesY; ty++ {
		for tx := 0; tx < binned.TilesX; tx++ {
			for _, id := range binned.Tile(tx, ty) {
				seen[id] = true
			}
		}
	}
	for _, s := range seen {
		if s {
			stats.Binned++
		}
	}
}

// DensityControl runs one split/prune/coarsen pass over the store,
// consuming the accumulated gradient window. It must not overlap a
// forward or backward pass.
func (e *Engine) DensityControl(opts densify.Options) densify.Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.Iteration++
	return e.ctl.Run(e.store, e.accum, opts)
}
