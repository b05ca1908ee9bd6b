package densify

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/beztri/engine/internal/primitive"
	"github.com/beztri/engine/pkg/vecmath"
)

// State is the density-control state of one primitive slot.
type State uint8

const (
	StateStable State = iota
	StateCandidateSplit
	StateCandidatePrune
)

func (s State) String() string {
	switch s {
	case StateCandidateSplit:
		return "candidate-split"
	case StateCandidatePrune:
		return "candidate-prune"
	default:
		return "stable"
	}
}

// Options are the recognized density-control thresholds. Zero values are
// replaced by defaults; the exact constants are tunable configuration,
// validated against the end-to-end rendering scenarios rather than fixed
// by theory.
type Options struct {
	// GradThreshold is the mean accumulated gradient magnitude above
	// which a large primitive is split.
	GradThreshold float32 `json:"grad_threshold"`
	// SplitArea is the projected screen area (px^2) above which a
	// high-gradient primitive is considered under-represented.
	SplitArea float32 `json:"split_area"`
	// MaxScreenArea forces a split regardless of gradient signal.
	MaxScreenArea float32 `json:"max_screen_area"`
	// PruneOpacity removes primitives whose opacity decayed below it.
	PruneOpacity float32 `json:"prune_opacity"`
	// VisWindow is the number of observed frames after which a primitive
	// with zero touch count is pruned.
	VisWindow int `json:"vis_window"`
	// LoDPixelArea coarsens primitives whose projected area stayed below
	// it (px^2): their boundary degree is reduced to straight edges.
	LoDPixelArea float32 `json:"lod_pixel_area"`
	// MaxPrimitives caps population growth; splits are skipped beyond it.
	MaxPrimitives int `json:"max_primitives"`
}

// DefaultOptions mirror the tuning used for the bundled scenes.
func DefaultOptions() Options {
	return Options{
		GradThreshold: 2e-4,
		SplitArea:     64,
		MaxScreenArea: 4096,
		PruneOpacity:  0.005,
		VisWindow:     30,
		LoDPixelArea:  1,
		MaxPrimitives: 1_000_000,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.GradThreshold == 0 {
		o.GradThreshold = d.GradThreshold
	}
	if o.SplitArea == 0 {
		o.SplitArea = d.SplitArea
	}
	if o.MaxScreenArea == 0 {
		o.MaxScreenArea = d.MaxScreenArea
	}
	if o.PruneOpacity == 0 {
		o.PruneOpacity = d.PruneOpacity
	}
	if o.VisWindow == 0 {
		o.VisWindow = d.VisWindow
	}
	if o.LoDPixelArea == 0 {
		o.LoDPixelArea = d.LoDPixelArea
	}
	if o.MaxPrimitives == 0 {
		o.MaxPrimitives = d.MaxPrimitives
	}
}

// Report summarizes one density-control run.
type Report struct {
	Split     int `json:"split"`
	Added     int `json:"added"`
	Pruned    int `json:"pruned"`
	Coarsened int `json:"coarsened"`
}

func (r Report) String() string {
	return fmt.Sprintf("split=%d added=%d pruned=%d coarsened=%d", r.Split, r.Added, r.Pruned, r.Coarsened)
}

// Controller mutates the primitive store between optimization steps. It
// must never run concurrently with a forward or backward pass: callers
// provide that barrier at iteration granularity.
type Controller struct {
	states []State
}

// NewController creates a density controller.
func NewController() *Controller {
	return &Controller{}
}

// State returns the last evaluated state of slot i.
func (c *Controller) State(i int) State {
	if i < 0 || i >= len(c.states) {
		return StateStable
	}
	return c.states[i]
}

// Run consumes the accumulated window statistics, applies split, prune
// and LoD transitions to the store, resizes the accumulator for any new
// slots and clears the window.
func (c *Controller) Run(store *primitive.Store, accum *Accumulator, opts Options) Report {
	opts.applyDefaults()

	slots := store.Slots()
	for len(c.states) < slots {
		c.states = append(c.states, StateStable)
	}

	var report Report
	// Snapshot the slot range: splits append past it and must not be
	// re-examined with stale statistics this run.
	for i := 0; i < slots; i++ {
		if !store.Alive(i) {
			c.states[i] = StateStable
			continue
		}
		net := store.Net(i)

		switch {
		case net.Degenerate(),
			store.Opacity(i) < opts.PruneOpacity,
			accum.Frames[i] >= int32(opts.VisWindow) && accum.Touch[i] == 0:
			c.states[i] = StateCandidatePrune
		case accum.MaxArea[i] > opts.MaxScreenArea,
			accum.MeanGrad(i) > opts.GradThreshold && accum.MaxArea[i] > opts.SplitArea:
			c.states[i] = StateCandidateSplit
		default:
			c.states[i] = StateStable
		}

		switch c.states[i] {
		case StateCandidatePrune:
			store.Remove(i)
			accum.Reset(i)
			report.Pruned++
		case StateCandidateSplit:
			if store.Len()+3 > opts.MaxPrimitives {
				c.states[i] = StateStable
				continue
			}
			c.split(store, accum, i)
			report.Split++
			report.Added += 4
			report.Pruned++ // the parent is consumed
		default:
			if accum.Frames[i] > 0 && accum.MaxArea[i] < opts.LoDPixelArea && !store.IsLinear(i) {
				store.SetLinear(i, true)
				report.Coarsened++
			}
		}
	}

	accum.Resize(store.Slots())
	for len(c.states) < store.Slots() {
		c.states = append(c.states, StateStable)
	}
	accum.ResetAll()
	return report
}

// split replaces primitive i with its four exact de Casteljau children.
// Children inherit color and opacity; Gaussian scales are halved to track
// the halved linear extent. The parent is removed after the children are
// added so no child reuses its slot; the parent slot reads as freed once
// the run completes.
func (c *Controller) split(store *primitive.Store, accum *Accumulator, i int) {
	parent := store.Params(i)
	linear := store.IsLinear(i)
	children := parent.Ctrl.Subdivide()

	halfScale := parent.LogScale.Sub(vecmath.XYZ(math32.Ln2, math32.Ln2, math32.Ln2))

	for _, child := range children {
		sh := make([]float32, len(parent.SH))
		copy(sh, parent.SH)
		idx := store.Add(primitive.Params{
			Ctrl:     child,
			LogScale: halfScale,
			Rot:      parent.Rot,
			Opacity:  parent.Opacity,
			SH:       sh,
		})
		store.SetLinear(idx, linear)
	}
	store.Remove(i)
	accum.Reset(i)
}
