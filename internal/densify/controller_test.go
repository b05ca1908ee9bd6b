package densify

import (
	"sync"
	"testing"

	"github.com/beztri/engine/internal/primitive"
	"github.com/beztri/engine/pkg/vecmath"
)

func seedStore(t *testing.T, n int) *primitive.Store {
	t.Helper()
	store, err := primitive.NewStore(0)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for k := 0; k < n; k++ {
		off := float32(k) * 3
		a := vecmath.XYZ(off, 0, 0)
		b := vecmath.XYZ(off+1, 0, 0)
		c := vecmath.XYZ(off, 1, 0)
		net := primitive.Net{
			a, b, c,
			a.Lerp(b, 0.5), b.Lerp(c, 0.5), c.Lerp(a, 0.5),
		}
		store.Add(primitive.Params{
			Ctrl:     net,
			LogScale: vecmath.XYZ(-1, -1, -1),
			Rot:      vecmath.Quat{W: 1},
			Opacity:  0.8,
			SH:       []float32{0.5, 0.5, 0.5},
		})
	}
	return store
}

func TestSplitOnHighGradient(t *testing.T) {
	store := seedStore(t, 1)
	accum := NewAccumulator(store.Slots())
	accum.Observe(0, 1.0, 100, 5)

	ctl := NewController()
	rep := ctl.Run(store, accum, Options{GradThreshold: 0.5, SplitArea: 64})
	if rep.Split != 1 || rep.Added != 4 {
		t.Fatalf("report = %v, want 1 split, 4 added", rep)
	}
	if store.Alive(0) {
		t.Fatal("parent slot still alive after split")
	}
	if store.Len() != 4 {
		t.Fatalf("Len = %d, want 4 children", store.Len())
	}
	// The freed parent slot stays available for the next insertion.
	if idx := store.Add(store.Params(1)); idx != 0 {
		t.Fatalf("Add after split returned slot %d, want the freed parent slot 0", idx)
	}
	store.Remove(0)

	parentScale := vecmath.XYZ(-1, -1, -1)
	store.Each(func(i int) {
		if got := store.Opacity(i); got != 0.8 {
			t.Errorf("child %d opacity = %v, want inherited 0.8", i, got)
		}
		ls := store.LogScale(i)
		for ax := 0; ax < 3; ax++ {
			if ls[ax] >= parentScale[ax] {
				t.Errorf("child %d log-scale axis %d = %v, want below parent %v", i, ax, ls[ax], parentScale[ax])
			}
		}
	})
}

func TestSplitChildrenCoverParentCenter(t *testing.T) {
	store := seedStore(t, 1)
	parentNet := store.Net(0)
	center := parentNet.Eval(1.0/3, 1.0/3, 1.0/3)

	accum := NewAccumulator(store.Slots())
	accum.Observe(0, 1.0, 100, 5)
	NewController().Run(store, accum, Options{GradThreshold: 0.5, SplitArea: 64})

	// The center child's corners are the parent edge midpoints, so the
	// parent's surface center lies on a child surface.
	found := false
	store.Each(func(i int) {
		net := store.Net(i)
		p := net.Eval(1.0/3, 1.0/3, 1.0/3)
		if p.Sub(center).Len() < 1e-4 {
			found = true
		}
	})
	if !found {
		t.Fatal("no child surface passes through the parent center")
	}
}

func TestPruneLowOpacity(t *testing.T) {
	store := seedStore(t, 2)
	store.SetOpacity(0, 0.001)
	accum := NewAccumulator(store.Slots())
	accum.Observe(0, 0, 10, 1)
	accum.Observe(1, 0, 10, 1)

	rep := NewController().Run(store, accum, Options{PruneOpacity: 0.005})
	if rep.Pruned != 1 {
		t.Fatalf("Pruned = %d, want 1", rep.Pruned)
	}
	if store.Alive(0) {
		t.Fatal("transparent primitive survived")
	}
	if !store.Alive(1) {
		t.Fatal("opaque primitive was pruned")
	}
}

func TestPruneInvisibleAfterWindow(t *testing.T) {
	store := seedStore(t, 2)
	accum := NewAccumulator(store.Slots())
	for f := 0; f < 30; f++ {
		accum.Observe(0, 0, 10, 0) // never touches a pixel
		accum.Observe(1, 0, 10, 1)
	}

	ctl := NewController()
	rep := ctl.Run(store, accum, Options{VisWindow: 30})
	if rep.Pruned != 1 {
		t.Fatalf("Pruned = %d, want 1", rep.Pruned)
	}
	if store.Alive(0) {
		t.Fatal("invisible primitive survived the window")
	}
	if got := ctl.State(0); got != StateCandidatePrune {
		t.Fatalf("State(0) = %v, want candidate-prune", got)
	}
}

func TestShortWindowDoesNotPrune(t *testing.T) {
	store := seedStore(t, 1)
	accum := NewAccumulator(store.Slots())
	for f := 0; f < 5; f++ {
		accum.Observe(0, 0, 10, 0)
	}
	rep := NewController().Run(store, accum, Options{VisWindow: 30})
	if rep.Pruned != 0 {
		t.Fatalf("Pruned = %d before window elapsed, want 0", rep.Pruned)
	}
}

func TestCoarsenSubPixel(t *testing.T) {
	store := seedStore(t, 1)
	accum := NewAccumulator(store.Slots())
	accum.Observe(0, 0, 0.25, 1)

	rep := NewController().Run(store, accum, Options{LoDPixelArea: 1})
	if rep.Coarsened != 1 {
		t.Fatalf("Coarsened = %d, want 1", rep.Coarsened)
	}
	if !store.IsLinear(0) {
		t.Fatal("sub-pixel primitive not switched to linear edges")
	}
}

func TestLargeAreaSplitsWithoutGradient(t *testing.T) {
	store := seedStore(t, 1)
	accum := NewAccumulator(store.Slots())
	accum.Observe(0, 0, 5000, 1)

	rep := NewController().Run(store, accum, Options{MaxScreenArea: 4096})
	if rep.Split != 1 {
		t.Fatalf("Split = %d, want 1 for oversized footprint", rep.Split)
	}
}

func TestPopulationCapBlocksSplit(t *testing.T) {
	store := seedStore(t, 2)
	accum := NewAccumulator(store.Slots())
	accum.Observe(0, 1.0, 100, 1)
	accum.Observe(1, 0, 10, 1)

	rep := NewController().Run(store, accum, Options{
		GradThreshold: 0.5, SplitArea: 64, MaxPrimitives: 3,
	})
	if rep.Split != 0 {
		t.Fatalf("Split = %d with cap 3, want 0", rep.Split)
	}
	if store.Len() != 2 {
		t.Fatalf("Len = %d, want unchanged 2", store.Len())
	}
}

func TestRunResetsWindow(t *testing.T) {
	store := seedStore(t, 1)
	accum := NewAccumulator(store.Slots())
	accum.Observe(0, 1.0, 100, 5)

	NewController().Run(store, accum, Options{GradThreshold: 0.5, SplitArea: 64})
	if len(accum.GradSum) < store.Slots() {
		t.Fatalf("accumulator not resized: %d slots for %d", len(accum.GradSum), store.Slots())
	}
	for i := range accum.GradSum {
		if accum.GradSum[i] != 0 || accum.Frames[i] != 0 || accum.Touch[i] != 0 {
			t.Fatalf("slot %d statistics not cleared after run", i)
		}
	}
}

func TestAccumulatorMeanGrad(t *testing.T) {
	a := NewAccumulator(1)
	if got := a.MeanGrad(0); got != 0 {
		t.Fatalf("MeanGrad of empty slot = %v, want 0", got)
	}
	a.Observe(0, 2, 10, 1)
	a.Observe(0, 4, 5, 1)
	if got := a.MeanGrad(0); got != 3 {
		t.Fatalf("MeanGrad = %v, want 3", got)
	}
	if a.MaxArea[0] != 10 {
		t.Fatalf("MaxArea = %v, want 10", a.MaxArea[0])
	}
}

func TestObserveConcurrent(t *testing.T) {
	a := NewAccumulator(1)
	const workers = 8
	const frames = 500

	var wg sync.WaitGroup
	for g := 0; g < workers; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := 0; f < frames; f++ {
				a.Observe(0, 1, float32(g*frames+f), 1)
			}
		}()
	}
	wg.Wait()

	const total = workers * frames
	if a.GradSum[0] != total {
		t.Fatalf("GradSum = %v, want %d (lost updates)", a.GradSum[0], total)
	}
	if a.Frames[0] != total {
		t.Fatalf("Frames = %d, want %d", a.Frames[0], total)
	}
	if a.Touch[0] != total {
		t.Fatalf("Touch = %d, want %d", a.Touch[0], total)
	}
	if a.MaxArea[0] != total-1 {
		t.Fatalf("MaxArea = %v, want %d", a.MaxArea[0], total-1)
	}
}
