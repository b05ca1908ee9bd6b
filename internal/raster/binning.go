package raster

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/chewxy/math32"
)

// Binned holds per-tile primitive lists for one frame. Lists are sorted
// front to back by depth, ties broken by creation order, so compositing is
// deterministic regardless of scatter scheduling.
type Binned struct {
	TilesX, TilesY int
	offsets        []int32 // len tiles+1, prefix sums into entries
	entries        []int32 // indices into the projected slice
}

// Tile returns the sorted primitive list of tile (tx, ty) as indices into
// the projected slice.
func (b *Binned) Tile(tx, ty int) []int32 {
	t := ty*b.TilesX + tx
	return b.entries[b.offsets[t]:b.offsets[t+1]]
}

// Entries returns the total number of (primitive, tile) pairs.
func (b *Binned) Entries() int {
	return len(b.entries)
}

// tileRange returns the clipped tile rectangle covered by a projected
// footprint, conservative by construction of Min/Max.
func tileRange(p *Projected, cfg Config, tilesX, tilesY int) (x0, y0, x1, y1 int, ok bool) {
	x0 = int(math32.Floor(p.Min[0] / TileSize))
	y0 = int(math32.Floor(p.Min[1] / TileSize))
	x1 = int(math32.Floor(p.Max[0] / TileSize))
	y1 = int(math32.Floor(p.Max[1] / TileSize))
	if x1 < 0 || y1 < 0 || x0 >= tilesX || y0 >= tilesY {
		return 0, 0, 0, 0, false
	}
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 >= tilesX {
		x1 = tilesX - 1
	}
	if y1 >= tilesY {
		y1 = tilesY - 1
	}
	return x0, y0, x1, y1, true
}

// Bin scatters projected primitives into screen tiles. The scatter uses a
// count, prefix-sum and atomic-cursor scheme: write order within a tile is
// unspecified, and the explicit sort afterwards makes the result
// reproducible.
func Bin(projected []Projected, cfg Config) *Binned {
	tilesX := (cfg.Width + TileSize - 1) / TileSize
	tilesY := (cfg.Height + TileSize - 1) / TileSize
	nTiles := tilesX * tilesY

	b := &Binned{
		TilesX:  tilesX,
		TilesY:  tilesY,
		offsets: make([]int32, nTiles+1),
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	counts := make([]int32, nTiles)
	parallelFor(len(projected), workers, func(i int) {
		x0, y0, x1, y1, ok := tileRange(&projected[i], cfg, tilesX, tilesY)
		if !ok {
			return
		}
		for ty := y0; ty <= y1; ty++ {
			for tx := x0; tx <= x1; tx++ {
				atomic.AddInt32(&counts[ty*tilesX+tx], 1)
			}
		}
	})

	var total int32
	for t := 0; t < nTiles; t++ {
		b.offsets[t] = total
		total += counts[t]
	}
	b.offsets[nTiles] = total

	b.entries = make([]int32, total)
	cursors := make([]int32, nTiles)
	copy(cursors, b.offsets[:nTiles])
	parallelFor(len(projected), workers, func(i int) {
		x0, y0, x1, y1, ok := tileRange(&projected[i], cfg, tilesX, tilesY)
		if !ok {
			return
		}
		for ty := y0; ty <= y1; ty++ {
			for tx := x0; tx <= x1; tx++ {
				slot := atomic.AddInt32(&cursors[ty*tilesX+tx], 1) - 1
				b.entries[slot] = int32(i)
			}
		}
	})

	parallelFor(nTiles, workers, func(t int) {
		list := b.entries[b.offsets[t]:b.offsets[t+1]]
		sort.Slice(list, func(a, c int) bool {
			pa, pc := &projected[list[a]], &projected[list[c]]
			if pa.Depth != pc.Depth {
				return pa.Depth < pc.Depth
			}
			return pa.Seq < pc.Seq
		})
	})

	return b
}

// parallelFor runs fn over [0, n) on up to workers goroutines.
func parallelFor(n, workers int, fn func(i int)) {
	if n == 0 {
		return
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	var next int64 = -1
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&next, 1))
				if i >= n {
					return
				}
				fn(i)
			}
		}()
	}
	wg.Wait()
}
