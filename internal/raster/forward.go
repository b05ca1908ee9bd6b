package raster

import (
	"runtime"
	"sync/atomic"

	"github.com/chewxy/math32"

	"github.com/beztri/engine/internal/gaussian"
	"github.com/beztri/engine/pkg/vecmath"
)

// Forward composites the binned primitives into a frame, front to back.
// Per pixel, a primitive's alpha is the product of its stored opacity, its
// boundary coverage and its Gaussian falloff weight. The weight is
// saturated by the coverage (effective weight max(w, cov)) so the kernel
// blurs the boundary without erasing the covered interior: shrinking the
// covariance sharpens the silhouette toward the boundary instead of
// collapsing the footprint to the anchor.
func Forward(projected []Projected, binned *Binned, cfg Config) *Frame {
	frame := NewFrame(cfg.Width, cfg.Height)
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	nTiles := binned.TilesX * binned.TilesY
	parallelFor(nTiles, workers, func(t int) {
		forwardTile(projected, binned, cfg, frame, t%binned.TilesX, t/binned.TilesX)
	})
	return frame
}

func forwardTile(projected []Projected, binned *Binned, cfg Config, frame *Frame, tx, ty int) {
	list := binned.Tile(tx, ty)
	if len(list) == 0 {
		return
	}
	x0 := tx * TileSize
	y0 := ty * TileSize
	x1 := min(x0+TileSize, cfg.Width)
	y1 := min(y0+TileSize, cfg.Height)

	var nanSeen int64
	for py := y0; py < y1; py++ {
		for px := x0; px < x1; px++ {
			pix := py*cfg.Width + px
			center := pixelCenter(px, py)

			transmittance := float32(1)
			var r, g, b, depth float32
			bestContrib := float32(0)
			bestID := int32(-1)

			for _, pi := range list {
				p := &projected[pi]
				alpha, ok := pixelAlpha(p, center, cfg.AAWidth)
				if !ok {
					nanSeen++
					continue
				}
				if alpha < MinAlpha {
					continue
				}

				contrib := alpha * transmittance
				r += p.Color[0] * contrib
				g += p.Color[1] * contrib
				b += p.Color[2] * contrib
				depth += p.Depth * contrib
				if contrib > bestContrib {
					bestContrib = contrib
					bestID = p.ID
				}

				transmittance *= 1 - alpha
				if transmittance < cfg.EarlyExit {
					break
				}
			}

			frame.Color[pix*3+0] = r + cfg.Background[0]*transmittance
			frame.Color[pix*3+1] = g + cfg.Background[1]*transmittance
			frame.Color[pix*3+2] = b + cfg.Background[2]*transmittance
			frame.Depth[pix] = depth
			frame.Alpha[pix] = 1 - transmittance
			frame.Index[pix] = bestID
		}
	}
	if nanSeen > 0 {
		atomic.AddInt64(&frame.Stats.NaNClamped, nanSeen)
	}
}

// pixelAlpha evaluates one primitive's alpha at a pixel center. A false
// second return means the value was not finite and the contribution must
// be dropped (recovered condition, counted by the caller).
func pixelAlpha(p *Projected, center vecmath.Vec2, aaWidth float32) (float32, bool) {
	cov := p.Boundary.Coverage(center, aaWidth)
	if cov <= 0 {
		return 0, true
	}
	w := gaussian.Weight(p.Conic, center.Sub(p.Mean))
	if w < cov {
		w = cov
	}
	alpha := p.Opacity * cov * w
	if math32.IsNaN(alpha) || math32.IsInf(alpha, 0) {
		return 0, false
	}
	if alpha > MaxAlpha {
		alpha = MaxAlpha
	}
	return alpha, true
}

func pixelCenter(px, py int) vecmath.Vec2 {
	return vecmath.Vec2{float32(px) + 0.5, float32(py) + 0.5}
}
