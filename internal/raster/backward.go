package raster

import (
	"math"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/chewxy/math32"

	"github.com/beztri/engine/internal/gaussian"
	"github.com/beztri/engine/pkg/vecmath"
)

// Backward distributes the upstream color gradient dLdC (RGB per pixel)
// to every contributing primitive's screen-space inputs. It replays the
// exact forward traversal, including the skip thresholds and the early
// exit, so the gradient matches the image the forward pass produced.
func Backward(projected []Projected, binned *Binned, cfg Config, frame *Frame, dLdC []float32) *ScreenGrads {
	grads := NewScreenGrads(len(projected))
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	nTiles := binned.TilesX * binned.TilesY
	parallelFor(nTiles, workers, func(t int) {
		backwardTile(projected, binned, cfg, frame, dLdC, grads, t%binned.TilesX, t/binned.TilesX)
	})
	return grads
}

func backwardTile(projected []Projected, binned *Binned, cfg Config, frame *Frame, dLdC []float32, grads *ScreenGrads, tx, ty int) {
	list := binned.Tile(tx, ty)
	if len(list) == 0 {
		return
	}
	x0 := tx * TileSize
	y0 := ty * TileSize
	x1 := min(x0+TileSize, cfg.Width)
	y1 := min(y0+TileSize, cfg.Height)

	for py := y0; py < y1; py++ {
		for px := x0; px < x1; px++ {
			pix := py*cfg.Width + px
			up := vecmath.Vec3{dLdC[pix*3], dLdC[pix*3+1], dLdC[pix*3+2]}
			if up == (vecmath.Vec3{}) {
				continue
			}
			center := pixelCenter(px, py)

			// Final composited color including background, from forward.
			final := vecmath.Vec3{
				frame.Color[pix*3], frame.Color[pix*3+1], frame.Color[pix*3+2],
			}

			transmittance := float32(1)
			var prefix vecmath.Vec3 // accumulated color up to and including current primitive

			for _, pi := range list {
				p := &projected[pi]
				cov := p.Boundary.Coverage(center, cfg.AAWidth)
				if cov <= 0 {
					continue
				}
				d := center.Sub(p.Mean)
				w := gaussian.Weight(p.Conic, d)
				// The forward pass saturates the kernel by the coverage.
				saturated := w < cov
				weff := w
				if saturated {
					weff = cov
				}
				alpha := p.Opacity * cov * weff
				if math32.IsNaN(alpha) || math32.IsInf(alpha, 0) {
					continue
				}
				clamped := false
				if alpha > MaxAlpha {
					alpha = MaxAlpha
					clamped = true
				}
				if alpha < MinAlpha {
					continue
				}

				contrib := alpha * transmittance
				prefix = prefix.Add(p.Color.Mul(contrib))

				// dL/dcolor_i = upstream * alpha_i * T_i.
				atomicAddVec3(&grads.Color[pi], up.Mul(contrib))
				atomic.AddInt32(&grads.Touch[pi], 1)

				if !clamped {
					// Suffix color behind this primitive, background included:
					// S_i = final - prefix_i. dL/dalpha follows the over
					// compositing chain rule.
					suffix := final.Sub(prefix)
					dAlphaVec := p.Color.Mul(transmittance).Sub(suffix.Mul(1 / (1 - alpha)))
					dAlpha := up.Dot(dAlphaVec)

					// alpha = opacity * cov * max(w, cov); the inactive max
					// branch carries no gradient.
					dOpacity := dAlpha * cov * weff
					dCov := dAlpha * p.Opacity * weff
					if saturated {
						dCov += dAlpha * p.Opacity * cov
					}

					atomicAddF32(&grads.Opacity[pi], dOpacity)

					if dCov != 0 {
						_, covGrad := p.Boundary.CoverageGrad(center, cfg.AAWidth)
						for k := range covGrad {
							if covGrad[k] != (vecmath.Vec2{}) {
								atomicAddVec2(&grads.Net[pi][k], covGrad[k].Mul(dCov))
							}
						}
					}

					if !saturated {
						dWeight := dAlpha * p.Opacity * cov
						dMean, dConic := gaussian.WeightGrad(p.Conic, d, w)
						atomicAddVec2(&grads.Mean[pi], dMean.Mul(dWeight))
						atomicAddF32(&grads.Conic[pi][0], dConic[0]*dWeight)
						atomicAddF32(&grads.Conic[pi][1], dConic[1]*dWeight)
						atomicAddF32(&grads.Conic[pi][2], dConic[2]*dWeight)
					}
				}

				transmittance *= 1 - alpha
				if transmittance < cfg.EarlyExit {
					break
				}
			}
		}
	}
}

// atomicAddF32 adds v to *addr with a compare-and-swap loop. Gradient
// accumulation from concurrent tiles lands on shared per-primitive slots.
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

func atomicAddVec2(addr *vecmath.Vec2, v vecmath.Vec2) {
	atomicAddF32(&addr[0], v[0])
	atomicAddF32(&addr[1], v[1])
}

func atomicAddVec3(addr *vecmath.Vec3, v vecmath.Vec3) {
	atomicAddF32(&addr[0], v[0])
	atomicAddF32(&addr[1], v[1])
	atomicAddF32(&addr[2], v[2])
}
