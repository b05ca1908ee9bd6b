package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/fogleman/gg"

	"github.com/beztri/engine/internal/bezier"
	"github.com/beztri/engine/internal/camera"
	"github.com/beztri/engine/internal/primitive"
	"github.com/beztri/engine/internal/raster"
	"github.com/beztri/engine/pkg/colormap"
)

// ImageRenderer converts frames into images and PNG bytes for the viewer.
type ImageRenderer struct {
	bufferPool sync.Pool
	colormaps  map[string]colormap.Colormap
}

// NewImageRenderer creates an image renderer with the built-in colormaps.
func NewImageRenderer() *ImageRenderer {
	r := &ImageRenderer{
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
		colormaps: make(map[string]colormap.Colormap),
	}

	r.colormaps["viridis"] = colormap.Viridis
	r.colormaps["plasma"] = colormap.Plasma
	r.colormaps["inferno"] = colormap.Inferno
	r.colormaps["magma"] = colormap.Magma
	r.colormaps["grayscale"] = colormap.Grayscale

	return r
}

func (r *ImageRenderer) colormapFor(name string) colormap.Colormap {
	if c, ok := r.colormaps[name]; ok {
		return c
	}
	return colormap.Viridis
}

// EncodePNG encodes img with the fast PNG encoder using pooled buffers.
func (r *ImageRenderer) EncodePNG(img image.Image) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, img); err != nil {
		return nil, err
	}

	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// ColorImage converts the composited RGB frame to an opaque image.
func (r *ImageRenderer) ColorImage(f *raster.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for p := 0; p < f.Width*f.Height; p++ {
		img.Pix[4*p+0] = toByte(f.Color[3*p+0])
		img.Pix[4*p+1] = toByte(f.Color[3*p+1])
		img.Pix[4*p+2] = toByte(f.Color[3*p+2])
		img.Pix[4*p+3] = 255
	}
	return img
}

// AlphaImage renders accumulated opacity as grayscale.
func (r *ImageRenderer) AlphaImage(f *raster.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for p := 0; p < f.Width*f.Height; p++ {
		v := toByte(f.Alpha[p])
		img.Pix[4*p+0] = v
		img.Pix[4*p+1] = v
		img.Pix[4*p+2] = v
		img.Pix[4*p+3] = 255
	}
	return img
}

// DepthImage maps alpha-weighted depth through a colormap. Pixels with no
// coverage stay black.
func (r *ImageRenderer) DepthImage(f *raster.Frame, colormapName string) *image.RGBA {
	cmap := r.colormapFor(colormapName)

	minD, maxD := float32(0), float32(0)
	first := true
	for p := 0; p < f.Width*f.Height; p++ {
		if f.Index[p] < 0 {
			continue
		}
		d := f.Depth[p]
		if first {
			minD, maxD = d, d
			first = false
			continue
		}
		if d < minD {
			minD = d
		}
		if d > maxD {
			maxD = d
		}
	}
	span := maxD - minD
	if span == 0 {
		span = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for p := 0; p < f.Width*f.Height; p++ {
		if f.Index[p] < 0 {
			img.Pix[4*p+3] = 255
			continue
		}
		setPix(img, p, cmap.At(float64((f.Depth[p]-minD)/span)))
	}
	return img
}

// HeatImage maps a per-primitive scalar, looked up through the dominant
// primitive index of each pixel, through a colormap. Used for the
// gradient and visibility debug modes.
func (r *ImageRenderer) HeatImage(f *raster.Frame, value func(slot int32) float32, colormapName string) *image.RGBA {
	cmap := r.colormapFor(colormapName)

	var maxV float32
	for p := 0; p < f.Width*f.Height; p++ {
		if f.Index[p] < 0 {
			continue
		}
		if v := value(f.Index[p]); v > maxV {
			maxV = v
		}
	}
	if maxV == 0 {
		maxV = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for p := 0; p < f.Width*f.Height; p++ {
		if f.Index[p] < 0 {
			img.Pix[4*p+3] = 255
			continue
		}
		setPix(img, p, cmap.At(float64(value(f.Index[p])/maxV)))
	}
	return img
}

// OverlayImage draws the projected control nets over the color frame:
// each boundary edge as its quadratic curve, corners as dots.
func (r *ImageRenderer) OverlayImage(f *raster.Frame, nets []bezier.Net2D) *image.RGBA {
	dc := gg.NewContextForRGBA(r.ColorImage(f))

	edges := [3][3]int{
		{primitive.CornerA, primitive.MidAB, primitive.CornerB},
		{primitive.CornerB, primitive.MidBC, primitive.CornerC},
		{primitive.CornerC, primitive.MidCA, primitive.CornerA},
	}

	dc.SetLineWidth(1)
	for _, net := range nets {
		dc.SetColor(color.RGBA{R: 255, G: 255, B: 255, A: 200})
		for _, e := range edges {
			p0, m, p1 := net[e[0]], net[e[1]], net[e[2]]
			// The stored mid point is the curve at t=0.5; recover the
			// quadratic control point: c = 2m - (p0+p1)/2.
			cx := 2*m[0] - (p0[0]+p1[0])/2
			cy := 2*m[1] - (p0[1]+p1[1])/2
			dc.MoveTo(float64(p0[0]), float64(p0[1]))
			dc.QuadraticTo(float64(cx), float64(cy), float64(p1[0]), float64(p1[1]))
			dc.Stroke()
		}
		dc.SetColor(color.RGBA{R: 255, G: 80, B: 80, A: 255})
		for _, k := range []int{primitive.CornerA, primitive.CornerB, primitive.CornerC} {
			dc.DrawCircle(float64(net[k][0]), float64(net[k][1]), 1.5)
			dc.Fill()
		}
	}
	return dc.Image().(*image.RGBA)
}

// ControlNets returns the projected control nets of all renderable
// primitives, for the overlay mode.
func (e *Engine) ControlNets(cam *camera.Camera) []bezier.Net2D {
	e.mu.RLock()
	defer e.mu.RUnlock()
	projected, _, _ := e.project(cam)
	nets := make([]bezier.Net2D, len(projected))
	for i := range projected {
		nets[i] = projected[i].Net
	}
	return nets
}

func toByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

func setPix(img *image.RGBA, p int, c color.Color) {
	cr, cg, cb, _ := c.RGBA()
	img.Pix[4*p+0] = uint8(cr >> 8)
	img.Pix[4*p+1] = uint8(cg >> 8)
	img.Pix[4*p+2] = uint8(cb >> 8)
	img.Pix[4*p+3] = 255
}
