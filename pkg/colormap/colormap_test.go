package colormap

import (
	"image/color"
	"testing"
)

func TestViridisEndpoints(t *testing.T) {
	t.Parallel()

	c0, ok := Viridis.At(0).(color.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA at t=0")
	}
	if c0 != (color.RGBA{R: 68, G: 1, B: 84, A: 255}) {
		t.Fatalf("unexpected Viridis.At(0): %#v", c0)
	}

	c1, ok := Viridis.At(1).(color.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA at t=1")
	}
	if c1 != (color.RGBA{R: 253, G: 231, B: 37, A: 255}) {
		t.Fatalf("unexpected Viridis.At(1): %#v", c1)
	}
}

func TestAtClampsOutOfRange(t *testing.T) {
	t.Parallel()

	if Grayscale.At(-3) != Grayscale.At(0) {
		t.Fatal("At below 0 should clamp to the first color")
	}
	if Grayscale.At(7) != Grayscale.At(1) {
		t.Fatal("At above 1 should clamp to the last color")
	}
}

func TestGrayscaleMidpoint(t *testing.T) {
	t.Parallel()

	c, ok := Grayscale.At(0.5).(color.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA")
	}
	if c.R != c.G || c.G != c.B {
		t.Fatalf("grayscale midpoint not neutral: %#v", c)
	}
	if c.R < 120 || c.R > 135 {
		t.Fatalf("grayscale midpoint luminance off: %#v", c)
	}
}
