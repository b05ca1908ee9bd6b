// Package main renders a single frame of a checkpoint to a PNG file.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/beztri/engine/internal/primitive"
	"github.com/beztri/engine/internal/render"
	"github.com/beztri/engine/internal/service"
)

func main() {
	checkpoint := flag.String("checkpoint", "", "Path to the scene checkpoint")
	out := flag.String("out", "frame.png", "Output PNG path")
	mode := flag.String("mode", "color", "Render mode: color, depth, alpha, gradient, visibility, overlay")
	colormapName := flag.String("colormap", "viridis", "Colormap for depth and heat modes")
	yaw := flag.Float64("yaw", 0, "Camera yaw in radians")
	pitch := flag.Float64("pitch", 0, "Camera pitch in radians")
	radius := flag.Float64("radius", 5, "Camera orbit radius")
	fov := flag.Float64("fov", 1.0472, "Vertical field of view in radians")
	width := flag.Int("w", 800, "Frame width")
	height := flag.Int("h", 600, "Frame height")
	segments := flag.Int("segments", 8, "Bézier edge flattening segments")
	aaWidth := flag.Float64("aa", 1, "Boundary anti-aliasing width in pixels")
	gaussianScale := flag.Float64("gaussian-scale", 1, "Gaussian scale multiplier")
	flag.Parse()

	if *checkpoint == "" {
		log.Fatal("missing required flag: -checkpoint")
	}

	store, err := primitive.LoadFile(*checkpoint)
	if err != nil {
		log.Fatalf("Failed to load checkpoint: %v", err)
	}
	log.Printf("Loaded %d primitives (SH degree %d, iteration %d)",
		store.Len(), store.SHDegree(), store.Iteration)

	svc := service.NewFrameService(service.FrameServiceConfig{
		SceneID: "cli",
		Engine: render.NewEngine(store, render.Options{
			SegmentsPerEdge: *segments,
			AAWidth:         float32(*aaWidth),
			GaussianScale:   float32(*gaussianScale),
		}),
		Renderer: render.NewImageRenderer(),
	})

	data, err := svc.GetFramePNG(*mode, service.ViewParams{
		Yaw:    float32(*yaw),
		Pitch:  float32(*pitch),
		Radius: float32(*radius),
		FoV:    float32(*fov),
		Width:  *width,
		Height: *height,
	}, *colormapName)
	if err != nil {
		log.Fatalf("Failed to render: %v", err)
	}

	if err := os.WriteFile(*out, data, 0644); err != nil {
		log.Fatalf("Failed to write %s: %v", *out, err)
	}
	log.Printf("Wrote %s (%d bytes)", *out, len(data))
}
