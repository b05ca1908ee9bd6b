// Package service provides business logic for the viewer server.
package service

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/beztri/engine/internal/cache"
	"github.com/beztri/engine/internal/camera"
	"github.com/beztri/engine/internal/densify"
	"github.com/beztri/engine/internal/render"
	"github.com/beztri/engine/internal/runstore"
	"github.com/beztri/engine/pkg/vecmath"
)

// FrameServiceConfig contains frame service configuration.
type FrameServiceConfig struct {
	SceneID         string
	Engine          *render.Engine
	Cache           *cache.Manager
	Renderer        *render.ImageRenderer
	Runs            *runstore.Store // optional event log
	Density         densify.Options
	DefaultColormap string
}

// FrameService renders and serves frames for one scene.
type FrameService struct {
	sceneID  string
	engine   *render.Engine
	cache    *cache.Manager
	renderer *render.ImageRenderer
	runs     *runstore.Store
	density  densify.Options
	colormap string

	runMu sync.Mutex
	runID string

	targetMu   sync.Mutex
	target     vecmath.Vec3
	targetIter int
	targetSet  bool
}

// ViewParams describe an orbit camera request.
type ViewParams struct {
	Yaw    float32 // radians
	Pitch  float32 // radians
	Radius float32
	FoV    float32 // vertical, radians
	Width  int
	Height int
}

func (v *ViewParams) applyDefaults() {
	if v.Radius == 0 {
		v.Radius = 5
	}
	if v.FoV == 0 {
		v.FoV = float32(math.Pi / 3)
	}
	if v.Width <= 0 {
		v.Width = 800
	}
	if v.Height <= 0 {
		v.Height = 600
	}
}

// NewFrameService creates a new frame service.
func NewFrameService(cfg FrameServiceConfig) *FrameService {
	sceneID := cfg.SceneID
	if sceneID == "" {
		sceneID = "default"
	}
	cm := cfg.DefaultColormap
	if cm == "" {
		cm = "viridis"
	}
	return &FrameService{
		sceneID:  sceneID,
		engine:   cfg.Engine,
		cache:    cfg.Cache,
		renderer: cfg.Renderer,
		runs:     cfg.Runs,
		density:  cfg.Density,
		colormap: cm,
	}
}

// SceneID returns the scene identifier.
func (s *FrameService) SceneID() string {
	return s.sceneID
}

// Engine returns the underlying render engine.
func (s *FrameService) Engine() *render.Engine {
	return s.engine
}

// Target returns the orbit target, the centroid of all primitive centers.
// Recomputed whenever density control advanced the store iteration, since
// split and prune reshape the population.
func (s *FrameService) Target() vecmath.Vec3 {
	s.targetMu.Lock()
	defer s.targetMu.Unlock()

	store := s.engine.Store()
	if s.targetSet && s.targetIter == store.Iteration {
		return s.target
	}

	var sum vecmath.Vec3
	n := 0
	store.Each(func(i int) {
		net := store.Net(i)
		sum = sum.Add(net.Center())
		n++
	})
	if n > 0 {
		s.target = sum.Mul(1 / float32(n))
	}
	s.targetIter = store.Iteration
	s.targetSet = true
	return s.target
}

func (s *FrameService) camera(vp ViewParams) *camera.Camera {
	return camera.Orbit(s.Target(), vp.Radius, vp.Yaw, vp.Pitch, vp.FoV, vp.Width, vp.Height)
}

// GetFramePNG renders the scene in the requested mode and returns PNG
// bytes. Results are cached keyed on the view, the mode and the store
// iteration.
func (s *FrameService) GetFramePNG(mode string, vp ViewParams, colormapName string) ([]byte, error) {
	vp.applyDefaults()
	if mode == "" {
		mode = "color"
	}
	if colormapName == "" {
		colormapName = s.colormap
	}

	key := cache.FrameKey(s.sceneID, mode+":"+colormapName, s.engine.Store().Iteration,
		vp.Width, vp.Height, vp.Yaw, vp.Pitch, vp.Radius, vp.FoV)
	if s.cache != nil {
		if data, ok := s.cache.GetFrame(key); ok {
			return data, nil
		}
	}

	cam := s.camera(vp)
	frame := s.engine.Render(cam)

	var data []byte
	var err error
	switch mode {
	case "color":
		data, err = s.renderer.EncodePNG(s.renderer.ColorImage(frame))
	case "depth":
		data, err = s.renderer.EncodePNG(s.renderer.DepthImage(frame, colormapName))
	case "alpha":
		data, err = s.renderer.EncodePNG(s.renderer.AlphaImage(frame))
	case "gradient":
		img := s.renderer.HeatImage(frame, func(slot int32) float32 {
			return s.engine.MeanGrad(int(slot))
		}, colormapName)
		data, err = s.renderer.EncodePNG(img)
	case "visibility":
		img := s.renderer.HeatImage(frame, func(slot int32) float32 {
			return float32(s.engine.Touch(int(slot)))
		}, colormapName)
		data, err = s.renderer.EncodePNG(img)
	case "overlay":
		data, err = s.renderer.EncodePNG(s.renderer.OverlayImage(frame, s.engine.ControlNets(cam)))
	default:
		return nil, fmt.Errorf("unknown render mode: %s", mode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	if s.cache != nil {
		s.cache.SetFrame(key, data)
	}
	return data, nil
}

// RunDensityControl runs one density pass over the scene and records the
// event when a run store is attached.
func (s *FrameService) RunDensityControl() (densify.Report, error) {
	rep := s.engine.DensityControl(s.density)
	if s.runs == nil {
		return rep, nil
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.runID == "" {
		run, err := s.runs.BeginRun(s.sceneID)
		if err != nil {
			return rep, fmt.Errorf("failed to begin run: %w", err)
		}
		s.runID = run.ID
	}
	store := s.engine.Store()
	if err := s.runs.RecordEvent(s.runID, store.Iteration, rep, s.density, store.Len()); err != nil {
		return rep, fmt.Errorf("failed to record density event: %w", err)
	}
	return rep, nil
}

// RunID returns the active run identifier, empty before the first density
// pass or without a run store.
func (s *FrameService) RunID() string {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.runID
}

// StatsJSON returns the marshaled stats, cached per store iteration.
func (s *FrameService) StatsJSON() ([]byte, error) {
	key := fmt.Sprintf("stats:%s:%d", s.sceneID, s.engine.Store().Iteration)
	if s.cache != nil {
		if data, ok := s.cache.GetQuery(key); ok {
			return data, nil
		}
	}
	data, err := json.Marshal(s.Stats())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stats: %w", err)
	}
	if s.cache != nil {
		s.cache.SetQuery(key, data)
	}
	return data, nil
}

// Stats reports scene and cache statistics.
func (s *FrameService) Stats() map[string]interface{} {
	store := s.engine.Store()
	stats := map[string]interface{}{
		"scene":      s.sceneID,
		"primitives": store.Len(),
		"slots":      store.Slots(),
		"iteration":  store.Iteration,
		"sh_degree":  store.SHDegree(),
	}
	if s.cache != nil {
		stats["cache"] = s.cache.Stats()
	}
	return stats
}
