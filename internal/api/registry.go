package api

import (
	"github.com/beztri/engine/internal/service"
)

// SceneInfo contains information about a scene for the API response.
type SceneInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SceneRegistry holds frame services for all configured scenes.
type SceneRegistry struct {
	services     map[string]*service.FrameService
	defaultScene string
	sceneOrder   []string
	title        string
}

// NewSceneRegistry creates a new scene registry.
func NewSceneRegistry(defaultScene string, order []string, title string) *SceneRegistry {
	return &SceneRegistry{
		services:     make(map[string]*service.FrameService),
		defaultScene: defaultScene,
		sceneOrder:   order,
		title:        title,
	}
}

// Register adds a frame service for a scene.
func (r *SceneRegistry) Register(sceneID string, svc *service.FrameService) {
	r.services[sceneID] = svc
}

// Get returns the frame service for a scene, or nil if not found.
func (r *SceneRegistry) Get(sceneID string) *service.FrameService {
	return r.services[sceneID]
}

// Default returns the default scene's frame service.
func (r *SceneRegistry) Default() *service.FrameService {
	return r.services[r.defaultScene]
}

// DefaultSceneID returns the default scene ID.
func (r *SceneRegistry) DefaultSceneID() string {
	return r.defaultScene
}

// SceneIDs returns all scene IDs in config order.
func (r *SceneRegistry) SceneIDs() []string {
	return r.sceneOrder
}

// Title returns the configured site title.
func (r *SceneRegistry) Title() string {
	if r.title != "" {
		return r.title
	}
	return "Beztri"
}

// Scenes returns scene info for all registered scenes.
func (r *SceneRegistry) Scenes() []SceneInfo {
	infos := make([]SceneInfo, 0, len(r.sceneOrder))
	for _, id := range r.sceneOrder {
		infos = append(infos, SceneInfo{ID: id, Name: id})
	}
	return infos
}
