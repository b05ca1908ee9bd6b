// Package config handles configuration loading for the viewer server.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the viewer configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Scenes  ScenesConfig  `yaml:"scenes"`
	Cache   CacheConfig   `yaml:"cache"`
	Render  RenderConfig  `yaml:"render"`
	Density DensityConfig `yaml:"density"`
	RunDB   string        `yaml:"run_db"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// SceneConfig describes one loadable scene.
type SceneConfig struct {
	Checkpoint string `yaml:"checkpoint"`
}

// ScenesConfig maps scene IDs to their sources, preserving YAML order.
// The first scene listed is the default.
type ScenesConfig struct {
	DefaultScene string
	Scenes       map[string]SceneConfig
	order        []string
}

// SceneIDs returns scene IDs in configuration order.
func (s *ScenesConfig) SceneIDs() []string {
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

// UnmarshalYAML decodes the scenes mapping while retaining key order.
func (s *ScenesConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("scenes: expected a mapping, got %v", node.Kind)
	}
	s.Scenes = make(map[string]SceneConfig)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var id string
		if err := node.Content[i].Decode(&id); err != nil {
			return err
		}
		var sc SceneConfig
		if err := node.Content[i+1].Decode(&sc); err != nil {
			return err
		}
		s.Scenes[id] = sc
		s.order = append(s.order, id)
	}
	if len(s.order) > 0 {
		s.DefaultScene = s.order[0]
	}
	return nil
}

// CacheConfig contains frame caching settings.
type CacheConfig struct {
	FrameSizeMB     int `yaml:"frame_size_mb"`
	FrameTTLMinutes int `yaml:"frame_ttl_minutes"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	SegmentsPerEdge int     `yaml:"segments_per_edge"`
	AAWidth         float32 `yaml:"aa_width"`
	GaussianScale   float32 `yaml:"gaussian_scale"`
	EarlyExit       float32 `yaml:"early_exit"`
	DefaultColormap string  `yaml:"default_colormap"`
}

// DensityConfig contains density-control thresholds.
type DensityConfig struct {
	GradThreshold float32 `yaml:"grad_threshold"`
	SplitArea     float32 `yaml:"split_area"`
	MaxScreenArea float32 `yaml:"max_screen_area"`
	PruneOpacity  float32 `yaml:"prune_opacity"`
	VisWindow     int     `yaml:"vis_window"`
	LoDPixelArea  float32 `yaml:"lod_pixel_area"`
	MaxPrimitives int     `yaml:"max_primitives"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Cache: CacheConfig{
			FrameSizeMB:     256,
			FrameTTLMinutes: 10,
		},
		Render: RenderConfig{
			SegmentsPerEdge: 8,
			AAWidth:         1,
			GaussianScale:   1,
			EarlyExit:       1e-4,
			DefaultColormap: "viridis",
		},
		Density: DensityConfig{
			GradThreshold: 2e-4,
			SplitArea:     64,
			MaxScreenArea: 4096,
			PruneOpacity:  0.005,
			VisWindow:     30,
			LoDPixelArea:  1,
			MaxPrimitives: 1_000_000,
		},
		RunDB: "./data/runs.db",
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Cache.FrameSizeMB == 0 {
		cfg.Cache.FrameSizeMB = defaults.Cache.FrameSizeMB
	}
	if cfg.Cache.FrameTTLMinutes == 0 {
		cfg.Cache.FrameTTLMinutes = defaults.Cache.FrameTTLMinutes
	}
	if cfg.Render.SegmentsPerEdge == 0 {
		cfg.Render.SegmentsPerEdge = defaults.Render.SegmentsPerEdge
	}
	if cfg.Render.AAWidth == 0 {
		cfg.Render.AAWidth = defaults.Render.AAWidth
	}
	if cfg.Render.GaussianScale == 0 {
		cfg.Render.GaussianScale = defaults.Render.GaussianScale
	}
	if cfg.Render.EarlyExit == 0 {
		cfg.Render.EarlyExit = defaults.Render.EarlyExit
	}
	if cfg.Render.DefaultColormap == "" {
		cfg.Render.DefaultColormap = defaults.Render.DefaultColormap
	}
	if cfg.Density.GradThreshold == 0 {
		cfg.Density.GradThreshold = defaults.Density.GradThreshold
	}
	if cfg.Density.SplitArea == 0 {
		cfg.Density.SplitArea = defaults.Density.SplitArea
	}
	if cfg.Density.MaxScreenArea == 0 {
		cfg.Density.MaxScreenArea = defaults.Density.MaxScreenArea
	}
	if cfg.Density.PruneOpacity == 0 {
		cfg.Density.PruneOpacity = defaults.Density.PruneOpacity
	}
	if cfg.Density.VisWindow == 0 {
		cfg.Density.VisWindow = defaults.Density.VisWindow
	}
	if cfg.Density.LoDPixelArea == 0 {
		cfg.Density.LoDPixelArea = defaults.Density.LoDPixelArea
	}
	if cfg.Density.MaxPrimitives == 0 {
		cfg.Density.MaxPrimitives = defaults.Density.MaxPrimitives
	}
	if cfg.RunDB == "" {
		cfg.RunDB = defaults.RunDB
	}
}
