package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_SceneOrder(t *testing.T) {
	content := `
server:
  port: 9000
scenes:
  garden:
    checkpoint: "/data/garden.bgt"
  teapot:
    checkpoint: "/data/teapot.bgt"
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if len(cfg.Scenes.Scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(cfg.Scenes.Scenes))
	}

	// First scene in YAML order should be default
	if cfg.Scenes.DefaultScene != "garden" {
		t.Errorf("expected default scene 'garden', got %q", cfg.Scenes.DefaultScene)
	}

	garden, ok := cfg.Scenes.Scenes["garden"]
	if !ok {
		t.Fatal("expected 'garden' scene")
	}
	if garden.Checkpoint != "/data/garden.bgt" {
		t.Errorf("unexpected garden checkpoint: %s", garden.Checkpoint)
	}

	// Check order preserved
	ids := cfg.Scenes.SceneIDs()
	if len(ids) != 2 || ids[0] != "garden" || ids[1] != "teapot" {
		t.Errorf("unexpected scene order: %v", ids)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
server:
  port: 0
scenes:
  test:
    checkpoint: "/test/scene.bgt"
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Cache.FrameSizeMB != 256 {
		t.Errorf("expected default cache size 256, got %d", cfg.Cache.FrameSizeMB)
	}
	if cfg.Render.SegmentsPerEdge != 8 {
		t.Errorf("expected default segments 8, got %d", cfg.Render.SegmentsPerEdge)
	}
	if cfg.Density.VisWindow != 30 {
		t.Errorf("expected default visibility window 30, got %d", cfg.Density.VisWindow)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
	if cfg.RunDB == "" {
		t.Error("expected default run database path")
	}
}

func TestLoad_RenderOverrides(t *testing.T) {
	content := `
render:
  segments_per_edge: 16
  aa_width: 2.0
  gaussian_scale: 0.5
`
	cfg := loadFromString(t, content)

	if cfg.Render.SegmentsPerEdge != 16 {
		t.Errorf("segments_per_edge = %d, want 16", cfg.Render.SegmentsPerEdge)
	}
	if cfg.Render.AAWidth != 2.0 {
		t.Errorf("aa_width = %v, want 2.0", cfg.Render.AAWidth)
	}
	if cfg.Render.GaussianScale != 0.5 {
		t.Errorf("gaussian_scale = %v, want 0.5", cfg.Render.GaussianScale)
	}
	// Untouched settings fall back
	if cfg.Render.DefaultColormap != "viridis" {
		t.Errorf("default_colormap = %q, want viridis", cfg.Render.DefaultColormap)
	}
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
