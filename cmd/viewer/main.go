// Package main is the entry point for the scene viewer server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beztri/engine/internal/api"
	"github.com/beztri/engine/internal/cache"
	"github.com/beztri/engine/internal/config"
	"github.com/beztri/engine/internal/densify"
	"github.com/beztri/engine/internal/primitive"
	"github.com/beztri/engine/internal/render"
	"github.com/beztri/engine/internal/runstore"
	"github.com/beztri/engine/internal/service"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/viewer.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting viewer server on port %d", cfg.Server.Port)

	ctx := context.Background()

	// Initialize cache manager (shared across all scenes)
	cacheManager, err := cache.NewManager(cache.Config{
		FrameCacheSizeMB: cfg.Cache.FrameSizeMB,
		FrameTTL:         time.Duration(cfg.Cache.FrameTTLMinutes) * time.Minute,
		QueryCacheSize:   1000,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}

	// Initialize image renderer (shared across all scenes)
	imageRenderer := render.NewImageRenderer()

	// Initialize run event log
	runs, err := runstore.NewStore(cfg.RunDB)
	if err != nil {
		log.Fatalf("Failed to initialize run store: %v", err)
	}
	defer runs.Close()

	density := densify.Options{
		GradThreshold: cfg.Density.GradThreshold,
		SplitArea:     cfg.Density.SplitArea,
		MaxScreenArea: cfg.Density.MaxScreenArea,
		PruneOpacity:  cfg.Density.PruneOpacity,
		VisWindow:     cfg.Density.VisWindow,
		LoDPixelArea:  cfg.Density.LoDPixelArea,
		MaxPrimitives: cfg.Density.MaxPrimitives,
	}
	renderOpts := render.Options{
		SegmentsPerEdge: cfg.Render.SegmentsPerEdge,
		AAWidth:         cfg.Render.AAWidth,
		GaussianScale:   cfg.Render.GaussianScale,
		EarlyExit:       cfg.Render.EarlyExit,
	}

	// Initialize scene registry
	sceneIDs := cfg.Scenes.SceneIDs()
	if len(sceneIDs) == 0 {
		log.Fatal("No scenes configured")
	}
	registry := api.NewSceneRegistry(cfg.Scenes.DefaultScene, sceneIDs, "")

	log.Printf("Initializing %d scene(s), default: %s", len(sceneIDs), cfg.Scenes.DefaultScene)

	for _, sceneID := range sceneIDs {
		sc := cfg.Scenes.Scenes[sceneID]

		store, err := primitive.LoadFile(sc.Checkpoint)
		if err != nil {
			log.Fatalf("Failed to load checkpoint for scene %q: %v", sceneID, err)
		}
		log.Printf("  [%s] Loaded from: %s", sceneID, sc.Checkpoint)
		log.Printf("    Primitives: %d, SH degree: %d, iteration: %d",
			store.Len(), store.SHDegree(), store.Iteration)

		frameService := service.NewFrameService(service.FrameServiceConfig{
			SceneID:         sceneID,
			Engine:          render.NewEngine(store, renderOpts),
			Cache:           cacheManager,
			Renderer:        imageRenderer,
			Runs:            runs,
			Density:         density,
			DefaultColormap: cfg.Render.DefaultColormap,
		})
		registry.Register(sceneID, frameService)
	}

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Registry:    registry,
		Runs:        runs,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
