// Package api provides HTTP handlers for the viewer server.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/beztri/engine/internal/runstore"
	"github.com/beztri/engine/internal/service"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry    *SceneRegistry
	Runs        *runstore.Store // optional run event log
	CORSOrigins []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Global scene list (not scene-scoped)
	r.Get("/api/scenes", scenesHandler(cfg.Registry))

	// Run event log
	r.Get("/api/runs", runsHandler(cfg.Runs))
	r.Get("/api/runs/{run_id}/events", runEventsHandler(cfg.Runs))

	// Scene-scoped routes: /s/{scene}/...
	r.Route("/s/{scene}", func(r chi.Router) {
		r.Use(sceneMiddleware(cfg.Registry))

		r.Get("/render.png", sceneRenderHandler)

		r.Route("/api", func(r chi.Router) {
			r.Get("/stats", sceneStatsHandler)
			r.Post("/density", sceneDensityHandler)
		})
	})

	return r
}

// Context key for scene service
type ctxKey string

const sceneServiceKey ctxKey = "sceneService"

// sceneMiddleware resolves the scene from URL and injects the frame
// service into context.
func sceneMiddleware(registry *SceneRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sceneID := chi.URLParam(r, "scene")
			svc := registry.Get(sceneID)
			if svc == nil {
				http.Error(w, "scene not found: "+sceneID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), sceneServiceKey, svc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getSceneService(r *http.Request) *service.FrameService {
	if svc, ok := r.Context().Value(sceneServiceKey).(*service.FrameService); ok {
		return svc
	}
	return nil
}

// scenesHandler returns the list of available scenes.
func scenesHandler(registry *SceneRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"default": registry.DefaultSceneID(),
			"scenes":  registry.Scenes(),
			"title":   registry.Title(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

func runsHandler(runs *runstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runs == nil {
			http.Error(w, "run log not configured", http.StatusNotFound)
			return
		}
		limit := queryInt(r, "limit", 50)
		list, err := runs.ListRuns(limit)
		if err != nil {
			http.Error(w, "failed to list runs: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"runs": list})
	}
}

func runEventsHandler(runs *runstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runs == nil {
			http.Error(w, "run log not configured", http.StatusNotFound)
			return
		}
		runID := chi.URLParam(r, "run_id")
		run, err := runs.GetRun(runID)
		if err != nil {
			http.Error(w, "failed to load run: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if run == nil {
			http.Error(w, "run not found: "+runID, http.StatusNotFound)
			return
		}
		events, err := runs.Events(runID)
		if err != nil {
			http.Error(w, "failed to load events: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"run":    run,
			"events": events,
		})
	}
}

// sceneRenderHandler serves a rendered frame. The orbit camera and the
// render mode come from query parameters.
func sceneRenderHandler(w http.ResponseWriter, r *http.Request) {
	svc := getSceneService(r)
	if svc == nil {
		http.Error(w, "scene service not found", http.StatusInternalServerError)
		return
	}

	vp := service.ViewParams{
		Yaw:    queryFloat(r, "yaw", 0),
		Pitch:  queryFloat(r, "pitch", 0),
		Radius: queryFloat(r, "radius", 0),
		FoV:    queryFloat(r, "fov", 0),
		Width:  queryInt(r, "w", 0),
		Height: queryInt(r, "h", 0),
	}
	if vp.Width > 4096 || vp.Height > 4096 {
		http.Error(w, "requested frame too large", http.StatusBadRequest)
		return
	}
	mode := strings.TrimSpace(r.URL.Query().Get("mode"))
	cmap := strings.TrimSpace(r.URL.Query().Get("colormap"))

	data, err := svc.GetFramePNG(mode, vp, cmap)
	if err != nil {
		if strings.HasPrefix(err.Error(), "unknown render mode") {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to render frame: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.Write(data)
}

func sceneStatsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getSceneService(r)
	if svc == nil {
		http.Error(w, "scene service not found", http.StatusInternalServerError)
		return
	}
	data, err := svc.StatsJSON()
	if err != nil {
		http.Error(w, "failed to collect stats: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// sceneDensityHandler triggers one density-control pass and returns the
// report.
func sceneDensityHandler(w http.ResponseWriter, r *http.Request) {
	svc := getSceneService(r)
	if svc == nil {
		http.Error(w, "scene service not found", http.StatusInternalServerError)
		return
	}
	rep, err := svc.RunDensityControl()
	if err != nil {
		http.Error(w, "density control failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"report": rep,
		"run_id": svc.RunID(),
	})
}

func queryFloat(r *http.Request, name string, def float32) float32 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return def
	}
	return float32(v)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
