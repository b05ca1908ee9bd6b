package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/beztri/engine/internal/cache"
	"github.com/beztri/engine/internal/densify"
	"github.com/beztri/engine/internal/primitive"
	"github.com/beztri/engine/internal/render"
	"github.com/beztri/engine/internal/runstore"
	"github.com/beztri/engine/internal/service"
	"github.com/beztri/engine/pkg/vecmath"
)

func testRouter(t *testing.T) (http.Handler, *runstore.Store) {
	t.Helper()

	store, err := primitive.NewStore(0)
	if err != nil {
		t.Fatal(err)
	}
	a := vecmath.XYZ(-1, -1, 0)
	b := vecmath.XYZ(1, -1, 0)
	c := vecmath.XYZ(0, 1, 0)
	store.Add(primitive.Params{
		Ctrl: primitive.Net{
			a, b, c,
			a.Lerp(b, 0.5), b.Lerp(c, 0.5), c.Lerp(a, 0.5),
		},
		LogScale: vecmath.XYZ(3, 3, 3),
		Rot:      vecmath.Quat{W: 1},
		Opacity:  1,
		SH:       []float32{1, 0.5, 0.2},
	})

	cacheManager, err := cache.NewManager(cache.Config{
		FrameCacheSizeMB: 16,
		FrameTTL:         1 * time.Minute,
		QueryCacheSize:   10,
	})
	if err != nil {
		t.Fatalf("failed to initialize cache: %v", err)
	}
	t.Cleanup(func() { cacheManager.Close() })

	runs, err := runstore.NewStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("failed to initialize run store: %v", err)
	}
	t.Cleanup(func() { runs.Close() })

	svc := service.NewFrameService(service.FrameServiceConfig{
		SceneID:  "test",
		Engine:   render.NewEngine(store, render.Options{Workers: 1}),
		Cache:    cacheManager,
		Renderer: render.NewImageRenderer(),
		Runs:     runs,
		Density:  densify.DefaultOptions(),
	})

	registry := NewSceneRegistry("test", []string{"test"}, "")
	registry.Register("test", svc)

	router := NewRouter(RouterConfig{
		Registry:    registry,
		Runs:        runs,
		CORSOrigins: []string{"http://localhost:3000"},
	})
	return router, runs
}

func TestRenderEndpoint_NoListen(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/s/test/render.png?w=64&h=64&yaw=0.2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty PNG body")
	}
}

func TestRenderEndpoint_UnknownScene(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/s/nope/render.png", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestRenderEndpoint_BadMode(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/s/test/render.png?mode=bogus", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d: %s", http.StatusBadRequest, rec.Code, rec.Body.String())
	}
}

func TestScenesEndpoint(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/scenes", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if got, _ := payload["default"].(string); got != "test" {
		t.Fatalf("unexpected default scene: %q", got)
	}
}

func TestStatsEndpoint(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/s/test/api/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if got, _ := payload["primitives"].(float64); got != 1 {
		t.Fatalf("unexpected primitive count: %v", payload["primitives"])
	}
}

func TestDensityEndpointRecordsEvent(t *testing.T) {
	router, runs := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/s/test/api/density", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var payload struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if payload.RunID == "" {
		t.Fatal("density pass did not open a run")
	}

	events, err := runs.Events(payload.RunID)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
}
