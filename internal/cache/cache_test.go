package cache

import (
	"testing"
	"time"
)

func TestFrameKey(t *testing.T) {
	base := FrameKey("garden", "color", 100, 800, 600, 0.5, 0.25, 4)

	t.Run("stable", func(t *testing.T) {
		again := FrameKey("garden", "color", 100, 800, 600, 0.5, 0.25, 4)
		if again != base {
			t.Fatalf("expected stable key, got %q vs %q", base, again)
		}
	})

	t.Run("viewChangesKey", func(t *testing.T) {
		moved := FrameKey("garden", "color", 100, 800, 600, 0.6, 0.25, 4)
		if moved == base {
			t.Fatal("expected a different key after a camera change")
		}
	})

	t.Run("iterationChangesKey", func(t *testing.T) {
		later := FrameKey("garden", "color", 101, 800, 600, 0.5, 0.25, 4)
		if later == base {
			t.Fatal("expected a different key after a store update")
		}
	})

	t.Run("modeChangesKey", func(t *testing.T) {
		depth := FrameKey("garden", "depth", 100, 800, 600, 0.5, 0.25, 4)
		if depth == base {
			t.Fatal("expected a different key for another mode")
		}
	})
}

func TestFrameRoundTrip(t *testing.T) {
	m, err := NewManager(Config{
		FrameCacheSizeMB: 16,
		FrameTTL:         time.Minute,
		QueryCacheSize:   16,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	key := FrameKey("garden", "color", 1, 64, 64)
	if _, ok := m.GetFrame(key); ok {
		t.Fatal("unexpected hit on an empty cache")
	}
	if err := m.SetFrame(key, []byte{1, 2, 3}); err != nil {
		t.Fatalf("SetFrame: %v", err)
	}
	data, ok := m.GetFrame(key)
	if !ok || len(data) != 3 {
		t.Fatalf("GetFrame = %v, %v", data, ok)
	}

	m.SetQuery("stats", []byte(`{"n":1}`))
	if q, ok := m.GetQuery("stats"); !ok || string(q) != `{"n":1}` {
		t.Fatalf("GetQuery = %q, %v", q, ok)
	}
}
