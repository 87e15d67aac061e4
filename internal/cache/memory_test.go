package cache

import (
	"testing"
	"time"
)

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	defer cache.Close()

	t.Run("SetAndGet", func(t *testing.T) {
		cache.Set("key1", "value1")

		value, exists := cache.Get("key1")
		if !exists {
			t.Fatal("Expected key1 to exist")
		}
		if value != "value1" {
			t.Errorf("Expected value1, got %v", value)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, exists := cache.Get("missing"); exists {
			t.Error("Expected missing key to not exist")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		cache.Set("doomed", 42)
		cache.Delete("doomed")

		if _, exists := cache.Get("doomed"); exists {
			t.Error("Expected deleted key to be gone")
		}
	})

	t.Run("Clear", func(t *testing.T) {
		cache.Set("a", 1)
		cache.Set("b", 2)
		cache.Clear()

		if cache.Size() != 0 {
			t.Errorf("Expected empty cache after clear, got size %d", cache.Size())
		}
	})
}

func TestMemoryCacheExpiration(t *testing.T) {
	cache := NewMemoryCache(10 * time.Millisecond)
	defer cache.Close()

	cache.Set("short-lived", "value")
	time.Sleep(20 * time.Millisecond)

	if _, exists := cache.Get("short-lived"); exists {
		t.Error("Expected entry to have expired")
	}
}

func TestMemoryCacheCloseIsIdempotent(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	cache.Close()
	cache.Close()
}
