package fleet_test

import (
	"testing"
	"time"

	"github.com/frotaops/fleet-engine/fleet"
)

func TestTTLCacheEviction(t *testing.T) {
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	cache := fleet.NewTTLCacheWithClock(func() time.Time { return now })

	cache.Set("vehicles:list", []string{"v-1"}, 30*time.Second)

	if !cache.Has("vehicles:list") {
		t.Fatal("expected a fresh entry")
	}

	now = now.Add(29 * time.Second)
	if _, ok := cache.Get("vehicles:list"); !ok {
		t.Error("entry evicted before its TTL")
	}

	now = now.Add(2 * time.Second)
	if _, ok := cache.Get("vehicles:list"); ok {
		t.Error("entry survived past its TTL")
	}
}

func TestTTLCacheInvalidate(t *testing.T) {
	cache := fleet.NewTTLCache()
	cache.Set("k", 1, time.Minute)
	cache.Invalidate("k")
	if cache.Has("k") {
		t.Error("invalidated entry still present")
	}
}
