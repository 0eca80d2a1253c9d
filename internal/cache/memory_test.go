package cache

import (
	"testing"
	"time"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, found := c.Get("missing"); found {
		t.Error("expected miss for unknown key")
	}

	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	val, found := c.Get("k")
	if !found || string(val) != "v" {
		t.Errorf("expected hit with value v, got %q (found=%v)", val, found)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	_ = c.Set("short", []byte("v"), 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)

	if _, found := c.Get("short"); found {
		t.Error("expected entry to expire")
	}
}

func TestMemoryCache_DeleteClear(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	_ = c.Set("a", []byte("1"), 0)
	_ = c.Set("b", []byte("2"), 0)

	_ = c.Delete("a")
	if _, found := c.Get("a"); found {
		t.Error("expected a to be deleted")
	}

	_ = c.Clear()
	if c.Len() != 0 {
		t.Errorf("expected empty cache after clear, got %d entries", c.Len())
	}
}

func TestKey_Namespaced(t *testing.T) {
	k1 := Key("score", []byte("abc"))
	k2 := Key("score", []byte("abc"))
	k3 := Key("other", []byte("abc"))

	if k1 != k2 {
		t.Errorf("expected stable key, got %s and %s", k1, k2)
	}
	if k1 == k3 {
		t.Error("expected different namespaces to produce different keys")
	}
}
