package cache

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"galleria/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard, io.Discard)
	os.Exit(m.Run())
}

func newTestCache(t *testing.T, opts Options) (*MemoryCache, *time.Time) {
	t.Helper()
	opts.Enabled = true
	c := New(opts)
	t.Cleanup(c.Close)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c, _ := newTestCache(t, Options{})

	c.Set("a", []byte("hello"))
	got, ok := c.Get("a")
	if !ok || string(got) != "hello" {
		t.Fatalf("Get(a) = %q, %v", got, ok)
	}

	c.Set("a", []byte("hi"))
	if items, size := c.Stats(); items != 1 || size != 2 {
		t.Errorf("Stats after overwrite = %d items, %d bytes", items, size)
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted item still cached")
	}
	if items, size := c.Stats(); items != 0 || size != 0 {
		t.Errorf("Stats after delete = %d items, %d bytes", items, size)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c, now := newTestCache(t, Options{TTL: time.Minute})

	c.Set("short", []byte("x"))
	c.SetWithTTL("long", []byte("y"), time.Hour)

	*now = now.Add(2 * time.Minute)
	if _, ok := c.Get("short"); ok {
		t.Error("expired item returned")
	}
	if _, ok := c.Get("long"); !ok {
		t.Error("item with its own TTL expired early")
	}

	if n, freed := c.removeExpired(); n != 1 || freed != 1 {
		t.Errorf("removeExpired = %d, %d", n, freed)
	}
}

func TestMemoryCache_Limits(t *testing.T) {
	c, now := newTestCache(t, Options{MaxSize: 100, MaxItemSize: 40})

	c.Set("huge", bytes.Repeat([]byte{1}, 41))
	if _, ok := c.Get("huge"); ok {
		t.Error("item above the per-item limit was cached")
	}

	for _, key := range []string{"first", "second", "third"} {
		c.Set(key, bytes.Repeat([]byte{1}, 30))
		*now = now.Add(time.Second)
	}
	c.Set("fourth", bytes.Repeat([]byte{1}, 30))

	if _, ok := c.Get("first"); ok {
		t.Error("oldest item survived pruning")
	}
	if _, ok := c.Get("fourth"); !ok {
		t.Error("new item missing after pruning")
	}
	if _, size := c.Stats(); size > 100 {
		t.Errorf("cache holds %d bytes over its limit", size)
	}
}

func TestMemoryCache_Disabled(t *testing.T) {
	c := New(Options{Enabled: false})
	c.Set("a", []byte("x"))
	if _, ok := c.Get("a"); ok {
		t.Error("disabled cache returned an item")
	}

	var nilCache *MemoryCache
	nilCache.Set("a", []byte("x"))
	nilCache.SetWithTTL("a", []byte("x"), time.Minute)
	nilCache.Delete("a")
	if _, ok := nilCache.Get("a"); ok {
		t.Error("nil cache returned an item")
	}
	if n, size := nilCache.Stats(); n != 0 || size != 0 {
		t.Errorf("nil cache stats = %d, %d", n, size)
	}
	nilCache.Close()
}
