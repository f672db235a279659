// Package cache provides a thread-safe, in-memory key-value store with
// TTL-based expiration and active memory management (eviction).
package cache

import (
	"sort"
	"sync"
	"time"

	"galleria/pkg/logger"
	"galleria/pkg/utils"
)

const (
	DefaultMaxSize = 100 << 20 // 100 MB
	DefaultTTL     = 30 * time.Minute

	// DefaultMaxItemSize keeps full-size originals out of the Go heap; they are
	// better served by the OS page cache. Thumbnails and geocode results fit.
	DefaultMaxItemSize = 512 << 10

	// GCInterval: Expired items cleanup frequency.
	GCInterval = 5 * time.Minute

	// MonitorInterval: Heartbeat logging.
	MonitorInterval = 30 * time.Minute
)

type Options struct {
	Enabled     bool
	MaxSize     int64 // bytes
	MaxItemSize int64 // bytes
	TTL         time.Duration
}

type Item struct {
	Data      []byte
	ExpiresAt time.Time
	Size      int64
}

type MemoryCache struct {
	sync.RWMutex
	items       map[string]Item
	totalSize   int64
	maxSize     int64
	maxItemSize int64
	ttl         time.Duration
	enabled     bool

	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// New initializes the in-memory cache and, when enabled, starts the GC and
// monitor workers. Call Close to stop them.
func New(opts Options) *MemoryCache {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.MaxItemSize <= 0 {
		opts.MaxItemSize = DefaultMaxItemSize
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	c := &MemoryCache{
		maxSize:     opts.MaxSize,
		maxItemSize: opts.MaxItemSize,
		ttl:         opts.TTL,
		enabled:     opts.Enabled,
		stop:        make(chan struct{}),
		now:         time.Now,
	}

	if c.enabled {
		c.items = make(map[string]Item)

		go c.startGC()
		go c.startMonitor()

		logger.LogInfo("Memory Cache Initialized: %s Limit, TTL: %s", utils.FormatBytes(c.maxSize), c.ttl)
	} else {
		logger.LogWarn("Memory Cache is DISABLED via config (Running in pass-through mode).")
	}
	return c
}

// Close stops background workers. The cache keeps answering afterwards.
func (c *MemoryCache) Close() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() { close(c.stop) })
}

// Set stores a value in the cache with the configured TTL.
func (c *MemoryCache) Set(key string, data []byte) {
	if c == nil {
		return
	}
	c.SetWithTTL(key, data, c.ttl)
}

// SetWithTTL stores a value with its own lifetime. Items larger than the
// per-item limit (or half the cache) are skipped.
func (c *MemoryCache) SetWithTTL(key string, data []byte, ttl time.Duration) {
	if c == nil || !c.enabled {
		return
	}

	c.Lock()
	defer c.Unlock()

	size := int64(len(data))

	if size > c.maxSize/2 || size > c.maxItemSize {
		return
	}

	// Overwrite logic: Remove old size before adding new
	if oldItem, exists := c.items[key]; exists {
		c.totalSize -= oldItem.Size
		delete(c.items, key)
	}

	if c.totalSize+size > c.maxSize {
		c.prune(size)
	}

	c.items[key] = Item{
		Data:      data,
		ExpiresAt: c.now().Add(ttl),
		Size:      size,
	}
	c.totalSize += size
}

// Get retrieves an item if it exists and hasn't expired.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	if c == nil || !c.enabled {
		return nil, false
	}

	c.RLock()
	defer c.RUnlock()

	item, found := c.items[key]
	if !found {
		return nil, false
	}
	if c.now().After(item.ExpiresAt) {
		return nil, false
	}
	return item.Data, true
}

// Delete explicitly removes an item from the cache.
func (c *MemoryCache) Delete(key string) {
	if c == nil || !c.enabled {
		return
	}

	c.Lock()
	defer c.Unlock()

	if item, found := c.items[key]; found {
		delete(c.items, key)
		c.totalSize -= item.Size
	}
}

// Stats returns the item count and bytes in use.
func (c *MemoryCache) Stats() (int, int64) {
	if c == nil || !c.enabled {
		return 0, 0
	}
	c.RLock()
	defer c.RUnlock()
	return len(c.items), c.totalSize
}

// prune evicts items sorted by expiration time until there is room for needed
// bytes and usage is at most 80% of capacity. Caller holds the write lock.
func (c *MemoryCache) prune(needed int64) {
	if len(c.items) == 0 {
		return
	}

	targetSize := int64(float64(c.maxSize) * 0.80)
	if targetSize > c.maxSize-needed {
		targetSize = c.maxSize - needed
	}

	type candidate struct {
		Key       string
		ExpiresAt time.Time
		Size      int64
	}

	candidates := make([]candidate, 0, len(c.items))
	for k, v := range c.items {
		candidates = append(candidates, candidate{k, v.ExpiresAt, v.Size})
	}

	// Items that expire soonest go first.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ExpiresAt.Before(candidates[j].ExpiresAt)
	})

	for _, cand := range candidates {
		if c.totalSize <= targetSize {
			break
		}

		delete(c.items, cand.Key)
		c.totalSize -= cand.Size
	}
}

func (c *MemoryCache) removeExpired() (int, int64) {
	c.Lock()
	defer c.Unlock()

	now := c.now()
	removedCount := 0
	removedBytes := int64(0)

	for k, v := range c.items {
		if now.After(v.ExpiresAt) {
			delete(c.items, k)
			c.totalSize -= v.Size
			removedBytes += v.Size
			removedCount++
		}
	}
	return removedCount, removedBytes
}

// startGC is a background worker that removes expired items.
func (c *MemoryCache) startGC() {
	ticker := time.NewTicker(GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if removedCount, removedBytes := c.removeExpired(); removedCount > 0 {
				logger.LogDebug("[CACHE] GC: Cleaned %d items (%s freed)", removedCount, utils.FormatBytes(removedBytes))
			}
		}
	}
}

// startMonitor logs cache statistics periodically.
func (c *MemoryCache) startMonitor() {
	ticker := time.NewTicker(MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			count, used := c.Stats()
			if count == 0 {
				continue
			}

			percent := (float64(used) / float64(c.maxSize)) * 100
			logger.LogInfo("[CACHE] Cache: %d items | Usage: %s / %s (%.2f%%)",
				count,
				utils.FormatBytes(used),
				utils.FormatBytes(c.maxSize),
				percent,
			)
		}
	}
}
