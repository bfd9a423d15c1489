package cache

import "time"

// LayeredCache reads memory first, then disk, promoting disk hits into memory
type LayeredCache struct {
	memory    Cache
	disk      Cache
	memoryTTL time.Duration
}

// NewLayeredCache creates a memory+disk cache. An empty diskDir keeps entries in memory only.
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	var disk Cache = Noop{}
	if diskDir != "" {
		disk = NewDiskCache(diskDir, diskTTL)
	}
	return &LayeredCache{
		memory:    NewMemoryCache(memoryTTL, 10*time.Minute),
		disk:      disk,
		memoryTTL: memoryTTL,
	}
}

// Get checks memory, then disk
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.memory.Get(key); found {
		return val, true
	}
	if val, found := c.disk.Get(key); found {
		_ = c.memory.Set(key, val, c.memoryTTL)
		return val, true
	}
	return nil, false
}

// Set stores in both layers; memory never outlives the requested ttl
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	memTTL := c.memoryTTL
	if ttl > 0 && ttl < memTTL {
		memTTL = ttl
	}
	if err := c.memory.Set(key, value, memTTL); err != nil {
		return err
	}
	return c.disk.Set(key, value, ttl)
}

// Delete removes the key from both layers
func (c *LayeredCache) Delete(key string) error {
	_ = c.memory.Delete(key)
	return c.disk.Delete(key)
}

// Clear empties both layers
func (c *LayeredCache) Clear() error {
	_ = c.memory.Clear()
	return c.disk.Clear()
}
