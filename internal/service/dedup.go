package service

import "sync"

// DedupCache remembers tracking ids already handed to the gate during one
// monitoring run. A marked id stays marked until the cache is dropped.
type DedupCache struct {
	mu   sync.Mutex
	seen map[int64]struct{}
}

func NewDedupCache() *DedupCache {
	return &DedupCache{seen: make(map[int64]struct{})}
}

func (c *DedupCache) ShouldProcess(trackingID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[trackingID]
	return !ok
}

func (c *DedupCache) MarkProcessed(trackingID int64) {
	c.mu.Lock()
	c.seen[trackingID] = struct{}{}
	c.mu.Unlock()
}

// Claim marks trackingID and reports whether this call was the first to do so.
// Concurrent producers use it instead of ShouldProcess followed by MarkProcessed.
func (c *DedupCache) Claim(trackingID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[trackingID]; ok {
		return false
	}
	c.seen[trackingID] = struct{}{}
	return true
}

func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
