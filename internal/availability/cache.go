package availability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Cache stores recent availability results so rapid re-queries of the same
// interval do not hit the backend. Keys carry the full (start, end,
// excludeID) identity of the query.
type Cache interface {
	Get(ctx context.Context, key string) (available bool, ok bool, err error)
	Set(ctx context.Context, key string, available bool, ttl time.Duration) error
}

// CacheKey identifies one queried interval.
func CacheKey(start, end time.Time, excludeAppointmentID string) string {
	return fmt.Sprintf("availability:%s:%s:%s",
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), excludeAppointmentID)
}

type memoryEntry struct {
	available bool
	expiresAt time.Time
}

// MemoryCache is the in-process Cache used when no Redis address is
// configured. Expired entries are evicted lazily on read.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false, false, nil
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return false, false, nil
	}
	return e.available, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, available bool, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{available: available, expiresAt: c.now().Add(ttl)}
	return nil
}
