package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SnapshotCache stores the serialized department tree. Implementations must treat
// a missing or expired entry as a miss rather than an error.
type SnapshotCache interface {
	Name() string
	Get(ctx context.Context) (*TreeSnapshot, bool, error)
	// Generation returns a value that changes on every Invalidate.
	Generation(ctx context.Context) (int64, error)
	// Set stores snapshot only if the generation is still gen, and reports whether
	// it did. A tree built before a concurrent invalidation is never cached.
	Set(ctx context.Context, snapshot *TreeSnapshot, gen int64, ttl time.Duration) (bool, error)
	Invalidate(ctx context.Context) error
}

type memoryEntry struct {
	snapshot  *TreeSnapshot
	expiresAt time.Time
}

type MemorySnapshotCache struct {
	mu    sync.RWMutex
	entry *memoryEntry
	gen   int64
	now   func() time.Time
}

func NewMemorySnapshotCache() *MemorySnapshotCache {
	return &MemorySnapshotCache{now: time.Now}
}

func (c *MemorySnapshotCache) Name() string { return "memory" }

func (c *MemorySnapshotCache) Get(_ context.Context) (*TreeSnapshot, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return nil, false, nil
	}
	if !c.entry.expiresAt.IsZero() && !c.now().Before(c.entry.expiresAt) {
		return nil, false, nil
	}
	return c.entry.snapshot, true, nil
}

func (c *MemorySnapshotCache) Generation(_ context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen, nil
}

func (c *MemorySnapshotCache) Set(_ context.Context, snapshot *TreeSnapshot, gen int64, ttl time.Duration) (bool, error) {
	if snapshot == nil {
		return false, nil
	}
	entry := &memoryEntry{snapshot: snapshot}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false, nil
	}
	c.entry = entry
	return true, nil
}

func (c *MemorySnapshotCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = nil
	c.gen++
	return nil
}

// NoopSnapshotCache disables caching; every read rebuilds the tree.
type NoopSnapshotCache struct{}

func (NoopSnapshotCache) Name() string { return "none" }

func (NoopSnapshotCache) Get(context.Context) (*TreeSnapshot, bool, error) { return nil, false, nil }

func (NoopSnapshotCache) Generation(context.Context) (int64, error) { return 0, nil }

func (NoopSnapshotCache) Set(context.Context, *TreeSnapshot, int64, time.Duration) (bool, error) {
	return false, nil
}

func (NoopSnapshotCache) Invalidate(context.Context) error { return nil }

// invalidateSnapshot drops the cached tree after a committed write. Failures are
// logged and counted but never fail the write.
func invalidateSnapshot(ctx context.Context, cache SnapshotCache, reason string) {
	if cache == nil {
		return
	}
	recordCacheInvalidate(reason)
	if err := cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
		recordCacheError("invalidate")
		logWithFields(ctx, logrus.WarnLevel, "tree snapshot invalidation failed", logrus.Fields{
			"cache":  cache.Name(),
			"reason": reason,
			"error":  err.Error(),
		})
	}
}
