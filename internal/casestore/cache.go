package casestore

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"rentcase/internal/domain"
)

// DefaultLoadTimeout bounds one backend read.
const DefaultLoadTimeout = 30 * time.Second

// Cache owns the process-wide snapshot. The first successful load is
// memoised; failed loads are not, so a snapshot written later is picked up by
// the next call. Changes on disk are only seen after Reload.
type Cache struct {
	backend     Backend
	group       singleflight.Group
	loadTimeout time.Duration

	mu       sync.RWMutex
	snap     *domain.Snapshot
	loadedAt time.Time
}

// NewCache returns an empty cache over backend.
func NewCache(backend Backend) *Cache {
	return &Cache{backend: backend, loadTimeout: DefaultLoadTimeout}
}

// Backend returns the backend the cache reads from.
func (c *Cache) Backend() Backend { return c.backend }

// Get returns the memoised snapshot, loading it on first use. Concurrent
// first calls share one load, which runs detached from any single caller so
// one cancelled caller does not fail the others.
func (c *Cache) Get(ctx context.Context) (*domain.Snapshot, error) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}
	return c.shared(ctx, "get", func(lctx context.Context) (*domain.Snapshot, error) {
		c.mu.RLock()
		cached := c.snap
		c.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}
		return c.load(lctx, false)
	})
}

// Reload reads the backend again and swaps the snapshot in. If the read
// fails the previous snapshot stays in place. Reload never joins an
// in-flight first load.
func (c *Cache) Reload(ctx context.Context) (*domain.Snapshot, error) {
	return c.shared(ctx, "reload", func(lctx context.Context) (*domain.Snapshot, error) {
		return c.load(lctx, true)
	})
}

// LoadedAt returns when the current snapshot was loaded, or the zero time.
func (c *Cache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// shared runs fn once per key across concurrent callers. The load keeps the
// first caller's values but not its cancellation, and is bounded by
// loadTimeout. Each caller still stops waiting when its own ctx ends.
func (c *Cache) shared(ctx context.Context, key string, fn func(context.Context) (*domain.Snapshot, error)) (*domain.Snapshot, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		return fn(lctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Snapshot), nil
	}
}

// load reads the backend. A first load (replace false) does not overwrite a
// snapshot a concurrent Reload already installed.
func (c *Cache) load(ctx context.Context, replace bool) (*domain.Snapshot, error) {
	snap, err := Load(ctx, c.backend)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !replace && c.snap != nil {
		return c.snap, nil
	}
	c.snap = snap
	c.loadedAt = time.Now()
	return snap, nil
}
