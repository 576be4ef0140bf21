// Package tenant caches tenant existence so authorization does not hit the database on
// every request.
//
// Entries, including "does not exist", live for Config.TTL (five minutes by default).
// Invalidate must be called whenever a tenant is mutated so a deleted tenant is never
// served from cache afterwards. Loader failures are returned and never cached.
package tenant

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/invauth/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is the freshness window of a cached answer.
const DefaultTTL = 5 * time.Minute

// Info is the cached view of an existing tenant.
type Info struct {
	ID   int64
	Name string
}

type Config struct {
	TTL time.Duration
	Now func() time.Time
}

type entry struct {
	info     *Info
	cachedAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	loader store.TenantRepository
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[int64]entry
	// gen advances on every Invalidate/Clear so an in-flight load started before the
	// invalidation does not repopulate the entry.
	gen   atomic.Uint64
	group singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache builds a cache over loader.
func NewCache(loader store.TenantRepository, cfg Config, logger *zap.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		loader:  loader,
		ttl:     cfg.TTL,
		now:     cfg.Now,
		logger:  logger.With(zap.String("component", "tenant.cache")),
		entries: make(map[int64]entry),
	}
}

// Get returns the tenant, or nil when it does not exist.
func (c *Cache) Get(ctx context.Context, tenantID int64) (*Info, error) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[tenantID]
	c.mu.RUnlock()
	if ok && now.Sub(e.cachedAt) <= c.ttl {
		c.hits.Add(1)
		return e.info, nil
	}
	c.misses.Add(1)

	gen := c.gen.Load()
	v, err, _ := c.group.Do(strconv.FormatInt(tenantID, 10), func() (any, error) {
		return c.load(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}
	info, _ := v.(*Info)

	c.mu.Lock()
	if c.gen.Load() == gen {
		c.entries[tenantID] = entry{info: info, cachedAt: now}
	}
	c.mu.Unlock()

	return info, nil
}

func (c *Cache) load(ctx context.Context, tenantID int64) (*Info, error) {
	t, err := c.loader.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return (*Info)(nil), nil
		}
		c.logger.Error("tenant lookup failed", zap.Int64("tenant_id", tenantID), zap.Error(err))
		return nil, err
	}
	return &Info{ID: t.ID, Name: t.Name}, nil
}

// Invalidate drops the cached answer for tenantID.
func (c *Cache) Invalidate(tenantID int64) {
	c.mu.Lock()
	c.gen.Add(1)
	delete(c.entries, tenantID)
	c.mu.Unlock()
	c.group.Forget(strconv.FormatInt(tenantID, 10))
}

// Clear drops every cached answer.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.gen.Add(1)
	c.entries = make(map[int64]entry)
	c.mu.Unlock()
}

// Len returns the number of cached answers, fresh or stale.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
