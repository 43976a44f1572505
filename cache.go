package fluxgate

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// RuleCache is the in-process rule-set cache contract (§4.5): get, put,
// invalidate one id or all of them, and report size.
type RuleCache interface {
	Get(id string) (RuleSet, bool)
	Put(id string, rs RuleSet)
	Invalidate(id string)
	InvalidateAll()
	Size() int
}

// expirableRuleCache is the default RuleCache, backed by an LRU with
// per-entry TTL (github.com/hashicorp/golang-lru/v2/expirable), bounding
// entries to maxSize while independently refreshing stale entries even
// without an invalidation event.
type expirableRuleCache struct {
	lru *lru.LRU[string, RuleSet]
}

// DefaultCacheTTL and DefaultCacheMaxSize are the recommended defaults
// from §4.5.
const (
	DefaultCacheTTL     = 5 * time.Minute
	DefaultCacheMaxSize = 1000
)

// NewRuleCache builds the default cache. maxSize <= 0 uses
// DefaultCacheMaxSize; ttl <= 0 uses DefaultCacheTTL.
func NewRuleCache(maxSize int, ttl time.Duration) RuleCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &expirableRuleCache{lru: lru.NewLRU[string, RuleSet](maxSize, nil, ttl)}
}

func (c *expirableRuleCache) Get(id string) (RuleSet, bool) {
	return c.lru.Get(id)
}

func (c *expirableRuleCache) Put(id string, rs RuleSet) {
	c.lru.Add(id, rs)
}

func (c *expirableRuleCache) Invalidate(id string) {
	c.lru.Remove(id)
}

func (c *expirableRuleCache) InvalidateAll() {
	c.lru.Purge()
}

func (c *expirableRuleCache) Size() int {
	return c.lru.Len()
}

// CachingProvider wraps a backing RuleSetProvider with a RuleCache,
// implementing the read-through / write-on-miss / no-negative-caching
// discipline of §4.5, and registers for ReloadEvents (§4.6) to invalidate
// on rule changes.
//
// Concurrent misses for the same id are collapsed into a single backing
// read via singleflight, satisfying the §8 invariant that an
// invalidate(id) is followed by exactly one delegate read regardless of
// concurrent callers.
type CachingProvider struct {
	backing RuleSetProvider
	cache   RuleCache
	group   singleflight.Group
}

// NewCachingProvider wraps backing with cache. A nil cache disables
// caching and every call delegates directly (fluxgate.ReloadNone, §4.6).
func NewCachingProvider(backing RuleSetProvider, cache RuleCache) *CachingProvider {
	return &CachingProvider{backing: backing, cache: cache}
}

// FindById implements RuleSetProvider.
func (p *CachingProvider) FindById(ctx context.Context, ruleSetId string) (*RuleSet, bool, error) {
	if p.cache == nil {
		return p.backing.FindById(ctx, ruleSetId)
	}

	if rs, ok := p.cache.Get(ruleSetId); ok {
		return &rs, true, nil
	}

	v, err, _ := p.group.Do(ruleSetId, func() (any, error) {
		rs, found, err := p.backing.FindById(ctx, ruleSetId)
		if err != nil {
			return nil, err
		}
		if !found {
			// §4.5: do not cache negatives.
			return (*RuleSet)(nil), nil
		}
		p.cache.Put(ruleSetId, *rs)
		return rs, nil
	})
	if err != nil {
		return nil, false, err
	}
	rs, _ := v.(*RuleSet)
	if rs == nil {
		return nil, false, nil
	}
	return rs, true, nil
}

// HandleReloadEvent applies a ReloadEvent from any ReloadStrategy (§4.6):
// a full-reload event (empty RuleSetId) flushes everything, otherwise only
// the named rule-set is invalidated.
func (p *CachingProvider) HandleReloadEvent(event ReloadEvent) {
	if p.cache == nil {
		return
	}
	if event.RuleSetId == "" {
		p.cache.InvalidateAll()
		return
	}
	p.cache.Invalidate(event.RuleSetId)
}

// CacheSize reports the current cache occupancy, mainly for metrics/tests.
func (p *CachingProvider) CacheSize() int {
	if p.cache == nil {
		return 0
	}
	return p.cache.Size()
}
