package documents

import (
	"hash/maphash"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const (
	// DefaultVersionCacheTTL bounds how long a version list is served from the cache.
	DefaultVersionCacheTTL = 5 * time.Minute
	// DefaultVersionCacheSize is the number of document version lists kept.
	DefaultVersionCacheSize = 10_000

	generationStripes = 256
)

type cachedVersions struct {
	generation uint64
	versions   []time.Time
}

// VersionCache caches the ascending version list of each document.
//
// Invalidate bumps a generation counter shared by a stripe of ids. A list
// carries the generation read before it was loaded, and is refused on Fill
// and ignored on Get once that generation is stale. A reader that loaded a
// list before a concurrent write can never put it back after the write's
// invalidation.
type VersionCache struct {
	cache       *ristretto.Cache[string, cachedVersions]
	ttl         time.Duration
	seed        maphash.Seed
	generations [generationStripes]atomic.Uint64
}

// NewVersionCache creates a cache holding up to size lists for at most ttl.
func NewVersionCache(size int64, ttl time.Duration) (*VersionCache, error) {
	if size <= 0 {
		size = DefaultVersionCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultVersionCacheTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, cachedVersions]{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &VersionCache{cache: cache, ttl: ttl, seed: maphash.MakeSeed()}, nil
}

func (c *VersionCache) stripe(id string) *atomic.Uint64 {
	return &c.generations[maphash.String(c.seed, id)%generationStripes]
}

// Generation returns the token to pass to Fill for a list loaded from now on.
func (c *VersionCache) Generation(id string) uint64 {
	return c.stripe(id).Load()
}

// Get returns a copy of the cached list for id.
func (c *VersionCache) Get(id string) ([]time.Time, bool) {
	v, ok := c.cache.Get(id)
	if !ok || v.generation != c.Generation(id) {
		return nil, false
	}
	return slices.Clone(v.versions), true
}

// Fill caches versions for id unless id was invalidated after generation was read.
func (c *VersionCache) Fill(id string, generation uint64, versions []time.Time) bool {
	if generation != c.Generation(id) {
		return false
	}
	return c.cache.SetWithTTL(id, cachedVersions{generation: generation, versions: slices.Clone(versions)}, 1, c.ttl)
}

// Invalidate drops the cached list for id.
func (c *VersionCache) Invalidate(id string) {
	c.stripe(id).Add(1)
	c.cache.Del(id)
}

// Wait blocks until buffered writes are applied.
func (c *VersionCache) Wait() {
	c.cache.Wait()
}

// Close stops the cache's background goroutines.
func (c *VersionCache) Close() {
	c.cache.Close()
}
