package storage

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
	"github.com/vradarserver/vrscore-sub000/internal/lookup"
)

// MemoryCache is a bounded in-process tier. Entries expire after a TTL and
// are lost on restart, so writes never count as saved.
type MemoryCache struct {
	lookup.Tier
	lru *expirable.LRU[icao.ID, aircraft.LookupOutcome]
}

// NewMemoryCache creates a tier holding up to size outcomes for ttl each.
func NewMemoryCache(tier lookup.Tier, size int, ttl time.Duration) *MemoryCache {
	if tier.Label == "" {
		tier.Label = "memory"
	}
	return &MemoryCache{
		Tier: tier,
		lru:  expirable.NewLRU[icao.ID, aircraft.LookupOutcome](size, nil, ttl),
	}
}

// Len returns the number of cached outcomes.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

func (c *MemoryCache) Read(_ context.Context, ids []icao.ID) (aircraft.BatchedLookupOutcome, error) {
	var out aircraft.BatchedLookupOutcome
	for _, id := range ids {
		if o, ok := c.lru.Get(id); ok {
			out.Add(o)
		}
	}
	return out, nil
}

func (c *MemoryCache) Write(_ context.Context, batch aircraft.BatchedLookupOutcome, _ bool) (bool, error) {
	for _, o := range batch.All() {
		c.lru.Add(o.ICAO, o)
	}
	return false, nil
}
