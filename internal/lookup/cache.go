package lookup

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
)

// DefaultPriority is the priority of the fallback tier that every other tier
// outranks.
const DefaultPriority = math.MinInt

// Cache is one tier of the lookup cache.
//
// Read returns only what the tier actually holds: hits in Found, previously
// recorded misses in Missing. Identities the tier knows nothing about are
// left out. Write is told whether a higher tier has already persisted the
// batch and reports whether this tier persisted it.
//
// Implementations must accept concurrent calls for different batches.
type Cache interface {
	Name() string
	Enabled() bool
	CanRead() bool
	ReadPriority() int
	CanWrite() bool
	WritePriority() int

	Read(ctx context.Context, ids []icao.ID) (aircraft.BatchedLookupOutcome, error)
	Write(ctx context.Context, batch aircraft.BatchedLookupOutcome, alreadySaved bool) (saved bool, err error)
}

// Tier carries the descriptive half of Cache. Embed it in a tier
// implementation. The zero value is an enabled read-write tier at priority 0.
type Tier struct {
	Label     string
	Disabled  bool
	ReadOnly  bool
	WriteOnly bool
	ReadRank  int
	WriteRank int
}

func (t Tier) Name() string       { return t.Label }
func (t Tier) Enabled() bool      { return !t.Disabled }
func (t Tier) CanRead() bool      { return !t.WriteOnly }
func (t Tier) ReadPriority() int  { return t.ReadRank }
func (t Tier) CanWrite() bool     { return !t.ReadOnly }
func (t Tier) WritePriority() int { return t.WriteRank }

// Chain orchestrates reads and writes across cache tiers.
type Chain struct {
	caches []Cache
	logger *slog.Logger
}

// NewChain builds a chain over caches. A nil logger uses slog.Default.
func NewChain(logger *slog.Logger, caches ...Cache) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{caches: caches, logger: logger}
}

// Caches returns the tiers in the order they were added.
func (c *Chain) Caches() []Cache {
	return slices.Clone(c.caches)
}

func (c *Chain) ordered(use func(Cache) bool, priority func(Cache) int) []Cache {
	var out []Cache
	for _, cache := range c.caches {
		if cache.Enabled() && use(cache) {
			out = append(out, cache)
		}
	}
	slices.SortStableFunc(out, func(a, b Cache) int {
		return cmp.Compare(priority(b), priority(a))
	})
	return out
}

// Read asks readable tiers in descending read priority for ids. A hit removes
// the identity from what later tiers are asked; a recorded miss is kept but
// lower tiers still get the chance to answer. A failing tier is logged and
// skipped. The only error returned is the context's.
func (c *Chain) Read(ctx context.Context, ids []icao.ID) (aircraft.BatchedLookupOutcome, error) {
	var result aircraft.BatchedLookupOutcome
	if c == nil {
		return result, nil
	}

	candidates := dedupe(ids)
	missed := make(map[icao.ID]bool)

	for _, cache := range c.ordered(Cache.CanRead, Cache.ReadPriority) {
		if len(candidates) == 0 {
			break
		}
		got, err := cache.Read(ctx, candidates)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			c.logger.Warn("lookup cache read failed", "cache", cache.Name(), "error", err)
			continue
		}

		asked := make(map[icao.ID]bool, len(candidates))
		for _, id := range candidates {
			asked[id] = true
		}
		for _, o := range got.Found {
			if asked[o.ICAO] && o.Success {
				result.Add(o)
				delete(asked, o.ICAO)
			}
		}
		for _, o := range got.Missing {
			if asked[o.ICAO] && !missed[o.ICAO] {
				missed[o.ICAO] = true
				result.Add(o)
			}
		}

		next := candidates[:0:0]
		for _, id := range candidates {
			if asked[id] {
				next = append(next, id)
			}
		}
		candidates = next
	}
	return result, nil
}

// Write offers batch to every writable tier in descending write priority.
// Once a tier reports it saved the batch, later tiers are told so. Every tier
// is attempted; failures are joined.
func (c *Chain) Write(ctx context.Context, batch aircraft.BatchedLookupOutcome) error {
	if c == nil || batch.Len() == 0 {
		return nil
	}

	alreadySaved := false
	var errs []error
	for _, cache := range c.ordered(Cache.CanWrite, Cache.WritePriority) {
		saved, err := cache.Write(ctx, batch, alreadySaved)
		if err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", cache.Name(), err))
			continue
		}
		if saved {
			alreadySaved = true
		}
	}
	return errors.Join(errs...)
}

func dedupe(ids []icao.ID) []icao.ID {
	seen := make(map[icao.ID]bool, len(ids))
	out := make([]icao.ID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
