package pipeline

import (
	"context"

	"github.com/proxima-xr/scenematch/internal/concurrency"
	"github.com/proxima-xr/scenematch/internal/ratingcache"
	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

// rate fills the per-condition rating maps of every fulfilled slot. When the store is
// versioned and unchanged since a slot was last rated, its ratings and raw proposals
// are kept as they are.
func (p *Pipeline) rate(ctx context.Context) error {
	var revision uint64
	if p.versioned != nil {
		revision = p.versioned.Revision()
	}

	p.stale = p.stale[:0]
	for _, slot := range p.fulfilled {
		rated := p.reg.RatedRevisions[slot]
		if p.versioned != nil && rated != 0 && rated == revision {
			continue
		}
		p.stale = append(p.stale, slot)
	}

	err := concurrency.Partition(ctx, len(p.stale), p.ratingWorkers, func(ctx context.Context, lo, hi int) error {
		for _, slot := range p.stale[lo:hi] {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.rateSlot(slot, revision)
		}
		return nil
	})
	if err != nil {
		// A partially rated tick must not be mistaken for an up to date one.
		for _, slot := range p.stale {
			p.reg.ResetRatings(slot)
		}
		return err
	}
	return nil
}

func (p *Pipeline) rateSlot(slot int, revision uint64) {
	handles := p.reg.Handles[slot]
	for i, cond := range p.reg.Conditions[slot] {
		ratings := p.reg.Ratings[slot][i]
		clear(ratings)

		req := cond.Requirement()
		for dataID, value := range p.store.GetAllWithTrait(req.Name) {
			ratings[dataID] = p.rateValue(cond, req, handles[i], dataID, value)
		}
	}
	p.reg.RatedRevisions[slot] = revision
}

func (p *Pipeline) rateValue(cond query.Condition, req traits.Requirement, handle uint64, dataID traits.DataID, value traits.Value) float64 {
	if !req.Satisfies(value) {
		return 0
	}
	if p.cache == nil || p.versioned == nil {
		return query.Clamp(cond.RateDataMatch(value))
	}

	key := ratingcache.Key{Handle: handle, DataID: dataID, Revision: p.versioned.DataRevision(dataID)}
	if rating, ok := p.cache.Get(key); ok {
		return rating
	}
	rating := query.Clamp(cond.RateDataMatch(value))
	p.cache.Set(key, rating)
	return rating
}
