package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/proxima-xr/scenematch/pkg/traits"
)

// cacheTraits resolves the trait requirements of every working slot once. Slots with
// an unresolved requirement are left out of the rest of the tick.
func (p *Pipeline) cacheTraits(ctx context.Context) {
	p.fulfilled = p.fulfilled[:0]

	for _, slot := range p.working {
		tc := p.reg.TraitCaches[slot]
		if tc.Fulfilled {
			p.fulfilled = append(p.fulfilled, slot)
			continue
		}

		reqs := p.reg.Requirements[slot]
		for len(tc.Resolved) < len(reqs) {
			tc.Resolved = append(tc.Resolved, false)
		}

		fulfilled := true
		for i, req := range reqs {
			if tc.Resolved[i] {
				continue
			}
			tc.Resolved[i] = p.resolveRequirement(ctx, slot, req)
			fulfilled = fulfilled && tc.Resolved[i]
		}

		tc.Fulfilled = fulfilled
		if fulfilled {
			p.fulfilled = append(p.fulfilled, slot)
		}
	}
}

// resolveRequirement reports whether some data holds req with the expected kind. A
// trait that only exists with another kind is logged once per slot.
func (p *Pipeline) resolveRequirement(ctx context.Context, slot int, req traits.Requirement) bool {
	var mismatch traits.Kind
	for _, v := range p.store.GetAllWithTrait(req.Name) {
		if v.Kind() == req.Kind {
			return true
		}
		mismatch = v.Kind()
	}

	if mismatch != traits.KindInvalid && p.reg.TraitCaches[slot].MarkMismatch(req.Name) {
		p.logger.WarnWithContext(ctx, "trait kind mismatch",
			zap.Stringer("query_match_id", p.reg.IDs[slot]),
			zap.String("trait", req.Name),
			zap.Stringer("expected", req.Kind),
			zap.Stringer("actual", mismatch))
	}
	return false
}
