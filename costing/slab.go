package costing

import (
	"github.com/shopspring/decimal"

	"github.com/warp/scheme-engine/frame"
	"github.com/warp/scheme-engine/scheme"
)

// =============================================================================
// SLAB ENGINE
// =============================================================================

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// slabParams is the matched slab of every account, spread into columns.
type slabParams struct {
	idx   []int
	valid frame.Mask // false where the slab is open-ended

	start, end, growth, qualification   frame.Column
	perUnit, percent, additional, fixed frame.Column
	mpTarget, mpGrowth, mpToActual      frame.Column
	mpRebate, mpMinPPI                  frame.Column
}

// matchSlabs picks a slab for every m: the lowest-start slab containing it,
// or the first slab when none does.
func matchSlabs(cfg *scheme.Config, m frame.Column) slabParams {
	p := slabParams{idx: make([]int, len(m)), valid: make(frame.Mask, len(m))}
	for i, v := range m {
		p.idx[i] = cfg.SelectSlab(v)
		p.valid[i] = !cfg.Slabs[p.idx[i]].OpenEnded
	}
	gather := func(f func(scheme.Slab) decimal.Decimal) frame.Column {
		out := make(frame.Column, len(p.idx))
		for i, j := range p.idx {
			out[i] = f(cfg.Slabs[j])
		}
		return out
	}
	p.start = gather(func(s scheme.Slab) decimal.Decimal { return s.Start })
	p.end = gather(func(s scheme.Slab) decimal.Decimal { return s.End })
	p.growth = gather(func(s scheme.Slab) decimal.Decimal { return s.GrowthRate })
	p.qualification = gather(func(s scheme.Slab) decimal.Decimal { return s.QualificationRate })
	p.perUnit = gather(func(s scheme.Slab) decimal.Decimal { return s.RebatePerUnit })
	p.percent = gather(func(s scheme.Slab) decimal.Decimal { return s.RebatePercent })
	p.additional = gather(func(s scheme.Slab) decimal.Decimal { return s.AdditionalRebateOnGrowth })
	p.fixed = gather(func(s scheme.Slab) decimal.Decimal { return s.FixedRebate })
	p.mpTarget = gather(func(s scheme.Slab) decimal.Decimal { return s.MandatoryProductTarget })
	p.mpGrowth = gather(func(s scheme.Slab) decimal.Decimal { return s.MandatoryProductGrowthRate })
	p.mpToActual = gather(func(s scheme.Slab) decimal.Decimal { return s.MandatoryProductTargetToActualRate })
	p.mpRebate = gather(func(s scheme.Slab) decimal.Decimal { return s.MandatoryRebateFor(cfg.Mode) })
	p.mpMinPPI = gather(func(s scheme.Slab) decimal.Decimal { return s.MandatoryMinShadesPPI })
	return p
}

// slabResult is the output of the slab engine.
type slabResult struct {
	params slabParams

	total         frame.Column // combined base the slab was matched on
	growth        frame.Column // effective growth rate after strata override
	target        frame.Column
	qualification frame.Column
	estActive     frame.Column
	estOther      frame.Column

	payoutBase frame.Column
	basic      frame.Column
	additional frame.Column
	fixed      frame.Column
	achieved   frame.Column
}

func evalSlabs(r *run, ps *periods) *slabResult {
	m := ps.total(r)
	res := &slabResult{params: matchSlabs(r.cfg, m), total: m}
	first := r.cfg.FirstSlab()
	positive := m.GTScalar(decimal.Zero)

	// Strata growth overrides the slab growth where the account has one.
	res.growth = res.params.growth
	if r.cfg.EnableStrataGrowth {
		res.growth = r.strata.DivScalar(hundred).Where(r.strata.GTScalar(decimal.Zero), res.params.growth)
	}

	grown := m.Mul(res.growth.AddScalar(one)).Max(res.params.start)
	res.target = grown.Where(positive, frame.Fill(r.n, first.Start))
	res.qualification = frame.Fill(r.n, first.QualificationRate).Where(m.IsZero(), res.params.qualification)

	// Forecasts: the other measure follows the observed scheme-period price.
	actual := ps.actual.of(r.mode)
	other := ps.actual.of(r.mode.Other())
	res.estActive = res.qualification.Mul(res.target)
	res.estOther = res.estActive.Mul(other.Div(actual))

	res.payoutBase = ps.payoutBase(r)
	rate := res.params.perUnit.Where(res.params.perUnit.GTScalar(decimal.Zero), res.params.percent)
	res.basic = rate.Mul(res.payoutBase)
	res.additional = res.params.additional.Mul(res.payoutBase).Keep(actual.GTE(res.target))
	res.achieved = actual.Div(res.target)
	res.fixed = res.params.fixed.Keep(res.achieved.GTEScalar(one))
	return res
}
