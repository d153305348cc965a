package costing

import (
	"github.com/shopspring/decimal"

	"github.com/warp/scheme-engine/frame"
)

// =============================================================================
// MANDATORY PRODUCT EVALUATOR
// =============================================================================

// mandatoryResult carries mandatory-product achievement and the gated payout.
// Every column is zero when the section is off.
type mandatoryResult struct {
	base         frame.Column
	actual       frame.Column
	ppi          frame.Column
	growthTarget frame.Column
	finalTarget  frame.Column
	achievement  frame.Column

	// The four qualification tests, any one of which opens the gate.
	toActual    frame.Column
	ppiAchieved frame.Column
	growthRatio frame.Column
	targetRatio frame.Column
	qualified   frame.Mask
	payout      frame.Column
}

func evalMandatory(r *run, ps *periods, sr *slabResult) *mandatoryResult {
	res := &mandatoryResult{
		base:   ps.mpBase(r),
		actual: ps.mpActual.of(r.mode),
		ppi:    ps.ppi,
	}
	sp := sr.params
	actual := ps.actual.of(r.mode)

	res.growthTarget = res.base.Mul(sp.mpGrowth.AddScalar(one))
	res.finalTarget = res.growthTarget.Max(sp.mpTarget).Max(actual.Mul(sp.mpToActual))
	res.achievement = res.actual.Div(res.finalTarget).Round(6)

	res.toActual = res.actual.Div(actual)
	res.ppiAchieved = res.ppi.Div(sp.mpMinPPI)
	res.growthRatio = res.actual.Div(res.growthTarget)
	res.targetRatio = res.actual.Div(sp.mpTarget)

	nonNegative := res.actual.GTEScalar(decimal.Zero)
	res.qualified = res.toActual.GTEScalar(one).
		Or(res.ppiAchieved.GTEScalar(one).And(nonNegative)).
		Or(res.growthRatio.GTEScalar(one)).
		Or(res.targetRatio.GTEScalar(one))
	if !r.cfg.MandatoryEnabled() {
		res.qualified = make(frame.Mask, r.n)
	}

	res.payout = sp.mpRebate.Mul(sr.payoutBase).Keep(res.qualified)
	return res
}
