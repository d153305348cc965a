package costing

import (
	"github.com/warp/scheme-engine/frame"
	"github.com/warp/scheme-engine/scheme"
)

// =============================================================================
// BONUS SCHEMES
// =============================================================================

// bonusScheme is one bonus scheme evaluated over every account. The mp*
// columns stay zero when mandatory products are off.
type bonusScheme struct {
	scheme scheme.BonusScheme

	actual, payoutBase     *frame.Column
	mpActual, mpPayoutBase *frame.Column

	target, achieved, payout       frame.Column
	mpTarget, mpAchieved, mpPayout frame.Column
}

func planBonusSchemes(r *run, p *sumPlan) []*bonusScheme {
	var out []*bonusScheme
	for _, bs := range r.cfg.BonusSchemes {
		out = append(out, &bonusScheme{
			scheme:       bs,
			actual:       p.add(r.products, bs.BonusPeriodWindow, r.mode),
			payoutBase:   p.add(r.products, bs.BonusPayoutWindow, r.mode),
			mpActual:     p.add(r.mandatory, bs.BonusPeriodWindow, r.mode),
			mpPayoutBase: p.add(r.mandatory, bs.BonusPayoutWindow, r.mode),
		})
	}
	return out
}

// eval applies the whole-number percent rates of the scheme.
func (b *bonusScheme) eval(sr *slabResult, mr *mandatoryResult) {
	bs := b.scheme

	b.target = sr.target.MulScalar(bs.MainSchemeTargetRate.Div(hundred)).MaxScalar(bs.MinimumTarget)
	b.achieved = b.actual.Div(b.target)
	b.payout = b.payoutBase.MulScalar(bs.RewardOnTotalRate.Div(hundred)).Keep(b.achieved.GTEScalar(one))

	b.mpTarget = mr.finalTarget.MulScalar(bs.MandatoryProductTargetRate.Div(hundred)).MaxScalar(bs.MinimumMandatoryProductTarget)
	b.mpAchieved = b.mpActual.Div(b.mpTarget)
	b.mpPayout = b.mpPayoutBase.MulScalar(bs.RewardOnMandatoryProductRate.Div(hundred)).Keep(b.mpAchieved.GTEScalar(one))
}
