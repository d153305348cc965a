package costing

import (
	"github.com/shopspring/decimal"

	"github.com/warp/scheme-engine/frame"
	"github.com/warp/scheme-engine/scheme"
)

// =============================================================================
// PHASING EVALUATOR
// =============================================================================

// tier is one phasing tier (regular or bonus) of one period.
type tier struct {
	actual     *frame.Column // sum over the phasing window
	payoutBase *frame.Column // sum over the payout window

	targetRate frame.Column
	target     frame.Column
	achieved   frame.Column
	payout     frame.Column
}

func (t *tier) eval(rate, rebate decimal.Decimal, slabTarget frame.Column) {
	t.targetRate = frame.Fill(len(slabTarget), rate)
	t.target = slabTarget.MulScalar(rate)
	t.achieved = t.actual.Div(t.target)
	t.payout = t.payoutBase.MulScalar(rebate).Keep(t.achieved.GTEScalar(one))
}

type phasingPeriod struct {
	period  scheme.PhasingPeriod
	regular tier
	bonus   *tier
}

type phasingResult struct {
	periods []*phasingPeriod
	final   frame.Column
}

func planPhasing(r *run, p *sumPlan) *phasingResult {
	res := &phasingResult{}
	payoutRows := r.payoutRows()
	for _, pp := range r.cfg.PhasingPeriods {
		ph := &phasingPeriod{
			period: pp,
			regular: tier{
				actual:     p.add(r.products, pp.PhasingWindow, r.mode),
				payoutBase: p.add(payoutRows, pp.PayoutWindow, r.mode),
			},
		}
		if pp.IsBonus {
			ph.bonus = &tier{
				actual:     p.add(r.products, pp.BonusPhasingWindow, r.mode),
				payoutBase: p.add(payoutRows, pp.BonusPayoutWindow, r.mode),
			}
		}
		res.periods = append(res.periods, ph)
	}
	return res
}

// eval settles every tier, then the final payout: the best bonus payout when
// any bonus tier is achieved, the sum of regular payouts otherwise.
func (res *phasingResult) eval(r *run, sr *slabResult) {
	regular := frame.Zeros(r.n)
	best := frame.Zeros(r.n)
	bonusHit := make(frame.Mask, r.n)

	for _, ph := range res.periods {
		pp := ph.period
		ph.regular.eval(pp.PhasingTargetRate, pp.RebateFor(r.mode), sr.target)
		regular = regular.Add(ph.regular.payout)

		if ph.bonus == nil {
			continue
		}
		ph.bonus.eval(pp.BonusPhasingTargetRate, pp.BonusRebateFor(r.mode), sr.target)
		best = best.Max(ph.bonus.payout)
		bonusHit = bonusHit.Or(ph.bonus.achieved.GTEScalar(one))
	}
	res.final = best.Where(bonusHit, regular)
}
