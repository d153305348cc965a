/*
Package costing provides the scheme costing engine.

PURPOSE:
  Turns a typed scheme configuration and a loaded sales frame into the wide
  per-account result table: base metrics, actuals, slab targets, payouts,
  mandatory-product achievement, phasing and bonus tiers, and a GRAND TOTAL.

PIPELINE:
  1. Plan every period sum the request needs (aggregator.go, phasing.go, bonus.go)
  2. Execute the plan in one pass over the frame
  3. Slab engine: match, target, basic/additional/fixed payouts (slab.go)
  4. Mandatory products: four-way gate and payout (mandatory.go)
  5. Phasing tiers and bonus schemes
  6. Assemble: canonical columns, GRAND TOTAL, column suppression

VECTORISED EXECUTION:
  Every step works on frame.Column values spanning all accounts; the only
  per-account loop outside the frame is the slab gather. Ratios divide
  safely: a zero divisor yields 0, never an error.

ACCOUNTS:
  The result carries the accounts owning at least one sale of the scheme's
  products within the scheme's windows. None is ErrEmptyScheme.

SEE ALSO:
  - columns.go: canonical labels and the group presence bitmap
  - table.go: the result table and its GRAND TOTAL rules
*/
package costing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/scheme-engine/frame"
	"github.com/warp/scheme-engine/scheme"
)

// StrataSource returns whole-number growth percentages per account.
// Accounts without an entry are omitted from the map.
type StrataSource interface {
	Growth(ctx context.Context, accounts []string) (map[string]decimal.Decimal, error)
}

// Options tune one computation.
type Options struct {
	// Mode overrides the scheme's own mode when valid.
	Mode scheme.Mode
}

// Engine computes result tables. The zero value works without strata growth.
type Engine struct {
	Strata StrataSource
	Log    *logrus.Entry
}

// NewEngine creates an engine.
func NewEngine(strata StrataSource, log *logrus.Entry) *Engine {
	return &Engine{Strata: strata, Log: log}
}

// Compute costs cfg over fr. cfg may be the main scheme or one of its
// additional schemes; fr is the frame loaded for the main scheme.
func (e *Engine) Compute(ctx context.Context, cfg *scheme.Config, fr *frame.Frame, opts Options) (*Table, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if len(cfg.Slabs) == 0 {
		return nil, &scheme.MalformedError{SchemeID: cfg.SchemeID, Field: "slabs", Reason: "at least one slab required"}
	}
	if opts.Mode.Valid() {
		cfg = cfg.WithMode(opts.Mode)
	}
	r := newRun(cfg, fr)

	span := scheme.Window{}.Span(cfg.Windows()...)
	keep := fr.AccountsWith(r.products.And(fr.InWindow(span))).Indices()
	if len(keep) == 0 {
		return nil, fmt.Errorf("scheme %s: %w", cfg.SchemeID, scheme.ErrEmptyScheme)
	}

	if cfg.EnableStrataGrowth && e.Strata != nil {
		if err := e.loadStrata(ctx, r); err != nil {
			return nil, err
		}
	}

	// 1-2. One pass for every sum.
	plan := &sumPlan{}
	ps := planPeriods(r, plan)
	phasing := planPhasing(r, plan)
	bonuses := planBonusSchemes(r, plan)
	plan.exec(fr)
	ps.finish(r)

	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	// 3-5. Evaluators.
	sr := evalSlabs(r, ps)
	mr := evalMandatory(r, ps, sr)
	phasing.eval(r, sr)
	for _, b := range bonuses {
		b.eval(sr, mr)
	}

	// 6. Assemble.
	t := assemble(r, keep, ps, sr, mr, phasing, bonuses)
	t.appendGrandTotal()
	t = t.Project(PresentGroups(cfg))

	e.logger().WithFields(logrus.Fields{
		"scheme_id": cfg.SchemeID,
		"index":     cfg.Index,
		"mode":      cfg.Mode,
		"accounts":  len(keep),
		"rows":      fr.Rows(),
		"columns":   len(t.cols),
	}).Debug("scheme costed")
	return t, nil
}

func (e *Engine) logger() *logrus.Entry {
	if e.Log != nil {
		return e.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func (e *Engine) loadStrata(ctx context.Context, r *run) error {
	growth, err := e.Strata.Growth(ctx, r.fr.Accounts())
	if err != nil {
		if errors.Is(err, scheme.ErrLoad) || errors.Is(err, scheme.ErrTimeout) {
			return err
		}
		return scheme.NewLoadError("strata growth", err)
	}
	for i, a := range r.fr.Accounts() {
		if g, ok := growth[a]; ok {
			r.strata[i] = g
		}
	}
	return nil
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", scheme.ErrTimeout, err)
	}
	return nil
}

// =============================================================================
// RESULT ASSEMBLER
// =============================================================================

func assemble(r *run, keep []int, ps *periods, sr *slabResult, mr *mandatoryResult,
	phasing *phasingResult, bonuses []*bonusScheme) *Table {

	t := newTable(len(keep))
	sel := func(c frame.Column) frame.Column { return c.Select(keep) }
	selMask := func(m frame.Mask) frame.Mask {
		out := make(frame.Mask, len(keep))
		for i, j := range keep {
			out[i] = m[j]
		}
		return out
	}
	mode := r.mode
	vol, val := scheme.ModeVolume, scheme.ModeValue

	// Identity
	attrs := r.fr.Attrs()
	text := func(f func(scheme.AccountAttrs) string) []string {
		out := make([]string, len(keep))
		for i, j := range keep {
			out[i] = f(attrs[j])
		}
		return out
	}
	t.addText(LabelCreditAccount, GroupIdentity, text(func(a scheme.AccountAttrs) string { return a.CreditAccount }))
	t.addText(LabelCustomerName, GroupIdentity, text(func(a scheme.AccountAttrs) string { return a.CustomerName }))
	t.addText(LabelSOName, GroupIdentity, text(func(a scheme.AccountAttrs) string { return a.SOName }))
	t.addText(LabelState, GroupIdentity, text(func(a scheme.AccountAttrs) string { return a.State }))
	t.addText(LabelRegion, GroupIdentity, text(func(a scheme.AccountAttrs) string { return a.Region }))
	t.addText(LabelAreaHead, GroupIdentity, text(func(a scheme.AccountAttrs) string { return a.AreaHead }))
	t.addText(LabelDivision, GroupIdentity, text(func(a scheme.AccountAttrs) string { return a.Division }))
	t.addText(LabelDealerType, GroupIdentity, text(func(a scheme.AccountAttrs) string { return a.DealerType }))
	t.addText(LabelDistributor, GroupIdentity, text(func(a scheme.AccountAttrs) string { return a.Distributor }))

	// Base periods
	for i, b := range ps.base {
		if !b.present {
			continue
		}
		g, n := GroupBasePeriod(i+1), i+1
		t.addSum(LabelBase(n, vol), g, sel(b.raw.of(vol)))
		t.addSum(LabelBase(n, val), g, sel(b.raw.of(val)))
		t.addParam(LabelBaseMonths(n), g, frame.Fill(len(keep), decimal.NewFromInt(int64(b.months))))
		t.addSum(LabelBaseFinal(n, vol), g, sel(b.final(b.raw.of(vol))))
		t.addSum(LabelBaseFinal(n, val), g, sel(b.final(b.raw.of(val))))
	}
	t.addSum(LabelTotalBase(mode), GroupBase, sel(sr.total))

	// Actuals
	t.addSum(LabelActual(vol), GroupActual, sel(ps.actual.of(vol)))
	t.addSum(LabelActual(val), GroupActual, sel(ps.actual.of(val)))

	// Slab
	sp := sr.params
	t.addParam(LabelSlabStart, GroupSlab, sel(sp.start))
	t.addParamWhere(LabelSlabEnd, GroupSlab, sel(sp.end), selMask(sp.valid))
	t.addParam(LabelGrowthRate, GroupSlab, sel(sr.growth))
	t.addSum(LabelTarget(mode), GroupSlab, sel(sr.target))
	t.addParam(LabelQualificationRate, GroupSlab, sel(sr.qualification))
	t.addParam(LabelRebatePerUnit, GroupSlab, sel(sp.perUnit))
	t.addParam(LabelRebatePercent, GroupSlab, sel(sp.percent))
	t.addParam(LabelAdditionalRebate, GroupSlab, sel(sp.additional))
	t.addParam(LabelFixedRebate, GroupSlab, sel(sp.fixed))
	t.addRatio(LabelPercentAchieved, GroupSlab, LabelActual(mode), LabelTarget(mode), NoRounding)
	t.addParam(LabelStrataGrowth, GroupStrata, sel(r.strata))

	// Estimates
	t.addSum(LabelEstimated(mode), GroupEstimate, sel(sr.estActive))
	t.addSum(LabelEstimated(mode.Other()), GroupEstimate, sel(sr.estOther))

	// Payout products
	t.addSum(LabelPayoutProductActual(vol), GroupPayoutProduct, sel(ps.payoutActual.of(vol)))
	t.addSum(LabelPayoutProductActual(val), GroupPayoutProduct, sel(ps.payoutActual.of(val)))

	// Mandatory products
	gm := GroupMandatory
	t.addSum(LabelMPBase(mode), gm, sel(mr.base))
	t.addSum(LabelMPActual(vol), gm, sel(ps.mpActual.of(vol)))
	t.addSum(LabelMPActual(val), gm, sel(ps.mpActual.of(val)))
	t.addSum(LabelMPActualPPI, gm, sel(mr.ppi))
	t.addParam(LabelMPGrowthRate, gm, sel(sp.mpGrowth))
	t.addSum(LabelMPGrowthTarget(mode), gm, sel(mr.growthTarget))
	t.addParam(LabelMPTarget, gm, sel(sp.mpTarget))
	t.addParam(LabelMPTargetToActualRate, gm, sel(sp.mpToActual))
	t.addSum(LabelMPFinalTarget(mode), gm, sel(mr.finalTarget))
	t.addRatio(LabelMPAchieved, gm, LabelMPActual(mode), LabelMPFinalTarget(mode), 6)
	t.addParam(LabelMPMinShadesPPI, gm, sel(sp.mpMinPPI))
	t.addParam(LabelMPRebate, gm, sel(sp.mpRebate))
	t.addRatio(LabelMPToActual, gm, LabelMPActual(mode), LabelActual(mode), NoRounding)
	t.addRatio(LabelMPPPIAchieved, gm, LabelMPActualPPI, LabelMPMinShadesPPI, NoRounding)
	t.addRatio(LabelMPGrowthAchieved, gm, LabelMPActual(mode), LabelMPGrowthTarget(mode), NoRounding)
	t.addRatio(LabelMPTargetAchieved, gm, LabelMPActual(mode), LabelMPTarget, NoRounding)
	t.addParam(LabelMPQualified, gm, sel(mr.qualified.Flag()))
	t.addSum(LabelMPPayout, gm, sel(mr.payout))

	// Phasing
	for i, ph := range phasing.periods {
		n, g := i+1, GroupPhasing(i+1)
		addTier(t, sel, g, ph.regular,
			LabelPhasingTargetRate(n), LabelPhasingTarget(n, mode), LabelPhasingActual(n, mode),
			LabelPhasingAchieved(n), LabelPhasingPayoutBase(n, mode), LabelPhasingPayout(n))
		if ph.bonus != nil {
			addTier(t, sel, GroupPhasingBonus(n), *ph.bonus,
				LabelBonusPhasingTargetRate(n), LabelBonusPhasingTarget(n, mode), LabelBonusPhasingActual(n, mode),
				LabelBonusPhasingAchieved(n), LabelBonusPhasingPayoutBase(n, mode), LabelBonusPhasingPayout(n))
		}
	}
	if len(phasing.periods) > 0 {
		t.addSum(LabelFinalPhasingPayout, GroupPhasingTotal, sel(phasing.final))
	}

	// Bonus schemes
	for i, b := range bonuses {
		k := i + 1
		g, gmp := GroupBonusScheme(k), GroupBonusSchemeMP(k)
		t.addSum(LabelBonusSchemeTarget(k), g, sel(b.target))
		t.addSum(LabelBonusSchemeActual(k), g, sel(*b.actual))
		t.addRatio(LabelBonusSchemeAchieved(k), g, LabelBonusSchemeActual(k), LabelBonusSchemeTarget(k), NoRounding)
		t.addSum(LabelBonusSchemePayoutBase(k), g, sel(*b.payoutBase))
		t.addSum(LabelBonusSchemePayout(k), g, sel(b.payout))

		t.addSum(LabelBonusSchemeMPTarget(k), gmp, sel(b.mpTarget))
		t.addSum(LabelBonusSchemeMPActual(k), gmp, sel(*b.mpActual))
		t.addRatio(LabelBonusSchemeMPAchieved(k), gmp, LabelBonusSchemeMPActual(k), LabelBonusSchemeMPTarget(k), NoRounding)
		t.addSum(LabelBonusSchemeMPPayoutBase(k), gmp, sel(*b.mpPayoutBase))
		t.addSum(LabelBonusSchemeMPPayout(k), gmp, sel(b.mpPayout))
	}

	// Payouts
	total := sr.basic.Add(sr.additional).Add(sr.fixed).Add(mr.payout)
	t.addSum(LabelBasicPayout, GroupPayout, sel(sr.basic))
	t.addSum(LabelAdditionalPayout, GroupPayout, sel(sr.additional))
	t.addSum(LabelFixedPayout, GroupPayout, sel(sr.fixed))
	t.addSum(LabelTotalPayout, GroupPayout, sel(total))
	return t
}

func addTier(t *Table, sel func(frame.Column) frame.Column, g Group, tr tier,
	rateLabel, targetLabel, actualLabel, achievedLabel, baseLabel, payoutLabel string) {

	t.addParam(rateLabel, g, sel(tr.targetRate))
	t.addSum(targetLabel, g, sel(tr.target))
	t.addSum(actualLabel, g, sel(*tr.actual))
	t.addRatio(achievedLabel, g, actualLabel, targetLabel, NoRounding)
	t.addSum(baseLabel, g, sel(*tr.payoutBase))
	t.addSum(payoutLabel, g, sel(tr.payout))
}
